package scheduling

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestWeekdayOf(t *testing.T) {
	tests := []struct {
		date string
		want DayOfWeek
	}{
		{"2024-05-13", Monday},
		{"2024-05-14", Tuesday},
		{"2024-05-19", Sunday},
		{"2024-02-29", Thursday},
		{"2000-01-01", Saturday},
	}
	for _, tt := range tests {
		got, err := WeekdayOf(tt.date)
		require.NoError(t, err, tt.date)
		assert.Equal(t, tt.want, got, tt.date)
	}

	for _, bad := range []string{"", "2024-5-13", "13/05/2024", "2023-02-29", "2024-05-13T09:00:00Z"} {
		_, err := WeekdayOf(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestParseDayOfWeek(t *testing.T) {
	for _, in := range []string{"monday", "Monday", "MONDAY", " monday "} {
		d, err := ParseDayOfWeek(in)
		require.NoError(t, err, in)
		assert.Equal(t, Monday, d)
	}
	_, err := ParseDayOfWeek("funday")
	assert.ErrorIs(t, err, ErrInvalidDay)
	assert.True(t, IsValidation(err))
}

func TestDayOfWeek_Index(t *testing.T) {
	assert.Equal(t, 0, Monday.Index())
	assert.Equal(t, 6, Sunday.Index())
	assert.Equal(t, -1, DayOfWeek("X").Index())
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"08:20", 500},
		{"12:00", 720},
		{"23:59", 1439},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.in, FormatClock(got))
	}

	for _, bad := range []string{"", "8:00", "24:00", "12:60", "0800", "08:00:00", "ab:cd"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidTime, bad)
	}
}

func TestWindow_Contains(t *testing.T) {
	w := Window{Start: 480, End: 720}
	assert.False(t, w.Contains(479))
	assert.True(t, w.Contains(480))
	assert.True(t, w.Contains(719))
	assert.False(t, w.Contains(720))
}

func TestWeeklySchedule_Validate(t *testing.T) {
	staff := uuid.New()
	tests := []struct {
		name    string
		sched   WeeklySchedule
		wantErr bool
	}{
		{"available with times", WeeklySchedule{StaffID: staff, Day: Monday, IsAvailable: true, StartTime: strPtr("08:00"), EndTime: strPtr("12:00")}, false},
		{"day off without times", WeeklySchedule{StaffID: staff, Day: Sunday}, false},
		{"day off keeps times", WeeklySchedule{StaffID: staff, Day: Sunday, StartTime: strPtr("08:00"), EndTime: strPtr("12:00")}, false},
		{"missing staff", WeeklySchedule{Day: Monday}, true},
		{"bad day", WeeklySchedule{StaffID: staff, Day: "FUNDAY"}, true},
		{"available without times", WeeklySchedule{StaffID: staff, Day: Monday, IsAvailable: true}, true},
		{"available without end", WeeklySchedule{StaffID: staff, Day: Monday, IsAvailable: true, StartTime: strPtr("08:00")}, true},
		{"start equals end", WeeklySchedule{StaffID: staff, Day: Monday, IsAvailable: true, StartTime: strPtr("08:00"), EndTime: strPtr("08:00")}, true},
		{"start after end", WeeklySchedule{StaffID: staff, Day: Monday, IsAvailable: true, StartTime: strPtr("17:00"), EndTime: strPtr("09:00")}, true},
		{"bad clock", WeeklySchedule{StaffID: staff, Day: Monday, IsAvailable: true, StartTime: strPtr("8am"), EndTime: strPtr("12:00")}, true},
		{"day off with bad clock", WeeklySchedule{StaffID: staff, Day: Monday, StartTime: strPtr("25:00")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sched.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err), "expected a validation error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWeeklySchedule_Window(t *testing.T) {
	s := WeeklySchedule{StaffID: uuid.New(), Day: Monday, IsAvailable: true, StartTime: strPtr("08:00"), EndTime: strPtr("12:00")}
	w, err := s.Window()
	require.NoError(t, err)
	assert.Equal(t, Window{Start: 480, End: 720}, w)

	s.EndTime = nil
	_, err = s.Window()
	assert.True(t, errors.Is(err, ErrMalformedSchedule))

	s.EndTime = strPtr("07:00")
	_, err = s.Window()
	assert.True(t, errors.Is(err, ErrMalformedSchedule))
}

func TestAppointmentStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusPending, StatusScheduled, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, true},
		{StatusScheduled, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestAppointmentStatus_Active(t *testing.T) {
	assert.True(t, StatusPending.Active())
	assert.True(t, StatusScheduled.Active())
	assert.False(t, StatusCancelled.Active())
	assert.False(t, StatusCompleted.Active())
	assert.False(t, AppointmentStatus("BOGUS").Valid())
}

func TestTimeSlot_JSONOmitsEmptyReason(t *testing.T) {
	b, err := json.Marshal(TimeSlot{Time: "08:00", Available: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":"08:00","available":true}`, string(b))

	b, err = json.Marshal(TimeSlot{Time: "09:00", Reason: ReasonSlotBooked})
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":"09:00","available":false,"reason":"Already booked"}`, string(b))
}

func TestAvailability_JSONHidesOutcome(t *testing.T) {
	b, err := json.Marshal(Availability{Available: true, Reason: ReasonAvailable, Outcome: OutcomeAvailable})
	require.NoError(t, err)
	assert.JSONEq(t, `{"available":true,"reason":"Time slot is available"}`, string(b))
}
