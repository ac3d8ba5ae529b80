package scheduling

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	monday  = "2024-05-13"
	tuesday = "2024-05-14"
)

type recordingObserver struct {
	calls []string
}

func (r *recordingObserver) ObserveAvailability(operation, outcome string) {
	r.calls = append(r.calls, operation+":"+outcome)
}

func TestCheckAvailability_NoScheduleRow(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()

	res, err := env.engine.CheckAvailability(context.Background(), doc, monday, "09:00", nil)
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, ReasonNotScheduled, res.Reason)
	assert.Equal(t, OutcomeNotScheduled, res.Outcome)
}

func TestCheckAvailability_DayMarkedUnavailable(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, false, "08:00", "12:00")

	res, err := env.engine.CheckAvailability(context.Background(), doc, monday, "09:00", nil)
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, "Doctor is not available on this day", res.Reason)
}

func TestCheckAvailability_UsesWeekdayOfDate(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "12:00")

	res, err := env.engine.CheckAvailability(context.Background(), doc, tuesday, "09:00", nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotScheduled, res.Reason)

	res, err = env.engine.CheckAvailability(context.Background(), doc, monday, "09:00", nil)
	require.NoError(t, err)
	assert.True(t, res.Available)
}

func TestCheckAvailability_Window(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "12:00")

	tests := []struct {
		clock     string
		available bool
		reason    string
	}{
		{"07:59", false, "Doctor is only available between 08:00 and 12:00"},
		{"08:00", true, ReasonAvailable},
		{"11:59", true, ReasonAvailable},
		{"12:00", false, "Doctor is only available between 08:00 and 12:00"},
		{"17:30", false, "Doctor is only available between 08:00 and 12:00"},
	}
	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			res, err := env.engine.CheckAvailability(context.Background(), doc, monday, tt.clock, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.available, res.Available)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestCheckAvailability_Conflict(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "12:00")
	booked := env.appointments.put(doc, monday, "09:00", StatusScheduled)

	res, err := env.engine.CheckAvailability(context.Background(), doc, monday, "09:00", nil)
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, "This time slot is already booked", res.Reason)
	assert.Equal(t, OutcomeConflict, res.Outcome)

	res, err = env.engine.CheckAvailability(context.Background(), doc, monday, "09:00", &booked)
	require.NoError(t, err)
	assert.True(t, res.Available, "excluding the booking itself must free the slot")
	assert.Equal(t, "Time slot is available", res.Reason)
}

func TestCheckAvailability_InactiveAppointmentsDoNotBlock(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "12:00")
	env.appointments.put(doc, monday, "09:00", StatusCancelled)
	env.appointments.put(doc, monday, "09:20", StatusCompleted)

	for _, clock := range []string{"09:00", "09:20"} {
		res, err := env.engine.CheckAvailability(context.Background(), doc, monday, clock, nil)
		require.NoError(t, err)
		assert.True(t, res.Available, clock)
	}
}

func TestCheckAvailability_OtherDoctorDoesNotBlock(t *testing.T) {
	env := newTestEnv()
	doc, other := uuid.New(), uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "12:00")
	env.appointments.put(other, monday, "09:00", StatusPending)

	res, err := env.engine.CheckAvailability(context.Background(), doc, monday, "09:00", nil)
	require.NoError(t, err)
	assert.True(t, res.Available)
}

func TestCheckAvailability_LookupFailures(t *testing.T) {
	t.Run("schedule store", func(t *testing.T) {
		env := newTestEnv()
		env.schedules.err = errStoreDown
		_, err := env.engine.CheckAvailability(context.Background(), uuid.New(), monday, "09:00", nil)
		assert.ErrorIs(t, err, errStoreDown)
	})

	t.Run("appointment store", func(t *testing.T) {
		env := newTestEnv()
		doc := uuid.New()
		env.schedules.put(doc, Monday, true, "08:00", "12:00")
		env.appointments.err = errStoreDown
		_, err := env.engine.CheckAvailability(context.Background(), doc, monday, "09:00", nil)
		assert.ErrorIs(t, err, errStoreDown)
	})

	t.Run("malformed row", func(t *testing.T) {
		env := newTestEnv()
		doc := uuid.New()
		env.schedules.put(doc, Monday, true, "08:00", "")
		_, err := env.engine.CheckAvailability(context.Background(), doc, monday, "09:00", nil)
		assert.ErrorIs(t, err, ErrMalformedSchedule)
		assert.False(t, IsValidation(err))
	})
}

func TestCheckAvailability_BadInput(t *testing.T) {
	env := newTestEnv()
	_, err := env.engine.CheckAvailability(context.Background(), uuid.New(), "2024-13-01", "09:00", nil)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = env.engine.CheckAvailability(context.Background(), uuid.New(), monday, "9:00", nil)
	assert.ErrorIs(t, err, ErrInvalidTime)
	assert.True(t, IsValidation(err))
}

func TestGetAvailableTimeSlots_NoSchedule(t *testing.T) {
	env := newTestEnv()

	res, err := env.engine.GetAvailableTimeSlots(context.Background(), uuid.New(), monday)
	require.NoError(t, err)
	assert.Equal(t, monday, res.Date)
	assert.NotNil(t, res.TimeSlots)
	assert.Empty(t, res.TimeSlots)
	assert.True(t, res.IsFullyBooked)
	assert.Equal(t, 0, env.appointments.lists, "no booking lookup without a schedule")
}

func TestGetAvailableTimeSlots_MondayMorning(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "12:00")

	res, err := env.engine.GetAvailableTimeSlots(context.Background(), doc, monday)
	require.NoError(t, err)
	require.Len(t, res.TimeSlots, 12)
	assert.Equal(t, "08:00", res.TimeSlots[0].Time)
	assert.Equal(t, "11:40", res.TimeSlots[11].Time)
	for _, s := range res.TimeSlots {
		assert.True(t, s.Available, s.Time)
		assert.Empty(t, s.Reason)
	}
	assert.False(t, res.IsFullyBooked)
}

func TestGetAvailableTimeSlots_PendingBookingMarked(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "12:00")
	env.appointments.put(doc, monday, "09:00", StatusPending)
	env.appointments.put(doc, monday, "09:20", StatusCancelled)

	res, err := env.engine.GetAvailableTimeSlots(context.Background(), doc, monday)
	require.NoError(t, err)
	require.Len(t, res.TimeSlots, 12)

	var unavailable []TimeSlot
	for _, s := range res.TimeSlots {
		if !s.Available {
			unavailable = append(unavailable, s)
		}
	}
	require.Len(t, unavailable, 1)
	assert.Equal(t, TimeSlot{Time: "09:00", Available: false, Reason: "Already booked"}, unavailable[0])
	assert.False(t, res.IsFullyBooked)
}

func TestGetAvailableTimeSlots_FullyBooked(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "09:00")
	for _, clock := range []string{"08:00", "08:20", "08:40"} {
		env.appointments.put(doc, monday, clock, StatusScheduled)
	}

	res, err := env.engine.GetAvailableTimeSlots(context.Background(), doc, monday)
	require.NoError(t, err)
	assert.Len(t, res.TimeSlots, 3)
	assert.True(t, res.IsFullyBooked)
}

func TestGetAvailableTimeSlots_Idempotent(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "12:00")
	env.appointments.put(doc, monday, "10:20", StatusScheduled)

	first, err := env.engine.GetAvailableTimeSlots(context.Background(), doc, monday)
	require.NoError(t, err)
	second, err := env.engine.GetAvailableTimeSlots(context.Background(), doc, monday)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, env.appointments.lists, "results must not be cached")
}

func TestGetAvailableTimeSlots_AgreesWithCheck(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "13:30", "17:10")
	env.appointments.put(doc, monday, "14:10", StatusPending)
	env.appointments.put(doc, monday, "15:50", StatusScheduled)

	res, err := env.engine.GetAvailableTimeSlots(context.Background(), doc, monday)
	require.NoError(t, err)
	require.NotEmpty(t, res.TimeSlots)

	for _, s := range res.TimeSlots {
		chk, err := env.engine.CheckAvailability(context.Background(), doc, monday, s.Time, nil)
		require.NoError(t, err)
		assert.Equal(t, s.Available, chk.Available, s.Time)
	}
}

func TestGetAvailableTimeSlots_Interval(t *testing.T) {
	env := newTestEnv(WithSlotInterval(30))
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "10:00")

	res, err := env.engine.GetAvailableTimeSlots(context.Background(), doc, monday)
	require.NoError(t, err)

	var times []string
	for _, s := range res.TimeSlots {
		times = append(times, s.Time)
	}
	assert.Equal(t, []string{"08:00", "08:30", "09:00", "09:30"}, times)
	assert.Equal(t, 30, env.engine.SlotInterval())
}

func TestGetAvailableTimeSlots_LookupFailure(t *testing.T) {
	env := newTestEnv()
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "12:00")
	env.appointments.err = errStoreDown

	_, err := env.engine.GetAvailableTimeSlots(context.Background(), doc, monday)
	assert.True(t, errors.Is(err, errStoreDown))
}

func TestEngine_Observer(t *testing.T) {
	obs := &recordingObserver{}
	env := newTestEnv(WithObserver(obs))
	doc := uuid.New()
	env.schedules.put(doc, Monday, true, "08:00", "09:00")
	env.appointments.put(doc, monday, "08:00", StatusPending)

	_, _ = env.engine.CheckAvailability(context.Background(), doc, monday, "08:00", nil)
	_, _ = env.engine.CheckAvailability(context.Background(), doc, monday, "10:00", nil)
	_, _ = env.engine.CheckAvailability(context.Background(), doc, tuesday, "08:00", nil)
	_, _ = env.engine.GetAvailableTimeSlots(context.Background(), doc, monday)
	_, _ = env.engine.GetAvailableTimeSlots(context.Background(), doc, tuesday)
	env.schedules.err = errStoreDown
	_, _ = env.engine.CheckAvailability(context.Background(), doc, monday, "08:00", nil)

	assert.Equal(t, []string{
		"check:conflict",
		"check:out_of_hours",
		"check:not_scheduled",
		"slots:available",
		"slots:not_scheduled",
		"check:error",
	}, obs.calls)
}

func TestGenerateSlots(t *testing.T) {
	tests := []struct {
		name    string
		windows []Window
		step    int
		want    []string
	}{
		{"empty", nil, 20, []string{}},
		{"single window", []Window{{Start: 480, End: 540}}, 20, []string{"08:00", "08:20", "08:40"}},
		{"end not on step", []Window{{Start: 480, End: 530}}, 20, []string{"08:00", "08:20", "08:40"}},
		{"window shorter than step", []Window{{Start: 480, End: 490}}, 20, []string{"08:00"}},
		{"two windows out of order", []Window{{Start: 780, End: 820}, {Start: 480, End: 520}}, 20,
			[]string{"08:00", "08:20", "13:00", "13:20"}},
		{"overlapping windows", []Window{{Start: 480, End: 540}, {Start: 500, End: 560}}, 20,
			[]string{"08:00", "08:20", "08:40", "09:00"}},
		{"non-positive step uses default", []Window{{Start: 0, End: 40}}, 0, []string{"00:00", "00:20"}},
		{"late evening", []Window{{Start: 1380, End: 1440}}, 30, []string{"23:00", "23:30"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateSlots(tt.windows, tt.step))
		})
	}
}
