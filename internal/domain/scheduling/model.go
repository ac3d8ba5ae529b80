package scheduling

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DateLayout is the calendar date format used on the wire and in storage.
	DateLayout = "2006-01-02"
	// ClockLayout is the 24-hour wall-clock format of schedule bounds and slots.
	ClockLayout = "15:04"

	DefaultSlotInterval = 20
)

// -- Day of week --

type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

// Week lists the days in display order.
var Week = []DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func (d DayOfWeek) Valid() bool {
	switch d {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return true
	}
	return false
}

// Index returns the position of d in Week, or -1.
func (d DayOfWeek) Index() int {
	for i, w := range Week {
		if w == d {
			return i
		}
	}
	return -1
}

// ParseDayOfWeek accepts any casing ("monday", "Monday", "MONDAY").
func ParseDayOfWeek(s string) (DayOfWeek, error) {
	d := DayOfWeek(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return d, nil
}

// WeekdayOf returns the upper-case English weekday of a YYYY-MM-DD date.
func WeekdayOf(date string) (DayOfWeek, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return DayOfWeek(strings.ToUpper(t.Weekday().String())), nil
}

// ParseDate parses a strict YYYY-MM-DD date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// -- Wall clock --

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ValidClock reports whether s is a zero-padded 24-hour "HH:MM".
func ValidClock(s string) bool {
	return clockPattern.MatchString(s)
}

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(s string) (int, error) {
	if !ValidClock(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as zero-padded "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Window is a half-open [Start, End) range in minutes since midnight.
type Window struct {
	Start int
	End   int
}

func (w Window) Contains(minute int) bool {
	return minute >= w.Start && minute < w.End
}

// -- Weekly schedule --

// WeeklySchedule is one staff member's availability for one weekday.
// StartTime/EndTime are nil when the day is off.
type WeeklySchedule struct {
	StaffID     uuid.UUID `json:"staffId"`
	Day         DayOfWeek `json:"day"`
	IsAvailable bool      `json:"isAvailable"`
	StartTime   *string   `json:"startTime,omitempty"`
	EndTime     *string   `json:"endTime,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate enforces that an available day carries an ordered pair of clock
// times. Unavailable days may omit them.
func (s *WeeklySchedule) Validate() error {
	if s.StaffID == uuid.Nil {
		return invalidf("staffId is required")
	}
	if !s.Day.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDay, s.Day)
	}
	if !s.IsAvailable {
		for _, v := range []*string{s.StartTime, s.EndTime} {
			if v != nil && !ValidClock(*v) {
				return fmt.Errorf("%w: %q", ErrInvalidTime, *v)
			}
		}
		return nil
	}
	if s.StartTime == nil || s.EndTime == nil {
		return invalidf("startTime and endTime are required when isAvailable is true")
	}
	start, err := ParseClock(*s.StartTime)
	if err != nil {
		return err
	}
	end, err := ParseClock(*s.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return invalidf("startTime %s must be before endTime %s", *s.StartTime, *s.EndTime)
	}
	return nil
}

// Window resolves the open hours of an available day. A row marked
// available without parseable bounds yields ErrMalformedSchedule.
func (s *WeeklySchedule) Window() (Window, error) {
	if s.StartTime == nil || s.EndTime == nil {
		return Window{}, fmt.Errorf("%w: %s %s has no start/end time", ErrMalformedSchedule, s.StaffID, s.Day)
	}
	start, err := ParseClock(*s.StartTime)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrMalformedSchedule, err)
	}
	end, err := ParseClock(*s.EndTime)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrMalformedSchedule, err)
	}
	if start >= end {
		return Window{}, fmt.Errorf("%w: start %s not before end %s", ErrMalformedSchedule, *s.StartTime, *s.EndTime)
	}
	return Window{Start: start, End: end}, nil
}

// -- Appointment --

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusCompleted AppointmentStatus = "COMPLETED"
)

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusScheduled}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Active reports whether an appointment in this status blocks its slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusScheduled
}

var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusCancelled, StatusCompleted},
}

// CanTransition reports whether an appointment may move from s to next.
// CANCELLED and COMPLETED are terminal.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID         uuid.UUID         `json:"id"`
	DoctorID   uuid.UUID         `json:"doctorId"`
	PatientID  *uuid.UUID        `json:"patientId,omitempty"`
	Date       string            `json:"date"`
	Time       string            `json:"time"`
	Status     AppointmentStatus `json:"status"`
	RoomID     *uuid.UUID        `json:"roomId,omitempty"`
	FacilityID *uuid.UUID        `json:"facilityId,omitempty"`
	Notes      *string           `json:"notes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// -- Derived results --

// TimeSlot is one candidate slot of a day. Never persisted.
type TimeSlot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Outcome classifies an availability answer for metrics and logging.
type Outcome string

const (
	OutcomeAvailable    Outcome = "available"
	OutcomeNotScheduled Outcome = "not_scheduled"
	OutcomeOutOfHours   Outcome = "out_of_hours"
	OutcomeConflict     Outcome = "conflict"
)

// Availability is the answer to a point check.
type Availability struct {
	Available bool    `json:"available"`
	Reason    string  `json:"reason,omitempty"`
	Outcome   Outcome `json:"-"`
}

// DaySlots is the slot listing for one doctor and date.
type DaySlots struct {
	Date          string     `json:"date"`
	TimeSlots     []TimeSlot `json:"timeSlots"`
	IsFullyBooked bool       `json:"isFullyBooked"`
}
