package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDate       = errors.New("date must be in YYYY-MM-DD format")
	ErrInvalidTime       = errors.New("time must be in HH:MM 24-hour format")
	ErrInvalidDay        = errors.New("day must be one of MONDAY..SUNDAY")
	ErrMalformedSchedule = errors.New("malformed schedule row")

	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("time slot is already booked")
	ErrSlotUnavailable     = errors.New("time slot is not available")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// ValidationError is a caller mistake; handlers answer it with 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalidf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err was caused by bad input rather than
// by state or infrastructure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidTime) ||
		errors.Is(err, ErrInvalidDay)
}

// SlotUnavailableError carries the availability reason that blocked a booking.
type SlotUnavailableError struct {
	Reason string
}

func (e *SlotUnavailableError) Error() string { return e.Reason }

func (e *SlotUnavailableError) Is(target error) bool { return target == ErrSlotUnavailable }
