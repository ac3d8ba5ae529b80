package scheduling

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

const (
	ReasonNotScheduled = "Doctor is not available on this day"
	ReasonBooked       = "This time slot is already booked"
	ReasonAvailable    = "Time slot is available"
	ReasonSlotBooked   = "Already booked"
)

// OutOfHoursReason names the schedule window a requested time fell outside of.
func OutOfHoursReason(start, end string) string {
	return fmt.Sprintf("Doctor is only available between %s and %s", start, end)
}

// AvailabilityObserver receives one outcome per engine call. Failed lookups
// are reported as "error".
type AvailabilityObserver interface {
	ObserveAvailability(operation, outcome string)
}

// Engine answers slot availability questions from the current schedule and
// booking state. It holds no state of its own and caches nothing.
type Engine struct {
	schedules    ScheduleStore
	appointments AppointmentStore
	interval     int
	observer     AvailabilityObserver
}

type EngineOption func(*Engine)

// WithSlotInterval sets the spacing of generated slots in minutes.
// Non-positive values keep DefaultSlotInterval.
func WithSlotInterval(minutes int) EngineOption {
	return func(e *Engine) {
		if minutes > 0 {
			e.interval = minutes
		}
	}
}

func WithObserver(o AvailabilityObserver) EngineOption {
	return func(e *Engine) { e.observer = o }
}

func NewEngine(schedules ScheduleStore, appointments AppointmentStore, opts ...EngineOption) *Engine {
	e := &Engine{schedules: schedules, appointments: appointments, interval: DefaultSlotInterval}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SlotInterval returns the configured slot spacing in minutes.
func (e *Engine) SlotInterval() int { return e.interval }

func (e *Engine) observe(operation, outcome string) {
	if e.observer != nil {
		e.observer.ObserveAvailability(operation, outcome)
	}
}

// openSchedule returns the doctor's schedule for the weekday of date, or nil
// when the doctor does not work that day.
func (e *Engine) openSchedule(ctx context.Context, doctorID uuid.UUID, date string) (*WeeklySchedule, Window, error) {
	day, err := WeekdayOf(date)
	if err != nil {
		return nil, Window{}, err
	}
	sched, err := e.schedules.FindSchedule(ctx, doctorID, day)
	if err != nil {
		return nil, Window{}, fmt.Errorf("find schedule for %s on %s: %w", doctorID, day, err)
	}
	if sched == nil || !sched.IsAvailable {
		return nil, Window{}, nil
	}
	win, err := sched.Window()
	if err != nil {
		return nil, Window{}, err
	}
	return sched, win, nil
}

// CheckAvailability reports whether doctorID can be booked at clock on date.
// excludeID, when set, is ignored as a conflict so an appointment being
// edited does not collide with itself. Only lookup failures return an error;
// every "no" is a value.
func (e *Engine) CheckAvailability(ctx context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) (Availability, error) {
	res, err := e.checkAvailability(ctx, doctorID, date, clock, excludeID)
	if err != nil {
		e.observe("check", "error")
		return Availability{}, err
	}
	e.observe("check", string(res.Outcome))
	return res, nil
}

func (e *Engine) checkAvailability(ctx context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) (Availability, error) {
	minute, err := ParseClock(clock)
	if err != nil {
		return Availability{}, err
	}

	sched, win, err := e.openSchedule(ctx, doctorID, date)
	if err != nil {
		return Availability{}, err
	}
	if sched == nil {
		return Availability{Reason: ReasonNotScheduled, Outcome: OutcomeNotScheduled}, nil
	}

	if !win.Contains(minute) {
		return Availability{
			Reason:  OutOfHoursReason(*sched.StartTime, *sched.EndTime),
			Outcome: OutcomeOutOfHours,
		}, nil
	}

	conflict, err := e.appointments.FindConflicting(ctx, doctorID, date, clock, excludeID)
	if err != nil {
		return Availability{}, fmt.Errorf("find conflicting appointment: %w", err)
	}
	if conflict != nil {
		return Availability{Reason: ReasonBooked, Outcome: OutcomeConflict}, nil
	}

	return Availability{Available: true, Reason: ReasonAvailable, Outcome: OutcomeAvailable}, nil
}

// GetAvailableTimeSlots lists every slot of the doctor's working hours on
// date, marking the ones held by an active appointment.
func (e *Engine) GetAvailableTimeSlots(ctx context.Context, doctorID uuid.UUID, date string) (DaySlots, error) {
	res, err := e.getAvailableTimeSlots(ctx, doctorID, date)
	if err != nil {
		e.observe("slots", "error")
		return DaySlots{}, err
	}
	switch {
	case len(res.TimeSlots) == 0:
		e.observe("slots", string(OutcomeNotScheduled))
	case res.IsFullyBooked:
		e.observe("slots", string(OutcomeConflict))
	default:
		e.observe("slots", string(OutcomeAvailable))
	}
	return res, nil
}

func (e *Engine) getAvailableTimeSlots(ctx context.Context, doctorID uuid.UUID, date string) (DaySlots, error) {
	sched, win, err := e.openSchedule(ctx, doctorID, date)
	if err != nil {
		return DaySlots{}, err
	}
	if sched == nil {
		return DaySlots{Date: date, TimeSlots: []TimeSlot{}, IsFullyBooked: true}, nil
	}

	appts, err := e.appointments.ListForDoctorAndDate(ctx, doctorID, date)
	if err != nil {
		return DaySlots{}, fmt.Errorf("list appointments: %w", err)
	}
	booked := make(map[string]bool, len(appts))
	for _, a := range appts {
		if a.Status.Active() {
			booked[a.Time] = true
		}
	}

	candidates := GenerateSlots([]Window{win}, e.interval)
	slots := make([]TimeSlot, 0, len(candidates))
	fullyBooked := true
	for _, t := range candidates {
		if booked[t] {
			slots = append(slots, TimeSlot{Time: t, Available: false, Reason: ReasonSlotBooked})
			continue
		}
		slots = append(slots, TimeSlot{Time: t, Available: true})
		fullyBooked = false
	}

	return DaySlots{Date: date, TimeSlots: slots, IsFullyBooked: fullyBooked}, nil
}

// GenerateSlots returns evenly spaced "HH:MM" start times inside the given
// open windows, stepping by step minutes from each window's start and
// stopping strictly before its end. Output is ascending and free of
// duplicates even when windows overlap.
func GenerateSlots(windows []Window, step int) []string {
	if step <= 0 {
		step = DefaultSlotInterval
	}

	ordered := make([]Window, len(windows))
	copy(ordered, windows)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	slots := []string{}
	last := -1
	for _, w := range ordered {
		for m := w.Start; m < w.End; m += step {
			if m <= last {
				continue
			}
			slots = append(slots, FormatClock(m))
			last = m
		}
	}
	return slots
}
