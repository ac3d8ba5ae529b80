package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	schedules    ScheduleRepository
	appointments AppointmentRepository
	engine       *Engine
	tx           Transactor
}

func NewService(sched ScheduleRepository, appt AppointmentRepository, engine *Engine, tx Transactor) *Service {
	return &Service{schedules: sched, appointments: appt, engine: engine, tx: tx}
}

// Engine exposes the availability engine backing this service.
func (s *Service) Engine() *Engine { return s.engine }

// -- Weekly schedule --

// SetDaySchedule creates or replaces the schedule of a single weekday.
func (s *Service) SetDaySchedule(ctx context.Context, sched *WeeklySchedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	return s.schedules.Upsert(ctx, sched)
}

// ReplaceWeek deletes every schedule row of staffID and recreates the week
// from days in one transaction. Days not listed end up without a row, which
// the engine treats as not available.
func (s *Service) ReplaceWeek(ctx context.Context, staffID uuid.UUID, days []*WeeklySchedule) ([]*WeeklySchedule, error) {
	if staffID == uuid.Nil {
		return nil, invalidf("staffId is required")
	}
	seen := make(map[DayOfWeek]bool, len(days))
	for _, d := range days {
		d.StaffID = staffID
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Day, err)
		}
		if seen[d.Day] {
			return nil, invalidf("day %s appears more than once", d.Day)
		}
		seen[d.Day] = true
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.schedules.DeleteByStaff(ctx, staffID); err != nil {
			return err
		}
		for _, d := range days {
			if err := s.schedules.Upsert(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := append([]*WeeklySchedule(nil), days...)
	sortWeek(out)
	return out, nil
}

func (s *Service) GetWeek(ctx context.Context, staffID uuid.UUID) ([]*WeeklySchedule, error) {
	return s.schedules.ListByStaff(ctx, staffID)
}

func (s *Service) GetDaySchedule(ctx context.Context, staffID uuid.UUID, day DayOfWeek) (*WeeklySchedule, error) {
	sched, err := s.schedules.FindSchedule(ctx, staffID, day)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, ErrScheduleNotFound
	}
	return sched, nil
}

// -- Appointment --

func validateSlotRequest(doctorID uuid.UUID, date, clock string) error {
	if doctorID == uuid.Nil {
		return invalidf("doctorId is required")
	}
	if _, err := ParseDate(date); err != nil {
		return err
	}
	if _, err := ParseClock(clock); err != nil {
		return err
	}
	return nil
}

// ensureBookable re-runs the availability check. It must be called inside
// the transaction that writes the appointment.
func (s *Service) ensureBookable(ctx context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) error {
	res, err := s.engine.CheckAvailability(ctx, doctorID, date, clock, excludeID)
	if err != nil {
		return err
	}
	if !res.Available {
		return &SlotUnavailableError{Reason: res.Reason}
	}
	return nil
}

// BookAppointment creates an appointment after re-checking the slot inside
// the same transaction. The partial unique index on active appointments
// catches any booking that races past the check; it surfaces as ErrSlotTaken.
func (s *Service) BookAppointment(ctx context.Context, a *Appointment) error {
	if err := validateSlotRequest(a.DoctorID, a.Date, a.Time); err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	if !a.Status.Active() {
		return invalidf("new appointments must be PENDING or SCHEDULED, got %s", a.Status)
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.ensureBookable(ctx, a.DoctorID, a.Date, a.Time, nil); err != nil {
			return err
		}
		return s.appointments.Create(ctx, a)
	})
}

// Reschedule moves an active appointment to a new date and time. The
// appointment itself is excluded from the conflict check.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date, clock string) (*Appointment, error) {
	var out *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := validateSlotRequest(a.DoctorID, date, clock); err != nil {
			return err
		}
		if !a.Status.Active() {
			return fmt.Errorf("%w: %s appointments cannot be rescheduled", ErrInvalidTransition, a.Status)
		}
		if err := s.ensureBookable(ctx, a.DoctorID, date, clock, &a.ID); err != nil {
			return err
		}
		a.Date, a.Time = date, clock
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// TransitionStatus applies one step of the appointment lifecycle:
// PENDING to SCHEDULED, either active status to CANCELLED, and SCHEDULED to
// COMPLETED.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, next AppointmentStatus) (*Appointment, error) {
	if !next.Valid() {
		return nil, invalidf("invalid appointment status: %s", next)
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, next)
	}
	a.Status = next
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.TransitionStatus(ctx, id, StatusCancelled)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Date != "" {
		if _, err := ParseDate(f.Date); err != nil {
			return nil, 0, err
		}
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, invalidf("invalid appointment status: %s", f.Status)
	}
	return s.appointments.List(ctx, f, limit, offset)
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return s.appointments.Delete(ctx, id)
}

// IsConflict reports errors that mean the requested slot or transition
// clashes with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotTaken) ||
		errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound reports missing schedule or appointment rows.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound) || errors.Is(err, ErrAppointmentNotFound)
}
