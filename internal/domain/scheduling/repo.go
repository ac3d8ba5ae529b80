package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// ScheduleStore is the schedule lookup the availability engine reads.
// FindSchedule returns (nil, nil) when no row exists for the staff member and day.
type ScheduleStore interface {
	FindSchedule(ctx context.Context, staffID uuid.UUID, day DayOfWeek) (*WeeklySchedule, error)
}

// AppointmentStore is the booking lookup the availability engine reads.
// Both methods consider active (PENDING, SCHEDULED) appointments only.
type AppointmentStore interface {
	FindConflicting(ctx context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) (*Appointment, error)
	ListForDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date string) ([]*Appointment, error)
}

type ScheduleRepository interface {
	ScheduleStore
	Upsert(ctx context.Context, s *WeeklySchedule) error
	DeleteByStaff(ctx context.Context, staffID uuid.UUID) error
	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*WeeklySchedule, error)
}

// AppointmentFilter narrows List. Zero values are ignored.
type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Date      string
	Status    AppointmentStatus
}

type AppointmentRepository interface {
	AppointmentStore
	// Create and Update return ErrSlotTaken when another active appointment
	// already holds the same doctor, date and time.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
