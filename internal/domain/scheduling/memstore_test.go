package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// -- In-memory repositories used across the package tests --

type scheduleKey struct {
	staff uuid.UUID
	day   DayOfWeek
}

type memScheduleRepo struct {
	mu    sync.Mutex
	rows  map[scheduleKey]*WeeklySchedule
	err   error
	finds int
}

func newMemScheduleRepo() *memScheduleRepo {
	return &memScheduleRepo{rows: make(map[scheduleKey]*WeeklySchedule)}
}

func (m *memScheduleRepo) FindSchedule(_ context.Context, staffID uuid.UUID, day DayOfWeek) (*WeeklySchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.rows[scheduleKey{staffID, day}]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memScheduleRepo) Upsert(_ context.Context, s *WeeklySchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	now := time.Now().UTC()
	if prev, ok := m.rows[scheduleKey{s.StaffID, s.Day}]; ok {
		s.CreatedAt = prev.CreatedAt
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	cp := *s
	m.rows[scheduleKey{s.StaffID, s.Day}] = &cp
	return nil
}

func (m *memScheduleRepo) DeleteByStaff(_ context.Context, staffID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.rows {
		if k.staff == staffID {
			delete(m.rows, k)
		}
	}
	return nil
}

func (m *memScheduleRepo) ListByStaff(_ context.Context, staffID uuid.UUID) ([]*WeeklySchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*WeeklySchedule{}
	for k, s := range m.rows {
		if k.staff == staffID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sortWeek(out)
	return out, nil
}

// put stores a schedule row directly, bypassing validation.
func (m *memScheduleRepo) put(staffID uuid.UUID, day DayOfWeek, available bool, start, end string) {
	s := &WeeklySchedule{StaffID: staffID, Day: day, IsAvailable: available}
	if start != "" {
		s.StartTime = &start
	}
	if end != "" {
		s.EndTime = &end
	}
	m.mu.Lock()
	m.rows[scheduleKey{staffID, day}] = s
	m.mu.Unlock()
}

type memAppointmentRepo struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*Appointment
	err   error
	lists int
}

func newMemAppointmentRepo() *memAppointmentRepo {
	return &memAppointmentRepo{rows: make(map[uuid.UUID]*Appointment)}
}

// slotHeld mimics the partial unique index on active appointments.
func (m *memAppointmentRepo) slotHeld(a *Appointment) bool {
	if !a.Status.Active() {
		return false
	}
	for _, o := range m.rows {
		if o.ID != a.ID && o.Status.Active() &&
			o.DoctorID == a.DoctorID && o.Date == a.Date && o.Time == a.Time {
			return true
		}
	}
	return false
}

func (m *memAppointmentRepo) FindConflicting(_ context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.rows {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Status.Active() && a.DoctorID == doctorID && a.Date == date && a.Time == clock {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memAppointmentRepo) ListForDoctorAndDate(_ context.Context, doctorID uuid.UUID, date string) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.err != nil {
		return nil, m.err
	}
	out := []*Appointment{}
	for _, a := range m.rows {
		if a.Status.Active() && a.DoctorID == doctorID && a.Date == date {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (m *memAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if m.slotHeld(a) {
		return ErrSlotTaken
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	if m.slotHeld(a) {
		return ErrSlotTaken
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memAppointmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memAppointmentRepo) List(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Appointment
	for _, a := range m.rows {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && (a.PatientID == nil || *a.PatientID != *f.PatientID) {
			continue
		}
		if f.Date != "" && a.Date != f.Date {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}
	// Newest first, matching the Postgres repository.
	sort.Slice(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date > all[j].Date
		}
		return all[i].Time > all[j].Time
	})
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// put stores an appointment directly and returns its id.
func (m *memAppointmentRepo) put(doctorID uuid.UUID, date, clock string, status AppointmentStatus) uuid.UUID {
	a := &Appointment{ID: uuid.New(), DoctorID: doctorID, Date: date, Time: clock, Status: status}
	m.mu.Lock()
	m.rows[a.ID] = a
	m.mu.Unlock()
	return a.ID
}

// fakeTx runs fn directly and records how often it was used.
type fakeTx struct {
	calls int
	err   error
}

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

var errStoreDown = errors.New("connection refused")

type testEnv struct {
	schedules    *memScheduleRepo
	appointments *memAppointmentRepo
	tx           *fakeTx
	engine       *Engine
	svc          *Service
}

func newTestEnv(opts ...EngineOption) *testEnv {
	env := &testEnv{
		schedules:    newMemScheduleRepo(),
		appointments: newMemAppointmentRepo(),
		tx:           &fakeTx{},
	}
	env.engine = NewEngine(env.schedules, env.appointments, opts...)
	env.svc = NewService(env.schedules, env.appointments, env.engine, env.tx)
	return env
}
