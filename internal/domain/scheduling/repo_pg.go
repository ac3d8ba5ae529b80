package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// activeSlotIndex is the partial unique index that allows one active
// appointment per doctor, date and time.
const activeSlotIndex = "appointment_active_slot_uniq"

func activeStatusValues() []string {
	out := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

// =========== Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const schedCols = `staff_id, day, is_available,
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
	created_at, updated_at`

func scanSchedule(row pgx.Row) (*WeeklySchedule, error) {
	var s WeeklySchedule
	var day string
	if err := row.Scan(&s.StaffID, &day, &s.IsAvailable, &s.StartTime, &s.EndTime,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Day = DayOfWeek(day)
	return &s, nil
}

func (r *scheduleRepoPG) FindSchedule(ctx context.Context, staffID uuid.UUID, day DayOfWeek) (*WeeklySchedule, error) {
	s, err := scanSchedule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+schedCols+` FROM weekly_schedule WHERE staff_id = $1 AND day = $2`,
		staffID, string(day)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select weekly_schedule: %w", err)
	}
	return s, nil
}

func (r *scheduleRepoPG) Upsert(ctx context.Context, s *WeeklySchedule) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO weekly_schedule (staff_id, day, is_available, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (staff_id, day) DO UPDATE SET
			is_available = EXCLUDED.is_available,
			start_time   = EXCLUDED.start_time,
			end_time     = EXCLUDED.end_time,
			updated_at   = NOW()
		RETURNING created_at, updated_at`,
		s.StaffID, string(s.Day), s.IsAvailable, s.StartTime, s.EndTime,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert weekly_schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepoPG) DeleteByStaff(ctx context.Context, staffID uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM weekly_schedule WHERE staff_id = $1`, staffID); err != nil {
		return fmt.Errorf("delete weekly_schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepoPG) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*WeeklySchedule, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+schedCols+` FROM weekly_schedule WHERE staff_id = $1`, staffID)
	if err != nil {
		return nil, fmt.Errorf("select weekly_schedule: %w", err)
	}
	defer rows.Close()

	items := []*WeeklySchedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortWeek(items)
	return items, nil
}

func sortWeek(items []*WeeklySchedule) {
	sort.Slice(items, func(i, j int) bool { return items[i].Day.Index() < items[j].Day.Index() })
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

var apptCols = []string{
	"id", "doctor_id", "patient_id",
	"to_char(appt_date, 'YYYY-MM-DD')", "to_char(appt_time, 'HH24:MI')",
	"status", "room_id", "facility_id", "notes", "created_at", "updated_at",
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &a.Time,
		&status, &a.RoomID, &a.FacilityID, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func (r *appointmentRepoPG) queryAppointments(ctx context.Context, q sq.SelectBuilder) ([]*Appointment, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build appointment query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select appointment: %w", err)
	}
	defer rows.Close()

	items := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) FindConflicting(ctx context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) (*Appointment, error) {
	q := psql.Select(apptCols...).From("appointment").
		Where(sq.Eq{
			"doctor_id": doctorID.String(),
			"appt_date": date,
			"appt_time": clock,
			"status":    activeStatusValues(),
		}).
		Limit(1)
	if excludeID != nil {
		q = q.Where(sq.NotEq{"id": excludeID.String()})
	}

	items, err := r.queryAppointments(ctx, q)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (r *appointmentRepoPG) ListForDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date string) ([]*Appointment, error) {
	return r.queryAppointments(ctx, psql.Select(apptCols...).From("appointment").
		Where(sq.Eq{
			"doctor_id": doctorID.String(),
			"appt_date": date,
			"status":    activeStatusValues(),
		}).
		OrderBy("appt_time"))
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	query, args, err := psql.Insert("appointment").
		Columns("id", "doctor_id", "patient_id", "appt_date", "appt_time",
			"status", "room_id", "facility_id", "notes").
		Values(a.ID, a.DoctorID, a.PatientID, a.Date, a.Time,
			string(a.Status), a.RoomID, a.FacilityID, a.Notes).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert appointment: %w", err)
	}

	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err, activeSlotIndex) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query, args, err := psql.Select(apptCols...).From("appointment").Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build appointment query: %w", err)
	}
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select appointment: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	query, args, err := psql.Update("appointment").
		SetMap(map[string]interface{}{
			"appt_date":   a.Date,
			"appt_time":   a.Time,
			"status":      string(a.Status),
			"patient_id":  a.PatientID,
			"room_id":     a.RoomID,
			"facility_id": a.FacilityID,
			"notes":       a.Notes,
			"updated_at":  sq.Expr("NOW()"),
		}).
		Where(sq.Eq{"id": a.ID.String()}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update appointment: %w", err)
	}

	err = r.conn(ctx).QueryRow(ctx, query, args...).Scan(&a.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrAppointmentNotFound
	case db.IsUniqueViolation(err, activeSlotIndex):
		return ErrSlotTaken
	case err != nil:
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func appointmentFilter(f AppointmentFilter) sq.And {
	cond := sq.And{}
	if f.DoctorID != nil {
		cond = append(cond, sq.Eq{"doctor_id": f.DoctorID.String()})
	}
	if f.PatientID != nil {
		cond = append(cond, sq.Eq{"patient_id": f.PatientID.String()})
	}
	if f.Date != "" {
		cond = append(cond, sq.Eq{"appt_date": f.Date})
	}
	if f.Status != "" {
		cond = append(cond, sq.Eq{"status": string(f.Status)})
	}
	return cond
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	cond := appointmentFilter(f)

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("appointment").Where(cond).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointment: %w", err)
	}

	items, err := r.queryAppointments(ctx, psql.Select(apptCols...).From("appointment").
		Where(cond).
		OrderBy("appt_date DESC", "appt_time DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)))
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
