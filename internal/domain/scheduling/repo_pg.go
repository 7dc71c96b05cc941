package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/internal/platform/db"
)

// notFound translates pgx.ErrNoRows into apperr.NotFound.
func notFound(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	return err
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool db.Querier }

func NewAppointmentRepoPG(pool db.Querier) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `id, patient_id, doctor_id, appointment_type_id, start_datetime, end_datetime,
	status, reason, notes, is_virtual, meeting_link, original_appointment_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentTypeID, &a.Start, &a.End,
		&status, &a.Reason, &a.Notes, &a.IsVirtual, &a.MeetingLink, &a.OriginalAppointmentID,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
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

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, appointment_type_id, start_datetime, end_datetime,
			status, reason, notes, is_virtual, meeting_link, original_appointment_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentTypeID, a.Start, a.End,
		string(a.Status), a.Reason, a.Notes, a.IsVirtual, a.MeetingLink, a.OriginalAppointmentID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "appointment")
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET patient_id=$2, doctor_id=$3, appointment_type_id=$4, start_datetime=$5,
			end_datetime=$6, status=$7, reason=$8, notes=$9, is_virtual=$10, meeting_link=$11,
			original_appointment_id=$12, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentTypeID, a.Start, a.End,
		string(a.Status), a.Reason, a.Notes, a.IsVirtual, a.MeetingLink, a.OriginalAppointmentID,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return notFound(err, "appointment")
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *appointmentRepoPG) FindOverlapping(ctx context.Context, q OverlapQuery) ([]*Appointment, error) {
	w := &db.Where{}
	if q.DoctorID != nil {
		w.Add("doctor_id = ?", *q.DoctorID)
	}
	if q.PatientID != nil {
		w.Add("patient_id = ?", *q.PatientID)
	}
	w.Add("start_datetime < ?", q.End)
	w.Add("end_datetime > ?", q.Start)
	if q.Excluding != nil {
		w.Add("id <> ?", *q.Excluding)
	}
	if len(q.Statuses) > 0 {
		w.Add("status = ANY(?)", statusStrings(q.Statuses))
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment`+w.SQL()+` ORDER BY start_datetime`, w.Args...)
	if err != nil {
		return nil, fmt.Errorf("query overlapping appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) FindStartingBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time, statuses []Status) ([]*Appointment, error) {
	w := &db.Where{}
	w.Add("doctor_id = ?", doctorID)
	w.Add("start_datetime >= ?", from)
	w.Add("start_datetime < ?", to)
	if len(statuses) > 0 {
		w.Add("status = ANY(?)", statusStrings(statuses))
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment`+w.SQL()+` ORDER BY start_datetime`, w.Args...)
	if err != nil {
		return nil, fmt.Errorf("query day appointments: %w", err)
	}
	return collectAppointments(rows)
}

var terminalStatuses = []string{
	string(StatusCompleted), string(StatusCancelled), string(StatusNoShow), string(StatusRescheduled),
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	w := &db.Where{}
	if f.DoctorID != nil {
		w.Add("doctor_id = ?", *f.DoctorID)
	}
	if f.PatientID != nil {
		w.Add("patient_id = ?", *f.PatientID)
	}
	if len(f.Statuses) > 0 {
		w.Add("status = ANY(?)", statusStrings(f.Statuses))
	}
	if f.StartFrom != nil {
		w.Add("start_datetime >= ?", *f.StartFrom)
	}
	if f.StartBefore != nil {
		w.Add("start_datetime < ?", *f.StartBefore)
	}
	if f.Upcoming {
		w.Add("start_datetime >= ? AND status = ANY(?)", f.Now,
			[]string{string(StatusScheduled), string(StatusConfirmed)})
	}
	if f.Past {
		w.Add("(start_datetime < ? OR status = ANY(?))", f.Now, terminalStatuses)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+w.SQL(), w.Args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	page, args := w.Page(limit, offset)
	query := `SELECT ` + apptCols + ` FROM appointment` + w.SQL() + ` ORDER BY start_datetime` + page

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	items, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// =========== Appointment Type Repository ===========

type appointmentTypeRepoPG struct{ pool db.Querier }

func NewAppointmentTypeRepoPG(pool db.Querier) AppointmentTypeRepository {
	return &appointmentTypeRepoPG{pool: pool}
}

func (r *appointmentTypeRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const typeCols = `id, name, description, duration_minutes, color_hex, created_at, updated_at`

func scanType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.DurationMinutes, &t.ColorHex, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *appointmentTypeRepoPG) Create(ctx context.Context, t *AppointmentType) error {
	t.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_type (id, name, description, duration_minutes, color_hex)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Description, t.DurationMinutes, t.ColorHex,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment type: %w", err)
	}
	return nil
}

func (r *appointmentTypeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	t, err := scanType(r.conn(ctx).QueryRow(ctx, `SELECT `+typeCols+` FROM appointment_type WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "appointment type")
	}
	return t, nil
}

func (r *appointmentTypeRepoPG) Update(ctx context.Context, t *AppointmentType) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment_type SET name=$2, description=$3, duration_minutes=$4, color_hex=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Description, t.DurationMinutes, t.ColorHex,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return notFound(err, "appointment type")
}

func (r *appointmentTypeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment_type WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment type")
	}
	return nil
}

func (r *appointmentTypeRepoPG) List(ctx context.Context, limit, offset int) ([]*AppointmentType, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment_type`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointment types: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+typeCols+` FROM appointment_type ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointment types: %w", err)
	}
	defer rows.Close()
	items := []*AppointmentType{}
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// =========== Reminder Repository ===========

type reminderRepoPG struct{ pool db.Querier }

func NewReminderRepoPG(pool db.Querier) ReminderRepository {
	return &reminderRepoPG{pool: pool}
}

func (r *reminderRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const reminderCols = `r.id, r.appointment_id, r.reminder_type, r.scheduled_time, r.message, r.sent,
	r.sent_time, r.delivered_channels, r.attempts, r.last_error, r.next_attempt_at, r.discarded,
	r.created_at, r.updated_at`

func scanReminder(row pgx.Row) (*Reminder, error) {
	var rm Reminder
	var typ string
	err := row.Scan(&rm.ID, &rm.AppointmentID, &typ, &rm.ScheduledTime, &rm.Message, &rm.Sent,
		&rm.SentTime, &rm.DeliveredChannels, &rm.Attempts, &rm.LastError, &rm.NextAttemptAt, &rm.Discarded,
		&rm.CreatedAt, &rm.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rm.Type = ReminderType(typ)
	return &rm, nil
}

func collectReminders(rows pgx.Rows) ([]*Reminder, error) {
	defer rows.Close()
	items := []*Reminder{}
	for rows.Next() {
		rm, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rm)
	}
	return items, rows.Err()
}

func (r *reminderRepoPG) Create(ctx context.Context, rm *Reminder) error {
	rm.ID = uuid.New()
	if rm.Type == "" {
		rm.Type = ReminderEmail
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_reminder (id, appointment_id, reminder_type, scheduled_time, message, sent, sent_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		rm.ID, rm.AppointmentID, string(rm.Type), rm.ScheduledTime, rm.Message, rm.Sent, rm.SentTime,
	).Scan(&rm.CreatedAt, &rm.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

func (r *reminderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	rm, err := scanReminder(r.conn(ctx).QueryRow(ctx, `SELECT `+reminderCols+` FROM appointment_reminder r WHERE r.id = $1`, id))
	if err != nil {
		return nil, notFound(err, "appointment reminder")
	}
	return rm, nil
}

func (r *reminderRepoPG) Update(ctx context.Context, rm *Reminder) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment_reminder SET reminder_type=$2, scheduled_time=$3, message=$4,
			attempts=0, last_error='', next_attempt_at=NULL, discarded=FALSE, updated_at=NOW()
		WHERE id = $1 AND sent = FALSE
		RETURNING updated_at`,
		rm.ID, string(rm.Type), rm.ScheduledTime, rm.Message,
	).Scan(&rm.UpdatedAt)
	return notFound(err, "appointment reminder")
}

func (r *reminderRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment_reminder WHERE id = $1 AND sent = FALSE`, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment reminder")
	}
	return nil
}

func (r *reminderRepoPG) List(ctx context.Context, f ReminderFilter, limit, offset int) ([]*Reminder, int, error) {
	w := &db.Where{}
	if f.AppointmentID != nil {
		w.Add("r.appointment_id = ?", *f.AppointmentID)
	}
	if f.DoctorID != nil {
		w.Add("a.doctor_id = ?", *f.DoctorID)
	}
	if f.PatientID != nil {
		w.Add("a.patient_id = ?", *f.PatientID)
	}
	if f.Sent != nil {
		w.Add("r.sent = ?", *f.Sent)
	}
	from := ` FROM appointment_reminder r JOIN appointment a ON a.id = r.appointment_id`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from+w.SQL(), w.Args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reminders: %w", err)
	}
	page, args := w.Page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reminderCols+from+w.SQL()+` ORDER BY r.scheduled_time`+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reminders: %w", err)
	}
	items, err := collectReminders(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *reminderRepoPG) ListDue(ctx context.Context, now time.Time, limit int) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reminderCols+` FROM appointment_reminder r
		JOIN appointment a ON a.id = r.appointment_id
		WHERE r.sent = FALSE AND r.discarded = FALSE AND r.scheduled_time <= $1
			AND (r.next_attempt_at IS NULL OR r.next_attempt_at <= $1)
			AND a.status = ANY($2)
		ORDER BY r.scheduled_time LIMIT $3`, now, statusStrings(ActiveStatuses), limit)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return collectReminders(rows)
}

func (r *reminderRepoPG) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment_reminder SET sent = TRUE, sent_time = $2, next_attempt_at = NULL, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

func (r *reminderRepoPG) RecordFailure(ctx context.Context, id uuid.UUID, f DeliveryFailure) error {
	delivered := f.Delivered
	if delivered == nil {
		delivered = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment_reminder
		SET delivered_channels = $2, attempts = attempts + 1, last_error = $3,
			next_attempt_at = $4, discarded = $5, updated_at = NOW()
		WHERE id = $1`,
		id, delivered, f.Error, f.RetryAt, f.RetryAt == nil)
	return err
}

func (r *reminderRepoPG) DeleteUnsent(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM appointment_reminder WHERE appointment_id = $1 AND sent = FALSE`, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("delete pending reminders: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool db.Querier }

func NewAvailabilityRepoPG(pool db.Querier) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const availCols = `id, doctor_id, day_of_week, start_time, end_time, created_at, updated_at`

func toPGTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: time.Duration(t).Microseconds(), Valid: true}
}

func fromPGTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(time.Duration(t.Microseconds) * time.Microsecond)
}

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability
	var start, end pgtype.Time
	if err := row.Scan(&a.ID, &a.DoctorID, &a.DayOfWeek, &start, &end, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.StartTime, a.EndTime = fromPGTime(start), fromPGTime(end)
	return &a, nil
}

func collectAvailability(rows pgx.Rows) ([]*Availability, error) {
	defer rows.Close()
	items := []*Availability{}
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *availabilityRepoPG) Create(ctx context.Context, a *Availability) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_availability (id, doctor_id, day_of_week, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.DayOfWeek, toPGTime(a.StartTime), toPGTime(a.EndTime),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert availability: %w", err)
	}
	return nil
}

func (r *availabilityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	a, err := scanAvailability(r.conn(ctx).QueryRow(ctx, `SELECT `+availCols+` FROM doctor_availability WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "availability")
	}
	return a, nil
}

func (r *availabilityRepoPG) Update(ctx context.Context, a *Availability) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor_availability SET day_of_week=$2, start_time=$3, end_time=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.DayOfWeek, toPGTime(a.StartTime), toPGTime(a.EndTime),
	).Scan(&a.UpdatedAt)
	return notFound(err, "availability")
}

func (r *availabilityRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_availability WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("availability")
	}
	return nil
}

func (r *availabilityRepoPG) FindAvailability(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]*Availability, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+availCols+` FROM doctor_availability
		WHERE doctor_id = $1 AND day_of_week = $2 ORDER BY start_time`, doctorID, dayOfWeek)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	return collectAvailability(rows)
}

func (r *availabilityRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+availCols+` FROM doctor_availability
		WHERE doctor_id = $1 ORDER BY day_of_week, start_time`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return collectAvailability(rows)
}

// =========== Time Off Repository ===========

type timeOffRepoPG struct{ pool db.Querier }

func NewTimeOffRepoPG(pool db.Querier) TimeOffRepository {
	return &timeOffRepoPG{pool: pool}
}

func (r *timeOffRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const timeOffCols = `id, doctor_id, start_datetime, end_datetime, reason, created_at, updated_at`

func scanTimeOff(row pgx.Row) (*TimeOff, error) {
	var t TimeOff
	if err := row.Scan(&t.ID, &t.DoctorID, &t.Start, &t.End, &t.Reason, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTimeOff(rows pgx.Rows) ([]*TimeOff, error) {
	defer rows.Close()
	items := []*TimeOff{}
	for rows.Next() {
		t, err := scanTimeOff(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *timeOffRepoPG) Create(ctx context.Context, t *TimeOff) error {
	t.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_time_off (id, doctor_id, start_datetime, end_datetime, reason)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		t.ID, t.DoctorID, t.Start, t.End, t.Reason,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert time off: %w", err)
	}
	return nil
}

func (r *timeOffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TimeOff, error) {
	t, err := scanTimeOff(r.conn(ctx).QueryRow(ctx, `SELECT `+timeOffCols+` FROM doctor_time_off WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "time off")
	}
	return t, nil
}

func (r *timeOffRepoPG) Update(ctx context.Context, t *TimeOff) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor_time_off SET start_datetime=$2, end_datetime=$3, reason=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Start, t.End, t.Reason,
	).Scan(&t.UpdatedAt)
	return notFound(err, "time off")
}

func (r *timeOffRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_time_off WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete time off: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("time off")
	}
	return nil
}

// FindTimeOff uses the closed test so intervals touching [from, to] are
// returned.
func (r *timeOffRepoPG) FindTimeOff(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*TimeOff, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+timeOffCols+` FROM doctor_time_off
		WHERE doctor_id = $1 AND start_datetime <= $3 AND end_datetime >= $2
		ORDER BY start_datetime`, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query time off: %w", err)
	}
	return collectTimeOff(rows)
}

func (r *timeOffRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, startingAfter *time.Time) ([]*TimeOff, error) {
	query := `SELECT ` + timeOffCols + ` FROM doctor_time_off WHERE doctor_id = $1`
	args := []interface{}{doctorID}
	if startingAfter != nil {
		query += ` AND start_datetime > $2`
		args = append(args, *startingAfter)
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY start_datetime`, args...)
	if err != nil {
		return nil, fmt.Errorf("list time off: %w", err)
	}
	return collectTimeOff(rows)
}

// =========== Directory ===========

type directoryPG struct{ pool db.Querier }

// NewDirectoryPG resolves participants from the doctor and patient profile
// tables.
func NewDirectoryPG(pool db.Querier) Directory {
	return &directoryPG{pool: pool}
}

func (r *directoryPG) Doctor(ctx context.Context, id uuid.UUID) (*Participant, error) {
	var p Participant
	var first, last string
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, user_id, first_name, last_name, email, phone FROM doctor_profile WHERE id = $1`, id,
	).Scan(&p.ID, &p.UserID, &first, &last, &p.Email, &p.Phone)
	if err != nil {
		return nil, notFound(err, "doctor")
	}
	p.DisplayName = strings.TrimSpace("Dr. " + strings.TrimSpace(first+" "+last))
	return &p, nil
}

func (r *directoryPG) Patient(ctx context.Context, id uuid.UUID) (*Participant, error) {
	var p Participant
	var first, last string
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, user_id, first_name, last_name, email, phone FROM patient_profile WHERE id = $1`, id,
	).Scan(&p.ID, &p.UserID, &first, &last, &p.Email, &p.Phone)
	if err != nil {
		return nil, notFound(err, "patient")
	}
	p.DisplayName = strings.TrimSpace(first + " " + last)
	return &p, nil
}

// NewProfileResolverPG looks up the doctor and patient profiles a user owns.
func NewProfileResolverPG(pool db.Querier) auth.ProfileResolver {
	return &directoryPG{pool: pool}
}

func (r *directoryPG) ResolveProfiles(ctx context.Context, userID string) (doctorID, patientID *uuid.UUID, err error) {
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT (SELECT id FROM doctor_profile WHERE user_id = $1),
			(SELECT id FROM patient_profile WHERE user_id = $1)`, userID,
	).Scan(&doctorID, &patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve profiles: %w", err)
	}
	return doctorID, patientID, nil
}
