package medicalrecord

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/db"
)

func notFound(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	return err
}

// =========== Medical Record Repository ===========

type recordRepoPG struct{ pool db.Querier }

func NewRecordRepoPG(pool db.Querier) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const recordCols = `r.id, r.patient_id, p.first_name, p.last_name, r.doctor_id, d.first_name, d.last_name,
	r.appointment_id, a.start_datetime, r.diagnosis, r.treatment_plan, r.prescription, r.notes,
	r.temperature, r.blood_pressure_systolic, r.blood_pressure_diastolic, r.pulse_rate,
	r.respiratory_rate, r.weight, r.height, r.is_confidential, r.created_at, r.updated_at`

const recordFrom = ` FROM medical_record r
	JOIN patient_profile p ON p.id = r.patient_id
	JOIN doctor_profile d ON d.id = r.doctor_id
	LEFT JOIN appointment a ON a.id = r.appointment_id`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	var pFirst, pLast, dFirst, dLast string
	err := row.Scan(&m.ID, &m.PatientID, &pFirst, &pLast, &m.DoctorID, &dFirst, &dLast,
		&m.AppointmentID, &m.AppointmentDate, &m.Diagnosis, &m.TreatmentPlan, &m.Prescription, &m.Notes,
		&m.Temperature, &m.BloodPressureSystolic, &m.BloodPressureDiastolic, &m.PulseRate,
		&m.RespiratoryRate, &m.Weight, &m.Height, &m.IsConfidential, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.PatientName = displayName(pFirst, pLast)
	m.DoctorName = "Dr. " + displayName(dFirst, dLast)
	return &m, nil
}

// applyScope adds the visibility clause for scope. An empty scope matches
// nothing.
func applyScope(w *db.Where, scope Scope) {
	switch {
	case scope.All:
	case scope.DoctorID != nil:
		w.Add(`(r.doctor_id = ? OR EXISTS (SELECT 1 FROM appointment sa
			WHERE sa.patient_id = r.patient_id AND sa.doctor_id = ?))`, *scope.DoctorID, *scope.DoctorID)
	case scope.PatientID != nil:
		w.Add("r.patient_id = ?", *scope.PatientID)
		if !scope.IncludeConfidential {
			w.Add("r.is_confidential = FALSE")
		}
	default:
		w.Add("FALSE")
	}
}

func writeErr(err error, op string) error {
	switch {
	case db.IsUniqueViolation(err, "medical_record_appointment_id_key"):
		return apperr.Conflict("duplicate_appointment", "a medical record already exists for this appointment")
	case db.IsForeignKeyViolation(err):
		return apperr.Validation("unknown_reference", "patient, doctor or appointment does not exist")
	}
	return fmt.Errorf("%s medical record: %w", op, err)
}

func (r *recordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_record (id, patient_id, doctor_id, appointment_id, diagnosis, treatment_plan,
			prescription, notes, temperature, blood_pressure_systolic, blood_pressure_diastolic,
			pulse_rate, respiratory_rate, weight, height, is_confidential)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		m.ID, m.PatientID, m.DoctorID, m.AppointmentID, m.Diagnosis, m.TreatmentPlan,
		m.Prescription, m.Notes, m.Temperature, m.BloodPressureSystolic, m.BloodPressureDiastolic,
		m.PulseRate, m.RespiratoryRate, m.Weight, m.Height, m.IsConfidential,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return writeErr(err, "insert")
	}
	return nil
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID, scope Scope) (*MedicalRecord, error) {
	w := &db.Where{}
	w.Add("r.id = ?", id)
	applyScope(w, scope)
	m, err := scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+recordFrom+w.SQL(), w.Args...))
	if err != nil {
		return nil, notFound(err, "medical record")
	}
	return m, nil
}

func (r *recordRepoPG) Update(ctx context.Context, m *MedicalRecord) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medical_record SET diagnosis=$2, treatment_plan=$3, prescription=$4, notes=$5,
			temperature=$6, blood_pressure_systolic=$7, blood_pressure_diastolic=$8, pulse_rate=$9,
			respiratory_rate=$10, weight=$11, height=$12, is_confidential=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Diagnosis, m.TreatmentPlan, m.Prescription, m.Notes,
		m.Temperature, m.BloodPressureSystolic, m.BloodPressureDiastolic, m.PulseRate,
		m.RespiratoryRate, m.Weight, m.Height, m.IsConfidential,
	).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("medical record")
	}
	if err != nil {
		return writeErr(err, "update")
	}
	return nil
}

func (r *recordRepoPG) List(ctx context.Context, scope Scope, f ListFilter, limit, offset int) ([]*MedicalRecord, int, error) {
	w := &db.Where{}
	applyScope(w, scope)
	if f.DoctorID != nil {
		w.Add("r.doctor_id = ?", *f.DoctorID)
	}
	if f.PatientID != nil {
		w.Add("r.patient_id = ?", *f.PatientID)
	}
	if f.AppointmentID != nil {
		w.Add("r.appointment_id = ?", *f.AppointmentID)
	}
	if f.StartDate != nil {
		w.Add("r.created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		w.Add("r.created_at < ?", f.EndDate.AddDate(0, 0, 1))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medical_record r`+w.SQL(), w.Args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medical records: %w", err)
	}
	page, args := w.Page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+recordCols+recordFrom+w.SQL()+` ORDER BY r.created_at DESC`+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medical records: %w", err)
	}
	defer rows.Close()
	items := []*MedicalRecord{}
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

// =========== Access Log Repository ===========

type accessRepoPG struct{ pool db.Querier }

func NewAccessRepoPG(pool db.Querier) AccessRepository {
	return &accessRepoPG{pool: pool}
}

func (r *accessRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *accessRepoPG) Log(ctx context.Context, a *Access) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_record_access (id, medical_record_id, user_id, access_reason, ip_address)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING accessed_at`,
		a.ID, a.MedicalRecordID, a.UserID, a.AccessReason, a.IPAddress,
	).Scan(&a.AccessedAt)
	if err != nil {
		return fmt.Errorf("insert medical record access: %w", err)
	}
	return nil
}

func (r *accessRepoPG) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Access, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, medical_record_id, user_id, accessed_at, access_reason, ip_address
		FROM medical_record_access WHERE medical_record_id = $1 ORDER BY accessed_at DESC`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list medical record access: %w", err)
	}
	defer rows.Close()
	items := []*Access{}
	for rows.Next() {
		var a Access
		if err := rows.Scan(&a.ID, &a.MedicalRecordID, &a.UserID, &a.AccessedAt, &a.AccessReason, &a.IPAddress); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

// =========== Appointment Reader ===========

type appointmentReaderPG struct{ pool db.Querier }

func NewAppointmentReaderPG(pool db.Querier) AppointmentReader {
	return &appointmentReaderPG{pool: pool}
}

func (r *appointmentReaderPG) GetAppointmentLink(ctx context.Context, id uuid.UUID) (*AppointmentLink, error) {
	l := AppointmentLink{ID: id}
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT doctor_id, patient_id, start_datetime FROM appointment WHERE id = $1`, id,
	).Scan(&l.DoctorID, &l.PatientID, &l.Start)
	if err != nil {
		return nil, notFound(err, "appointment")
	}
	return &l, nil
}
