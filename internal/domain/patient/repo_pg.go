package patient

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

// =========== Patient Repository ===========

type patientRepoPG struct{ pool db.Querier }

func NewPatientRepoPG(pool db.Querier) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientCols = `id, user_id, first_name, last_name, email, phone, date_of_birth, gender, blood_type,
	allergies, emergency_contact_name, emergency_contact_phone, emergency_contact_relationship,
	medical_conditions, current_medications, address, city, state, zip_code, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.DateOfBirth,
		&p.Gender, &p.BloodType, &p.Allergies, &p.EmergencyContactName, &p.EmergencyContactPhone,
		&p.EmergencyContactRelationship, &p.MedicalConditions, &p.CurrentMedications,
		&p.Address, &p.City, &p.State, &p.ZipCode, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_profile (id, user_id, first_name, last_name, email, phone, date_of_birth,
			gender, blood_type, allergies, emergency_contact_name, emergency_contact_phone,
			emergency_contact_relationship, medical_conditions, current_medications,
			address, city, state, zip_code)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth,
		p.Gender, p.BloodType, p.Allergies, p.EmergencyContactName, p.EmergencyContactPhone,
		p.EmergencyContactRelationship, p.MedicalConditions, p.CurrentMedications,
		p.Address, p.City, p.State, p.ZipCode,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return apperr.Conflict("duplicate_user", "this user already has a patient profile")
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient_profile WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "patient")
	}
	return p, nil
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient_profile WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "patient")
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient_profile SET first_name=$2, last_name=$3, email=$4, phone=$5, date_of_birth=$6,
			gender=$7, blood_type=$8, allergies=$9, emergency_contact_name=$10, emergency_contact_phone=$11,
			emergency_contact_relationship=$12, medical_conditions=$13, current_medications=$14,
			address=$15, city=$16, state=$17, zip_code=$18, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth,
		p.Gender, p.BloodType, p.Allergies, p.EmergencyContactName, p.EmergencyContactPhone,
		p.EmergencyContactRelationship, p.MedicalConditions, p.CurrentMedications,
		p.Address, p.City, p.State, p.ZipCode,
	).Scan(&p.UpdatedAt)
	return notFound(err, "patient")
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_profile WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_profile`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient_profile
		ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Insurance Provider Repository ===========

type providerRepoPG struct{ pool db.Querier }

func NewProviderRepoPG(pool db.Querier) ProviderRepository {
	return &providerRepoPG{pool: pool}
}

func (r *providerRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const providerCols = `id, name, contact_number, contact_email, created_at, updated_at`

func scanProvider(row pgx.Row) (*InsuranceProvider, error) {
	var p InsuranceProvider
	if err := row.Scan(&p.ID, &p.Name, &p.ContactNumber, &p.ContactEmail, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *providerRepoPG) Create(ctx context.Context, p *InsuranceProvider) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO insurance_provider (id, name, contact_number, contact_email) VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.ContactNumber, p.ContactEmail,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return apperr.Conflict("duplicate_name", "an insurance provider with this name already exists")
		}
		return fmt.Errorf("insert insurance provider: %w", err)
	}
	return nil
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*InsuranceProvider, error) {
	p, err := scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM insurance_provider WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "insurance provider")
	}
	return p, nil
}

func (r *providerRepoPG) Update(ctx context.Context, p *InsuranceProvider) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE insurance_provider SET name=$2, contact_number=$3, contact_email=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.ContactNumber, p.ContactEmail,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return notFound(err, "insurance provider")
}

func (r *providerRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM insurance_provider WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete insurance provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("insurance provider")
	}
	return nil
}

func (r *providerRepoPG) List(ctx context.Context, limit, offset int) ([]*InsuranceProvider, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM insurance_provider`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count insurance providers: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+providerCols+` FROM insurance_provider ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list insurance providers: %w", err)
	}
	defer rows.Close()
	items := []*InsuranceProvider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Insurance Repository ===========

type insuranceRepoPG struct{ pool db.Querier }

func NewInsuranceRepoPG(pool db.Querier) InsuranceRepository {
	return &insuranceRepoPG{pool: pool}
}

func (r *insuranceRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const insuranceCols = `i.id, i.patient_id, i.insurance_provider_id, p.name, i.policy_number, i.group_number,
	i.policy_holder_name, i.policy_holder_relation, i.start_date, i.end_date, i.is_primary,
	i.created_at, i.updated_at`

const insuranceFrom = ` FROM patient_insurance i JOIN insurance_provider p ON p.id = i.insurance_provider_id`

func scanInsurance(row pgx.Row) (*Insurance, error) {
	var ins Insurance
	err := row.Scan(&ins.ID, &ins.PatientID, &ins.InsuranceProviderID, &ins.ProviderName, &ins.PolicyNumber,
		&ins.GroupNumber, &ins.PolicyHolderName, &ins.PolicyHolderRelation, &ins.StartDate, &ins.EndDate,
		&ins.IsPrimary, &ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ins, nil
}

func (r *insuranceRepoPG) Create(ctx context.Context, ins *Insurance) error {
	ins.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_insurance (id, patient_id, insurance_provider_id, policy_number, group_number,
			policy_holder_name, policy_holder_relation, start_date, end_date, is_primary)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		ins.ID, ins.PatientID, ins.InsuranceProviderID, ins.PolicyNumber, ins.GroupNumber,
		ins.PolicyHolderName, ins.PolicyHolderRelation, ins.StartDate, ins.EndDate, ins.IsPrimary,
	).Scan(&ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient insurance: %w", err)
	}
	return nil
}

func (r *insuranceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Insurance, error) {
	ins, err := scanInsurance(r.conn(ctx).QueryRow(ctx, `SELECT `+insuranceCols+insuranceFrom+` WHERE i.id = $1`, id))
	if err != nil {
		return nil, notFound(err, "patient insurance")
	}
	return ins, nil
}

func (r *insuranceRepoPG) Update(ctx context.Context, ins *Insurance) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient_insurance SET insurance_provider_id=$2, policy_number=$3, group_number=$4,
			policy_holder_name=$5, policy_holder_relation=$6, start_date=$7, end_date=$8, is_primary=$9,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		ins.ID, ins.InsuranceProviderID, ins.PolicyNumber, ins.GroupNumber,
		ins.PolicyHolderName, ins.PolicyHolderRelation, ins.StartDate, ins.EndDate, ins.IsPrimary,
	).Scan(&ins.UpdatedAt)
	return notFound(err, "patient insurance")
}

func (r *insuranceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_insurance WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient insurance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient insurance")
	}
	return nil
}

func (r *insuranceRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Insurance, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+insuranceCols+insuranceFrom+`
		WHERE i.patient_id = $1 ORDER BY i.is_primary DESC, i.created_at`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient insurances: %w", err)
	}
	defer rows.Close()
	items := []*Insurance{}
	for rows.Next() {
		ins, err := scanInsurance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ins)
	}
	return items, rows.Err()
}

func (r *insuranceRepoPG) ClearPrimary(ctx context.Context, patientID, keep uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_insurance SET is_primary = FALSE, updated_at = NOW()
		WHERE patient_id = $1 AND id <> $2 AND is_primary`, patientID, keep)
	if err != nil {
		return fmt.Errorf("clear primary insurance: %w", err)
	}
	return nil
}

func (r *insuranceRepoPG) PromoteOldest(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_insurance SET is_primary = TRUE, updated_at = NOW()
		WHERE id = (SELECT id FROM patient_insurance WHERE patient_id = $1 ORDER BY created_at LIMIT 1)`, patientID)
	if err != nil {
		return fmt.Errorf("promote insurance: %w", err)
	}
	return nil
}
