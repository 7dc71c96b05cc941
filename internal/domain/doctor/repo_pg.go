package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

// =========== Specialization Repository ===========

type specializationRepoPG struct{ pool db.Querier }

func NewSpecializationRepoPG(pool db.Querier) SpecializationRepository {
	return &specializationRepoPG{pool: pool}
}

func (r *specializationRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const specCols = `id, name, description, created_at, updated_at`

func scanSpecialization(row pgx.Row) (*Specialization, error) {
	var s Specialization
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func duplicateName(err error) error {
	if db.IsUniqueViolation(err, "") {
		return apperr.Conflict("duplicate_name", "a specialization with this name already exists")
	}
	return err
}

func (r *specializationRepoPG) Create(ctx context.Context, s *Specialization) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO specialization (id, name, description) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Description,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert specialization: %w", duplicateName(err))
	}
	return nil
}

func (r *specializationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specialization, error) {
	s, err := scanSpecialization(r.conn(ctx).QueryRow(ctx, `SELECT `+specCols+` FROM specialization WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "specialization")
	}
	return s, nil
}

func (r *specializationRepoPG) Update(ctx context.Context, s *Specialization) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE specialization SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Description,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return notFound(duplicateName(err), "specialization")
	}
	return nil
}

func (r *specializationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM specialization WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete specialization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("specialization")
	}
	return nil
}

func (r *specializationRepoPG) List(ctx context.Context, limit, offset int) ([]*Specialization, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM specialization`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count specializations: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+specCols+` FROM specialization ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list specializations: %w", err)
	}
	defer rows.Close()
	items := []*Specialization{}
	for rows.Next() {
		s, err := scanSpecialization(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *specializationRepoPG) CountExisting(ctx context.Context, ids []uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM specialization WHERE id = ANY($1)`, ids).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count specializations: %w", err)
	}
	return n, nil
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool db.Querier }

func NewDoctorRepoPG(pool db.Querier) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `id, user_id, first_name, last_name, email, phone, license_number,
	years_of_experience, biography, education, accepting_new_patients, consultation_fee,
	address, city, state, zip_code, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.FirstName, &d.LastName, &d.Email, &d.Phone, &d.LicenseNumber,
		&d.YearsOfExperience, &d.Biography, &d.Education, &d.AcceptingNewPatients, &d.ConsultationFee,
		&d.Address, &d.City, &d.State, &d.ZipCode, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Specializations = []Specialization{}
	return &d, nil
}

func duplicateDoctor(err error) error {
	switch {
	case db.IsUniqueViolation(err, "doctor_profile_license_number_key"):
		return apperr.Conflict("duplicate_license", "a doctor with this license number already exists")
	case db.IsUniqueViolation(err, "doctor_profile_user_id_key"):
		return apperr.Conflict("duplicate_user", "this user already has a doctor profile")
	}
	return err
}

// loadSpecializations fills in the specializations of docs with one query.
func (r *doctorRepoPG) loadSpecializations(ctx context.Context, docs ...*Doctor) error {
	if len(docs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Doctor, len(docs))
	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT ds.doctor_id, s.id, s.name, s.description, s.created_at, s.updated_at
		FROM doctor_specialization ds JOIN specialization s ON s.id = ds.specialization_id
		WHERE ds.doctor_id = ANY($1)
		ORDER BY s.name`, ids)
	if err != nil {
		return fmt.Errorf("load specializations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var doctorID uuid.UUID
		var s Specialization
		if err := rows.Scan(&doctorID, &s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return err
		}
		if d, ok := byID[doctorID]; ok {
			d.Specializations = append(d.Specializations, s)
		}
	}
	return rows.Err()
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_profile (id, user_id, first_name, last_name, email, phone, license_number,
			years_of_experience, biography, education, accepting_new_patients, consultation_fee,
			address, city, state, zip_code)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.FirstName, d.LastName, d.Email, d.Phone, d.LicenseNumber,
		d.YearsOfExperience, d.Biography, d.Education, d.AcceptingNewPatients, d.ConsultationFee,
		d.Address, d.City, d.State, d.ZipCode,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", duplicateDoctor(err))
	}
	return nil
}

func (r *doctorRepoPG) get(ctx context.Context, where string, arg interface{}) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor_profile WHERE `+where, arg))
	if err != nil {
		return nil, notFound(err, "doctor")
	}
	if err := r.loadSpecializations(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID string) (*Doctor, error) {
	return r.get(ctx, "user_id = $1", userID)
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor_profile SET first_name=$2, last_name=$3, email=$4, phone=$5, license_number=$6,
			years_of_experience=$7, biography=$8, education=$9, accepting_new_patients=$10,
			consultation_fee=$11, address=$12, city=$13, state=$14, zip_code=$15, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.FirstName, d.LastName, d.Email, d.Phone, d.LicenseNumber,
		d.YearsOfExperience, d.Biography, d.Education, d.AcceptingNewPatients,
		d.ConsultationFee, d.Address, d.City, d.State, d.ZipCode,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return notFound(duplicateDoctor(err), "doctor")
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_profile WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor")
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Doctor, int, error) {
	var clauses []string
	var args []interface{}
	if f.SpecializationID != nil {
		args = append(args, *f.SpecializationID)
		clauses = append(clauses, fmt.Sprintf(
			"id IN (SELECT doctor_id FROM doctor_specialization WHERE specialization_id = $%d)", len(args)))
	}
	if f.AcceptingOnly {
		clauses = append(clauses, "accepting_new_patients = TRUE")
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor_profile`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT `+doctorCols+` FROM doctor_profile`+where+
		` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	items := []*Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		items = append(items, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadSpecializations(ctx, items...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *doctorRepoPG) SetSpecializations(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_specialization WHERE doctor_id = $1`, doctorID); err != nil {
		return fmt.Errorf("clear specializations: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_specialization (doctor_id, specialization_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`, doctorID, ids)
	if err != nil {
		return fmt.Errorf("link specializations: %w", err)
	}
	return nil
}
