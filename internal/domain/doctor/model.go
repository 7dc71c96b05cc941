package doctor

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Specialization maps to the specialization table.
type Specialization struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctor_profile table. Specializations are loaded from
// the doctor_specialization join table.
type Doctor struct {
	ID                   uuid.UUID        `db:"id" json:"id"`
	UserID               string           `db:"user_id" json:"user_id"`
	FirstName            string           `db:"first_name" json:"first_name"`
	LastName             string           `db:"last_name" json:"last_name"`
	Email                string           `db:"email" json:"email"`
	Phone                string           `db:"phone" json:"phone,omitempty"`
	LicenseNumber        string           `db:"license_number" json:"license_number"`
	Specializations      []Specialization `db:"-" json:"specializations"`
	YearsOfExperience    int              `db:"years_of_experience" json:"years_of_experience"`
	Biography            string           `db:"biography" json:"biography"`
	Education            string           `db:"education" json:"education"`
	AcceptingNewPatients bool             `db:"accepting_new_patients" json:"accepting_new_patients"`
	ConsultationFee      decimal.Decimal  `db:"consultation_fee" json:"consultation_fee"`
	Address              string           `db:"address" json:"address"`
	City                 string           `db:"city" json:"city"`
	State                string           `db:"state" json:"state"`
	ZipCode              string           `db:"zip_code" json:"zip_code"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time        `db:"updated_at" json:"updated_at"`
}

// FullName is the display name used in listings and reminders.
func (d *Doctor) FullName() string {
	return strings.TrimSpace("Dr. " + strings.TrimSpace(d.FirstName+" "+d.LastName))
}

// SpecializationIDs returns the ids of the loaded specializations.
func (d *Doctor) SpecializationIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(d.Specializations))
	for i, s := range d.Specializations {
		ids[i] = s.ID
	}
	return ids
}

// CreateRequest is the payload accepted when an administrator registers a
// doctor.
type CreateRequest struct {
	UserID               string           `json:"user_id"`
	FirstName            string           `json:"first_name"`
	LastName             string           `json:"last_name"`
	Email                string           `json:"email"`
	Phone                string           `json:"phone"`
	LicenseNumber        string           `json:"license_number"`
	SpecializationIDs    []uuid.UUID      `json:"specialization_ids"`
	YearsOfExperience    int              `json:"years_of_experience"`
	Biography            string           `json:"biography"`
	Education            string           `json:"education"`
	AcceptingNewPatients *bool            `json:"accepting_new_patients"`
	ConsultationFee      *decimal.Decimal `json:"consultation_fee"`
	Address              string           `json:"address"`
	City                 string           `json:"city"`
	State                string           `json:"state"`
	ZipCode              string           `json:"zip_code"`
}

// UpdateRequest carries a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	FirstName            *string          `json:"first_name"`
	LastName             *string          `json:"last_name"`
	Email                *string          `json:"email"`
	Phone                *string          `json:"phone"`
	LicenseNumber        *string          `json:"license_number"`
	SpecializationIDs    *[]uuid.UUID     `json:"specialization_ids"`
	YearsOfExperience    *int             `json:"years_of_experience"`
	Biography            *string          `json:"biography"`
	Education            *string          `json:"education"`
	AcceptingNewPatients *bool            `json:"accepting_new_patients"`
	ConsultationFee      *decimal.Decimal `json:"consultation_fee"`
	Address              *string          `json:"address"`
	City                 *string          `json:"city"`
	State                *string          `json:"state"`
	ZipCode              *string          `json:"zip_code"`
}

// ListFilter narrows doctor listings.
type ListFilter struct {
	SpecializationID *uuid.UUID
	AcceptingOnly    bool
}
