package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Gender codes accepted on a profile. Empty means not stated.
var genders = map[string]bool{"": true, "M": true, "F": true, "O": true}

var bloodTypes = map[string]bool{
	"": true, "A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

// Patient maps to the patient_profile table.
type Patient struct {
	ID                           uuid.UUID   `db:"id" json:"id"`
	UserID                       string      `db:"user_id" json:"user_id"`
	FirstName                    string      `db:"first_name" json:"first_name"`
	LastName                     string      `db:"last_name" json:"last_name"`
	Email                        string      `db:"email" json:"email"`
	Phone                        string      `db:"phone" json:"phone"`
	DateOfBirth                  pgtype.Date `db:"date_of_birth" json:"date_of_birth"`
	Gender                       string      `db:"gender" json:"gender"`
	BloodType                    string      `db:"blood_type" json:"blood_type"`
	Allergies                    string      `db:"allergies" json:"allergies"`
	EmergencyContactName         string      `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactPhone        string      `db:"emergency_contact_phone" json:"emergency_contact_phone"`
	EmergencyContactRelationship string      `db:"emergency_contact_relationship" json:"emergency_contact_relationship"`
	MedicalConditions            string      `db:"medical_conditions" json:"medical_conditions"`
	CurrentMedications           string      `db:"current_medications" json:"current_medications"`
	Address                      string      `db:"address" json:"address"`
	City                         string      `db:"city" json:"city"`
	State                        string      `db:"state" json:"state"`
	ZipCode                      string      `db:"zip_code" json:"zip_code"`
	CreatedAt                    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt                    time.Time   `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// UpdateRequest carries a partial profile update; nil fields are left
// unchanged. The owning user cannot be changed.
type UpdateRequest struct {
	FirstName                    *string      `json:"first_name"`
	LastName                     *string      `json:"last_name"`
	Email                        *string      `json:"email"`
	Phone                        *string      `json:"phone"`
	DateOfBirth                  *pgtype.Date `json:"date_of_birth"`
	Gender                       *string      `json:"gender"`
	BloodType                    *string      `json:"blood_type"`
	Allergies                    *string      `json:"allergies"`
	EmergencyContactName         *string      `json:"emergency_contact_name"`
	EmergencyContactPhone        *string      `json:"emergency_contact_phone"`
	EmergencyContactRelationship *string      `json:"emergency_contact_relationship"`
	MedicalConditions            *string      `json:"medical_conditions"`
	CurrentMedications           *string      `json:"current_medications"`
	Address                      *string      `json:"address"`
	City                         *string      `json:"city"`
	State                        *string      `json:"state"`
	ZipCode                      *string      `json:"zip_code"`
}

// InsuranceProvider maps to the insurance_provider table.
type InsuranceProvider struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	ContactNumber string    `db:"contact_number" json:"contact_number"`
	ContactEmail  string    `db:"contact_email" json:"contact_email"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Insurance maps to the patient_insurance table. ProviderName is read from
// the provider on retrieval.
type Insurance struct {
	ID                   uuid.UUID   `db:"id" json:"id"`
	PatientID            uuid.UUID   `db:"patient_id" json:"patient_id"`
	InsuranceProviderID  uuid.UUID   `db:"insurance_provider_id" json:"insurance_provider_id"`
	ProviderName         string      `db:"-" json:"provider_name,omitempty"`
	PolicyNumber         string      `db:"policy_number" json:"policy_number"`
	GroupNumber          string      `db:"group_number" json:"group_number"`
	PolicyHolderName     string      `db:"policy_holder_name" json:"policy_holder_name"`
	PolicyHolderRelation string      `db:"policy_holder_relation" json:"policy_holder_relation"`
	StartDate            pgtype.Date `db:"start_date" json:"start_date"`
	EndDate              pgtype.Date `db:"end_date" json:"end_date"`
	IsPrimary            bool        `db:"is_primary" json:"is_primary"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
}

// InsuranceRequest is the payload for adding or replacing an insurance.
// IsPrimary defaults to true.
type InsuranceRequest struct {
	InsuranceProviderID  uuid.UUID   `json:"insurance_provider_id"`
	PolicyNumber         string      `json:"policy_number"`
	GroupNumber          string      `json:"group_number"`
	PolicyHolderName     string      `json:"policy_holder_name"`
	PolicyHolderRelation string      `json:"policy_holder_relation"`
	StartDate            pgtype.Date `json:"start_date"`
	EndDate              pgtype.Date `json:"end_date"`
	IsPrimary            *bool       `json:"is_primary"`
}
