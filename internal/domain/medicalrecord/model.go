package medicalrecord

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Access log reasons.
const (
	ReasonCreated   = "Created medical record"
	ReasonViewed    = "Viewed medical record"
	ReasonUpdated   = "Updated medical record"
	ReasonMyRecords = "Viewed in 'my records' list"
)

// MedicalRecord maps to the medical_record table. Names and the appointment
// date are read from the joined tables.
type MedicalRecord struct {
	ID                     uuid.UUID           `db:"id" json:"id"`
	PatientID              uuid.UUID           `db:"patient_id" json:"patient_id"`
	PatientName            string              `db:"-" json:"patient_name"`
	DoctorID               uuid.UUID           `db:"doctor_id" json:"doctor_id"`
	DoctorName             string              `db:"-" json:"doctor_name"`
	AppointmentID          *uuid.UUID          `db:"appointment_id" json:"appointment_id"`
	AppointmentDate        *time.Time          `db:"-" json:"appointment_date"`
	Diagnosis              string              `db:"diagnosis" json:"diagnosis"`
	TreatmentPlan          string              `db:"treatment_plan" json:"treatment_plan"`
	Prescription           string              `db:"prescription" json:"prescription"`
	Notes                  string              `db:"notes" json:"notes"`
	Temperature            decimal.NullDecimal `db:"temperature" json:"temperature"`
	BloodPressureSystolic  *int                `db:"blood_pressure_systolic" json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int                `db:"blood_pressure_diastolic" json:"blood_pressure_diastolic"`
	PulseRate              *int                `db:"pulse_rate" json:"pulse_rate"`
	RespiratoryRate        *int                `db:"respiratory_rate" json:"respiratory_rate"`
	Weight                 decimal.NullDecimal `db:"weight" json:"weight"`
	Height                 decimal.NullDecimal `db:"height" json:"height"`
	IsConfidential         bool                `db:"is_confidential" json:"is_confidential"`
	CreatedAt              time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time           `db:"updated_at" json:"updated_at"`
}

func displayName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// Access maps to the append-only medical_record_access table.
type Access struct {
	ID              uuid.UUID `db:"id" json:"id"`
	MedicalRecordID uuid.UUID `db:"medical_record_id" json:"medical_record_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	AccessedAt      time.Time `db:"accessed_at" json:"accessed_at"`
	AccessReason    string    `db:"access_reason" json:"access_reason"`
	IPAddress       *string   `db:"ip_address" json:"ip_address"`
}

// Vitals are the optional measurements taken during a visit.
type Vitals struct {
	Temperature            decimal.NullDecimal `json:"temperature"`
	BloodPressureSystolic  *int                `json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int                `json:"blood_pressure_diastolic"`
	PulseRate              *int                `json:"pulse_rate"`
	RespiratoryRate        *int                `json:"respiratory_rate"`
	Weight                 decimal.NullDecimal `json:"weight"`
	Height                 decimal.NullDecimal `json:"height"`
}

// CreateRequest is the payload for a new record. Doctor and patient may be
// omitted when the linked appointment supplies them.
type CreateRequest struct {
	PatientID      *uuid.UUID `json:"patient_id"`
	DoctorID       *uuid.UUID `json:"doctor_id"`
	AppointmentID  *uuid.UUID `json:"appointment_id"`
	Diagnosis      string     `json:"diagnosis"`
	TreatmentPlan  string     `json:"treatment_plan"`
	Prescription   string     `json:"prescription"`
	Notes          string     `json:"notes"`
	IsConfidential bool       `json:"is_confidential"`
	Vitals
}

// UpdateRequest carries a partial update of the clinical content. The
// patient, doctor and appointment of a record are fixed once written.
type UpdateRequest struct {
	Diagnosis              *string              `json:"diagnosis"`
	TreatmentPlan          *string              `json:"treatment_plan"`
	Prescription           *string              `json:"prescription"`
	Notes                  *string              `json:"notes"`
	IsConfidential         *bool                `json:"is_confidential"`
	Temperature            *decimal.NullDecimal `json:"temperature"`
	BloodPressureSystolic  *int                 `json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int                 `json:"blood_pressure_diastolic"`
	PulseRate              *int                 `json:"pulse_rate"`
	RespiratoryRate        *int                 `json:"respiratory_rate"`
	Weight                 *decimal.NullDecimal `json:"weight"`
	Height                 *decimal.NullDecimal `json:"height"`
}

// ListFilter narrows a record listing. Dates compare against the calendar
// day the record was created on, both ends inclusive.
type ListFilter struct {
	DoctorID            *uuid.UUID
	PatientID           *uuid.UUID
	AppointmentID       *uuid.UUID
	StartDate           *time.Time
	EndDate             *time.Time
	IncludeConfidential bool
}

// Scope limits which records a query may return. The zero Scope matches
// nothing.
type Scope struct {
	All bool
	// DoctorID admits records the doctor authored and records of patients
	// the doctor has appointments with.
	DoctorID *uuid.UUID
	// PatientID admits the patient's own records; confidential ones only
	// with IncludeConfidential.
	PatientID           *uuid.UUID
	IncludeConfidential bool
}

func (s Scope) empty() bool {
	return !s.All && s.DoctorID == nil && s.PatientID == nil
}

// AppointmentLink is the part of an appointment a record must agree with.
type AppointmentLink struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Start     time.Time
}
