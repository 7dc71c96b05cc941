package medicalrecord

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/internal/platform/metrics"
)

// Transactor runs fn as one atomic unit of work.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps wires the service to its storage and collaborators.
type Deps struct {
	Records      RecordRepository
	Access       AccessRepository
	Appointments AppointmentReader
	Tx           Transactor
	Location     *time.Location
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

type Service struct {
	records      RecordRepository
	access       AccessRepository
	appointments AppointmentReader
	tx           Transactor
	loc          *time.Location
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

func NewService(d Deps) *Service {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		records:      d.Records,
		access:       d.Access,
		appointments: d.Appointments,
		tx:           d.Tx,
		loc:          loc,
		logger:       d.Logger.With().Str("component", "medicalrecord").Logger(),
		metrics:      d.Metrics,
	}
}

// scopeFor returns the records actor may see. Actors without a doctor or
// patient profile and without clinic-wide visibility see nothing.
func scopeFor(actor *auth.Actor, includeConfidential bool) Scope {
	switch {
	case actor.IsStaffOrAdmin():
		return Scope{All: true}
	case actor == nil:
		return Scope{}
	case actor.Role == auth.RoleDoctor && actor.DoctorID != nil:
		return Scope{DoctorID: actor.DoctorID}
	case actor.Role == auth.RolePatient && actor.PatientID != nil:
		return Scope{PatientID: actor.PatientID, IncludeConfidential: includeConfidential}
	}
	return Scope{}
}

func (s *Service) logAccess(ctx context.Context, actor *auth.Actor, recordID uuid.UUID, reason, ip string) error {
	a := &Access{MedicalRecordID: recordID, UserID: actor.UserID, AccessReason: reason}
	if ip != "" {
		a.IPAddress = &ip
	}
	if err := s.access.Log(ctx, a); err != nil {
		return err
	}
	s.metrics.ObserveRecordAccess(reason)
	return nil
}

// inClinicDay moves a calendar date to midnight in the clinic time zone.
func (s *Service) inClinicDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
	return &d
}

func (s *Service) normalizeFilter(f ListFilter) (ListFilter, error) {
	f.StartDate = s.inClinicDay(f.StartDate)
	f.EndDate = s.inClinicDay(f.EndDate)
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, apperr.FieldValidation("end_date", "end_date must not be before start_date")
	}
	return f, nil
}

// -- Vitals --

func checkDecimal(field string, v decimal.NullDecimal, limit int64) (decimal.NullDecimal, error) {
	if !v.Valid {
		return v, nil
	}
	if v.Decimal.IsNegative() || v.Decimal.GreaterThanOrEqual(decimal.NewFromInt(limit)) {
		return v, apperr.FieldValidation(field, "%s must be between 0 and %d", field, limit)
	}
	return decimal.NewNullDecimal(v.Decimal.Round(2)), nil
}

func checkRate(field string, v *int) error {
	if v != nil && *v < 0 {
		return apperr.FieldValidation(field, "%s must not be negative", field)
	}
	return nil
}

// validateVitals checks measurements against their column precision and
// rounds decimals to two places.
func validateVitals(m *MedicalRecord) error {
	var err error
	if m.Temperature, err = checkDecimal("temperature", m.Temperature, 1000); err != nil {
		return err
	}
	if m.Weight, err = checkDecimal("weight", m.Weight, 10000); err != nil {
		return err
	}
	if m.Height, err = checkDecimal("height", m.Height, 1000); err != nil {
		return err
	}
	rates := []struct {
		field string
		v     *int
	}{
		{"blood_pressure_systolic", m.BloodPressureSystolic},
		{"blood_pressure_diastolic", m.BloodPressureDiastolic},
		{"pulse_rate", m.PulseRate},
		{"respiratory_rate", m.RespiratoryRate},
	}
	for _, r := range rates {
		if err := checkRate(r.field, r.v); err != nil {
			return err
		}
	}
	return nil
}

// -- Operations --

func (s *Service) ListRecords(ctx context.Context, actor *auth.Actor, f ListFilter, limit, offset int) ([]*MedicalRecord, int, error) {
	f, err := s.normalizeFilter(f)
	if err != nil {
		return nil, 0, err
	}
	if !actor.IsClinical() {
		f.PatientID = nil
	}
	scope := scopeFor(actor, f.IncludeConfidential)
	if scope.empty() {
		return []*MedicalRecord{}, 0, nil
	}
	return s.records.List(ctx, scope, f, limit, offset)
}

// MyRecords lists the calling patient's records and logs one access per
// returned record.
func (s *Service) MyRecords(ctx context.Context, actor *auth.Actor, ip string, f ListFilter, limit, offset int) ([]*MedicalRecord, int, error) {
	if actor == nil || actor.PatientID == nil {
		return nil, 0, apperr.Permission("you must be a patient to access this endpoint")
	}
	f, err := s.normalizeFilter(f)
	if err != nil {
		return nil, 0, err
	}
	f.DoctorID, f.PatientID, f.AppointmentID = nil, nil, nil
	scope := Scope{PatientID: actor.PatientID, IncludeConfidential: f.IncludeConfidential}

	var items []*MedicalRecord
	var total int
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if items, total, err = s.records.List(ctx, scope, f, limit, offset); err != nil {
			return err
		}
		for _, m := range items {
			if err := s.logAccess(ctx, actor, m.ID, ReasonMyRecords, ip); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetRecord returns a visible record and logs the view in the same unit of
// work.
func (s *Service) GetRecord(ctx context.Context, actor *auth.Actor, id uuid.UUID, ip string, includeConfidential bool) (*MedicalRecord, error) {
	var m *MedicalRecord
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if m, err = s.records.GetByID(ctx, id, scopeFor(actor, includeConfidential)); err != nil {
			return err
		}
		return s.logAccess(ctx, actor, m.ID, ReasonViewed, ip)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// resolveLink fills doctor and patient from the linked appointment and checks
// that explicit values agree with it.
func (s *Service) resolveLink(ctx context.Context, req *CreateRequest) error {
	if req.AppointmentID == nil {
		return nil
	}
	link, err := s.appointments.GetAppointmentLink(ctx, *req.AppointmentID)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.FieldValidation("appointment_id", "appointment not found")
	}
	if err != nil {
		return err
	}
	if req.PatientID != nil && *req.PatientID != link.PatientID {
		return apperr.FieldValidation("patient_id", "patient must match the patient from the appointment")
	}
	if req.DoctorID != nil && *req.DoctorID != link.DoctorID {
		return apperr.FieldValidation("doctor_id", "doctor must match the doctor from the appointment")
	}
	req.PatientID, req.DoctorID = &link.PatientID, &link.DoctorID
	return nil
}

// CreateRecord stores a record authored by a doctor or an administrator. A
// doctor writes under their own profile.
func (s *Service) CreateRecord(ctx context.Context, actor *auth.Actor, ip string, req CreateRequest) (*MedicalRecord, error) {
	isDoctor := actor != nil && actor.Role == auth.RoleDoctor && actor.DoctorID != nil
	if !actor.IsAdmin() && !isDoctor {
		return nil, apperr.Permission("only doctors and administrators can create medical records")
	}
	if isDoctor {
		if req.DoctorID != nil && *req.DoctorID != *actor.DoctorID {
			return nil, apperr.Permission("doctors can only author their own medical records")
		}
		req.DoctorID = actor.DoctorID
	}

	m := &MedicalRecord{
		Diagnosis:              strings.TrimSpace(req.Diagnosis),
		TreatmentPlan:          strings.TrimSpace(req.TreatmentPlan),
		Prescription:           strings.TrimSpace(req.Prescription),
		Notes:                  strings.TrimSpace(req.Notes),
		IsConfidential:         req.IsConfidential,
		Temperature:            req.Temperature,
		BloodPressureSystolic:  req.BloodPressureSystolic,
		BloodPressureDiastolic: req.BloodPressureDiastolic,
		PulseRate:              req.PulseRate,
		RespiratoryRate:        req.RespiratoryRate,
		Weight:                 req.Weight,
		Height:                 req.Height,
		AppointmentID:          req.AppointmentID,
	}
	if err := validateVitals(m); err != nil {
		return nil, err
	}

	var created *MedicalRecord
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.resolveLink(ctx, &req); err != nil {
			return err
		}
		if req.PatientID == nil {
			return apperr.FieldValidation("patient_id", "patient_id is required")
		}
		if req.DoctorID == nil {
			return apperr.FieldValidation("doctor_id", "doctor_id is required")
		}
		m.PatientID, m.DoctorID = *req.PatientID, *req.DoctorID
		if err := s.records.Create(ctx, m); err != nil {
			return err
		}
		if err := s.logAccess(ctx, actor, m.ID, ReasonCreated, ip); err != nil {
			return err
		}
		var err error
		created, err = s.records.GetByID(ctx, m.ID, Scope{All: true})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("record_id", created.ID.String()).Str("patient_id", created.PatientID.String()).
		Msg("medical record created")
	return created, nil
}

func applyUpdate(m *MedicalRecord, req UpdateRequest) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&m.Diagnosis, req.Diagnosis)
	set(&m.TreatmentPlan, req.TreatmentPlan)
	set(&m.Prescription, req.Prescription)
	set(&m.Notes, req.Notes)
	if req.IsConfidential != nil {
		m.IsConfidential = *req.IsConfidential
	}
	if req.Temperature != nil {
		m.Temperature = *req.Temperature
	}
	if req.Weight != nil {
		m.Weight = *req.Weight
	}
	if req.Height != nil {
		m.Height = *req.Height
	}
	if req.BloodPressureSystolic != nil {
		m.BloodPressureSystolic = req.BloodPressureSystolic
	}
	if req.BloodPressureDiastolic != nil {
		m.BloodPressureDiastolic = req.BloodPressureDiastolic
	}
	if req.PulseRate != nil {
		m.PulseRate = req.PulseRate
	}
	if req.RespiratoryRate != nil {
		m.RespiratoryRate = req.RespiratoryRate
	}
}

// UpdateRecord changes the clinical content. Only the authoring doctor or an
// administrator may do so.
func (s *Service) UpdateRecord(ctx context.Context, actor *auth.Actor, ip string, id uuid.UUID, req UpdateRequest) (*MedicalRecord, error) {
	var m *MedicalRecord
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if m, err = s.records.GetByID(ctx, id, scopeFor(actor, true)); err != nil {
			return err
		}
		if !actor.IsAdmin() && !actor.IsDoctor(m.DoctorID) {
			return apperr.Permission("you do not have permission to update this medical record")
		}
		applyUpdate(m, req)
		if err := validateVitals(m); err != nil {
			return err
		}
		if err := s.records.Update(ctx, m); err != nil {
			return err
		}
		return s.logAccess(ctx, actor, m.ID, ReasonUpdated, ip)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AccessLogs returns the audit trail of a record to its doctor, its patient
// or an administrator.
func (s *Service) AccessLogs(ctx context.Context, actor *auth.Actor, id uuid.UUID) ([]*Access, error) {
	m, err := s.records.GetByID(ctx, id, scopeFor(actor, true))
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.IsDoctor(m.DoctorID) && !actor.IsPatient(m.PatientID) {
		return nil, apperr.Permission("you do not have permission to view access logs for this record")
	}
	return s.access.ListByRecord(ctx, m.ID)
}
