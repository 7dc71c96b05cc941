package patient

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/internal/platform/phone"
)

// Transactor runs fn as one atomic unit of work.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	patients   PatientRepository
	providers  ProviderRepository
	insurances InsuranceRepository
	tx         Transactor
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(patients PatientRepository, providers ProviderRepository, insurances InsuranceRepository, tx Transactor, logger zerolog.Logger) *Service {
	return &Service{
		patients:   patients,
		providers:  providers,
		insurances: insurances,
		tx:         tx,
		logger:     logger.With().Str("component", "patient").Logger(),
		now:        time.Now,
	}
}

func validEmail(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := mail.ParseAddress(v); err != nil {
		return apperr.FieldValidation(field, "invalid email address")
	}
	return nil
}

func normalizePhone(field string, v *string) error {
	n, err := phone.Normalize(*v, "")
	if err != nil {
		return apperr.FieldValidation(field, "invalid phone number")
	}
	*v = n
	return nil
}

// -- Profiles --

func (s *Service) validatePatient(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.TrimSpace(p.Email)
	p.Gender = strings.ToUpper(strings.TrimSpace(p.Gender))
	p.BloodType = strings.ToUpper(strings.TrimSpace(p.BloodType))

	if p.FirstName == "" {
		return apperr.FieldValidation("first_name", "first_name is required")
	}
	if p.LastName == "" {
		return apperr.FieldValidation("last_name", "last_name is required")
	}
	if !genders[p.Gender] {
		return apperr.FieldValidation("gender", "gender must be one of M, F, O")
	}
	if !bloodTypes[p.BloodType] {
		return apperr.FieldValidation("blood_type", "unknown blood type %q", p.BloodType)
	}
	if p.DateOfBirth.Valid && p.DateOfBirth.Time.After(s.now()) {
		return apperr.FieldValidation("date_of_birth", "date_of_birth cannot be in the future")
	}
	if err := validEmail("email", p.Email); err != nil {
		return err
	}
	if err := normalizePhone("phone", &p.Phone); err != nil {
		return err
	}
	return normalizePhone("emergency_contact_phone", &p.EmergencyContactPhone)
}

// canAccess reports whether actor may read or change the profile.
func canAccess(actor *auth.Actor, p *Patient) bool {
	return actor.IsStaffOrAdmin() || actor.IsPatient(p.ID)
}

// CreatePatient registers a profile. A patient always registers themselves;
// other actors name the owning user explicitly.
func (s *Service) CreatePatient(ctx context.Context, actor *auth.Actor, p *Patient) error {
	if actor == nil {
		return apperr.Permission("authentication required")
	}
	if actor.Role == auth.RolePatient {
		p.UserID = actor.UserID
	}
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		return apperr.FieldValidation("user_id", "user_id is required")
	}
	if err := s.validatePatient(p); err != nil {
		return err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient registered")
	return nil
}

// GetPatient hides profiles the actor may not see behind NotFound.
func (s *Service) GetPatient(ctx context.Context, actor *auth.Actor, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, p) {
		return nil, apperr.NotFound("patient")
	}
	return p, nil
}

func (s *Service) Me(ctx context.Context, actor *auth.Actor) (*Patient, error) {
	if actor == nil {
		return nil, apperr.Permission("authentication required")
	}
	return s.patients.GetByUserID(ctx, actor.UserID)
}

func (s *Service) ListPatients(ctx context.Context, actor *auth.Actor, limit, offset int) ([]*Patient, int, error) {
	if !actor.IsStaffOrAdmin() {
		return nil, 0, apperr.Permission("only staff and administrators can list patients")
	}
	return s.patients.List(ctx, limit, offset)
}

func applyUpdate(p *Patient, req UpdateRequest) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.FirstName, req.FirstName)
	set(&p.LastName, req.LastName)
	set(&p.Email, req.Email)
	set(&p.Phone, req.Phone)
	set(&p.Gender, req.Gender)
	set(&p.BloodType, req.BloodType)
	set(&p.Allergies, req.Allergies)
	set(&p.EmergencyContactName, req.EmergencyContactName)
	set(&p.EmergencyContactPhone, req.EmergencyContactPhone)
	set(&p.EmergencyContactRelationship, req.EmergencyContactRelationship)
	set(&p.MedicalConditions, req.MedicalConditions)
	set(&p.CurrentMedications, req.CurrentMedications)
	set(&p.Address, req.Address)
	set(&p.City, req.City)
	set(&p.State, req.State)
	set(&p.ZipCode, req.ZipCode)
	if req.DateOfBirth != nil {
		p.DateOfBirth = *req.DateOfBirth
	}
}

func (s *Service) UpdatePatient(ctx context.Context, actor *auth.Actor, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	p, err := s.GetPatient(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	applyUpdate(p, req)
	if err := s.validatePatient(p); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, actor *auth.Actor, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return apperr.Permission("only administrators can delete patients")
	}
	return s.patients.Delete(ctx, id)
}

// -- Insurance providers --

func validateProvider(p *InsuranceProvider) error {
	p.Name = strings.TrimSpace(p.Name)
	p.ContactEmail = strings.TrimSpace(p.ContactEmail)
	if p.Name == "" {
		return apperr.FieldValidation("name", "name is required")
	}
	if err := validEmail("contact_email", p.ContactEmail); err != nil {
		return err
	}
	return normalizePhone("contact_number", &p.ContactNumber)
}

func (s *Service) CreateProvider(ctx context.Context, actor *auth.Actor, p *InsuranceProvider) error {
	if !actor.IsAdmin() {
		return apperr.Permission("only administrators can manage insurance providers")
	}
	if err := validateProvider(p); err != nil {
		return err
	}
	return s.providers.Create(ctx, p)
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*InsuranceProvider, error) {
	return s.providers.GetByID(ctx, id)
}

func (s *Service) ListProviders(ctx context.Context, limit, offset int) ([]*InsuranceProvider, int, error) {
	return s.providers.List(ctx, limit, offset)
}

func (s *Service) UpdateProvider(ctx context.Context, actor *auth.Actor, p *InsuranceProvider) error {
	if !actor.IsAdmin() {
		return apperr.Permission("only administrators can manage insurance providers")
	}
	if err := validateProvider(p); err != nil {
		return err
	}
	return s.providers.Update(ctx, p)
}

func (s *Service) DeleteProvider(ctx context.Context, actor *auth.Actor, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return apperr.Permission("only administrators can manage insurance providers")
	}
	return s.providers.Delete(ctx, id)
}

// -- Patient insurances --

// insuranceOwner loads the patient and checks the actor may manage its
// insurance records.
func (s *Service) insuranceOwner(ctx context.Context, actor *auth.Actor, patientID uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.IsPatient(p.ID) {
		return nil, apperr.Permission("you do not have permission to access this patient's insurance")
	}
	return p, nil
}

func (s *Service) buildInsurance(ctx context.Context, ins *Insurance, req InsuranceRequest) error {
	ins.InsuranceProviderID = req.InsuranceProviderID
	ins.PolicyNumber = strings.TrimSpace(req.PolicyNumber)
	ins.GroupNumber = strings.TrimSpace(req.GroupNumber)
	ins.PolicyHolderName = strings.TrimSpace(req.PolicyHolderName)
	ins.PolicyHolderRelation = strings.TrimSpace(req.PolicyHolderRelation)
	ins.StartDate = req.StartDate
	ins.EndDate = req.EndDate
	ins.IsPrimary = req.IsPrimary == nil || *req.IsPrimary

	switch {
	case ins.PolicyNumber == "":
		return apperr.FieldValidation("policy_number", "policy_number is required")
	case ins.PolicyHolderName == "":
		return apperr.FieldValidation("policy_holder_name", "policy_holder_name is required")
	case !ins.StartDate.Valid:
		return apperr.FieldValidation("start_date", "start_date is required")
	case ins.EndDate.Valid && ins.EndDate.Time.Before(ins.StartDate.Time):
		return apperr.FieldValidation("end_date", "end_date must not be before start_date")
	}

	provider, err := s.providers.GetByID(ctx, ins.InsuranceProviderID)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.FieldValidation("insurance_provider_id", "insurance provider not found")
	}
	if err != nil {
		return err
	}
	ins.ProviderName = provider.Name
	return nil
}

func (s *Service) ListInsurances(ctx context.Context, actor *auth.Actor, patientID uuid.UUID) ([]*Insurance, error) {
	if _, err := s.insuranceOwner(ctx, actor, patientID); err != nil {
		return nil, err
	}
	return s.insurances.ListByPatient(ctx, patientID)
}

// AddInsurance stores a new insurance. A primary insurance demotes every
// other insurance of the patient in the same transaction.
func (s *Service) AddInsurance(ctx context.Context, actor *auth.Actor, patientID uuid.UUID, req InsuranceRequest) (*Insurance, error) {
	if _, err := s.insuranceOwner(ctx, actor, patientID); err != nil {
		return nil, err
	}
	ins := &Insurance{PatientID: patientID}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.buildInsurance(ctx, ins, req); err != nil {
			return err
		}
		if err := s.insurances.Create(ctx, ins); err != nil {
			return err
		}
		if ins.IsPrimary {
			return s.insurances.ClearPrimary(ctx, patientID, ins.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ins, nil
}

func (s *Service) visibleInsurance(ctx context.Context, actor *auth.Actor, id uuid.UUID) (*Insurance, error) {
	ins, err := s.insurances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.IsPatient(ins.PatientID) {
		return nil, apperr.NotFound("patient insurance")
	}
	return ins, nil
}

func (s *Service) GetInsurance(ctx context.Context, actor *auth.Actor, id uuid.UUID) (*Insurance, error) {
	return s.visibleInsurance(ctx, actor, id)
}

func (s *Service) UpdateInsurance(ctx context.Context, actor *auth.Actor, id uuid.UUID, req InsuranceRequest) (*Insurance, error) {
	var ins *Insurance
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if ins, err = s.visibleInsurance(ctx, actor, id); err != nil {
			return err
		}
		if err := s.buildInsurance(ctx, ins, req); err != nil {
			return err
		}
		if err := s.insurances.Update(ctx, ins); err != nil {
			return err
		}
		if ins.IsPrimary {
			return s.insurances.ClearPrimary(ctx, ins.PatientID, ins.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ins, nil
}

// DeleteInsurance removes an insurance. When the primary one goes, the
// patient's oldest remaining insurance becomes primary.
func (s *Service) DeleteInsurance(ctx context.Context, actor *auth.Actor, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		ins, err := s.visibleInsurance(ctx, actor, id)
		if err != nil {
			return err
		}
		if err := s.insurances.Delete(ctx, id); err != nil {
			return err
		}
		if ins.IsPrimary {
			return s.insurances.PromoteOldest(ctx, ins.PatientID)
		}
		return nil
	})
}
