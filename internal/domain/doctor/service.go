package doctor

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/internal/platform/phone"
)

// Transactor runs fn as one atomic unit of work.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	specs   SpecializationRepository
	doctors DoctorRepository
	tx      Transactor
	logger  zerolog.Logger
}

func NewService(specs SpecializationRepository, doctors DoctorRepository, tx Transactor, logger zerolog.Logger) *Service {
	return &Service{
		specs:   specs,
		doctors: doctors,
		tx:      tx,
		logger:  logger.With().Str("component", "doctor").Logger(),
	}
}

func requireAdmin(actor *auth.Actor) error {
	if !actor.IsAdmin() {
		return apperr.Permission("only administrators can perform this action")
	}
	return nil
}

// -- Specializations --

func validateSpecialization(s *Specialization) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return apperr.FieldValidation("name", "name is required")
	}
	if len(s.Name) > 100 {
		return apperr.FieldValidation("name", "name must be at most 100 characters")
	}
	return nil
}

func (s *Service) CreateSpecialization(ctx context.Context, actor *auth.Actor, spec *Specialization) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := validateSpecialization(spec); err != nil {
		return err
	}
	return s.specs.Create(ctx, spec)
}

func (s *Service) GetSpecialization(ctx context.Context, id uuid.UUID) (*Specialization, error) {
	return s.specs.GetByID(ctx, id)
}

func (s *Service) UpdateSpecialization(ctx context.Context, actor *auth.Actor, spec *Specialization) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := validateSpecialization(spec); err != nil {
		return err
	}
	return s.specs.Update(ctx, spec)
}

func (s *Service) DeleteSpecialization(ctx context.Context, actor *auth.Actor, id uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	return s.specs.Delete(ctx, id)
}

func (s *Service) ListSpecializations(ctx context.Context, limit, offset int) ([]*Specialization, int, error) {
	return s.specs.List(ctx, limit, offset)
}

// -- Doctors --

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) checkSpecializations(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.specs.CountExisting(ctx, ids)
	if err != nil {
		return err
	}
	if n != len(ids) {
		return apperr.FieldValidation("specialization_ids", "one or more specializations do not exist")
	}
	return nil
}

// validateDoctor checks the invariants shared by create and update and
// normalizes the phone number in place.
func validateDoctor(d *Doctor) error {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.LicenseNumber = strings.TrimSpace(d.LicenseNumber)
	d.Email = strings.TrimSpace(d.Email)

	switch {
	case d.FirstName == "":
		return apperr.FieldValidation("first_name", "first_name is required")
	case d.LastName == "":
		return apperr.FieldValidation("last_name", "last_name is required")
	case d.LicenseNumber == "":
		return apperr.FieldValidation("license_number", "license_number is required")
	case d.YearsOfExperience < 0:
		return apperr.FieldValidation("years_of_experience", "years_of_experience cannot be negative")
	case d.ConsultationFee.IsNegative():
		return apperr.FieldValidation("consultation_fee", "consultation_fee cannot be negative")
	case d.ConsultationFee.GreaterThanOrEqual(decimal.New(1, 8)):
		return apperr.FieldValidation("consultation_fee", "consultation_fee is too large")
	}
	if d.Email != "" {
		if _, err := mail.ParseAddress(d.Email); err != nil {
			return apperr.FieldValidation("email", "invalid email address")
		}
	}
	normalized, err := phone.Normalize(d.Phone, "")
	if err != nil {
		return apperr.FieldValidation("phone", "invalid phone number")
	}
	d.Phone = normalized
	d.ConsultationFee = d.ConsultationFee.Round(2)
	return nil
}

func (s *Service) CreateDoctor(ctx context.Context, actor *auth.Actor, req CreateRequest) (*Doctor, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	d := &Doctor{
		UserID:               strings.TrimSpace(req.UserID),
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		Email:                req.Email,
		Phone:                req.Phone,
		LicenseNumber:        req.LicenseNumber,
		YearsOfExperience:    req.YearsOfExperience,
		Biography:            req.Biography,
		Education:            req.Education,
		AcceptingNewPatients: true,
		Address:              req.Address,
		City:                 req.City,
		State:                req.State,
		ZipCode:              req.ZipCode,
	}
	if req.AcceptingNewPatients != nil {
		d.AcceptingNewPatients = *req.AcceptingNewPatients
	}
	if req.ConsultationFee != nil {
		d.ConsultationFee = *req.ConsultationFee
	}
	if d.UserID == "" {
		return nil, apperr.FieldValidation("user_id", "user_id is required")
	}
	if err := validateDoctor(d); err != nil {
		return nil, err
	}
	specIDs := uniqueIDs(req.SpecializationIDs)

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.checkSpecializations(ctx, specIDs); err != nil {
			return err
		}
		if err := s.doctors.Create(ctx, d); err != nil {
			return err
		}
		return s.doctors.SetSpecializations(ctx, d.ID, specIDs)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Str("user_id", d.UserID).Msg("doctor registered")
	return s.doctors.GetByID(ctx, d.ID)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

// Me returns the doctor profile owned by actor.
func (s *Service) Me(ctx context.Context, actor *auth.Actor) (*Doctor, error) {
	if actor == nil {
		return nil, apperr.Permission("authentication required")
	}
	return s.doctors.GetByUserID(ctx, actor.UserID)
}

func (s *Service) ListDoctors(ctx context.Context, f ListFilter, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, f, limit, offset)
}

func applyUpdate(d *Doctor, req UpdateRequest) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&d.FirstName, req.FirstName)
	set(&d.LastName, req.LastName)
	set(&d.Email, req.Email)
	set(&d.Phone, req.Phone)
	set(&d.LicenseNumber, req.LicenseNumber)
	set(&d.Biography, req.Biography)
	set(&d.Education, req.Education)
	set(&d.Address, req.Address)
	set(&d.City, req.City)
	set(&d.State, req.State)
	set(&d.ZipCode, req.ZipCode)
	if req.YearsOfExperience != nil {
		d.YearsOfExperience = *req.YearsOfExperience
	}
	if req.AcceptingNewPatients != nil {
		d.AcceptingNewPatients = *req.AcceptingNewPatients
	}
	if req.ConsultationFee != nil {
		d.ConsultationFee = *req.ConsultationFee
	}
}

// UpdateDoctor applies a partial update. Only the doctor themselves or an
// administrator may change a profile.
func (s *Service) UpdateDoctor(ctx context.Context, actor *auth.Actor, id uuid.UUID, req UpdateRequest) (*Doctor, error) {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.doctors.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !actor.IsDoctor(d.ID) {
			return apperr.Permission("you do not have permission to modify this doctor profile")
		}
		applyUpdate(d, req)
		if err := validateDoctor(d); err != nil {
			return err
		}
		if err := s.doctors.Update(ctx, d); err != nil {
			return err
		}
		if req.SpecializationIDs != nil {
			ids := uniqueIDs(*req.SpecializationIDs)
			if err := s.checkSpecializations(ctx, ids); err != nil {
				return err
			}
			return s.doctors.SetSpecializations(ctx, d.ID, ids)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) DeleteDoctor(ctx context.Context, actor *auth.Actor, id uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.doctors.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("doctor_id", id.String()).Msg("doctor deleted")
	return nil
}
