package patient

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type ProviderRepository interface {
	Create(ctx context.Context, p *InsuranceProvider) error
	GetByID(ctx context.Context, id uuid.UUID) (*InsuranceProvider, error)
	Update(ctx context.Context, p *InsuranceProvider) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*InsuranceProvider, int, error)
}

type InsuranceRepository interface {
	Create(ctx context.Context, ins *Insurance) error
	GetByID(ctx context.Context, id uuid.UUID) (*Insurance, error)
	Update(ctx context.Context, ins *Insurance) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByPatient returns the patient's insurances, primary first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Insurance, error)
	// ClearPrimary unsets the primary flag on every insurance of the patient
	// except keep.
	ClearPrimary(ctx context.Context, patientID, keep uuid.UUID) error
	// PromoteOldest marks the patient's oldest insurance primary, if any.
	PromoteOldest(ctx context.Context, patientID uuid.UUID) error
}
