package doctor

import (
	"context"

	"github.com/google/uuid"
)

type SpecializationRepository interface {
	Create(ctx context.Context, s *Specialization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Specialization, error)
	Update(ctx context.Context, s *Specialization) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Specialization, int, error)
	// CountExisting returns how many of ids name a stored specialization.
	CountExisting(ctx context.Context, ids []uuid.UUID) (int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID string) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Doctor, int, error)
	// SetSpecializations replaces the doctor's specialization links.
	SetSpecializations(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) error
}
