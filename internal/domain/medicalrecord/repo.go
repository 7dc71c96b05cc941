package medicalrecord

import (
	"context"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	// GetByID returns NotFound when the record is missing or outside scope.
	GetByID(ctx context.Context, id uuid.UUID, scope Scope) (*MedicalRecord, error)
	Update(ctx context.Context, r *MedicalRecord) error
	List(ctx context.Context, scope Scope, f ListFilter, limit, offset int) ([]*MedicalRecord, int, error)
}

type AccessRepository interface {
	Log(ctx context.Context, a *Access) error
	// ListByRecord returns the record's access trail, newest first.
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Access, error)
}

// AppointmentReader resolves the appointment a record is linked to.
type AppointmentReader interface {
	GetAppointmentLink(ctx context.Context, id uuid.UUID) (*AppointmentLink, error)
}
