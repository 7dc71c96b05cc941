package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppointmentFinder returns appointments overlapping a candidate interval.
type AppointmentFinder interface {
	FindOverlapping(ctx context.Context, q OverlapQuery) ([]*Appointment, error)
}

// TimeOffFinder returns time-off intervals touching [from, to].
type TimeOffFinder interface {
	FindTimeOff(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*TimeOff, error)
}

// AvailabilityFinder returns a doctor's windows for one weekday.
type AvailabilityFinder interface {
	FindAvailability(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]*Availability, error)
}

// Transactor runs fn as one atomic unit of work.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Directory resolves doctors and patients. Missing entries are reported
// with apperr.NotFound.
type Directory interface {
	Doctor(ctx context.Context, id uuid.UUID) (*Participant, error)
	Patient(ctx context.Context, id uuid.UUID) (*Participant, error)
}

// AppointmentFilter narrows appointment listings. Zero values do not filter.
// Upcoming and Past are evaluated against Now.
type AppointmentFilter struct {
	DoctorID    *uuid.UUID
	PatientID   *uuid.UUID
	Statuses    []Status
	StartFrom   *time.Time
	StartBefore *time.Time
	Upcoming    bool
	Past        bool
	Now         time.Time
}

type AppointmentRepository interface {
	AppointmentFinder
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	// FindStartingBetween returns the doctor's appointments with a start in
	// [from, to), ordered by start.
	FindStartingBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time, statuses []Status) ([]*Appointment, error)
}

type AppointmentTypeRepository interface {
	Create(ctx context.Context, t *AppointmentType) error
	GetByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error)
	Update(ctx context.Context, t *AppointmentType) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*AppointmentType, int, error)
}

// ReminderFilter scopes reminder listings to the appointments of one doctor
// or patient.
type ReminderFilter struct {
	AppointmentID *uuid.UUID
	DoctorID      *uuid.UUID
	PatientID     *uuid.UUID
	Sent          *bool
}

type ReminderRepository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)
	Update(ctx context.Context, r *Reminder) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ReminderFilter, limit, offset int) ([]*Reminder, int, error)
	// ListDue returns pending reminders of active appointments that are
	// scheduled, and not backing off, at or before now. Oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Reminder, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID, f DeliveryFailure) error
	// DeleteUnsent drops the pending reminders of an appointment.
	DeleteUnsent(ctx context.Context, appointmentID uuid.UUID) (int, error)
}

type AvailabilityRepository interface {
	AvailabilityFinder
	Create(ctx context.Context, a *Availability) error
	GetByID(ctx context.Context, id uuid.UUID) (*Availability, error)
	Update(ctx context.Context, a *Availability) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error)
}

type TimeOffRepository interface {
	TimeOffFinder
	Create(ctx context.Context, t *TimeOff) error
	GetByID(ctx context.Context, id uuid.UUID) (*TimeOff, error)
	Update(ctx context.Context, t *TimeOff) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByDoctor returns the doctor's time-off ordered by start. A non-nil
	// startingAfter keeps only entries starting after it.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, startingAfter *time.Time) ([]*TimeOff, error)
}
