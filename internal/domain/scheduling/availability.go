package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
)

// canManageDoctor reports whether actor may change doctorID's hours.
func canManageDoctor(actor *auth.Actor, doctorID uuid.UUID) bool {
	return actor.IsAdmin() || actor.IsDoctor(doctorID)
}

func (s *Service) requireDoctor(ctx context.Context, doctorID uuid.UUID) error {
	_, err := s.directory.Doctor(ctx, doctorID)
	return err
}

// -- Availability --

func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.availability.ListByDoctor(ctx, doctorID)
}

func (s *Service) GetAvailability(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return s.availability.GetByID(ctx, id)
}

// validateWindow enforces start < end and rejects windows touching or
// overlapping another window of the same doctor and weekday.
func (s *Service) validateWindow(ctx context.Context, a *Availability) error {
	if a.DayOfWeek < 0 || a.DayOfWeek > 6 {
		return apperr.FieldValidation("day_of_week", "day_of_week must be between 0 (Monday) and 6 (Sunday)")
	}
	if a.StartTime >= a.EndTime {
		return apperr.Validation(ReasonInvalidInterval, "start time must be before end time")
	}
	siblings, err := s.availability.FindAvailability(ctx, a.DoctorID, a.DayOfWeek)
	if err != nil {
		return err
	}
	for _, o := range siblings {
		if o.ID == a.ID {
			continue
		}
		if a.StartTime <= o.EndTime && a.EndTime >= o.StartTime {
			return apperr.Conflict("availability_overlap", "this availability overlaps with %s - %s", o.StartTime, o.EndTime)
		}
	}
	return nil
}

func (s *Service) CreateAvailability(ctx context.Context, actor *auth.Actor, a *Availability) error {
	if !canManageDoctor(actor, a.DoctorID) {
		return apperr.Permission("you do not have permission to modify this availability")
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requireDoctor(ctx, a.DoctorID); err != nil {
			return err
		}
		if err := s.validateWindow(ctx, a); err != nil {
			return err
		}
		return s.availability.Create(ctx, a)
	})
}

// AvailabilityPatch holds the mutable fields of a window.
type AvailabilityPatch struct {
	DayOfWeek *int       `json:"day_of_week"`
	StartTime *TimeOfDay `json:"start_time"`
	EndTime   *TimeOfDay `json:"end_time"`
}

func (s *Service) UpdateAvailability(ctx context.Context, actor *auth.Actor, id uuid.UUID, patch AvailabilityPatch) (*Availability, error) {
	var a *Availability
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.availability.GetByID(ctx, id); err != nil {
			return err
		}
		if !canManageDoctor(actor, a.DoctorID) {
			return apperr.Permission("you do not have permission to modify this availability")
		}
		if patch.DayOfWeek != nil {
			a.DayOfWeek = *patch.DayOfWeek
		}
		if patch.StartTime != nil {
			a.StartTime = *patch.StartTime
		}
		if patch.EndTime != nil {
			a.EndTime = *patch.EndTime
		}
		if err := s.validateWindow(ctx, a); err != nil {
			return err
		}
		return s.availability.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) DeleteAvailability(ctx context.Context, actor *auth.Actor, id uuid.UUID) error {
	a, err := s.availability.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canManageDoctor(actor, a.DoctorID) {
		return apperr.Permission("you do not have permission to delete this availability")
	}
	return s.availability.Delete(ctx, id)
}

// -- Time off --

// ListTimeOff returns the doctor's time-off. Only the doctor and
// administrators see entries that already started.
func (s *Service) ListTimeOff(ctx context.Context, actor *auth.Actor, doctorID uuid.UUID) ([]*TimeOff, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	var after *time.Time
	if !canManageDoctor(actor, doctorID) {
		now := s.now()
		after = &now
	}
	return s.timeOff.ListByDoctor(ctx, doctorID, after)
}

func (s *Service) GetTimeOff(ctx context.Context, id uuid.UUID) (*TimeOff, error) {
	return s.timeOff.GetByID(ctx, id)
}

// validateTimeOff enforces start < end and rejects intervals touching or
// overlapping another time-off of the same doctor.
func (s *Service) validateTimeOff(ctx context.Context, t *TimeOff) error {
	if t.Start.IsZero() || t.End.IsZero() {
		return apperr.Validation(ReasonInvalidInterval, "start_datetime and end_datetime are required")
	}
	if !t.Start.Before(t.End) {
		return apperr.Validation(ReasonInvalidInterval, "start datetime must be before end datetime")
	}
	others, err := s.timeOff.FindTimeOff(ctx, t.DoctorID, t.Start, t.End)
	if err != nil {
		return err
	}
	for _, o := range others {
		if o.ID == t.ID {
			continue
		}
		if closedOverlap(t.Start, t.End, o.Start, o.End) {
			return apperr.Conflict("time_off_overlap", "this time off overlaps with %s - %s",
				o.Start.In(s.loc).Format(messageTimeLayout), o.End.In(s.loc).Format(messageTimeLayout))
		}
	}
	return nil
}

func (s *Service) CreateTimeOff(ctx context.Context, actor *auth.Actor, t *TimeOff) error {
	if !canManageDoctor(actor, t.DoctorID) {
		return apperr.Permission("you do not have permission to modify this time off")
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requireDoctor(ctx, t.DoctorID); err != nil {
			return err
		}
		if err := s.validateTimeOff(ctx, t); err != nil {
			return err
		}
		return s.timeOff.Create(ctx, t)
	})
}

// TimeOffPatch holds the mutable fields of a time-off entry.
type TimeOffPatch struct {
	Start  *time.Time `json:"start_datetime"`
	End    *time.Time `json:"end_datetime"`
	Reason *string    `json:"reason"`
}

func (s *Service) UpdateTimeOff(ctx context.Context, actor *auth.Actor, id uuid.UUID, patch TimeOffPatch) (*TimeOff, error) {
	var t *TimeOff
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if t, err = s.timeOff.GetByID(ctx, id); err != nil {
			return err
		}
		if !canManageDoctor(actor, t.DoctorID) {
			return apperr.Permission("you do not have permission to modify this time off")
		}
		if patch.Start != nil {
			t.Start = *patch.Start
		}
		if patch.End != nil {
			t.End = *patch.End
		}
		if patch.Reason != nil {
			t.Reason = *patch.Reason
		}
		if err := s.validateTimeOff(ctx, t); err != nil {
			return err
		}
		return s.timeOff.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) DeleteTimeOff(ctx context.Context, actor *auth.Actor, id uuid.UUID) error {
	t, err := s.timeOff.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canManageDoctor(actor, t.DoctorID) {
		return apperr.Permission("you do not have permission to delete this time off")
	}
	return s.timeOff.Delete(ctx, id)
}
