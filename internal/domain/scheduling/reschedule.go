package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
)

// RescheduleRequest moves an appointment to NewStart, keeping its duration.
type RescheduleRequest struct {
	NewStart time.Time `json:"new_start_datetime"`
	Reason   string    `json:"reason"`
}

// Reschedule marks the appointment RESCHEDULED and books a successor at the
// new time. The successor links back through OriginalAppointmentID. Both
// writes and the successor's reminder commit together or not at all.
func (s *Service) Reschedule(ctx context.Context, actor *auth.Actor, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	now := s.now()
	if req.NewStart.IsZero() {
		return nil, apperr.FieldValidation("new_start_datetime", "new_start_datetime is required")
	}
	if !req.NewStart.After(now) {
		return nil, apperr.FieldValidation("new_start_datetime", "new appointment time must be in the future")
	}

	var successor *Appointment
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		old, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !canSee(actor, old) {
			return apperr.Permission("you do not have permission to reschedule this appointment")
		}
		if old.Status.IsTerminal() {
			return apperr.Validation("terminal_status", "cannot reschedule an appointment with status %s", old.Status)
		}

		newEnd := req.NewStart.Add(old.Duration())
		excluding := old.ID
		if err := s.check(ctx, Candidate{
			DoctorID:  old.DoctorID,
			PatientID: old.PatientID,
			Start:     req.NewStart,
			End:       newEnd,
			Excluding: &excluding,
		}); err != nil {
			return err
		}

		old.Status = StatusRescheduled
		old.Notes = appendNote(old.Notes, rescheduleNote(
			now.In(s.loc).Format(messageTimeLayout), req.NewStart.In(s.loc).Format(messageTimeLayout), req.Reason))
		if err := s.appointments.Update(ctx, old); err != nil {
			return fmt.Errorf("update rescheduled appointment: %w", err)
		}
		// Pending reminders would announce the superseded time.
		if _, err := s.reminders.DeleteUnsent(ctx, old.ID); err != nil {
			return err
		}

		originalID := old.ID
		successor = &Appointment{
			PatientID:             old.PatientID,
			DoctorID:              old.DoctorID,
			AppointmentTypeID:     old.AppointmentTypeID,
			Start:                 req.NewStart,
			End:                   newEnd,
			Status:                StatusScheduled,
			Reason:                old.Reason,
			Notes:                 strings.TrimSpace(fmt.Sprintf("Rescheduled from appointment on %s. %s", old.Start.In(s.loc).Format(messageTimeLayout), req.Reason)),
			IsVirtual:             old.IsVirtual,
			MeetingLink:           old.MeetingLink,
			OriginalAppointmentID: &originalID,
		}
		if err := s.appointments.Create(ctx, successor); err != nil {
			return fmt.Errorf("create successor appointment: %w", err)
		}

		at := req.NewStart.Add(-24 * time.Hour)
		if !at.After(now) {
			return nil
		}
		doctor, err := s.directory.Doctor(ctx, old.DoctorID)
		if err != nil {
			return err
		}
		return s.reminders.Create(ctx, &Reminder{
			AppointmentID: successor.ID,
			Type:          ReminderEmail,
			ScheduledTime: at,
			Message: fmt.Sprintf("Reminder: You have a rescheduled appointment with %s on %s",
				doctor, req.NewStart.In(s.loc).Format(reminderTimeLayout)),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("successor_id", successor.ID.String()).
		Time("new_start", successor.Start).
		Msg("appointment rescheduled")
	return successor, nil
}

func rescheduleNote(on, to, reason string) string {
	note := fmt.Sprintf("Rescheduled on %s to %s.", on, to)
	if reason = strings.TrimSpace(reason); reason != "" {
		note += " Reason: " + reason
	}
	return note
}

// appendNote adds note on a new line, without a leading newline when notes
// is empty.
func appendNote(notes, note string) string {
	if strings.TrimSpace(notes) == "" {
		return note
	}
	return notes + "\n" + note
}
