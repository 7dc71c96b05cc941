package scheduling

import (
	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
)

// clinicalStatuses may only be set by clinical actors.
var clinicalStatuses = map[Status]bool{
	StatusCheckedIn:  true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusNoShow:     true,
}

// CheckTransition validates moving appt to next on behalf of actor. Statuses
// only move forward in rank.
func CheckTransition(actor *auth.Actor, appt *Appointment, next Status) error {
	if _, ok := statusRank[next]; !ok {
		return apperr.FieldValidation("status", "unknown status %q", next)
	}
	if next == appt.Status {
		return nil
	}
	if next.Rank() < appt.Status.Rank() {
		return apperr.Validation("previous_status", "cannot change to a previous status")
	}
	if clinicalStatuses[next] && !actor.IsClinical() {
		return apperr.Permission("you do not have permission to update to this status")
	}
	if next == StatusCancelled && !actor.IsAdmin() && !actor.IsPatient(appt.PatientID) {
		return apperr.Permission("you can only cancel your own appointments")
	}
	return nil
}
