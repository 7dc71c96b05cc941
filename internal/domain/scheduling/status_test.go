package scheduling

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
)

func TestCheckTransition(t *testing.T) {
	doctorID, patientID := uuid.New(), uuid.New()
	appt := func(st Status) *Appointment {
		return &Appointment{ID: uuid.New(), DoctorID: doctorID, PatientID: patientID, Status: st}
	}

	tests := []struct {
		name    string
		actor   *auth.Actor
		from    Status
		to      Status
		wantErr error
		code    string
	}{
		{"confirm by patient", patientActor(patientID), StatusScheduled, StatusConfirmed, nil, ""},
		{"same status", patientActor(patientID), StatusConfirmed, StatusConfirmed, nil, ""},
		{"check in by doctor", doctorActor(doctorID), StatusConfirmed, StatusCheckedIn, nil, ""},
		{"complete by staff", staffActor(), StatusInProgress, StatusCompleted, nil, ""},
		{"backwards", adminActor(), StatusCompleted, StatusScheduled, apperr.ErrValidation, "previous_status"},
		{"confirmed to scheduled", adminActor(), StatusConfirmed, StatusScheduled, apperr.ErrValidation, "previous_status"},
		{"clinical by patient", patientActor(patientID), StatusScheduled, StatusCheckedIn, apperr.ErrPermission, "permission_denied"},
		{"no show by patient", patientActor(patientID), StatusScheduled, StatusNoShow, apperr.ErrPermission, "permission_denied"},
		{"cancel own", patientActor(patientID), StatusScheduled, StatusCancelled, nil, ""},
		{"cancel other", patientActor(uuid.New()), StatusScheduled, StatusCancelled, apperr.ErrPermission, "permission_denied"},
		{"cancel by doctor", doctorActor(doctorID), StatusScheduled, StatusCancelled, apperr.ErrPermission, "permission_denied"},
		{"cancel by admin", adminActor(), StatusConfirmed, StatusCancelled, nil, ""},
		{"unknown", adminActor(), StatusScheduled, Status("LOST"), apperr.ErrValidation, "invalid_status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransition(tt.actor, appt(tt.from), tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

func TestCheckTransition_Messages(t *testing.T) {
	a := &Appointment{PatientID: uuid.New(), Status: StatusCompleted}
	assert.EqualError(t, CheckTransition(adminActor(), a, StatusScheduled), "cannot change to a previous status")

	a.Status = StatusScheduled
	assert.EqualError(t, CheckTransition(patientActor(a.PatientID), a, StatusCompleted),
		"you do not have permission to update to this status")
	assert.EqualError(t, CheckTransition(patientActor(uuid.New()), a, StatusCancelled),
		"you can only cancel your own appointments")
}

func TestStatus(t *testing.T) {
	st, ok := ParseStatus(" checked_in ")
	assert.True(t, ok)
	assert.Equal(t, StatusCheckedIn, st)

	_, ok = ParseStatus("LOST")
	assert.False(t, ok)

	for _, s := range ActiveStatuses {
		assert.True(t, s.IsActive(), s)
		assert.False(t, s.IsTerminal(), s)
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled} {
		assert.False(t, s.IsActive(), s)
		assert.True(t, s.IsTerminal(), s)
	}
}

func TestTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	assert.NoError(t, err)
	assert.Equal(t, Clock(9, 30), tod)
	assert.Equal(t, "09:30", tod.String())

	tod, err = ParseTimeOfDay("17:00:15")
	assert.NoError(t, err)
	assert.Equal(t, "17:00:15", tod.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)

	var decoded TimeOfDay
	assert.NoError(t, decoded.UnmarshalJSON([]byte(`"13:45"`)))
	b, err := decoded.MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `"13:45"`, string(b))

	assert.Equal(t, at(4, 13, 45), decoded.On(at(4, 22, 10)))
}
