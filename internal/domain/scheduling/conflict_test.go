package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisched/medisched/internal/platform/apperr"
)

type checkerFixture struct {
	db      *memDB
	checker *ConflictChecker
	doctor  uuid.UUID
	patient uuid.UUID
}

func newCheckerFixture(t *testing.T, loc *time.Location) *checkerFixture {
	t.Helper()
	m := newMemDB()
	f := &checkerFixture{db: m, doctor: m.addDoctor("House"), patient: m.addPatient("Ann")}
	f.checker = NewConflictChecker(memAppointments{m}, memTimeOff{m}, memAvailability{m}, loc)
	// Monday and Tuesday, two non-adjacent windows each.
	for _, day := range []int{0, 1} {
		m.addWindow(f.doctor, day, Clock(9, 0), Clock(12, 0))
		m.addWindow(f.doctor, day, Clock(13, 0), Clock(17, 0))
	}
	return f
}

func (f *checkerFixture) check(start, end time.Time) error {
	return f.checker.Check(context.Background(), Candidate{DoctorID: f.doctor, PatientID: f.patient, Start: start, End: end})
}

func TestConflictChecker_Accepts(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)
	assert.NoError(t, f.check(at(4, 10, 0), at(4, 10, 30)))
	assert.NoError(t, f.check(at(4, 11, 30), at(4, 12, 0)), "window end is inclusive")
}

func TestConflictChecker_InvalidInterval(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)

	err := f.check(at(4, 10, 30), at(4, 10, 30))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, ReasonInvalidInterval, apperr.CodeOf(err))
	assert.Equal(t, "start time must be before end time", err.Error())

	err = f.check(at(4, 11, 0), at(4, 10, 0))
	assert.Equal(t, ReasonInvalidInterval, apperr.CodeOf(err))
}

func TestConflictChecker_DoctorConflict(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)
	f.db.addAppointment(f.doctor, f.db.addPatient("Bob"), at(4, 10, 0), at(4, 10, 30), StatusConfirmed)

	err := f.check(at(4, 10, 15), at(4, 10, 45))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, ReasonDoctorConflict, apperr.CodeOf(err))
	assert.Equal(t, "doctor already has an appointment from 2024-03-04 10:00 to 2024-03-04 10:30", err.Error())
}

func TestConflictChecker_TouchingAppointmentsDoNotCollide(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)
	f.db.addAppointment(f.doctor, f.patient, at(4, 10, 0), at(4, 10, 30), StatusScheduled)

	assert.NoError(t, f.check(at(4, 10, 30), at(4, 11, 0)))
	assert.NoError(t, f.check(at(4, 9, 30), at(4, 10, 0)))
}

func TestConflictChecker_PatientConflict(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)
	other := f.db.addDoctor("Wilson")
	f.db.addAppointment(other, f.patient, at(4, 10, 0), at(4, 11, 0), StatusCheckedIn)

	err := f.check(at(4, 10, 30), at(4, 11, 0))
	require.Error(t, err)
	assert.Equal(t, ReasonPatientConflict, apperr.CodeOf(err))
}

func TestConflictChecker_InactiveAppointmentsIgnored(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)
	for _, st := range []Status{StatusCancelled, StatusNoShow, StatusRescheduled, StatusCompleted} {
		f.db.addAppointment(f.doctor, f.patient, at(4, 10, 0), at(4, 10, 30), st)
	}
	assert.NoError(t, f.check(at(4, 10, 0), at(4, 10, 30)))
}

func TestConflictChecker_ExcludesItself(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)
	a := f.db.addAppointment(f.doctor, f.patient, at(4, 10, 0), at(4, 10, 30), StatusScheduled)

	err := f.checker.Check(context.Background(), Candidate{
		DoctorID: f.doctor, PatientID: f.patient,
		Start: at(4, 10, 15), End: at(4, 10, 45), Excluding: &a.ID,
	})
	assert.NoError(t, err)
}

func TestConflictChecker_TimeOffClosedTest(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)
	f.db.addTimeOff(f.doctor, at(5, 14, 15), at(5, 15, 0))

	err := f.check(at(5, 14, 0), at(5, 14, 30))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, ReasonTimeOffConflict, apperr.CodeOf(err))

	// Touching the time-off boundary still collides.
	err = f.check(at(5, 15, 0), at(5, 15, 30))
	assert.Equal(t, ReasonTimeOffConflict, apperr.CodeOf(err))

	assert.NoError(t, f.check(at(5, 13, 30), at(5, 14, 0)))
}

func TestConflictChecker_NoHoursThatDay(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)

	// 2024-03-06 is a Wednesday.
	err := f.check(at(6, 10, 0), at(6, 10, 30))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAvailability))
	assert.Equal(t, ReasonNoHours, apperr.CodeOf(err))
	assert.Equal(t, "doctor does not work on this day", err.Error())
}

func TestConflictChecker_OutsideHours(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"before opening", at(4, 8, 30), at(4, 9, 30)},
		{"spans lunch gap", at(4, 11, 45), at(4, 13, 15)},
		{"after closing", at(4, 16, 45), at(4, 17, 15)},
		{"crosses midnight", at(4, 16, 0), at(5, 9, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.check(tt.start, tt.end)
			require.Error(t, err)
			assert.Equal(t, ReasonOutsideHours, apperr.CodeOf(err))
			assert.Equal(t, "appointment time is outside the doctor's working hours", err.Error())
		})
	}
}

func TestConflictChecker_ChecksRunInOrder(t *testing.T) {
	f := newCheckerFixture(t, time.UTC)
	f.db.addAppointment(f.doctor, f.db.addPatient("Bob"), at(6, 10, 0), at(6, 10, 30), StatusScheduled)
	f.db.addTimeOff(f.doctor, at(6, 0, 0), at(6, 23, 0))

	// Wednesday has no hours, but the doctor conflict wins.
	err := f.check(at(6, 10, 0), at(6, 10, 30))
	assert.Equal(t, ReasonDoctorConflict, apperr.CodeOf(err))
}

func TestConflictChecker_ClinicTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	f := newCheckerFixture(t, loc)

	// 14:00 UTC on Monday 2024-03-04 is 09:00 in New York.
	assert.NoError(t, f.check(at(4, 14, 0), at(4, 14, 30)))

	// 13:30 UTC is 08:30 local, before opening.
	err = f.check(at(4, 13, 30), at(4, 14, 0))
	assert.Equal(t, ReasonOutsideHours, apperr.CodeOf(err))

	// 02:00 UTC Tuesday is still Monday 21:00 in New York.
	err = f.check(at(5, 2, 0), at(5, 2, 30))
	assert.Equal(t, ReasonOutsideHours, apperr.CodeOf(err))
}

func TestConflictChecker_FinderErrorsPropagate(t *testing.T) {
	boom := errors.New("connection reset")
	checker := NewConflictChecker(failingFinder{boom}, memTimeOff{newMemDB()}, memAvailability{newMemDB()}, nil)

	err := checker.Check(context.Background(), Candidate{DoctorID: uuid.New(), PatientID: uuid.New(), Start: at(4, 10, 0), End: at(4, 11, 0)})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "", apperr.CodeOf(err))
}

type failingFinder struct{ err error }

func (f failingFinder) FindOverlapping(context.Context, OverlapQuery) ([]*Appointment, error) {
	return nil, f.err
}

func TestDayOfWeek(t *testing.T) {
	assert.Equal(t, 0, DayOfWeek(at(4, 12, 0)), "Monday")
	assert.Equal(t, 1, DayOfWeek(at(5, 12, 0)), "Tuesday")
	assert.Equal(t, 6, DayOfWeek(at(10, 12, 0)), "Sunday")
	assert.Equal(t, "Sunday", DayName(6))
	assert.Equal(t, "", DayName(7))
}
