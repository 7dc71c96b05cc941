package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/medisched/internal/platform/apperr"
)

// Reason codes carried by conflict checker rejections.
const (
	ReasonInvalidInterval = "invalid_interval"
	ReasonDoctorConflict  = "doctor_conflict"
	ReasonPatientConflict = "patient_conflict"
	ReasonTimeOffConflict = "time_off_conflict"
	ReasonNoHours         = "no_hours_that_day"
	ReasonOutsideHours    = "outside_hours"
)

const messageTimeLayout = "2006-01-02 15:04"

// Candidate is a proposed appointment interval. Excluding names the
// appointment being moved so it does not collide with itself.
type Candidate struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Start     time.Time
	End       time.Time
	Excluding *uuid.UUID
}

// ConflictChecker decides whether a candidate appointment may be committed.
// It only reads through its finders.
type ConflictChecker struct {
	appointments AppointmentFinder
	timeOff      TimeOffFinder
	availability AvailabilityFinder
	loc          *time.Location
}

// NewConflictChecker evaluates weekdays and working hours in loc. A nil loc
// means UTC.
func NewConflictChecker(appts AppointmentFinder, timeOff TimeOffFinder, avail AvailabilityFinder, loc *time.Location) *ConflictChecker {
	if loc == nil {
		loc = time.UTC
	}
	return &ConflictChecker{appointments: appts, timeOff: timeOff, availability: avail, loc: loc}
}

// Location is the clinic time zone used for wall clock evaluation.
func (c *ConflictChecker) Location() *time.Location { return c.loc }

// Check runs the checks in order and returns the first violation, or nil.
func (c *ConflictChecker) Check(ctx context.Context, cand Candidate) error {
	if !cand.Start.Before(cand.End) {
		return apperr.Validation(ReasonInvalidInterval, "start time must be before end time")
	}

	doctorID, patientID := cand.DoctorID, cand.PatientID
	doctorHits, err := c.appointments.FindOverlapping(ctx, OverlapQuery{
		DoctorID:  &doctorID,
		Start:     cand.Start,
		End:       cand.End,
		Excluding: cand.Excluding,
		Statuses:  ActiveStatuses,
	})
	if err != nil {
		return fmt.Errorf("find doctor appointments: %w", err)
	}
	if a := firstOverlapping(doctorHits, cand); a != nil {
		return apperr.Conflict(ReasonDoctorConflict, "doctor already has an appointment from %s to %s",
			c.format(a.Start), c.format(a.End))
	}

	patientHits, err := c.appointments.FindOverlapping(ctx, OverlapQuery{
		PatientID: &patientID,
		Start:     cand.Start,
		End:       cand.End,
		Excluding: cand.Excluding,
		Statuses:  ActiveStatuses,
	})
	if err != nil {
		return fmt.Errorf("find patient appointments: %w", err)
	}
	if a := firstOverlapping(patientHits, cand); a != nil {
		return apperr.Conflict(ReasonPatientConflict, "patient already has an appointment from %s to %s",
			c.format(a.Start), c.format(a.End))
	}

	offs, err := c.timeOff.FindTimeOff(ctx, cand.DoctorID, cand.Start, cand.End)
	if err != nil {
		return fmt.Errorf("find time off: %w", err)
	}
	for _, off := range offs {
		if closedOverlap(cand.Start, cand.End, off.Start, off.End) {
			return apperr.Conflict(ReasonTimeOffConflict, "doctor is not available from %s to %s",
				c.format(off.Start), c.format(off.End))
		}
	}

	start := cand.Start.In(c.loc)
	windows, err := c.availability.FindAvailability(ctx, cand.DoctorID, DayOfWeek(start))
	if err != nil {
		return fmt.Errorf("find availability: %w", err)
	}
	if len(windows) == 0 {
		return apperr.Availability(ReasonNoHours, "doctor does not work on this day")
	}

	from, to := c.wallClock(cand.Start, cand.End)
	for _, w := range windows {
		if w.StartTime <= from && to <= w.EndTime {
			return nil
		}
	}
	return apperr.Availability(ReasonOutsideHours, "appointment time is outside the doctor's working hours")
}

// wallClock returns start and end as offsets from the start day's midnight in
// the clinic zone. An end on a later day lands past 24:00.
func (c *ConflictChecker) wallClock(start, end time.Time) (TimeOfDay, TimeOfDay) {
	s, e := start.In(c.loc), end.In(c.loc)
	days := civilDay(e).Sub(civilDay(s)) / (24 * time.Hour)
	return ClockOf(s), ClockOf(e) + TimeOfDay(days*24*time.Hour)
}

func (c *ConflictChecker) format(t time.Time) string {
	return t.In(c.loc).Format(messageTimeLayout)
}

// civilDay is the calendar date of t as a UTC midnight, so day arithmetic is
// unaffected by DST shifts.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func firstOverlapping(appts []*Appointment, cand Candidate) *Appointment {
	for _, a := range appts {
		if cand.Excluding != nil && a.ID == *cand.Excluding {
			continue
		}
		if !a.Status.IsActive() {
			continue
		}
		if halfOpenOverlap(cand.Start, cand.End, a.Start, a.End) {
			return a
		}
	}
	return nil
}
