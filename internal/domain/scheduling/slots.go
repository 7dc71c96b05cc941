package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/medisched/internal/platform/apperr"
)

// Slot is a bookable interval rendered as wall clock "HH:MM" strings.
type Slot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// SlotGenerator computes open booking slots from availability, booked
// appointments and time-off. Results are recomputed on every call.
type SlotGenerator struct {
	availability AvailabilityFinder
	appointments AppointmentRepository
	timeOff      TimeOffFinder
	loc          *time.Location
}

func NewSlotGenerator(avail AvailabilityFinder, appts AppointmentRepository, timeOff TimeOffFinder, loc *time.Location) *SlotGenerator {
	if loc == nil {
		loc = time.UTC
	}
	return &SlotGenerator{availability: avail, appointments: appts, timeOff: timeOff, loc: loc}
}

// Generate lists the free slots of doctorID on the calendar day of date.
// A day without windows yields an empty list.
func (g *SlotGenerator) Generate(ctx context.Context, doctorID uuid.UUID, date time.Time, durationMinutes int) ([]Slot, error) {
	if durationMinutes <= 0 {
		return nil, apperr.FieldValidation("duration", "slot duration must be a positive number of minutes")
	}
	step := time.Duration(durationMinutes) * time.Minute

	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, g.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	windows, err := g.availability.FindAvailability(ctx, doctorID, DayOfWeek(dayStart))
	if err != nil {
		return nil, fmt.Errorf("find availability: %w", err)
	}
	slots := []Slot{}
	if len(windows) == 0 {
		return slots, nil
	}

	booked, err := g.appointments.FindStartingBetween(ctx, doctorID, dayStart, dayEnd, ActiveStatuses)
	if err != nil {
		return nil, fmt.Errorf("find appointments: %w", err)
	}
	offs, err := g.timeOff.FindTimeOff(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("find time off: %w", err)
	}

	sorted := make([]*Availability, len(windows))
	copy(sorted, windows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })

	for _, w := range sorted {
		windowEnd := w.EndTime.On(dayStart)
		for cur := w.StartTime.On(dayStart); !cur.Add(step).After(windowEnd); cur = cur.Add(step) {
			next := cur.Add(step)
			if slotBlocked(cur, next, booked, offs) {
				continue
			}
			slots = append(slots, Slot{
				StartTime: cur.In(g.loc).Format("15:04"),
				EndTime:   next.In(g.loc).Format("15:04"),
			})
		}
	}
	return slots, nil
}

func slotBlocked(start, end time.Time, booked []*Appointment, offs []*TimeOff) bool {
	for _, a := range booked {
		if a.Status.IsActive() && halfOpenOverlap(start, end, a.Start, a.End) {
			return true
		}
	}
	for _, off := range offs {
		if halfOpenOverlap(start, end, off.Start, off.End) {
			return true
		}
	}
	return false
}
