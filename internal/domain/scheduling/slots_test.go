package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisched/medisched/internal/platform/apperr"
)

func slotStarts(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime
	}
	return out
}

func TestSlotGenerator_ExcludesBookedAppointment(t *testing.T) {
	m := newMemDB()
	doctor := m.addDoctor("House")
	m.addWindow(doctor, 0, Clock(9, 0), Clock(12, 0))
	m.addAppointment(doctor, m.addPatient("Ann"), at(4, 10, 0), at(4, 10, 30), StatusScheduled)

	gen := NewSlotGenerator(memAvailability{m}, memAppointments{m}, memTimeOff{m}, time.UTC)
	slots, err := gen.Generate(context.Background(), doctor, at(4, 0, 0), 30)
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:00", "11:30"}, slotStarts(slots))
	assert.Equal(t, Slot{StartTime: "11:30", EndTime: "12:00"}, slots[len(slots)-1])
}

func TestSlotGenerator_NoWindowsIsEmpty(t *testing.T) {
	m := newMemDB()
	doctor := m.addDoctor("House")
	gen := NewSlotGenerator(memAvailability{m}, memAppointments{m}, memTimeOff{m}, time.UTC)

	slots, err := gen.Generate(context.Background(), doctor, at(4, 0, 0), 30)
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestSlotGenerator_ShortWindowsAndOrdering(t *testing.T) {
	m := newMemDB()
	doctor := m.addDoctor("House")
	m.addWindow(doctor, 0, Clock(14, 0), Clock(15, 0))
	m.addWindow(doctor, 0, Clock(9, 0), Clock(9, 20))
	m.addWindow(doctor, 0, Clock(10, 0), Clock(11, 0))

	gen := NewSlotGenerator(memAvailability{m}, memAppointments{m}, memTimeOff{m}, time.UTC)
	slots, err := gen.Generate(context.Background(), doctor, at(4, 0, 0), 30)
	require.NoError(t, err)

	assert.Equal(t, []string{"10:00", "10:30", "14:00", "14:30"}, slotStarts(slots))
}

func TestSlotGenerator_AdjacentWindowsNotMerged(t *testing.T) {
	m := newMemDB()
	doctor := m.addDoctor("House")
	m.addWindow(doctor, 0, Clock(9, 0), Clock(9, 45))
	m.addWindow(doctor, 0, Clock(9, 45), Clock(10, 30))

	gen := NewSlotGenerator(memAvailability{m}, memAppointments{m}, memTimeOff{m}, time.UTC)
	slots, err := gen.Generate(context.Background(), doctor, at(4, 0, 0), 30)
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "09:45"}, slotStarts(slots))
}

func TestSlotGenerator_TimeOffAndInactiveAppointments(t *testing.T) {
	m := newMemDB()
	doctor := m.addDoctor("House")
	patient := m.addPatient("Ann")
	m.addWindow(doctor, 0, Clock(9, 0), Clock(11, 0))
	m.addTimeOff(doctor, at(4, 9, 30), at(4, 10, 0))
	m.addAppointment(doctor, patient, at(4, 10, 0), at(4, 10, 30), StatusCancelled)

	gen := NewSlotGenerator(memAvailability{m}, memAppointments{m}, memTimeOff{m}, time.UTC)
	slots, err := gen.Generate(context.Background(), doctor, at(4, 0, 0), 30)
	require.NoError(t, err)

	// Slots touching the time-off boundary stay open.
	assert.Equal(t, []string{"09:00", "10:00", "10:30"}, slotStarts(slots))
}

func TestSlotGenerator_Idempotent(t *testing.T) {
	m := newMemDB()
	doctor := m.addDoctor("House")
	m.addWindow(doctor, 0, Clock(9, 0), Clock(12, 0))
	m.addAppointment(doctor, m.addPatient("Ann"), at(4, 9, 15), at(4, 9, 45), StatusConfirmed)

	gen := NewSlotGenerator(memAvailability{m}, memAppointments{m}, memTimeOff{m}, time.UTC)
	first, err := gen.Generate(context.Background(), doctor, at(4, 0, 0), 15)
	require.NoError(t, err)
	second, err := gen.Generate(context.Background(), doctor, at(4, 0, 0), 15)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotContains(t, slotStarts(first), "09:15")
	assert.NotContains(t, slotStarts(first), "09:30")
	assert.Contains(t, slotStarts(first), "09:45")
}

func TestSlotGenerator_InvalidDuration(t *testing.T) {
	m := newMemDB()
	gen := NewSlotGenerator(memAvailability{m}, memAppointments{m}, memTimeOff{m}, time.UTC)

	_, err := gen.Generate(context.Background(), m.addDoctor("House"), at(4, 0, 0), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
