package medicalrecord

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
)

type memStore struct {
	records      map[uuid.UUID]MedicalRecord
	access       []Access
	appointments map[uuid.UUID]AppointmentLink
	clock        time.Time
}

func newMemStore() *memStore {
	return &memStore{
		records:      map[uuid.UUID]MedicalRecord{},
		appointments: map[uuid.UUID]AppointmentLink{},
		clock:        time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Hour)
	return m.clock
}

// RunInTx restores the store when fn fails.
func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	records := map[uuid.UUID]MedicalRecord{}
	for k, v := range m.records {
		records[k] = v
	}
	access := append([]Access(nil), m.access...)
	if err := fn(ctx); err != nil {
		m.records, m.access = records, access
		return err
	}
	return nil
}

func (m *memStore) addAppointment(doctorID, patientID uuid.UUID) uuid.UUID {
	id := uuid.New()
	m.appointments[id] = AppointmentLink{ID: id, DoctorID: doctorID, PatientID: patientID, Start: m.tick()}
	return id
}

func (m *memStore) visible(r MedicalRecord, scope Scope) bool {
	switch {
	case scope.All:
		return true
	case scope.DoctorID != nil:
		if r.DoctorID == *scope.DoctorID {
			return true
		}
		for _, a := range m.appointments {
			if a.DoctorID == *scope.DoctorID && a.PatientID == r.PatientID {
				return true
			}
		}
		return false
	case scope.PatientID != nil:
		return r.PatientID == *scope.PatientID && (scope.IncludeConfidential || !r.IsConfidential)
	}
	return false
}

type memRecords struct{ *memStore }

func (r memRecords) Create(_ context.Context, m *MedicalRecord) error {
	if m.AppointmentID != nil {
		for _, existing := range r.records {
			if existing.AppointmentID != nil && *existing.AppointmentID == *m.AppointmentID {
				return apperr.Conflict("duplicate_appointment", "a medical record already exists for this appointment")
			}
		}
	}
	m.ID = uuid.New()
	m.CreatedAt = r.tick()
	m.UpdatedAt = m.CreatedAt
	r.records[m.ID] = *m
	return nil
}

func (r memRecords) GetByID(_ context.Context, id uuid.UUID, scope Scope) (*MedicalRecord, error) {
	m, ok := r.records[id]
	if !ok || !r.visible(m, scope) {
		return nil, apperr.NotFound("medical record")
	}
	m.DoctorName = "Dr. Test"
	return &m, nil
}

func (r memRecords) Update(_ context.Context, m *MedicalRecord) error {
	if _, ok := r.records[m.ID]; !ok {
		return apperr.NotFound("medical record")
	}
	r.records[m.ID] = *m
	return nil
}

func (r memRecords) List(_ context.Context, scope Scope, f ListFilter, limit, offset int) ([]*MedicalRecord, int, error) {
	items := []*MedicalRecord{}
	for _, m := range r.records {
		m := m
		switch {
		case !r.visible(m, scope):
		case f.DoctorID != nil && m.DoctorID != *f.DoctorID:
		case f.PatientID != nil && m.PatientID != *f.PatientID:
		case f.AppointmentID != nil && (m.AppointmentID == nil || *m.AppointmentID != *f.AppointmentID):
		case f.StartDate != nil && m.CreatedAt.Before(*f.StartDate):
		case f.EndDate != nil && !m.CreatedAt.Before(f.EndDate.AddDate(0, 0, 1)):
		default:
			items = append(items, &m)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, len(items), nil
}

type memAccess struct{ *memStore }

func (r memAccess) Log(_ context.Context, a *Access) error {
	a.ID = uuid.New()
	a.AccessedAt = r.tick()
	r.access = append(r.access, *a)
	return nil
}

func (r memAccess) ListByRecord(_ context.Context, recordID uuid.UUID) ([]*Access, error) {
	items := []*Access{}
	for i := len(r.access) - 1; i >= 0; i-- {
		if r.access[i].MedicalRecordID == recordID {
			a := r.access[i]
			items = append(items, &a)
		}
	}
	return items, nil
}

type memAppointments struct{ *memStore }

func (r memAppointments) GetAppointmentLink(_ context.Context, id uuid.UUID) (*AppointmentLink, error) {
	l, ok := r.appointments[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	return &l, nil
}

func newTestService(m *memStore) *Service {
	return NewService(Deps{
		Records:      memRecords{m},
		Access:       memAccess{m},
		Appointments: memAppointments{m},
		Tx:           m,
		Logger:       zerolog.Nop(),
	})
}

func adminActor() *auth.Actor { return &auth.Actor{UserID: "admin-1", Role: auth.RoleAdmin} }

func staffActor() *auth.Actor { return &auth.Actor{UserID: "staff-1", Role: auth.RoleStaff} }

func doctorActor(id uuid.UUID) *auth.Actor {
	return &auth.Actor{UserID: "doctor-" + id.String()[:8], Role: auth.RoleDoctor, DoctorID: &id}
}

func patientActor(id uuid.UUID) *auth.Actor {
	return &auth.Actor{UserID: "patient-" + id.String()[:8], Role: auth.RolePatient, PatientID: &id}
}

func ptr[T any](v T) *T { return &v }
