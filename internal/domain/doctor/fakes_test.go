package doctor

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
)

type memStore struct {
	specs   map[uuid.UUID]Specialization
	doctors map[uuid.UUID]Doctor
	links   map[uuid.UUID][]uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		specs:   map[uuid.UUID]Specialization{},
		doctors: map[uuid.UUID]Doctor{},
		links:   map[uuid.UUID][]uuid.UUID{},
	}
}

// RunInTx restores the store when fn fails.
func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	specs, doctors, links := map[uuid.UUID]Specialization{}, map[uuid.UUID]Doctor{}, map[uuid.UUID][]uuid.UUID{}
	for k, v := range m.specs {
		specs[k] = v
	}
	for k, v := range m.doctors {
		doctors[k] = v
	}
	for k, v := range m.links {
		links[k] = v
	}
	if err := fn(ctx); err != nil {
		m.specs, m.doctors, m.links = specs, doctors, links
		return err
	}
	return nil
}

type memSpecs struct{ *memStore }

func (r memSpecs) Create(_ context.Context, s *Specialization) error {
	for _, existing := range r.specs {
		if existing.Name == s.Name {
			return apperr.Conflict("duplicate_name", "a specialization with this name already exists")
		}
	}
	s.ID = uuid.New()
	r.specs[s.ID] = *s
	return nil
}

func (r memSpecs) GetByID(_ context.Context, id uuid.UUID) (*Specialization, error) {
	s, ok := r.specs[id]
	if !ok {
		return nil, apperr.NotFound("specialization")
	}
	return &s, nil
}

func (r memSpecs) Update(_ context.Context, s *Specialization) error {
	if _, ok := r.specs[s.ID]; !ok {
		return apperr.NotFound("specialization")
	}
	r.specs[s.ID] = *s
	return nil
}

func (r memSpecs) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.specs[id]; !ok {
		return apperr.NotFound("specialization")
	}
	delete(r.specs, id)
	return nil
}

func (r memSpecs) List(_ context.Context, limit, offset int) ([]*Specialization, int, error) {
	items := []*Specialization{}
	for _, s := range r.specs {
		s := s
		items = append(items, &s)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, len(items), nil
}

func (r memSpecs) CountExisting(_ context.Context, ids []uuid.UUID) (int, error) {
	n := 0
	for _, id := range ids {
		if _, ok := r.specs[id]; ok {
			n++
		}
	}
	return n, nil
}

type memDoctors struct{ *memStore }

func (r memDoctors) hydrate(d Doctor) *Doctor {
	d.Specializations = []Specialization{}
	for _, id := range r.links[d.ID] {
		d.Specializations = append(d.Specializations, r.specs[id])
	}
	return &d
}

func (r memDoctors) Create(_ context.Context, d *Doctor) error {
	for _, existing := range r.doctors {
		if existing.LicenseNumber == d.LicenseNumber {
			return apperr.Conflict("duplicate_license", "a doctor with this license number already exists")
		}
	}
	d.ID = uuid.New()
	r.doctors[d.ID] = *d
	return nil
}

func (r memDoctors) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := r.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor")
	}
	return r.hydrate(d), nil
}

func (r memDoctors) GetByUserID(_ context.Context, userID string) (*Doctor, error) {
	for _, d := range r.doctors {
		if d.UserID == userID {
			return r.hydrate(d), nil
		}
	}
	return nil, apperr.NotFound("doctor")
}

func (r memDoctors) Update(_ context.Context, d *Doctor) error {
	if _, ok := r.doctors[d.ID]; !ok {
		return apperr.NotFound("doctor")
	}
	r.doctors[d.ID] = *d
	return nil
}

func (r memDoctors) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.doctors[id]; !ok {
		return apperr.NotFound("doctor")
	}
	delete(r.doctors, id)
	delete(r.links, id)
	return nil
}

func (r memDoctors) List(_ context.Context, f ListFilter, limit, offset int) ([]*Doctor, int, error) {
	items := []*Doctor{}
	for _, d := range r.doctors {
		if f.AcceptingOnly && !d.AcceptingNewPatients {
			continue
		}
		if f.SpecializationID != nil {
			found := false
			for _, id := range r.links[d.ID] {
				found = found || id == *f.SpecializationID
			}
			if !found {
				continue
			}
		}
		items = append(items, r.hydrate(d))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].LastName < items[j].LastName })
	return items, len(items), nil
}

func (r memDoctors) SetSpecializations(_ context.Context, doctorID uuid.UUID, ids []uuid.UUID) error {
	r.links[doctorID] = append([]uuid.UUID(nil), ids...)
	return nil
}

func newTestService(m *memStore) *Service {
	return NewService(memSpecs{m}, memDoctors{m}, m, zerolog.Nop())
}

func adminActor() *auth.Actor { return &auth.Actor{UserID: "admin-1", Role: auth.RoleAdmin} }

func doctorActor(id uuid.UUID, userID string) *auth.Actor {
	return &auth.Actor{UserID: userID, Role: auth.RoleDoctor, DoctorID: &id}
}

func patientActor() *auth.Actor { return &auth.Actor{UserID: "patient-1", Role: auth.RolePatient} }

func ptr[T any](v T) *T { return &v }
