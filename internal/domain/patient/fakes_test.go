package patient

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
	patients   map[uuid.UUID]Patient
	providers  map[uuid.UUID]InsuranceProvider
	insurances map[uuid.UUID]Insurance
	clock      time.Time
}

func newMemStore() *memStore {
	return &memStore{
		patients:   map[uuid.UUID]Patient{},
		providers:  map[uuid.UUID]InsuranceProvider{},
		insurances: map[uuid.UUID]Insurance{},
		clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick hands out strictly increasing creation times.
func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

// RunInTx restores the store when fn fails.
func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	patients := map[uuid.UUID]Patient{}
	providers := map[uuid.UUID]InsuranceProvider{}
	insurances := map[uuid.UUID]Insurance{}
	for k, v := range m.patients {
		patients[k] = v
	}
	for k, v := range m.providers {
		providers[k] = v
	}
	for k, v := range m.insurances {
		insurances[k] = v
	}
	if err := fn(ctx); err != nil {
		m.patients, m.providers, m.insurances = patients, providers, insurances
		return err
	}
	return nil
}

type memPatients struct{ *memStore }

func (r memPatients) Create(_ context.Context, p *Patient) error {
	for _, existing := range r.patients {
		if existing.UserID == p.UserID {
			return apperr.Conflict("duplicate_user", "this user already has a patient profile")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = r.tick()
	r.patients[p.ID] = *p
	return nil
}

func (r memPatients) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := r.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient")
	}
	return &p, nil
}

func (r memPatients) GetByUserID(_ context.Context, userID string) (*Patient, error) {
	for _, p := range r.patients {
		if p.UserID == userID {
			p := p
			return &p, nil
		}
	}
	return nil, apperr.NotFound("patient")
}

func (r memPatients) Update(_ context.Context, p *Patient) error {
	if _, ok := r.patients[p.ID]; !ok {
		return apperr.NotFound("patient")
	}
	r.patients[p.ID] = *p
	return nil
}

func (r memPatients) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.patients[id]; !ok {
		return apperr.NotFound("patient")
	}
	delete(r.patients, id)
	for k, ins := range r.insurances {
		if ins.PatientID == id {
			delete(r.insurances, k)
		}
	}
	return nil
}

func (r memPatients) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	items := []*Patient{}
	for _, p := range r.patients {
		p := p
		items = append(items, &p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].LastName < items[j].LastName })
	return items, len(items), nil
}

type memProviders struct{ *memStore }

func (r memProviders) Create(_ context.Context, p *InsuranceProvider) error {
	for _, existing := range r.providers {
		if existing.Name == p.Name {
			return apperr.Conflict("duplicate_name", "an insurance provider with this name already exists")
		}
	}
	p.ID = uuid.New()
	r.providers[p.ID] = *p
	return nil
}

func (r memProviders) GetByID(_ context.Context, id uuid.UUID) (*InsuranceProvider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, apperr.NotFound("insurance provider")
	}
	return &p, nil
}

func (r memProviders) Update(_ context.Context, p *InsuranceProvider) error {
	if _, ok := r.providers[p.ID]; !ok {
		return apperr.NotFound("insurance provider")
	}
	r.providers[p.ID] = *p
	return nil
}

func (r memProviders) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.providers[id]; !ok {
		return apperr.NotFound("insurance provider")
	}
	delete(r.providers, id)
	return nil
}

func (r memProviders) List(_ context.Context, limit, offset int) ([]*InsuranceProvider, int, error) {
	items := []*InsuranceProvider{}
	for _, p := range r.providers {
		p := p
		items = append(items, &p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, len(items), nil
}

type memInsurances struct{ *memStore }

func (r memInsurances) withProvider(ins Insurance) *Insurance {
	ins.ProviderName = r.providers[ins.InsuranceProviderID].Name
	return &ins
}

func (r memInsurances) Create(_ context.Context, ins *Insurance) error {
	ins.ID = uuid.New()
	ins.CreatedAt = r.tick()
	r.insurances[ins.ID] = *ins
	return nil
}

func (r memInsurances) GetByID(_ context.Context, id uuid.UUID) (*Insurance, error) {
	ins, ok := r.insurances[id]
	if !ok {
		return nil, apperr.NotFound("patient insurance")
	}
	return r.withProvider(ins), nil
}

func (r memInsurances) Update(_ context.Context, ins *Insurance) error {
	if _, ok := r.insurances[ins.ID]; !ok {
		return apperr.NotFound("patient insurance")
	}
	r.insurances[ins.ID] = *ins
	return nil
}

func (r memInsurances) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.insurances[id]; !ok {
		return apperr.NotFound("patient insurance")
	}
	delete(r.insurances, id)
	return nil
}

func (r memInsurances) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Insurance, error) {
	items := []*Insurance{}
	for _, ins := range r.insurances {
		if ins.PatientID == patientID {
			items = append(items, r.withProvider(ins))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsPrimary != items[j].IsPrimary {
			return items[i].IsPrimary
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (r memInsurances) ClearPrimary(_ context.Context, patientID, keep uuid.UUID) error {
	for k, ins := range r.insurances {
		if ins.PatientID == patientID && k != keep && ins.IsPrimary {
			ins.IsPrimary = false
			r.insurances[k] = ins
		}
	}
	return nil
}

func (r memInsurances) PromoteOldest(_ context.Context, patientID uuid.UUID) error {
	var oldest *Insurance
	for _, ins := range r.insurances {
		ins := ins
		if ins.PatientID == patientID && (oldest == nil || ins.CreatedAt.Before(oldest.CreatedAt)) {
			oldest = &ins
		}
	}
	if oldest != nil {
		oldest.IsPrimary = true
		r.insurances[oldest.ID] = *oldest
	}
	return nil
}

func newTestService(m *memStore) *Service {
	s := NewService(memPatients{m}, memProviders{m}, memInsurances{m}, m, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func adminActor() *auth.Actor { return &auth.Actor{UserID: "admin-1", Role: auth.RoleAdmin} }

func staffActor() *auth.Actor { return &auth.Actor{UserID: "staff-1", Role: auth.RoleStaff} }

func patientActor(id *uuid.UUID, userID string) *auth.Actor {
	return &auth.Actor{UserID: userID, Role: auth.RolePatient, PatientID: id}
}

func doctorActor() *auth.Actor {
	id := uuid.New()
	return &auth.Actor{UserID: "doctor-1", Role: auth.RoleDoctor, DoctorID: &id}
}

func ptr[T any](v T) *T { return &v }
