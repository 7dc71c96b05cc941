package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
)

// memDB backs the in-memory repositories. Rows are stored and returned as
// copies so a rolled back transaction cannot leak through shared pointers.
type memDB struct {
	appts     map[uuid.UUID]Appointment
	types     map[uuid.UUID]AppointmentType
	reminders map[uuid.UUID]Reminder
	avail     map[uuid.UUID]Availability
	offs      map[uuid.UUID]TimeOff
	doctors   map[uuid.UUID]Participant
	patients  map[uuid.UUID]Participant

	failReminderCreate error
	txCount            int
}

func newMemDB() *memDB {
	return &memDB{
		appts:     map[uuid.UUID]Appointment{},
		types:     map[uuid.UUID]AppointmentType{},
		reminders: map[uuid.UUID]Reminder{},
		avail:     map[uuid.UUID]Availability{},
		offs:      map[uuid.UUID]TimeOff{},
		doctors:   map[uuid.UUID]Participant{},
		patients:  map[uuid.UUID]Participant{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RunInTx restores every table when fn fails.
func (m *memDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txCount++
	appts, types, reminders := copyMap(m.appts), copyMap(m.types), copyMap(m.reminders)
	avail, offs := copyMap(m.avail), copyMap(m.offs)
	if err := fn(ctx); err != nil {
		m.appts, m.types, m.reminders, m.avail, m.offs = appts, types, reminders, avail, offs
		return err
	}
	return nil
}

// -- directory --

func (m *memDB) Doctor(_ context.Context, id uuid.UUID) (*Participant, error) {
	p, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor")
	}
	return &p, nil
}

func (m *memDB) Patient(_ context.Context, id uuid.UUID) (*Participant, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient")
	}
	return &p, nil
}

func (m *memDB) addDoctor(name string) uuid.UUID {
	id := uuid.New()
	m.doctors[id] = Participant{ID: id, UserID: "user-" + id.String()[:8], DisplayName: "Dr. " + name, Email: "doc@example.com"}
	return id
}

func (m *memDB) addPatient(name string) uuid.UUID {
	id := uuid.New()
	m.patients[id] = Participant{ID: id, UserID: "user-" + id.String()[:8], DisplayName: name, Email: "patient@example.com", Phone: "+14155550100"}
	return id
}

// -- appointments --

type memAppointments struct{ db *memDB }

func (r memAppointments) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.db.appts[a.ID] = *a
	return nil
}

func (r memAppointments) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := r.db.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	return &a, nil
}

func (r memAppointments) Update(_ context.Context, a *Appointment) error {
	if _, ok := r.db.appts[a.ID]; !ok {
		return apperr.NotFound("appointment")
	}
	a.UpdatedAt = time.Now()
	r.db.appts[a.ID] = *a
	return nil
}

func (r memAppointments) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.db.appts, id)
	return nil
}

func hasStatus(statuses []Status, s Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (r memAppointments) sorted() []*Appointment {
	out := make([]*Appointment, 0, len(r.db.appts))
	for _, a := range r.db.appts {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (r memAppointments) FindOverlapping(_ context.Context, q OverlapQuery) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range r.sorted() {
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if q.Excluding != nil && a.ID == *q.Excluding {
			continue
		}
		if !hasStatus(q.Statuses, a.Status) {
			continue
		}
		if halfOpenOverlap(q.Start, q.End, a.Start, a.End) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memAppointments) FindStartingBetween(_ context.Context, doctorID uuid.UUID, from, to time.Time, statuses []Status) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range r.sorted() {
		if a.DoctorID == doctorID && !a.Start.Before(from) && a.Start.Before(to) && hasStatus(statuses, a.Status) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memAppointments) List(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range r.sorted() {
		switch {
		case f.DoctorID != nil && a.DoctorID != *f.DoctorID,
			f.PatientID != nil && a.PatientID != *f.PatientID,
			!hasStatus(f.Statuses, a.Status),
			f.StartFrom != nil && a.Start.Before(*f.StartFrom),
			f.StartBefore != nil && !a.Start.Before(*f.StartBefore),
			f.Upcoming && (a.Start.Before(f.Now) || (a.Status != StatusScheduled && a.Status != StatusConfirmed)),
			f.Past && !(a.Start.Before(f.Now) || a.Status.IsTerminal()):
			continue
		}
		out = append(out, a)
	}
	total := len(out)
	if offset >= total {
		return []*Appointment{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

// -- appointment types --

type memTypes struct{ db *memDB }

func (r memTypes) Create(_ context.Context, t *AppointmentType) error {
	t.ID = uuid.New()
	r.db.types[t.ID] = *t
	return nil
}

func (r memTypes) GetByID(_ context.Context, id uuid.UUID) (*AppointmentType, error) {
	t, ok := r.db.types[id]
	if !ok {
		return nil, apperr.NotFound("appointment type")
	}
	return &t, nil
}

func (r memTypes) Update(_ context.Context, t *AppointmentType) error {
	r.db.types[t.ID] = *t
	return nil
}

func (r memTypes) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.db.types, id)
	return nil
}

func (r memTypes) List(_ context.Context, limit, offset int) ([]*AppointmentType, int, error) {
	out := []*AppointmentType{}
	for _, t := range r.db.types {
		t := t
		out = append(out, &t)
	}
	return out, len(out), nil
}

// -- reminders --

type memReminders struct{ db *memDB }

func (r memReminders) Create(_ context.Context, rm *Reminder) error {
	if r.db.failReminderCreate != nil {
		return r.db.failReminderCreate
	}
	rm.ID = uuid.New()
	r.db.reminders[rm.ID] = *rm
	return nil
}

func (r memReminders) GetByID(_ context.Context, id uuid.UUID) (*Reminder, error) {
	rm, ok := r.db.reminders[id]
	if !ok {
		return nil, apperr.NotFound("appointment reminder")
	}
	return &rm, nil
}

func (r memReminders) Update(_ context.Context, rm *Reminder) error {
	r.db.reminders[rm.ID] = *rm
	return nil
}

func (r memReminders) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.db.reminders, id)
	return nil
}

func (r memReminders) List(_ context.Context, f ReminderFilter, limit, offset int) ([]*Reminder, int, error) {
	out := []*Reminder{}
	for _, rm := range r.db.reminders {
		rm := rm
		a := r.db.appts[rm.AppointmentID]
		switch {
		case f.AppointmentID != nil && rm.AppointmentID != *f.AppointmentID,
			f.DoctorID != nil && a.DoctorID != *f.DoctorID,
			f.PatientID != nil && a.PatientID != *f.PatientID:
			continue
		}
		out = append(out, &rm)
	}
	return out, len(out), nil
}

func (r memReminders) ListDue(_ context.Context, now time.Time, limit int) ([]*Reminder, error) {
	var out []*Reminder
	for _, rm := range r.db.reminders {
		rm := rm
		if rm.Sent || rm.Discarded || rm.ScheduledTime.After(now) {
			continue
		}
		if rm.NextAttemptAt != nil && rm.NextAttemptAt.After(now) {
			continue
		}
		if a, ok := r.db.appts[rm.AppointmentID]; !ok || !a.Status.IsActive() {
			continue
		}
		out = append(out, &rm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memReminders) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	rm := r.db.reminders[id]
	rm.Sent = true
	rm.SentTime = &at
	rm.NextAttemptAt = nil
	r.db.reminders[id] = rm
	return nil
}

func (r memReminders) RecordFailure(_ context.Context, id uuid.UUID, f DeliveryFailure) error {
	rm := r.db.reminders[id]
	rm.DeliveredChannels = append([]string(nil), f.Delivered...)
	rm.Attempts++
	rm.LastError = f.Error
	rm.NextAttemptAt = f.RetryAt
	rm.Discarded = f.RetryAt == nil
	r.db.reminders[id] = rm
	return nil
}

func (r memReminders) DeleteUnsent(_ context.Context, appointmentID uuid.UUID) (int, error) {
	n := 0
	for id, rm := range r.db.reminders {
		if rm.AppointmentID == appointmentID && !rm.Sent {
			delete(r.db.reminders, id)
			n++
		}
	}
	return n, nil
}

func (m *memDB) remindersFor(apptID uuid.UUID) []Reminder {
	var out []Reminder
	for _, rm := range m.reminders {
		if rm.AppointmentID == apptID {
			out = append(out, rm)
		}
	}
	return out
}

// -- availability --

type memAvailability struct{ db *memDB }

func (r memAvailability) Create(_ context.Context, a *Availability) error {
	a.ID = uuid.New()
	r.db.avail[a.ID] = *a
	return nil
}

func (r memAvailability) GetByID(_ context.Context, id uuid.UUID) (*Availability, error) {
	a, ok := r.db.avail[id]
	if !ok {
		return nil, apperr.NotFound("availability")
	}
	return &a, nil
}

func (r memAvailability) Update(_ context.Context, a *Availability) error {
	r.db.avail[a.ID] = *a
	return nil
}

func (r memAvailability) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.db.avail, id)
	return nil
}

func (r memAvailability) FindAvailability(_ context.Context, doctorID uuid.UUID, day int) ([]*Availability, error) {
	var out []*Availability
	for _, a := range r.db.avail {
		a := a
		if a.DoctorID == doctorID && a.DayOfWeek == day {
			out = append(out, &a)
		}
	}
	return out, nil
}

func (r memAvailability) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	var out []*Availability
	for day := 0; day < 7; day++ {
		ws, _ := r.FindAvailability(ctx, doctorID, day)
		out = append(out, ws...)
	}
	return out, nil
}

// -- time off --

type memTimeOff struct{ db *memDB }

func (r memTimeOff) Create(_ context.Context, t *TimeOff) error {
	t.ID = uuid.New()
	r.db.offs[t.ID] = *t
	return nil
}

func (r memTimeOff) GetByID(_ context.Context, id uuid.UUID) (*TimeOff, error) {
	t, ok := r.db.offs[id]
	if !ok {
		return nil, apperr.NotFound("time off")
	}
	return &t, nil
}

func (r memTimeOff) Update(_ context.Context, t *TimeOff) error {
	r.db.offs[t.ID] = *t
	return nil
}

func (r memTimeOff) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.db.offs, id)
	return nil
}

func (r memTimeOff) FindTimeOff(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]*TimeOff, error) {
	var out []*TimeOff
	for _, t := range r.db.offs {
		t := t
		if t.DoctorID == doctorID && closedOverlap(from, to, t.Start, t.End) {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (r memTimeOff) ListByDoctor(_ context.Context, doctorID uuid.UUID, after *time.Time) ([]*TimeOff, error) {
	var out []*TimeOff
	for _, t := range r.db.offs {
		t := t
		if t.DoctorID == doctorID && (after == nil || t.Start.After(*after)) {
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// -- fixtures --

// testNow is a Monday.
var testNow = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func newTestService(m *memDB) *Service {
	svc := NewService(Deps{
		Appointments: memAppointments{m},
		Types:        memTypes{m},
		Reminders:    memReminders{m},
		Availability: memAvailability{m},
		TimeOff:      memTimeOff{m},
		Directory:    m,
		Tx:           m,
		Location:     time.UTC,
		Logger:       zerolog.Nop(),
	})
	svc.now = func() time.Time { return testNow }
	return svc
}

func (m *memDB) addWindow(doctorID uuid.UUID, day int, from, to TimeOfDay) {
	id := uuid.New()
	m.avail[id] = Availability{ID: id, DoctorID: doctorID, DayOfWeek: day, StartTime: from, EndTime: to}
}

func (m *memDB) addTimeOff(doctorID uuid.UUID, start, end time.Time) {
	id := uuid.New()
	m.offs[id] = TimeOff{ID: id, DoctorID: doctorID, Start: start, End: end}
}

func (m *memDB) addAppointment(doctorID, patientID uuid.UUID, start, end time.Time, status Status) Appointment {
	a := Appointment{ID: uuid.New(), DoctorID: doctorID, PatientID: patientID, Start: start, End: end, Status: status}
	m.appts[a.ID] = a
	return a
}

func (m *memDB) addType(minutes int) uuid.UUID {
	id := uuid.New()
	m.types[id] = AppointmentType{ID: id, Name: "Consultation", DurationMinutes: minutes, ColorHex: DefaultColorHex}
	return id
}

func adminActor() *auth.Actor { return &auth.Actor{UserID: "admin", Role: auth.RoleAdmin} }

func staffActor() *auth.Actor { return &auth.Actor{UserID: "staff", Role: auth.RoleStaff} }

func doctorActor(id uuid.UUID) *auth.Actor {
	return &auth.Actor{UserID: "doctor", Role: auth.RoleDoctor, DoctorID: &id}
}

func patientActor(id uuid.UUID) *auth.Actor {
	return &auth.Actor{UserID: "patient", Role: auth.RolePatient, PatientID: &id}
}

func ptr[T any](v T) *T { return &v }
