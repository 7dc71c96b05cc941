package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/internal/platform/metrics"
)

const (
	DefaultReminderHours = 24
	MinReminderHours     = 1
	MaxReminderHours     = 72

	reminderTimeLayout = "2006-01-02 at 15:04"
)

// Deps wires the service to its storage and collaborators.
type Deps struct {
	Appointments AppointmentRepository
	Types        AppointmentTypeRepository
	Reminders    ReminderRepository
	Availability AvailabilityRepository
	TimeOff      TimeOffRepository
	Directory    Directory
	Tx           Transactor
	Location     *time.Location
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

type Service struct {
	appointments AppointmentRepository
	types        AppointmentTypeRepository
	reminders    ReminderRepository
	availability AvailabilityRepository
	timeOff      TimeOffRepository
	directory    Directory
	tx           Transactor
	checker      *ConflictChecker
	slots        *SlotGenerator
	loc          *time.Location
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewService(d Deps) *Service {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		appointments: d.Appointments,
		types:        d.Types,
		reminders:    d.Reminders,
		availability: d.Availability,
		timeOff:      d.TimeOff,
		directory:    d.Directory,
		tx:           d.Tx,
		checker:      NewConflictChecker(d.Appointments, d.TimeOff, d.Availability, loc),
		slots:        NewSlotGenerator(d.Availability, d.Appointments, d.TimeOff, loc),
		loc:          loc,
		logger:       d.Logger.With().Str("component", "scheduling").Logger(),
		metrics:      d.Metrics,
		now:          time.Now,
	}
}

// Checker exposes the conflict checker bound to the service's repositories.
func (s *Service) Checker() *ConflictChecker { return s.checker }

// check runs the conflict checker and counts rejections by reason.
func (s *Service) check(ctx context.Context, cand Candidate) error {
	err := s.checker.Check(ctx, cand)
	if err != nil {
		if code := apperr.CodeOf(err); code != "" {
			s.metrics.ObserveConflict(code)
		}
	}
	return err
}

// -- Access --

// canSee reports whether actor may read appt.
func canSee(actor *auth.Actor, appt *Appointment) bool {
	return actor.IsStaffOrAdmin() || actor.IsDoctor(appt.DoctorID) || actor.IsPatient(appt.PatientID)
}

func (s *Service) visibleAppointment(ctx context.Context, actor *auth.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, appt) {
		return nil, apperr.NotFound("appointment")
	}
	return appt, nil
}

// referencedDoctor resolves a doctor named by the request, turning a miss
// into a validation failure on doctor_id.
func (s *Service) referencedDoctor(ctx context.Context, id uuid.UUID) (*Participant, error) {
	p, err := s.directory.Doctor(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.FieldValidation("doctor_id", "doctor not found")
	}
	return p, err
}

func (s *Service) referencedPatient(ctx context.Context, id uuid.UUID) (*Participant, error) {
	p, err := s.directory.Patient(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.FieldValidation("patient_id", "patient not found")
	}
	return p, err
}

// -- Booking --

// BookingRequest is the input of Book. Nil pointers take their defaults.
type BookingRequest struct {
	PatientID           *uuid.UUID `json:"patient_id"`
	DoctorID            uuid.UUID  `json:"doctor_id"`
	AppointmentTypeID   uuid.UUID  `json:"appointment_type_id"`
	Start               time.Time  `json:"start_datetime"`
	End                 *time.Time `json:"end_datetime"`
	Reason              string     `json:"reason"`
	Notes               string     `json:"notes"`
	IsVirtual           bool       `json:"is_virtual"`
	MeetingLink         *string    `json:"meeting_link"`
	CreateReminder      *bool      `json:"create_reminder"`
	ReminderHoursBefore *int       `json:"reminder_hours_before"`
	ReminderType        string     `json:"reminder_type"`
}

// Book validates and stores a new appointment, plus its reminder when one is
// requested and still in the future. Everything happens in one transaction.
func (s *Service) Book(ctx context.Context, actor *auth.Actor, req BookingRequest) (*Appointment, error) {
	appt, err := s.book(ctx, actor, req)
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, apperr.ErrConflict):
			outcome = "conflict"
		case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrAvailability):
			outcome = "rejected"
		case errors.Is(err, apperr.ErrPermission):
			outcome = "forbidden"
		}
		s.metrics.ObserveBooking(outcome)
		return nil, err
	}
	s.metrics.ObserveBooking("created")
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("patient_id", appt.PatientID.String()).
		Time("start", appt.Start).
		Msg("appointment booked")
	return appt, nil
}

func (s *Service) book(ctx context.Context, actor *auth.Actor, req BookingRequest) (*Appointment, error) {
	now := s.now()

	var patientID uuid.UUID
	switch {
	case req.PatientID != nil:
		patientID = *req.PatientID
	case actor != nil && actor.PatientID != nil:
		patientID = *actor.PatientID
	default:
		return nil, apperr.FieldValidation("patient_id", "patient_id is required")
	}
	if actor != nil && actor.Role == auth.RolePatient && !actor.IsPatient(patientID) {
		return nil, apperr.Permission("you can only make appointments for yourself")
	}
	if req.DoctorID == uuid.Nil {
		return nil, apperr.FieldValidation("doctor_id", "doctor_id is required")
	}
	if req.AppointmentTypeID == uuid.Nil {
		return nil, apperr.FieldValidation("appointment_type_id", "appointment_type_id is required")
	}
	if req.Start.IsZero() {
		return nil, apperr.FieldValidation("start_datetime", "start_datetime is required")
	}
	if !actor.IsStaffOrAdmin() && req.Start.Before(now) {
		return nil, apperr.FieldValidation("start_datetime", "appointments cannot be scheduled in the past")
	}

	withReminder := req.CreateReminder == nil || *req.CreateReminder
	hours := DefaultReminderHours
	if req.ReminderHoursBefore != nil {
		hours = *req.ReminderHoursBefore
	}
	if hours < MinReminderHours || hours > MaxReminderHours {
		return nil, apperr.FieldValidation("reminder_hours_before", "reminder_hours_before must be between %d and %d", MinReminderHours, MaxReminderHours)
	}
	reminderType := ReminderEmail
	if req.ReminderType != "" {
		rt, ok := ParseReminderType(req.ReminderType)
		if !ok {
			return nil, apperr.FieldValidation("reminder_type", "reminder_type must be EMAIL, SMS or BOTH")
		}
		reminderType = rt
	}

	var appt *Appointment
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		doctor, err := s.referencedDoctor(ctx, req.DoctorID)
		if err != nil {
			return err
		}
		if _, err := s.referencedPatient(ctx, patientID); err != nil {
			return err
		}
		apptType, err := s.types.GetByID(ctx, req.AppointmentTypeID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.FieldValidation("appointment_type_id", "appointment type not found")
		}
		if err != nil {
			return err
		}

		end := req.Start.Add(apptType.Duration())
		if req.End != nil {
			end = *req.End
		}
		if err := s.check(ctx, Candidate{DoctorID: req.DoctorID, PatientID: patientID, Start: req.Start, End: end}); err != nil {
			return err
		}

		appt = &Appointment{
			PatientID:         patientID,
			DoctorID:          req.DoctorID,
			AppointmentTypeID: req.AppointmentTypeID,
			Start:             req.Start,
			End:               end,
			Status:            StatusScheduled,
			Reason:            req.Reason,
			Notes:             req.Notes,
			IsVirtual:         req.IsVirtual,
			MeetingLink:       req.MeetingLink,
		}
		if err := s.appointments.Create(ctx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		if !withReminder {
			return nil
		}
		at := appt.Start.Add(-time.Duration(hours) * time.Hour)
		if !at.After(now) {
			return nil
		}
		return s.reminders.Create(ctx, &Reminder{
			AppointmentID: appt.ID,
			Type:          reminderType,
			ScheduledTime: at,
			Message: fmt.Sprintf("Reminder: You have an appointment with %s on %s",
				doctor, appt.Start.In(s.loc).Format(reminderTimeLayout)),
		})
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// -- Read / Update / Delete --

func (s *Service) GetAppointment(ctx context.Context, actor *auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.visibleAppointment(ctx, actor, id)
}

// AppointmentPatch holds the fields of a partial update. Nil fields are left
// untouched.
type AppointmentPatch struct {
	PatientID         *uuid.UUID `json:"patient_id"`
	DoctorID          *uuid.UUID `json:"doctor_id"`
	AppointmentTypeID *uuid.UUID `json:"appointment_type_id"`
	Start             *time.Time `json:"start_datetime"`
	End               *time.Time `json:"end_datetime"`
	Status            *string    `json:"status"`
	Reason            *string    `json:"reason"`
	Notes             *string    `json:"notes"`
	IsVirtual         *bool      `json:"is_virtual"`
	MeetingLink       *string    `json:"meeting_link"`
}

func (p AppointmentPatch) movesSchedule() bool {
	return p.PatientID != nil || p.DoctorID != nil || p.Start != nil || p.End != nil
}

// UpdateAppointment applies patch. Status changes pass the transition guard;
// schedule changes pass the conflict checker with the appointment excluded.
func (s *Service) UpdateAppointment(ctx context.Context, actor *auth.Actor, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	var appt *Appointment
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.visibleAppointment(ctx, actor, id)
		if err != nil {
			return err
		}

		if patch.Status != nil {
			next, ok := ParseStatus(*patch.Status)
			if !ok {
				return apperr.FieldValidation("status", "unknown status %q", *patch.Status)
			}
			if err := CheckTransition(actor, appt, next); err != nil {
				return err
			}
			appt.Status = next
		}

		if patch.PatientID != nil && *patch.PatientID != appt.PatientID {
			if actor.Role == auth.RolePatient {
				return apperr.Permission("you can only make appointments for yourself")
			}
			if _, err := s.referencedPatient(ctx, *patch.PatientID); err != nil {
				return err
			}
			appt.PatientID = *patch.PatientID
		}
		if patch.DoctorID != nil && *patch.DoctorID != appt.DoctorID {
			if _, err := s.referencedDoctor(ctx, *patch.DoctorID); err != nil {
				return err
			}
			appt.DoctorID = *patch.DoctorID
		}
		if patch.AppointmentTypeID != nil {
			if _, err := s.types.GetByID(ctx, *patch.AppointmentTypeID); err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					return apperr.FieldValidation("appointment_type_id", "appointment type not found")
				}
				return err
			}
			appt.AppointmentTypeID = *patch.AppointmentTypeID
		}
		if patch.Start != nil {
			if !actor.IsStaffOrAdmin() && patch.Start.Before(s.now()) {
				return apperr.FieldValidation("start_datetime", "appointments cannot be scheduled in the past")
			}
			appt.Start = *patch.Start
		}
		if patch.End != nil {
			appt.End = *patch.End
		}
		if patch.Reason != nil {
			appt.Reason = *patch.Reason
		}
		if patch.Notes != nil {
			appt.Notes = *patch.Notes
		}
		if patch.IsVirtual != nil {
			appt.IsVirtual = *patch.IsVirtual
		}
		if patch.MeetingLink != nil {
			appt.MeetingLink = patch.MeetingLink
		}

		if patch.movesSchedule() && appt.Status.IsActive() {
			excluding := appt.ID
			if err := s.check(ctx, Candidate{
				DoctorID:  appt.DoctorID,
				PatientID: appt.PatientID,
				Start:     appt.Start,
				End:       appt.End,
				Excluding: &excluding,
			}); err != nil {
				return err
			}
		}
		return s.appointments.Update(ctx, appt)
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// DeleteAppointment removes an appointment. Administrators and staff only.
func (s *Service) DeleteAppointment(ctx context.Context, actor *auth.Actor, id uuid.UUID) error {
	if !actor.IsStaffOrAdmin() {
		return apperr.Permission("only administrators and staff can delete appointments")
	}
	if _, err := s.appointments.GetByID(ctx, id); err != nil {
		return err
	}
	return s.appointments.Delete(ctx, id)
}

// -- Listing --

// ListQuery carries the client supplied listing filters.
type ListQuery struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *Status
	StartDate *time.Time
	EndDate   *time.Time
	Upcoming  bool
	Past      bool
}

// scope narrows q to what actor may see. ok is false when nothing is visible.
func (s *Service) scope(actor *auth.Actor, q ListQuery) (AppointmentFilter, bool) {
	f := AppointmentFilter{
		DoctorID: q.DoctorID,
		Upcoming: q.Upcoming,
		Past:     q.Past,
		Now:      s.now(),
	}
	if q.Status != nil {
		f.Statuses = []Status{*q.Status}
	}
	if q.StartDate != nil {
		from := s.dayStart(*q.StartDate)
		f.StartFrom = &from
	}
	if q.EndDate != nil {
		before := s.dayStart(*q.EndDate).AddDate(0, 0, 1)
		f.StartBefore = &before
	}

	switch {
	case actor.IsStaffOrAdmin():
		f.PatientID = q.PatientID
	case actor != nil && actor.Role == auth.RoleDoctor && actor.DoctorID != nil:
		if q.DoctorID != nil && *q.DoctorID != *actor.DoctorID {
			return f, false
		}
		f.DoctorID = actor.DoctorID
		f.PatientID = q.PatientID
	case actor != nil && actor.Role == auth.RolePatient && actor.PatientID != nil:
		f.PatientID = actor.PatientID
	default:
		return f, false
	}
	return f, true
}

// ListAppointments returns the appointments visible to actor, ordered by start.
func (s *Service) ListAppointments(ctx context.Context, actor *auth.Actor, q ListQuery, limit, offset int) ([]*Appointment, int, error) {
	f, ok := s.scope(actor, q)
	if !ok {
		return []*Appointment{}, 0, nil
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// MyAppointments lists the patient's own appointments. filter is all,
// upcoming or past.
func (s *Service) MyAppointments(ctx context.Context, actor *auth.Actor, filter string, limit, offset int) ([]*Appointment, int, error) {
	if actor == nil || actor.PatientID == nil {
		return nil, 0, apperr.NotFound("patient profile")
	}
	f := AppointmentFilter{PatientID: actor.PatientID, Now: s.now()}
	switch filter {
	case "", "all":
	case "upcoming":
		f.Upcoming = true
	case "past":
		f.Past = true
	default:
		return nil, 0, apperr.FieldValidation("filter", "filter must be all, upcoming or past")
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// DoctorSchedule lists the doctor's own appointments from startDate (default
// today) through endDate, restricted to statuses (default active).
func (s *Service) DoctorSchedule(ctx context.Context, actor *auth.Actor, startDate, endDate *time.Time, statuses []Status, limit, offset int) ([]*Appointment, int, error) {
	if actor == nil || actor.DoctorID == nil {
		return nil, 0, apperr.NotFound("doctor profile")
	}
	from := s.dayStart(s.now())
	if startDate != nil {
		from = s.dayStart(*startDate)
	}
	f := AppointmentFilter{DoctorID: actor.DoctorID, StartFrom: &from, Statuses: statuses, Now: s.now()}
	if len(f.Statuses) == 0 {
		f.Statuses = ActiveStatuses
	}
	if endDate != nil {
		before := s.dayStart(*endDate).AddDate(0, 0, 1)
		f.StartBefore = &before
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// dayStart is local midnight of t's calendar date in the clinic zone.
func (s *Service) dayStart(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// ParseDate reads a YYYY-MM-DD date in the clinic zone.
func (s *Service) ParseDate(v string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", v, s.loc)
}

// AvailableSlots lists open slots for an existing doctor.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, durationMinutes int) ([]Slot, error) {
	if _, err := s.directory.Doctor(ctx, doctorID); err != nil {
		return nil, err
	}
	started := time.Now()
	slots, err := s.slots.Generate(ctx, doctorID, date, durationMinutes)
	s.metrics.ObserveSlotGeneration(time.Since(started))
	return slots, err
}

// -- Appointment types --

func validateType(t *AppointmentType) error {
	if t.Name == "" {
		return apperr.FieldValidation("name", "name is required")
	}
	if t.DurationMinutes == 0 {
		t.DurationMinutes = DefaultDurationMinutes
	}
	if t.DurationMinutes < 0 {
		return apperr.FieldValidation("duration_minutes", "duration_minutes must be positive")
	}
	if t.ColorHex == "" {
		t.ColorHex = DefaultColorHex
	}
	if !validColorHex(t.ColorHex) {
		return apperr.FieldValidation("color_hex", "color_hex must look like #RRGGBB")
	}
	return nil
}

func validColorHex(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func (s *Service) CreateType(ctx context.Context, t *AppointmentType) error {
	if err := validateType(t); err != nil {
		return err
	}
	return s.types.Create(ctx, t)
}

func (s *Service) GetType(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	return s.types.GetByID(ctx, id)
}

func (s *Service) UpdateType(ctx context.Context, t *AppointmentType) error {
	if err := validateType(t); err != nil {
		return err
	}
	if _, err := s.types.GetByID(ctx, t.ID); err != nil {
		return err
	}
	return s.types.Update(ctx, t)
}

func (s *Service) DeleteType(ctx context.Context, id uuid.UUID) error {
	if _, err := s.types.GetByID(ctx, id); err != nil {
		return err
	}
	return s.types.Delete(ctx, id)
}

func (s *Service) ListTypes(ctx context.Context, limit, offset int) ([]*AppointmentType, int, error) {
	return s.types.List(ctx, limit, offset)
}

// -- Reminders --

// ListReminders returns reminders of the appointments actor may see.
func (s *Service) ListReminders(ctx context.Context, actor *auth.Actor, appointmentID *uuid.UUID, limit, offset int) ([]*Reminder, int, error) {
	f := ReminderFilter{AppointmentID: appointmentID}
	switch {
	case actor.IsStaffOrAdmin():
	case actor != nil && actor.Role == auth.RoleDoctor && actor.DoctorID != nil:
		f.DoctorID = actor.DoctorID
	case actor != nil && actor.Role == auth.RolePatient && actor.PatientID != nil:
		f.PatientID = actor.PatientID
	default:
		return []*Reminder{}, 0, nil
	}
	return s.reminders.List(ctx, f, limit, offset)
}

// reminderAppointment loads the appointment a reminder belongs to and checks
// actor may manage it.
func (s *Service) reminderAppointment(ctx context.Context, actor *auth.Actor, appointmentID uuid.UUID, denied string) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, appt) {
		return nil, apperr.Permission(denied)
	}
	return appt, nil
}

func (s *Service) GetReminder(ctx context.Context, actor *auth.Actor, id uuid.UUID) (*Reminder, error) {
	r, err := s.reminders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	appt, err := s.appointments.GetByID(ctx, r.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, appt) {
		return nil, apperr.NotFound("appointment reminder")
	}
	return r, nil
}

func validateReminder(r *Reminder, appt *Appointment) error {
	if r.Type == "" {
		r.Type = ReminderEmail
	}
	if _, ok := ParseReminderType(string(r.Type)); !ok {
		return apperr.FieldValidation("reminder_type", "reminder_type must be EMAIL, SMS or BOTH")
	}
	if r.ScheduledTime.IsZero() {
		return apperr.FieldValidation("scheduled_time", "scheduled_time is required")
	}
	if !r.ScheduledTime.Before(appt.Start) {
		return apperr.FieldValidation("scheduled_time", "reminder must be scheduled before the appointment time")
	}
	return nil
}

func (s *Service) CreateReminder(ctx context.Context, actor *auth.Actor, r *Reminder) error {
	appt, err := s.reminderAppointment(ctx, actor, r.AppointmentID, "you do not have permission to add reminders for this appointment")
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.FieldValidation("appointment_id", "appointment not found")
		}
		return err
	}
	if err := validateReminder(r, appt); err != nil {
		return err
	}
	r.Sent = false
	r.SentTime = nil
	return s.reminders.Create(ctx, r)
}

// ReminderPatch holds the mutable reminder fields.
type ReminderPatch struct {
	Type          *string    `json:"reminder_type"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	Message       *string    `json:"message"`
}

func (s *Service) UpdateReminder(ctx context.Context, actor *auth.Actor, id uuid.UUID, patch ReminderPatch) (*Reminder, error) {
	r, err := s.reminders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	appt, err := s.reminderAppointment(ctx, actor, r.AppointmentID, "you do not have permission to update this reminder")
	if err != nil {
		return nil, err
	}
	if r.Sent {
		return nil, apperr.Validation("reminder_sent", "cannot update a reminder that has already been sent")
	}
	if patch.Type != nil {
		r.Type = ReminderType(*patch.Type)
	}
	if patch.ScheduledTime != nil {
		r.ScheduledTime = *patch.ScheduledTime
	}
	if patch.Message != nil {
		r.Message = *patch.Message
	}
	if err := validateReminder(r, appt); err != nil {
		return nil, err
	}
	if err := s.reminders.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) DeleteReminder(ctx context.Context, actor *auth.Actor, id uuid.UUID) error {
	r, err := s.reminders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.reminderAppointment(ctx, actor, r.AppointmentID, "you do not have permission to delete this reminder"); err != nil {
		return err
	}
	if r.Sent {
		return apperr.Validation("reminder_sent", "cannot delete a reminder that has already been sent")
	}
	return s.reminders.Delete(ctx, id)
}
