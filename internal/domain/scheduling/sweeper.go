package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/metrics"
	"github.com/medisched/medisched/internal/platform/notification"
)

const (
	DefaultSweepSpec = "@every 1m"
	sweepBatchSize   = 100

	maxDeliveryAttempts = 5
	retryBaseDelay      = 5 * time.Minute
)

// Notifier delivers one rendered message.
type Notifier interface {
	Send(ctx context.Context, m notification.Message) error
}

// TenantRunner enumerates tenants and binds a context to one of them.
type TenantRunner interface {
	Tenants(ctx context.Context) ([]string, error)
	WithTenant(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
}

// SweeperConfig wires a Sweeper. Tenants may be nil, in which case the
// sweep runs once against whatever connection the context resolves to.
type SweeperConfig struct {
	Reminders    ReminderRepository
	Appointments AppointmentRepository
	Directory    Directory
	Notifier     Notifier
	Templates    *notification.TemplateEngine
	Tenants      TenantRunner
	Location     *time.Location
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// Sweeper hands due reminders to the notifier and marks them sent. A failed
// delivery is retried with backoff on the channels that have not gone out
// yet. Permanent failures and reminders of appointments that are no longer
// active are discarded.
type Sweeper struct {
	reminders    ReminderRepository
	appointments AppointmentRepository
	directory    Directory
	notifier     Notifier
	templates    *notification.TemplateEngine
	tenants      TenantRunner
	loc          *time.Location
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	cron         *cron.Cron
}

func NewSweeper(cfg SweeperConfig) *Sweeper {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	templates := cfg.Templates
	if templates == nil {
		templates = notification.NewTemplateEngine()
	}
	return &Sweeper{
		reminders:    cfg.Reminders,
		appointments: cfg.Appointments,
		directory:    cfg.Directory,
		notifier:     cfg.Notifier,
		templates:    templates,
		tenants:      cfg.Tenants,
		loc:          loc,
		logger:       cfg.Logger.With().Str("component", "reminder_sweeper").Logger(),
		metrics:      cfg.Metrics,
		now:          time.Now,
	}
}

// Start schedules sweeps on spec (standard cron syntax or "@every 1m").
func (s *Sweeper) Start(spec string) error {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("reminder sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule reminder sweep %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info().Str("spec", spec).Msg("reminder sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep processes due reminders of every tenant and returns how many were
// delivered.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.tenants == nil {
		return s.sweepTenant(ctx)
	}
	ids, err := s.tenants.Tenants(ctx)
	if err != nil {
		return 0, err
	}
	var (
		sent int
		errs []error
	)
	for _, id := range ids {
		err := s.tenants.WithTenant(ctx, id, func(ctx context.Context) error {
			n, err := s.sweepTenant(ctx)
			sent += n
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
		}
	}
	return sent, errors.Join(errs...)
}

func (s *Sweeper) sweepTenant(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.reminders.ListDue(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}
	sent := 0
	for _, r := range due {
		delivered, err := s.deliver(ctx, r)
		if err != nil {
			if err := s.recordFailure(ctx, r, now, delivered, err); err != nil {
				return sent, fmt.Errorf("record reminder %s failure: %w", r.ID, err)
			}
			continue
		}
		if err := s.reminders.MarkSent(ctx, r.ID, now); err != nil {
			return sent, fmt.Errorf("mark reminder %s sent: %w", r.ID, err)
		}
		sent++
	}
	if sent > 0 {
		s.logger.Info().Int("sent", sent).Int("due", len(due)).Msg("reminders delivered")
	}
	return sent, nil
}

// recordFailure schedules a retry with exponential backoff, or discards the
// reminder when the failure is permanent or the attempts are used up.
func (s *Sweeper) recordFailure(ctx context.Context, r *Reminder, now time.Time, delivered []string, cause error) error {
	attempts := r.Attempts + 1
	f := DeliveryFailure{Delivered: delivered, Error: cause.Error()}
	if retryable(cause) && attempts < maxDeliveryAttempts {
		next := now.Add(retryBaseDelay << (attempts - 1))
		f.RetryAt = &next
	}

	switch {
	case errors.Is(cause, errAppointmentInactive):
		s.logger.Info().Str("reminder_id", r.ID.String()).Str("reason", cause.Error()).Msg("reminder discarded")
	case f.RetryAt != nil:
		s.logger.Warn().Err(cause).Str("reminder_id", r.ID.String()).Int("attempts", attempts).
			Time("retry_at", *f.RetryAt).Msg("reminder delivery failed")
	default:
		s.logger.Error().Err(cause).Str("reminder_id", r.ID.String()).Int("attempts", attempts).
			Msg("reminder delivery failed, giving up")
	}
	return s.reminders.RecordFailure(ctx, r.ID, f)
}

func channelsFor(t ReminderType) []notification.Channel {
	switch t {
	case ReminderSMS:
		return []notification.Channel{notification.ChannelSMS}
	case ReminderBoth:
		return []notification.Channel{notification.ChannelEmail, notification.ChannelSMS}
	default:
		return []notification.Channel{notification.ChannelEmail}
	}
}

var errAppointmentInactive = errors.New("appointment is no longer active")

// permanentError wraps a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// retryable is true when any part of err may succeed on a later sweep.
func retryable(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if retryable(e) {
				return true
			}
		}
		return false
	}
	var p *permanentError
	return !errors.As(err, &p)
}

// deliver renders r and sends it on each channel not yet delivered. It
// returns every channel delivered so far, including earlier sweeps.
func (s *Sweeper) deliver(ctx context.Context, r *Reminder) ([]string, error) {
	delivered := append([]string(nil), r.DeliveredChannels...)

	appt, err := s.appointments.GetByID(ctx, r.AppointmentID)
	if err != nil {
		return delivered, lookupError("appointment", err)
	}
	if !appt.Status.IsActive() {
		return delivered, permanent(fmt.Errorf("%w: %s", errAppointmentInactive, appt.Status))
	}
	patient, err := s.directory.Patient(ctx, appt.PatientID)
	if err != nil {
		return delivered, lookupError("patient", err)
	}
	doctor, err := s.directory.Doctor(ctx, appt.DoctorID)
	if err != nil {
		return delivered, lookupError("doctor", err)
	}

	start := appt.Start.In(s.loc)
	subject, body, err := s.templates.Render(notification.TemplateAppointmentReminder, map[string]string{
		"patient_name": patient.DisplayName,
		"doctor_name":  doctor.DisplayName,
		"date":         start.Format("2006-01-02"),
		"time":         start.Format("15:04"),
		"message":      r.Message,
	})
	if err != nil {
		return delivered, permanent(err)
	}

	var errs []error
	for _, ch := range channelsFor(r.Type) {
		if r.Delivered(string(ch)) {
			continue
		}
		recipient := patient.Email
		if ch == notification.ChannelSMS {
			recipient = patient.Phone
		}
		err := s.notifier.Send(ctx, notification.Message{
			Channel:   ch,
			Recipient: recipient,
			Subject:   subject,
			Body:      body,
		})
		if err != nil {
			if errors.Is(err, notification.ErrNoRecipient) {
				err = permanent(err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
			s.metrics.ObserveReminder(string(ch), "failed")
			continue
		}
		delivered = append(delivered, string(ch))
		s.metrics.ObserveReminder(string(ch), "sent")
	}
	return delivered, errors.Join(errs...)
}

func lookupError(what string, err error) error {
	err = fmt.Errorf("load %s: %w", what, err)
	if errors.Is(err, apperr.ErrNotFound) {
		return permanent(err)
	}
	return err
}
