package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled   Status = "SCHEDULED"
	StatusConfirmed   Status = "CONFIRMED"
	StatusCheckedIn   Status = "CHECKED_IN"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusNoShow      Status = "NO_SHOW"
	StatusRescheduled Status = "RESCHEDULED"
)

var statusRank = map[Status]int{
	StatusScheduled:   1,
	StatusConfirmed:   2,
	StatusCheckedIn:   3,
	StatusInProgress:  4,
	StatusCompleted:   5,
	StatusCancelled:   6,
	StatusNoShow:      6,
	StatusRescheduled: 6,
}

// ActiveStatuses are the statuses that occupy a doctor's and a patient's time.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress}

// ParseStatus validates s against the known statuses.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := statusRank[st]
	return st, ok
}

// Rank orders statuses along the appointment lifecycle. Unknown statuses rank 0.
func (s Status) Rank() int { return statusRank[s] }

func (s Status) IsActive() bool {
	r := s.Rank()
	return r >= 1 && r <= 4
}

// IsTerminal is true for statuses that end the appointment lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow || s == StatusRescheduled
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	PatientID             uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID              uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	AppointmentTypeID     uuid.UUID  `db:"appointment_type_id" json:"appointment_type_id"`
	Start                 time.Time  `db:"start_datetime" json:"start_datetime"`
	End                   time.Time  `db:"end_datetime" json:"end_datetime"`
	Status                Status     `db:"status" json:"status"`
	Reason                string     `db:"reason" json:"reason"`
	Notes                 string     `db:"notes" json:"notes"`
	IsVirtual             bool       `db:"is_virtual" json:"is_virtual"`
	MeetingLink           *string    `db:"meeting_link" json:"meeting_link,omitempty"`
	OriginalAppointmentID *uuid.UUID `db:"original_appointment_id" json:"original_appointment_id,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Duration is the booked length of the appointment.
func (a *Appointment) Duration() time.Duration { return a.End.Sub(a.Start) }

const (
	DefaultDurationMinutes = 30
	DefaultColorHex        = "#3498db"
)

// AppointmentType maps to the appointment_type table.
type AppointmentType struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	ColorHex        string    `db:"color_hex" json:"color_hex"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

func (t *AppointmentType) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// ReminderType selects the channels a reminder is delivered through.
type ReminderType string

const (
	ReminderEmail ReminderType = "EMAIL"
	ReminderSMS   ReminderType = "SMS"
	ReminderBoth  ReminderType = "BOTH"
)

func ParseReminderType(s string) (ReminderType, bool) {
	rt := ReminderType(strings.ToUpper(strings.TrimSpace(s)))
	switch rt {
	case ReminderEmail, ReminderSMS, ReminderBoth:
		return rt, true
	}
	return "", false
}

// Reminder maps to the appointment_reminder table.
type Reminder struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	AppointmentID uuid.UUID    `db:"appointment_id" json:"appointment_id"`
	Type          ReminderType `db:"reminder_type" json:"reminder_type"`
	ScheduledTime time.Time    `db:"scheduled_time" json:"scheduled_time"`
	Message       string       `db:"message" json:"message"`
	Sent          bool         `db:"sent" json:"sent"`
	SentTime      *time.Time   `db:"sent_time" json:"sent_time,omitempty"`

	// Delivery state kept by the sweeper. DeliveredChannels are not sent again
	// on retry. A discarded reminder is never retried.
	DeliveredChannels []string   `db:"delivered_channels" json:"delivered_channels,omitempty"`
	Attempts          int        `db:"attempts" json:"attempts"`
	LastError         string     `db:"last_error" json:"last_error,omitempty"`
	NextAttemptAt     *time.Time `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	Discarded         bool       `db:"discarded" json:"discarded"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Delivered reports whether ch already went out for this reminder.
func (r *Reminder) Delivered(ch string) bool {
	for _, c := range r.DeliveredChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// DeliveryFailure records one unsuccessful sweep of a reminder. A nil
// RetryAt discards the reminder.
type DeliveryFailure struct {
	Delivered []string
	Error     string
	RetryAt   *time.Time
}

// TimeOfDay is a wall clock offset from midnight, serialised as "HH:MM" or
// "HH:MM:SS".
type TimeOfDay time.Duration

// Clock builds a TimeOfDay from hours and minutes.
func Clock(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ClockOf returns the wall clock time of t in its own location.
func ClockOf(t time.Time) TimeOfDay {
	return Clock(t.Hour(), t.Minute()) + TimeOfDay(time.Duration(t.Second())*time.Second+time.Duration(t.Nanosecond()))
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q, use HH:MM", s)
}

func (t TimeOfDay) Duration() time.Duration { return time.Duration(t) }

// On places t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	dur := time.Duration(t)
	return time.Date(y, m, d, int(dur/time.Hour), int(dur%time.Hour/time.Minute), 0, int(dur%time.Minute), date.Location())
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if s := int((d % time.Minute) / time.Second); s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Availability is a recurring weekly working window. DayOfWeek 0 is Monday.
type Availability struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DayOfWeek int       `db:"day_of_week" json:"day_of_week"`
	StartTime TimeOfDay `db:"start_time" json:"start_time"`
	EndTime   TimeOfDay `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TimeOff is a one-off interval during which a doctor takes no appointments.
type TimeOff struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Start     time.Time `db:"start_datetime" json:"start_datetime"`
	End       time.Time `db:"end_datetime" json:"end_datetime"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DayOfWeek maps t onto the Monday based weekday index used by availability.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func DayName(day int) string {
	if day < 0 || day > 6 {
		return ""
	}
	return dayNames[day]
}

// OverlapQuery selects appointments of one doctor or one patient whose
// interval intersects [Start, End).
type OverlapQuery struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Start     time.Time
	End       time.Time
	Excluding *uuid.UUID
	Statuses  []Status
}

// halfOpenOverlap is the appointment overlap test: touching intervals do not
// collide.
func halfOpenOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// closedOverlap is the time-off and window overlap test: touching intervals
// collide.
func closedOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}

// Participant is the directory view of a doctor or patient used for
// notifications and messages.
type Participant struct {
	ID          uuid.UUID
	UserID      string
	DisplayName string
	Email       string
	Phone       string
}

func (p *Participant) String() string {
	if p == nil {
		return ""
	}
	return p.DisplayName
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
