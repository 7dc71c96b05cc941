package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/medisched/medisched/internal/platform/apperr"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestAppointmentRepoPG_FindOverlapping(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)
	doctorID, excluded := uuid.New(), uuid.New()
	start, end := at(4, 10, 0), at(4, 10, 30)

	cols := []string{"id", "patient_id", "doctor_id", "appointment_type_id", "start_datetime", "end_datetime",
		"status", "reason", "notes", "is_virtual", "meeting_link", "original_appointment_id", "created_at", "updated_at"}
	existing := uuid.New()
	mock.ExpectQuery(`FROM appointment WHERE doctor_id = \$1 AND start_datetime < \$2 AND end_datetime > \$3 AND id <> \$4 AND status = ANY\(\$5\) ORDER BY start_datetime`).
		WithArgs(doctorID, end, start, excluded, []string{"SCHEDULED", "CONFIRMED", "CHECKED_IN", "IN_PROGRESS"}).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			existing, uuid.New(), doctorID, uuid.New(), at(4, 9, 45), at(4, 10, 15),
			"CONFIRMED", "", "", false, (*string)(nil), (*uuid.UUID)(nil), testNow, testNow))

	got, err := repo.FindOverlapping(context.Background(), OverlapQuery{
		DoctorID: &doctorID, Start: start, End: end, Excluding: &excluded, Statuses: ActiveStatuses,
	})
	if err != nil {
		t.Fatalf("FindOverlapping: %v", err)
	}
	if len(got) != 1 || got[0].ID != existing || got[0].Status != StatusConfirmed {
		t.Errorf("unexpected rows: %+v", got)
	}
	if got[0].MeetingLink != nil || got[0].OriginalAppointmentID != nil {
		t.Errorf("expected NULL columns to stay nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepoPG_GetByIDNotFound(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	mock.ExpectQuery(`FROM appointment WHERE id = \$1`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := NewAppointmentRepoPG(mock).GetByID(context.Background(), id)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.Error() != "appointment not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestAppointmentRepoPG_DeleteMissing(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	mock.ExpectExec(`DELETE FROM appointment WHERE id = \$1`).WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := NewAppointmentRepoPG(mock).Delete(context.Background(), id)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAppointmentTypeRepoPG_Create(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO appointment_type`).
		WithArgs(pgxmock.AnyArg(), "Consultation", "", 30, DefaultColorHex).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(testNow, testNow))

	typ := &AppointmentType{Name: "Consultation", DurationMinutes: 30, ColorHex: DefaultColorHex}
	if err := NewAppointmentTypeRepoPG(mock).Create(context.Background(), typ); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if typ.ID == uuid.Nil || !typ.CreatedAt.Equal(testNow) {
		t.Errorf("expected id and timestamps to be filled, got %+v", typ)
	}
}

var reminderColNames = []string{"id", "appointment_id", "reminder_type", "scheduled_time", "message", "sent",
	"sent_time", "delivered_channels", "attempts", "last_error", "next_attempt_at", "discarded", "created_at", "updated_at"}

func TestReminderRepoPG_ListDueAndMarkSent(t *testing.T) {
	mock := newMock(t)
	repo := NewReminderRepoPG(mock)
	id, apptID := uuid.New(), uuid.New()

	mock.ExpectQuery(`(?s)JOIN appointment a ON a.id = r.appointment_id.+r.sent = FALSE AND r.discarded = FALSE AND r.scheduled_time <= \$1.+r.next_attempt_at <= \$1.+a.status = ANY\(\$2\).+LIMIT \$3`).
		WithArgs(testNow, []string{"SCHEDULED", "CONFIRMED", "CHECKED_IN", "IN_PROGRESS"}, 100).
		WillReturnRows(pgxmock.NewRows(reminderColNames).AddRow(id, apptID, "BOTH", testNow.Add(-time.Minute), "hi", false,
			(*time.Time)(nil), []string{"EMAIL"}, 2, "SMS: carrier rejected message", (*time.Time)(nil), false, testNow, testNow))
	mock.ExpectExec(`UPDATE appointment_reminder SET sent = TRUE, sent_time = \$2`).
		WithArgs(id, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	due, err := repo.ListDue(context.Background(), testNow, 100)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 || due[0].Type != ReminderBoth || due[0].SentTime != nil {
		t.Fatalf("unexpected due reminders: %+v", due)
	}
	if !due[0].Delivered("EMAIL") || due[0].Delivered("SMS") || due[0].Attempts != 2 {
		t.Errorf("delivery state not scanned: %+v", due[0])
	}
	if err := repo.MarkSent(context.Background(), id, testNow); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReminderRepoPG_RecordFailure(t *testing.T) {
	mock := newMock(t)
	repo := NewReminderRepoPG(mock)
	id := uuid.New()
	retry := testNow.Add(retryBaseDelay)

	mock.ExpectExec(`(?s)UPDATE appointment_reminder.+attempts = attempts \+ 1.+WHERE id = \$1`).
		WithArgs(id, []string{"EMAIL"}, "SMS: carrier rejected message", &retry, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`(?s)UPDATE appointment_reminder.+discarded = \$5`).
		WithArgs(id, []string{}, "SMS: notification has no recipient", (*time.Time)(nil), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.RecordFailure(context.Background(), id, DeliveryFailure{
		Delivered: []string{"EMAIL"}, Error: "SMS: carrier rejected message", RetryAt: &retry,
	}); err != nil {
		t.Fatalf("RecordFailure retry: %v", err)
	}
	if err := repo.RecordFailure(context.Background(), id, DeliveryFailure{
		Error: "SMS: notification has no recipient",
	}); err != nil {
		t.Fatalf("RecordFailure discard: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReminderRepoPG_DeleteUnsent(t *testing.T) {
	mock := newMock(t)
	apptID := uuid.New()
	mock.ExpectExec(`DELETE FROM appointment_reminder WHERE appointment_id = \$1 AND sent = FALSE`).
		WithArgs(apptID).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := NewReminderRepoPG(mock).DeleteUnsent(context.Background(), apptID)
	if err != nil {
		t.Fatalf("DeleteUnsent: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReminderRepoPG_UpdateSentIsNotFound(t *testing.T) {
	mock := newMock(t)
	rm := &Reminder{ID: uuid.New(), Type: ReminderEmail, ScheduledTime: testNow, Message: "x"}
	mock.ExpectQuery(`(?s)UPDATE appointment_reminder .+ WHERE id = \$1 AND sent = FALSE`).
		WithArgs(rm.ID, "EMAIL", testNow, "x").
		WillReturnError(pgx.ErrNoRows)

	err := NewReminderRepoPG(mock).Update(context.Background(), rm)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAvailabilityRepoPG_FindAvailability(t *testing.T) {
	mock := newMock(t)
	doctorID := uuid.New()
	cols := []string{"id", "doctor_id", "day_of_week", "start_time", "end_time", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM doctor_availability\s+WHERE doctor_id = \$1 AND day_of_week = \$2`).
		WithArgs(doctorID, 0).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(uuid.New(), doctorID, 0,
			toPGTime(Clock(9, 0)), toPGTime(Clock(12, 30)), testNow, testNow))

	windows, err := NewAvailabilityRepoPG(mock).FindAvailability(context.Background(), doctorID, 0)
	if err != nil {
		t.Fatalf("FindAvailability: %v", err)
	}
	if len(windows) != 1 || windows[0].StartTime != Clock(9, 0) || windows[0].EndTime != Clock(12, 30) {
		t.Errorf("unexpected windows: %+v", windows)
	}
}

func TestTimeOffRepoPG_FindTimeOffIsClosed(t *testing.T) {
	mock := newMock(t)
	doctorID := uuid.New()
	from, to := at(4, 0, 0), at(5, 0, 0)
	mock.ExpectQuery(`start_datetime <= \$3 AND end_datetime >= \$2`).
		WithArgs(doctorID, from, to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "doctor_id", "start_datetime", "end_datetime", "reason", "created_at", "updated_at"}))

	offs, err := NewTimeOffRepoPG(mock).FindTimeOff(context.Background(), doctorID, from, to)
	if err != nil {
		t.Fatalf("FindTimeOff: %v", err)
	}
	if offs == nil || len(offs) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", offs)
	}
}

func TestDirectoryPG_DoctorDisplayName(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	mock.ExpectQuery(`FROM doctor_profile WHERE id = \$1`).WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "first_name", "last_name", "email", "phone"}).
			AddRow(id, "auth0|42", "Gregory", "House", "house@example.com", ""))

	p, err := NewDirectoryPG(mock).Doctor(context.Background(), id)
	if err != nil {
		t.Fatalf("Doctor: %v", err)
	}
	if p.DisplayName != "Dr. Gregory House" || p.Email != "house@example.com" {
		t.Errorf("unexpected participant %+v", p)
	}
}

func TestDirectoryPG_PatientMissing(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	mock.ExpectQuery(`FROM patient_profile WHERE id = \$1`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := NewDirectoryPG(mock).Patient(context.Background(), id)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProfileResolverPG(t *testing.T) {
	mock := newMock(t)
	doctorID := uuid.New()
	mock.ExpectQuery(`(?s)SELECT \(SELECT id FROM doctor_profile WHERE user_id = \$1\).+patient_profile`).
		WithArgs("auth0|42").
		WillReturnRows(pgxmock.NewRows([]string{"doctor_id", "patient_id"}).AddRow(&doctorID, (*uuid.UUID)(nil)))

	d, p, err := NewProfileResolverPG(mock).ResolveProfiles(context.Background(), "auth0|42")
	if err != nil {
		t.Fatalf("ResolveProfiles: %v", err)
	}
	if d == nil || *d != doctorID {
		t.Errorf("expected doctor profile %s, got %v", doctorID, d)
	}
	if p != nil {
		t.Errorf("expected no patient profile, got %v", p)
	}
}
