package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveBooking("created")
	m.ObserveBooking("created")
	m.ObserveConflict("doctor_conflict")
	m.ObserveConflict("")
	m.ObserveSlotGeneration(3 * time.Millisecond)
	m.ObserveReminder("EMAIL", "sent")
	m.ObserveRecordAccess("Viewed medical record")

	if got := testutil.ToFloat64(m.bookings.WithLabelValues("created")); got != 2 {
		t.Errorf("expected 2 bookings, got %v", got)
	}
	if got := testutil.CollectAndCount(m.conflicts); got != 1 {
		t.Errorf("expected one conflict series, got %d", got)
	}
	if got := testutil.ToFloat64(m.remindersSent.WithLabelValues("EMAIL", "sent")); got != 1 {
		t.Errorf("expected 1 reminder, got %v", got)
	}
	if got := testutil.ToFloat64(m.recordAccess.WithLabelValues("Viewed medical record")); got != 1 {
		t.Errorf("expected 1 record access, got %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveBooking("created")
	m.ObserveConflict("outside_hours")
	m.ObserveSlotGeneration(time.Millisecond)
	m.ObserveReminder("SMS", "failed")
	m.ObserveRecordAccess("Viewed medical record")

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if err := m.Middleware()(func(c echo.Context) error { return nil })(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New(nil)
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/doctors/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	})
	e.GET("/metrics", m.Handler())

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/doctors/abc", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	want := `medisched_http_requests_total{method="GET",route="/api/v1/doctors/:id",status="404"} 1`
	if !strings.Contains(body, want) {
		t.Errorf("expected %s in exposition, got:\n%s", want, body)
	}
}
