package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op so domain services can be built without it in tests.
type Metrics struct {
	gatherer       prometheus.Gatherer
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	bookings       *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	slotGeneration prometheus.Histogram
	remindersSent  *prometheus.CounterVec
	recordAccess   *prometheus.CounterVec
}

// New registers the collectors on reg, or on a fresh registry when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medisched",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medisched",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medisched",
			Name:      "bookings_total",
			Help:      "Appointment booking attempts by outcome.",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medisched",
			Name:      "conflicts_total",
			Help:      "Scheduling rejections by reason code.",
		}, []string{"reason"}),
		slotGeneration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medisched",
			Name:      "slot_generation_seconds",
			Help:      "Time spent computing available slots.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		remindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medisched",
			Name:      "reminders_sent_total",
			Help:      "Reminder deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		recordAccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medisched",
			Name:      "medical_record_access_total",
			Help:      "Medical record access log entries by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration, m.bookings, m.conflicts, m.slotGeneration, m.remindersSent, m.recordAccess)
	return m
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveConflict(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.conflicts.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSlotGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.slotGeneration.Observe(d.Seconds())
}

func (m *Metrics) ObserveReminder(channel, outcome string) {
	if m == nil {
		return
	}
	m.remindersSent.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) ObserveRecordAccess(reason string) {
	if m == nil {
		return
	}
	m.recordAccess.WithLabelValues(reason).Inc()
}

// Middleware records request counts and latency keyed by the matched route
// template so ids do not explode label cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}
