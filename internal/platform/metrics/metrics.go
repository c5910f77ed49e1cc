// Package metrics holds the prometheus collectors for bookings, campaigns
// and HTTP traffic. Every Observe method is safe on a nil receiver so
// callers can run without metrics wired.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clinic"

// BookingMetrics counts booking outcomes and availability warnings.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	warningsTotal    *prometheus.CounterVec
	occurrencesTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Appointment submissions by outcome",
		}, []string{"outcome"}),
		warningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "availability_warnings_total",
			Help:      "Availability check failures by reason",
		}, []string{"reason"}),
		occurrencesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "recurrence_occurrences_total",
			Help:      "Recurrence occurrences by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.warningsTotal, m.occurrencesTotal)
	return m
}

// ObserveBooking records a single submission: created, forced, warned,
// slot_taken or failed.
func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveWarning(reason string) {
	if m == nil {
		return
	}
	m.warningsTotal.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObserveOccurrence(result string) {
	if m == nil {
		return
	}
	m.occurrencesTotal.WithLabelValues(result).Inc()
}

// CampaignMetrics tracks campaign dispatch.
type CampaignMetrics struct {
	messagesTotal    *prometheus.CounterVec
	campaignsTotal   *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
}

func NewCampaignMetrics(reg prometheus.Registerer) *CampaignMetrics {
	m := &CampaignMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "messages_total",
			Help:      "Campaign messages by channel and delivery status",
		}, []string{"channel", "status"}),
		campaignsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "campaigns_total",
			Help:      "Campaigns that reached a terminal status",
		}, []string{"status"}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from dequeue to terminal status",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.campaignsTotal, m.dispatchDuration)
	return m
}

func (m *CampaignMetrics) ObserveMessage(channel, status string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(channel, status).Inc()
}

func (m *CampaignMetrics) ObserveFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.campaignsTotal.WithLabelValues(status).Inc()
	m.dispatchDuration.Observe(d.Seconds())
}

// AuditMetrics counts audited API writes. Forced overrides get their own
// label value so they can be alerted on.
type AuditMetrics struct {
	writesTotal *prometheus.CounterVec
}

func NewAuditMetrics(reg prometheus.Registerer) *AuditMetrics {
	m := &AuditMetrics{
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "writes_total",
			Help:      "API writes by resource, action and override flag",
		}, []string{"resource", "action", "forced"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.writesTotal)
	return m
}

func (m *AuditMetrics) ObserveWrite(resource, action string, forced bool) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(resource, action, strconv.FormatBool(forced)).Inc()
}

// HTTPMetrics is echo middleware recording request counts and latency per
// route template.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
