package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dentalbridge"

// BookingMetrics exposes counters/histograms for availability search and booking flows.
type BookingMetrics struct {
	gatewayCalls    *prometheus.CounterVec
	searchAttempts  *prometheus.HistogramVec
	pairingTotal    *prometheus.CounterVec
	serviceBookings *prometheus.CounterVec
	bookingRequests *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	bookingLatency  prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "gateway_calls_total",
			Help:      "Availability queries against Dentally by result",
		}, []string{"result"}),
		searchAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "search_windows",
			Help:      "Number of windows queried per slot search",
			Buckets:   []float64{1, 2, 3, 4, 5, 7, 10},
		}, []string{"service_id", "outcome"}),
		pairingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "pairing_total",
			Help:      "Multi-service pairing results by status",
		}, []string{"status"}),
		serviceBookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "service_outcomes_total",
			Help:      "Per-service appointment creation outcomes",
		}, []string{"service_id", "status"}),
		bookingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Booking requests by terminal result",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "notifications_total",
			Help:      "Payment link, SMS and email notification attempts",
		}, []string{"channel", "status"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Voice agent webhook events by type and handling status",
		}, []string{"event_type", "status"}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "duration_seconds",
			Help:      "End-to-end booking orchestration latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.gatewayCalls, m.searchAttempts, m.pairingTotal, m.serviceBookings,
		m.bookingRequests, m.notifications, m.webhookEvents, m.bookingLatency)
	return m
}

func (m *BookingMetrics) ObserveGatewayCall(result string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveSearch(serviceID, windows int, outcome string) {
	if m == nil {
		return
	}
	m.searchAttempts.WithLabelValues(strconv.Itoa(serviceID), outcome).Observe(float64(windows))
}

func (m *BookingMetrics) ObservePairing(status string) {
	if m == nil {
		return
	}
	m.pairingTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveServiceBooking(serviceID int, status string) {
	if m == nil {
		return
	}
	m.serviceBookings.WithLabelValues(strconv.Itoa(serviceID), status).Inc()
}

func (m *BookingMetrics) ObserveBooking(result string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingRequests.WithLabelValues(result).Inc()
	m.bookingLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveNotification(channel string, ok bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.notifications.WithLabelValues(channel, status).Inc()
}

func (m *BookingMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, status).Inc()
}
