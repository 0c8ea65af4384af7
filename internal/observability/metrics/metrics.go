package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics counts booking and lifecycle outcomes.
type SchedulingMetrics struct {
	bookingsTotal       *prometheus.CounterVec
	transitionsTotal    *prometheus.CounterVec
	conflictChecksTotal *prometheus.CounterVec
	storeRetriesTotal   *prometheus.CounterVec
	bookingLatency      prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebridge",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebridge",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Cancel and complete attempts by outcome",
		}, []string{"event", "outcome"}),
		conflictChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebridge",
			Subsystem: "scheduling",
			Name:      "conflict_checks_total",
			Help:      "Conflict detector evaluations by result",
		}, []string{"result"}),
		storeRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebridge",
			Subsystem: "scheduling",
			Name:      "store_retries_total",
			Help:      "Transient store failures that were retried",
		}, []string{"operation"}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "carebridge",
			Subsystem: "scheduling",
			Name:      "booking_duration_seconds",
			Help:      "Latency of booking requests",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.conflictChecksTotal, m.storeRetriesTotal, m.bookingLatency)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	m.bookingLatency.Observe(seconds)
}

func (m *SchedulingMetrics) ObserveTransition(event, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(event, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveConflictCheck(conflict bool) {
	if m == nil {
		return
	}
	result := "clear"
	if conflict {
		result = "conflict"
	}
	m.conflictChecksTotal.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveStoreRetry(operation string) {
	if m == nil {
		return
	}
	m.storeRetriesTotal.WithLabelValues(operation).Inc()
}

// NotifyMetrics counts notification deliveries.
type NotifyMetrics struct {
	notificationsTotal *prometheus.CounterVec
}

func NewNotifyMetrics(reg prometheus.Registerer) *NotifyMetrics {
	m := &NotifyMetrics{
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebridge",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notification deliveries by template and status",
		}, []string{"template", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.notificationsTotal)
	return m
}

func (m *NotifyMetrics) ObserveNotification(template, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(template, status).Inc()
}
