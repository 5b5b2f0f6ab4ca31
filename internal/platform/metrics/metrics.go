package metrics

import "github.com/prometheus/client_golang/prometheus"

// HTTPMetrics exposes request counters and latency for the API.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "therapy",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

func (m *HTTPMetrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(seconds)
}

// BillingMetrics tracks payment submissions and session-note linkage.
type BillingMetrics struct {
	paymentsTotal   *prometheus.CounterVec
	paymentAmount   *prometheus.HistogramVec
	rejectionsTotal *prometheus.CounterVec
	noteLinksTotal  *prometheus.CounterVec
	cacheTotal      *prometheus.CounterVec
}

func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "billing",
			Name:      "payments_total",
			Help:      "Payments recorded, updated or deleted",
		}, []string{"operation", "method"}),
		paymentAmount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "therapy",
			Subsystem: "billing",
			Name:      "payment_amount",
			Help:      "Amount of recorded payments",
			Buckets:   []float64{25, 50, 100, 150, 250, 500, 1000, 2500},
		}, []string{"method"}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "billing",
			Name:      "reconciliation_rejections_total",
			Help:      "Payment submissions rejected by reconciliation",
		}, []string{"reason"}),
		noteLinksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "scheduling",
			Name:      "note_links_total",
			Help:      "Session-note linkage attempts by outcome",
		}, []string{"outcome"}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "billing",
			Name:      "stats_cache_total",
			Help:      "Statistics cache lookups",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.paymentsTotal, m.paymentAmount, m.rejectionsTotal, m.noteLinksTotal, m.cacheTotal)
	return m
}

func (m *BillingMetrics) ObservePayment(operation, method string, amount float64) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(operation, method).Inc()
	if operation == "create" {
		m.paymentAmount.WithLabelValues(method).Observe(amount)
	}
}

func (m *BillingMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *BillingMetrics) ObserveNoteLink(outcome string) {
	if m == nil {
		return
	}
	m.noteLinksTotal.WithLabelValues(outcome).Inc()
}

func (m *BillingMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}
