package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout funnel and payment outcomes.
type CheckoutMetrics struct {
	shippingQuotes      *prometheus.CounterVec
	orderSubmissions    *prometheus.CounterVec
	nequiAuthorizations *prometheus.CounterVec
	cardTokenizations   *prometheus.CounterVec
	stepTransitions     *prometheus.CounterVec
	backendDuration     *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		shippingQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipping_quotes_total",
			Help: "Shipping quotes served, by source (backend, cache, fallback).",
		}, []string{"source"}),
		orderSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_submissions_total",
			Help: "Order submissions, by outcome.",
		}, []string{"outcome"}),
		nequiAuthorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nequi_authorizations_total",
			Help: "Nequi wallet authorization chains, by outcome.",
		}, []string{"outcome"}),
		cardTokenizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "card_tokenizations_total",
			Help: "Card tokenization attempts, by outcome.",
		}, []string{"outcome"}),
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_step_transitions_total",
			Help: "Checkout step entries, by step.",
		}, []string{"step"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Duration of commerce backend calls in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
	}
	reg.MustRegister(
		m.shippingQuotes,
		m.orderSubmissions,
		m.nequiAuthorizations,
		m.cardTokenizations,
		m.stepTransitions,
		m.backendDuration,
	)
	return m
}

func (m *CheckoutMetrics) IncShippingQuote(source string) {
	if m == nil || m.shippingQuotes == nil {
		return
	}
	m.shippingQuotes.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *CheckoutMetrics) IncOrderSubmission(outcome string) {
	if m == nil || m.orderSubmissions == nil {
		return
	}
	m.orderSubmissions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) IncNequiAuthorization(outcome string) {
	if m == nil || m.nequiAuthorizations == nil {
		return
	}
	m.nequiAuthorizations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) IncCardTokenization(outcome string) {
	if m == nil || m.cardTokenizations == nil {
		return
	}
	m.cardTokenizations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) IncStepTransition(step string) {
	if m == nil || m.stepTransitions == nil {
		return
	}
	m.stepTransitions.WithLabelValues(normalizeLabel(step)).Inc()
}

// ObserveBackendCall records the latency of one backend request.
func (m *CheckoutMetrics) ObserveBackendCall(endpoint, status string, duration time.Duration) {
	if m == nil || m.backendDuration == nil {
		return
	}
	m.backendDuration.WithLabelValues(normalizeLabel(endpoint), normalizeLabel(status)).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
