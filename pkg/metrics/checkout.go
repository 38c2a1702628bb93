package metrics

import "github.com/prometheus/client_golang/prometheus"

// CheckoutMetrics counts integrity and risk outcomes on the checkout path.
type CheckoutMetrics struct {
	reservations *prometheus.CounterVec
	verdicts     *prometheus.CounterVec
	violations   *prometheus.CounterVec
	transitions  *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_outcomes_total",
			Help:      "Inventory reservation operations by outcome.",
		}, []string{"outcome"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fraud_verdicts_total",
			Help:      "Fraud evaluations by verdict.",
		}, []string{"verdict"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "immutable_violations_total",
			Help:      "Rejected writes against immutable records.",
		}, []string{"entity"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_transitions_total",
			Help:      "Checkout session state transitions.",
		}, []string{"to"}),
	}
	reg.MustRegister(m.reservations, m.verdicts, m.violations, m.transitions)
	return m
}

func (m *CheckoutMetrics) Reservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) Verdict(verdict string) {
	if m == nil || m.verdicts == nil {
		return
	}
	m.verdicts.WithLabelValues(normalizeLabel(verdict)).Inc()
}

func (m *CheckoutMetrics) ImmutableViolation(entity string) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.WithLabelValues(normalizeLabel(entity)).Inc()
}

func (m *CheckoutMetrics) Transition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}
