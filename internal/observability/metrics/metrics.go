package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the booking
// conversation.
type ConversationMetrics struct {
	inboundTotal  *prometheus.CounterVec
	outboundTotal *prometheus.CounterVec
	bookingsTotal *prometheus.CounterVec
	eventLatency  *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendabot",
			Subsystem: "conversation",
			Name:      "inbound_events_total",
			Help:      "Total inbound conversation events by entry state",
		}, []string{"state", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendabot",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"kind", "status"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendabot",
			Subsystem: "booking",
			Name:      "confirmations_total",
			Help:      "Booking confirmation attempts by result",
		}, []string{"result"}),
		eventLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agendabot",
			Subsystem: "conversation",
			Name:      "event_latency_seconds",
			Help:      "Latency of inbound event handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.bookingsTotal, m.eventLatency)
	return m
}

func (m *ConversationMetrics) ObserveInbound(state, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(state, outcome).Inc()
}

func (m *ConversationMetrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *ConversationMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *ConversationMetrics) ObserveEventLatency(state string, seconds float64) {
	if m == nil {
		return
	}
	m.eventLatency.WithLabelValues(state).Observe(seconds)
}
