package connection

import "github.com/prometheus/client_golang/prometheus"

// Reasons a received datagram or response is dropped.
const (
	dropOutsideWindow = "outside_window"
	dropOrphan        = "orphan"
	dropUnclaimed     = "unclaimed"
)

// Metrics collects statistics of one or more connections. It implements
// prometheus.Collector; register it with a prometheus.Registerer. A nil
// *Metrics records nothing.
type Metrics struct {
	packetsSent     prometheus.Counter
	packetsReceived prometheus.Counter
	packetsDropped  *prometheus.CounterVec
	integrity       prometheus.Counter
	handshakes      *prometheus.CounterVec
	commands        *prometheus.CounterVec
	pending         prometheus.Gauge
}

// NewMetrics creates the collector with all metric names prefixed by
// namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		packetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "RMCP datagrams sent to BMCs.",
		}),
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "RMCP datagrams received from BMCs.",
		}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Received session messages and responses that were discarded.",
		}, []string{"reason"}),
		integrity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_failures_total",
			Help:      "Session messages accepted although their integrity check failed.",
		}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_handshakes_total",
			Help:      "RMCP+ session establishments by result.",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "In-session IPMI commands by result.",
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commands_pending",
			Help:      "In-session IPMI commands awaiting a response.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.packetsSent.Describe(ch)
	m.packetsReceived.Describe(ch)
	m.packetsDropped.Describe(ch)
	m.integrity.Describe(ch)
	m.handshakes.Describe(ch)
	m.commands.Describe(ch)
	m.pending.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.packetsSent.Collect(ch)
	m.packetsReceived.Collect(ch)
	m.packetsDropped.Collect(ch)
	m.integrity.Collect(ch)
	m.handshakes.Collect(ch)
	m.commands.Collect(ch)
	m.pending.Collect(ch)
}

func (m *Metrics) sent() {
	if m != nil {
		m.packetsSent.Inc()
	}
}

func (m *Metrics) received() {
	if m != nil {
		m.packetsReceived.Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.packetsDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) integrityFailed() {
	if m != nil {
		m.integrity.Inc()
	}
}

func (m *Metrics) handshake(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.handshakes.WithLabelValues(result).Inc()
}

func (m *Metrics) commandSent() {
	if m != nil {
		m.pending.Inc()
	}
}

// commandDone records the outcome of a command counted by commandSent.
func (m *Metrics) commandDone(result string) {
	if m != nil {
		m.pending.Dec()
		m.commands.WithLabelValues(result).Inc()
	}
}

var _ prometheus.Collector = (*Metrics)(nil)
