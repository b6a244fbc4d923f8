package bridgemetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "bridged"
	subsystem = "bridge"
)

// Label names for bridge metrics.
const (
	labelMsgType = "msg_type"
	labelReason  = "reason"
)

// -------------------------------------------------------------------------
// Collector — Prometheus bridge metrics
// -------------------------------------------------------------------------

// Collector holds all bridge Prometheus metrics.
//
//   - Peers tracks the currently live peer session count.
//   - Frame counters track sent/received/dropped volumes per message type.
//   - Route gauges track SubjectRouteMap/PatternRouteMap occupancy.
//   - Dataloss and timeout counters flag peer-session unreliability.
type Collector struct {
	// Peers tracks the number of currently live peer sessions.
	Peers prometheus.Gauge

	// FramesSent counts frames handed to the fabric, per message type.
	FramesSent *prometheus.CounterVec

	// FramesReceived counts frames successfully dispatched, per message type.
	FramesReceived *prometheus.CounterVec

	// FramesDropped counts frames discarded by OutboundQueue or
	// InboundDispatcher, per drop reason.
	FramesDropped *prometheus.CounterVec

	// SubjectRoutes tracks the current SubjectRouteMap entry count.
	SubjectRoutes prometheus.Gauge

	// PatternRoutes tracks the current PatternRouteMap entry count.
	PatternRoutes prometheus.Gauge

	// DataLossEvents counts sequence-gap dataloss signals raised per peer.
	DataLossEvents prometheus.Counter

	// TimeoutEvictions counts peer sessions evicted by the two-tick
	// timeout process.
	TimeoutEvictions prometheus.Counter
}

// NewCollector creates a Collector with all bridge metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "bridged_bridge_" prefix
// (namespace_subsystem) to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Peers,
		c.FramesSent,
		c.FramesReceived,
		c.FramesDropped,
		c.SubjectRoutes,
		c.PatternRoutes,
		c.DataLossEvents,
		c.TimeoutEvictions,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers",
			Help:      "Number of currently live peer sessions.",
		}),

		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Total frames handed to the fabric, by message type.",
		}, []string{labelMsgType}),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total frames successfully dispatched, by message type.",
		}, []string{labelMsgType}),

		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Total frames dropped by the outbound queue or dispatcher, by reason.",
		}, []string{labelReason}),

		SubjectRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subject_routes",
			Help:      "Current number of exact-subject route entries.",
		}),

		PatternRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pattern_routes",
			Help:      "Current number of pattern route entries.",
		}),

		DataLossEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dataloss_events_total",
			Help:      "Total sequence-gap dataloss signals raised.",
		}),

		TimeoutEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "timeout_evictions_total",
			Help:      "Total peer sessions evicted by the two-tick timeout process.",
		}),
	}
}

// -------------------------------------------------------------------------
// Peer Lifecycle
// -------------------------------------------------------------------------

// SetPeers sets the live-peer gauge to n. cmd/bridged calls it from its
// periodic metrics sampler.
func (c *Collector) SetPeers(n int) {
	c.Peers.Set(float64(n))
}

// -------------------------------------------------------------------------
// Frame Counters
// -------------------------------------------------------------------------

// IncFramesSent increments the sent-frames counter for msgType.
func (c *Collector) IncFramesSent(msgType string) {
	c.FramesSent.WithLabelValues(msgType).Inc()
}

// IncFramesReceived increments the received-frames counter for msgType.
func (c *Collector) IncFramesReceived(msgType string) {
	c.FramesReceived.WithLabelValues(msgType).Inc()
}

// IncFramesDropped increments the dropped-frames counter for reason.
func (c *Collector) IncFramesDropped(reason string) {
	c.FramesDropped.WithLabelValues(reason).Inc()
}

// -------------------------------------------------------------------------
// Route Occupancy
// -------------------------------------------------------------------------

// SetSubjectRoutes sets the exact-subject route gauge.
func (c *Collector) SetSubjectRoutes(n int) {
	c.SubjectRoutes.Set(float64(n))
}

// SetPatternRoutes sets the pattern route gauge.
func (c *Collector) SetPatternRoutes(n int) {
	c.PatternRoutes.Set(float64(n))
}

// -------------------------------------------------------------------------
// Reliability Signals
// -------------------------------------------------------------------------

// IncDataLossEvents increments the dataloss-signal counter.
func (c *Collector) IncDataLossEvents() {
	c.DataLossEvents.Inc()
}

// IncTimeoutEvictions increments the timeout-eviction counter.
func (c *Collector) IncTimeoutEvictions() {
	c.TimeoutEvictions.Inc()
}
