package bridgemetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/pubsub-bridge/bridged/internal/bridgemetrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := bridgemetrics.NewCollector(reg)

	if c.Peers == nil {
		t.Error("Peers is nil")
	}
	if c.FramesSent == nil {
		t.Error("FramesSent is nil")
	}
	if c.FramesReceived == nil {
		t.Error("FramesReceived is nil")
	}
	if c.FramesDropped == nil {
		t.Error("FramesDropped is nil")
	}
	if c.SubjectRoutes == nil {
		t.Error("SubjectRoutes is nil")
	}
	if c.PatternRoutes == nil {
		t.Error("PatternRoutes is nil")
	}
	if c.DataLossEvents == nil {
		t.Error("DataLossEvents is nil")
	}
	if c.TimeoutEvictions == nil {
		t.Error("TimeoutEvictions is nil")
	}

	// Verify all metrics are registered by gathering them.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestPeersGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := bridgemetrics.NewCollector(reg)

	c.SetPeers(3)
	if val := gaugeValue(t, c.Peers); val != 3 {
		t.Errorf("Peers = %v, want 3", val)
	}

	c.SetPeers(1)
	if val := gaugeValue(t, c.Peers); val != 1 {
		t.Errorf("Peers = %v, want 1", val)
	}
}

func TestFrameCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := bridgemetrics.NewCollector(reg)

	c.IncFramesSent("PUBLISH")
	c.IncFramesSent("PUBLISH")
	c.IncFramesSent("PUBLISH")

	if val := counterVecValue(t, c.FramesSent, "PUBLISH"); val != 3 {
		t.Errorf("FramesSent[PUBLISH] = %v, want 3", val)
	}

	c.IncFramesReceived("SUB")
	c.IncFramesReceived("SUB")

	if val := counterVecValue(t, c.FramesReceived, "SUB"); val != 2 {
		t.Errorf("FramesReceived[SUB] = %v, want 2", val)
	}

	c.IncFramesDropped("backpressure")

	if val := counterVecValue(t, c.FramesDropped, "backpressure"); val != 1 {
		t.Errorf("FramesDropped[backpressure] = %v, want 1", val)
	}
}

func TestRouteGauges(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := bridgemetrics.NewCollector(reg)

	c.SetSubjectRoutes(42)
	if val := gaugeValue(t, c.SubjectRoutes); val != 42 {
		t.Errorf("SubjectRoutes = %v, want 42", val)
	}

	c.SetPatternRoutes(7)
	if val := gaugeValue(t, c.PatternRoutes); val != 7 {
		t.Errorf("PatternRoutes = %v, want 7", val)
	}
}

func TestReliabilityCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := bridgemetrics.NewCollector(reg)

	c.IncDataLossEvents()
	c.IncDataLossEvents()
	if val := counterValue(t, c.DataLossEvents); val != 2 {
		t.Errorf("DataLossEvents = %v, want 2", val)
	}

	c.IncTimeoutEvictions()
	if val := counterValue(t, c.TimeoutEvictions); val != 1 {
		t.Errorf("TimeoutEvictions = %v, want 1", val)
	}
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
