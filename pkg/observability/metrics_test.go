package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherMetric returns the MetricFamily with the given name, or nil.
func gatherMetric(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestToolExecutionsCounter(t *testing.T) {
	ToolExecutionsTotal.WithLabelValues("pods_list", "success").Inc()
	ToolExecutionsTotal.WithLabelValues("pods_list", "success").Inc()
	ToolExecutionsTotal.WithLabelValues("query_db", "error").Inc()

	mf := gatherMetric(t, "kompanion_tool_executions_total")
	if mf == nil {
		t.Fatal("metric kompanion_tool_executions_total not registered")
	}

	var found bool
	for _, m := range mf.GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["tool_name"] == "pods_list" && labels["status"] == "success" {
			found = true
			if m.GetCounter().GetValue() < 2 {
				t.Errorf("expected at least 2 executions, got %v", m.GetCounter().GetValue())
			}
		}
	}
	if !found {
		t.Error("expected pods_list/success series not found")
	}
}

func TestLoopRoundsHistogram(t *testing.T) {
	LoopRounds.Observe(1)
	LoopRounds.Observe(5)

	mf := gatherMetric(t, "kompanion_loop_rounds")
	if mf == nil {
		t.Fatal("metric kompanion_loop_rounds not registered")
	}
	if mf.GetMetric()[0].GetHistogram().GetSampleCount() < 2 {
		t.Errorf("expected at least 2 samples, got %d",
			mf.GetMetric()[0].GetHistogram().GetSampleCount())
	}
}

func TestStreamingConnectionsGauge(t *testing.T) {
	StreamingConnections.Inc()
	StreamingConnections.Inc()
	StreamingConnections.Dec()

	mf := gatherMetric(t, "kompanion_streaming_connections_active")
	if mf == nil {
		t.Fatal("metric kompanion_streaming_connections_active not registered")
	}
}
