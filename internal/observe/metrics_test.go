package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestStageHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.IntentDuration.Record(ctx, 0.8)
	m.SwapDuration.Record(ctx, 3.1)

	rm := collect(t, reader)
	for _, name := range []string{"standin.intent.duration", "standin.swap.duration"} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("metric %q is not a float64 histogram", name)
		}
		if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
			t.Fatalf("metric %q has unexpected datapoints: %+v", name, hist.DataPoints)
		}
	}
}

func TestRecordCycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCycle(ctx, "responded", 6.5)
	m.RecordCycle(ctx, "silent", 1.2)
	m.RecordCycle(ctx, "silent", 0.9)

	rm := collect(t, reader)
	met := findMetric(rm, "standin.cycles")
	if met == nil {
		t.Fatal("cycles counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("cycles is not an int64 sum")
	}
	// One datapoint per outcome attribute.
	if len(sum.DataPoints) != 2 {
		t.Fatalf("got %d datapoints, want 2", len(sum.DataPoints))
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Fatalf("total cycles %d, want 3", total)
	}

	durMet := findMetric(rm, "standin.cycle.duration")
	if durMet == nil {
		t.Fatal("cycle duration histogram not found")
	}
}

func TestRecordGateDecision(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordGateDecision(context.Background(), "respond")

	rm := collect(t, reader)
	met := findMetric(rm, "standin.gate.decisions")
	if met == nil {
		t.Fatal("gate decisions counter not found")
	}
}
