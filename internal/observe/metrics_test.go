package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// harness couples a Metrics with the reader its instruments export to.
type harness struct {
	*Metrics
	reader *sdkmetric.ManualReader
}

func newHarness(t *testing.T) harness {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return harness{Metrics: m, reader: reader}
}

func (h harness) snapshot(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i, met := range sm.Metrics {
			if met.Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counter returns the value of the int64 sum data point whose attributes
// include attr. It returns -1 when no such point exists.
func counter(rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	met := findMetric(rm, name)
	if met == nil {
		return -1
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		return -1
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v.AsString() == attr.Value.AsString() {
			return dp.Value
		}
	}
	return -1
}

func TestLatencyHistograms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	instruments := map[string]metric.Float64Histogram{
		"dost.generate.duration":      h.GenerateDuration,
		"dost.chat.duration":          h.ChatDuration,
		"dost.voice.connect.duration": h.VoiceConnectDuration,
	}
	for _, inst := range instruments {
		inst.Record(ctx, 0.5)
		inst.Record(ctx, 12)
	}

	rm := h.snapshot(t)
	for name := range instruments {
		met := findMetric(rm, name)
		if met == nil {
			t.Errorf("%s: not exported", name)
			continue
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok || len(hist.DataPoints) != 1 {
			t.Errorf("%s: data = %T with unexpected points", name, met.Data)
			continue
		}
		dp := hist.DataPoints[0]
		if dp.Count != 2 || dp.Sum != 12.5 {
			t.Errorf("%s: count=%d sum=%v, want 2 and 12.5", name, dp.Count, dp.Sum)
		}
		if len(dp.Bounds) != len(latencyBuckets) {
			t.Errorf("%s: %d bucket bounds, want %d", name, len(dp.Bounds), len(latencyBuckets))
		}
	}
}

func TestRecordHelpers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.RecordProviderRequest(ctx, "gemini", "generate", "ok")
	h.RecordProviderRequest(ctx, "gemini", "generate", "ok")
	h.RecordProviderRequest(ctx, "gemini", "generate", "error")
	h.RecordProviderError(ctx, "openai", "llm")
	h.RecordMalformed(ctx, "screening")
	h.RecordMalformed(ctx, "screening")
	h.RecordMalformed(ctx, "moderation")
	h.RecordChatFallback(ctx, "llm")

	rm := h.snapshot(t)
	tests := []struct {
		metric string
		attr   attribute.KeyValue
		want   int64
	}{
		{"dost.provider.requests", Attr("status", "ok"), 2},
		{"dost.provider.requests", Attr("status", "error"), 1},
		{"dost.provider.errors", Attr("provider", "openai"), 1},
		{"dost.generate.malformed", Attr("operation", "screening"), 2},
		{"dost.generate.malformed", Attr("operation", "moderation"), 1},
		{"dost.chat.fallbacks", Attr("responder", "llm"), 1},
	}
	for _, tt := range tests {
		if got := counter(rm, tt.metric, tt.attr); got != tt.want {
			t.Errorf("%s{%s=%s} = %d, want %d", tt.metric, tt.attr.Key, tt.attr.Value.AsString(), got, tt.want)
		}
	}
}

func TestActiveSessionGauges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ActiveVoiceSessions.Add(ctx, 1)
	h.ActiveVoiceSessions.Add(ctx, 1)
	h.ActiveVoiceSessions.Add(ctx, -1)
	h.ActiveChatSessions.Add(ctx, 3)

	rm := h.snapshot(t)
	for name, want := range map[string]int64{
		"dost.voice.active_sessions": 1,
		"dost.chat.active_sessions":  3,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Errorf("%s: not exported", name)
			continue
		}
		sum := met.Data.(metricdata.Sum[int64])
		if sum.IsMonotonic || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != want {
			t.Errorf("%s = %+v, want one non-monotonic point of %d", name, sum, want)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
