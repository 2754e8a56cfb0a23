package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_IsolatedRegistries(t *testing.T) {
	// Registering twice against separate registries must not panic.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordPrediction("setosa")
	m.RecordPrediction("setosa")
	m.RecordError("arity")
	m.RecordCache("hit")
	m.RecordPredict("forest", 0.0001)
	m.SetModel("iris-forest/v1", "abc", 0.25)

	if got := testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("setosa")); got != 2 {
		t.Errorf("predictions{setosa} = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.PredictionErrors.WithLabelValues("arity")); got != 1 {
		t.Errorf("errors{arity} = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")); got != 1 {
		t.Errorf("cache{hit} = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.ModelInfo.WithLabelValues("iris-forest/v1", "abc")); got != 1 {
		t.Errorf("model_info = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.ModelLoadSeconds); got != 0.25 {
		t.Errorf("model_load_seconds = %f, want 0.25", got)
	}
	if got := testutil.CollectAndCount(m.PredictSeconds); got != 1 {
		t.Errorf("predict_seconds series = %d, want 1", got)
	}
}
