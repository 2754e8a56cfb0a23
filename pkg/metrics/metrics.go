// Package metrics provides Prometheus metrics instrumentation for the
// inference service.
//
// Metrics exposed:
//   - iris_predict_seconds: Histogram of model prediction duration
//   - iris_predictions_total: Counter of successful predictions by class name
//   - iris_prediction_errors_total: Counter of failed predictions by kind
//   - iris_cache_requests_total: Counter of prediction cache lookups by result
//   - iris_http_request_duration_seconds: Histogram of HTTP handler latency
//   - iris_model_info: Gauge set to 1, labelled with the loaded artifact
//   - iris_model_load_seconds: Gauge of the time spent loading the model at startup
//
// Metrics are registered against the Registerer passed to New so tests can
// use an isolated prometheus.Registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	PredictSeconds      *prometheus.HistogramVec
	PredictionsTotal    *prometheus.CounterVec
	PredictionErrors    *prometheus.CounterVec
	CacheRequests       *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ModelInfo           *prometheus.GaugeVec
	ModelLoadSeconds    prometheus.Gauge
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PredictSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iris_predict_seconds",
			Help:    "Time spent running the classifier",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"model"}),

		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_predictions_total",
			Help: "Total number of successful predictions by predicted class",
		}, []string{"class_name"}),

		PredictionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_prediction_errors_total",
			Help: "Total number of failed predictions by error kind",
		}, []string{"kind"}),

		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_cache_requests_total",
			Help: "Total number of prediction cache lookups by result",
		}, []string{"result"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iris_http_request_duration_seconds",
			Help:    "HTTP request latency by handler",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler", "method", "code"}),

		ModelInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iris_model_info",
			Help: "Loaded model artifact (always 1)",
		}, []string{"format", "digest"}),

		ModelLoadSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "iris_model_load_seconds",
			Help: "Time spent loading the model artifact at startup",
		}),
	}
}

// RecordPredict records the time spent in the classifier.
func (m *Metrics) RecordPredict(model string, seconds float64) {
	m.PredictSeconds.WithLabelValues(model).Observe(seconds)
}

// RecordPrediction increments the prediction counter for a class.
func (m *Metrics) RecordPrediction(className string) {
	m.PredictionsTotal.WithLabelValues(className).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(kind string) {
	m.PredictionErrors.WithLabelValues(kind).Inc()
}

// RecordCache increments the cache lookup counter ("hit", "miss" or "error").
func (m *Metrics) RecordCache(result string) {
	m.CacheRequests.WithLabelValues(result).Inc()
}

// SetModel publishes the loaded artifact and its load time.
func (m *Metrics) SetModel(format, digest string, loadSeconds float64) {
	m.ModelInfo.WithLabelValues(format, digest).Set(1)
	m.ModelLoadSeconds.Set(loadSeconds)
}
