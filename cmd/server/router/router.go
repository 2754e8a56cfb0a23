// Package router configures the HTTP routes of the inference server.
//
// Routes configured:
//   - GET  /         - Service name, build version and loaded model
//   - GET  /health   - Liveness check, {"status":"ok"}
//   - GET  /healthz  - Alias of /health
//   - POST /predict  - Classify {"features":[...]}
//   - GET  /metrics  - Prometheus metrics endpoint
//
// Requests with a method a route does not accept get 405. Preflight OPTIONS
// requests are answered by the CORS middleware.
package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/irisserve/pkg/httpx"
	"github.com/HatiCode/irisserve/pkg/inference"
	"github.com/HatiCode/irisserve/pkg/metrics"
)

// ServiceName is reported by GET /.
const ServiceName = "iris-classifier"

// MaxBodyBytes bounds the size of a predict request body.
const MaxBodyBytes = 1 << 20

// Options configures SetupRoutes.
type Options struct {
	Version        string
	RequestTimeout time.Duration
	// Gatherer backs /metrics; nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// SetupRoutes returns the server's handler, middleware included.
func SetupRoutes(svc *inference.Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	handle := func(pattern, name string, h http.Handler) {
		if opts.Metrics != nil {
			h = promhttp.InstrumentHandlerDuration(
				opts.Metrics.HTTPRequestDuration.MustCurryWith(prometheus.Labels{"handler": name}), h)
		}
		mux.Handle(pattern, h)
	}

	handle("GET /{$}", "root", handleRoot(svc, opts.Version, opts.Logger))
	handle("GET /health", "health", handleHealth(svc, opts.Logger))
	handle("GET /healthz", "health", handleHealth(svc, opts.Logger))
	handle("POST /predict", "predict", handlePredict(svc, opts))
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	return httpx.Chain(mux,
		httpx.RecoveryMiddleware(opts.Logger),
		httpx.LoggingMiddleware(opts.Logger),
		httpx.CORSMiddleware(httpx.CORSOptions{
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       time.Hour,
		}),
	)
}

type rootResponse struct {
	Name    string              `json:"name"`
	Version string              `json:"version"`
	Model   inference.ModelInfo `json:"model"`
}

func handleRoot(svc *inference.Service, version string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := rootResponse{Name: ServiceName, Version: version, Model: svc.Info()}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleHealth(svc *inference.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.WriteJSON(w, http.StatusOK, svc.Health()); err != nil {
			logger.Error("failed to write health response", "error", err)
		}
	}
}

func handlePredict(svc *inference.Service, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpx.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		features, err := inference.ParseFeatures(body, svc.NumFeatures())
		if err != nil {
			var verr *inference.ValidationError
			if opts.Metrics != nil && errors.As(err, &verr) {
				opts.Metrics.RecordError(string(verr.Kind))
			}
			writeError(w, err, opts.Logger)
			return
		}

		ctx := r.Context()
		if opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.RequestTimeout)
			defer cancel()
		}

		res, err := svc.Predict(ctx, features)
		if err != nil {
			writeError(w, err, opts.Logger)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, res); err != nil {
			opts.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// StatusFor maps a prediction error to its HTTP status code.
func StatusFor(err error) int {
	var verr *inference.ValidationError
	if errors.As(err, &verr) {
		switch verr.Kind {
		case inference.ViolationMalformed, inference.ViolationMissing:
			return http.StatusBadRequest
		default:
			return http.StatusUnprocessableEntity
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error, logger *slog.Logger) {
	status := StatusFor(err)
	if status == http.StatusGatewayTimeout {
		httpx.WriteErrorMessage(w, status, "prediction timed out")
		return
	}
	if err := httpx.WriteJSON(w, status, inference.NewErrorBody(err)); err != nil {
		logger.Error("failed to write error response", "error", err)
	}
}
