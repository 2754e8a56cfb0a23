// Command server runs the Iris classifier as a long-lived HTTP service.
//
// At startup the model artifact is loaded once; if that fails the process
// exits 1 without listening. Once loaded, the server exposes:
//   - GET  /         - Service name, version and model
//   - GET  /health   - Liveness check (also /healthz)
//   - POST /predict  - Classify {"features":[sepal_length, sepal_width, petal_length, petal_width]}
//   - GET  /metrics  - Prometheus metrics endpoint
//
// When -grpc-listen is set, iris.v1.Inference/Predict and the standard gRPC
// health service are served as well.
//
// Usage:
//
//	server -listen=:8080 -model-path=model/iris_forest.json
//
// Environment variables:
//
//	LISTEN           - HTTP listen address (default: :8080, or :$PORT)
//	GRPC_LISTEN      - gRPC listen address (default: disabled)
//	MODEL_PATH       - Model artifact, relative to the executable (default: model/iris_forest.json)
//	ONNXRUNTIME_LIB  - onnxruntime shared library (onnx builds only)
//	CACHE            - Prediction cache: none, memory, redis (default: none)
//	REDIS_ADDR       - Redis address when CACHE=redis
//	REQUEST_TIMEOUT  - Per-request prediction timeout (default: 5s)
//	LOG_LEVEL        - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT       - Logging format: text, json (default: text)
//	CONFIG_FILE      - Optional YAML config file
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/HatiCode/irisserve/cmd/server/config"
	"github.com/HatiCode/irisserve/cmd/server/logger"
	"github.com/HatiCode/irisserve/cmd/server/router"
	"github.com/HatiCode/irisserve/cmd/server/store"
	"github.com/HatiCode/irisserve/pkg/httpx"
	"github.com/HatiCode/irisserve/pkg/inference"
	"github.com/HatiCode/irisserve/pkg/metrics"
	"github.com/HatiCode/irisserve/pkg/rpc"
	"github.com/HatiCode/irisserve/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)

	log.Info("starting iris inference server",
		"version", version,
		"listen", cfg.Listen,
		"grpc_listen", cfg.GRPCListen,
		"model_path", cfg.ModelPath,
		"cache", cfg.Cache,
		"tls_enabled", cfg.TLS.Enabled,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	predictionCache, closeCache, err := store.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize prediction cache", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	svc, art, err := bootstrap(cfg, predictionCache, m, log)
	if err != nil {
		var lerr *inference.ModelLoadError
		if errors.As(err, &lerr) {
			log.Error("model unavailable, refusing to start", "path", lerr.Path, "error", lerr.Err)
		} else {
			log.Error("failed to start", "error", err)
		}
		closeCache()
		os.Exit(1)
	}
	defer func() {
		if err := art.Close(); err != nil {
			log.Warn("failed to release model", "error", err)
		}
	}()

	if err := run(cfg, svc, reg, m, log); err != nil {
		log.Error("server failed", "error", err)
		closeCache()
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func run(cfg *config.Config, svc *inference.Service, reg *prometheus.Registry, m *metrics.Metrics, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := router.SetupRoutes(svc, router.Options{
		Version:        version,
		RequestTimeout: cfg.RequestTimeout,
		Gatherer:       reg,
		Metrics:        m,
		Logger:         log,
	})
	httpServer := httpx.NewServer(cfg.Listen, handler, log)

	var grpcOpts []grpc.ServerOption
	if cfg.TLS.Enabled {
		tlsCfg, err := tls.NewServerTLSConfig(cfg.TLS)
		if err != nil {
			return err
		}
		httpServer.SetTLSConfig(tlsCfg)
		grpcOpts = append(grpcOpts, grpc.Creds(credentials.NewTLS(tlsCfg)))
		log.Info("TLS enabled", "mutual", cfg.TLS.MutualTLS())
	}

	errCh := make(chan error, 2)

	go func() {
		errCh <- httpServer.Start("", "")
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			return err
		}

		srv, healthServer := rpc.NewGRPCServer(rpc.NewServer(svc, cfg.RequestTimeout, log), log, grpcOpts...)
		grpcServer = srv
		defer healthServer.Shutdown()

		go func() {
			log.Info("grpc server listening", "address", cfg.GRPCListen)
			errCh <- grpcServer.Serve(lis)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case runErr = <-errCh:
		log.Error("listener stopped unexpectedly", "error", runErr)
	}

	if grpcServer != nil {
		log.Info("shutting down grpc server")
		grpcServer.GracefulStop()
	}

	log.Info("shutting down http server")
	if err := httpServer.Stop(cfg.ShutdownTimeout); err != nil {
		log.Error("http server shutdown error", "error", err)
	}

	return runErr
}
