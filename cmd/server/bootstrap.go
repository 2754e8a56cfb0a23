package main

import (
	"log/slog"
	"time"

	"github.com/HatiCode/irisserve/cmd/server/config"
	"github.com/HatiCode/irisserve/pkg/cache"
	"github.com/HatiCode/irisserve/pkg/inference"
	"github.com/HatiCode/irisserve/pkg/metrics"
	"github.com/HatiCode/irisserve/pkg/models"
)

// bootstrap loads the model artifact and builds the ready service. Any
// failure is returned as *inference.ModelLoadError and must stop the process:
// the server never listens without a model.
func bootstrap(cfg *config.Config, c cache.Cache, m *metrics.Metrics, logger *slog.Logger) (*inference.Service, *models.Artifact, error) {
	path, err := models.ResolvePath(cfg.ModelPath)
	if err != nil {
		return nil, nil, &inference.ModelLoadError{Path: cfg.ModelPath, Err: err}
	}

	start := time.Now()
	art, err := models.Load(path, models.LoadOptions{ONNXRuntimeLib: cfg.ONNXRuntimeLib})
	if err != nil {
		return nil, nil, &inference.ModelLoadError{Path: path, Err: err}
	}
	loadTime := time.Since(start)

	svc, err := inference.NewFromArtifact(art, inference.Config{
		Cache:   c,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		if cerr := art.Close(); cerr != nil {
			logger.Warn("failed to release model", "error", cerr)
		}
		return nil, nil, err
	}

	if m != nil {
		m.SetModel(art.Format, art.Digest, loadTime.Seconds())
	}

	attrs := []any{
		"path", path,
		"backend", art.Model.Name(),
		"format", art.Format,
		"digest", art.Digest,
		"features", svc.NumFeatures(),
		"load_ms", loadTime.Milliseconds(),
	}
	if forest, ok := art.Model.(*models.Forest); ok {
		attrs = append(attrs, "estimators", forest.NumEstimators())
	}
	logger.Info("model loaded", attrs...)

	return svc, art, nil
}
