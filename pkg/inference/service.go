package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/HatiCode/irisserve/pkg/cache"
	"github.com/HatiCode/irisserve/pkg/metrics"
	"github.com/HatiCode/irisserve/pkg/models"
)

// Config holds the optional collaborators of a Service.
type Config struct {
	// Format and Digest describe the artifact the model was loaded from.
	// Digest also namespaces cache keys.
	Format string
	Digest string

	Cache   cache.Cache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// featureNamer is implemented by models that carry input column names.
type featureNamer interface {
	FeatureNames() []string
}

// Service answers prediction requests with a fixed, pre-loaded model.
type Service struct {
	model   models.Classifier
	info    ModelInfo
	cache   cache.Cache
	cacheNS string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds a ready service around model. It fails with *ModelLoadError if
// the model does not match the ClassNames enumeration.
func New(model models.Classifier, cfg Config) (*Service, error) {
	if model == nil {
		return nil, &ModelLoadError{Err: errors.New("no model")}
	}
	if model.NumFeatures() <= 0 {
		return nil, &ModelLoadError{Err: fmt.Errorf("model reports %d input features", model.NumFeatures())}
	}
	if model.NumClasses() != len(ClassNames) {
		return nil, &ModelLoadError{Err: fmt.Errorf("model has %d classes, expected %d %v",
			model.NumClasses(), len(ClassNames), ClassNames)}
	}
	if classes := model.Classes(); len(classes) > 0 && !slices.Equal(classes, ClassNames) {
		return nil, &ModelLoadError{Err: fmt.Errorf("model classes %v do not match %v", classes, ClassNames)}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cacheNS := cfg.Digest
	if cacheNS == "" {
		cacheNS = model.Name()
	}

	info := ModelInfo{
		Name:     model.Name(),
		Format:   cfg.Format,
		Digest:   cfg.Digest,
		Features: model.NumFeatures(),
		Classes:  slices.Clone(ClassNames),
	}
	if named, ok := model.(featureNamer); ok {
		if names := named.FeatureNames(); len(names) == info.Features {
			info.FeatureNames = slices.Clone(names)
		}
	}

	return &Service{
		model:   model,
		info:    info,
		cache:   cfg.Cache,
		cacheNS: cacheNS,
		metrics: cfg.Metrics,
		logger:  logger,
	}, nil
}

// NewFromArtifact builds a service from a loaded artifact, filling the
// artifact fields of cfg.
func NewFromArtifact(art *models.Artifact, cfg Config) (*Service, error) {
	if art == nil {
		return nil, &ModelLoadError{Err: errors.New("no artifact")}
	}
	cfg.Format = art.Format
	cfg.Digest = art.Digest

	svc, err := New(art.Model, cfg)
	if err != nil {
		var lerr *ModelLoadError
		if errors.As(err, &lerr) && lerr.Path == "" {
			lerr.Path = art.Path
		}
		return nil, err
	}
	return svc, nil
}

// Health reports liveness. A Service only exists once the model is loaded,
// so it always reports "ok".
func (s *Service) Health() Health {
	return Health{Status: "ok"}
}

// NumFeatures returns the feature vector length the service accepts.
func (s *Service) NumFeatures() int {
	return s.info.Features
}

// Info describes the loaded model.
func (s *Service) Info() ModelInfo {
	info := s.info
	info.Classes = slices.Clone(s.info.Classes)
	info.FeatureNames = slices.Clone(s.info.FeatureNames)
	return info
}

// Validate checks features against the model's input contract.
func (s *Service) Validate(features FeatureVector) error {
	if len(features) != s.info.Features {
		return arityError(s.info.Features, len(features))
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return typeError(i, "is not a finite number")
		}
	}
	return nil
}

// Predict classifies features. Probabilities are returned exactly as the
// model produced them.
func (s *Service) Predict(ctx context.Context, features FeatureVector) (PredictionResult, error) {
	if err := s.Validate(features); err != nil {
		s.recordValidation(err)
		return PredictionResult{}, err
	}

	if err := s.checkContext(ctx); err != nil {
		return PredictionResult{}, err
	}

	var key string
	if s.cache != nil {
		key = cache.Key(s.cacheNS, features)
		if res, ok := s.lookup(ctx, key); ok {
			if s.metrics != nil {
				s.metrics.RecordPrediction(res.ClassName)
			}
			return res, nil
		}
		if err := s.checkContext(ctx); err != nil {
			return PredictionResult{}, err
		}
	}

	res, err := s.classify(features)
	if err != nil {
		s.logger.Error("prediction failed",
			"model", s.info.Name,
			"features", []float64(features),
			"error", errors.Unwrap(err),
		)
		if s.metrics != nil {
			s.metrics.RecordError("inference")
		}
		return PredictionResult{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordPrediction(res.ClassName)
	}

	if s.cache != nil {
		s.store(ctx, key, res)
	}

	return res, nil
}

func (s *Service) classify(x []float64) (res PredictionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InferenceError{Err: fmt.Errorf("model panicked: %v", r)}
		}
	}()

	start := time.Now()

	index, err := s.model.Predict(x)
	if err != nil {
		return PredictionResult{}, &InferenceError{Err: fmt.Errorf("predict: %w", err)}
	}

	proba, err := s.model.PredictProba(x)
	if err != nil {
		return PredictionResult{}, &InferenceError{Err: fmt.Errorf("predict proba: %w", err)}
	}

	if s.metrics != nil {
		s.metrics.RecordPredict(s.info.Name, time.Since(start).Seconds())
	}

	if len(proba) != len(ClassNames) {
		return PredictionResult{}, &InferenceError{Err: fmt.Errorf("model returned %d probabilities, expected %d", len(proba), len(ClassNames))}
	}
	if index < 0 || index >= len(ClassNames) {
		return PredictionResult{}, &InferenceError{Err: fmt.Errorf("model returned class index %d out of range", index)}
	}

	return PredictionResult{
		Prediction:    index,
		ClassName:     ClassNames[index],
		Probabilities: proba,
	}, nil
}

// checkContext returns the context error once the caller has given up.
// The model never blocks, so this is the only place a deadline applies.
func (s *Service) checkContext(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if s.metrics != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.metrics.RecordError("timeout")
		} else {
			s.metrics.RecordError("canceled")
		}
	}
	return err
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// lookup returns a cached result. Cache failures count as misses; a lookup
// cut short by the request context is not a cache failure.
func (s *Service) lookup(ctx context.Context, key string) (PredictionResult, bool) {
	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		if isContextError(err) {
			return PredictionResult{}, false
		}
		s.logger.Warn("prediction cache lookup failed", "error", err)
		s.recordCache("error")
		return PredictionResult{}, false
	}
	if !found {
		s.recordCache("miss")
		return PredictionResult{}, false
	}

	var res PredictionResult
	if err := json.Unmarshal(data, &res); err != nil {
		s.logger.Warn("discarding undecodable cache entry", "error", err)
		s.recordCache("error")
		return PredictionResult{}, false
	}

	s.recordCache("hit")
	return res, true
}

func (s *Service) store(ctx context.Context, key string, res PredictionResult) {
	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Warn("failed to encode prediction for cache", "error", err)
		return
	}
	if err := s.cache.Put(ctx, key, data); err != nil {
		if isContextError(err) {
			s.logger.Debug("prediction cache store skipped", "error", err)
			return
		}
		s.logger.Warn("prediction cache store failed", "error", err)
		s.recordCache("error")
	}
}

func (s *Service) recordCache(result string) {
	if s.metrics != nil {
		s.metrics.RecordCache(result)
	}
}

func (s *Service) recordValidation(err error) {
	var verr *ValidationError
	if s.metrics != nil && errors.As(err, &verr) {
		s.metrics.RecordError(string(verr.Kind))
	}
}
