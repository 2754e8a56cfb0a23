// Package irisserve is the serverless deployment of the Iris classifier.
//
// Predict is registered with the Functions Framework under the name
// "Predict". The model artifact is compiled into the binary and decoded on
// the first invocation of an instance; warm invocations reuse it.
package irisserve

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	_ "embed"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/HatiCode/irisserve/pkg/httpx"
	"github.com/HatiCode/irisserve/pkg/inference"
	"github.com/HatiCode/irisserve/pkg/models"
)

//go:embed model/iris_forest.json
var modelArtifact []byte

const maxBodyBytes = 1 << 20

var (
	logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

	loadOnce sync.Once
	service  *inference.Service
	loadErr  error

	handler = httpx.Chain(http.HandlerFunc(predict),
		httpx.RecoveryMiddleware(logger),
		httpx.CORSMiddleware(httpx.CORSOptions{
			AllowMethods: []string{http.MethodPost},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       time.Hour,
		}),
	)
)

func init() {
	functions.HTTP("Predict", Predict)
}

// exampleRequest is echoed back when a request carries no features.
var exampleRequest = map[string][]float64{"features": {5.1, 3.5, 1.4, 0.2}}

type functionError struct {
	inference.ErrorBody
	ExpectedFormat any `json:"expected_format,omitempty"`
}

// Predict classifies {"features":[...]} and answers CORS preflight requests.
func Predict(w http.ResponseWriter, r *http.Request) {
	handler.ServeHTTP(w, r)
}

func predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, functionError{
			ErrorBody: inference.ErrorBody{Error: "method not allowed", Type: "MethodNotAllowed"},
		})
		return
	}

	svc, err := loadService()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, functionError{
			ErrorBody: inference.ErrorBody{Error: err.Error(), Type: "ModelLoadError"},
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, functionError{
				ErrorBody: inference.ErrorBody{Error: "request body too large", Type: "ValidationError"},
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, functionError{
			ErrorBody: inference.ErrorBody{Error: "failed to read request body", Type: "ValidationError"},
		})
		return
	}

	features, err := inference.ParseFeatures(body, svc.NumFeatures())
	if err == nil {
		var res inference.PredictionResult
		res, err = svc.Predict(r.Context(), features)
		if err == nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}

	resp := functionError{ErrorBody: inference.NewErrorBody(err)}
	var verr *inference.ValidationError
	if !errors.As(err, &verr) {
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	if verr.Kind == inference.ViolationMalformed || verr.Kind == inference.ViolationMissing {
		resp.ExpectedFormat = exampleRequest
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// loadService decodes the embedded artifact once per instance.
func loadService() (*inference.Service, error) {
	loadOnce.Do(func() {
		start := time.Now()
		service, loadErr = newService(modelArtifact)
		if loadErr != nil {
			logger.Error("failed to load embedded model", "error", loadErr)
			return
		}
		logger.Info("model loaded", "load_ms", time.Since(start).Milliseconds())
	})
	return service, loadErr
}

func newService(artifact []byte) (*inference.Service, error) {
	forest, err := models.LoadForestBytes(artifact)
	if err != nil {
		return nil, &inference.ModelLoadError{Path: "embedded", Err: err}
	}

	digest := sha256.Sum256(artifact)
	return inference.New(forest, inference.Config{
		Format: models.ForestFormat,
		Digest: hex.EncodeToString(digest[:]),
		Logger: logger,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if err := httpx.WriteJSON(w, status, v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}
