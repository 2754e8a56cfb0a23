// Package models loads pre-trained classifier artifacts and exposes them
// behind a single Classifier interface.
//
// Two artifact formats are supported:
//   - iris-forest/v1 — a JSON-serialized tree ensemble using scikit-learn's
//     tree_ array layout (see Forest)
//   - ONNX           — a model exported with skl2onnx, executed through ONNX
//     Runtime (requires the "onnx" build tag and the runtime shared library)
//
// Artifacts are loaded once at process start and are never mutated afterwards.
// All Classifier implementations are safe for concurrent use.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Classifier is the interface every loaded model implements.
type Classifier interface {
	// Name returns the backend identifier, e.g. "forest" or "onnx".
	Name() string

	// NumFeatures returns the input width the model was trained on.
	NumFeatures() int

	// NumClasses returns the number of classes the model distinguishes.
	NumClasses() int

	// Classes returns the class labels stored in the artifact, if any.
	Classes() []string

	// Predict returns the predicted class index for x.
	Predict(x []float64) (int, error)

	// PredictProba returns one probability per class for x.
	PredictProba(x []float64) ([]float64, error)
}

// Artifact is a classifier together with what it was loaded from.
type Artifact struct {
	Model  Classifier
	Path   string
	Format string
	// Digest is the hex SHA-256 of the artifact bytes.
	Digest string
}

// Close releases backend resources held by the model, if any.
func (a *Artifact) Close() error {
	if closer, ok := a.Model.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// LoadOptions carries backend-specific settings.
type LoadOptions struct {
	// ONNXRuntimeLib is the path to the onnxruntime shared library.
	// Empty uses the platform default search path.
	ONNXRuntimeLib string
}

// Load reads the artifact at path and returns the decoded classifier.
// The backend is chosen by file extension: ".json" for the tree ensemble,
// ".onnx" for ONNX Runtime.
func Load(path string, opts LoadOptions) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	digest := sha256.Sum256(data)
	art := &Artifact{
		Path:   path,
		Digest: hex.EncodeToString(digest[:]),
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		forest, err := LoadForestBytes(data)
		if err != nil {
			return nil, err
		}
		art.Model = forest
		art.Format = ForestFormat
	case ".onnx":
		meta, err := ReadONNXMetadata(ONNXMetadataPath(path))
		if err != nil {
			return nil, err
		}
		model, err := newONNXClassifier(path, meta, opts)
		if err != nil {
			return nil, err
		}
		art.Model = model
		art.Format = "onnx"
	default:
		return nil, fmt.Errorf("unsupported model artifact extension %q (want .json or .onnx)", ext)
	}

	return art, nil
}

// ResolvePath makes a relative artifact path absolute against the directory
// of the running executable, so the artifact is found regardless of the
// working directory the process was started from.
func ResolvePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("model path cannot be empty")
	}
	if filepath.IsAbs(p) {
		return p, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	return filepath.Join(filepath.Dir(exe), p), nil
}
