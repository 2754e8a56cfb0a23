//go:build onnx

package models

import (
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initONNXRuntime(libPath string) error {
	ortInitOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ONNXClassifier runs a classifier through ONNX Runtime. The session is
// bound to preallocated input and output tensors, so runs are serialized.
type ONNXClassifier struct {
	mu          sync.Mutex
	meta        ONNXMetadata
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	label       *ort.Tensor[int64]
	probability *ort.Tensor[float32]
}

func newONNXClassifier(path string, meta ONNXMetadata, opts LoadOptions) (Classifier, error) {
	if err := initONNXRuntime(opts.ONNXRuntimeLib); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(meta.NFeatures)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	label, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create label tensor: %w", err)
	}

	probability, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(meta.Classes))))
	if err != nil {
		input.Destroy()
		label.Destroy()
		return nil, fmt.Errorf("create probability tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{meta.InputName}, []string{meta.LabelOutput, meta.ProbabilityOutput},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{label, probability},
		nil)
	if err != nil {
		input.Destroy()
		label.Destroy()
		probability.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXClassifier{
		meta:        meta,
		session:     session,
		input:       input,
		label:       label,
		probability: probability,
	}, nil
}

// Name returns the backend identifier.
func (c *ONNXClassifier) Name() string {
	return "onnx"
}

// NumFeatures returns the expected input width.
func (c *ONNXClassifier) NumFeatures() int {
	return c.meta.NFeatures
}

// NumClasses returns the number of classes.
func (c *ONNXClassifier) NumClasses() int {
	return len(c.meta.Classes)
}

// Classes returns a copy of the class labels from the metadata file.
func (c *ONNXClassifier) Classes() []string {
	return append([]string(nil), c.meta.Classes...)
}

// Predict returns the label output of the model.
func (c *ONNXClassifier) Predict(x []float64) (int, error) {
	label, _, err := c.run(x)
	return label, err
}

// PredictProba returns the probability output of the model.
func (c *ONNXClassifier) PredictProba(x []float64) ([]float64, error) {
	_, proba, err := c.run(x)
	return proba, err
}

func (c *ONNXClassifier) run(x []float64) (int, []float64, error) {
	if len(x) != c.meta.NFeatures {
		return 0, nil, fmt.Errorf("onnx: got %d features, model expects %d", len(x), c.meta.NFeatures)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	in := c.input.GetData()
	for i, v := range x {
		if math.Abs(v) > math.MaxFloat32 {
			return 0, nil, fmt.Errorf("onnx: feature %d overflows float32", i)
		}
		in[i] = float32(v)
	}

	if err := c.session.Run(); err != nil {
		return 0, nil, fmt.Errorf("onnx inference failed: %w", err)
	}

	out := c.probability.GetData()
	proba := make([]float64, len(out))
	for i, p := range out {
		proba[i] = float64(p)
	}

	return int(c.label.GetData()[0]), proba, nil
}

// Close destroys the session and its tensors.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}

	err := c.session.Destroy()
	c.input.Destroy()
	c.label.Destroy()
	c.probability.Destroy()
	c.session = nil

	return err
}
