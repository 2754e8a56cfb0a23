// Package inference implements the prediction service that sits between the
// transports (HTTP, gRPC, serverless function) and a loaded classifier.
//
// A Service is constructed once at startup from a loaded model. Construction
// is the only state transition: a Service value is always ready to serve and
// is never mutated afterwards, so it is safe for concurrent use without locks.
//
// Errors returned by Predict are either *ValidationError (bad input, the model
// was not called) or *InferenceError (the model failed). New returns
// *ModelLoadError when the model is unusable.
package inference

// ClassNames is the fixed class enumeration of the Iris classifier, in the
// order of the model's class indices.
var ClassNames = []string{"setosa", "versicolor", "virginica"}

// FeatureVector is an ordered list of model inputs:
// sepal length, sepal width, petal length, petal width.
type FeatureVector []float64

// PredictionResult is the outcome of a single prediction.
type PredictionResult struct {
	Prediction    int       `json:"prediction"`
	ClassName     string    `json:"class_name"`
	Probabilities []float64 `json:"probabilities"`
}

// Health is the liveness report of a ready service.
type Health struct {
	Status string `json:"status"`
}

// ModelInfo describes the model a service was built from.
type ModelInfo struct {
	Name     string   `json:"name"`
	Format   string   `json:"format,omitempty"`
	Digest   string   `json:"digest,omitempty"`
	Features int      `json:"features"`
	Classes  []string `json:"classes"`

	// FeatureNames lists the input columns in order when the artifact
	// records them.
	FeatureNames []string `json:"feature_names,omitempty"`
}
