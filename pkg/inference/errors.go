package inference

import (
	"errors"
	"fmt"
)

// Violation identifies which input constraint a request broke.
type Violation string

const (
	// ViolationMalformed means the request body is not valid JSON.
	ViolationMalformed Violation = "malformed"
	// ViolationMissing means the request carries no features.
	ViolationMissing Violation = "missing"
	// ViolationArity means the feature vector has the wrong length.
	ViolationArity Violation = "arity"
	// ViolationType means a feature is not a finite number (or features is not an array).
	ViolationType Violation = "type"
)

// ValidationError reports bad caller input. The model is never invoked when
// a ValidationError is returned.
type ValidationError struct {
	Kind Violation
	// Expected and Received are set for arity violations.
	Expected int
	Received int
	// Index is the offending element for type violations, -1 otherwise.
	Index  int
	Detail string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ViolationArity:
		return fmt.Sprintf("features must contain exactly %d values, got %d", e.Expected, e.Received)
	case ViolationType:
		if e.Index >= 0 {
			return fmt.Sprintf("feature %d %s", e.Index, e.Detail)
		}
		return "features " + e.Detail
	default:
		return e.Detail
	}
}

func arityError(expected, received int) *ValidationError {
	return &ValidationError{Kind: ViolationArity, Expected: expected, Received: received, Index: -1}
}

func typeError(index int, detail string) *ValidationError {
	return &ValidationError{Kind: ViolationType, Index: index, Detail: detail}
}

// InferenceError reports a failure inside the model. Its message is safe to
// show to callers; the cause is available through errors.Unwrap for logs.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference failed"
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// ModelLoadError reports that the model artifact could not be turned into a
// ready service. It is only ever returned at startup.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load model: %v", e.Err)
	}
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// ErrorBody is the JSON error payload returned by the HTTP surfaces.
type ErrorBody struct {
	Error     string    `json:"error"`
	Type      string    `json:"type,omitempty"`
	Violation Violation `json:"violation,omitempty"`
	Expected  *int      `json:"expected,omitempty"`
	Received  *int      `json:"received,omitempty"`
	Index     *int      `json:"index,omitempty"`
}

// NewErrorBody maps err to its wire representation. Internal causes of
// InferenceError and other errors are not exposed.
func NewErrorBody(err error) ErrorBody {
	var verr *ValidationError
	if errors.As(err, &verr) {
		body := ErrorBody{
			Error:     verr.Error(),
			Type:      "ValidationError",
			Violation: verr.Kind,
		}
		switch verr.Kind {
		case ViolationArity:
			expected, received := verr.Expected, verr.Received
			body.Expected, body.Received = &expected, &received
		case ViolationType:
			if verr.Index >= 0 {
				index := verr.Index
				body.Index = &index
			}
		}
		return body
	}

	var lerr *ModelLoadError
	if errors.As(err, &lerr) {
		return ErrorBody{Error: "model unavailable", Type: "ModelLoadError"}
	}

	return ErrorBody{Error: "internal server error", Type: "InferenceError"}
}
