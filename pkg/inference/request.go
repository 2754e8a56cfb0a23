package inference

import (
	"math"

	"github.com/tidwall/gjson"
)

// ParseFeatures extracts the feature vector from a JSON request body of the
// form {"features": [f1, f2, ...]} and checks it against n, the model's
// input width.
//
// The body is inspected element by element rather than decoded into a typed
// struct so that each violation can be reported precisely: a string inside
// the array is a type violation at that index, not a generic decode error.
func ParseFeatures(body []byte, n int) (FeatureVector, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ValidationError{Kind: ViolationMalformed, Index: -1, Detail: "request body is not valid JSON"}
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &ValidationError{Kind: ViolationMalformed, Index: -1, Detail: "request body must be a JSON object"}
	}

	features := root.Get("features")
	if !features.Exists() || features.Type == gjson.Null {
		return nil, &ValidationError{Kind: ViolationMissing, Index: -1, Detail: "missing features in request body"}
	}
	if !features.IsArray() {
		return nil, typeError(-1, "must be an array of numbers")
	}

	elems := features.Array()
	if len(elems) != n {
		return nil, arityError(n, len(elems))
	}

	vec := make(FeatureVector, len(elems))
	for i, e := range elems {
		if e.Type != gjson.Number {
			return nil, typeError(i, "is not a number")
		}
		v := e.Float()
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, typeError(i, "is not a finite number")
		}
		vec[i] = v
	}

	return vec, nil
}
