//go:build !onnx

package models

import "errors"

func newONNXClassifier(string, ONNXMetadata, LoadOptions) (Classifier, error) {
	return nil, errors.New("onnx support not compiled in (rebuild with -tags onnx)")
}
