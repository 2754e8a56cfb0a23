package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ONNXMetadata describes the tensors of an ONNX classifier exported with
// skl2onnx (zipmap disabled). It is stored next to the .onnx file.
type ONNXMetadata struct {
	InputName         string   `json:"input_name"`
	LabelOutput       string   `json:"label_output"`
	ProbabilityOutput string   `json:"probability_output"`
	NFeatures         int      `json:"n_features"`
	Classes           []string `json:"classes"`
}

// ONNXMetadataPath returns the sidecar metadata path for an .onnx artifact:
// "model/iris.onnx" -> "model/iris.json".
func ONNXMetadataPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, ".onnx") + ".json"
}

// ReadONNXMetadata reads and validates the sidecar metadata file.
func ReadONNXMetadata(path string) (ONNXMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ONNXMetadata{}, fmt.Errorf("read onnx metadata: %w", err)
	}

	var meta ONNXMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return ONNXMetadata{}, fmt.Errorf("parse onnx metadata: %w", err)
	}

	if meta.InputName == "" {
		meta.InputName = "float_input"
	}
	if meta.LabelOutput == "" {
		meta.LabelOutput = "label"
	}
	if meta.ProbabilityOutput == "" {
		meta.ProbabilityOutput = "probabilities"
	}
	if meta.NFeatures <= 0 {
		return ONNXMetadata{}, errors.New("onnx metadata: n_features must be > 0")
	}
	if len(meta.Classes) == 0 {
		return ONNXMetadata{}, errors.New("onnx metadata: classes cannot be empty")
	}

	return meta, nil
}
