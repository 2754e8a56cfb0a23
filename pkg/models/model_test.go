package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Forest(t *testing.T) {
	art, err := Load("testdata/iris_forest.json", LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer art.Close()

	if art.Format != ForestFormat {
		t.Errorf("expected format %q, got %q", ForestFormat, art.Format)
	}
	if len(art.Digest) != 64 {
		t.Errorf("expected hex sha256 digest, got %q", art.Digest)
	}
	if art.Model.NumFeatures() != 4 {
		t.Errorf("expected 4 features, got %d", art.Model.NumFeatures())
	}

	again, err := Load("testdata/iris_forest.json", LoadOptions{})
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if again.Digest != art.Digest {
		t.Errorf("digest not stable: %q != %q", again.Digest, art.Digest)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("\x80\x04\x95 not a forest"), 0o600); err != nil {
		t.Fatal(err)
	}
	pickle := filepath.Join(dir, "model.pkl")
	if err := os.WriteFile(pickle, []byte("pickle"), 0o600); err != nil {
		t.Fatal(err)
	}
	onnxNoMeta := filepath.Join(dir, "model.onnx")
	if err := os.WriteFile(onnxNoMeta, []byte("onnx"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "missing file", path: filepath.Join(dir, "absent.json"), wantErr: "read model artifact"},
		{name: "corrupt artifact", path: corrupt, wantErr: "decode forest artifact"},
		{name: "unknown extension", path: pickle, wantErr: "unsupported model artifact extension"},
		{name: "onnx without metadata", path: onnxNoMeta, wantErr: "onnx metadata"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path, LoadOptions{})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestReadONNXMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iris.json")

	if err := os.WriteFile(path, []byte(`{"n_features": 4, "classes": ["setosa", "versicolor", "virginica"]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	meta, err := ReadONNXMetadata(path)
	if err != nil {
		t.Fatalf("ReadONNXMetadata failed: %v", err)
	}
	if meta.InputName != "float_input" || meta.LabelOutput != "label" || meta.ProbabilityOutput != "probabilities" {
		t.Errorf("skl2onnx defaults not applied: %+v", meta)
	}

	if err := os.WriteFile(path, []byte(`{"n_features": 4, "classes": []}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadONNXMetadata(path); err == nil {
		t.Error("expected error for empty classes, got nil")
	}
}

func TestONNXMetadataPath(t *testing.T) {
	if got := ONNXMetadataPath("model/iris.onnx"); got != "model/iris.json" {
		t.Errorf("ONNXMetadataPath() = %q, want %q", got, "model/iris.json")
	}
}

func TestResolvePath(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "m.json")
	got, err := ResolvePath(abs)
	if err != nil {
		t.Fatalf("ResolvePath failed: %v", err)
	}
	if got != abs {
		t.Errorf("absolute path changed: %q -> %q", abs, got)
	}

	got, err = ResolvePath("model/iris_forest.json")
	if err != nil {
		t.Fatalf("ResolvePath failed: %v", err)
	}
	exe, _ := os.Executable()
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	want := filepath.Join(filepath.Dir(exe), "model", "iris_forest.json")
	if got != want {
		t.Errorf("ResolvePath() = %q, want %q", got, want)
	}

	if _, err := ResolvePath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}
