package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ForestFormat is the format tag of JSON tree-ensemble artifacts.
const ForestFormat = "iris-forest/v1"

// Forest implements a tree-ensemble classifier (random forest) decoded from
// a JSON artifact.
//
// Each tree uses scikit-learn's flat tree_ layout: node i is a leaf when
// ChildrenLeft[i] == -1, otherwise samples with x[Feature[i]] <= Threshold[i]
// go to ChildrenLeft[i] and the rest to ChildrenRight[i]. Value[i] holds the
// per-class sample weights at node i.
//
// Probabilities are computed like RandomForestClassifier.predict_proba: the
// leaf weights of each tree are normalized, then averaged across trees.
// Predict returns the argmax of those probabilities.
//
// Inputs and thresholds are compared as float64. scikit-learn casts inputs
// to float32 before walking its trees, so a value within float32 rounding of
// a split threshold can take the other branch there. Artifacts exported from
// fitted estimators carry float32-midpoint thresholds, which keeps the two in
// agreement for inputs given with float32 precision.
//
// A Forest is immutable after LoadForestBytes returns.
type Forest struct {
	nFeatures    int
	featureNames []string
	classes      []string
	trees        []tree
}

type tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

type forestFile struct {
	Format       string   `json:"format"`
	NFeatures    int      `json:"n_features"`
	FeatureNames []string `json:"feature_names"`
	Classes      []string `json:"classes"`
	Estimators   []tree   `json:"estimators"`
}

const leaf = -1

// LoadForestBytes decodes and validates a tree-ensemble artifact.
func LoadForestBytes(data []byte) (*Forest, error) {
	var f forestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode forest artifact: %w", err)
	}

	if f.Format != ForestFormat {
		return nil, fmt.Errorf("unsupported artifact format %q (want %q)", f.Format, ForestFormat)
	}
	if f.NFeatures <= 0 {
		return nil, errors.New("forest: n_features must be > 0")
	}
	if len(f.FeatureNames) != 0 && len(f.FeatureNames) != f.NFeatures {
		return nil, fmt.Errorf("forest: %d feature names for %d features", len(f.FeatureNames), f.NFeatures)
	}
	if len(f.Classes) == 0 {
		return nil, errors.New("forest: at least one class is required")
	}
	if len(f.Estimators) == 0 {
		return nil, errors.New("forest: at least one estimator is required")
	}

	for i := range f.Estimators {
		if err := f.Estimators[i].validate(f.NFeatures, len(f.Classes)); err != nil {
			return nil, fmt.Errorf("forest: estimator %d: %w", i, err)
		}
	}

	return &Forest{
		nFeatures:    f.NFeatures,
		featureNames: f.FeatureNames,
		classes:      f.Classes,
		trees:        f.Estimators,
	}, nil
}

func (t *tree) validate(nFeatures, nClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return errors.New("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length (left=%d right=%d feature=%d threshold=%d value=%d)",
			n, len(t.ChildrenRight), len(t.Feature), len(t.Threshold), len(t.Value))
	}

	for i := 0; i < n; i++ {
		if len(t.Value[i]) != nClasses {
			return fmt.Errorf("node %d: %d class weights, want %d", i, len(t.Value[i]), nClasses)
		}
		var sum float64
		for _, w := range t.Value[i] {
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("node %d: invalid class weight %v", i, w)
			}
			sum += w
		}

		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]
		if left == leaf {
			if right != leaf {
				return fmt.Errorf("node %d: leaf with right child %d", i, right)
			}
			if sum <= 0 {
				return fmt.Errorf("node %d: leaf weights sum to zero", i)
			}
			continue
		}

		// Children always come after their parent; this also rules out cycles.
		if left <= i || left >= n || right <= i || right >= n {
			return fmt.Errorf("node %d: child index out of range (left=%d right=%d)", i, left, right)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, t.Feature[i])
		}
		if math.IsNaN(t.Threshold[i]) || math.IsInf(t.Threshold[i], 0) {
			return fmt.Errorf("node %d: threshold is not finite", i)
		}
	}

	return nil
}

// Name returns the backend identifier.
func (f *Forest) Name() string {
	return "forest"
}

// NumFeatures returns the expected input width.
func (f *Forest) NumFeatures() int {
	return f.nFeatures
}

// NumClasses returns the number of classes.
func (f *Forest) NumClasses() int {
	return len(f.classes)
}

// Classes returns a copy of the artifact's class labels.
func (f *Forest) Classes() []string {
	return append([]string(nil), f.classes...)
}

// FeatureNames returns a copy of the artifact's feature names (may be empty).
func (f *Forest) FeatureNames() []string {
	return append([]string(nil), f.featureNames...)
}

// NumEstimators returns the number of trees in the ensemble.
func (f *Forest) NumEstimators() int {
	return len(f.trees)
}

// PredictProba returns the mean of the per-tree class distributions.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.nFeatures {
		return nil, fmt.Errorf("forest: got %d features, model expects %d", len(x), f.nFeatures)
	}

	proba := make([]float64, len(f.classes))
	for i := range f.trees {
		weights := f.trees[i].Value[f.trees[i].apply(x)]

		var sum float64
		for _, w := range weights {
			sum += w
		}
		for c, w := range weights {
			proba[c] += w / sum
		}
	}

	n := float64(len(f.trees))
	for c := range proba {
		proba[c] /= n
	}

	return proba, nil
}

// Predict returns the class with the highest probability, lowest index on ties.
func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

// apply walks the tree and returns the index of the leaf reached by x.
func (t *tree) apply(x []float64) int {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return node
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
