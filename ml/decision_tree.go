package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type DecisionTree struct {
	nodes     []TreeNode
	classes   []int
	nFeatures int
}

// TreeNode is one entry of the flattened tree. Children are indices into the
// same slice; leaves carry per-class weights in Value.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	Value      []float64 `json:"value,omitempty"`
	IsLeaf     bool      `json:"is_leaf"`
}

type treeArtifact struct {
	Classes   []int      `json:"classes"`
	NFeatures int        `json:"n_features"`
	Nodes     []TreeNode `json:"nodes"`
}

func NewDecisionTree(nodes []TreeNode, classes []int, nFeatures int) (*DecisionTree, error) {
	dt := &DecisionTree{
		nodes:     nodes,
		classes:   append([]int(nil), classes...),
		nFeatures: nFeatures,
	}
	if err := dt.validate(); err != nil {
		return nil, err
	}
	return dt, nil
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact treeArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return fmt.Errorf("%w: decision tree %s: %v", ErrInvalidArtifact, path, err)
	}
	dt.nodes = artifact.Nodes
	dt.classes = artifact.Classes
	dt.nFeatures = artifact.NFeatures
	if err := dt.validate(); err != nil {
		return fmt.Errorf("decision tree %s: %w", path, err)
	}
	return nil
}

func (dt *DecisionTree) Classes() []int {
	return append([]int(nil), dt.classes...)
}

func (dt *DecisionTree) NumFeatures() int {
	return dt.nFeatures
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return dt.classes[argmax(proba)], nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not loaded")
	}
	if len(features) != dt.nFeatures {
		return nil, fmt.Errorf("%w: X has %d features, but the model is expecting %d features as input", ErrFeatureMismatch, len(features), dt.nFeatures)
	}
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return normalize(leaf.Value)
}

func (dt *DecisionTree) leaf(features []float64) (TreeNode, error) {
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return TreeNode{}, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return TreeNode{}, errors.New("invalid tree state")
		}
	}
	return TreeNode{}, errors.New("invalid tree state")
}

func (dt *DecisionTree) validate() error {
	if len(dt.nodes) == 0 {
		return fmt.Errorf("%w: tree has no nodes", ErrInvalidArtifact)
	}
	if len(dt.classes) < 2 {
		return fmt.Errorf("%w: tree needs at least two classes, got %d", ErrInvalidArtifact, len(dt.classes))
	}
	if dt.nFeatures <= 0 {
		return fmt.Errorf("%w: n_features must be positive", ErrInvalidArtifact)
	}

	visited := make([]bool, len(dt.nodes))
	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[idx] {
			return fmt.Errorf("%w: node %d is reachable twice", ErrInvalidArtifact, idx)
		}
		visited[idx] = true

		node := dt.nodes[idx]
		if node.IsLeaf {
			if len(node.Value) != len(dt.classes) {
				return fmt.Errorf("%w: leaf %d has %d class weights, expected %d", ErrInvalidArtifact, idx, len(node.Value), len(dt.classes))
			}
			if _, err := normalize(node.Value); err != nil {
				return fmt.Errorf("%w: leaf %d: %v", ErrInvalidArtifact, idx, err)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= dt.nFeatures {
			return fmt.Errorf("%w: node %d splits on feature %d of %d", ErrInvalidArtifact, idx, node.FeatureIdx, dt.nFeatures)
		}
		if !isFinite(node.Threshold) {
			return fmt.Errorf("%w: node %d threshold is not finite", ErrInvalidArtifact, idx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= 0 || child >= len(dt.nodes) {
				return fmt.Errorf("%w: node %d has child %d out of range", ErrInvalidArtifact, idx, child)
			}
			stack = append(stack, child)
		}
	}
	return nil
}

func normalize(weights []float64) ([]float64, error) {
	total := 0.0
	for _, w := range weights {
		if !isFinite(w) || w < 0 {
			return nil, errors.New("class weights must be finite and non-negative")
		}
		total += w
	}
	if total == 0 {
		return nil, errors.New("class weights sum to zero")
	}
	proba := make([]float64, len(weights))
	for i, w := range weights {
		proba[i] = w / total
	}
	return proba, nil
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
