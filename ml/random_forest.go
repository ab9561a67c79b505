package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// RandomForest averages the leaf distributions of its trees, the way
// scikit-learn's RandomForestClassifier.predict_proba does.
type RandomForest struct {
	trees     []*DecisionTree
	classes   []int
	nFeatures int
}

type forestArtifact struct {
	Classes   []int        `json:"classes"`
	NFeatures int          `json:"n_features"`
	Trees     [][]TreeNode `json:"trees"`
}

func NewRandomForest(trees [][]TreeNode, classes []int, nFeatures int) (*RandomForest, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("%w: forest has no trees", ErrInvalidArtifact)
	}
	rf := &RandomForest{
		trees:     make([]*DecisionTree, 0, len(trees)),
		classes:   append([]int(nil), classes...),
		nFeatures: nFeatures,
	}
	for i, nodes := range trees {
		tree, err := NewDecisionTree(nodes, classes, nFeatures)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		rf.trees = append(rf.trees, tree)
	}
	return rf, nil
}

func (rf *RandomForest) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact forestArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return fmt.Errorf("%w: random forest %s: %v", ErrInvalidArtifact, path, err)
	}
	loaded, err := NewRandomForest(artifact.Trees, artifact.Classes, artifact.NFeatures)
	if err != nil {
		return fmt.Errorf("random forest %s: %w", path, err)
	}
	*rf = *loaded
	return nil
}

func (rf *RandomForest) Classes() []int {
	return append([]int(nil), rf.classes...)
}

func (rf *RandomForest) NumFeatures() int {
	return rf.nFeatures
}

func (rf *RandomForest) Predict(features []float64) (int, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return rf.classes[argmax(proba)], nil
}

func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("model not loaded")
	}
	sum := make([]float64, len(rf.classes))
	for _, tree := range rf.trees {
		proba, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for i, p := range proba {
			sum[i] += p
		}
	}
	for i := range sum {
		sum[i] /= float64(len(rf.trees))
	}
	return sum, nil
}
