package ml

import (
	"fmt"
)

const (
	ModelTypeRandomForest = "random_forest"
	ModelTypeDecisionTree = "decision_tree"
)

func LoadModel(modelType, path string) (Classifier, error) {
	switch modelType {
	case ModelTypeRandomForest:
		model := &RandomForest{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return checkWidth(model)
	case ModelTypeDecisionTree:
		model := &DecisionTree{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return checkWidth(model)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
}

func checkWidth(model Classifier) (Classifier, error) {
	if model.NumFeatures() != NumFeatures {
		return nil, fmt.Errorf("%w: model was fitted on %d features, expected %d", ErrFeatureMismatch, model.NumFeatures(), NumFeatures)
	}
	return model, nil
}
