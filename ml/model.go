package ml

import "errors"

var (
	ErrFeatureMismatch  = errors.New("feature mismatch")
	ErrUnsupportedModel = errors.New("unsupported model type")
	ErrInvalidArtifact  = errors.New("invalid artifact")
)

// Transformer maps a raw feature vector onto the space the model was fitted in.
type Transformer interface {
	Transform(features []float64) ([]float64, error)
}

// Classifier is a fitted model answering class and per-class probability
// queries for a single standardized vector.
type Classifier interface {
	Predict(features []float64) (int, error)
	PredictProba(features []float64) ([]float64, error)
	Classes() []int
	NumFeatures() int
}
