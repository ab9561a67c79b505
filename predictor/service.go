// Package predictor turns a validated feature vector into a labelled
// prediction using the scaler and classifier loaded at startup.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"heartpredict/ml"
	"heartpredict/monitoring"
)

const (
	LabelPresent = "Heart Disease Present"
	LabelAbsent  = "No Heart Disease Present"

	LivenessMessage = "This is homepage.Backend is live."
)

// Result is the per-request answer. Confidence is a percentage.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// InferenceError wraps any failure raised while scaling or classifying.
// Its message is the underlying cause, unchanged.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Options configures a Service.
type Options struct {
	// CacheSize bounds the result cache; 0 disables it.
	CacheSize int
	Logger    *zap.Logger
	Metrics   *monitoring.MetricsCollector
}

// Service owns the two artifacts. Both are read-only after construction,
// so a single Service is shared by all request goroutines.
type Service struct {
	scaler  ml.Transformer
	model   ml.Classifier
	cache   *lru.Cache[[ml.NumFeatures]float64, Result]
	logger  *zap.Logger
	metrics *monitoring.MetricsCollector
}

func New(scaler ml.Transformer, model ml.Classifier, opts Options) (*Service, error) {
	if scaler == nil {
		return nil, errors.New("scaler is required")
	}
	if model == nil {
		return nil, errors.New("model is required")
	}

	s := &Service{
		scaler:  scaler,
		model:   model,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[[ml.NumFeatures]float64, Result](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Service) Liveness() string {
	return LivenessMessage
}

// Predict runs assemble, scale, classify and format. Every failure comes back
// as *InferenceError; the Service stays usable afterwards.
func (s *Service) Predict(ctx context.Context, features ml.HeartFeatures) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &InferenceError{Err: err}
	}

	vector := ml.FeatureVector(features)
	var key [ml.NumFeatures]float64
	copy(key[:], vector)

	if s.cache != nil {
		if result, ok := s.cache.Get(key); ok {
			s.incr(monitoring.MetricCacheHits, nil)
			s.incr(monitoring.MetricPredictions, map[string]string{"label": result.Label})
			return result, nil
		}
	}

	start := time.Now()
	result, err := s.infer(vector)
	elapsed := time.Since(start)
	if err != nil {
		s.incr(monitoring.MetricInferenceErrors, nil)
		s.logger.Error("inference failed", zap.Error(err), zap.Duration("duration", elapsed))
		return Result{}, &InferenceError{Err: err}
	}

	if s.cache != nil {
		s.cache.Add(key, result)
	}
	s.incr(monitoring.MetricPredictions, map[string]string{"label": result.Label})
	if s.metrics != nil {
		s.metrics.RecordHistogram(monitoring.MetricPredictionLatency, float64(elapsed.Microseconds())/1000, nil, monitoring.LatencyBuckets)
	}
	s.logger.Debug("prediction",
		zap.String("label", result.Label),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("duration", elapsed),
	)
	return result, nil
}

func (s *Service) infer(vector []float64) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{}
			err = fmt.Errorf("%v", r)
		}
	}()

	scaled, err := s.scaler.Transform(vector)
	if err != nil {
		return Result{}, err
	}
	class, err := s.model.Predict(scaled)
	if err != nil {
		return Result{}, err
	}
	proba, err := s.model.PredictProba(scaled)
	if err != nil {
		return Result{}, err
	}
	confidence, err := Confidence(proba)
	if err != nil {
		return Result{}, err
	}
	return Result{Label: Label(class), Confidence: confidence}, nil
}

func (s *Service) incr(name string, labels map[string]string) {
	if s.metrics != nil {
		s.metrics.IncrCounter(name, 1, labels)
	}
}

// Label maps a predicted class onto its display string.
func Label(class int) string {
	if class == 1 {
		return LabelPresent
	}
	return LabelAbsent
}

// Confidence returns the largest class probability as a percentage rounded
// to four decimal places.
func Confidence(proba []float64) (float64, error) {
	if len(proba) == 0 {
		return 0, errors.New("classifier returned no probabilities")
	}
	best := math.Inf(-1)
	sum := 0.0
	for _, p := range proba {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return 0, fmt.Errorf("invalid class probability %v", p)
		}
		sum += p
		if p > best {
			best = p
		}
	}
	if math.Abs(sum-1) > 1e-6 {
		return 0, fmt.Errorf("class probabilities sum to %v, expected 1", sum)
	}
	return round4(best * 100), nil
}

// round4 rounds the exact binary value to four decimal places.
func round4(v float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 4, 64), 64)
	if err != nil {
		return v
	}
	return rounded
}
