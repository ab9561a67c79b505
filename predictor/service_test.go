package predictor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartpredict/ml"
	"heartpredict/monitoring"
)

func exampleFeatures() ml.HeartFeatures {
	return ml.HeartFeatures{
		Age: 63, Sex: 1, CP: 3, Trestbps: 145, Chol: 233, Fbs: 1, Restecg: 0,
		Thalach: 150, Exang: 0, Oldpeak: 2.3, Slope: 0, CA: 0, Thal: 1,
	}
}

func loadArtifacts(t *testing.T) (*ml.StandardScaler, ml.Classifier) {
	t.Helper()
	scaler, err := ml.LoadScaler("../ml/testdata/scaler.json")
	require.NoError(t, err)
	model, err := ml.LoadModel(ml.ModelTypeRandomForest, "../ml/testdata/random_forest_model.json")
	require.NoError(t, err)
	return scaler, model
}

type failingScaler struct {
	mu    sync.Mutex
	fails int
	panic bool
	next  ml.Transformer
}

func (f *failingScaler) Transform(features []float64) ([]float64, error) {
	f.mu.Lock()
	fail := f.fails > 0
	if fail {
		f.fails--
	}
	f.mu.Unlock()

	if fail && f.panic {
		panic("scaler state corrupted")
	}
	if fail {
		return nil, errors.New("scaler artifact is corrupt")
	}
	return f.next.Transform(features)
}

type fixedModel struct {
	class int
	proba []float64
}

func (m *fixedModel) Predict([]float64) (int, error) {
	return m.class, nil
}

func (m *fixedModel) PredictProba([]float64) ([]float64, error) {
	return m.proba, nil
}

func (m *fixedModel) Classes() []int {
	return []int{0, 1}
}

func (m *fixedModel) NumFeatures() int {
	return ml.NumFeatures
}

func TestNewRequiresArtifacts(t *testing.T) {
	scaler, model := loadArtifacts(t)

	_, err := New(nil, model, Options{})
	assert.Error(t, err)
	_, err = New(scaler, nil, Options{})
	assert.Error(t, err)
}

func TestLiveness(t *testing.T) {
	scaler, model := loadArtifacts(t)
	svc, err := New(scaler, model, Options{})
	require.NoError(t, err)
	assert.Equal(t, "This is homepage.Backend is live.", svc.Liveness())
}

func TestPredictExample(t *testing.T) {
	scaler, model := loadArtifacts(t)
	svc, err := New(scaler, model, Options{})
	require.NoError(t, err)

	result, err := svc.Predict(context.Background(), exampleFeatures())
	require.NoError(t, err)
	assert.Equal(t, LabelPresent, result.Label)
	assert.Equal(t, 80.0, result.Confidence)
}

func TestPredictLabelAndConfidenceRange(t *testing.T) {
	scaler, model := loadArtifacts(t)
	svc, err := New(scaler, model, Options{})
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		features := ml.HeartFeatures{
			Age:      29 + rnd.Intn(50),
			Sex:      rnd.Intn(2),
			CP:       rnd.Intn(4),
			Trestbps: 90 + rnd.Intn(110),
			Chol:     120 + rnd.Intn(450),
			Fbs:      rnd.Intn(2),
			Restecg:  rnd.Intn(3),
			Thalach:  70 + rnd.Intn(130),
			Exang:    rnd.Intn(2),
			Oldpeak:  rnd.Float64() * 6.2,
			Slope:    rnd.Intn(3),
			CA:       rnd.Intn(5),
			Thal:     rnd.Intn(4),
		}
		result, err := svc.Predict(context.Background(), features)
		require.NoError(t, err)
		assert.Contains(t, []string{LabelPresent, LabelAbsent}, result.Label)
		assert.GreaterOrEqual(t, result.Confidence, 50.0)
		assert.LessOrEqual(t, result.Confidence, 100.0)
	}
}

func TestPredictIsIdempotent(t *testing.T) {
	scaler, model := loadArtifacts(t)

	for _, size := range []int{0, 16} {
		metrics := monitoring.NewMetricsCollector()
		svc, err := New(scaler, model, Options{CacheSize: size, Metrics: metrics})
		require.NoError(t, err)

		first, err := svc.Predict(context.Background(), exampleFeatures())
		require.NoError(t, err)
		second, err := svc.Predict(context.Background(), exampleFeatures())
		require.NoError(t, err)
		assert.Equal(t, first, second)

		assert.Equal(t, 2.0, metrics.Counter(monitoring.MetricPredictions, map[string]string{"label": first.Label}))
		if size > 0 {
			assert.Equal(t, 1.0, metrics.Counter(monitoring.MetricCacheHits, nil))
		} else {
			assert.Equal(t, 0.0, metrics.Counter(monitoring.MetricCacheHits, nil))
		}
	}
}

func TestPredictInferenceFailureThenRecovers(t *testing.T) {
	scaler, model := loadArtifacts(t)

	for _, panics := range []bool{false, true} {
		metrics := monitoring.NewMetricsCollector()
		stub := &failingScaler{fails: 1, panic: panics, next: scaler}
		svc, err := New(stub, model, Options{CacheSize: 8, Metrics: metrics})
		require.NoError(t, err)

		_, err = svc.Predict(context.Background(), exampleFeatures())
		require.Error(t, err)
		var inferenceErr *InferenceError
		require.ErrorAs(t, err, &inferenceErr)
		if panics {
			assert.Equal(t, "scaler state corrupted", err.Error())
		} else {
			assert.Equal(t, "scaler artifact is corrupt", err.Error())
		}
		assert.Equal(t, 1.0, metrics.Counter(monitoring.MetricInferenceErrors, nil))

		result, err := svc.Predict(context.Background(), exampleFeatures())
		require.NoError(t, err)
		assert.Equal(t, LabelPresent, result.Label)
	}
}

func TestPredictRejectsBadProbabilities(t *testing.T) {
	scaler, _ := loadArtifacts(t)

	for _, proba := range [][]float64{nil, {0.7, 0.7}, {1.2, -0.2}} {
		svc, err := New(scaler, &fixedModel{class: 1, proba: proba}, Options{})
		require.NoError(t, err)
		_, err = svc.Predict(context.Background(), exampleFeatures())
		var inferenceErr *InferenceError
		assert.ErrorAs(t, err, &inferenceErr)
	}
}

func TestPredictShapeMismatch(t *testing.T) {
	narrow, err := ml.NewRandomForest([][]ml.TreeNode{{
		{FeatureIdx: 0, LeftChild: 1, RightChild: 2},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: []float64{1, 0}, IsLeaf: true},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: []float64{0, 1}, IsLeaf: true},
	}}, []int{0, 1}, 4)
	require.NoError(t, err)

	scaler, _ := loadArtifacts(t)
	svc, err := New(scaler, narrow, Options{})
	require.NoError(t, err)
	_, err = svc.Predict(context.Background(), exampleFeatures())
	assert.ErrorIs(t, err, ml.ErrFeatureMismatch)
	assert.Contains(t, err.Error(), "X has 13 features")
}

func TestPredictCanceledContext(t *testing.T) {
	scaler, model := loadArtifacts(t)
	svc, err := New(scaler, model, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Predict(ctx, exampleFeatures())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredictConcurrent(t *testing.T) {
	scaler, model := loadArtifacts(t)
	svc, err := New(scaler, model, Options{CacheSize: 4, Metrics: monitoring.NewMetricsCollector()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(age int) {
			defer wg.Done()
			features := exampleFeatures()
			features.Age = age
			_, err := svc.Predict(context.Background(), features)
			assert.NoError(t, err)
		}(40 + i)
	}
	wg.Wait()
}

func TestConfidence(t *testing.T) {
	confidence, err := Confidence([]float64{0.123456789, 0.876543211})
	require.NoError(t, err)
	assert.Equal(t, 87.6543, confidence)

	confidence, err = Confidence([]float64{0.5, 0.5})
	require.NoError(t, err)
	assert.Equal(t, 50.0, confidence)

	_, err = Confidence(nil)
	assert.Error(t, err)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Heart Disease Present", Label(1))
	assert.Equal(t, "No Heart Disease Present", Label(0))
}
