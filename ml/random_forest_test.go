package ml

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomForestAveragesTrees(t *testing.T) {
	forest, err := NewRandomForest([][]TreeNode{
		stump(0, 0, []float64{8, 2}, []float64{3, 7}),
		stump(1, 0, []float64{6, 4}, []float64{1, 9}),
	}, []int{0, 1}, 2)
	require.NoError(t, err)

	proba, err := forest.PredictProba([]float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, proba[0], 1e-12)
	assert.InDelta(t, 0.8, proba[1], 1e-12)

	label, err := forest.Predict([]float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, label)

	proba, err = forest.PredictProba([]float64{-1, -1})
	require.NoError(t, err)
	assert.InDelta(t, 0.7, proba[0], 1e-12)
	assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-12)
}

func TestRandomForestTieTakesFirstClass(t *testing.T) {
	forest, err := NewRandomForest([][]TreeNode{
		stump(0, 0, []float64{1, 1}, []float64{1, 1}),
	}, []int{0, 1}, 1)
	require.NoError(t, err)

	label, err := forest.Predict([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, 0, label)
}

func TestRandomForestRejectsEmpty(t *testing.T) {
	_, err := NewRandomForest(nil, []int{0, 1}, 13)
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestLoadModel(t *testing.T) {
	t.Run("random forest", func(t *testing.T) {
		model, err := LoadModel(ModelTypeRandomForest, "testdata/random_forest_model.json")
		require.NoError(t, err)
		assert.Equal(t, NumFeatures, model.NumFeatures())
		assert.Equal(t, []int{0, 1}, model.Classes())
	})

	t.Run("decision tree", func(t *testing.T) {
		model, err := LoadModel(ModelTypeDecisionTree, "testdata/decision_tree_model.json")
		require.NoError(t, err)
		assert.IsType(t, &DecisionTree{}, model)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := LoadModel("xgboost", "testdata/random_forest_model.json")
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadModel(ModelTypeRandomForest, filepath.Join(t.TempDir(), "missing.json"))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("wrong width", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "narrow.json")
		payload := `{"classes":[0,1],"n_features":2,"trees":[[
			{"feature_idx":0,"threshold":0,"left_child":1,"right_child":2,"is_leaf":false},
			{"feature_idx":-1,"left_child":-1,"right_child":-1,"value":[1,0],"is_leaf":true},
			{"feature_idx":-1,"left_child":-1,"right_child":-1,"value":[0,1],"is_leaf":true}]]}`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))
		_, err := LoadModel(ModelTypeRandomForest, path)
		assert.ErrorIs(t, err, ErrFeatureMismatch)
	})

	t.Run("corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corrupt.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"trees": 3}`), 0o600))
		_, err := LoadModel(ModelTypeRandomForest, path)
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})
}

func TestLoadedArtifactsPredictExample(t *testing.T) {
	scaler, err := LoadScaler("testdata/scaler.json")
	require.NoError(t, err)
	model, err := LoadModel(ModelTypeRandomForest, "testdata/random_forest_model.json")
	require.NoError(t, err)

	scaled, err := scaler.Transform(FeatureVector(sampleFeatures()))
	require.NoError(t, err)
	label, err := model.Predict(scaled)
	require.NoError(t, err)
	proba, err := model.PredictProba(scaled)
	require.NoError(t, err)

	assert.Equal(t, 1, label)
	assert.InDelta(t, 0.8, proba[1], 1e-9)
}
