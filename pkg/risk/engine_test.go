package risk

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchmarny/riskctl/pkg/dataset"
	"github.com/mchmarny/riskctl/pkg/feature"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Samples = 600
	cfg.AnomalyTrees = 40
	cfg.ClassifierTrees = 30
	cfg.Seed = 7
	return cfg
}

var sharedEngine = sync.OnceValues(func() (*Engine, error) {
	e := NewEngine(testConfig())
	_, err := e.Train(context.Background())
	return e, err
})

func trainedEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := sharedEngine()
	require.NoError(t, err)
	return e
}

func sampleEntities(n int) []map[string]any {
	rng := rand.New(rand.NewPCG(99, 1))
	out := make([]map[string]any, 0, n)
	for i, r := range dataset.Generate(rng, n) {
		raw := make(map[string]any, feature.Count+1)
		for k, v := range r.Features.Map() {
			raw[k] = v
		}
		raw[EntityIDKey] = fmt.Sprintf("host-%d", i)
		out = append(out, raw)
	}
	return out
}

func TestEngine_NotTrained(t *testing.T) {
	e := NewEngine(testConfig())
	assert.False(t, e.Trained())
	assert.Nil(t, e.Model())

	_, err := e.Predict(map[string]any{})
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = e.Assess(map[string]any{})
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = e.BulkAssess(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotTrained)

	assert.ErrorIs(t, e.Save(context.Background(), newMemStore(), "x"), ErrNotTrained)
}

func TestEngine_Train(t *testing.T) {
	e := NewEngine(testConfig())
	report, err := e.Train(context.Background())
	require.NoError(t, err)
	require.True(t, e.Trained())

	m := e.Model()
	assert.Equal(t, m.ID, report.ModelID)
	assert.Equal(t, 600, report.Samples)
	assert.Equal(t, 480, report.TrainSize)
	assert.Equal(t, 120, report.TestSize)
	assert.Equal(t, 480, m.TrainingSize)
	require.NotNil(t, report.Classification)
	assert.Len(t, report.Classification.Classes, dataset.NumCategories)
	assert.Greater(t, report.Classification.Accuracy, 0.5)
	assert.GreaterOrEqual(t, report.HeldOutAnomalies, 0)
	assert.LessOrEqual(t, report.HeldOutAnomalies, report.TestSize)
	assert.NoError(t, m.Validate())
}

func TestEngine_TrainSwapsSnapshot(t *testing.T) {
	e := NewEngine(testConfig())
	_, err := e.Train(context.Background())
	require.NoError(t, err)
	first := e.Model()

	_, err = e.Train(context.Background())
	require.NoError(t, err)
	second := e.Model()

	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Classifier.Trees, second.Classifier.Trees)
}

func TestEngine_TrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewEngine(testConfig())
	_, err := e.Train(ctx)
	assert.Error(t, err)
	assert.False(t, e.Trained())
}

func TestEngine_TrainTooFewSamples(t *testing.T) {
	cfg := testConfig()
	cfg.Samples = 1
	_, err := NewEngine(cfg).Train(context.Background())
	assert.Error(t, err)
}

func TestEngine_PredictRanges(t *testing.T) {
	e := trainedEngine(t)
	labels := map[string]bool{"Low": true, "Medium": true, "High": true, "Critical": true}

	for _, raw := range sampleEntities(200) {
		a, err := e.Predict(raw)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, a.RiskScore, 0.0)
		assert.LessOrEqual(t, a.RiskScore, 100.0)
		assert.GreaterOrEqual(t, a.Confidence, 0.0)
		assert.LessOrEqual(t, a.Confidence, 100.0)
		assert.True(t, labels[a.RiskCategory], a.RiskCategory)
		assert.Equal(t, a.Category().String(), a.RiskCategory)
		assert.Equal(t, a.IsAnomaly, a.AnomalyScore < 0)
		if !a.IsAnomaly {
			assert.InDelta(t, a.Probabilities[a.RiskCategory]*100, a.RiskScore, 1e-9)
		}
		if a.CalibratedScore != nil {
			assert.GreaterOrEqual(t, *a.CalibratedScore, 0.0)
			assert.LessOrEqual(t, *a.CalibratedScore, 100.0)
		}
	}
}

func TestEngine_PredictDeterministic(t *testing.T) {
	e := trainedEngine(t)
	raw := map[string]any{
		"open_ports":       30,
		"failed_logins":    60,
		"patch_level":      0.5,
		"antivirus_status": 0,
		"encryption_level": 0.5,
	}

	first, err := e.Predict(raw)
	require.NoError(t, err)
	for range 10 {
		again, err := e.Predict(raw)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Len(t, first.RiskFactors, 5)
}

func TestEngine_PredictValidation(t *testing.T) {
	e := trainedEngine(t)
	_, err := e.Predict(map[string]any{"open_ports": "many"})

	var ve *feature.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, feature.OpenPorts, ve.Field)
}

func TestEngine_Assess(t *testing.T) {
	e := trainedEngine(t)

	r, err := e.Assess(map[string]any{"entity_id": "web-01", "open_ports": 25})
	require.NoError(t, err)
	assert.Equal(t, "web-01", r.EntityID)
	assert.Equal(t, Recommend(r.Assessment), r.Recommendations)
	assert.False(t, r.Timestamp.IsZero())
	assert.Equal(t, e.Model().ID, r.ModelID())

	r, err = e.Assess(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "unknown", r.EntityID)
}

func TestEngine_BulkIsolation(t *testing.T) {
	e := trainedEngine(t)
	entities := []map[string]any{
		{"entity_id": "bad", "open_ports": "lots"},
		{"entity_id": "good", "open_ports": 3},
		nil,
	}

	res, err := e.BulkAssess(context.Background(), entities)
	require.NoError(t, err)
	require.Len(t, res, 3)

	notObject := res["unknown-2"]
	require.NotNil(t, notObject)
	assert.Nil(t, notObject.Assessment)
	assert.ErrorIs(t, notObject.Err(), ErrInvalidEntity)
	assert.Equal(t, ErrInvalidEntity.Error(), notObject.Error)

	bad := res["bad"]
	require.NotNil(t, bad)
	assert.Nil(t, bad.Assessment)
	assert.Contains(t, bad.Error, feature.OpenPorts)
	var ve *feature.ValidationError
	assert.True(t, errors.As(bad.Err(), &ve))

	good := res["good"]
	require.NotNil(t, good)
	assert.Empty(t, good.Error)
	require.NotNil(t, good.Assessment)
	assert.Equal(t, Recommend(good.Assessment), good.Recommendations)
	assert.Equal(t, e.Model().ID, good.ModelID())
}

func TestEngine_BulkKeepsCollidingIDs(t *testing.T) {
	e := trainedEngine(t)
	entities := []map[string]any{
		{"entity_id": "a#2", "open_ports": 1},
		{"entity_id": "a", "open_ports": 2},
		{"entity_id": "a", "open_ports": 3},
	}

	res, err := e.BulkAssess(context.Background(), entities)
	require.NoError(t, err)
	require.Len(t, res, len(entities))

	for i, id := range BulkIDs(entities) {
		single, err := e.Predict(entities[i])
		require.NoError(t, err)
		require.NotNil(t, res[id], id)
		assert.Equal(t, single, res[id].Assessment, id)
	}
}

func TestEngine_BulkMatchesSingle(t *testing.T) {
	e := trainedEngine(t)
	entities := sampleEntities(50)

	res, err := e.BulkAssess(context.Background(), entities)
	require.NoError(t, err)
	require.Len(t, res, 50)

	for _, raw := range entities {
		a, err := e.Predict(raw)
		require.NoError(t, err)
		assert.Equal(t, a, res[EntityID(raw)].Assessment)
	}
}

func TestBulkIDs(t *testing.T) {
	ids := BulkIDs([]map[string]any{
		{"entity_id": "a"},
		{},
		{"entity_id": "a"},
		{"entity_id": "  "},
		{"entity_id": float64(42)},
		{"entity_id": "b"},
	})
	assert.Equal(t, []string{"a", "unknown-1", "a#2", "unknown-3", "42", "b"}, ids)

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"suffix already taken", []string{"a#2", "a", "a"}, []string{"a#2", "a", "a#2#2"}},
		{"explicit unknown id", []string{"unknown-1", ""}, []string{"unknown-1", "unknown-1#1"}},
		{"three repeats", []string{"x", "x", "x"}, []string{"x", "x#1", "x#2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := make([]map[string]any, len(tt.in))
			for i, id := range tt.in {
				entities[i] = map[string]any{"entity_id": id}
			}
			assert.Equal(t, tt.want, BulkIDs(entities))
		})
	}
}

func TestCheckOrdinal(t *testing.T) {
	var sums [dataset.NumCategories]float64
	var counts [dataset.NumCategories]int

	counts = [dataset.NumCategories]int{10, 10, 2, 10}
	sums = [dataset.NumCategories]float64{200, 500, 0, 900}
	assert.NoError(t, checkOrdinal(sums, counts))

	sums = [dataset.NumCategories]float64{600, 500, 0, 900}
	assert.ErrorIs(t, checkOrdinal(sums, counts), ErrModelInconsistency)
}
