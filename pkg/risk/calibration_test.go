package risk

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitCalibration(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	samples := make([]calibrationSample, 0, 50)
	for range 50 {
		s := calibrationSample{
			expected: 20 + rng.Float64()*70,
			decision: rng.Float64()*0.4 - 0.2,
		}
		s.truth = 5 + 0.8*s.expected - 10*s.decision
		samples = append(samples, s)
	}

	c, err := fitCalibration(samples)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, c.Intercept, 1e-6)
	assert.InDelta(t, 0.8, c.TierWeight, 1e-6)
	assert.InDelta(t, -10.0, c.AnomalyWeight, 1e-6)
	assert.InDelta(t, 1.0, c.R2, 1e-6)
}

func TestFitCalibration_NotEnoughData(t *testing.T) {
	_, err := fitCalibration([]calibrationSample{{expected: 1, decision: 0, truth: 1}})
	assert.Error(t, err)
}

func TestCalibration_Apply(t *testing.T) {
	c := &Calibration{Intercept: 10, TierWeight: 1, AnomalyWeight: -50}
	assert.InDelta(t, 60.0, c.Apply(50, 0), 1e-9)
	assert.Equal(t, 100.0, c.Apply(95, -1))
	assert.Equal(t, 0.0, c.Apply(0, 1))
}

func TestExpectedTierScore(t *testing.T) {
	assert.InDelta(t, 20.0, expectedTierScore([]int{0, 1}, []float64{1, 0}), 1e-9)
	assert.InDelta(t, 80.0, expectedTierScore([]int{2, 3}, []float64{0.5, 0.5}), 1e-9)
}
