package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/sajari/regression"

	"github.com/mchmarny/riskctl/pkg/dataset"
)

// tierCentres is the representative ground-truth score of each category.
var tierCentres = [dataset.NumCategories]float64{20, 50, 70, 90}

// Calibration maps classifier and anomaly outputs onto the ground-truth
// score scale with a linear fit made on held-out data.
type Calibration struct {
	Intercept     float64 `json:"intercept"`
	TierWeight    float64 `json:"tier_weight"`
	AnomalyWeight float64 `json:"anomaly_weight"`
	R2            float64 `json:"r2"`
}

type calibrationSample struct {
	expected float64
	decision float64
	truth    float64
}

// fitCalibration regresses the ground-truth score on the expected tier
// score and the anomaly decision score.
func fitCalibration(samples []calibrationSample) (*Calibration, error) {
	var r regression.Regression
	r.SetObserved("risk_score")
	r.SetVar(0, "expected_tier_score")
	r.SetVar(1, "anomaly_score")

	for _, s := range samples {
		r.Train(regression.DataPoint(s.truth, []float64{s.expected, s.decision}))
	}

	if err := r.Run(); err != nil {
		return nil, fmt.Errorf("fitting score calibration: %w", err)
	}

	c := &Calibration{
		Intercept:     r.Coeff(0),
		TierWeight:    r.Coeff(1),
		AnomalyWeight: r.Coeff(2),
		R2:            r.R2,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply returns the calibrated score clamped to [0,100].
func (c *Calibration) Apply(expected, decision float64) float64 {
	v := c.Intercept + c.TierWeight*expected + c.AnomalyWeight*decision
	return math.Max(0, math.Min(maxScore, v))
}

// Validate rejects calibrations with non-finite coefficients.
func (c *Calibration) Validate() error {
	for _, v := range []float64{c.Intercept, c.TierWeight, c.AnomalyWeight} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("score calibration has non-finite coefficients")
		}
	}
	return nil
}

// expectedTierScore is the probability-weighted tier centre.
func expectedTierScore(classes []int, probs []float64) float64 {
	var sum float64
	for i, p := range probs {
		sum += p * tierCentres[classes[i]]
	}
	return sum
}
