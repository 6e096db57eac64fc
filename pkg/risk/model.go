package risk

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mchmarny/riskctl/pkg/dataset"
	"github.com/mchmarny/riskctl/pkg/feature"
	"github.com/mchmarny/riskctl/pkg/ml"
)

const (
	maxScore          = 100.0
	anomalyMultiplier = 20.0
)

// Model is an immutable snapshot of everything the engine needs to assess
// an entity. A published Model is never modified.
type Model struct {
	ID           string              `json:"id"`
	CreatedAt    time.Time           `json:"created_at"`
	TrainingSize int                 `json:"training_size"`
	Scaler       *ml.Scaler          `json:"scaler"`
	Anomaly      *ml.IsolationForest `json:"anomaly"`
	Classifier   *ml.RandomForest    `json:"classifier"`
	Calibration  *Calibration        `json:"calibration,omitempty"`
}

// Assessment is the risk verdict for one entity.
type Assessment struct {
	RiskScore       float64            `json:"risk_score" yaml:"risk_score"`
	RiskCategory    string             `json:"risk_category" yaml:"risk_category"`
	IsAnomaly       bool               `json:"is_anomaly" yaml:"is_anomaly"`
	AnomalyScore    float64            `json:"anomaly_score" yaml:"anomaly_score"`
	Confidence      float64            `json:"confidence" yaml:"confidence"`
	RiskFactors     []Factor           `json:"risk_factors" yaml:"risk_factors"`
	CalibratedScore *float64           `json:"calibrated_score,omitempty" yaml:"calibrated_score,omitempty"`
	Probabilities   map[string]float64 `json:"probabilities,omitempty" yaml:"probabilities,omitempty"`

	category dataset.Category
}

// Category returns the tier of the assessment.
func (a *Assessment) Category() dataset.Category {
	return a.category
}

// Validate checks that every part of the model matches the feature layout
// and that every class is a known category.
func (m *Model) Validate() error {
	if m.Scaler == nil || m.Anomaly == nil || m.Classifier == nil {
		return fmt.Errorf("%w: model is missing components", ErrModelInconsistency)
	}
	if err := m.Scaler.Validate(feature.Count); err != nil {
		return fmt.Errorf("%w: scaler: %w", ErrModelInconsistency, err)
	}
	if err := m.Anomaly.Validate(feature.Count); err != nil {
		return fmt.Errorf("%w: anomaly detector: %w", ErrModelInconsistency, err)
	}
	if err := m.Classifier.Validate(feature.Count); err != nil {
		return fmt.Errorf("%w: classifier: %w", ErrModelInconsistency, err)
	}
	if !slices.IsSorted(m.Classifier.Classes) {
		return fmt.Errorf("%w: classifier classes out of order: %v", ErrModelInconsistency, m.Classifier.Classes)
	}
	for _, c := range m.Classifier.Classes {
		if !dataset.Category(c).Valid() {
			return fmt.Errorf("%w: unknown risk category %d", ErrModelInconsistency, c)
		}
	}
	if m.Calibration != nil {
		if err := m.Calibration.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrModelInconsistency, err)
		}
	}
	return nil
}

// Assess scores an already parsed entity vector.
func (m *Model) Assess(v feature.Vector) (*Assessment, error) {
	scaled, err := m.Scaler.Transform(v)
	if err != nil {
		return nil, inconsistent(err)
	}

	pos, probs, err := m.Classifier.Predict(scaled)
	if err != nil {
		return nil, inconsistent(err)
	}

	decision, err := m.Anomaly.DecisionScore(scaled)
	if err != nil {
		return nil, inconsistent(err)
	}
	outlier := decision < 0

	base := probs[pos] * 100
	var adjustment float64
	if outlier {
		adjustment = math.Abs(decision) * anomalyMultiplier
	}

	cat := dataset.Category(m.Classifier.Classes[pos])
	a := &Assessment{
		RiskScore:     min(maxScore, base+adjustment),
		RiskCategory:  cat.String(),
		IsAnomaly:     outlier,
		AnomalyScore:  decision,
		Confidence:    slices.Max(probs) * 100,
		RiskFactors:   Factors(v),
		Probabilities: make(map[string]float64, len(probs)),
		category:      cat,
	}
	for i, p := range probs {
		a.Probabilities[dataset.Category(m.Classifier.Classes[i]).String()] = p
	}

	if m.Calibration != nil {
		cs := m.Calibration.Apply(expectedTierScore(m.Classifier.Classes, probs), decision)
		a.CalibratedScore = &cs
	}

	return a, nil
}
