// Package risk assesses the cybersecurity risk of network entities by
// combining a random forest classifier, an isolation forest anomaly detector
// and a fixed set of threshold rules.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mchmarny/riskctl/pkg/dataset"
	"github.com/mchmarny/riskctl/pkg/feature"
	"github.com/mchmarny/riskctl/pkg/ml"
)

const (
	// minOrderSupport is the number of held-out predictions a category
	// needs before it takes part in the ordinal check.
	minOrderSupport = 5

	// minCalibrationSamples is the held-out size below which calibration
	// is skipped.
	minCalibrationSamples = 10
)

// Config controls how the engine trains.
type Config struct {
	Samples      int
	TestFraction float64
	Seed         uint64
	Workers      int

	AnomalyTrees      int
	AnomalySampleSize int
	Contamination     float64
	ClassifierTrees   int
	MaxFeatures       int
	MinSamplesSplit   int
	MaxDepth          int
}

// DefaultConfig returns the training settings of a stock installation.
func DefaultConfig() Config {
	return Config{
		Samples:           1000,
		TestFraction:      0.2,
		Seed:              42,
		AnomalyTrees:      100,
		AnomalySampleSize: 256,
		Contamination:     0.1,
		ClassifierTrees:   100,
		MinSamplesSplit:   2,
	}
}

// TrainingReport describes a completed training run. Everything in it is
// diagnostic; none of it affects inference.
type TrainingReport struct {
	ModelID          string                   `json:"model_id" yaml:"model_id"`
	Samples          int                      `json:"samples" yaml:"samples"`
	TrainSize        int                      `json:"train_size" yaml:"train_size"`
	TestSize         int                      `json:"test_size" yaml:"test_size"`
	Classification   *ml.ClassificationReport `json:"classification" yaml:"classification"`
	HeldOutAnomalies int                      `json:"held_out_anomalies" yaml:"held_out_anomalies"`
	CalibrationR2    *float64                 `json:"calibration_r2,omitempty" yaml:"calibration_r2,omitempty"`
	Duration         time.Duration            `json:"duration" yaml:"duration"`
}

// Engine holds the published model. Predictions read the current snapshot
// without locking; training builds a new snapshot and swaps it in when
// complete.
type Engine struct {
	cfg   Config
	model atomic.Pointer[Model]
	mu    sync.Mutex
}

// NewEngine returns an untrained engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Model returns the published snapshot, or nil when the engine is untrained.
func (e *Engine) Model() *Model {
	return e.model.Load()
}

// Trained reports whether a model has been published.
func (e *Engine) Trained() bool {
	return e.model.Load() != nil
}

// Publish validates m and makes it the current snapshot.
func (e *Engine) Publish(m *Model) error {
	if m == nil {
		return errors.New("nil model")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	e.model.Store(m)
	return nil
}

// Train generates synthetic data, fits a new model and publishes it.
// Concurrent calls are serialized; predictions keep using the previous
// snapshot until the new one is published.
func (e *Engine) Train(ctx context.Context) (*TrainingReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	m, report, err := e.build(ctx)
	if err != nil {
		return nil, err
	}
	e.model.Store(m)

	report.Duration = time.Since(start)
	slog.Info("model trained",
		"id", m.ID,
		"samples", report.Samples,
		"accuracy", report.Classification.Accuracy,
		"held_out_anomalies", report.HeldOutAnomalies,
		"duration", report.Duration)

	return report, nil
}

func (e *Engine) build(ctx context.Context) (*Model, *TrainingReport, error) {
	if e.cfg.Samples < 2 {
		return nil, nil, fmt.Errorf("need at least 2 training samples, got %d", e.cfg.Samples)
	}

	rng := rand.New(rand.NewPCG(e.cfg.Seed, 0))
	records := dataset.Generate(rng, e.cfg.Samples)
	train, test := dataset.Split(rng, records, e.cfg.TestFraction)
	slog.Debug("generated training data", "train", len(train), "test", len(test))

	all, _ := dataset.Matrix(records)
	scaler, err := ml.FitScaler(all)
	if err != nil {
		return nil, nil, fmt.Errorf("fitting scaler: %w", err)
	}
	allScaled, err := scaler.TransformAll(all)
	if err != nil {
		return nil, nil, fmt.Errorf("scaling training data: %w", err)
	}

	anomaly := ml.NewIsolationForest(
		ml.WithTrees(e.cfg.AnomalyTrees),
		ml.WithSampleSize(e.cfg.AnomalySampleSize),
		ml.WithContamination(e.cfg.Contamination),
		ml.WithSeed(e.cfg.Seed),
		ml.WithWorkers(e.cfg.Workers),
	)
	if err := anomaly.Fit(ctx, allScaled); err != nil {
		return nil, nil, fmt.Errorf("fitting anomaly detector: %w", err)
	}
	slog.Debug("anomaly detector fitted", "trees", len(anomaly.Trees), "offset", anomaly.Offset)

	xTrain, yTrain := dataset.Matrix(train)
	xTrain, err = scaler.TransformAll(xTrain)
	if err != nil {
		return nil, nil, fmt.Errorf("scaling training split: %w", err)
	}

	classifier := ml.NewRandomForest(
		ml.WithTrees(e.cfg.ClassifierTrees),
		ml.WithMaxFeatures(e.cfg.MaxFeatures),
		ml.WithMinSamplesSplit(e.cfg.MinSamplesSplit),
		ml.WithMaxDepth(e.cfg.MaxDepth),
		ml.WithSeed(e.cfg.Seed+1),
		ml.WithWorkers(e.cfg.Workers),
	)
	if err := classifier.Fit(ctx, xTrain, yTrain); err != nil {
		return nil, nil, fmt.Errorf("fitting classifier: %w", err)
	}
	slog.Debug("classifier fitted", "trees", len(classifier.Trees), "classes", classifier.Classes)

	m := &Model{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		TrainingSize: len(train),
		Scaler:       scaler,
		Anomaly:      anomaly,
		Classifier:   classifier,
	}
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}

	report, samples, err := m.evaluate(test)
	if err != nil {
		return nil, nil, err
	}
	report.ModelID = m.ID
	report.Samples = len(records)
	report.TrainSize = len(train)

	if len(samples) >= minCalibrationSamples {
		cal, err := fitCalibration(samples)
		if err != nil {
			slog.Warn("score calibration skipped", "error", err)
		} else {
			m.Calibration = cal
			report.CalibrationR2 = &cal.R2
		}
	}

	return m, report, nil
}

// evaluate scores the held-out records, checks that predicted categories
// are ordered by ground-truth severity and collects calibration samples.
func (m *Model) evaluate(test []dataset.Record) (*TrainingReport, []calibrationSample, error) {
	report := &TrainingReport{TestSize: len(test)}

	yTrue := make([]int, 0, len(test))
	yPred := make([]int, 0, len(test))
	samples := make([]calibrationSample, 0, len(test))

	var sums [dataset.NumCategories]float64
	var counts [dataset.NumCategories]int

	for _, r := range test {
		scaled, err := m.Scaler.Transform(r.Features)
		if err != nil {
			return nil, nil, inconsistent(err)
		}
		pos, probs, err := m.Classifier.Predict(scaled)
		if err != nil {
			return nil, nil, inconsistent(err)
		}
		decision, err := m.Anomaly.DecisionScore(scaled)
		if err != nil {
			return nil, nil, inconsistent(err)
		}
		if decision < 0 {
			report.HeldOutAnomalies++
		}

		pred := m.Classifier.Classes[pos]
		yTrue = append(yTrue, int(r.Category))
		yPred = append(yPred, pred)
		sums[pred] += r.Score
		counts[pred]++

		samples = append(samples, calibrationSample{
			expected: expectedTierScore(m.Classifier.Classes, probs),
			decision: decision,
			truth:    r.Score,
		})
	}

	labels := make([]int, 0, dataset.NumCategories)
	for _, c := range dataset.Categories() {
		labels = append(labels, int(c))
	}
	report.Classification = ml.Evaluate(yTrue, yPred, labels)

	if err := checkOrdinal(sums, counts); err != nil {
		return nil, nil, err
	}
	return report, samples, nil
}

// checkOrdinal verifies that the mean ground-truth score of the records
// predicted as each category never decreases with severity.
func checkOrdinal(sums [dataset.NumCategories]float64, counts [dataset.NumCategories]int) error {
	prev := -1.0
	prevCat := dataset.Category(-1)
	for c := range dataset.NumCategories {
		if counts[c] < minOrderSupport {
			continue
		}
		mean := sums[c] / float64(counts[c])
		if mean < prev {
			return fmt.Errorf("%w: mean score of %s predictions (%.2f) below %s (%.2f)",
				ErrModelInconsistency, dataset.Category(c), mean, prevCat, prev)
		}
		prev = mean
		prevCat = dataset.Category(c)
	}
	return nil
}

// Predict assesses a raw entity record against the published model.
func (e *Engine) Predict(raw map[string]any) (*Assessment, error) {
	m := e.model.Load()
	if m == nil {
		return nil, ErrNotTrained
	}
	v, err := feature.Parse(raw)
	if err != nil {
		return nil, err
	}
	return m.Assess(v)
}
