package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mchmarny/riskctl/pkg/config"
	"github.com/mchmarny/riskctl/pkg/data"
	"github.com/mchmarny/riskctl/pkg/risk"
)

// engineConfig maps the file configuration onto the engine settings.
func engineConfig(c *config.Config) risk.Config {
	return risk.Config{
		Samples:           c.Engine.Samples,
		TestFraction:      c.Engine.TestFraction,
		Seed:              c.Engine.Seed,
		Workers:           c.Engine.Workers,
		AnomalyTrees:      c.Anomaly.Trees,
		AnomalySampleSize: c.Anomaly.SampleSize,
		Contamination:     c.Anomaly.Contamination,
		ClassifierTrees:   c.Classifier.Trees,
		MaxFeatures:       c.Classifier.MaxFeatures,
		MinSamplesSplit:   c.Classifier.MinSamplesSplit,
		MaxDepth:          c.Classifier.MaxDepth,
	}
}

// readyEngine returns an engine holding the stored model, training and
// saving a new one when none can be loaded. A failure to save is logged
// since the engine is usable regardless.
func readyEngine(ctx context.Context, cfg *appConfig, name string) (*risk.Engine, error) {
	e := risk.NewEngine(engineConfig(cfg.Config))
	report, err := e.LoadOrTrain(ctx, cfg.DB, name)
	if err != nil {
		if !errors.Is(err, risk.ErrPersistence) || !e.Trained() {
			return nil, fmt.Errorf("preparing model %s: %w", name, err)
		}
		slog.Warn("model trained but not saved", "name", name, "error", err)
	}
	if report != nil {
		slog.Info("trained new model", "name", name, "id", report.ModelID, "accuracy", report.Classification.Accuracy)
	}
	return e, nil
}

// historyRecord converts an assessment into its stored form.
func historyRecord(modelID, entityID string, a *risk.Assessment, payload any) (*data.AssessmentRecord, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding assessment payload: %w", err)
	}
	return &data.AssessmentRecord{
		ID:           uuid.NewString(),
		EntityID:     entityID,
		ModelID:      modelID,
		RiskScore:    a.RiskScore,
		RiskCategory: a.RiskCategory,
		IsAnomaly:    a.IsAnomaly,
		AnomalyScore: a.AnomalyScore,
		Confidence:   a.Confidence,
		Payload:      b,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// recordReport stores a single assessment. History is best effort and
// failures are only logged.
func recordReport(ctx context.Context, db *data.DB, r *risk.Report) {
	rec, err := historyRecord(r.ModelID(), r.EntityID, r.Assessment, r)
	if err != nil {
		slog.Warn("assessment not recorded", "entity", r.EntityID, "error", err)
		return
	}
	rec.CreatedAt = r.Timestamp
	if err := db.SaveAssessments(ctx, []*data.AssessmentRecord{rec}); err != nil {
		slog.Warn("assessment not recorded", "entity", r.EntityID, "error", err)
	}
}

// recordBulk stores every successful result of a bulk assessment.
func recordBulk(ctx context.Context, db *data.DB, results map[string]*risk.BulkResult) {
	records := make([]*data.AssessmentRecord, 0, len(results))
	for id, r := range results {
		if r.Assessment == nil {
			continue
		}
		rec, err := historyRecord(r.ModelID(), id, r.Assessment, r)
		if err != nil {
			slog.Warn("assessment not recorded", "entity", id, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := db.SaveAssessments(ctx, records); err != nil {
		slog.Warn("bulk assessments not recorded", "count", len(records), "error", err)
	}
}
