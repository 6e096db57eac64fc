package data

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const defaultHistoryLimit = 100

var (
	insertAssessment = `INSERT INTO assessment (id, entity_id, model_id, risk_score, risk_category,
		is_anomaly, anomaly_score, confidence, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectAssessments = `SELECT id, entity_id, model_id, risk_score, risk_category,
		is_anomaly, anomaly_score, confidence, payload, created_at
		FROM assessment`
)

// AssessmentRecord is one stored assessment. Payload holds the full
// response as it was returned to the caller.
type AssessmentRecord struct {
	ID           string          `json:"id" yaml:"id"`
	EntityID     string          `json:"entity_id" yaml:"entity_id"`
	ModelID      string          `json:"model_id" yaml:"model_id"`
	RiskScore    float64         `json:"risk_score" yaml:"risk_score"`
	RiskCategory string          `json:"risk_category" yaml:"risk_category"`
	IsAnomaly    bool            `json:"is_anomaly" yaml:"is_anomaly"`
	AnomalyScore float64         `json:"anomaly_score" yaml:"anomaly_score"`
	Confidence   float64         `json:"confidence" yaml:"confidence"`
	Payload      json.RawMessage `json:"payload,omitempty" yaml:"-"`
	CreatedAt    time.Time       `json:"created_at" yaml:"created_at"`
}

// SaveAssessments stores records in a single transaction.
func (d *DB) SaveAssessments(ctx context.Context, records []*AssessmentRecord) error {
	if d == nil || d.db == nil {
		return errDBNotInitialized
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	stmt, err := tx.PrepareContext(ctx, d.rebind(insertAssessment))
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to prepare assessment insert")
	}
	defer stmt.Close()

	for _, r := range records {
		payload := r.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		anomaly := 0
		if r.IsAnomaly {
			anomaly = 1
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.EntityID, r.ModelID, r.RiskScore, r.RiskCategory,
			anomaly, r.AnomalyScore, r.Confidence, string(payload), r.CreatedAt.UTC().UnixNano()); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to insert assessment: %s", r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit assessments")
	}
	return nil
}

// ListAssessments returns the newest assessments first, limited to limit
// rows (100 when not positive). An empty entityID matches every entity.
func (d *DB) ListAssessments(ctx context.Context, entityID string, limit int) ([]*AssessmentRecord, error) {
	if d == nil || d.db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	q := selectAssessments
	args := make([]any, 0, 2)
	if entityID != "" {
		q += " WHERE entity_id = ?"
		args = append(args, entityID)
	}
	q += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query assessments")
	}
	defer rows.Close()

	list := make([]*AssessmentRecord, 0)
	for rows.Next() {
		r := &AssessmentRecord{}
		var anomaly int
		var payload string
		var created int64
		if err := rows.Scan(&r.ID, &r.EntityID, &r.ModelID, &r.RiskScore, &r.RiskCategory,
			&anomaly, &r.AnomalyScore, &r.Confidence, &payload, &created); err != nil {
			return nil, errors.Wrap(err, "failed to scan assessment row")
		}
		r.IsAnomaly = anomaly != 0
		r.Payload = json.RawMessage(payload)
		r.CreatedAt = time.Unix(0, created).UTC()
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate assessment rows")
	}
	return list, nil
}
