package risk

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mchmarny/riskctl/pkg/feature"
)

const (
	// EntityIDKey is the raw entity key holding its identifier.
	EntityIDKey = "entity_id"

	unknownEntityID = "unknown"
)

// Report is the full response for a single assessed entity.
type Report struct {
	EntityID        string      `json:"entity_id" yaml:"entity_id"`
	Assessment      *Assessment `json:"risk_assessment" yaml:"risk_assessment"`
	Recommendations []string    `json:"recommendations" yaml:"recommendations"`
	Timestamp       time.Time   `json:"timestamp" yaml:"timestamp"`

	modelID string
}

// ModelID returns the id of the model snapshot that produced the report.
func (r *Report) ModelID() string {
	return r.modelID
}

// BulkResult is the outcome for one entity of a bulk request. Exactly one
// of Assessment and Error is set.
type BulkResult struct {
	Assessment      *Assessment `json:"risk_assessment,omitempty" yaml:"risk_assessment,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
	Error           string      `json:"error,omitempty" yaml:"error,omitempty"`

	err     error
	modelID string
}

// ModelID returns the id of the model snapshot that produced the result.
func (r *BulkResult) ModelID() string {
	return r.modelID
}

// Err returns the error that prevented the entity from being assessed.
func (r *BulkResult) Err() error {
	return r.err
}

// Assess predicts the risk of raw and attaches recommendations.
func (e *Engine) Assess(raw map[string]any) (*Report, error) {
	m := e.model.Load()
	if m == nil {
		return nil, ErrNotTrained
	}
	v, err := feature.Parse(raw)
	if err != nil {
		return nil, err
	}
	a, err := m.Assess(v)
	if err != nil {
		return nil, err
	}
	id := EntityID(raw)
	if id == "" {
		id = unknownEntityID
	}
	return &Report{
		EntityID:        id,
		Assessment:      a,
		Recommendations: Recommend(a),
		Timestamp:       time.Now().UTC(),
		modelID:         m.ID,
	}, nil
}

// BulkAssess assesses every entity independently against one model
// snapshot. A failing entity is reported in its result and never aborts
// the others; the only top-level errors are an untrained engine and a
// cancelled context. A nil entity stands for an element that was not a
// JSON object and fails with ErrInvalidEntity.
func (e *Engine) BulkAssess(ctx context.Context, entities []map[string]any) (map[string]*BulkResult, error) {
	m := e.model.Load()
	if m == nil {
		return nil, ErrNotTrained
	}

	ids := BulkIDs(entities)
	results := make([]*BulkResult, len(entities))

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, raw := range entities {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := assessOne(m, raw)
			r.modelID = m.ID
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bulk assessment interrupted: %w", err)
	}

	out := make(map[string]*BulkResult, len(entities))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out, nil
}

func assessOne(m *Model, raw map[string]any) *BulkResult {
	if raw == nil {
		return &BulkResult{Error: ErrInvalidEntity.Error(), err: ErrInvalidEntity}
	}
	v, err := feature.Parse(raw)
	if err != nil {
		return &BulkResult{Error: err.Error(), err: err}
	}
	a, err := m.Assess(v)
	if err != nil {
		return &BulkResult{Error: err.Error(), err: err}
	}
	return &BulkResult{Assessment: a, Recommendations: Recommend(a)}
}

// EntityID returns the identifier carried by raw, or empty when it has
// none.
func EntityID(raw map[string]any) string {
	switch v := raw[EntityIDKey].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// BulkIDs assigns a unique key to every entity of a bulk request. Entities
// without an id become unknown-<index>; repeated ids get a #<index> suffix,
// applied again until the key is unused.
func BulkIDs(entities []map[string]any) []string {
	ids := make([]string, len(entities))
	seen := make(map[string]bool, len(entities))
	for i, raw := range entities {
		id := EntityID(raw)
		if id == "" {
			id = fmt.Sprintf("%s-%d", unknownEntityID, i)
		}
		for seen[id] {
			id = fmt.Sprintf("%s#%d", id, i)
		}
		seen[id] = true
		ids[i] = id
	}
	return ids
}
