package data

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords(now time.Time) []*AssessmentRecord {
	list := make([]*AssessmentRecord, 0, 5)
	for i := range 5 {
		entity := "web-01"
		if i%2 == 1 {
			entity = "db-01"
		}
		list = append(list, &AssessmentRecord{
			ID:           fmt.Sprintf("id-%d", i),
			EntityID:     entity,
			ModelID:      "model-1",
			RiskScore:    float64(10 * i),
			RiskCategory: "Low",
			IsAnomaly:    i == 3,
			AnomalyScore: -0.01 * float64(i),
			Confidence:   90,
			Payload:      json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
			CreatedAt:    now.Add(time.Duration(i) * time.Second),
		})
	}
	return list
}

func testHistoryStore(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveAssessments(ctx, nil))
	require.NoError(t, db.SaveAssessments(ctx, testRecords(now)))

	all, err := db.ListAssessments(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "id-4", all[0].ID)
	assert.Equal(t, "id-0", all[4].ID)

	web, err := db.ListAssessments(ctx, "web-01", 10)
	require.NoError(t, err)
	require.Len(t, web, 3)
	for _, r := range web {
		assert.Equal(t, "web-01", r.EntityID)
	}

	limited, err := db.ListAssessments(ctx, "db-01", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	r := limited[0]
	assert.Equal(t, "id-3", r.ID)
	assert.True(t, r.IsAnomaly)
	assert.InDelta(t, 30.0, r.RiskScore, 1e-9)
	assert.JSONEq(t, `{"n":3}`, string(r.Payload))
	assert.True(t, now.Add(3*time.Second).Equal(r.CreatedAt))

	dup := testRecords(now)[:1]
	assert.Error(t, db.SaveAssessments(ctx, dup))

	after, err := db.ListAssessments(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, after, 5)
}

func TestHistoryStore_SQLite(t *testing.T) {
	testHistoryStore(t, setupTestDB(t))
}
