package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchmarny/riskctl/pkg/feature"
)

func parse(t *testing.T, raw map[string]any) feature.Vector {
	t.Helper()
	v, err := feature.Parse(raw)
	require.NoError(t, err)
	return v
}

func TestFactors_AllRules(t *testing.T) {
	v := parse(t, map[string]any{
		"open_ports":       30,
		"failed_logins":    60,
		"patch_level":      0.5,
		"antivirus_status": 0,
		"encryption_level": 0.5,
	})

	f := Factors(v)
	require.Len(t, f, 5)

	assert.Equal(t, "High number of open ports", f[0].Factor)
	assert.InDelta(t, 60.0, f[0].Impact, 1e-9)
	assert.Equal(t, "Excessive failed login attempts", f[1].Factor)
	assert.InDelta(t, 60.0, f[1].Impact, 1e-9)
	assert.Equal(t, "Outdated software/patches", f[2].Factor)
	assert.InDelta(t, 50.0, f[2].Impact, 1e-9)
	assert.Equal(t, "Antivirus disabled", f[3].Factor)
	assert.Equal(t, 80.0, f[3].Impact)
	assert.Equal(t, "Weak encryption", f[4].Factor)
	assert.InDelta(t, 40.0, f[4].Impact, 1e-9)

	for _, x := range f {
		assert.NotEmpty(t, x.Recommendation)
	}
}

func TestFactors_Defaults(t *testing.T) {
	f := Factors(feature.Defaults())
	assert.NotNil(t, f)
	assert.Empty(t, f)
}

func TestFactors_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want int
	}{
		{"ports at threshold", map[string]any{"open_ports": 20}, 0},
		{"ports above threshold", map[string]any{"open_ports": 21}, 1},
		{"logins at threshold", map[string]any{"failed_logins": 50}, 0},
		{"logins above threshold", map[string]any{"failed_logins": 51}, 1},
		{"patch at threshold", map[string]any{"patch_level": 0.8}, 0},
		{"patch below threshold", map[string]any{"patch_level": 0.79}, 1},
		{"antivirus enabled", map[string]any{"antivirus_status": 1}, 0},
		{"encryption at threshold", map[string]any{"encryption_level": 0.7}, 0},
		{"encryption below threshold", map[string]any{"encryption_level": 0.69}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Factors(parse(t, tt.raw)), tt.want)
		})
	}
}

func TestFactors_ImpactCapped(t *testing.T) {
	f := Factors(parse(t, map[string]any{"open_ports": 500, "failed_logins": 1000}))
	require.Len(t, f, 2)
	assert.Equal(t, 100.0, f[0].Impact)
	assert.Equal(t, 100.0, f[1].Impact)
}

func TestFactors_FailedLoginsMonotone(t *testing.T) {
	prev := -1.0
	for failed := 10; failed <= 90; failed++ {
		f := Factors(parse(t, map[string]any{"failed_logins": failed}))
		if len(f) == 0 {
			continue
		}
		require.Equal(t, "Excessive failed login attempts", f[0].Factor)
		assert.GreaterOrEqual(t, f[0].Impact, prev)
		prev = f[0].Impact
	}
	assert.InDelta(t, 90.0, prev, 1e-9)
}

func TestRecommend(t *testing.T) {
	critical := Recommend(&Assessment{RiskScore: 85})
	assert.Equal(t, criticalActions, critical)
	assert.NotContains(t, critical, AnomalyRecommendation)

	medium := Recommend(&Assessment{RiskScore: 50, IsAnomaly: true})
	require.Len(t, medium, 5)
	assert.Equal(t, mediumActions, medium[:4])
	assert.Equal(t, AnomalyRecommendation, medium[4])

	tests := []struct {
		score float64
		want  []string
	}{
		{100, criticalActions},
		{80.01, criticalActions},
		{80, highActions},
		{60.5, highActions},
		{60, mediumActions},
		{40.1, mediumActions},
		{40, baselineActions},
		{0, baselineActions},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Recommend(&Assessment{RiskScore: tt.score}), "score %v", tt.score)
	}
}

func TestRecommend_DoesNotAliasTiers(t *testing.T) {
	list := Recommend(&Assessment{RiskScore: 10, IsAnomaly: true})
	list[0] = "changed"
	assert.Equal(t, "Maintain current security posture", baselineActions[0])
}
