// Package dataset generates labeled synthetic training records and derives
// their ground-truth risk score and category.
package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/mchmarny/riskctl/pkg/feature"
)

const (
	// Contribution weights (sum to 1.0).
	openPortsWeight      = 0.15
	failedLoginsWeight   = 0.20
	patchWeight          = 0.25
	antivirusWeight      = 0.15
	encryptionWeight     = 0.10
	privilegeWeight      = 0.05
	dataTransferWeight   = 0.05
	loginTimeWeight      = 0.03
	geographicWeight     = 0.02
	openPortsCeil        = 50.0
	failedLoginsCeil     = 100.0
	privilegeLevelsRange = 4.0

	maxScore = 100.0
)

// Category is the ordinal risk tier.
type Category int

const (
	Low Category = iota
	Medium
	High
	Critical

	// NumCategories is the number of risk tiers.
	NumCategories = 4
)

var categoryLabels = [NumCategories]string{"Low", "Medium", "High", "Critical"}

// String returns the tier label.
func (c Category) String() string {
	if !c.Valid() {
		return "Unknown"
	}
	return categoryLabels[c]
}

// Valid reports whether c is one of the four tiers.
func (c Category) Valid() bool {
	return c >= Low && c <= Critical
}

// Categories returns all tiers in ordinal order.
func Categories() []Category {
	return []Category{Low, Medium, High, Critical}
}

// Categorize maps a ground-truth score onto its tier.
func Categorize(score float64) Category {
	switch {
	case score >= 80:
		return Critical
	case score >= 60:
		return High
	case score >= 40:
		return Medium
	default:
		return Low
	}
}

// Record is a labeled training example.
type Record struct {
	Features feature.Vector `json:"features"`
	Score    float64        `json:"risk_score"`
	Category Category       `json:"risk_category"`
}

// Score computes the ground-truth risk score (0-100) of a vector.
func Score(v feature.Vector) float64 {
	sum := v[feature.IdxOpenPorts]/openPortsCeil*openPortsWeight +
		v[feature.IdxFailedLogins]/failedLoginsCeil*failedLoginsWeight +
		(1-v[feature.IdxPatchLevel])*patchWeight +
		(1-v[feature.IdxAntivirusStatus])*antivirusWeight +
		(1-v[feature.IdxEncryptionLevel])*encryptionWeight +
		(v[feature.IdxUserPrivilegeLevel]-1)/privilegeLevelsRange*privilegeWeight +
		v[feature.IdxDataTransferAnomaly]*dataTransferWeight +
		v[feature.IdxLoginTimeAnomaly]*loginTimeWeight +
		v[feature.IdxGeographicAnomaly]*geographicWeight

	return math.Min(maxScore, sum*maxScore)
}

// Generate draws n records, each field independently from its domain.
func Generate(rng *rand.Rand, n int) []Record {
	list := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		v := make(feature.Vector, feature.Count)
		for j, f := range feature.Fields {
			v[j] = draw(rng, f)
		}
		score := Score(v)
		list = append(list, Record{
			Features: v,
			Score:    score,
			Category: Categorize(score),
		})
	}
	return list
}

func draw(rng *rand.Rand, f feature.Field) float64 {
	if f.Integer {
		lo, hi := int(f.Min), int(f.Max)
		return float64(lo + rng.IntN(hi-lo+1))
	}
	return f.Min + rng.Float64()*(f.Max-f.Min)
}

// Split shuffles records and partitions them into train and test sets,
// with testFraction of the records (rounded down, at least one when
// possible) going to test.
func Split(rng *rand.Rand, records []Record, testFraction float64) (train, test []Record) {
	shuffled := make([]Record, len(records))
	copy(shuffled, records)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTest := int(float64(len(shuffled)) * testFraction)
	if nTest == 0 && testFraction > 0 && len(shuffled) > 1 {
		nTest = 1
	}
	return shuffled[nTest:], shuffled[:nTest]
}

// Matrix returns the feature vectors and category labels of records.
func Matrix(records []Record) ([][]float64, []int) {
	x := make([][]float64, 0, len(records))
	y := make([]int, 0, len(records))
	for _, r := range records {
		x = append(x, r.Features)
		y = append(y, int(r.Category))
	}
	return x, y
}
