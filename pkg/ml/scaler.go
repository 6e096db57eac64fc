package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// MinStdDev replaces the standard deviation of features that are constant in
// the fitting data.
const MinStdDev = 1e-6

var (
	// ErrDimensionMismatch is returned when a vector does not have the
	// dimensionality a model was fitted with.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")

	// ErrNoData is returned when fitting on an empty matrix.
	ErrNoData = errors.New("no training data")
)

// Scaler standardizes features using per-feature mean and population
// standard deviation. It is immutable after FitScaler.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column statistics of x.
func FitScaler(x [][]float64) (*Scaler, error) {
	if len(x) == 0 {
		return nil, ErrNoData
	}
	dim := len(x[0])
	if dim == 0 {
		return nil, ErrNoData
	}

	s := &Scaler{
		Mean: make([]float64, dim),
		Std:  make([]float64, dim),
	}

	col := make([]float64, len(x))
	for j := 0; j < dim; j++ {
		for i, row := range x {
			if len(row) != dim {
				return nil, dimensionError(len(row), dim)
			}
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std < MinStdDev {
			std = MinStdDev
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}

	return s, nil
}

// Dim returns the number of features the scaler was fitted on.
func (s *Scaler) Dim() int {
	return len(s.Mean)
}

// Transform returns the standardized copy of v.
func (s *Scaler) Transform(v []float64) ([]float64, error) {
	if len(v) != s.Dim() {
		return nil, dimensionError(len(v), s.Dim())
	}
	out := make([]float64, len(v))
	for i, val := range v {
		out[i] = (val - s.Mean[i]) / s.Std[i]
	}
	return out, nil
}

// TransformAll standardizes every row of x.
func (s *Scaler) TransformAll(x [][]float64) ([][]float64, error) {
	out := make([][]float64, 0, len(x))
	for _, row := range x {
		t, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Validate checks the internal consistency of a decoded scaler.
func (s *Scaler) Validate(dim int) error {
	if len(s.Mean) != dim || len(s.Std) != dim {
		return dimensionError(len(s.Mean), dim)
	}
	for i, sd := range s.Std {
		if sd <= 0 {
			return fmt.Errorf("scaler std for feature %d is not positive: %v", i, sd)
		}
	}
	return nil
}

func dimensionError(got, want int) error {
	return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, got, want)
}
