package risk

import (
	"errors"
	"fmt"

	"github.com/mchmarny/riskctl/pkg/ml"
)

var (
	// ErrNotTrained is returned when the engine has no published model.
	ErrNotTrained = errors.New("risk engine is not trained")

	// ErrPersistence wraps failures to save, load or decode a model.
	ErrPersistence = errors.New("model persistence failed")

	// ErrModelInconsistency reports a model whose shape does not match the
	// feature layout or whose class order is not ordinal.
	ErrModelInconsistency = errors.New("model inconsistency")

	// ErrInvalidEntity is reported for a bulk element that is not a JSON
	// object.
	ErrInvalidEntity = errors.New("entity must be a JSON object")
)

// inconsistent wraps err with ErrModelInconsistency when it reports a
// dimension mismatch.
func inconsistent(err error) error {
	if errors.Is(err, ml.ErrDimensionMismatch) {
		return fmt.Errorf("%w: %w", ErrModelInconsistency, err)
	}
	return err
}
