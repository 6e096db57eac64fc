package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ModelStore persists encoded models by name.
type ModelStore interface {
	SaveModel(ctx context.Context, name string, blob []byte) error
	LoadModel(ctx context.Context, name string) ([]byte, error)
}

// Save encodes the published model and writes it to store under name.
func (e *Engine) Save(ctx context.Context, store ModelStore, name string) error {
	m := e.model.Load()
	if m == nil {
		return ErrNotTrained
	}
	blob, err := Marshal(m)
	if err != nil {
		return err
	}
	if err := store.SaveModel(ctx, name, blob); err != nil {
		return fmt.Errorf("%w: saving model %s: %w", ErrPersistence, name, err)
	}
	slog.Debug("model saved", "name", name, "id", m.ID, "bytes", len(blob))
	return nil
}

// Load reads the model stored under name, validates it and publishes it.
func (e *Engine) Load(ctx context.Context, store ModelStore, name string) error {
	blob, err := store.LoadModel(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: loading model %s: %w", ErrPersistence, name, err)
	}
	m, err := Unmarshal(blob)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.model.Store(m)

	slog.Debug("model loaded", "name", name, "id", m.ID, "created", m.CreatedAt)
	return nil
}

// LoadOrTrain publishes the model stored under name. When it is missing or
// cannot be decoded the engine is trained from scratch and the new model is
// saved. The report is nil when a stored model was used. A failure to save
// is returned even though the engine is then trained and usable.
func (e *Engine) LoadOrTrain(ctx context.Context, store ModelStore, name string) (*TrainingReport, error) {
	err := e.Load(ctx, store, name)
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	slog.Info("stored model unavailable, training a new one", "name", name, "reason", err)

	report, err := e.Train(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.Save(ctx, store, name); err != nil {
		return report, err
	}
	return report, nil
}
