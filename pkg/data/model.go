package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// ErrModelNotFound is returned when no model is stored under a name.
var ErrModelNotFound = errors.New("model not found")

var (
	upsertModel = `INSERT INTO model (name, blob, size, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET blob = excluded.blob, size = excluded.size, updated_at = excluded.updated_at`

	selectModel = `SELECT blob FROM model WHERE name = ?`

	selectModels = `SELECT name, size, updated_at FROM model ORDER BY name`

	deleteModel = `DELETE FROM model WHERE name = ?`
)

// ModelInfo describes a stored model without its content.
type ModelInfo struct {
	Name      string    `json:"name" yaml:"name"`
	Size      int64     `json:"size" yaml:"size"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// SaveModel stores blob under name, replacing any previous model.
func (d *DB) SaveModel(ctx context.Context, name string, blob []byte) error {
	if d == nil || d.db == nil {
		return errDBNotInitialized
	}
	if name == "" {
		return errors.New("model name not specified")
	}

	if _, err := d.db.ExecContext(ctx, d.rebind(upsertModel), name, blob, len(blob), time.Now().UTC().UnixNano()); err != nil {
		return errors.Wrapf(err, "failed to save model: %s", name)
	}
	return nil
}

// LoadModel returns the blob stored under name.
func (d *DB) LoadModel(ctx context.Context, name string) ([]byte, error) {
	if d == nil || d.db == nil {
		return nil, errDBNotInitialized
	}

	var blob []byte
	err := d.db.QueryRowContext(ctx, d.rebind(selectModel), name).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrModelNotFound, "name: %s", name)
		}
		return nil, errors.Wrapf(err, "failed to load model: %s", name)
	}
	return blob, nil
}

// ListModels returns all stored models ordered by name.
func (d *DB) ListModels(ctx context.Context) ([]*ModelInfo, error) {
	if d == nil || d.db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := d.db.QueryContext(ctx, selectModels)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query models")
	}
	defer rows.Close()

	list := make([]*ModelInfo, 0)
	for rows.Next() {
		m := &ModelInfo{}
		var updated int64
		if err := rows.Scan(&m.Name, &m.Size, &updated); err != nil {
			return nil, errors.Wrap(err, "failed to scan model row")
		}
		m.UpdatedAt = time.Unix(0, updated).UTC()
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate model rows")
	}
	return list, nil
}

// DeleteModel removes the model stored under name.
func (d *DB) DeleteModel(ctx context.Context, name string) error {
	if d == nil || d.db == nil {
		return errDBNotInitialized
	}

	res, err := d.db.ExecContext(ctx, d.rebind(deleteModel), name)
	if err != nil {
		return errors.Wrapf(err, "failed to delete model: %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.Wrapf(ErrModelNotFound, "name: %s", name)
	}
	return nil
}
