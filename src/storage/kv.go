package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// Entry is one row of the kv table.
type Entry struct {
	Key       string    `json:"key" db:"key"`
	Value     []byte    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// GetEntry returns the entry stored under key, or nil if there is none.
func GetEntry(ctx context.Context, db sqlscan.Querier, key string) (*Entry, error) {
	query := `SELECT key, value, updated_at FROM kv WHERE key = ?`
	var e Entry
	err := sqlscan.Get(ctx, db, &e, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// PutEntry inserts or replaces the value stored under key.
func PutEntry(ctx context.Context, db Execer, key string, value []byte, now time.Time) error {
	query := `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query, key, value, now.UTC())
	return err
}

// Load returns the bytes stored under key, or nil if the key is absent.
func (d *DB) Load(ctx context.Context, key string) ([]byte, error) {
	e, err := GetEntry(ctx, d.db, key)
	if err != nil {
		return nil, &StorageError{Operation: "load", Key: key, Err: err}
	}
	if e == nil {
		return nil, nil
	}
	return e.Value, nil
}

// Save replaces the bytes stored under key.
func (d *DB) Save(ctx context.Context, key string, data []byte) error {
	if err := PutEntry(ctx, d.db, key, data, time.Now()); err != nil {
		return &StorageError{Operation: "save", Key: key, Err: err}
	}
	return nil
}
