// Package sqliterepo provides SQLite persistence for a token tier.
package sqliterepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/passport-session/tokenstore"
	_ "modernc.org/sqlite"
)

var _ tokenstore.Repo = (*SQLiteRepo)(nil)

// SQLiteRepo keeps the keys of one namespace in a kv table. Several
// namespaces may share one database file.
type SQLiteRepo struct {
	db        *sql.DB
	namespace string
}

// New opens (or creates) the database at dbPath.
func New(dbPath, namespace string) (*SQLiteRepo, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("[sqliterepo New] create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("[sqliterepo New] failed to connect to database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("[sqliterepo New] failed to init database: %w", err)
	}
	return &SQLiteRepo{db: db, namespace: namespace}, nil
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			namespace   TEXT NOT NULL,
			key         TEXT NOT NULL,
			value       TEXT NOT NULL,
			updated_at  INTEGER NOT NULL,
			PRIMARY KEY (namespace, key)
		);`,
	); err != nil {
		return fmt.Errorf("failed to init 'kv' table schema: %v", err)
	}
	return nil
}

func (r *SQLiteRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE namespace = ? AND key = ?;`,
		r.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", tokenstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepo) Upsert(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		r.namespace, key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite upsert %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM kv WHERE namespace = ? AND key = ?;`,
		r.namespace, key,
	); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}
