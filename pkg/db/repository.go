package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository persists worker configuration as key/value rows in app_config.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns every persisted entry ordered by key.
func (r *Repository) List(ctx context.Context) ([]ConfigEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value, modified FROM app_config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("%s - List query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var entries []ConfigEntry
	for rows.Next() {
		var e ConfigEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.Modified); err != nil {
			return nil, fmt.Errorf("%s - scan config entry failed: %w", repoLogPrefix, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - List rows failed: %w", repoLogPrefix, err)
	}
	return entries, nil
}

// Get returns one entry, or nil when the key is not persisted.
func (r *Repository) Get(ctx context.Context, key string) (*ConfigEntry, error) {
	e := ConfigEntry{Key: key}
	err := r.pool.QueryRow(ctx,
		`SELECT value, modified FROM app_config WHERE key = $1`, key).Scan(&e.Value, &e.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - Get %s failed: %w", repoLogPrefix, key, err)
	}
	return &e, nil
}

// Load returns all entries as a map.
func (r *Repository) Load(ctx context.Context) (map[string]any, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(entries))
	for _, e := range entries {
		values[e.Key] = e.Value
	}
	slog.Debug(fmt.Sprintf("%s - Loaded %d config entries", repoLogPrefix, len(values)))
	return values, nil
}

// Save upserts every value in one transaction.
func (r *Repository) Save(ctx context.Context, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	now := time.Now().UTC()

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, k := range keys {
			// pgx sends strings and byte slices to JSONB columns verbatim, so
			// every value goes out pre-encoded.
			data, err := json.Marshal(values[k])
			if err != nil {
				return fmt.Errorf("encode %s: %w", k, err)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO app_config (key, value, modified)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, modified = EXCLUDED.modified`,
				k, data, now)
			if err != nil {
				return fmt.Errorf("upsert %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s - Save failed: %w", repoLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Saved config keys %v", repoLogPrefix, keys))
	return nil
}

// Clear deletes every entry.
func (r *Repository) Clear(ctx context.Context) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM app_config`)
	if err != nil {
		return fmt.Errorf("%s - Clear failed: %w", repoLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Cleared %d config entries", repoLogPrefix, tag.RowsAffected()))
	return nil
}
