package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearConfig deletes every persisted config value and reports how many rows
// went. The schema and migration history are kept.
func ClearConfig(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	tag, err := pool.Exec(ctx, `DELETE FROM app_config`)
	if err != nil {
		return 0, fmt.Errorf("%s - delete failed: %w", clearLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Cleared %d config values", clearLogPrefix, tag.RowsAffected()))
	return tag.RowsAffected(), nil
}
