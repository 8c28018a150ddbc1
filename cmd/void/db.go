package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/morezero/void-worker/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the configuration schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(func(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
			migrations, err := db.LoadMigrationFiles(migrationPath)
			if err != nil {
				return fmt.Errorf("load migrations: %w", err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(db.MigrationStatus)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back one migration (forward-only; prints guidance)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(db.MigrationDown)
	},
}

var ensureDBCmd = &cobra.Command{
	Use:   "ensure-db [name]",
	Short: "Create the database if missing (default name: void_test) on the DATABASE_URL host",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbName := "void_test"
		if len(args) > 0 && args[0] != "" {
			dbName = args[0]
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateForDB(); err != nil {
			return err
		}
		targetURL, err := withDatabaseName(cfg.DatabaseURL, dbName)
		if err != nil {
			return err
		}
		if err := db.EnsureDatabase(cmd.Context(), targetURL); err != nil {
			return err
		}
		fmt.Printf("Database %q is ready.\n", dbName)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage persisted worker configuration",
}

var configClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete persisted configuration; the worker falls back to its defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(func(ctx context.Context, pool *pgxpool.Pool, _ string) error {
			n, err := db.ClearConfig(ctx, pool)
			if err != nil {
				return fmt.Errorf("clear config: %w", err)
			}
			fmt.Printf("Cleared %d persisted configuration values.\n", n)
			return nil
		})
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print persisted configuration values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(func(ctx context.Context, pool *pgxpool.Pool, _ string) error {
			entries, err := db.NewRepository(pool).List(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No persisted configuration.")
			}
			for _, e := range entries {
				fmt.Printf("%-10s %v (modified %s)\n", e.Key, e.Value, e.Modified.Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd, migrateDownCmd)
	configCmd.AddCommand(configClearCmd, configShowCmd)
}

// withPool loads config, connects to DATABASE_URL and runs fn.
func withPool(fn func(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, pool, cfg.MigrationPath)
}

// withDatabaseName replaces the database in databaseURL, keeping the query (e.g. sslmode).
func withDatabaseName(databaseURL, name string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}
