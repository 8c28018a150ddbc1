package db

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const migrationsLogPrefix = "db:migrations"

// Migration is one forward-only schema step. Version is the file name without
// its .sql extension and orders migrations lexically.
type Migration struct {
	Version string
	SQL     string
}

// LoadMigrations reads every .sql file in dir on fsys, sorted by version.
func LoadMigrations(fsys afero.Fs, dir string) ([]Migration, error) {
	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var out []Migration
	for _, info := range infos {
		if info.IsDir() || path.Ext(info.Name()) != ".sql" {
			continue
		}
		name := path.Join(dir, info.Name())
		data, err := afero.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, name, err)
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(info.Name(), ".sql"),
			SQL:     string(data),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })

	slog.Debug(fmt.Sprintf("%s - Loaded %d migrations from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

// LoadMigrationFiles reads migrations from dir on the local disk.
func LoadMigrationFiles(dir string) ([]Migration, error) {
	return LoadMigrations(afero.NewOsFs(), dir)
}

// pending returns the migrations whose version is not in applied, in order.
func pending(all []Migration, applied map[string]bool) []Migration {
	var out []Migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}
