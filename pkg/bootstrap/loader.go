package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/morezero/void-worker/pkg/overrides"
	"github.com/morezero/void-worker/pkg/router"
	"github.com/morezero/void-worker/pkg/vfs"
)

const logPrefix = "bootstrap:loader"

// LoadDefaults loads defaults from file paths or environment.
// It tries paths in order: first any paths passed in, then DEFAULTS_FILE env, then
// config/defaults.json and defaults.json. Unreadable or invalid files are skipped.
func LoadDefaults(paths ...string) (*Defaults, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("DEFAULTS_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/defaults.json", "defaults.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var d Defaults
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse defaults file %s: %v", logPrefix, p, err))
			continue
		}
		if err := d.AppConfig().Validate(); err != nil {
			slog.Warn(fmt.Sprintf("%s - Ignoring defaults file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded defaults from %s", logPrefix, p))
		return &d, nil
	}

	slog.Info(fmt.Sprintf("%s - Using built-in defaults", logPrefix))
	return BuiltIn(), nil
}

// BuiltIn returns the fallback defaults: stock configuration, nothing preloaded.
func BuiltIn() *Defaults {
	return &Defaults{
		Name:    "void-defaults",
		Version: "1.0.0",
	}
}

// MergeDefaults layers override on top of base.
func MergeDefaults(base, override *Defaults) *Defaults {
	merged := *base

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}

	c := base.Config
	if override.Config.APIURL != nil {
		c.APIURL = override.Config.APIURL
	}
	if override.Config.APIKey != nil {
		c.APIKey = override.Config.APIKey
	}
	if override.Config.Model != nil {
		c.Model = override.Config.Model
	}
	if override.Config.MaxSteps != nil {
		c.MaxSteps = override.Config.MaxSteps
	}
	merged.Config = c

	merged.Files = make(map[string]string, len(base.Files)+len(override.Files))
	for p, content := range base.Files {
		merged.Files[p] = content
	}
	for p, content := range override.Files {
		merged.Files[p] = content
	}

	merged.Overrides = make(map[string]OverrideSeed, len(base.Overrides)+len(override.Overrides))
	for u, o := range base.Overrides {
		merged.Overrides[u] = o
	}
	for u, o := range override.Overrides {
		merged.Overrides[u] = o
	}
	return &merged
}

// Seed writes d.Files that do not exist yet into fs and installs d.Overrides
// into store. Either target may be nil.
func Seed(ctx context.Context, d *Defaults, fs *vfs.FS, store *overrides.Store) error {
	if fs != nil {
		names := make([]string, 0, len(d.Files))
		for name := range d.Files {
			names = append(names, name)
		}
		sort.Strings(names)

		written := 0
		for _, name := range names {
			if _, err := fs.Stat(name); err == nil {
				continue
			}
			if err := fs.WriteFile(ctx, name, []byte(d.Files[name])); err != nil {
				return fmt.Errorf("%s - seed file %s: %w", logPrefix, name, err)
			}
			written++
		}
		if written > 0 {
			slog.Info(fmt.Sprintf("%s - Seeded %d files", logPrefix, written))
		}
	}

	if store != nil {
		for u, o := range d.Overrides {
			typ := o.Type
			if typ == "" {
				typ = "application/octet-stream"
			}
			store.Put(router.Normalize(u), overrides.Blob{Data: []byte(o.Data), Type: typ})
		}
		if len(d.Overrides) > 0 {
			slog.Info(fmt.Sprintf("%s - Seeded %d overrides", logPrefix, len(d.Overrides)))
		}
	}
	return nil
}
