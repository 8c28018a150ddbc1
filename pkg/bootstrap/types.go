// Package bootstrap loads the worker's startup defaults: configuration values
// plus files and overrides to preload before the first request.
package bootstrap

import (
	"github.com/morezero/void-worker/pkg/appconfig"
)

// OverrideSeed is an override blob given as text.
type OverrideSeed struct {
	Data string `json:"data"`
	Type string `json:"type,omitempty"`
}

// Defaults is the content of a defaults file.
type Defaults struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Config  appconfig.Patch `json:"config"`
	// Files maps VFS paths to text content. Existing files are never overwritten.
	Files map[string]string `json:"files,omitempty"`
	// Overrides maps request URLs to blobs installed in the override store.
	Overrides map[string]OverrideSeed `json:"overrides,omitempty"`
}

// AppConfig returns the built-in configuration with d.Config applied.
func (d *Defaults) AppConfig() appconfig.AppConfig {
	return appconfig.Defaults().Apply(d.Config)
}
