package db

import "time"

// ConfigEntry is one persisted configuration field. Value holds the decoded
// JSONB column, so numbers come back as float64.
type ConfigEntry struct {
	Key      string
	Value    any
	Modified time.Time
}
