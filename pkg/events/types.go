// Package events defines change events for the worker's mutable stores and the
// publishers that broadcast them.
package events

import "time"

// Store names used in change events.
const (
	StoreOverrides = "overrides"
	StoreFS        = "fs"
	StoreConfig    = "config"
	StoreChat      = "chat"
)

// Operations reported in change events.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpClear  = "clear"
	OpWrite  = "write"
	OpUpdate = "update"
	OpReset  = "reset"
)

// ChangedEvent is emitted after a store mutation. Keys lists the affected keys
// (URLs, paths or config fields) and is empty for whole-store operations.
type ChangedEvent struct {
	Store     string   `json:"store"`
	Op        string   `json:"op"`
	Keys      []string `json:"keys,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// NewChangedEvent builds an event stamped with the current UTC time.
func NewChangedEvent(store, op string, keys ...string) *ChangedEvent {
	return &ChangedEvent{
		Store:     store,
		Op:        op,
		Keys:      keys,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
