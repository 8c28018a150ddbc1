package events

import "context"

// EventPublisher is the interface for publishing store change events.
type EventPublisher interface {
	PublishChanged(ctx context.Context, event *ChangedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (when COMMS is unavailable).
type NoOpPublisher struct{}

// PublishChanged is a no-op.
func (p *NoOpPublisher) PublishChanged(_ context.Context, _ *ChangedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *ChangedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *ChangedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishChanged calls the callback.
func (p *CallbackPublisher) PublishChanged(ctx context.Context, event *ChangedEvent) error {
	return p.callback(ctx, event)
}

// OrNoOp returns p, or a NoOpPublisher when p is nil.
func OrNoOp(p EventPublisher) EventPublisher {
	if p == nil {
		return &NoOpPublisher{}
	}
	return p
}
