// Package chat runs the assistant conversation: it keeps the message history,
// asks the model for the next turn and executes the filesystem tools it calls.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/void-worker/pkg/events"
	"github.com/morezero/void-worker/pkg/watch"
)

const logPrefix = "chat:conversation"

// Conversation is the single shared chat. Messages are only ever appended or
// reset, and each Send holds the conversation until the model is done.
type Conversation struct {
	model     Model
	tools     ToolRunner
	config    ConfigSource
	publisher events.EventPublisher

	send     sync.Mutex
	messages *watch.Value[[]Message]
	loading  *watch.Value[bool]
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithTools offers tools to the model.
func WithTools(tools ToolRunner) Option {
	return func(c *Conversation) { c.tools = tools }
}

// WithPublisher reports conversation changes.
func WithPublisher(p events.EventPublisher) Option {
	return func(c *Conversation) { c.publisher = events.OrNoOp(p) }
}

// NewConversation creates an empty conversation.
func NewConversation(model Model, config ConfigSource, opts ...Option) *Conversation {
	c := &Conversation{
		model:     model,
		config:    config,
		publisher: &events.NoOpPublisher{},
		messages:  watch.New[[]Message](nil),
		loading:   watch.New(false),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Messages returns the current history.
func (c *Conversation) Messages() []Message {
	return c.messages.Get()
}

// Loading reports whether a Send is waiting on the model.
func (c *Conversation) Loading() bool {
	return c.loading.Get()
}

// WatchMessages emits the history now and after every change.
func (c *Conversation) WatchMessages(ctx context.Context, emit func([]Message) error) error {
	return c.messages.Stream(ctx, emit)
}

// WatchLoading emits the loading flag now and after every change.
func (c *Conversation) WatchLoading(ctx context.Context, emit func(bool) error) error {
	return c.loading.Stream(ctx, emit)
}

// Reset drops the history.
func (c *Conversation) Reset(ctx context.Context) {
	c.messages.Set(nil)
	slog.Info(fmt.Sprintf("%s - Conversation reset", logPrefix))
	c.notify(ctx, events.OpReset)
}

// Send appends text as a user message and runs model turns until the model
// answers without tool calls or the configured step limit is reached.
func (c *Conversation) Send(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("message is required")
	}
	c.send.Lock()
	defer c.send.Unlock()

	c.loading.Set(true)
	defer c.loading.Set(false)

	cfg := c.config.Current()
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxSteps := cfg.MaxSteps
	if maxSteps < 1 {
		maxSteps = 1
	}

	slog.Info(fmt.Sprintf("%s - Sending message (%d chars) to %s", logPrefix, len(text), model))
	c.append(ctx, newMessage(RoleUser, text))

	req := Request{Model: model, System: SystemPrompt}
	if c.tools != nil {
		req.Tools = c.tools.Definitions()
	}

	for step := 1; step <= maxSteps; step++ {
		req.Messages = c.messages.Get()
		reply, err := c.model.Complete(ctx, cfg, req)
		if err != nil {
			return fmt.Errorf("%s - step %d: %w", logPrefix, step, err)
		}

		msg := newMessage(RoleAssistant, reply.Content)
		msg.ToolCalls = reply.ToolCalls
		c.append(ctx, msg)

		if len(reply.ToolCalls) == 0 || c.tools == nil {
			return nil
		}
		for _, call := range reply.ToolCalls {
			c.append(ctx, c.runTool(ctx, call))
		}
	}
	slog.Warn(fmt.Sprintf("%s - Stopped after %d steps", logPrefix, maxSteps))
	return nil
}

func (c *Conversation) runTool(ctx context.Context, call ToolCall) Message {
	result := c.tools.Execute(ctx, call.Name, []byte(call.Arguments))
	data, err := json.Marshal(result)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()))
	}
	slog.Debug(fmt.Sprintf("%s - Tool %s returned %s", logPrefix, call.Name, data))
	msg := newMessage(RoleTool, string(data))
	msg.ToolCallID = call.ID
	return msg
}

func (c *Conversation) append(ctx context.Context, msg Message) {
	c.messages.Update(func(cur []Message) []Message {
		next := make([]Message, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, msg)
	})
	c.notify(ctx, events.OpAdd, msg.ID)
}

func (c *Conversation) notify(ctx context.Context, op string, keys ...string) {
	if err := c.publisher.PublishChanged(ctx, events.NewChangedEvent(events.StoreChat, op, keys...)); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event: %v", logPrefix, op, err))
	}
}
