package chat

import (
	"context"

	"github.com/morezero/void-worker/pkg/appconfig"
	"github.com/morezero/void-worker/pkg/vfs"
)

// Request is one completion round.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Tools    []vfs.Tool
}

// Reply is the model's answer to a Request: text, tool calls, or both.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// Model produces the next assistant turn. cfg carries the endpoint and key.
type Model interface {
	Complete(ctx context.Context, cfg appconfig.AppConfig, req Request) (Reply, error)
}

// ToolRunner executes the tools a model may call.
type ToolRunner interface {
	Definitions() []vfs.Tool
	Execute(ctx context.Context, name string, rawArgs []byte) map[string]any
}

// ConfigSource yields the configuration in effect.
type ConfigSource interface {
	Current() appconfig.AppConfig
}
