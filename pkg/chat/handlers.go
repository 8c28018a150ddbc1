package chat

import (
	"context"

	"github.com/morezero/void-worker/pkg/dispatcher"
	"github.com/morezero/void-worker/pkg/protocol"
)

// Register installs chat.message, chat.messages, chat.reset and chat.loading.
func (c *Conversation) Register(d *dispatcher.Dispatcher) {
	d.Register("chat.message", dispatcher.Func(func(ctx context.Context, text string) (any, error) {
		return nil, c.Send(ctx, text)
	}))
	d.Register("chat.messages", func(_ context.Context, _ protocol.Value) dispatcher.Outcome {
		return dispatcher.Stream(func(ctx context.Context, emit dispatcher.Emit) error {
			return c.WatchMessages(ctx, func(msgs []Message) error {
				if msgs == nil {
					msgs = []Message{}
				}
				return emit(msgs)
			})
		})
	})
	d.Register("chat.reset", func(ctx context.Context, _ protocol.Value) dispatcher.Outcome {
		c.Reset(ctx)
		return dispatcher.Single(nil)
	})
	d.Register("chat.loading", func(_ context.Context, _ protocol.Value) dispatcher.Outcome {
		return dispatcher.Stream(func(ctx context.Context, emit dispatcher.Emit) error {
			return c.WatchLoading(ctx, func(b bool) error { return emit(b) })
		})
	})
}
