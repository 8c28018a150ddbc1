// Package transport carries protocol envelopes over an ordered, message-oriented channel.
//
// Every implementation delivers whole envelopes in send order per direction and
// serializes concurrent Send calls. None of them retry dropped messages.
package transport

import (
	"context"
	"errors"

	"github.com/morezero/void-worker/pkg/protocol"
)

// ErrClosed is returned once a connection has been closed.
var ErrClosed = errors.New("transport: connection closed")

// Sender delivers envelopes to the remote side.
type Sender interface {
	Send(ctx context.Context, env protocol.Envelope) error
}

// Conn is a bidirectional point-to-point envelope channel.
type Conn interface {
	Sender
	// Recv blocks until the next envelope arrives, ctx is done, or the connection closes.
	Recv(ctx context.Context) (protocol.Envelope, error)
	Close() error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, env protocol.Envelope) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, env protocol.Envelope) error {
	return f(ctx, env)
}
