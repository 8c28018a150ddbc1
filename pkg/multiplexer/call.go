package multiplexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/transport"
)

// RemoteError is the message of an ERROR envelope.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// Call is one in-flight command. Next and Value are for a single consumer; Close
// may be called from any goroutine.
type Call struct {
	m       *Multiplexer
	id      string
	command string
	inbox   *transport.Queue[protocol.Envelope]

	closeOnce sync.Once
	cancelled atomic.Bool

	value protocol.Value
	err   error
	done  bool
}

// ID returns the correlation id.
func (c *Call) ID() string {
	return c.id
}

// Command returns the command name.
func (c *Call) Command() string {
	return c.command
}

// Next waits for the next result. It returns false once the call has completed,
// failed, been closed, or ctx is done; Err tells which.
func (c *Call) Next(ctx context.Context) bool {
	if c.done {
		return false
	}
	if c.cancelled.Load() {
		c.finish()
		return false
	}

	env, err := c.inbox.Pop(ctx)
	if err == nil && c.cancelled.Load() {
		err = transport.ErrClosed
	}
	if err != nil {
		switch {
		case c.cancelled.Load():
		case errors.Is(err, transport.ErrClosed):
			c.err = ErrClosed
		default:
			c.err = err
		}
		c.finish()
		return false
	}

	switch e := env.(type) {
	case *protocol.Result:
		c.value = e.Value
		return true
	case *protocol.Error:
		c.err = &RemoteError{Command: c.command, Message: e.Message}
	case *protocol.Complete:
	}
	c.finish()
	return false
}

// Value returns the result made current by the last successful Next.
func (c *Call) Value() protocol.Value {
	return c.value
}

// Decode decodes the current result into out.
func (c *Call) Decode(out any) error {
	return c.value.Decode(out)
}

// Err returns the error that ended the call, or nil for a normal completion or Close.
func (c *Call) Err() error {
	return c.err
}

// Close stops observing the call and tells the remote side to stop producing.
// It is safe to call more than once.
func (c *Call) Close() error {
	c.cancelled.Store(true)
	c.release()
	return nil
}

func (c *Call) finish() {
	c.done = true
	c.value = protocol.Value{}
	c.release()
}

// release unregisters the call and sends its CLOSE, once.
func (c *Call) release() {
	c.closeOnce.Do(func() {
		c.m.remove(c.id, c)
		c.inbox.Close()
		c.m.sendClose(c.id)
	})
}
