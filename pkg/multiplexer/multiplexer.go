// Package multiplexer issues concurrent calls over one transport connection and
// routes every response envelope back to the call that owns its id.
package multiplexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/transport"
)

const (
	logPrefix    = "multiplexer:client"
	idLength     = 8
	closeTimeout = 5 * time.Second
)

// ErrClosed is returned by Call once the multiplexer has stopped.
var ErrClosed = errors.New("multiplexer: closed")

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithIDGenerator replaces the nanoid generator for call ids.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(m *Multiplexer) { m.newID = gen }
}

// Multiplexer owns one connection and its pending-call table.
type Multiplexer struct {
	conn  transport.Conn
	newID func() (string, error)

	mu      sync.Mutex
	pending map[string]*Call
	closed  bool
	done    chan struct{}
}

// New creates a multiplexer over conn. Run must be started for responses to arrive.
func New(conn transport.Conn, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		conn:    conn,
		newID:   func() (string, error) { return gonanoid.New(idLength) },
		pending: make(map[string]*Call),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run receives envelopes and hands each to its pending call until ctx is done or
// the connection closes. On return every pending call is ended with ErrClosed.
func (m *Multiplexer) Run(ctx context.Context) error {
	defer m.shutdown()

	for {
		env, err := m.conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s - receive: %w", logPrefix, err)
		}
		m.route(env)
	}
}

// Done is closed once Run has returned.
func (m *Multiplexer) Done() <-chan struct{} {
	return m.done
}

// Close closes the underlying connection, which stops Run.
func (m *Multiplexer) Close() error {
	return m.conn.Close()
}

// Pending returns the number of calls still registered.
func (m *Multiplexer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Multiplexer) route(env protocol.Envelope) {
	switch env.Kind() {
	case protocol.KindResult, protocol.KindError, protocol.KindComplete:
	default:
		slog.Debug(fmt.Sprintf("%s - ignoring %s", logPrefix, protocol.Describe(env)))
		return
	}

	m.mu.Lock()
	c, ok := m.pending[env.EnvelopeID()]
	m.mu.Unlock()
	if !ok {
		slog.Debug(fmt.Sprintf("%s - dropping %s for unknown call", logPrefix, protocol.Describe(env)))
		return
	}
	c.inbox.Push(env)
}

func (m *Multiplexer) shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	calls := make([]*Call, 0, len(m.pending))
	for _, c := range m.pending {
		calls = append(calls, c)
	}
	m.mu.Unlock()

	for _, c := range calls {
		c.release()
	}
	close(m.done)
}

// Call starts command on the remote side. The returned call must be drained with
// Next or ended with Close.
func (m *Multiplexer) Call(ctx context.Context, command string, payload any) (*Call, error) {
	if command == "" {
		return nil, errors.New("multiplexer: empty command")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	id, err := m.uniqueID()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	c := &Call{
		m:       m,
		id:      id,
		command: command,
		inbox:   transport.NewQueue[protocol.Envelope](),
	}
	m.pending[id] = c
	m.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - %s: CALL %s", logPrefix, id, command))
	if err := m.conn.Send(ctx, protocol.NewCall(id, command, payload)); err != nil {
		// The CALL never left, so there is nothing to CLOSE.
		c.closeOnce.Do(func() {})
		m.remove(id, c)
		c.inbox.Close()
		if errors.Is(err, transport.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%s - send CALL %s: %w", logPrefix, command, err)
	}
	return c, nil
}

// uniqueID must be called with m.mu held.
func (m *Multiplexer) uniqueID() (string, error) {
	for attempt := 0; attempt < 16; attempt++ {
		id, err := m.newID()
		if err != nil {
			return "", fmt.Errorf("%s - generate id: %w", logPrefix, err)
		}
		if _, taken := m.pending[id]; !taken && id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%s - could not allocate a unique call id", logPrefix)
}

func (m *Multiplexer) remove(id string, c *Call) {
	m.mu.Lock()
	if m.pending[id] == c {
		delete(m.pending, id)
	}
	m.mu.Unlock()
}

func (m *Multiplexer) sendClose(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := m.conn.Send(ctx, protocol.NewClose(id)); err != nil {
		slog.Debug(fmt.Sprintf("%s - %s: CLOSE not delivered: %v", logPrefix, id, err))
	}
}
