// Package dispatcher runs registered command handlers for incoming CALL envelopes
// and streams their outcomes back as RESULT, ERROR and COMPLETE envelopes.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/transport"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher owns the command registry.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds command to h. Registering an empty name, a nil handler, or the
// same name twice is a programming error and panics.
func (d *Dispatcher) Register(command string, h Handler) {
	if command == "" {
		panic("dispatcher: empty command name")
	}
	if h == nil {
		panic(fmt.Sprintf("dispatcher: nil handler for %q", command))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[command]; exists {
		panic(fmt.Sprintf("dispatcher: command %q registered twice", command))
	}
	d.handlers[command] = h
}

// Has reports whether command is registered.
func (d *Dispatcher) Has(command string) bool {
	_, ok := d.lookup(command)
	return ok
}

// Commands returns the registered command names in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) lookup(command string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[command]
	return h, ok
}

// Serve answers calls arriving on conn until ctx is done or conn fails. Active
// invocations are cancelled when Serve returns.
func (d *Dispatcher) Serve(ctx context.Context, conn transport.Conn) error {
	session := d.NewSession(conn)
	defer session.Shutdown()

	for {
		env, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s - receive: %w", logPrefix, err)
		}
		session.Handle(ctx, env)
	}
}

// Peers fans envelopes from many callers sharing one listener into one session
// per caller. It plugs into transport.ServeNATS.
type Peers struct {
	d        *Dispatcher
	ctx      context.Context
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewPeers creates a peer table whose invocations derive from ctx.
func (d *Dispatcher) NewPeers(ctx context.Context) *Peers {
	return &Peers{d: d, ctx: ctx, sessions: make(map[string]*Session)}
}

// Handle routes env to the session of peer, creating it on first contact.
// Sessions are dropped again once they have no active invocations. Unknown
// commands are rejected without taking the peer lock, so a slow reply never
// holds up routing for other peers.
func (p *Peers) Handle(peer string, env protocol.Envelope, reply transport.Sender) {
	if call, ok := env.(*protocol.Call); ok && !p.d.Has(call.Command) {
		rejectUnknown(p.ctx, reply, call)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[peer]
	if !ok {
		if env.Kind() != protocol.KindCall {
			slog.Debug(fmt.Sprintf("%s - ignoring %s from unknown peer %s", logPrefix, protocol.Describe(env), peer))
			return
		}
		s = p.d.NewSession(reply)
		s.onIdle = func() { p.release(peer, s) }
		p.sessions[peer] = s
	}
	s.Handle(p.ctx, env)
	if s.Active() == 0 {
		delete(p.sessions, peer)
	}
}

// Len returns the number of peers with active invocations.
func (p *Peers) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Shutdown cancels every invocation of every peer.
func (p *Peers) Shutdown() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()
	for _, s := range sessions {
		s.Shutdown()
	}
}

func (p *Peers) release(peer string, s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessions[peer] == s && s.Active() == 0 {
		delete(p.sessions, peer)
	}
}
