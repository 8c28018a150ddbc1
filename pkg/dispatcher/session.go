package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/transport"
)

// Session is the invocation table for one caller.
type Session struct {
	d      *Dispatcher
	sender transport.Sender
	onIdle func()

	mu     sync.Mutex
	active map[string]*invocation
	closed bool
}

// NewSession creates a session whose envelopes go out through sender.
func (d *Dispatcher) NewSession(sender transport.Sender) *Session {
	return &Session{d: d, sender: sender, active: make(map[string]*invocation)}
}

// Active returns the number of running invocations.
func (s *Session) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Handle processes one inbound envelope. CALL starts an invocation, CLOSE cancels
// the matching one, and everything else is ignored. Handle never blocks on a handler.
func (s *Session) Handle(ctx context.Context, env protocol.Envelope) {
	switch e := env.(type) {
	case *protocol.Call:
		s.start(ctx, e)
	case *protocol.Close:
		s.cancel(e.ID)
	default:
		slog.Debug(fmt.Sprintf("%s - ignoring %s", logPrefix, protocol.Describe(env)))
	}
}

// Shutdown cancels every active invocation. Their pending output is suppressed.
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.closed = true
	invs := s.active
	s.active = make(map[string]*invocation)
	s.mu.Unlock()
	for _, inv := range invs {
		inv.close()
	}
}

func (s *Session) start(ctx context.Context, call *protocol.Call) {
	h, ok := s.d.lookup(call.Command)
	if !ok {
		rejectUnknown(ctx, s.sender, call)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, dup := s.active[call.ID]; dup {
		s.mu.Unlock()
		slog.Warn(fmt.Sprintf("%s - %s: duplicate in-flight id, call dropped", logPrefix, call.ID))
		return
	}
	invCtx, cancel := context.WithCancel(ctx)
	inv := &invocation{id: call.ID, command: call.Command, cancel: cancel, sender: s.sender}
	s.active[call.ID] = inv
	s.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - %s: CALL %s", logPrefix, call.ID, call.Command))
	go s.run(invCtx, inv, h, call.Payload)
}

// rejectUnknown answers a CALL for an unregistered command with ERROR.
func rejectUnknown(ctx context.Context, sender transport.Sender, call *protocol.Call) {
	slog.Warn(fmt.Sprintf("%s - %s: unknown command %q", logPrefix, call.ID, call.Command))
	msg := fmt.Sprintf("%s: %s", ErrUnknownCommand, call.Command)
	if err := sender.Send(ctx, protocol.NewError(call.ID, msg)); err != nil {
		slog.Warn(fmt.Sprintf("%s - %s: failed to send error: %v", logPrefix, call.ID, err))
	}
}

func (s *Session) cancel(id string) {
	s.mu.Lock()
	inv, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	s.mu.Unlock()
	if !ok {
		slog.Debug(fmt.Sprintf("%s - %s: CLOSE for inactive call ignored", logPrefix, id))
		return
	}
	slog.Debug(fmt.Sprintf("%s - %s: CLOSE", logPrefix, id))
	inv.close()
}

func (s *Session) finish(inv *invocation) {
	inv.cancel()
	s.mu.Lock()
	if s.active[inv.id] == inv {
		delete(s.active, inv.id)
	}
	idle := len(s.active) == 0
	s.mu.Unlock()
	if idle && s.onIdle != nil {
		s.onIdle()
	}
}

func (s *Session) run(ctx context.Context, inv *invocation, h Handler, payload protocol.Value) {
	defer s.finish(inv)

	out := invoke(ctx, inv, func() Outcome { return h(ctx, payload) })
	switch out.kind {
	case outcomeSingle:
		if err := inv.emit(ctx, protocol.NewResult(inv.id, out.value)); err != nil {
			inv.fail(ctx, err)
			return
		}
		inv.complete(ctx)
	case outcomeStream:
		res := invoke(ctx, inv, func() Outcome {
			if err := out.stream(ctx, inv.emitValue(ctx)); err != nil {
				return Fail(err)
			}
			return Outcome{kind: outcomeSingle}
		})
		if res.kind == outcomeFail {
			inv.fail(ctx, res.err)
			return
		}
		inv.complete(ctx)
	case outcomeFail:
		inv.fail(ctx, out.err)
	}
}

// invoke runs fn and turns a panic into a failed outcome.
func invoke(ctx context.Context, inv *invocation, fn func() Outcome) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - %s: handler %s panicked: %v\n%s", logPrefix, inv.id, inv.command, r, debug.Stack()))
			out = Fail(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return fn()
}

// invocation tracks one running handler. Emission is serialized by mu; closed is
// set before cancel so anything emitted after a CLOSE is suppressed.
type invocation struct {
	id      string
	command string
	cancel  context.CancelFunc
	sender  transport.Sender

	closed   atomic.Bool
	mu       sync.Mutex
	finished bool
}

func (inv *invocation) close() {
	inv.closed.Store(true)
	inv.cancel()
}

func (inv *invocation) emit(ctx context.Context, env protocol.Envelope) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.closed.Load() || inv.finished {
		return ErrCancelled
	}
	if env.Kind().Terminal() {
		inv.finished = true
	}
	return inv.sender.Send(ctx, env)
}

func (inv *invocation) emitValue(ctx context.Context) Emit {
	return func(v any) error {
		return inv.emit(ctx, protocol.NewResult(inv.id, v))
	}
}

func (inv *invocation) complete(ctx context.Context) {
	if err := inv.emit(ctx, protocol.NewComplete(inv.id)); err != nil && !errors.Is(err, ErrCancelled) {
		slog.Warn(fmt.Sprintf("%s - %s: failed to send COMPLETE: %v", logPrefix, inv.id, err))
	}
}

func (inv *invocation) fail(ctx context.Context, err error) {
	if errors.Is(err, ErrCancelled) || inv.closed.Load() {
		return
	}
	slog.Debug(fmt.Sprintf("%s - %s: %s failed: %v", logPrefix, inv.id, inv.command, err))
	if sendErr := inv.emit(ctx, protocol.NewError(inv.id, err.Error())); sendErr != nil && !errors.Is(sendErr, ErrCancelled) {
		slog.Warn(fmt.Sprintf("%s - %s: failed to send ERROR: %v", logPrefix, inv.id, sendErr))
	}
}
