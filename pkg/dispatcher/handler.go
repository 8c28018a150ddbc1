package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/morezero/void-worker/pkg/protocol"
)

// ErrCancelled is returned by Emit once the caller has closed the call.
var ErrCancelled = errors.New("dispatcher: invocation cancelled")

// ErrUnknownCommand is wrapped into the error reported for unregistered commands.
var ErrUnknownCommand = errors.New("unknown command")

// Handler runs one command invocation. ctx is cancelled when the caller sends CLOSE.
type Handler func(ctx context.Context, payload protocol.Value) Outcome

// Emit publishes one RESULT for the running invocation.
type Emit func(v any) error

// StreamFunc produces a sequence of results. Returning nil completes the call;
// returning an error fails it.
type StreamFunc func(ctx context.Context, emit Emit) error

type outcomeKind int

const (
	outcomeSingle outcomeKind = iota
	outcomeStream
	outcomeFail
)

// Outcome is what a handler hands back: one value, a stream, or a failure.
type Outcome struct {
	kind   outcomeKind
	value  any
	stream StreamFunc
	err    error
}

// Single completes the call with exactly one result.
func Single(v any) Outcome {
	return Outcome{kind: outcomeSingle, value: v}
}

// Stream completes the call with whatever fn emits.
func Stream(fn StreamFunc) Outcome {
	if fn == nil {
		return Fail(errors.New("nil stream"))
	}
	return Outcome{kind: outcomeStream, stream: fn}
}

// Fail ends the call with an ERROR envelope.
func Fail(err error) Outcome {
	if err == nil {
		err = errors.New("unspecified failure")
	}
	return Outcome{kind: outcomeFail, err: err}
}

// Failf is Fail with a formatted message.
func Failf(format string, args ...any) Outcome {
	return Fail(fmt.Errorf(format, args...))
}

// Func adapts a typed request/response function to a Handler. The payload is
// decoded into In; a decode failure fails the call.
func Func[In any](fn func(ctx context.Context, in In) (any, error)) Handler {
	return func(ctx context.Context, payload protocol.Value) Outcome {
		var in In
		if err := payload.Decode(&in); err != nil {
			return Failf("invalid payload: %v", err)
		}
		out, err := fn(ctx, in)
		if err != nil {
			return Fail(err)
		}
		return Single(out)
	}
}
