// Package protocol defines the envelopes exchanged between a multiplexer and a dispatcher.
package protocol

import "fmt"

// Kind tags an envelope on the wire.
type Kind string

const (
	KindCall     Kind = "CALL"
	KindClose    Kind = "CLOSE"
	KindResult   Kind = "RESULT"
	KindError    Kind = "ERROR"
	KindComplete Kind = "COMPLETE"
)

// Terminal reports whether the kind ends a call.
func (k Kind) Terminal() bool {
	return k == KindError || k == KindComplete
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCall, KindClose, KindResult, KindError, KindComplete:
		return true
	}
	return false
}

// Envelope is one discrete protocol message. The set of implementations is closed:
// *Call, *Close, *Result, *Error and *Complete.
type Envelope interface {
	EnvelopeID() string
	Kind() Kind
	envelope()
}

// Call asks the remote side to run Command with Payload.
type Call struct {
	ID      string
	Command string
	Payload Value
}

// Close tells the dispatcher the initiator stopped observing ID.
type Close struct {
	ID string
}

// Result carries one value produced by a running call.
type Result struct {
	ID    string
	Value Value
}

// Error terminates a call with a failure.
type Error struct {
	ID      string
	Message string
}

// Complete terminates a call normally.
type Complete struct {
	ID string
}

func (e *Call) EnvelopeID() string     { return e.ID }
func (e *Close) EnvelopeID() string    { return e.ID }
func (e *Result) EnvelopeID() string   { return e.ID }
func (e *Error) EnvelopeID() string    { return e.ID }
func (e *Complete) EnvelopeID() string { return e.ID }

func (*Call) Kind() Kind     { return KindCall }
func (*Close) Kind() Kind    { return KindClose }
func (*Result) Kind() Kind   { return KindResult }
func (*Error) Kind() Kind    { return KindError }
func (*Complete) Kind() Kind { return KindComplete }

func (*Call) envelope()     {}
func (*Close) envelope()    {}
func (*Result) envelope()   {}
func (*Error) envelope()    {}
func (*Complete) envelope() {}

// NewCall builds a CALL envelope with a locally held payload.
func NewCall(id, command string, payload any) *Call {
	return &Call{ID: id, Command: command, Payload: ValueOf(payload)}
}

// NewClose builds a CLOSE envelope.
func NewClose(id string) *Close {
	return &Close{ID: id}
}

// NewResult builds a RESULT envelope with a locally held value.
func NewResult(id string, v any) *Result {
	return &Result{ID: id, Value: ValueOf(v)}
}

// NewError builds an ERROR envelope.
func NewError(id, message string) *Error {
	return &Error{ID: id, Message: message}
}

// NewComplete builds a COMPLETE envelope.
func NewComplete(id string) *Complete {
	return &Complete{ID: id}
}

// Describe renders an envelope for logs.
func Describe(env Envelope) string {
	switch e := env.(type) {
	case *Call:
		return fmt.Sprintf("%s id=%s command=%s", KindCall, e.ID, e.Command)
	case *Error:
		return fmt.Sprintf("%s id=%s message=%q", KindError, e.ID, e.Message)
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%s id=%s", env.Kind(), env.EnvelopeID())
	}
}
