package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const codecLogPrefix = "protocol:codec"

// Codec turns envelopes into transport messages and back. One envelope per message.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Encode(env Envelope) ([]byte, error)
	Decode(data []byte) (Envelope, error)
}

// Codecs shipped with the worker.
var (
	JSON Codec = jsonCodec{}
	CBOR Codec = newCBORCodec()
)

// CodecByName returns the codec registered under name ("json" or "cbor").
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("%s - unknown wire codec %q", codecLogPrefix, name)
	}
}

// wireFields is the codec-neutral flat record every envelope maps onto.
type wireFields struct {
	ID      string
	Kind    Kind
	Command string
	Payload []byte
	Value   []byte
	Message string
}

func flatten(c Codec, env Envelope) (*wireFields, error) {
	if env == nil {
		return nil, fmt.Errorf("%s - nil envelope", codecLogPrefix)
	}
	w := &wireFields{ID: env.EnvelopeID(), Kind: env.Kind()}
	var err error
	switch e := env.(type) {
	case *Call:
		w.Command = e.Command
		w.Payload, err = e.Payload.encodeWith(c)
	case *Result:
		w.Value, err = e.Value.encodeWith(c)
		if err == nil && w.Value == nil {
			w.Value, err = c.Marshal(nil)
		}
	case *Error:
		w.Message = e.Message
	case *Close, *Complete:
	default:
		return nil, fmt.Errorf("%s - unsupported envelope %T", codecLogPrefix, env)
	}
	if err != nil {
		return nil, fmt.Errorf("%s - encode %s %s: %w", codecLogPrefix, w.Kind, w.ID, err)
	}
	return w, nil
}

func (w *wireFields) envelope(c Codec) (Envelope, error) {
	if w.ID == "" {
		return nil, fmt.Errorf("%s - envelope without id", codecLogPrefix)
	}
	switch w.Kind {
	case KindCall:
		if w.Command == "" {
			return nil, fmt.Errorf("%s - CALL %s without command", codecLogPrefix, w.ID)
		}
		return &Call{ID: w.ID, Command: w.Command, Payload: RawValue(w.Payload, c)}, nil
	case KindClose:
		return &Close{ID: w.ID}, nil
	case KindResult:
		return &Result{ID: w.ID, Value: RawValue(w.Value, c)}, nil
	case KindError:
		return &Error{ID: w.ID, Message: w.Message}, nil
	case KindComplete:
		return &Complete{ID: w.ID}, nil
	default:
		return nil, fmt.Errorf("%s - unknown envelope kind %q", codecLogPrefix, w.Kind)
	}
}

// =========================================================================
// JSON
// =========================================================================

type jsonEnvelope struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Command string          `json:"command,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Message string          `json:"message,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (c jsonCodec) Encode(env Envelope) ([]byte, error) {
	w, err := flatten(c, env)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonEnvelope{
		ID:      w.ID,
		Kind:    w.Kind,
		Command: w.Command,
		Payload: w.Payload,
		Value:   w.Value,
		Message: w.Message,
	})
}

func (c jsonCodec) Decode(data []byte) (Envelope, error) {
	var je jsonEnvelope
	if err := json.Unmarshal(data, &je); err != nil {
		return nil, fmt.Errorf("%s - decode json envelope: %w", codecLogPrefix, err)
	}
	w := &wireFields{
		ID:      je.ID,
		Kind:    je.Kind,
		Command: je.Command,
		Payload: je.Payload,
		Value:   je.Value,
		Message: je.Message,
	}
	return w.envelope(c)
}

// =========================================================================
// CBOR
// =========================================================================

type cborEnvelope struct {
	ID      string          `cbor:"id"`
	Kind    Kind            `cbor:"kind"`
	Command string          `cbor:"command,omitempty"`
	Payload cbor.RawMessage `cbor:"payload,omitempty"`
	Value   cbor.RawMessage `cbor:"value,omitempty"`
	Message string          `cbor:"message,omitempty"`
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("%s - cbor enc mode: %v", codecLogPrefix, err))
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("%s - cbor dec mode: %v", codecLogPrefix, err))
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }

func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

func (c cborCodec) Encode(env Envelope) ([]byte, error) {
	w, err := flatten(c, env)
	if err != nil {
		return nil, err
	}
	return c.enc.Marshal(cborEnvelope{
		ID:      w.ID,
		Kind:    w.Kind,
		Command: w.Command,
		Payload: w.Payload,
		Value:   w.Value,
		Message: w.Message,
	})
}

func (c cborCodec) Decode(data []byte) (Envelope, error) {
	var ce cborEnvelope
	if err := c.dec.Unmarshal(data, &ce); err != nil {
		return nil, fmt.Errorf("%s - decode cbor envelope: %w", codecLogPrefix, err)
	}
	w := &wireFields{
		ID:      ce.ID,
		Kind:    ce.Kind,
		Command: ce.Command,
		Payload: ce.Payload,
		Value:   ce.Value,
		Message: ce.Message,
	}
	return w.envelope(c)
}
