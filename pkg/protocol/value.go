package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

const valueLogPrefix = "protocol:value"

// Value is an opaque, serializable payload carried by CALL and RESULT envelopes.
// A locally built Value holds a Go value; a received Value holds the encoded
// bytes together with the codec able to decode them.
type Value struct {
	local any
	set   bool
	raw   []byte
	codec Codec
}

// ValueOf wraps a Go value. A nil v produces a present-but-null value.
func ValueOf(v any) Value {
	if pv, ok := v.(Value); ok {
		return pv
	}
	return Value{local: v, set: true}
}

// RawValue wraps bytes produced by codec c.
func RawValue(raw []byte, c Codec) Value {
	if len(raw) == 0 {
		return Value{}
	}
	return Value{raw: raw, codec: c}
}

// Present reports whether the envelope carried a value at all.
func (v Value) Present() bool {
	return v.set || len(v.raw) > 0
}

// IsZero reports whether the value is absent or null.
func (v Value) IsZero() bool {
	if !v.Present() {
		return true
	}
	if v.set {
		if v.local == nil {
			return true
		}
		rv := reflect.ValueOf(v.local)
		switch rv.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
			return rv.IsNil()
		}
		return false
	}
	var out any
	if err := v.codec.Unmarshal(v.raw, &out); err != nil {
		return false
	}
	return out == nil
}

// Decode stores the value into out, which must be a non-nil pointer.
// Absent values leave out untouched.
func (v Value) Decode(out any) error {
	if out == nil {
		return errors.New("protocol: Decode target is nil")
	}
	if len(v.raw) > 0 {
		if err := v.codec.Unmarshal(v.raw, out); err != nil {
			return fmt.Errorf("%s - decode %s value: %w", valueLogPrefix, v.codec.Name(), err)
		}
		return nil
	}
	if !v.set {
		return nil
	}
	if p, ok := out.(*any); ok {
		*p = v.local
		return nil
	}
	data, err := json.Marshal(v.local)
	if err != nil {
		return fmt.Errorf("%s - marshal local value: %w", valueLogPrefix, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s - decode local value: %w", valueLogPrefix, err)
	}
	return nil
}

// Interface returns the value as a generic Go value.
func (v Value) Interface() (any, error) {
	if v.set {
		return v.local, nil
	}
	var out any
	if err := v.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Raw returns the encoded bytes of a received value, or nil for a local one.
func (v Value) Raw() []byte {
	return v.raw
}

// MarshalJSON renders the value as JSON regardless of the codec it arrived with.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) > 0 && v.codec != nil && v.codec.Name() == JSON.Name() {
		return v.raw, nil
	}
	out, err := v.Interface()
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// encodeWith produces the bytes for v under codec c. It returns nil for an absent value.
func (v Value) encodeWith(c Codec) ([]byte, error) {
	if len(v.raw) > 0 {
		if v.codec != nil && v.codec.Name() == c.Name() {
			return v.raw, nil
		}
		out, err := v.Interface()
		if err != nil {
			return nil, err
		}
		return c.Marshal(out)
	}
	if !v.set {
		return nil, nil
	}
	return c.Marshal(v.local)
}
