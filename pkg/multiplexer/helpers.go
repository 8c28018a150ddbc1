package multiplexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/semver"
)

// ErrNoResult is returned by Invoke when the call completed without any result.
var ErrNoResult = errors.New("multiplexer: call completed without a result")

// Invoke runs command, decodes its first result into out (which may be nil) and
// closes the call without waiting for the rest.
func (m *Multiplexer) Invoke(ctx context.Context, command string, payload, out any) error {
	call, err := m.Call(ctx, command, payload)
	if err != nil {
		return err
	}
	defer call.Close()

	if !call.Next(ctx) {
		if err := call.Err(); err != nil {
			return err
		}
		return ErrNoResult
	}
	if out == nil {
		return nil
	}
	return call.Decode(out)
}

// Collect runs command to completion and returns every result in order.
func (m *Multiplexer) Collect(ctx context.Context, command string, payload any) ([]protocol.Value, error) {
	call, err := m.Call(ctx, command, payload)
	if err != nil {
		return nil, err
	}
	defer call.Close()

	var values []protocol.Value
	for call.Next(ctx) {
		values = append(values, call.Value())
	}
	return values, call.Err()
}

// WorkerInfo describes a worker as reported by its worker.info command.
type WorkerInfo struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Commands []string `json:"commands"`
}

// Handshake asks the worker for its info and checks its protocol version
// against this side's compatibility range.
func (m *Multiplexer) Handshake(ctx context.Context) (*WorkerInfo, error) {
	var info WorkerInfo
	if err := m.Invoke(ctx, "worker.info", nil, &info); err != nil {
		return nil, fmt.Errorf("%s - worker.info: %w", logPrefix, err)
	}
	if err := semver.CheckCompatible(info.Version, protocol.Compatible); err != nil {
		return &info, err
	}
	return &info, nil
}
