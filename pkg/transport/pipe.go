package transport

import (
	"context"
	"sync"

	"github.com/morezero/void-worker/pkg/protocol"
)

const pipeBuffer = 256

// Pipe returns two connected in-process connections. Envelopes are encoded with
// codec on Send and decoded on Recv, so payloads that cannot be serialized fail
// here exactly as they would on a real wire.
func Pipe(codec protocol.Codec) (Conn, Conn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	shared := &pipeState{done: make(chan struct{})}
	a := &pipeConn{codec: codec, in: ba, out: ab, state: shared}
	b := &pipeConn{codec: codec, in: ab, out: ba, state: shared}
	return a, b
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

type pipeConn struct {
	codec protocol.Codec
	in    <-chan []byte
	out   chan<- []byte
	state *pipeState
	mu    sync.Mutex
}

func (p *pipeConn) Send(ctx context.Context, env protocol.Envelope) error {
	data, err := p.codec.Encode(env)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.state.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Recv(ctx context.Context) (protocol.Envelope, error) {
	select {
	case data := <-p.in:
		return p.codec.Decode(data)
	case <-p.state.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes both ends.
func (p *pipeConn) Close() error {
	p.state.once.Do(func() { close(p.state.done) })
	return nil
}
