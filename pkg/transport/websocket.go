package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morezero/void-worker/pkg/protocol"
)

const (
	wsLogPrefix     = "transport:websocket"
	wsWriteTimeout  = 10 * time.Second
	wsHandshakeTime = 10 * time.Second
)

// WebSocketConn carries one envelope per WebSocket message. JSON envelopes travel
// as text frames, CBOR envelopes as binary frames.
type WebSocketConn struct {
	ws    *websocket.Conn
	codec protocol.Codec
	queue *Queue[protocol.Envelope]
	wmu   sync.Mutex
	once  sync.Once
	done  chan struct{}
}

// NewWebSocketConn wraps an established WebSocket and starts its read loop.
func NewWebSocketConn(ws *websocket.Conn, codec protocol.Codec) *WebSocketConn {
	c := &WebSocketConn{
		ws:    ws,
		codec: codec,
		queue: NewQueue[protocol.Envelope](),
		done:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// DialWebSocket connects to a worker RPC endpoint such as ws://localhost:8080/_void/rpc.
func DialWebSocket(ctx context.Context, url string, codec protocol.Codec) (*WebSocketConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTime}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - dial %s: %w", wsLogPrefix, url, err)
	}
	return NewWebSocketConn(ws, codec), nil
}

func (c *WebSocketConn) readLoop() {
	defer c.queue.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn(fmt.Sprintf("%s - connection closed unexpectedly: %v", wsLogPrefix, err))
			}
			return
		}
		env, err := c.codec.Decode(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping undecodable message: %v", wsLogPrefix, err))
			continue
		}
		c.queue.Push(env)
	}
}

func (c *WebSocketConn) Send(ctx context.Context, env protocol.Envelope) error {
	data, err := c.codec.Encode(env)
	if err != nil {
		return err
	}
	msgType := websocket.TextMessage
	if c.codec.Name() != protocol.JSON.Name() {
		msgType = websocket.BinaryMessage
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(msgType, data); err != nil {
		return fmt.Errorf("%s - write: %w", wsLogPrefix, err)
	}
	return nil
}

func (c *WebSocketConn) Recv(ctx context.Context) (protocol.Envelope, error) {
	return c.queue.Pop(ctx)
}

// Close sends a close frame and tears down the socket.
func (c *WebSocketConn) Close() error {
	var err error
	c.once.Do(func() {
		c.wmu.Lock()
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}
