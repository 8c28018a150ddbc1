package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morezero/void-worker/pkg/protocol"
)

// echoServer answers every CALL with RESULT(command) followed by COMPLETE.
func echoServer(t *testing.T, codec protocol.Codec) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("transport:websocket_test - upgrade: %v", err)
			return
		}
		conn := NewWebSocketConn(ws, codec)
		defer conn.Close()
		ctx := context.Background()
		for {
			env, err := conn.Recv(ctx)
			if err != nil {
				return
			}
			if call, ok := env.(*protocol.Call); ok {
				conn.Send(ctx, protocol.NewResult(call.ID, call.Command))
				conn.Send(ctx, protocol.NewComplete(call.ID))
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocket_RoundTrip(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.JSON, protocol.CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			srv := echoServer(t, codec)
			url := "ws" + strings.TrimPrefix(srv.URL, "http")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			conn, err := DialWebSocket(ctx, url, codec)
			if err != nil {
				t.Fatalf("transport:websocket_test - dial: %v", err)
			}
			defer conn.Close()

			if err := conn.Send(ctx, protocol.NewCall("w1", "hello", nil)); err != nil {
				t.Fatalf("transport:websocket_test - send: %v", err)
			}
			env, err := conn.Recv(ctx)
			if err != nil {
				t.Fatalf("transport:websocket_test - recv: %v", err)
			}
			var cmd string
			if err := env.(*protocol.Result).Value.Decode(&cmd); err != nil || cmd != "hello" {
				t.Errorf("transport:websocket_test - expected hello, got %q err=%v", cmd, err)
			}
			env, err = conn.Recv(ctx)
			if err != nil || env.Kind() != protocol.KindComplete {
				t.Errorf("transport:websocket_test - expected COMPLETE, got %v err=%v", env, err)
			}
		})
	}
}

func TestWebSocket_SendAfterClose(t *testing.T) {
	srv := echoServer(t, protocol.JSON)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, err := DialWebSocket(context.Background(), url, protocol.JSON)
	if err != nil {
		t.Fatalf("transport:websocket_test - dial: %v", err)
	}
	conn.Close()

	if err := conn.Send(context.Background(), protocol.NewClose("x")); err != ErrClosed {
		t.Errorf("transport:websocket_test - expected ErrClosed, got %v", err)
	}
}
