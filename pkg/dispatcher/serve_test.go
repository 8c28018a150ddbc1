package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/transport"
)

func TestServe_OverPipe(t *testing.T) {
	d := NewDispatcher()
	d.Register("echo", Func(func(_ context.Context, s string) (any, error) { return s, nil }))

	client, server := transport.Pipe(protocol.CBOR)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, server) }()

	if err := client.Send(ctx, protocol.NewCall("e1", "echo", "hi")); err != nil {
		t.Fatalf("dispatcher:serve_test - send: %v", err)
	}
	env, err := client.Recv(ctx)
	if err != nil {
		t.Fatalf("dispatcher:serve_test - recv: %v", err)
	}
	var s string
	if err := env.(*protocol.Result).Value.Decode(&s); err != nil || s != "hi" {
		t.Errorf("dispatcher:serve_test - expected hi, got %q err=%v", s, err)
	}
	if env, _ := client.Recv(ctx); env == nil || env.Kind() != protocol.KindComplete {
		t.Errorf("dispatcher:serve_test - expected COMPLETE, got %v", env)
	}

	client.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("dispatcher:serve_test - Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher:serve_test - Serve did not return after close")
	}
}

func TestPeers_IsolatesCallersWithSameID(t *testing.T) {
	d := NewDispatcher()
	release := make(chan struct{})
	d.Register("hold", func(ctx context.Context, payload protocol.Value) Outcome {
		var tag string
		payload.Decode(&tag)
		return Stream(func(ctx context.Context, emit Emit) error {
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
			return emit(tag)
		})
	})

	peers := d.NewPeers(context.Background())
	recA, recB := newRecorder(), newRecorder()
	peers.Handle("inbox.a", protocol.NewCall("same", "hold", "a"), recA)
	peers.Handle("inbox.b", protocol.NewCall("same", "hold", "b"), recB)
	if peers.Len() != 2 {
		t.Fatalf("dispatcher:serve_test - expected 2 peers, got %d", peers.Len())
	}

	// Closing the id on peer A must not touch peer B.
	peers.Handle("inbox.a", protocol.NewClose("same"), recA)
	close(release)

	env := recB.next(t)
	var tag string
	if err := env.(*protocol.Result).Value.Decode(&tag); err != nil || tag != "b" {
		t.Errorf("dispatcher:serve_test - expected b, got %q err=%v", tag, err)
	}
	if env := recB.next(t); env.Kind() != protocol.KindComplete {
		t.Errorf("dispatcher:serve_test - expected COMPLETE for b, got %s", protocol.Describe(env))
	}
	recA.none(t, 100*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for peers.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if peers.Len() != 0 {
		t.Errorf("dispatcher:serve_test - expected idle peers released, got %d", peers.Len())
	}
}

func TestPeers_SlowUnknownReplyDoesNotBlockOthers(t *testing.T) {
	d := NewDispatcher()
	d.Register("echo", Func(func(_ context.Context, s string) (any, error) { return s, nil }))
	peers := d.NewPeers(context.Background())

	entered := make(chan struct{})
	unblock := make(chan struct{})
	slow := transport.SenderFunc(func(_ context.Context, env protocol.Envelope) error {
		close(entered)
		<-unblock
		return nil
	})
	defer close(unblock)

	go peers.Handle("inbox.slow", protocol.NewCall("x", "missing", nil), slow)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher:serve_test - unknown command was never rejected")
	}

	handled := make(chan struct{})
	rec := newRecorder()
	go func() {
		peers.Handle("inbox.fast", protocol.NewCall("e1", "echo", "hi"), rec)
		close(handled)
	}()
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("dispatcher:serve_test - routing blocked behind a slow reply")
	}

	var s string
	if err := rec.next(t).(*protocol.Result).Value.Decode(&s); err != nil || s != "hi" {
		t.Errorf("dispatcher:serve_test - expected hi, got %q err=%v", s, err)
	}
	if env := rec.next(t); env.Kind() != protocol.KindComplete {
		t.Errorf("dispatcher:serve_test - expected COMPLETE, got %s", protocol.Describe(env))
	}
}
