package vfs

import (
	"context"
	"testing"

	"github.com/morezero/void-worker/pkg/dispatcher"
	"github.com/morezero/void-worker/pkg/multiplexer"
	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/transport"
)

func TestRegister_FSClear(t *testing.T) {
	f, _ := newMemFS(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.WriteFile(ctx, "/index.html", []byte("x"))

	d := dispatcher.NewDispatcher()
	Register(d, f)

	client, server := transport.Pipe(protocol.JSON)
	defer client.Close()
	go d.Serve(ctx, server)
	m := multiplexer.New(client)
	go m.Run(ctx)

	if err := m.Invoke(ctx, "fs.clear", nil, nil); err != nil {
		t.Fatalf("vfs:handlers_test - fs.clear: %v", err)
	}
	if _, err := f.Stat("/index.html"); err == nil {
		t.Error("vfs:handlers_test - expected file removed")
	}
}
