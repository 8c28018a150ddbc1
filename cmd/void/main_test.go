package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/morezero/void-worker/pkg/dispatcher"
	"github.com/morezero/void-worker/pkg/multiplexer"
	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/transport"
)

const mainTestPrefix = "cmd/void:main_test"

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"serve", "migrate", "ensure-db", "config", "call", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("%s - subcommand %q not registered", mainTestPrefix, name)
		}
	}
	for _, path := range [][]string{{"migrate", "up"}, {"migrate", "status"}, {"config", "clear"}, {"config", "show"}} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd.Name() != path[1] {
			t.Errorf("%s - subcommand %v not registered", mainTestPrefix, path)
		}
	}
	if !strings.Contains(rootCmd.Long, "DATABASE_URL") {
		t.Errorf("%s - root help should mention DATABASE_URL", mainTestPrefix)
	}
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    any
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"string literal", `"hi"`, "hi", false},
		{"bare text", "hello world", "hello world", false},
		{"number", "42", float64(42), false},
		{"broken object", `{"url":`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePayload(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("%s - err = %v, wantErr %v", mainTestPrefix, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("%s - got %#v, want %#v", mainTestPrefix, got, tt.want)
			}
		})
	}

	obj, err := parsePayload(`{"url":"/a.js"}`)
	if err != nil {
		t.Fatalf("%s - object: %v", mainTestPrefix, err)
	}
	if m, ok := obj.(map[string]any); !ok || m["url"] != "/a.js" {
		t.Errorf("%s - object = %#v", mainTestPrefix, obj)
	}
}

func TestWithDatabaseName(t *testing.T) {
	got, err := withDatabaseName("postgres://u:p@db:5432/void?sslmode=disable", "void_test")
	if err != nil {
		t.Fatalf("%s - %v", mainTestPrefix, err)
	}
	if got != "postgres://u:p@db:5432/void_test?sslmode=disable" {
		t.Errorf("%s - got %q", mainTestPrefix, got)
	}
}

func startWorker(t *testing.T, codec protocol.Codec) *multiplexer.Multiplexer {
	t.Helper()
	d := dispatcher.NewDispatcher()
	d.Register("ticks", func(_ context.Context, _ protocol.Value) dispatcher.Outcome {
		return dispatcher.Stream(func(ctx context.Context, emit dispatcher.Emit) error {
			for i := 1; i <= 3; i++ {
				if err := emit(map[string]any{"tick": i}); err != nil {
					return err
				}
			}
			return nil
		})
	})
	d.Register("forever", func(_ context.Context, _ protocol.Value) dispatcher.Outcome {
		return dispatcher.Stream(func(ctx context.Context, emit dispatcher.Emit) error {
			if err := emit("first"); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		})
	})
	d.Register("boom", func(_ context.Context, _ protocol.Value) dispatcher.Outcome {
		return dispatcher.Fail(errors.New("exploded"))
	})

	client, server := transport.Pipe(codec)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Serve(ctx, server)
	m := multiplexer.New(client)
	go m.Run(ctx)
	t.Cleanup(func() {
		cancel()
		client.Close()
	})
	return m
}

func TestRunCall_PrintsEveryResult(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.JSON, protocol.CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			m := startWorker(t, codec)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var out bytes.Buffer
			if err := runCall(ctx, m, "ticks", nil, &out); err != nil {
				t.Fatalf("%s - runCall: %v", mainTestPrefix, err)
			}
			text := out.String()
			for _, want := range []string{`"tick": 1`, `"tick": 2`, `"tick": 3`} {
				if !strings.Contains(text, want) {
					t.Errorf("%s - output missing %s:\n%s", mainTestPrefix, want, text)
				}
			}
		})
	}
}

func TestRunCall_RemoteError(t *testing.T) {
	m := startWorker(t, protocol.JSON)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := runCall(ctx, m, "boom", nil, &out)
	if err == nil || !strings.Contains(err.Error(), "exploded") {
		t.Errorf("%s - err = %v, want exploded", mainTestPrefix, err)
	}
}

func TestRunCall_CancelClosesStream(t *testing.T) {
	m := startWorker(t, protocol.JSON)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	if err := runCall(ctx, m, "forever", nil, &out); err != nil {
		t.Fatalf("%s - cancelled call should end cleanly, got %v", mainTestPrefix, err)
	}
	if !strings.Contains(out.String(), `"first"`) {
		t.Errorf("%s - output = %q", mainTestPrefix, out.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Pending() != 0 {
		t.Errorf("%s - call still pending after cancel", mainTestPrefix)
	}
}
