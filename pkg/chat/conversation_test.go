package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/morezero/void-worker/pkg/appconfig"
	"github.com/morezero/void-worker/pkg/vfs"
)

type staticConfig struct{ cfg appconfig.AppConfig }

func (s staticConfig) Current() appconfig.AppConfig { return s.cfg }

// scriptedModel answers with replies in order, repeating the last one.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []Reply
	err      error
	requests []Request
}

func (m *scriptedModel) Complete(_ context.Context, _ appconfig.AppConfig, req Request) (Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return Reply{}, m.err
	}
	i := len(m.requests) - 1
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	return m.replies[i], nil
}

func newToolset(t *testing.T) (*vfs.FS, *vfs.Toolset) {
	t.Helper()
	f := vfs.New(afero.NewMemMapFs())
	ts, err := vfs.NewToolset(f)
	if err != nil {
		t.Fatalf("chat:conversation_test - NewToolset: %v", err)
	}
	return f, ts
}

func roles(msgs []Message) string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return strings.Join(out, ",")
}

func TestSend_PlainReply(t *testing.T) {
	model := &scriptedModel{replies: []Reply{{Content: "hello there"}}}
	c := NewConversation(model, staticConfig{appconfig.Defaults()})

	if err := c.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("chat:conversation_test - Send: %v", err)
	}
	msgs := c.Messages()
	if roles(msgs) != "user,assistant" || msgs[1].Content != "hello there" {
		t.Fatalf("chat:conversation_test - unexpected history %+v", msgs)
	}
	if msgs[0].ID == "" || msgs[0].ID == msgs[1].ID {
		t.Error("chat:conversation_test - expected distinct message ids")
	}

	req := model.requests[0]
	if req.Model != "claude-sonnet-4" || !strings.Contains(req.System, ChatWidget) {
		t.Errorf("chat:conversation_test - unexpected request model=%q", req.Model)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "hi" {
		t.Errorf("chat:conversation_test - model should see the user message, got %+v", req.Messages)
	}
	if c.Loading() {
		t.Error("chat:conversation_test - loading should be false after Send")
	}
}

func TestSend_ExecutesToolCalls(t *testing.T) {
	f, ts := newToolset(t)
	args, _ := json.Marshal(map[string]any{"path": "index.html", "data": "<h1>new</h1>"})
	model := &scriptedModel{replies: []Reply{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "writeFile", Arguments: string(args)}}},
		{Content: "done"},
	}}
	c := NewConversation(model, staticConfig{appconfig.Defaults()}, WithTools(ts))

	if err := c.Send(context.Background(), "make a page"); err != nil {
		t.Fatalf("chat:conversation_test - Send: %v", err)
	}

	data, err := f.ReadFile("/index.html")
	if err != nil || string(data) != "<h1>new</h1>" {
		t.Fatalf("chat:conversation_test - tool did not write file: %q %v", data, err)
	}
	msgs := c.Messages()
	if roles(msgs) != "user,assistant,tool,assistant" {
		t.Fatalf("chat:conversation_test - unexpected roles %s", roles(msgs))
	}
	if msgs[2].ToolCallID != "call_1" || !strings.Contains(msgs[2].Content, `"success":true`) {
		t.Errorf("chat:conversation_test - unexpected tool message %+v", msgs[2])
	}
	if len(model.requests) != 2 || len(model.requests[1].Messages) != 3 {
		t.Errorf("chat:conversation_test - second round should include the tool result")
	}
	if len(model.requests[0].Tools) == 0 {
		t.Error("chat:conversation_test - tools not offered to the model")
	}
}

func TestSend_StopsAtMaxSteps(t *testing.T) {
	_, ts := newToolset(t)
	model := &scriptedModel{replies: []Reply{
		{ToolCalls: []ToolCall{{ID: "c", Name: "readdir", Arguments: `{"path":"/"}`}}},
	}}
	cfg := appconfig.Defaults()
	cfg.MaxSteps = 3
	c := NewConversation(model, staticConfig{cfg}, WithTools(ts))

	if err := c.Send(context.Background(), "loop"); err != nil {
		t.Fatalf("chat:conversation_test - Send: %v", err)
	}
	if len(model.requests) != 3 {
		t.Errorf("chat:conversation_test - expected 3 model calls, got %d", len(model.requests))
	}
}

func TestSend_ModelError(t *testing.T) {
	model := &scriptedModel{err: errors.New("401 Unauthorized")}
	c := NewConversation(model, staticConfig{appconfig.Defaults()})

	err := c.Send(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("chat:conversation_test - expected model error, got %v", err)
	}
	if roles(c.Messages()) != "user" {
		t.Errorf("chat:conversation_test - user message should remain, got %s", roles(c.Messages()))
	}
	if c.Loading() {
		t.Error("chat:conversation_test - loading must clear on error")
	}
}

func TestSend_EmptyMessage(t *testing.T) {
	c := NewConversation(&scriptedModel{}, staticConfig{appconfig.Defaults()})
	if err := c.Send(context.Background(), ""); err == nil {
		t.Error("chat:conversation_test - expected error for empty message")
	}
}

func TestLoadingStream(t *testing.T) {
	model := &scriptedModel{replies: []Reply{{Content: "ok"}}}
	c := NewConversation(model, staticConfig{appconfig.Defaults()})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := make(chan bool, 8)
	go c.WatchLoading(ctx, func(b bool) error {
		seen <- b
		return nil
	})
	if <-seen {
		t.Fatal("chat:conversation_test - expected initial false")
	}
	if err := c.Send(ctx, "hi"); err != nil {
		t.Fatalf("chat:conversation_test - Send: %v", err)
	}
	if first, second := <-seen, <-seen; !first || second {
		t.Errorf("chat:conversation_test - expected true then false, got %v %v", first, second)
	}
}

func TestReset(t *testing.T) {
	model := &scriptedModel{replies: []Reply{{Content: "ok"}}}
	c := NewConversation(model, staticConfig{appconfig.Defaults()})
	c.Send(context.Background(), "hi")
	c.Reset(context.Background())
	if len(c.Messages()) != 0 {
		t.Errorf("chat:conversation_test - expected empty history, got %d", len(c.Messages()))
	}
}
