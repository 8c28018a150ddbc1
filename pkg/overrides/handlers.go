package overrides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/void-worker/pkg/dispatcher"
	"github.com/morezero/void-worker/pkg/events"
	"github.com/morezero/void-worker/pkg/router"
)

const logPrefix = "overrides:handlers"

const defaultMimeType = "application/octet-stream"

type addRequest struct {
	URL  string `json:"url"`
	Blob *struct {
		Data []byte `json:"data"`
		Type string `json:"type"`
	} `json:"blob"`
}

type addDataRequest struct {
	URL      string `json:"url"`
	Data     any    `json:"data"`
	MimeType string `json:"mimeType"`
}

type urlRequest struct {
	URL string `json:"url"`
}

// URLResult echoes the normalized key a command acted on.
type URLResult struct {
	URL string `json:"url"`
}

// ListResult is the reply of file.list.
type ListResult struct {
	Files []string `json:"files"`
}

// GetResult is the reply of file.get.
type GetResult struct {
	Exists bool  `json:"exists"`
	Blob   *Blob `json:"blob,omitempty"`
}

// Handlers are the file.* commands over one Store.
type Handlers struct {
	store     *Store
	publisher events.EventPublisher
}

// NewHandlers creates the command handlers. A nil publisher disables events.
func NewHandlers(store *Store, publisher events.EventPublisher) *Handlers {
	return &Handlers{store: store, publisher: events.OrNoOp(publisher)}
}

// Register installs file.add, file.addData, file.remove, file.list, file.clear and file.get.
func (h *Handlers) Register(d *dispatcher.Dispatcher) {
	d.Register("file.add", dispatcher.Func(h.add))
	d.Register("file.addData", dispatcher.Func(h.addData))
	d.Register("file.remove", dispatcher.Func(h.remove))
	d.Register("file.list", dispatcher.Func(h.list))
	d.Register("file.clear", dispatcher.Func(h.clear))
	d.Register("file.get", dispatcher.Func(h.get))
}

func (h *Handlers) add(ctx context.Context, in addRequest) (any, error) {
	if in.URL == "" || in.Blob == nil {
		return nil, errors.New("URL and blob are required")
	}
	key := router.Normalize(in.URL)
	h.store.Put(key, Blob{Data: in.Blob.Data, Type: in.Blob.Type})
	slog.Info(fmt.Sprintf("%s - Added override %s (%d bytes)", logPrefix, key, len(in.Blob.Data)))
	h.notify(ctx, events.OpAdd, key)
	return URLResult{URL: key}, nil
}

func (h *Handlers) addData(ctx context.Context, in addDataRequest) (any, error) {
	data, err := dataBytes(in.Data)
	if in.URL == "" || err != nil || len(data) == 0 {
		return nil, errors.New("URL and data are required")
	}
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	key := router.Normalize(in.URL)
	h.store.Put(key, Blob{Data: data, Type: mimeType})
	slog.Info(fmt.Sprintf("%s - Added override %s from data (%d bytes)", logPrefix, key, len(data)))
	h.notify(ctx, events.OpAdd, key)
	return URLResult{URL: key}, nil
}

func (h *Handlers) remove(ctx context.Context, in urlRequest) (any, error) {
	if in.URL == "" {
		return nil, errors.New("URL is required")
	}
	key := router.Normalize(in.URL)
	if h.store.Remove(key) {
		slog.Info(fmt.Sprintf("%s - Removed override %s", logPrefix, key))
		h.notify(ctx, events.OpRemove, key)
	}
	return URLResult{URL: key}, nil
}

func (h *Handlers) list(_ context.Context, _ any) (any, error) {
	return ListResult{Files: h.store.Keys()}, nil
}

func (h *Handlers) clear(ctx context.Context, _ any) (any, error) {
	n := h.store.Clear()
	slog.Info(fmt.Sprintf("%s - Cleared %d overrides", logPrefix, n))
	h.notify(ctx, events.OpClear)
	return nil, nil
}

func (h *Handlers) get(_ context.Context, in urlRequest) (any, error) {
	b, ok := h.store.Get(router.Normalize(in.URL))
	if !ok {
		return GetResult{Exists: false}, nil
	}
	return GetResult{Exists: true, Blob: &b}, nil
}

func (h *Handlers) notify(ctx context.Context, op string, keys ...string) {
	if err := h.publisher.PublishChanged(ctx, events.NewChangedEvent(events.StoreOverrides, op, keys...)); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event: %v", logPrefix, op, err))
	}
}

// dataBytes accepts text or raw bytes. Text is stored as UTF-8.
func dataBytes(v any) ([]byte, error) {
	switch d := v.(type) {
	case string:
		return []byte(d), nil
	case []byte:
		return d, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("data must be a string or bytes, got %T", v)
	}
}
