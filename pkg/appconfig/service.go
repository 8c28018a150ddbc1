package appconfig

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/void-worker/pkg/dispatcher"
	"github.com/morezero/void-worker/pkg/events"
	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/watch"
)

const logPrefix = "appconfig:service"

// Service holds the live configuration and keeps its store in step.
type Service struct {
	defaults  AppConfig
	store     Store
	publisher events.EventPublisher
	current   *watch.Value[AppConfig]

	// writeMu serializes Load, Set and Reset so each one applies to the
	// result of the previous one and the store sees writes in the same order.
	writeMu sync.Mutex
}

// NewService creates a Service starting from defaults. A nil store keeps values
// in memory only; a nil publisher disables change events.
func NewService(defaults AppConfig, store Store, publisher events.EventPublisher) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{
		defaults:  defaults,
		store:     store,
		publisher: events.OrNoOp(publisher),
		current:   watch.New(defaults),
	}
}

// Load merges persisted values over the defaults.
func (s *Service) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	values, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	patch, err := PatchFromValues(values)
	if err != nil {
		return err
	}
	s.current.Set(s.defaults.Apply(patch))
	slog.Info(fmt.Sprintf("%s - Loaded %d persisted config fields", logPrefix, len(patch.Keys())))
	return nil
}

// Current returns the live configuration.
func (s *Service) Current() AppConfig {
	return s.current.Get()
}

// Defaults returns the configuration Reset goes back to.
func (s *Service) Defaults() AppConfig {
	return s.defaults
}

// Watch emits the current configuration and then every change until ctx is done.
func (s *Service) Watch(ctx context.Context, emit func(AppConfig) error) error {
	return s.current.Stream(ctx, emit)
}

// Set merges p into the live configuration and persists the full result.
func (s *Service) Set(ctx context.Context, p Patch) (AppConfig, error) {
	next, err := s.apply(ctx, p)
	if err != nil {
		return AppConfig{}, err
	}
	slog.Info(fmt.Sprintf("%s - Updated config fields %v", logPrefix, p.Keys()))
	s.notify(ctx, events.OpUpdate, p.Keys()...)
	return next, nil
}

// Reset returns to the defaults and clears persisted values.
func (s *Service) Reset(ctx context.Context) (AppConfig, error) {
	s.writeMu.Lock()
	if err := s.store.Clear(ctx); err != nil {
		s.writeMu.Unlock()
		return AppConfig{}, fmt.Errorf("%s - failed to clear config: %w", logPrefix, err)
	}
	s.current.Set(s.defaults)
	s.writeMu.Unlock()

	slog.Info(fmt.Sprintf("%s - Config reset to defaults", logPrefix))
	s.notify(ctx, events.OpReset)
	return s.defaults, nil
}

func (s *Service) apply(ctx context.Context, p Patch) (AppConfig, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Get().Apply(p)
	if err := next.Validate(); err != nil {
		return AppConfig{}, err
	}
	if err := s.store.Save(ctx, next.Values()); err != nil {
		return AppConfig{}, fmt.Errorf("%s - failed to save config: %w", logPrefix, err)
	}
	s.current.Set(next)
	return next, nil
}

// Register installs getConfig, setConfig and resetConfig.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register("getConfig", func(_ context.Context, _ protocol.Value) dispatcher.Outcome {
		return dispatcher.Stream(func(ctx context.Context, emit dispatcher.Emit) error {
			return s.Watch(ctx, func(c AppConfig) error { return emit(c) })
		})
	})
	d.Register("setConfig", dispatcher.Func(func(ctx context.Context, p Patch) (any, error) {
		return s.Set(ctx, p)
	}))
	d.Register("resetConfig", dispatcher.Func(func(ctx context.Context, _ any) (any, error) {
		return s.Reset(ctx)
	}))
}

func (s *Service) notify(ctx context.Context, op string, keys ...string) {
	if err := s.publisher.PublishChanged(ctx, events.NewChangedEvent(events.StoreConfig, op, keys...)); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event: %v", logPrefix, op, err))
	}
}
