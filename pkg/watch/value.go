// Package watch holds observable values: readers can take the current value or
// follow every change from the moment they subscribe.
package watch

import (
	"context"
	"errors"
	"sync"

	"github.com/morezero/void-worker/pkg/transport"
)

// Value is a mutex-guarded value with change subscribers. Each subscriber has
// its own unbounded queue, so a slow reader never blocks Set and never misses
// an intermediate state.
type Value[T any] struct {
	mu   sync.Mutex
	cur  T
	subs map[*transport.Queue[T]]struct{}
}

// New creates a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, subs: make(map[*transport.Queue[T]]struct{})}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set replaces the value and notifies subscribers.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = x
	for q := range v.subs {
		q.Push(x)
	}
}

// Update applies fn to the current value atomically and returns the result.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = fn(v.cur)
	for q := range v.subs {
		q.Push(v.cur)
	}
	return v.cur
}

// Subscribers returns the number of active Stream calls.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// Stream calls emit with the current value and then with every change, until
// ctx is done or emit fails. A done ctx ends the stream without error.
func (v *Value[T]) Stream(ctx context.Context, emit func(T) error) error {
	q := transport.NewQueue[T]()
	v.mu.Lock()
	q.Push(v.cur)
	v.subs[q] = struct{}{}
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		delete(v.subs, q)
		v.mu.Unlock()
		q.Close()
	}()

	for {
		x, err := q.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := emit(x); err != nil {
			return err
		}
	}
}
