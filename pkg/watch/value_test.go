package watch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestValue_GetSetUpdate(t *testing.T) {
	v := New(1)
	if v.Get() != 1 {
		t.Fatalf("watch:value_test - expected 1, got %d", v.Get())
	}
	v.Set(2)
	if got := v.Update(func(x int) int { return x * 10 }); got != 20 {
		t.Errorf("watch:value_test - expected 20, got %d", got)
	}
	if v.Get() != 20 {
		t.Errorf("watch:value_test - expected 20 after update, got %d", v.Get())
	}
}

func TestValue_StreamDeliversCurrentThenEveryChange(t *testing.T) {
	v := New("a")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- v.Stream(ctx, func(s string) error {
			got <- s
			return nil
		})
	}()

	if first := <-got; first != "a" {
		t.Fatalf("watch:value_test - expected current value first, got %q", first)
	}
	waitSubscribers(t, v, 1)
	v.Set("b")
	v.Set("c")
	v.Set("d")

	for _, want := range []string{"b", "c", "d"} {
		select {
		case s := <-got:
			if s != want {
				t.Fatalf("watch:value_test - expected %q, got %q", want, s)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("watch:value_test - timed out waiting for %q", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch:value_test - cancelled stream returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch:value_test - stream did not end on cancel")
	}
	waitSubscribers(t, v, 0)
}

func TestValue_StreamStopsOnEmitError(t *testing.T) {
	v := New(0)
	boom := errors.New("boom")
	err := v.Stream(context.Background(), func(int) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("watch:value_test - expected emit error, got %v", err)
	}
	if v.Subscribers() != 0 {
		t.Errorf("watch:value_test - subscriber leaked")
	}
}

func waitSubscribers(t *testing.T, v *Value[string], n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for v.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("watch:value_test - expected %d subscribers, have %d", n, v.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
