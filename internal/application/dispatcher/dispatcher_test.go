package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, fmt.Sprint(append([]interface{}{msg}, keysAndValues...)...))
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func newStatusEvent() *event.Event {
	return event.NewEvent(event.TypeStatusChanged, "ord-1", "ORDER", "alice", map[string]interface{}{
		"from": "NEW",
		"to":   "CONFIRMED",
	})
}

func TestDispatch(t *testing.T) {
	t.Run("runs handlers in registration order", func(t *testing.T) {
		d := NewDispatcher()
		var order []string

		d.SubscribeNamed(event.TypeStatusChanged, "first", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "first")
			return nil
		})
		d.SubscribeNamed(event.TypeStatusChanged, "second", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "second")
			return nil
		})

		if err := d.Dispatch(context.Background(), newStatusEvent()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(order) != 2 || order[0] != "first" || order[1] != "second" {
			t.Errorf("unexpected order: %v", order)
		}
	})

	t.Run("returns first error encountered", func(t *testing.T) {
		d := NewDispatcher()
		expected := errors.New("lark unavailable")
		called := false

		d.SubscribeNamed(event.TypeStatusChanged, "failing", func(ctx context.Context, evt *event.Event) error {
			return expected
		})
		d.SubscribeNamed(event.TypeStatusChanged, "after", func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), newStatusEvent())
		if !errors.Is(err, expected) {
			t.Errorf("expected wrapped error, got %v", err)
		}
		if called {
			t.Error("handlers after a failure should not run")
		}
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.SubscribeNamed(event.TypeStatusChanged, "panicky", func(ctx context.Context, evt *event.Event) error {
			panic("boom")
		})

		err := d.Dispatch(context.Background(), newStatusEvent())
		if err == nil {
			t.Fatal("expected error from panic")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged")
		}
	})

	t.Run("wildcard handlers receive every type", func(t *testing.T) {
		d := NewDispatcher()
		var seen []event.Type

		d.SubscribeNamed(AllEvents, "audit", func(ctx context.Context, evt *event.Event) error {
			seen = append(seen, evt.Type)
			return nil
		})

		_ = d.Dispatch(context.Background(), newStatusEvent())
		_ = d.Dispatch(context.Background(), event.NewEvent(event.TypePaymentRecorded, "ord-1", "ORDER", "", nil))

		if len(seen) != 2 || seen[1] != event.TypePaymentRecorded {
			t.Errorf("unexpected wildcard deliveries: %v", seen)
		}
	})

	t.Run("returns error when dispatcher is closed", func(t *testing.T) {
		d := NewDispatcher()
		_ = d.Close()

		if err := d.Dispatch(context.Background(), newStatusEvent()); err == nil {
			t.Error("expected error after close")
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("handler errors are logged not returned", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var calls atomic.Int32

		d.SubscribeNamed(event.TypeStatusChanged, "failing", func(ctx context.Context, evt *event.Event) error {
			calls.Add(1)
			return errors.New("notification failed")
		})
		d.SubscribeNamed(event.TypeStatusChanged, "ok", func(ctx context.Context, evt *event.Event) error {
			calls.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), newStatusEvent())
		_ = d.Close()

		if calls.Load() != 2 {
			t.Errorf("expected both handlers to run, got %d", calls.Load())
		}
		if logger.ErrorCount() != 1 {
			t.Errorf("expected one logged error, got %d", logger.ErrorCount())
		}
	})

	t.Run("handlers outlive the caller's context", func(t *testing.T) {
		d := NewDispatcher()
		release := make(chan struct{})
		var ctxErr atomic.Value

		d.SubscribeNamed(event.TypeStatusChanged, "slow", func(ctx context.Context, evt *event.Event) error {
			<-release
			if err := ctx.Err(); err != nil {
				ctxErr.Store(err)
			}
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		d.DispatchAsync(ctx, newStatusEvent())
		cancel()
		close(release)
		_ = d.Close()

		if v := ctxErr.Load(); v != nil {
			t.Errorf("handler context was cancelled: %v", v)
		}
	})

	t.Run("handler timeout applies", func(t *testing.T) {
		d := NewDispatcher(WithHandlerTimeout(10 * time.Millisecond))
		var deadlineHit atomic.Bool

		d.SubscribeNamed(event.TypeStatusChanged, "stuck", func(ctx context.Context, evt *event.Event) error {
			<-ctx.Done()
			deadlineHit.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		})

		d.DispatchAsync(context.Background(), newStatusEvent())
		_ = d.Close()

		if !deadlineHit.Load() {
			t.Error("expected handler deadline to be exceeded")
		}
	})

	t.Run("does not dispatch when closed", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Bool

		d.SubscribeNamed(event.TypeStatusChanged, "h", func(ctx context.Context, evt *event.Event) error {
			called.Store(true)
			return nil
		})
		_ = d.Close()

		d.DispatchAsync(context.Background(), newStatusEvent())
		time.Sleep(10 * time.Millisecond)

		if called.Load() {
			t.Error("handler should not run after close")
		}
		if logger.ErrorCount() != 1 {
			t.Error("expected closed dispatch to be logged")
		}
	})
}

func TestUnsubscribeAndList(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }

	d.SubscribeNamed(event.TypeInvoiceGenerated, "lark", noop)
	d.SubscribeNamed(event.TypeInvoiceGenerated, "log", noop)
	d.Unsubscribe(event.TypeInvoiceGenerated, "lark")

	handlers := d.ListHandlers(event.TypeInvoiceGenerated)
	if len(handlers) != 1 || handlers[0].Name != "log" {
		t.Fatalf("unexpected handlers: %+v", handlers)
	}
	if handlers[0].Handler != nil {
		t.Error("ListHandlers should not expose the handler function")
	}
}

func TestClose_DoubleClose(t *testing.T) {
	d := NewDispatcher()
	if err := d.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := d.Close(); err == nil {
		t.Error("expected error on double close")
	}
}
