package shutdown

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestNewHandler(t *testing.T) {
	h := NewHandler(5 * time.Second)
	if h == nil {
		t.Fatal("NewHandler returned nil")
	}
	if h.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", h.timeout)
	}
	if h.done == nil {
		t.Error("done channel should be initialized")
	}
}

func TestRunReverseOrder(t *testing.T) {
	h := NewHandler(time.Second)

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		h.OnShutdown(func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	if err := h.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("hooks ran in order %v, want [3 2 1]", order)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done channel should be closed after Run")
	}
}

func TestRunJoinsErrors(t *testing.T) {
	h := NewHandler(time.Second)

	errA := errors.New("listener close failed")
	errB := errors.New("flush failed")

	h.OnShutdown(func(ctx context.Context) error { return errA })
	h.OnShutdown(func(ctx context.Context) error { return nil })
	h.OnShutdown(func(ctx context.Context) error { return errB })

	err := h.Run()
	if !errors.Is(err, errA) {
		t.Errorf("joined error should include %v, got %v", errA, err)
	}
	if !errors.Is(err, errB) {
		t.Errorf("joined error should include %v, got %v", errB, err)
	}
}

func TestRunLaterHooksRunAfterFailure(t *testing.T) {
	h := NewHandler(time.Second)

	ran := false
	h.OnShutdown(func(ctx context.Context) error {
		ran = true
		return nil
	})
	h.OnShutdown(func(ctx context.Context) error {
		return errors.New("boom")
	})

	if err := h.Run(); err == nil {
		t.Fatal("expected an error")
	}
	if !ran {
		t.Error("hook after a failing one did not run")
	}
}

func TestWaitOnSignal(t *testing.T) {
	h := NewHandler(time.Second)

	called := false
	h.OnShutdown(func(ctx context.Context) error {
		called = true
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Wait()
	}()

	// Give Wait time to install the signal handler.
	time.Sleep(50 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not complete in time")
	}

	if !called {
		t.Error("shutdown hook was not called")
	}
}

func TestConcurrentOnShutdown(t *testing.T) {
	h := NewHandler(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnShutdown(func(ctx context.Context) error { return nil })
		}()
	}
	wg.Wait()

	h.mu.Lock()
	n := len(h.hooks)
	h.mu.Unlock()
	if n != 10 {
		t.Errorf("expected 10 hooks, got %d", n)
	}
}
