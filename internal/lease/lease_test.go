package lease

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemory_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	l, err := m.Acquire(ctx, "item-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := m.Acquire(ctx, "item-1"); !errors.Is(err, ErrHeld) {
		t.Errorf("second Acquire = %v, want ErrHeld", err)
	}

	// A different key is independent.
	if _, err := m.Acquire(ctx, "item-2"); err != nil {
		t.Errorf("Acquire(item-2) = %v, want nil", err)
	}

	if err := l.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := m.Acquire(ctx, "item-1"); err != nil {
		t.Errorf("Acquire after Release = %v, want nil", err)
	}
}

func TestMemory_DoubleReleaseIsHarmless(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	l, err := m.Acquire(ctx, "item")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := l.Release(ctx); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := l.Release(ctx); err != nil {
		t.Errorf("second Release = %v, want nil", err)
	}
}

func TestMemory_ExpiredLeaseIsTakenOver(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	current := time.Now()
	m.now = func() time.Time { return current }

	stale, err := m.Acquire(ctx, "item")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	current = current.Add(2 * time.Minute)

	fresh, err := m.Acquire(ctx, "item")
	if err != nil {
		t.Fatalf("Acquire of expired lease = %v, want takeover", err)
	}

	// The stale holder's release must not free the successor's lease.
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale Release failed: %v", err)
	}
	if _, err := m.Acquire(ctx, "item"); !errors.Is(err, ErrHeld) {
		t.Errorf("Acquire after stale release = %v, want ErrHeld (successor still holds)", err)
	}

	_ = fresh.Release(ctx)
}

// Exactly one of many concurrent acquirers can win.
func TestMemory_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	const workers = 32
	var won, denied atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := m.Acquire(ctx, "contended")
			switch {
			case err == nil:
				won.Add(1)
				_ = l
			case errors.Is(err, ErrHeld):
				denied.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if won.Load() != 1 {
		t.Errorf("winners = %d, want exactly 1", won.Load())
	}
	if denied.Load() != workers-1 {
		t.Errorf("denied = %d, want %d", denied.Load(), workers-1)
	}
}
