package lease_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aulahq/aula/internal/lease"
	"github.com/aulahq/aula/internal/testutil"
)

func TestPostgres_MutualExclusion_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	locker := lease.NewPostgres(db.Pool, time.Minute)

	const workers = 16
	var won, denied atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := locker.Acquire(ctx, "raw-item-42")
			switch {
			case err == nil:
				won.Add(1)
				_ = l
			case errors.Is(err, lease.ErrHeld):
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

func TestPostgres_ReleaseThenReacquire_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	locker := lease.NewPostgres(db.Pool, time.Minute)

	l, err := locker.Acquire(ctx, "raw-item-7")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := locker.Acquire(ctx, "raw-item-7"); !errors.Is(err, lease.ErrHeld) {
		t.Fatalf("second Acquire = %v, want ErrHeld", err)
	}
	if err := l.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := locker.Acquire(ctx, "raw-item-7"); err != nil {
		t.Errorf("Acquire after Release = %v, want nil", err)
	}
}

func TestPostgres_ExpiredLeaseTakenOver_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	short := lease.NewPostgres(db.Pool, 100*time.Millisecond)
	if _, err := short.Acquire(ctx, "raw-item-9"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	normal := lease.NewPostgres(db.Pool, time.Minute)
	if _, err := normal.Acquire(ctx, "raw-item-9"); err != nil {
		t.Errorf("Acquire of expired lease = %v, want takeover", err)
	}
}
