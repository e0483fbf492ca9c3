// Package lease provides TTL-bound exclusive locks keyed by string, used
// to guarantee at-most-one concurrent processing of an ingestion item.
//
// Failing to acquire a held lease is expected concurrent-worker behavior,
// reported as ErrHeld and treated by callers as a silent no-op. The TTL is
// a backstop for crashed holders, not the normal release path.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHeld is returned when another holder currently owns the lease.
var ErrHeld = errors.New("lease already held")

// DefaultTTL must exceed worst-case item processing time (authoring plus
// media attachment), so a live worker is never preempted.
const DefaultTTL = 5 * time.Minute

// Lease is an acquired lock. Release returns it before the TTL; releasing
// twice, or after expiry, is harmless.
type Lease struct {
	Key     string
	Holder  uuid.UUID
	release func(ctx context.Context) error
}

// Release returns the lease.
func (l *Lease) Release(ctx context.Context) error {
	if l.release == nil {
		return nil
	}
	r := l.release
	l.release = nil
	return r(ctx)
}

// Locker acquires TTL-bound exclusive leases.
// Implementations must be safe for concurrent use.
type Locker interface {
	// Acquire takes the lease for key, or returns ErrHeld if a live holder
	// exists. An expired lease is taken over without error.
	Acquire(ctx context.Context, key string) (*Lease, error)
}

// Memory is an in-process Locker for single-node deployments and tests.
type Memory struct {
	mu  sync.Mutex
	ttl time.Duration
	// held maps key to expiry; holder identity guards against a stale
	// release deleting a successor's lease.
	held map[string]memoryLease

	now func() time.Time
}

type memoryLease struct {
	holder    uuid.UUID
	expiresAt time.Time
}

// NewMemory creates an in-process locker. Non-positive ttl falls back to
// DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, held: make(map[string]memoryLease), now: time.Now}
}

// Acquire implements Locker.
func (m *Memory) Acquire(_ context.Context, key string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.held[key]; ok && m.now().Before(cur.expiresAt) {
		return nil, ErrHeld
	}

	holder := uuid.New()
	m.held[key] = memoryLease{holder: holder, expiresAt: m.now().Add(m.ttl)}

	return &Lease{
		Key:    key,
		Holder: holder,
		release: func(_ context.Context) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			if cur, ok := m.held[key]; ok && cur.holder == holder {
				delete(m.held, key)
			}
			return nil
		},
	}, nil
}
