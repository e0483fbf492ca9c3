package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the Postgres locker needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a Locker backed by the source_leases table, safe across
// multiple worker processes. Acquisition is a single atomic upsert: the
// conditional update only fires when the existing lease has expired, so
// two racing workers can never both win.
type Postgres struct {
	db  DB
	ttl time.Duration
}

// NewPostgres creates a database-backed locker. Non-positive ttl falls
// back to DefaultTTL.
func NewPostgres(db DB, ttl time.Duration) *Postgres {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Postgres{db: db, ttl: ttl}
}

// Acquire implements Locker.
func (p *Postgres) Acquire(ctx context.Context, key string) (*Lease, error) {
	holder := uuid.New()

	var got string
	err := p.db.QueryRow(ctx,
		`INSERT INTO source_leases (key, holder, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE
		   SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		   WHERE source_leases.expires_at < now()
		 RETURNING key`,
		key, holder, time.Now().Add(p.ttl),
	).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHeld
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lease %q: %w", key, err)
	}

	return &Lease{
		Key:    key,
		Holder: holder,
		release: func(ctx context.Context) error {
			_, err := p.db.Exec(ctx,
				`DELETE FROM source_leases WHERE key = $1 AND holder = $2`,
				key, holder,
			)
			if err != nil {
				return fmt.Errorf("release lease %q: %w", key, err)
			}
			return nil
		},
	}, nil
}
