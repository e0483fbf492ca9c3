package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/aulahq/aula/internal/content"
	"github.com/aulahq/aula/internal/lease"
	"github.com/aulahq/aula/internal/log"
)

// itemRepo is the slice of ItemStore the pipeline uses.
type itemRepo interface {
	ListReady(ctx context.Context, limit int) ([]Item, error)
	MarkLocked(ctx context.Context, id uuid.UUID) (bool, error)
	MarkDone(ctx context.Context, id uuid.UUID, contentID string) error
	MarkError(ctx context.Context, id uuid.UUID, message string) error
	SweepStuck(ctx context.Context, age time.Duration) (int64, error)
}

// authorer drafts structured content from raw text.
type authorer interface {
	Author(ctx context.Context, rawText string) (content.Draft, error)
}

// Pipeline processes raw source items into draft content. Batch runs fan
// out on a bounded worker pool; the per-item lease makes concurrent
// pipelines (across processes too, with the Postgres locker) safe.
type Pipeline struct {
	items   itemRepo
	locker  lease.Locker
	author  authorer
	creator content.Creator
	pool    *ants.Pool
	batch   int
	logger  log.Logger
}

// NewPipeline creates a Pipeline with a worker pool of the given size.
// Call Release when done with it.
func NewPipeline(
	items itemRepo,
	locker lease.Locker,
	author authorer,
	creator content.Creator,
	poolSize, batch int,
	logger log.Logger,
) (*Pipeline, error) {
	if poolSize <= 0 {
		poolSize = 4
	}
	if batch <= 0 {
		batch = 20
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("creating ingest worker pool: %w", err)
	}

	return &Pipeline{
		items:   items,
		locker:  locker,
		author:  author,
		creator: creator,
		pool:    pool,
		batch:   batch,
		logger:  logger,
	}, nil
}

// Release shuts the worker pool down. The pipeline must not be used after.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// ProcessBatch picks up ready items and processes them concurrently,
// returning once the whole batch has finished.
func (p *Pipeline) ProcessBatch(ctx context.Context) error {
	items, err := p.items.ListReady(ctx, p.batch)
	if err != nil {
		return fmt.Errorf("select ingest batch: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, it := range items {
		item := it
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			if err := p.Process(ctx, item); err != nil {
				p.logger.Error("item processing failed", "item_id", item.ID, "error", err)
			}
		})
		if submitErr != nil {
			wg.Done()
			p.logger.Error("failed to submit item to pool", "item_id", item.ID, "error", submitErr)
		}
	}
	wg.Wait()

	return nil
}

// Process handles one item end to end. Lease contention is a silent
// no-op: another worker owns the item and will finish it. Processing
// failures are recorded on the item and never returned as pipeline
// errors; only infrastructure failures propagate.
func (p *Pipeline) Process(ctx context.Context, item Item) error {
	l, err := p.locker.Acquire(ctx, leaseKey(item.ID))
	if errors.Is(err, lease.ErrHeld) {
		p.logger.Debug("item already being processed", "item_id", item.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire lease for item %s: %w", item.ID, err)
	}
	defer func() {
		if relErr := l.Release(ctx); relErr != nil {
			p.logger.Warn("lease release failed, TTL will reclaim it", "item_id", item.ID, "error", relErr)
		}
	}()

	// The lease only guards concurrent overlap. The conditional status
	// transition is what stops a second pass over an item that another
	// worker finished after we listed it.
	locked, err := p.items.MarkLocked(ctx, item.ID)
	if err != nil {
		return err
	}
	if !locked {
		p.logger.Debug("item no longer pending, skipping", "item_id", item.ID)
		return nil
	}

	contentID, procErr := p.processLocked(ctx, item)
	if procErr != nil {
		p.logger.Warn("recording item failure", "item_id", item.ID, "error", procErr)
		if markErr := p.items.MarkError(ctx, item.ID, procErr.Error()); markErr != nil {
			return markErr
		}
		return nil
	}

	return p.items.MarkDone(ctx, item.ID, contentID)
}

// processLocked does the work that requires the lease: extract, author,
// persist the draft.
func (p *Pipeline) processLocked(ctx context.Context, item Item) (string, error) {
	text := ExtractText(item.PayloadText)
	if text == "" {
		return "", errors.New("empty payload after extraction")
	}

	draft, err := p.author.Author(ctx, text)
	if err != nil {
		return "", fmt.Errorf("authoring draft: %w", err)
	}
	draft.MediaPaths = item.MediaRefs

	id, err := p.creator.CreateDraft(ctx, draft)
	if err != nil {
		return "", fmt.Errorf("persisting draft: %w", err)
	}

	p.logger.Info("item processed into draft",
		"item_id", item.ID, "content_id", id, "media", len(item.MediaRefs))
	return id.String(), nil
}

// SweepStuck resets items stuck past age; exposed for the worker loop.
func (p *Pipeline) SweepStuck(ctx context.Context, age time.Duration) (int64, error) {
	return p.items.SweepStuck(ctx, age)
}

func leaseKey(id uuid.UUID) string {
	return "raw_source_items/" + id.String()
}
