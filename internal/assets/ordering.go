package assets

import (
	"context"
	"sort"
	"sync"
	"time"

	apperr "github.com/galleryd/galleryd/internal/errors"
	"github.com/galleryd/galleryd/internal/metadata"
	"github.com/galleryd/galleryd/internal/metrics"
)

// Ordering applies client-supplied display orders. Reorders for the same
// project are serialized through a per-project lock so concurrent calls
// cannot interleave their batch updates; different projects proceed in
// parallel. Every store call is bounded by opTimeout so a hung store
// cannot hold the project lock indefinitely.
type Ordering struct {
	meta      MetadataOrderer
	opTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// MetadataOrderer is the slice of metadata.Store that reordering needs.
type MetadataOrderer interface {
	GetByProject(ctx context.Context, projectID string) ([]metadata.Asset, error)
	BatchUpdateOrder(ctx context.Context, projectID string, orders map[string]int) error
}

func NewOrdering(meta MetadataOrderer, opTimeout time.Duration) *Ordering {
	return &Ordering{
		meta:      meta,
		opTimeout: opTimeout,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Reorder replaces a project's display order with the given id sequence.
// The sequence must be an exact permutation of the project's current asset
// ids; any missing, duplicate, or foreign id rejects the whole request
// with the store untouched.
func (o *Ordering) Reorder(ctx context.Context, projectID string, orderedIDs []string) error {
	if projectID == "" {
		return apperr.Validation("missing projectId")
	}

	lock := o.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	readCtx, cancel := o.opContext(ctx)
	current, err := o.meta.GetByProject(readCtx, projectID)
	cancel()
	if err != nil {
		return apperr.Internal(err, "listing assets for project %q", projectID)
	}

	if err := checkPermutation(current, orderedIDs); err != nil {
		metrics.AssetOperationsTotal.WithLabelValues("reorder", "error").Inc()
		return err
	}

	orders := make(map[string]int, len(orderedIDs))
	for i, id := range orderedIDs {
		orders[id] = i
	}

	writeCtx, cancel := o.opContext(ctx)
	defer cancel()
	if err := o.meta.BatchUpdateOrder(writeCtx, projectID, orders); err != nil {
		metrics.AssetOperationsTotal.WithLabelValues("reorder", "error").Inc()
		return apperr.Internal(err, "updating display order for project %q", projectID)
	}

	metrics.AssetOperationsTotal.WithLabelValues("reorder", "ok").Inc()
	return nil
}

func (o *Ordering) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.opTimeout)
}

func (o *Ordering) projectLock(projectID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[projectID] = lock
	}
	return lock
}

func checkPermutation(current []metadata.Asset, orderedIDs []string) error {
	if len(orderedIDs) != len(current) {
		return apperr.OrderMismatch("expected %d asset ids, got %d", len(current), len(orderedIDs))
	}

	existing := make(map[string]bool, len(current))
	for _, a := range current {
		existing[a.ID] = true
	}

	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if seen[id] {
			return apperr.OrderMismatch("duplicate asset id %q", id)
		}
		seen[id] = true
		if !existing[id] {
			return apperr.OrderMismatch("asset %q does not belong to this project", id)
		}
	}

	// Same cardinality, no duplicates, all members: a permutation. The
	// missing-id case is implied but spell it out for the error message.
	missing := make([]string, 0)
	for id := range existing {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return apperr.OrderMismatch("asset %q missing from order", missing[0])
	}

	return nil
}
