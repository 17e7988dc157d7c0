// Package engine wires the storage, calendar, and workflow layers into a
// single running instance with the single-writer-per-entity-family
// discipline spec.md §5 requires: every mutation against one entity
// family (transactions, lots, orders, receiving logs, sales, promo
// windows) is serialized through one goroutine, while reads proceed
// lock-free against whatever the storage backend currently holds.
package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"replenisher/internal/apperr"
	"replenisher/internal/calendar"
	"replenisher/internal/config"
	"replenisher/internal/storage"
)

// Family names one of the entity families writers serialize on.
type Family string

const (
	FamilyTransactions  Family = "transactions"
	FamilyLots          Family = "lots"
	FamilyOrders        Family = "orders"
	FamilyReceivingLogs Family = "receiving_logs"
	FamilySales         Family = "sales"
	FamilyPromoWindows  Family = "promo_windows"
)

var allFamilies = []Family{
	FamilyTransactions, FamilyLots, FamilyOrders,
	FamilyReceivingLogs, FamilySales, FamilyPromoWindows,
}

type writeJob struct {
	fn   func() error
	done chan error
}

// Engine is one running instance: storage, calendar, config, and the
// per-family writer goroutines. Callers perform mutations via Do;
// concurrent readers use Storage directly.
type Engine struct {
	Storage storage.Storage
	Config  *config.Config
	Cal     *calendar.Calendar

	queues map[Family]chan writeJob
	group  *errgroup.Group
	ctx    context.Context
}

// New starts one writer goroutine per entity family, supervised by an
// errgroup.Group. A writer exits when ctx is cancelled or when Shutdown
// closes its queue; Shutdown then waits for every writer to return.
func New(ctx context.Context, store storage.Storage, cfg *config.Config, cal *calendar.Calendar) *Engine {
	eg, gctx := errgroup.WithContext(ctx)
	e := &Engine{
		Storage: store,
		Config:  cfg,
		Cal:     cal,
		queues:  make(map[Family]chan writeJob, len(allFamilies)),
		group:   eg,
		ctx:     gctx,
	}
	for _, fam := range allFamilies {
		ch := make(chan writeJob)
		e.queues[fam] = ch
		eg.Go(func() error { return e.runWriter(ctx, ch) })
	}
	return e
}

func (e *Engine) runWriter(ctx context.Context, jobs chan writeJob) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			job.done <- job.fn()
		}
	}
}

// Do serializes fn through family's writer goroutine. If ctx is
// cancelled before fn starts running, Do returns apperr.Cancelled and fn
// never executes. Once fn has started, cancellation has no effect on it
// per spec.md §5 ("once any persistence call has committed ... cancellation
// is a no-op"): Do always waits for fn to finish and reports its error.
func (e *Engine) Do(ctx context.Context, fam Family, fn func() error) error {
	queue, ok := e.queues[fam]
	if !ok {
		return apperr.Newf(apperr.InvalidInput, "unknown writer family %q", fam)
	}

	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.Cancelled, "cancelled before write was scheduled", err)
	}

	job := writeJob{fn: fn, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return apperr.Wrap(apperr.Cancelled, "cancelled before write was scheduled", ctx.Err())
	case queue <- job:
	}

	return <-job.done
}

// Shutdown stops accepting new jobs and waits for the writer goroutines
// to drain.
func (e *Engine) Shutdown() error {
	for _, ch := range e.queues {
		close(ch)
	}
	if err := e.group.Wait(); err != nil {
		return fmt.Errorf("engine: writer supervision: %w", err)
	}
	return nil
}
