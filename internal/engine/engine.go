// Package engine orchestrates a run: it wires the scanner, the bounded
// queue, the dispatcher, and the worker pool together, then drives the
// reconciliation pass once the workers drain.
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fastfilecheck/ffc/internal/config"
	"github.com/fastfilecheck/ffc/internal/queue"
	"github.com/fastfilecheck/ffc/internal/scanner"
	"github.com/fastfilecheck/ffc/internal/store"
	"github.com/fastfilecheck/ffc/internal/summary"
	"github.com/fastfilecheck/ffc/internal/types"
)

// dispatchIdleDelay is how long the dispatcher sleeps when the queue is
// empty but the scanner is still running.
const dispatchIdleDelay = time.Millisecond

// Engine runs one populate, verify, or reconcile pass over the configured
// roots.
type Engine struct {
	cfg   *config.Config
	store *store.Store
	sum   *summary.Summary
	log   *zap.SugaredLogger
}

// New creates an engine. The store must already be open; the engine does not
// take ownership of it.
func New(cfg *config.Config, st *store.Store, log *zap.SugaredLogger) *Engine {
	return &Engine{
		cfg:   cfg,
		store: st,
		sum:   summary.New(),
		log:   log,
	}
}

// Summary returns the run's aggregator.
func (e *Engine) Summary() *summary.Summary {
	return e.sum
}

// Run executes the full pipeline: scanner → bounded queue → dispatcher →
// worker pool → per-file handler, followed by the reconciliation pass in
// verify and reconcile modes. It returns only after every goroutine it
// started has finished.
func (e *Engine) Run() error {
	q := queue.New(e.cfg.QueueCapacity)

	var scanWG sync.WaitGroup
	scanWG.Add(1)
	go func() {
		defer scanWG.Done()
		scanner.New(e.cfg, q, e.log).Scan()
	}()

	tasks := make(chan string)
	var workers errgroup.Group
	for i := 0; i < e.cfg.WorkerCount; i++ {
		workers.Go(func() error {
			for path := range tasks {
				e.processFile(path)
			}
			return nil
		})
	}

	e.dispatch(q, tasks)
	close(tasks)
	_ = workers.Wait()
	scanWG.Wait()

	if e.cfg.Mode != types.ModePopulate {
		e.reconcile()
	}
	return nil
}

// dispatch moves paths from the queue to the workers. When the queue is
// empty and the scanner has finished, one final drain picks up anything that
// arrived between the empty pop and the done flag, then the loop exits.
func (e *Engine) dispatch(q *queue.FileQueue, tasks chan<- string) {
	for {
		path, ok := q.TryPop()
		if ok {
			tasks <- path
			continue
		}
		if q.ScanningDone() {
			for {
				path, ok := q.TryPop()
				if !ok {
					return
				}
				tasks <- path
			}
		}
		time.Sleep(dispatchIdleDelay)
	}
}
