package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastfilecheck/ffc/internal/logging"
	"github.com/fastfilecheck/ffc/internal/store"
	"github.com/fastfilecheck/ffc/internal/types"
)

func TestWatchPicksUpCreatedFile(t *testing.T) {
	tr := newTestRun(t)
	tr.write(t, "existing", "1")
	tr.run(t, types.ModeReconcile)

	eng := New(tr.config(types.ModeReconcile), tr.store, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = eng.Watch(ctx)
	}()

	// Give the watcher a moment to register the tree before writing.
	time.Sleep(200 * time.Millisecond)
	created := tr.write(t, "created", "2")

	require.Eventually(t, func() bool {
		var found bool
		_ = tr.store.View(func(txn *store.Txn) error {
			_, found, _ = txn.GetRecord(created)
			return nil
		})
		return found
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	wg.Wait()
}

func TestWatchRemovesDeletedFile(t *testing.T) {
	tr := newTestRun(t)
	doomed := tr.write(t, "doomed", "1")
	tr.run(t, types.ModeReconcile)

	eng := New(tr.config(types.ModeReconcile), tr.store, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = eng.Watch(ctx)
	}()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.Remove(doomed))

	require.Eventually(t, func() bool {
		var found bool
		_ = tr.store.View(func(txn *store.Txn) error {
			_, found, _ = txn.GetRecord(doomed)
			return nil
		})
		return !found
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	wg.Wait()
}

func TestWatchReturnsOnCancel(t *testing.T) {
	tr := newTestRun(t)
	eng := New(tr.config(types.ModeReconcile), tr.store, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Watch(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}

func TestAddWatchTreeSkipsExcludedDirs(t *testing.T) {
	tr := newTestRun(t)
	tr.write(t, filepath.Join("skip", "f"), "1")
	tr.write(t, filepath.Join("keep", "f"), "1")

	cfg := tr.config(types.ModeReconcile)
	cfg.ExcludeDirs = map[string]struct{}{filepath.Join(tr.root, "skip"): {}}
	eng := New(cfg, tr.store, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = eng.Watch(ctx)
	}()

	time.Sleep(200 * time.Millisecond)
	inSkipped := tr.write(t, filepath.Join("skip", "new"), "2")

	// The excluded directory is not watched, so the new file never lands in
	// the store.
	time.Sleep(500 * time.Millisecond)
	var found bool
	_ = tr.store.View(func(txn *store.Txn) error {
		_, found, _ = txn.GetRecord(inSkipped)
		return nil
	})
	assert.False(t, found)

	cancel()
	wg.Wait()
}
