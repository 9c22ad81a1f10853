package engine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fastfilecheck/ffc/internal/store"
)

// Watch keeps the store in step with the filesystem after an initial
// reconcile run. Events are debounced so editors that write a file several
// times in quick succession trigger one re-fingerprint, not five. Returns
// when ctx is cancelled.
func (e *Engine) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, root := range e.cfg.Roots {
		if err := e.addWatchTree(fsw, root); err != nil {
			e.log.Warnf("watch setup failed for %s: %v", root, err)
		}
	}

	debounce := time.Duration(e.cfg.WatchDebounceMs) * time.Millisecond
	pending := make(map[string]fsnotify.Op)
	settle := time.NewTimer(debounce)
	if !settle.Stop() {
		<-settle.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			pending[ev.Name] |= ev.Op
			settle.Reset(debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			e.log.Warnf("watch error: %v", err)

		case <-settle.C:
			for path, op := range pending {
				e.handleEvent(fsw, path, op)
			}
			clear(pending)
		}
	}
}

// handleEvent applies one settled filesystem event to the store.
func (e *Engine) handleEvent(fsw *fsnotify.Watcher, path string, op fsnotify.Op) {
	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		err := e.store.Update(func(t *store.Txn) error {
			return t.DeleteRecord(path)
		})
		if err != nil {
			e.log.Warnf("store delete failed for %s: %v", path, err)
		}
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Gone again before the debounce settled.
		return
	}
	if info.IsDir() {
		if op.Has(fsnotify.Create) {
			if err := e.addWatchTree(fsw, path); err != nil {
				e.log.Warnf("watch setup failed for %s: %v", path, err)
			}
		}
		return
	}
	if info.Mode().IsRegular() {
		e.processFile(path)
	}
}

// addWatchTree registers root and every directory below it, honoring the
// scanner's hidden and excluded-directory rules plus the depth bound. Depth
// is counted from the configured root that contains root, so directories
// created while watching get the same bound as the initial registration.
func (e *Engine) addWatchTree(fsw *fsnotify.Watcher, root string) error {
	base := root
	for _, r := range e.cfg.Roots {
		if root == r || strings.HasPrefix(root, r+string(filepath.Separator)) {
			base = r
			break
		}
	}
	rootDepth := strings.Count(filepath.Clean(base), string(filepath.Separator))

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			e.log.Debugf("watch walk error at %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != base && e.cfg.ExcludeHidden && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if _, excluded := e.cfg.ExcludeDirs[path]; excluded {
			return filepath.SkipDir
		}
		depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
		if depth > e.cfg.MaxDepth {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			e.log.Warnf("cannot watch %s: %v", path, err)
		}
		return nil
	})
}
