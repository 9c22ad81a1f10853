package engine

import (
	"os"

	"github.com/fastfilecheck/ffc/internal/store"
	"github.com/fastfilecheck/ffc/internal/types"
)

// reconcile runs once after the worker pool drains. It walks every stored
// key and handles entries whose files no longer exist: verify mode records
// them, reconcile mode deletes them inside the same write transaction.
//
// A transaction failure here gets the same treatment as every other store
// error: it is logged and the run carries on, so the final summary is
// always printed.
func (e *Engine) reconcile() {
	var err error
	if e.cfg.Mode == types.ModeVerify {
		err = e.store.View(func(t *store.Txn) error {
			return t.ForEach(func(path string, _ store.FileRecord) error {
				if !fileExists(path) {
					e.sum.RecordChange(path, types.ChangeMissingOnFilesystem)
				}
				return nil
			})
		})
	} else {
		err = e.store.Update(func(t *store.Txn) error {
			// The cursor must not see concurrent deletes, so stale keys are
			// collected first and removed before commit.
			var stale []string
			err := t.ForEach(func(path string, _ store.FileRecord) error {
				if !fileExists(path) {
					stale = append(stale, path)
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, path := range stale {
				e.log.Debugf("removing stale entry: %s", path)
			}
			return t.DeleteKeys(stale)
		})
	}
	if err != nil {
		e.log.Errorf("reconciliation pass failed: %v", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
