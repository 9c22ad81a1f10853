package engine

import (
	"golang.org/x/sys/unix"

	"github.com/fastfilecheck/ffc/internal/fingerprint"
	"github.com/fastfilecheck/ffc/internal/store"
	"github.com/fastfilecheck/ffc/internal/types"
)

// processFile is the per-file handler run by each worker. Any per-file
// failure is logged and skipped; the run always continues with the next
// path.
func (e *Engine) processFile(path string) {
	if path == "" {
		e.log.Warnf("skipping empty path")
		return
	}

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		e.log.Warnf("stat failed for %s: %v", path, err)
		return
	}

	hash, err := fingerprint.File(path, e.cfg.PerWorkerBudget)
	if err != nil {
		e.log.Warnf("fingerprint failed for %s: %v", path, err)
		return
	}

	rec := store.FileRecord{
		Hash:   hash,
		Inode:  st.Ino,
		Links:  uint64(st.Nlink),
		Blocks: st.Blocks,
	}

	switch e.cfg.Mode {
	case types.ModePopulate:
		e.populate(path, rec)
	case types.ModeVerify:
		e.verify(path, rec)
	case types.ModeReconcile:
		e.upsert(path, rec)
	}
}

// populate writes the record unconditionally.
func (e *Engine) populate(path string, rec store.FileRecord) {
	err := e.store.Update(func(t *store.Txn) error {
		return t.PutRecord(path, rec)
	})
	if err != nil {
		e.log.Warnf("store write failed for %s: %v", path, err)
		return
	}
	e.sum.IncrementProcessed()
}

// verify compares the observed record against the stored one and records
// every field that differs. The processed counter moves only for paths with
// no recorded change.
func (e *Engine) verify(path string, rec store.FileRecord) {
	err := e.store.View(func(t *store.Txn) error {
		stored, found, err := t.GetRecord(path)
		if err != nil {
			return err
		}
		if !found {
			e.sum.RecordChange(path, types.ChangeMissingInStore)
			return nil
		}
		if stored.Hash != rec.Hash {
			e.sum.RecordChange(path, types.ChangeHash)
		}
		if stored.Inode != rec.Inode {
			e.sum.RecordChange(path, types.ChangeInode)
		}
		if stored.Links != rec.Links {
			e.sum.RecordChange(path, types.ChangeLinks)
		}
		if stored.Blocks != rec.Blocks {
			e.sum.RecordChange(path, types.ChangeBlocks)
		}
		return nil
	})
	if err != nil {
		e.log.Warnf("store read failed for %s: %v", path, err)
		return
	}
	if !e.sum.Changed(path) {
		e.sum.IncrementProcessed()
	}
}

// upsert writes the record when it is new or has drifted; an unchanged
// record is left untouched and does not count as processed.
func (e *Engine) upsert(path string, rec store.FileRecord) {
	var wrote bool
	err := e.store.Update(func(t *store.Txn) error {
		stored, found, err := t.GetRecord(path)
		if err != nil {
			return err
		}
		if found && stored == rec {
			return nil
		}
		wrote = true
		return t.PutRecord(path, rec)
	})
	if err != nil {
		e.log.Warnf("store write failed for %s: %v", path, err)
		return
	}
	if wrote {
		e.sum.IncrementProcessed()
	}
}
