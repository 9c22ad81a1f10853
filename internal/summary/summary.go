// Package summary aggregates per-run counters and the per-path change log.
// One Summary lives for the whole run; workers share it and every mutation
// happens under its internal mutex.
package summary

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fastfilecheck/ffc/internal/types"
)

// Counters is a point-in-time copy of the run counters.
type Counters struct {
	Processed        uint64
	FilesWithChanges uint64
	HashMismatches   uint64
	InodeChanges     uint64
	LinkChanges      uint64
	BlockChanges     uint64
	MissingInStore   uint64
	MissingOnFS      uint64
}

// Summary collects counters and the change log. Safe for concurrent use.
type Summary struct {
	mu       sync.Mutex
	counters Counters
	changes  map[string][]types.ChangeKind
}

// New creates an empty summary.
func New() *Summary {
	return &Summary{changes: make(map[string][]types.ChangeKind)}
}

// IncrementProcessed bumps the processed-files counter.
func (s *Summary) IncrementProcessed() {
	s.mu.Lock()
	s.counters.Processed++
	s.mu.Unlock()
}

// RecordChange appends kind to the change list for path. The first change
// recorded for a path also bumps FilesWithChanges; the per-kind counter is
// bumped on every call.
func (s *Summary) RecordChange(path string, kind types.ChangeKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.changes[path]; !seen {
		s.counters.FilesWithChanges++
	}
	s.changes[path] = append(s.changes[path], kind)

	switch kind {
	case types.ChangeHash:
		s.counters.HashMismatches++
	case types.ChangeInode:
		s.counters.InodeChanges++
	case types.ChangeLinks:
		s.counters.LinkChanges++
	case types.ChangeBlocks:
		s.counters.BlockChanges++
	case types.ChangeMissingInStore:
		s.counters.MissingInStore++
	case types.ChangeMissingOnFilesystem:
		s.counters.MissingOnFS++
	}
}

// Changed reports whether path has at least one recorded change.
func (s *Summary) Changed(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.changes[path]
	return seen
}

// Snapshot returns a copy of the counters and the change log.
func (s *Summary) Snapshot() (Counters, map[string][]types.ChangeKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changes := make(map[string][]types.ChangeKind, len(s.changes))
	for path, kinds := range s.changes {
		changes[path] = append([]types.ChangeKind(nil), kinds...)
	}
	return s.counters, changes
}

// Print writes the end-of-run summary. Verify mode gets the full breakdown
// with the affected paths in sorted order when any change was recorded, and
// a single "No changes detected." line otherwise; the write modes get a
// terse success line.
func (s *Summary) Print(w io.Writer, mode types.Mode) {
	counters, changes := s.Snapshot()

	fmt.Fprintf(w, "\n=== Summary ===\n")
	fmt.Fprintf(w, "Total files processed: %d\n", counters.Processed)

	if mode != types.ModeVerify {
		action := "addition"
		if mode == types.ModeReconcile {
			action = "update"
		}
		fmt.Fprintf(w, "Database %s completed successfully.\n", action)
		return
	}

	if counters.FilesWithChanges == 0 {
		fmt.Fprintf(w, "No changes detected.\n")
		return
	}

	fmt.Fprintf(w, "Files with changes: %d\n", counters.FilesWithChanges)
	fmt.Fprintf(w, "\nChanges breakdown:\n")
	fmt.Fprintf(w, "- Hash mismatches: %d\n", counters.HashMismatches)
	fmt.Fprintf(w, "- Inode changes: %d\n", counters.InodeChanges)
	fmt.Fprintf(w, "- Link count changes: %d\n", counters.LinkChanges)
	fmt.Fprintf(w, "- Block count changes: %d\n", counters.BlockChanges)
	fmt.Fprintf(w, "- Missing files in the database: %d\n", counters.MissingInStore)
	fmt.Fprintf(w, "- Missing files on the filesystem: %d\n", counters.MissingOnFS)

	paths := make([]string, 0, len(changes))
	for path := range changes {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	fmt.Fprintf(w, "\nAffected files:\n")
	for _, path := range paths {
		fmt.Fprintf(w, "%s:\n", path)
		for _, kind := range changes[path] {
			fmt.Fprintf(w, "  - %s\n", kind)
		}
	}
}
