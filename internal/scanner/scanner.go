// Package scanner walks the configured root directories and feeds the paths
// of regular files into the bounded queue. The scanner never fails a run:
// unreadable directories are logged and skipped, over-deep branches are
// logged and abandoned, and symlink cycles are broken with a visited set.
package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/fastfilecheck/ffc/internal/config"
	"github.com/fastfilecheck/ffc/internal/queue"
)

// batchSize is how many discovered paths are buffered before flushing them
// to the queue.
const batchSize = 1000

// Scanner enumerates regular files under a set of roots. Not safe for
// concurrent use; one scanner runs on one goroutine per run.
type Scanner struct {
	cfg   *config.Config
	queue *queue.FileQueue
	log   *zap.SugaredLogger

	visited map[string]struct{}
	batch   []string
	root    string // root currently being walked, for pattern matching
}

// New creates a scanner that pushes into q.
func New(cfg *config.Config, q *queue.FileQueue, log *zap.SugaredLogger) *Scanner {
	return &Scanner{
		cfg:     cfg,
		queue:   q,
		log:     log,
		visited: make(map[string]struct{}),
		batch:   make([]string, 0, batchSize),
	}
}

// Scan walks every configured root, then flushes the residual batch and
// marks the queue as done. This is the only completion signal the dispatcher
// observes.
func (s *Scanner) Scan() {
	for _, root := range s.cfg.Roots {
		s.root = root
		s.scanDir(root, 0)
	}
	s.flush()
	s.queue.SetScanningDone()
}

func (s *Scanner) scanDir(dir string, depth int) {
	if depth > s.cfg.MaxDepth {
		s.log.Warnf("max recursion depth exceeded at: %s", dir)
		return
	}

	// Resolve symlinks so a looping link is recognized the second time
	// around regardless of the path it was reached through.
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		s.log.Warnf("skipping unresolvable directory %s: %v", dir, err)
		return
	}
	if _, seen := s.visited[real]; seen {
		s.log.Debugf("skipping already visited directory: %s", dir)
		return
	}
	s.visited[real] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Warnf("failed to open directory %s: %v", dir, err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)

		if s.shouldSkip(name, full) {
			continue
		}

		info, err := os.Stat(full)
		if err != nil {
			s.log.Debugf("stat failed for %s: %v", full, err)
			continue
		}

		switch {
		case info.IsDir():
			s.scanDir(full, depth+1)
		case info.Mode().IsRegular():
			s.batch = append(s.batch, full)
			if len(s.batch) >= batchSize {
				s.flush()
			}
		}
	}
}

// shouldSkip applies the exclusion rules in short-circuit order: hidden
// prefix, excluded-directory full path, excluded extension, then glob
// patterns against the root-relative path.
func (s *Scanner) shouldSkip(name, full string) bool {
	if s.cfg.ExcludeHidden && strings.HasPrefix(name, ".") {
		return true
	}

	if _, excluded := s.cfg.ExcludeDirs[full]; excluded {
		return true
	}

	if len(s.cfg.ExcludeExts) > 0 {
		if dot := strings.LastIndex(name, "."); dot >= 0 && dot < len(name)-1 {
			if _, excluded := s.cfg.ExcludeExts[name[dot:]]; excluded {
				return true
			}
		}
	}

	if len(s.cfg.ExcludePatterns) > 0 {
		rel, err := filepath.Rel(s.root, full)
		if err != nil {
			rel = full
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range s.cfg.ExcludePatterns {
			if matched, _ := doublestar.Match(pattern, rel); matched {
				return true
			}
		}
	}

	return false
}

// flush drains the batch into the queue. Each push respects the queue's
// back-pressure, so a slow consumer stalls the scan here.
func (s *Scanner) flush() {
	for _, path := range s.batch {
		s.queue.Push(path)
	}
	s.batch = s.batch[:0]
}
