// Package fingerprint computes the 64-bit content hash stored per file.
//
// The algorithm is XXH64 with seed 0 as implemented by
// github.com/cespare/xxhash/v2. The choice is part of the on-disk format:
// the same byte sequence produces the same fingerprint on every host, so
// records written by one run remain comparable in every later run.
package fingerprint

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sys/unix"
)

const (
	// mmapThresholdRatio: files smaller than this fraction of the per-worker
	// budget are hashed through a read-only memory mapping in one pass.
	mmapThresholdRatio = 0.75

	minChunkSize = 10 * 1024 * 1024
	maxChunkSize = 128 * 1024 * 1024
)

// File hashes the contents of path under the given per-worker byte budget.
// Failure is reported through the error return; every uint64 value,
// including zero, is a valid fingerprint.
func File(path string, perWorkerBudget uint64) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("fingerprint: stat %s: %w", path, err)
	}
	size := info.Size()

	if size > 0 && float64(size) < float64(perWorkerBudget)*mmapThresholdRatio {
		if sum, err := hashMapped(path, size); err == nil {
			return sum, nil
		}
		// Mapping can fail on exotic filesystems; the chunked path below
		// handles every regular file.
	}

	return hashChunked(path, perWorkerBudget)
}

// hashMapped maps the whole file read-only and hashes it in one pass.
func hashMapped(path string, size int64) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("fingerprint: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return 0, fmt.Errorf("fingerprint: mmap %s: %w", path, err)
	}
	defer unix.Munmap(data)

	return xxhash.Sum64(data), nil
}

// hashChunked streams the file through an incremental hash state. The chunk
// size is a quarter of the per-worker budget, clamped so peak residency
// stays between 10 MiB and 128 MiB regardless of the budget.
func hashChunked(path string, perWorkerBudget uint64) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("fingerprint: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize(perWorkerBudget))
	digest := xxhash.New()

	for {
		n, err := f.Read(buf)
		if n > 0 {
			_, _ = digest.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("fingerprint: read %s: %w", path, err)
		}
	}
	return digest.Sum64(), nil
}

func chunkSize(perWorkerBudget uint64) int {
	size := perWorkerBudget / 4
	if size < minChunkSize {
		return minChunkSize
	}
	if size > maxChunkSize {
		return maxChunkSize
	}
	return int(size)
}
