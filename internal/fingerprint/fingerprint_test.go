package fingerprint

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestFingerprintDeterminism(t *testing.T) {
	path := writeFile(t, bytes.Repeat([]byte("integrity"), 1000))

	first, err := File(path, 1<<30)
	require.NoError(t, err)
	second, err := File(path, 1<<30)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFingerprintMatchesReferenceSum(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	path := writeFile(t, content)

	// Large budget: the file is far below the mmap threshold.
	sum, err := File(path, 1<<30)
	require.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(content), sum)
}

func TestFingerprintChunkedPathMatchesMapped(t *testing.T) {
	content := bytes.Repeat([]byte{0xab, 0xcd, 0xef}, 4096)
	path := writeFile(t, content)

	// A one-byte budget forces the streamed fallback; the clamp keeps the
	// chunk at 10 MiB so the whole file still fits in one read.
	chunked, err := File(path, 1)
	require.NoError(t, err)

	mapped, err := File(path, 1<<30)
	require.NoError(t, err)

	assert.Equal(t, mapped, chunked)
	assert.Equal(t, xxhash.Sum64(content), chunked)
}

func TestFingerprintEmptyFile(t *testing.T) {
	path := writeFile(t, nil)

	sum, err := File(path, 1<<30)
	require.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(nil), sum)
}

func TestFingerprintMissingFile(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "absent"), 1<<30)
	assert.Error(t, err)
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	a := writeFile(t, []byte("a"))
	b := writeFile(t, []byte("b"))

	sumA, err := File(a, 1<<30)
	require.NoError(t, err)
	sumB, err := File(b, 1<<30)
	require.NoError(t, err)

	assert.NotEqual(t, sumA, sumB)
}

func TestChunkSizeClamp(t *testing.T) {
	tests := []struct {
		name   string
		budget uint64
		want   int
	}{
		{"tiny budget clamps up", 1024, minChunkSize},
		{"huge budget clamps down", 1 << 40, maxChunkSize},
		{"mid budget divides by four", 256 * 1024 * 1024, 64 * 1024 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunkSize(tt.budget))
		})
	}
}
