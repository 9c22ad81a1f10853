package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastfilecheck/ffc/internal/logging"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(t.TempDir(), 64*1024*1024, Options{}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStorePutGetDelete(t *testing.T) {
	st := openTestStore(t)
	rec := FileRecord{Hash: 7, Inode: 1, Links: 1, Blocks: 8}

	require.NoError(t, st.Update(func(txn *Txn) error {
		return txn.PutRecord("/a", rec)
	}))

	err := st.View(func(txn *Txn) error {
		got, found, err := txn.GetRecord("/a")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, rec, got)

		_, found, err = txn.GetRecord("/missing")
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, st.Update(func(txn *Txn) error {
		return txn.DeleteRecord("/a")
	}))

	n, err := st.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStorePutOverwrites(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.Update(func(txn *Txn) error {
		return txn.PutRecord("/a", FileRecord{Hash: 1})
	}))
	require.NoError(t, st.Update(func(txn *Txn) error {
		return txn.PutRecord("/a", FileRecord{Hash: 2})
	}))

	err := st.View(func(txn *Txn) error {
		got, found, err := txn.GetRecord("/a")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, uint64(2), got.Hash)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreCursorAscendingByteOrder(t *testing.T) {
	st := openTestStore(t)

	paths := []string{"/b", "/a/z", "/a", "/c"}
	require.NoError(t, st.Update(func(txn *Txn) error {
		for i, p := range paths {
			if err := txn.PutRecord(p, FileRecord{Hash: uint64(i)}); err != nil {
				return err
			}
		}
		return nil
	}))

	var got []string
	err := st.View(func(txn *Txn) error {
		return txn.ForEach(func(path string, _ FileRecord) error {
			got = append(got, path)
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/a/z", "/b", "/c"}, got)
}

func TestStoreFailedUpdateLeavesPriorState(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.Update(func(txn *Txn) error {
		return txn.PutRecord("/a", FileRecord{Hash: 1})
	}))

	boom := errors.New("boom")
	err := st.Update(func(txn *Txn) error {
		if err := txn.PutRecord("/a", FileRecord{Hash: 99}); err != nil {
			return err
		}
		if err := txn.PutRecord("/b", FileRecord{Hash: 100}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = st.View(func(txn *Txn) error {
		got, found, err := txn.GetRecord("/a")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, uint64(1), got.Hash)

		_, found, err = txn.GetRecord("/b")
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreDeleteKeys(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.Update(func(txn *Txn) error {
		for _, p := range []string{"/a", "/b", "/c"} {
			if err := txn.PutRecord(p, FileRecord{}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, st.Update(func(txn *Txn) error {
		return txn.DeleteKeys([]string{"/a", "/c"})
	}))

	n, err := st.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	log := logging.NewNop()

	st, err := Open(dir, 64*1024*1024, Options{}, log)
	require.NoError(t, err)
	require.NoError(t, st.Update(func(txn *Txn) error {
		return txn.PutRecord("/a", FileRecord{Hash: 5})
	}))
	require.NoError(t, st.Close())

	st, err = Open(dir, 64*1024*1024, Options{}, log)
	require.NoError(t, err)
	defer st.Close()

	err = st.View(func(txn *Txn) error {
		got, found, err := txn.GetRecord("/a")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, uint64(5), got.Hash)
		return nil
	})
	require.NoError(t, err)
}
