package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunBlockstoreConformance(t, func(t *testing.T) storage.Blockstore {
		t.Helper()
		s, err := New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	orig := testkit.RawBlock(t, "original")
	require.NoError(t, s.Put(ctx, orig))

	// Corrupt the stored block out-of-band.
	path := s.pathFor(orig.Cid().Hash())
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))

	_, err = s.Get(ctx, orig.Cid())
	assert.ErrorIs(t, err, storage.ErrDigestMismatch)

	// Put must not "repair" or overwrite the corrupted block.
	err = s.Put(ctx, orig)
	assert.ErrorIs(t, err, storage.ErrDigestMismatch)
}

func TestLocalFS_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	for _, d := range []string{"one", "two", "three"} {
		require.NoError(t, s.Put(ctx, testkit.RawBlock(t, d)))
	}
	leftovers, err := filepath.Glob(filepath.Join(dir, "*", ".put-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestLocalFS_RequiresRoot(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
