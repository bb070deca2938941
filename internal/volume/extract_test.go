package volume

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertwitch/wavos/internal/ext2/ext2test"
	"github.com/desertwitch/wavos/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*31 + 7)
	}

	return data
}

func openPattern(t *testing.T, data []byte) *Volume {
	t.Helper()

	b := ext2test.New()
	b.AddFile("track.raw", data)

	path := filepath.Join(t.TempDir(), "card.img")
	require.NoError(t, os.WriteFile(path, b.Build(), 0o600))

	v, err := Open(path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	return v
}

type failingRename struct {
	*schema.OS
}

func (failingRename) Rename(string, string) error {
	return errors.New("read-only target")
}

// TestVolume_Digest tests hashing a file spanning direct and indirect blocks.
func TestVolume_Digest(t *testing.T) {
	t.Parallel()

	data := pattern(13*1024 + 77)
	v := openPattern(t, data)

	sum := blake3.Sum256(data)

	digest, err := v.Digest(t.Context(), 0)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)

	_, err = v.Digest(t.Context(), 1)
	require.Error(t, err)
}

// TestVolume_Digest_Canceled tests that hashing stops with the context.
func TestVolume_Digest_Canceled(t *testing.T) {
	t.Parallel()

	v := openPattern(t, pattern(2048))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := v.Digest(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
}

// TestVolume_Extract_Success tests extracting a file to the host.
func TestVolume_Extract_Success(t *testing.T) {
	t.Parallel()

	data := pattern(3000)
	v := openPattern(t, data)
	dir := t.TempDir()

	dest, err := v.Extract(t.Context(), &schema.OS{}, 0, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "track.raw"), dest)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.NoFileExists(t, dest+extractSuffix)
}

// TestVolume_Extract_Fail tests that failed extractions leave no files
// behind.
func TestVolume_Extract_Fail(t *testing.T) {
	t.Parallel()

	t.Run("destination exists", func(t *testing.T) {
		t.Parallel()

		v := openPattern(t, pattern(100))
		dir := t.TempDir()

		_, err := v.Extract(t.Context(), &schema.OS{}, 0, dir)
		require.NoError(t, err)

		_, err = v.Extract(t.Context(), &schema.OS{}, 0, dir)
		require.ErrorIs(t, err, ErrRenameExists)
		assert.NoFileExists(t, filepath.Join(dir, "track.raw"+extractSuffix))
	})

	t.Run("rename fails", func(t *testing.T) {
		t.Parallel()

		v := openPattern(t, pattern(100))
		dir := t.TempDir()

		_, err := v.Extract(t.Context(), failingRename{&schema.OS{}}, 0, dir)
		require.ErrorContains(t, err, "read-only target")
		assert.NoFileExists(t, filepath.Join(dir, "track.raw"))
		assert.NoFileExists(t, filepath.Join(dir, "track.raw"+extractSuffix))
	})

	t.Run("missing directory", func(t *testing.T) {
		t.Parallel()

		v := openPattern(t, pattern(100))

		_, err := v.Extract(t.Context(), &schema.OS{}, 0, filepath.Join(t.TempDir(), "missing"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}
