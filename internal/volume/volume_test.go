package volume

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertwitch/wavos/internal/ext2"
	"github.com/desertwitch/wavos/internal/ext2/ext2test"
	"github.com/desertwitch/wavos/internal/schema"
	"github.com/desertwitch/wavos/internal/sdcard"
	"github.com/desertwitch/wavos/internal/sdcard/simcard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T) string {
	t.Helper()

	b := ext2test.New()
	b.AddFile("one.raw", bytes.Repeat([]byte{0x11}, 700))
	b.AddDir("sub")
	b.AddFile("two.raw", bytes.Repeat([]byte{0x22}, 300))

	path := filepath.Join(t.TempDir(), "card.img")
	require.NoError(t, os.WriteFile(path, b.Build(), 0o600))

	return path
}

// TestOpen_Success tests bringing up the full storage stack from an image.
func TestOpen_Success(t *testing.T) {
	t.Parallel()

	v, err := Open(writeImage(t), false, sdcard.WithPartialBlockRead(true))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, v.Close()) })

	assert.Equal(t, 2, v.Files)
	assert.Equal(t, sdcard.TypeSDHC, v.Card.Type())

	require.NoError(t, v.FS.SelectFile(1))
	assert.Equal(t, "two.raw", v.FS.CurrentName())
	assert.Equal(t, uint32(300), v.FS.CurrentSize())

	buf := make([]byte, 4)
	require.NoError(t, v.FS.ReadNextChunk(buf))
	assert.Equal(t, []byte{0x22, 0x22, 0x22, 0x22}, buf)
}

// TestOpen_Fail tests the failures of each bring-up stage.
func TestOpen_Fail(t *testing.T) {
	t.Parallel()

	t.Run("missing image", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing.img"), false)
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("dead card", func(t *testing.T) {
		t.Parallel()

		img, err := simcard.OpenImage(writeImage(t), &schema.OS{}, &schema.Unix{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = img.Close() })

		_, err = mount(img, simcard.New(img, img.Blocks(), simcard.WithFailure(simcard.FailDead)), false)
		require.ErrorIs(t, err, sdcard.ErrNotIdle)
		assert.Contains(t, err.Error(), "card init failed")
	})

	t.Run("not a filesystem", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "zero.img")
		require.NoError(t, os.WriteFile(path, make([]byte, 8*sdcard.BlockSize), 0o600))

		_, err := Open(path, false)
		require.ErrorIs(t, err, ext2.ErrBadMagic)
	})
}
