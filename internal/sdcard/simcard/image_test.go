package simcard

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertwitch/wavos/internal/schema"
	"github.com/desertwitch/wavos/internal/sdcard"
	"github.com/desertwitch/wavos/internal/sdcard/simcard/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, size int) string {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}

	path := filepath.Join(t.TempDir(), "card.img")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

// TestOpenImage_Success tests mapping and reading a disk image.
func TestOpenImage_Success(t *testing.T) {
	t.Parallel()

	path := writeImage(t, 3*sdcard.BlockSize+100)

	img, err := OpenImage(path, &schema.OS{}, &schema.Unix{})
	require.NoError(t, err)

	assert.Equal(t, uint32(3), img.Blocks())

	buf := make([]byte, 4)
	n, err := img.ReadAt(buf, 512)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0, 1, 2, 3}, buf)

	n, err = img.ReadAt(buf, 3*sdcard.BlockSize-2)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)

	require.NoError(t, img.Close())
	require.NoError(t, img.Close())

	_, err = img.ReadAt(buf, 0)
	require.ErrorIs(t, err, ErrImageClosed)
}

// TestOpenImage_Card is an integration test serving a card from an image.
func TestOpenImage_Card(t *testing.T) {
	t.Parallel()

	path := writeImage(t, 8*sdcard.BlockSize)

	img, err := OpenImage(path, &schema.OS{}, &schema.Unix{})
	require.NoError(t, err)
	defer img.Close()

	card := sdcard.New(New(img, img.Blocks()))
	require.NoError(t, card.Init(false))

	buf := make([]byte, sdcard.BlockSize)
	require.NoError(t, card.ReadBlock(7, buf))
	assert.Equal(t, byte(0), buf[0])
	assert.Equal(t, byte(255), buf[255])
}

// TestOpenImage_Fail tests the failing providers and empty images.
func TestOpenImage_Fail(t *testing.T) {
	t.Parallel()

	t.Run("open", func(t *testing.T) {
		t.Parallel()

		osMock := mocks.NewOsProvider(t)
		unixMock := mocks.NewUnixProvider(t)
		osMock.On("Open", "missing.img").Return(nil, os.ErrNotExist)

		_, err := OpenImage("missing.img", osMock, unixMock)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		path := writeImage(t, 100)

		_, err := OpenImage(path, &schema.OS{}, mocks.NewUnixProvider(t))
		require.ErrorIs(t, err, ErrEmptyImage)
	})

	t.Run("mmap", func(t *testing.T) {
		t.Parallel()

		path := writeImage(t, sdcard.BlockSize)
		errMap := errors.New("mmap failed")

		unixMock := mocks.NewUnixProvider(t)
		unixMock.On("Mmap", mock.Anything, int64(0), sdcard.BlockSize, mock.Anything, mock.Anything).Return(nil, errMap)

		_, err := OpenImage(path, &schema.OS{}, unixMock)
		require.ErrorIs(t, err, errMap)
	})

	t.Run("munmap", func(t *testing.T) {
		t.Parallel()

		errUnmap := errors.New("munmap failed")
		data := make([]byte, sdcard.BlockSize)

		unixMock := mocks.NewUnixProvider(t)
		unixMock.On("Munmap", data).Return(errUnmap)

		img := &Image{unixHandler: unixMock, data: data}
		require.ErrorIs(t, img.Close(), errUnmap)
	})
}
