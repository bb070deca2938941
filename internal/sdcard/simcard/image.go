package simcard

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/desertwitch/wavos/internal/sdcard"
	"golang.org/x/sys/unix"
)

var (
	// ErrEmptyImage occurs when a disk image holds less than one block.
	ErrEmptyImage = errors.New("image smaller than one block")

	// ErrImageClosed occurs when a closed image is read.
	ErrImageClosed = errors.New("image closed")
)

type osProvider interface {
	Open(name string) (*os.File, error)
}

type unixProvider interface {
	Mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error)
	Munmap(b []byte) error
	Madvise(b []byte, advice int) error
}

// Image is a read-only memory mapping of a disk image file.
type Image struct {
	unixHandler unixProvider
	data        []byte
}

// OpenImage maps the disk image at path into memory. Trailing bytes that do
// not fill a whole block are not addressable.
func OpenImage(path string, osHandler osProvider, unixHandler unixProvider) (*Image, error) {
	f, err := osHandler.Open(path)
	if err != nil {
		return nil, fmt.Errorf("(simcard) failed to open image: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("(simcard) failed to stat image: %w", err)
	}

	size := fi.Size() - fi.Size()%sdcard.BlockSize
	if size <= 0 {
		return nil, fmt.Errorf("(simcard) %w: %s", ErrEmptyImage, path)
	}

	data, err := unixHandler.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("(simcard) failed to map image: %w", err)
	}

	// Reads are mostly sequential within a file.
	_ = unixHandler.Madvise(data, unix.MADV_SEQUENTIAL)

	return &Image{
		unixHandler: unixHandler,
		data:        data,
	}, nil
}

// Blocks returns the number of whole blocks in the image.
func (img *Image) Blocks() uint32 {
	return uint32(len(img.data) / sdcard.BlockSize) //nolint:gosec
}

// ReadAt implements [io.ReaderAt].
func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	if img.data == nil {
		return 0, ErrImageClosed
	}
	if off < 0 || off >= int64(len(img.data)) {
		return 0, io.EOF
	}

	n := copy(p, img.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// Close unmaps the image.
func (img *Image) Close() error {
	if img.data == nil {
		return nil
	}

	if err := img.unixHandler.Munmap(img.data); err != nil {
		return fmt.Errorf("(simcard) failed to unmap image: %w", err)
	}
	img.data = nil

	return nil
}
