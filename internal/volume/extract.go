package volume

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertwitch/wavos/internal/ext2"
	"github.com/zeebo/blake3"
)

const extractSuffix = ".wavos"

type osProvider interface {
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	Stat(name string) (os.FileInfo, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

// fileReader reads a file of the image front to back in chunks, through
// the same cursor the player uses.
type fileReader struct {
	fs        *ext2.FileSystem
	remaining uint32
	chunk     [ext2.ChunkSize]byte
	pending   []byte
}

func (r *fileReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		if r.remaining == 0 {
			return 0, io.EOF
		}

		if err := r.fs.ReadNextChunk(r.chunk[:]); err != nil {
			return 0, err
		}

		n := min(r.remaining, ext2.ChunkSize)
		r.pending = r.chunk[:n]
		r.remaining -= n
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]

	return n, nil
}

type contextReader struct {
	ctx    context.Context //nolint:containedctx
	reader io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.reader.Read(p)
}

// Reader selects file index and returns a reader over its content.
func (v *Volume) Reader(index int) (io.Reader, ext2.Entry, error) {
	e, err := v.FS.Stat(index)
	if err != nil {
		return nil, ext2.Entry{}, fmt.Errorf("(volume) %w", err)
	}

	if err := v.FS.SelectFile(index); err != nil {
		return nil, ext2.Entry{}, fmt.Errorf("(volume) %w", err)
	}

	return &fileReader{fs: v.FS, remaining: e.Size}, e, nil
}

// Digest returns the hex BLAKE3 digest of file index.
func (v *Volume) Digest(ctx context.Context, index int) (string, error) {
	r, _, err := v.Reader(index)
	if err != nil {
		return "", err
	}

	hasher := blake3.New()
	if _, err := io.Copy(hasher, &contextReader{ctx: ctx, reader: r}); err != nil {
		return "", fmt.Errorf("(volume) failed to hash file %d: %w", index, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Extract copies file index into dir under its own name and returns the
// destination path. The copy is hashed on both sides and only renamed into
// place once the digests match.
func (v *Volume) Extract(ctx context.Context, osOps osProvider, index int, dir string) (string, error) {
	r, e, err := v.Reader(index)
	if err != nil {
		return "", err
	}

	if e.Name == "" || e.Name == "." || e.Name == ".." || strings.ContainsRune(e.Name, filepath.Separator) {
		return "", fmt.Errorf("(volume) %w: %q", ErrInvalidName, e.Name)
	}

	destPath := filepath.Join(dir, e.Name)
	tmpPath := destPath + extractSuffix

	transferComplete := false
	defer func() {
		if !transferComplete {
			osOps.Remove(tmpPath) //nolint:errcheck
		}
	}()

	dstFile, err := osOps.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644) //nolint:mnd
	if err != nil {
		return "", fmt.Errorf("(volume) failed to open destination file %s: %w", tmpPath, err)
	}
	defer dstFile.Close()

	srcHasher := blake3.New()
	dstHasher := blake3.New()

	ctxReader := &contextReader{
		ctx:    ctx,
		reader: io.TeeReader(r, srcHasher),
	}
	multiWriter := io.MultiWriter(dstFile, dstHasher)

	if _, err := io.Copy(multiWriter, ctxReader); err != nil {
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("(volume) extraction canceled: %w", err)
		}

		return "", fmt.Errorf("(volume) failed to copy file: %w", err)
	}

	if err := dstFile.Sync(); err != nil {
		return "", fmt.Errorf("(volume) failed to sync destination file: %w", err)
	}

	srcChecksum := hex.EncodeToString(srcHasher.Sum(nil))
	dstChecksum := hex.EncodeToString(dstHasher.Sum(nil))

	if srcChecksum != dstChecksum {
		return "", fmt.Errorf("(volume) %w: %s (src) != %s (dst)", ErrHashMismatch, srcChecksum, dstChecksum)
	}

	if _, err := osOps.Stat(destPath); err == nil {
		return "", fmt.Errorf("(volume) %w: %s", ErrRenameExists, destPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("(volume) failed to check rename destination existence: %w", err)
	}

	if err := osOps.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("(volume) failed to rename temporary file to destination file: %w", err)
	}

	transferComplete = true

	return destPath, nil
}
