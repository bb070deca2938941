package ext2

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

const dirEntryHeaderSize = 8

type dirEntry struct {
	inode   uint32
	recLen  uint16
	nameLen uint16
}

// readDirEntry reads the entry header at offset of the root directory.
func (fs *FileSystem) readDirEntry(offset uint32) (dirEntry, error) {
	if err := fs.LoadInode(RootInode); err != nil {
		return dirEntry{}, err
	}

	var hdr [dirEntryHeaderSize]byte
	if err := fs.ReadBytes(offset, hdr[:]); err != nil {
		return dirEntry{}, fmt.Errorf("(ext2) failed to read directory entry at %d: %w", offset, err)
	}

	e := dirEntry{
		inode:   binary.LittleEndian.Uint32(hdr[0:]),
		recLen:  binary.LittleEndian.Uint16(hdr[4:]),
		nameLen: binary.LittleEndian.Uint16(hdr[6:]),
	}

	if fs.hasFiletype() {
		e.nameLen &= 0xFF
	}

	return e, nil
}

// readName reads the name of the root directory entry at offset,
// truncated to fit the name buffer.
func (fs *FileSystem) readName(offset uint32, e dirEntry) (string, error) {
	n := min(int(e.nameLen), NameLen-1)

	var name [NameLen]byte
	if err := fs.ReadBytes(offset+dirEntryHeaderSize, name[:n]); err != nil {
		return "", fmt.Errorf("(ext2) failed to read name at %d: %w", offset, err)
	}

	return string(name[:n]), nil
}

// EnumerateFiles scans the root directory and records every regular file
// in the directory index, replacing the previous index. It returns the
// number of files found.
func (fs *FileSystem) EnumerateFiles() (int, error) {
	if err := fs.LoadInode(RootInode); err != nil {
		return 0, err
	}

	fs.files = fs.files[:0]
	ignored := 0

	size := fs.inode.Size
	for offset := uint32(0); offset < size; {
		e, err := fs.readDirEntry(offset)
		if err != nil {
			return len(fs.files), err
		}
		if e.recLen == 0 {
			return len(fs.files), fmt.Errorf("(ext2) %w: zero record length at %d", ErrCorruptDirectory, offset)
		}

		if e.inode != 0 {
			if err := fs.LoadInode(e.inode); err != nil {
				return len(fs.files), err
			}

			if fs.inode.IsRegular() {
				if len(fs.files) < MaxFiles {
					fs.files = append(fs.files, offset)
				} else {
					ignored++
				}
			}
		}

		offset += uint32(e.recLen)
	}

	if ignored > 0 {
		slog.Warn("Directory index full, ignoring files:",
			"capacity", MaxFiles,
			"ignored", ignored,
		)
	}

	if fs.fileInode != 0 {
		if err := fs.LoadInode(fs.fileInode); err != nil {
			return len(fs.files), err
		}
	}

	return len(fs.files), nil
}

// NumFiles returns the size of the directory index.
func (fs *FileSystem) NumFiles() int {
	return len(fs.files)
}

// SelectFile makes file index of the directory index the current file and
// rewinds the cursor.
func (fs *FileSystem) SelectFile(index int) error {
	if index < 0 || index >= len(fs.files) {
		return fmt.Errorf("(ext2) %w: index %d of %d", ErrNoSuchFile, index, len(fs.files))
	}

	offset := fs.files[index]

	e, err := fs.readDirEntry(offset)
	if err != nil {
		return err
	}

	name, err := fs.readName(offset, e)
	if err != nil {
		return err
	}

	if err := fs.LoadInode(e.inode); err != nil {
		return err
	}

	fs.name = name
	fs.pos = 0
	fs.fileInode = e.inode
	fs.fileSize = fs.inode.Size

	return nil
}

// Stat returns the entry of file index without changing the current file.
func (fs *FileSystem) Stat(index int) (Entry, error) {
	if index < 0 || index >= len(fs.files) {
		return Entry{}, fmt.Errorf("(ext2) %w: index %d of %d", ErrNoSuchFile, index, len(fs.files))
	}

	offset := fs.files[index]

	e, err := fs.readDirEntry(offset)
	if err != nil {
		return Entry{}, err
	}

	name, err := fs.readName(offset, e)
	if err != nil {
		return Entry{}, err
	}

	if err := fs.LoadInode(e.inode); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Index: index,
		Name:  name,
		Inode: e.inode,
		Size:  fs.inode.Size,
	}

	if fs.fileInode != 0 {
		if err := fs.LoadInode(fs.fileInode); err != nil {
			return entry, err
		}
	}

	return entry, nil
}

// ReadNextChunk fills buf with the current file's data at the cursor and
// advances the cursor by len(buf). Bytes past the end of the file read as
// zeros. Once the cursor reaches the file size it wraps to the start.
func (fs *FileSystem) ReadNextChunk(buf []byte) error {
	if fs.fileInode == 0 {
		return ErrNoFileSelected
	}

	if err := fs.LoadInode(fs.fileInode); err != nil {
		return err
	}

	n := uint32(len(buf)) //nolint:gosec
	avail := uint32(0)
	if fs.pos < fs.fileSize {
		avail = min(n, fs.fileSize-fs.pos)
	}

	if err := fs.ReadBytes(fs.pos, buf[:avail]); err != nil {
		return err
	}
	clear(buf[avail:])

	if fs.pos += n; fs.pos >= fs.fileSize {
		fs.pos = 0
	}

	return nil
}

// CurrentName returns the name of the current file.
func (fs *FileSystem) CurrentName() string {
	return fs.name
}

// CurrentPosition returns the cursor within the current file.
func (fs *FileSystem) CurrentPosition() uint32 {
	return fs.pos
}

// CurrentSize returns the size of the current file.
func (fs *FileSystem) CurrentSize() uint32 {
	return fs.fileSize
}
