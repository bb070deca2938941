// Package ext2 implements read-only access to the regular files in the
// root directory of an ext2 filesystem on a block storage device.
//
// A [FileSystem] caches one inode, the root directory index and a file
// cursor. It is not safe for concurrent use; callers serialize access.
package ext2

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// BlockSize is the only supported filesystem block size.
	BlockSize = 1024

	// StorageBlockSize is the block size of the underlying device.
	StorageBlockSize = 512

	// ChunkSize is the size of the chunks [FileSystem.ReadNextChunk] is
	// used with by the player.
	ChunkSize = 256

	// NameLen is the size of the file name buffer, including a terminator.
	NameLen = 75

	// MaxFiles is the capacity of the directory index.
	MaxFiles = 13

	// RootInode is the inode number of the root directory.
	RootInode = 2

	// Magic is the ext2 superblock signature.
	Magic = 0xEF53

	goodOldRev       = 0
	goodOldInodeSize = 128
	superblockOffset = 1024
	superblockSize   = 1024
	groupDescSize    = 32
	featureFiletype  = 0x0002
)

// BlockReader reads byte ranges within the 512 byte blocks of a device.
type BlockReader interface {
	ReadData(block uint32, offset uint16, dst []byte) error
}

// Superblock holds the superblock fields the filesystem depends on.
type Superblock struct {
	InodesCount     uint32
	BlocksCount     uint32
	FreeBlocksCount uint32
	FirstDataBlock  uint32
	LogBlockSize    uint32
	BlocksPerGroup  uint32
	InodesPerGroup  uint32
	Magic           uint16
	RevLevel        uint32
	InodeSize       uint16
	FeatureIncompat uint32
	VolumeName      string
}

func parseSuperblock(b []byte) Superblock {
	sb := Superblock{
		InodesCount:     binary.LittleEndian.Uint32(b[0:]),
		BlocksCount:     binary.LittleEndian.Uint32(b[4:]),
		FreeBlocksCount: binary.LittleEndian.Uint32(b[12:]),
		FirstDataBlock:  binary.LittleEndian.Uint32(b[20:]),
		LogBlockSize:    binary.LittleEndian.Uint32(b[24:]),
		BlocksPerGroup:  binary.LittleEndian.Uint32(b[32:]),
		InodesPerGroup:  binary.LittleEndian.Uint32(b[40:]),
		Magic:           binary.LittleEndian.Uint16(b[56:]),
		RevLevel:        binary.LittleEndian.Uint32(b[76:]),
		InodeSize:       goodOldInodeSize,
	}

	if sb.RevLevel > goodOldRev {
		sb.InodeSize = binary.LittleEndian.Uint16(b[88:])
		sb.FeatureIncompat = binary.LittleEndian.Uint32(b[96:])
		sb.VolumeName = strings.TrimRight(string(b[120:136]), "\x00")
	}

	return sb
}

// Entry describes one regular file of the directory index.
type Entry struct {
	Index int
	Name  string
	Inode uint32
	Size  uint32
}

// FileSystem is a mounted ext2 filesystem.
type FileSystem struct {
	dev BlockReader
	sb  Superblock

	inode    Inode
	inodeNum uint32

	files []uint32

	fileInode uint32
	fileSize  uint32
	name      string
	pos       uint32
}

// Mount reads and validates the superblock of the filesystem on dev.
func Mount(dev BlockReader) (*FileSystem, error) {
	fs := &FileSystem{
		dev:   dev,
		files: make([]uint32, 0, MaxFiles),
	}

	buf := make([]byte, superblockSize)
	if err := fs.readAbs(superblockOffset, buf); err != nil {
		return nil, fmt.Errorf("(ext2) failed to read superblock: %w", err)
	}

	sb := parseSuperblock(buf)
	if sb.Magic != Magic {
		return nil, fmt.Errorf("(ext2) %w: magic 0x%04X", ErrBadMagic, sb.Magic)
	}
	if sb.LogBlockSize != 0 {
		return nil, fmt.Errorf("(ext2) %w: %d bytes", ErrUnsupportedBlockSize, BlockSize<<sb.LogBlockSize)
	}
	if sb.InodesPerGroup == 0 || sb.InodeSize < goodOldInodeSize {
		return nil, fmt.Errorf("(ext2) %w: %d inodes per group of %d bytes", ErrInvalidInode, sb.InodesPerGroup, sb.InodeSize)
	}

	fs.sb = sb

	slog.Debug("Filesystem mounted:",
		"volume", sb.VolumeName,
		"revision", sb.RevLevel,
		"blocks", sb.BlocksCount,
		"inodes", sb.InodesCount,
		"inodesPerGroup", sb.InodesPerGroup,
		"inodeSize", sb.InodeSize,
	)

	return fs, nil
}

// Superblock returns the superblock read at mount time.
func (fs *FileSystem) Superblock() Superblock {
	return fs.sb
}

// hasFiletype reports whether directory entries carry a file type byte in
// place of the high byte of the name length.
func (fs *FileSystem) hasFiletype() bool {
	return fs.sb.FeatureIncompat&featureFiletype != 0
}

// readAbs reads dst at an absolute byte address of the device, splitting
// the read at storage block boundaries.
func (fs *FileSystem) readAbs(addr uint64, dst []byte) error {
	for len(dst) > 0 {
		block := addr / StorageBlockSize
		if block > uint64(^uint32(0)) {
			return fmt.Errorf("(ext2) %w: byte 0x%X", ErrAddressRange, addr)
		}

		offset := addr % StorageBlockSize
		n := min(uint64(len(dst)), StorageBlockSize-offset)

		if err := fs.dev.ReadData(uint32(block), uint16(offset), dst[:n]); err != nil {
			return fmt.Errorf("(ext2) failed to read block %d: %w", block, err)
		}

		dst = dst[n:]
		addr += n
	}

	return nil
}
