package ext2

import (
	"encoding/binary"
	"fmt"
)

const (
	// InodeRecordSize is the size of the legacy inode record that is read
	// regardless of the on-disk inode stride.
	InodeRecordSize = 128

	// NDirBlocks is the number of direct block pointers of an inode.
	NDirBlocks = 12

	// PointersPerBlock is the number of block pointers in one indirect
	// block.
	PointersPerBlock = BlockSize / 4

	indBlock  = NDirBlocks
	dindBlock = indBlock + 1
	tindBlock = dindBlock + 1
	nBlocks   = tindBlock + 1

	singleSpan = PointersPerBlock
	doubleSpan = singleSpan * PointersPerBlock
	tripleSpan = doubleSpan * PointersPerBlock

	modeTypeMask = 0xF000
	modeRegular  = 0x8000
	modeDir      = 0x4000
)

// Inode is the part of an inode record the filesystem uses.
type Inode struct {
	Mode       uint16
	Size       uint32
	LinksCount uint16
	Blocks     uint32
	Block      [nBlocks]uint32
}

func parseInode(b []byte) Inode {
	ino := Inode{
		Mode:       binary.LittleEndian.Uint16(b[0:]),
		Size:       binary.LittleEndian.Uint32(b[4:]),
		LinksCount: binary.LittleEndian.Uint16(b[26:]),
		Blocks:     binary.LittleEndian.Uint32(b[28:]),
	}

	for i := range ino.Block {
		ino.Block[i] = binary.LittleEndian.Uint32(b[40+4*i:])
	}

	return ino
}

// IsRegular reports whether the inode is a regular file.
func (i Inode) IsRegular() bool {
	return i.Mode&modeTypeMask == modeRegular
}

// IsDir reports whether the inode is a directory.
func (i Inode) IsDir() bool {
	return i.Mode&modeTypeMask == modeDir
}

// LoadInode makes inode n the cached inode. Loading the cached inode again
// reads nothing.
func (fs *FileSystem) LoadInode(n uint32) error {
	if n == fs.inodeNum && n != 0 {
		return nil
	}
	if n == 0 || n > fs.sb.InodesCount {
		return fmt.Errorf("(ext2) %w: %d", ErrInvalidInode, n)
	}

	group := (n - 1) / fs.sb.InodesPerGroup
	slot := (n - 1) % fs.sb.InodesPerGroup

	var desc [4]byte
	descAddr := uint64(fs.sb.FirstDataBlock+1)*BlockSize + uint64(group)*groupDescSize + 8
	if err := fs.readAbs(descAddr, desc[:]); err != nil {
		return fmt.Errorf("(ext2) failed to read group descriptor %d: %w", group, err)
	}

	table := binary.LittleEndian.Uint32(desc[:])
	if table == 0 {
		return fmt.Errorf("(ext2) %w: group %d has no inode table", ErrInvalidInode, group)
	}

	var rec [InodeRecordSize]byte
	addr := uint64(table)*BlockSize + uint64(slot)*uint64(fs.sb.InodeSize)
	if err := fs.readAbs(addr, rec[:]); err != nil {
		return fmt.Errorf("(ext2) failed to read inode %d: %w", n, err)
	}

	fs.inode = parseInode(rec[:])
	fs.inodeNum = n

	return nil
}

// Inode returns the cached inode and its number.
func (fs *FileSystem) Inode() (Inode, uint32) {
	return fs.inode, fs.inodeNum
}

// ResolveBlock maps a byte offset within the cached inode to the number of
// the filesystem block holding it. Zero is returned for holes.
func (fs *FileSystem) ResolveBlock(offset uint64) (uint32, error) {
	index := offset / BlockSize

	if index < NDirBlocks {
		return fs.inode.Block[index], nil
	}
	index -= NDirBlocks

	if index < singleSpan {
		return fs.indirect(fs.inode.Block[indBlock], uint32(index))
	}
	index -= singleSpan

	if index < doubleSpan {
		ptr, err := fs.indirect(fs.inode.Block[dindBlock], uint32(index/singleSpan))
		if err != nil {
			return 0, err
		}

		return fs.indirect(ptr, uint32(index%singleSpan))
	}
	index -= doubleSpan

	if index < tripleSpan {
		ptr, err := fs.indirect(fs.inode.Block[tindBlock], uint32(index/doubleSpan))
		if err != nil {
			return 0, err
		}

		ptr, err = fs.indirect(ptr, uint32(index/singleSpan%singleSpan))
		if err != nil {
			return 0, err
		}

		return fs.indirect(ptr, uint32(index%singleSpan))
	}

	return 0, fmt.Errorf("(ext2) %w: offset %d", ErrBeyondTripleIndirect, offset)
}

// indirect returns pointer index of the indirect block.
func (fs *FileSystem) indirect(block uint32, index uint32) (uint32, error) {
	if block == 0 {
		return 0, nil
	}

	var ptr [4]byte
	if err := fs.readAbs(uint64(block)*BlockSize+uint64(index)*4, ptr[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(ptr[:]), nil
}

// ReadBytes reads len(dst) bytes of the cached inode's data at offset.
// Reads are split at filesystem block boundaries; holes read as zeros.
func (fs *FileSystem) ReadBytes(offset uint32, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}

	within := offset % BlockSize
	if int(within)+len(dst) > BlockSize {
		pre := BlockSize - within
		if err := fs.ReadBytes(offset, dst[:pre]); err != nil {
			return err
		}

		return fs.ReadBytes(offset+pre, dst[pre:])
	}

	block, err := fs.ResolveBlock(uint64(offset))
	if err != nil {
		return err
	}

	if block == 0 {
		clear(dst)

		return nil
	}

	return fs.readAbs(uint64(block)*BlockSize+uint64(within), dst)
}
