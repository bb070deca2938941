// Package ext2test builds small ext2 images in memory and serves them as
// block devices, for tests of the filesystem and the layers above it.
package ext2test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	blockSize        = 1024
	storageBlockSize = 512
	rootInode        = 2
	firstInode       = 11
	magic            = 0xEF53
	featureFiletype  = 0x0002

	modeRegular = 0x81A4
	modeDir     = 0x41ED
	modeSymlink = 0xA1FF

	ftRegular = 1
	ftDir     = 2
	ftSymlink = 7
)

// ErrDeviceRange occurs when a device read is out of bounds.
var ErrDeviceRange = errors.New("device read out of range")

type entry struct {
	name  string
	inode uint32
	ftype byte
}

type inodeDef struct {
	mode    uint16
	data    []byte
	symlink bool
}

// Option configures a [Builder].
type Option func(*Builder)

// WithRevision sets the revision level and, for revision 1, the on-disk
// inode size.
func WithRevision(rev uint32, inodeSize int) Option {
	return func(b *Builder) {
		b.revision = rev
		b.inodeSize = inodeSize
	}
}

// WithGroups sets the number of block groups and inodes per group.
func WithGroups(groups int, inodesPerGroup uint32) Option {
	return func(b *Builder) {
		b.groups = groups
		b.ipg = inodesPerGroup
	}
}

// WithFiletype enables the directory entry file type feature (revision 1
// only).
func WithFiletype() Option {
	return func(b *Builder) { b.filetype = true }
}

// WithVolumeName sets the volume name (revision 1 only).
func WithVolumeName(name string) Option {
	return func(b *Builder) { b.volume = name }
}

// Builder assembles an ext2 image with a populated root directory.
type Builder struct {
	revision  uint32
	inodeSize int
	groups    int
	ipg       uint32
	filetype  bool
	volume    string

	entries   []entry
	inodes    map[uint32]inodeDef
	nextInode uint32

	data []byte
}

// New returns a pointer to a new [Builder] for a revision 0 image of two
// groups with 16 inodes each.
func New(opts ...Option) *Builder {
	b := &Builder{
		inodeSize: 128,
		groups:    2,
		ipg:       16,
		inodes:    make(map[uint32]inodeDef),
		nextInode: firstInode,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.revision == 0 {
		b.inodeSize = 128
		b.filetype = false
	}

	return b
}

func (b *Builder) add(name string, ftype byte, def inodeDef) uint32 {
	n := b.nextInode
	b.nextInode++

	b.inodes[n] = def
	b.entries = append(b.entries, entry{name: name, inode: n, ftype: ftype})

	return n
}

// AddFile adds a regular file and returns its inode number.
func (b *Builder) AddFile(name string, data []byte) uint32 {
	return b.add(name, ftRegular, inodeDef{mode: modeRegular, data: data})
}

// AddDir adds an empty directory and returns its inode number.
func (b *Builder) AddDir(name string) uint32 {
	return b.add(name, ftDir, inodeDef{mode: modeDir})
}

// AddSymlink adds a fast symbolic link and returns its inode number.
func (b *Builder) AddSymlink(name, target string) uint32 {
	return b.add(name, ftSymlink, inodeDef{mode: modeSymlink, data: []byte(target), symlink: true})
}

// AddDeleted adds a directory entry whose inode was released.
func (b *Builder) AddDeleted(name string) {
	b.entries = append(b.entries, entry{name: name})
}

// Build lays out the image and returns it.
func (b *Builder) Build() []byte {
	inodesCount := uint32(b.groups) * b.ipg //nolint:gosec
	if b.nextInode-1 > inodesCount {
		panic(fmt.Sprintf("ext2test: %d inodes do not fit %d", b.nextInode-1, inodesCount))
	}

	tableBlocks := (int(b.ipg)*b.inodeSize + blockSize - 1) / blockSize

	// Boot block, superblock and group descriptor table.
	b.data = make([]byte, 3*blockSize)

	tables := make([]uint32, b.groups)
	for g := range tables {
		tables[g] = b.alloc()
		for range tableBlocks - 1 {
			b.alloc()
		}
		b.put32(2*blockSize+g*32+8, tables[g])
	}

	for n := firstInode; n < int(b.nextInode); n++ {
		def := b.inodes[uint32(n)] //nolint:gosec
		if def.symlink {
			b.writeInode(tables, uint32(n), def.mode, uint32(len(def.data)), [15]uint32{}, def.data) //nolint:gosec
			continue
		}

		b.writeInode(tables, uint32(n), def.mode, uint32(len(def.data)), b.allocData(def.data), nil) //nolint:gosec
	}

	dir := b.directory()
	b.writeInode(tables, rootInode, modeDir, uint32(len(dir)), b.allocData(dir), nil) //nolint:gosec

	b.superblock(inodesCount)

	return b.data
}

func (b *Builder) alloc() uint32 {
	n := uint32(len(b.data) / blockSize) //nolint:gosec
	b.data = append(b.data, make([]byte, blockSize)...)

	return n
}

func (b *Builder) put16(off int, v uint16) {
	binary.LittleEndian.PutUint16(b.data[off:], v)
}

func (b *Builder) put32(off int, v uint32) {
	binary.LittleEndian.PutUint32(b.data[off:], v)
}

// allocData stores data in freshly allocated blocks and returns the block
// pointer table, building indirect blocks as needed.
func (b *Builder) allocData(data []byte) [15]uint32 {
	var ptrs [15]uint32

	blocks := make([]uint32, 0, (len(data)+blockSize-1)/blockSize)
	for off := 0; off < len(data); off += blockSize {
		blk := b.alloc()
		copy(b.data[int(blk)*blockSize:], data[off:min(off+blockSize, len(data))])
		blocks = append(blocks, blk)
	}

	i := 0
	for ; i < len(blocks) && i < 12; i++ {
		ptrs[i] = blocks[i]
	}

	rest := blocks[i:]
	for depth := 1; depth <= 3 && len(rest) > 0; depth++ {
		ptrs[11+depth], rest = b.indirectTree(rest, depth)
	}

	return ptrs
}

func (b *Builder) indirectTree(blocks []uint32, depth int) (uint32, []uint32) {
	blk := b.alloc()

	for i := 0; i < blockSize/4 && len(blocks) > 0; i++ {
		var ptr uint32
		if depth == 1 {
			ptr, blocks = blocks[0], blocks[1:]
		} else {
			ptr, blocks = b.indirectTree(blocks, depth-1)
		}
		b.put32(int(blk)*blockSize+4*i, ptr)
	}

	return blk, blocks
}

func (b *Builder) writeInode(tables []uint32, n uint32, mode uint16, size uint32, ptrs [15]uint32, inline []byte) {
	g := (n - 1) / b.ipg
	slot := (n - 1) % b.ipg
	off := int(tables[g])*blockSize + int(slot)*b.inodeSize

	sectors := uint32(0)
	for _, p := range ptrs {
		if p != 0 {
			sectors += blockSize / storageBlockSize
		}
	}

	b.put16(off, mode)
	b.put32(off+4, size)
	b.put16(off+26, 1)
	b.put32(off+28, sectors)

	for i, p := range ptrs {
		b.put32(off+40+4*i, p)
	}
	copy(b.data[off+40:off+100], inline)
}

// directory encodes the root directory entries, never letting an entry
// cross a block boundary.
func (b *Builder) directory() []byte {
	entries := append([]entry{
		{name: ".", inode: rootInode, ftype: ftDir},
		{name: "..", inode: rootInode, ftype: ftDir},
	}, b.entries...)

	var dir []byte
	last := -1

	for _, e := range entries {
		need := (8 + len(e.name) + 3) &^ 3
		used := len(dir) % blockSize

		if used+need > blockSize {
			// Stretch the previous entry over the rest of the block.
			pad := blockSize - used
			binary.LittleEndian.PutUint16(dir[last+4:], binary.LittleEndian.Uint16(dir[last+4:])+uint16(pad)) //nolint:gosec
			dir = append(dir, make([]byte, pad)...)
		}

		rec := make([]byte, need)
		binary.LittleEndian.PutUint32(rec[0:], e.inode)
		binary.LittleEndian.PutUint16(rec[4:], uint16(need)) //nolint:gosec
		if b.filetype {
			rec[6] = byte(len(e.name))
			rec[7] = e.ftype
		} else {
			binary.LittleEndian.PutUint16(rec[6:], uint16(len(e.name))) //nolint:gosec
		}
		copy(rec[8:], e.name)

		last = len(dir)
		dir = append(dir, rec...)
	}

	if used := len(dir) % blockSize; used != 0 {
		pad := blockSize - used
		binary.LittleEndian.PutUint16(dir[last+4:], binary.LittleEndian.Uint16(dir[last+4:])+uint16(pad)) //nolint:gosec
		dir = append(dir, make([]byte, pad)...)
	}

	return dir
}

func (b *Builder) superblock(inodesCount uint32) {
	const sb = blockSize

	b.put32(sb+0, inodesCount)
	b.put32(sb+4, uint32(len(b.data)/blockSize)) //nolint:gosec
	b.put32(sb+20, 1)
	b.put32(sb+24, 0)
	b.put32(sb+32, 8192)
	b.put32(sb+40, b.ipg)
	b.put16(sb+56, magic)
	b.put32(sb+76, b.revision)

	if b.revision > 0 {
		b.put32(sb+84, firstInode)
		b.put16(sb+88, uint16(b.inodeSize)) //nolint:gosec
		if b.filetype {
			b.put32(sb+96, featureFiletype)
		}
		copy(b.data[sb+120:sb+136], b.volume)
	}
}

// Device serves an image through the 512 byte block interface of the
// storage driver and counts the reads.
type Device struct {
	sync.Mutex

	data      []byte
	reads     int
	failAfter int
	failErr   error
}

// NewDevice returns a pointer to a new [Device] serving data.
func NewDevice(data []byte) *Device {
	return &Device{
		data:      data,
		failAfter: -1,
	}
}

// FailAfter makes every read after the next n reads fail with err.
func (d *Device) FailAfter(n int, err error) {
	d.Lock()
	defer d.Unlock()

	d.failAfter = n
	d.failErr = err
}

// Reads returns the number of reads served.
func (d *Device) Reads() int {
	d.Lock()
	defer d.Unlock()

	return d.reads
}

// ReadData implements the block read of the storage driver.
func (d *Device) ReadData(block uint32, offset uint16, dst []byte) error {
	d.Lock()
	defer d.Unlock()

	if d.failAfter == 0 {
		return d.failErr
	}
	if d.failAfter > 0 {
		d.failAfter--
	}

	if int(offset)+len(dst) > storageBlockSize {
		return fmt.Errorf("%w: offset %d, length %d", ErrDeviceRange, offset, len(dst))
	}

	addr := int(block)*storageBlockSize + int(offset)
	if addr+len(dst) > len(d.data) {
		return fmt.Errorf("%w: block %d", ErrDeviceRange, block)
	}

	copy(dst, d.data[addr:])
	d.reads++

	return nil
}
