package ext2

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// proceduralDevice is an unbounded device whose every 32 bit word is a
// non-zero function of its filesystem block and word index, small enough to
// be a valid block pointer itself.
type proceduralDevice struct{}

func proceduralWord(block, index uint32) uint32 {
	x := block*0x9E3779B1 ^ index*0x85EBCA77
	x ^= x >> 15

	return x&0x3FFFFF | 1
}

func (proceduralDevice) ReadData(block uint32, offset uint16, dst []byte) error {
	for i := range dst {
		p := uint64(block)*StorageBlockSize + uint64(offset) + uint64(i)
		w := proceduralWord(uint32(p/BlockSize), uint32(p%BlockSize/4))
		dst[i] = byte(w >> (8 * (p % 4)))
	}

	return nil
}

// referenceWalk resolves an offset by walking the pointer tables of the
// procedural device level by level.
func referenceWalk(ptrs [15]uint32, offset uint64) (uint32, bool) {
	index := offset / 1024
	if index < 12 {
		return ptrs[index], true
	}
	index -= 12

	span := uint64(1)
	for level := 1; level <= 3; level++ {
		span *= 256
		if index < span {
			ptr := ptrs[11+level]
			for div := span / 256; div >= 1; div /= 256 {
				ptr = proceduralWord(ptr, uint32(index/div%256))
			}

			return ptr, true
		}
		index -= span
	}

	return 0, false
}

const addressable = uint64(12+256+65536+16777216) * 1024

func proceduralFS() *FileSystem {
	fs := &FileSystem{dev: proceduralDevice{}}
	for i := range fs.inode.Block {
		fs.inode.Block[i] = 1000 + uint32(i)*7
	}

	return fs
}

// TestResolveBlock_Reference tests block resolution and single byte reads
// against an independent walk of the pointer tables.
func TestResolveBlock_Reference(t *testing.T) {
	t.Parallel()

	fs := proceduralFS()

	offsets := []uint64{
		0, 1023, 1024, 12*1024 - 1, 12 * 1024, 12*1024 + 4095,
		(12+256)*1024 - 1, (12 + 256) * 1024, (12+256+65536)*1024 - 1,
		(12 + 256 + 65536) * 1024, 1<<32 - 1, addressable - 1,
	}

	rng := rand.New(rand.NewPCG(7, 11)) //nolint:gosec
	for range 500 {
		offsets = append(offsets, rng.Uint64N(addressable))
	}

	for _, off := range offsets {
		want, ok := referenceWalk(fs.inode.Block, off)
		require.True(t, ok)

		got, err := fs.ResolveBlock(off)
		require.NoError(t, err, "offset %d", off)
		require.Equal(t, want, got, "offset %d", off)

		if off > 1<<32-1 {
			continue
		}

		var b [1]byte
		require.NoError(t, fs.ReadBytes(uint32(off), b[:]))

		w := proceduralWord(want, uint32(off%1024/4))
		require.Equal(t, byte(w>>(8*(off%4))), b[0], "offset %d", off)
	}
}

// TestResolveBlock_Direct tests the direct pointers at the first block
// boundary.
func TestResolveBlock_Direct(t *testing.T) {
	t.Parallel()

	fs := &FileSystem{dev: proceduralDevice{}}
	for i := range NDirBlocks {
		fs.inode.Block[i] = 500 + uint32(i)
	}

	tests := []struct {
		offset uint64
		want   uint32
	}{
		{0, 500},
		{1023, 500},
		{1024, 501},
		{11*1024 + 1023, 511},
	}

	for _, tt := range tests {
		got, err := fs.ResolveBlock(tt.offset)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "offset %d", tt.offset)
	}
}

// TestResolveBlock_Beyond tests the end of the triple indirect range.
func TestResolveBlock_Beyond(t *testing.T) {
	t.Parallel()

	fs := proceduralFS()

	_, err := fs.ResolveBlock(addressable)
	require.ErrorIs(t, err, ErrBeyondTripleIndirect)

	_, err = fs.ResolveBlock(addressable - 1)
	require.NoError(t, err)
}

// TestResolveBlock_Hole tests that a missing indirect block reads as a
// hole.
func TestResolveBlock_Hole(t *testing.T) {
	t.Parallel()

	fs := proceduralFS()
	fs.inode.Block[dindBlock] = 0

	got, err := fs.ResolveBlock((12 + 256 + 300) * 1024)
	require.NoError(t, err)
	assert.Zero(t, got)

	buf := []byte{1, 2, 3}
	require.NoError(t, fs.ReadBytes((12+256+300)*1024, buf))
	assert.Equal(t, []byte{0, 0, 0}, buf)
}
