package sdcard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptBus records the bytes sent and answers from a script, 0xFF once
// the script is exhausted.
type scriptBus struct {
	sent     []byte
	script   []byte
	selected bool
}

func (b *scriptBus) Transfer(v byte) byte {
	b.sent = append(b.sent, v)
	if len(b.script) == 0 {
		return 0xFF
	}

	r := b.script[0]
	b.script = b.script[1:]

	return r
}

func (b *scriptBus) Select()        { b.selected = true }
func (b *scriptBus) Deselect()      { b.selected = false }
func (b *scriptBus) SetSpeed(Speed) {}

// TestCommand_Framing tests the command frames and their checksum bytes.
func TestCommand_Framing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cmd   byte
		arg   uint32
		frame []byte
	}{
		{"go idle", CMD0, 0, []byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x95}},
		{"interface condition", CMD8, 0x1AA, []byte{0x48, 0x00, 0x00, 0x01, 0xAA, 0x87}},
		{"read block", CMD17, 0x12345678, []byte{0x51, 0x12, 0x34, 0x56, 0x78, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// One byte of busy wait, the frame, then an answer on the
			// second response byte.
			bus := &scriptBus{script: []byte{0xFF, 0, 0, 0, 0, 0, 0, 0xFF, 0x01}}
			c := New(bus)

			r1 := c.command(tt.cmd, tt.arg)
			assert.Equal(t, byte(0x01), r1)
			assert.True(t, bus.selected)
			require.Len(t, bus.sent, 1+6+2)
			assert.Equal(t, tt.frame, bus.sent[1:7])
		})
	}
}

// TestCommand_NoResponse tests that a silent card is given up on after the
// response retry window.
func TestCommand_NoResponse(t *testing.T) {
	t.Parallel()

	bus := &scriptBus{}
	c := New(bus)

	r1 := c.command(CMD0, 0)
	assert.Equal(t, byte(0xFF), r1)
	assert.Len(t, bus.sent, 1+6+responseRetries)
}

// TestCommand_Busy tests that the busy wait gives up after its timeout and
// the command is still sent.
func TestCommand_Busy(t *testing.T) {
	t.Parallel()

	busy := make([]byte, 1<<20)
	bus := &scriptBus{script: busy}
	c := New(bus, WithBusyTimeout(5*time.Millisecond))

	start := time.Now()
	c.command(CMD55, 0)

	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	assert.Contains(t, bus.sent, byte(0x40|CMD55))
}

// TestBlocks_CSD tests the capacity decoding of both CSD versions.
func TestBlocks_CSD(t *testing.T) {
	t.Parallel()

	var v1 CSD
	v1[5] = 0x0A               // read_bl_len 10
	v1[6] = 0x03               // c_size high bits
	v1[7] = 0xFF               // c_size middle bits
	v1[8] = 0xC0               // c_size low bits, 4095 in total
	v1[9], v1[10] = 0x03, 0x80 // c_size_mult 7

	blocks, err := v1.Blocks()
	require.NoError(t, err)
	assert.Equal(t, uint32(4096)<<(7+10-7), blocks)

	var v2 CSD
	v2[0] = 0x40
	v2[8], v2[9] = 0x1D, 0xAF // c_size 7599

	blocks, err = v2.Blocks()
	require.NoError(t, err)
	assert.Equal(t, uint32(7600)<<10, blocks)

	var bad CSD
	bad[0] = 0xC0

	_, err = bad.Blocks()
	require.ErrorIs(t, err, ErrBadCSD)
}
