package sdcard

import "fmt"

// SetPartialBlockRead ends any open session and enables or disables
// partial block reads. With partial reads a block stays open between
// [Card.ReadData] calls, so sequential reads within one block need a single
// read command.
func (c *Card) SetPartialBlockRead(enabled bool) {
	c.ReadEnd()
	c.partialBlockRead = enabled
}

// PartialBlockRead reports whether partial block reads are enabled.
func (c *Card) PartialBlockRead() bool {
	return c.partialBlockRead
}

// ReadBlock reads a whole block into dst, which must hold [BlockSize]
// bytes.
func (c *Card) ReadBlock(block uint32, dst []byte) error {
	if len(dst) < BlockSize {
		return fmt.Errorf("(sdcard) %w: buffer of %d bytes", ErrBlockRange, len(dst))
	}

	return c.ReadData(block, 0, dst[:BlockSize])
}

// ReadData reads len(dst) bytes at offset within block. An open session on
// the same block is reused as long as offset is not behind the bytes
// already consumed.
func (c *Card) ReadData(block uint32, offset uint16, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if int(offset)+len(dst) > BlockSize {
		return fmt.Errorf("(sdcard) %w: offset %d, length %d", ErrBlockRange, offset, len(dst))
	}

	if !c.inBlock || block != c.block || offset < c.offset {
		c.block = block

		addr := block
		if c.cardType != TypeSDHC {
			addr <<= 9
		}

		if r := c.command(CMD17, addr); r != R1ReadyState {
			c.deselect()

			return c.fail(ErrorCmd17, r)
		}

		if err := c.waitStartBlock(); err != nil {
			c.deselect()

			return err
		}

		c.offset = 0
		c.inBlock = true
	}

	for ; c.offset < offset; c.offset++ {
		c.receive()
	}

	for i := range dst {
		dst[i] = c.receive()
	}
	c.offset += uint16(len(dst)) //nolint:gosec

	if !c.partialBlockRead || c.offset >= BlockSize {
		c.ReadEnd()
	}

	return nil
}

// ReadEnd closes an open session, skipping the rest of the block and its
// trailer.
func (c *Card) ReadEnd() {
	if !c.inBlock {
		return
	}

	for ; c.offset < BlockSize+trailerSize; c.offset++ {
		c.receive()
	}

	c.deselect()
	c.inBlock = false
}
