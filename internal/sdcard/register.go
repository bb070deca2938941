package sdcard

import (
	"encoding/binary"
	"fmt"
)

// RegisterSize is the payload size of the CID and CSD registers.
const RegisterSize = 16

// CID is the card identification register.
type CID struct {
	ManufacturerID byte
	OEMID          string
	ProductName    string
	Revision       byte
	SerialNumber   uint32
	Year           int
	Month          int
}

// CSD is the raw card specific data register.
type CSD [RegisterSize]byte

// Version returns the CSD structure version (0 for v1, 1 for v2).
func (d CSD) Version() byte {
	return d[0] >> 6 //nolint:mnd
}

// Blocks returns the capacity in [BlockSize] blocks.
func (d CSD) Blocks() (uint32, error) {
	switch d.Version() {
	case 0:
		readBlLen := uint32(d[5] & 0x0F)
		cSize := uint32(d[6]&0x03)<<10 | uint32(d[7])<<2 | uint32(d[8])>>6
		cSizeMult := uint32(d[9]&0x03)<<1 | uint32(d[10])>>7

		return (cSize + 1) << (cSizeMult + readBlLen - 7), nil

	case 1:
		cSize := uint32(d[7]&0x3F)<<16 | uint32(d[8])<<8 | uint32(d[9])

		return (cSize + 1) << 10, nil

	default:
		return 0, ErrBadCSD
	}
}

// ReadCID reads the card identification register.
func (c *Card) ReadCID() (CID, error) {
	var raw [RegisterSize]byte
	if err := c.readRegister(CMD10, raw[:]); err != nil {
		return CID{}, err
	}

	return CID{
		ManufacturerID: raw[0],
		OEMID:          string(raw[1:3]),
		ProductName:    string(raw[3:8]),
		Revision:       raw[8],
		SerialNumber:   binary.BigEndian.Uint32(raw[9:13]),
		Year:           2000 + int(raw[13]&0x0F)<<4 + int(raw[14]>>4), //nolint:mnd
		Month:          int(raw[14] & 0x0F),
	}, nil
}

// ReadCSD reads the card specific data register.
func (c *Card) ReadCSD() (CSD, error) {
	var csd CSD
	if err := c.readRegister(CMD9, csd[:]); err != nil {
		return CSD{}, err
	}

	return csd, nil
}

// Size returns the card capacity in [BlockSize] blocks.
func (c *Card) Size() (uint32, error) {
	csd, err := c.ReadCSD()
	if err != nil {
		return 0, err
	}

	blocks, err := csd.Blocks()
	if err != nil {
		return 0, c.fail(ErrorBadCSD, csd[0])
	}

	return blocks, nil
}

// readRegister reads one of the 16 byte registers. Register reads never
// keep a session open.
func (c *Card) readRegister(cmd byte, dst []byte) error {
	if r := c.command(cmd, 0); r != R1ReadyState {
		c.deselect()

		return c.fail(ErrorReadRegister, r)
	}

	if err := c.waitStartBlock(); err != nil {
		c.deselect()

		return fmt.Errorf("(sdcard) register %d: %w", cmd, err)
	}

	for i := range dst[:RegisterSize] {
		dst[i] = c.receive()
	}
	for range trailerSize {
		c.receive()
	}

	c.deselect()

	return nil
}
