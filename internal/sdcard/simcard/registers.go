package simcard

import (
	"encoding/binary"

	"github.com/desertwitch/wavos/internal/sdcard"
)

const (
	cidManufacturer = 0x03
	cidOEM          = "SD"
	cidProduct      = "WAVOS"
	cidRevision     = 0x10
	cidSerial       = 0x5EED1234
	cidYear         = 2024
	cidMonth        = 10

	csdReadBlLen = 9
	maxCSize1    = 4096
)

// csd encodes the capacity of the card: a version 2 structure for SDHC
// cards, version 1 otherwise.
func (c *Card) csd() [sdcard.RegisterSize]byte {
	var d [sdcard.RegisterSize]byte

	switch {
	case c.failure == FailBadCSD:
		d[0] = 0x80

	case c.cardType == sdcard.TypeSDHC:
		cSize := c.blocks >> 10
		if cSize > 0 {
			cSize--
		}
		d[0] = 0x40
		d[7] = byte(cSize>>16) & 0x3F
		d[8] = byte(cSize >> 8)
		d[9] = byte(cSize)

	default:
		var cSize, mult uint32
		for mult = 0; mult < 7; mult++ {
			if c.blocks>>(mult+2) <= maxCSize1 {
				break
			}
		}
		if cSize = c.blocks >> (mult + 2); cSize > 0 {
			cSize--
		}
		d[5] = csdReadBlLen
		d[6] = byte(cSize>>10) & 0x03
		d[7] = byte(cSize >> 2)
		d[8] = byte(cSize << 6)
		d[9] = byte(mult>>1) & 0x03
		d[10] = byte(mult << 7)
	}

	return d
}

func (c *Card) cid() [sdcard.RegisterSize]byte {
	var d [sdcard.RegisterSize]byte

	year := cidYear - 2000

	d[0] = cidManufacturer
	copy(d[1:3], cidOEM)
	copy(d[3:8], cidProduct)
	d[8] = cidRevision
	binary.BigEndian.PutUint32(d[9:13], cidSerial)
	d[13] = byte(year>>4) & 0x0F
	d[14] = byte(year&0x0F)<<4 | cidMonth

	return d
}
