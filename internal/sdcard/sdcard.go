// Package sdcard implements a read-only driver for SD memory cards in SPI
// mode: card bring-up, single block reads with partial block sessions and
// the CID/CSD registers.
//
// A [Card] is not safe for concurrent use; callers serialize access.
package sdcard

import (
	"log/slog"
	"time"
)

const (
	// BlockSize is the size of a logical card block.
	BlockSize = 512

	// DefaultBusyTimeout bounds the wait for a busy card before a command.
	DefaultBusyTimeout = 300 * time.Millisecond

	// DefaultReadTimeout bounds the wait for a start token.
	DefaultReadTimeout = 300 * time.Millisecond

	// DefaultInitTimeout bounds the initialization loop of [Card.Init].
	DefaultInitTimeout = 2 * time.Second

	// DataStartBlock is the token preceding a data block.
	DataStartBlock = 0xFE

	// trailerSize is the number of CRC bytes following a data block.
	trailerSize = 2

	// settleClocks is the number of 0xFF bytes (80 clocks) sent with the
	// card deselected before the first command.
	settleClocks = 10

	// flushBytes is the number of bytes read to abort a partial read the
	// card may still be in from before a reset.
	flushBytes = BlockSize + 1

	cmd0Retries     = 10
	responseRetries = 256

	cmd8Pattern   = 0x1AA
	cmd8Echo      = 0xAA
	acmd41HCS     = 0x40000000
	ocrCCSMask    = 0xC0
	commandPrefix = 0x40
)

// Command indices used by the driver.
const (
	CMD0   = 0  // GO_IDLE_STATE
	CMD8   = 8  // SEND_IF_COND
	CMD9   = 9  // SEND_CSD
	CMD10  = 10 // SEND_CID
	CMD17  = 17 // READ_SINGLE_BLOCK
	CMD55  = 55 // APP_CMD
	CMD58  = 58 // READ_OCR
	ACMD41 = 41 // SD_SEND_OP_COND
)

// R1 response bits.
const (
	R1ReadyState     = 0x00
	R1IdleState      = 0x01
	R1IllegalCommand = 0x04
)

// Type is the detected class of a card.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeSD1
	TypeSD2
	TypeSDHC
)

func (t Type) String() string {
	switch t {
	case TypeSD1:
		return "SD1"
	case TypeSD2:
		return "SD2"
	case TypeSDHC:
		return "SDHC"
	default:
		return "unknown"
	}
}

// Speed is the SPI clock rate requested from a [Bus].
type Speed uint8

const (
	SpeedInit Speed = iota
	SpeedHalf
	SpeedFull
)

// Bus is a full-duplex SPI bus with a slave select line.
type Bus interface {
	Transfer(b byte) byte
	Select()
	Deselect()
	SetSpeed(s Speed)
}

// Option configures a [Card].
type Option func(*Card)

// WithBusyTimeout sets the bound of the busy wait before each command.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *Card) { c.busyTimeout = d }
}

// WithReadTimeout sets the bound of the wait for a start token.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Card) { c.readTimeout = d }
}

// WithInitTimeout sets the bound of the initialization loop.
func WithInitTimeout(d time.Duration) Option {
	return func(c *Card) { c.initTimeout = d }
}

// WithPartialBlockRead enables partial block reads from the start.
func WithPartialBlockRead(enabled bool) Option {
	return func(c *Card) { c.partialBlockRead = enabled }
}

// Card is an SD card behind a [Bus].
type Card struct {
	bus Bus

	busyTimeout time.Duration
	readTimeout time.Duration
	initTimeout time.Duration

	cardType Type

	block            uint32
	offset           uint16
	inBlock          bool
	partialBlockRead bool

	errorCode ErrorCode
	errorData byte
}

// New returns a pointer to a new [Card] on the given bus. The card must be
// initialized with [Card.Init] before use.
func New(bus Bus, opts ...Option) *Card {
	c := &Card{
		bus:         bus,
		busyTimeout: DefaultBusyTimeout,
		readTimeout: DefaultReadTimeout,
		initTimeout: DefaultInitTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Type returns the detected card class.
func (c *Card) Type() Type {
	return c.cardType
}

// LastError returns the most recently latched error code and data byte.
func (c *Card) LastError() (ErrorCode, byte) {
	return c.errorCode, c.errorData
}

func (c *Card) fail(code ErrorCode, data byte) error {
	c.errorCode = code
	c.errorData = data

	return &CardError{Code: code, Data: data}
}

// Init brings the card into SPI data transfer mode. With slow set, the bus
// is raised to half speed only.
func (c *Card) Init(slow bool) error {
	c.inBlock = false
	c.cardType = TypeUnknown

	c.bus.SetSpeed(SpeedInit)
	c.bus.Deselect()

	for range settleClocks {
		c.bus.Transfer(0xFF)
	}

	c.bus.Select()
	for range flushBytes {
		c.receive()
	}

	var r byte
	for retry := 0; ; retry++ {
		if r = c.command(CMD0, 0); r == R1IdleState {
			break
		}
		if retry == cmd0Retries {
			c.deselect()

			return c.fail(ErrorCmd0, r)
		}
	}

	r = c.command(CMD8, cmd8Pattern)
	switch {
	case r == R1IdleState:
		for range 4 {
			r = c.receive()
		}
		if r != cmd8Echo {
			c.deselect()

			return c.fail(ErrorCmd8Echo, r)
		}
		c.cardType = TypeSD2

	case r&R1IllegalCommand != 0:
		c.cardType = TypeSD1

	default:
		c.deselect()

		return c.fail(ErrorCmd8, r)
	}

	var arg uint32
	if c.cardType == TypeSD2 {
		arg = acmd41HCS
	}

	deadline := time.Now().Add(c.initTimeout)
	for {
		c.command(CMD55, 0)
		if r = c.command(ACMD41, arg); r == R1ReadyState {
			break
		}
		if time.Now().After(deadline) {
			c.deselect()

			return c.fail(ErrorACMD41, r)
		}
	}

	if c.cardType == TypeSD2 {
		if r = c.command(CMD58, 0); r != R1ReadyState {
			c.deselect()

			return c.fail(ErrorCmd58, r)
		}
		if c.receive()&ocrCCSMask == ocrCCSMask {
			c.cardType = TypeSDHC
		}
		for range 3 {
			c.receive()
		}
	}

	if slow {
		c.bus.SetSpeed(SpeedHalf)
	} else {
		c.bus.SetSpeed(SpeedFull)
	}
	c.deselect()

	slog.Debug("SD card initialized:",
		"type", c.cardType,
		"slow", slow,
	)

	return nil
}

// command ends any open read session, waits for the card to be ready and
// sends a command frame. It returns the R1 response, which has its high
// bit set if the card never answered.
func (c *Card) command(cmd byte, arg uint32) byte {
	c.ReadEnd()

	c.bus.Select()
	c.waitNotBusy()

	c.bus.Transfer(cmd | commandPrefix)
	for shift := 24; shift >= 0; shift -= 8 {
		c.bus.Transfer(byte(arg >> shift))
	}

	crc := byte(0xFF)
	switch cmd {
	case CMD0:
		crc = 0x95
	case CMD8:
		crc = 0x87
	}
	c.bus.Transfer(crc)

	var r1 byte
	for range responseRetries {
		if r1 = c.receive(); r1&0x80 == 0 {
			break
		}
	}

	return r1
}

func (c *Card) receive() byte {
	return c.bus.Transfer(0xFF)
}

// deselect releases the card and gives it one more byte of clocks to
// release its data line.
func (c *Card) deselect() {
	c.bus.Deselect()
	c.bus.Transfer(0xFF)
}

func (c *Card) waitNotBusy() bool {
	deadline := time.Now().Add(c.busyTimeout)
	for c.receive() != 0xFF {
		if time.Now().After(deadline) {
			return false
		}
	}

	return true
}

// waitStartBlock waits for the start token of a data block.
func (c *Card) waitStartBlock() error {
	deadline := time.Now().Add(c.readTimeout)

	var r byte
	for r = c.receive(); r == 0xFF; r = c.receive() {
		if time.Now().After(deadline) {
			return c.fail(ErrorReadTimeout, r)
		}
	}

	if r != DataStartBlock {
		return c.fail(ErrorRead, r)
	}

	return nil
}
