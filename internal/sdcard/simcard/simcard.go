// Package simcard simulates an SD card in SPI mode on top of a block store,
// answering the frames of the [sdcard] driver byte by byte. It supports the
// read subset of the protocol and can inject the failures the driver has to
// handle.
package simcard

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/desertwitch/wavos/internal/sdcard"
)

// Failure is a fault injected into a simulated card.
type Failure uint8

const (
	// FailNone simulates a healthy card.
	FailNone Failure = iota

	// FailDead never drives the data line (all 0xFF).
	FailDead

	// FailNoIdle answers the go-idle command without the idle bit.
	FailNoIdle

	// FailBadEcho corrupts the interface condition echo.
	FailBadEcho

	// FailCmd8 answers the interface condition command with a bogus R1.
	FailCmd8

	// FailNeverReady never leaves the idle state.
	FailNeverReady

	// FailOCR rejects the read OCR command.
	FailOCR

	// FailErrorToken answers reads with an out-of-range error token.
	FailErrorToken

	// FailNoToken never sends a start token for reads.
	FailNoToken

	// FailBadCSD reports an unknown CSD structure version.
	FailBadCSD
)

const (
	frameSize     = 6
	errorToken    = 0x08
	r1Illegal     = sdcard.R1IllegalCommand
	r1Parameter   = 0x40
	ocrPowerUp    = 0x80
	ocrCCS        = 0x40
	commandPrefix = 0x40
)

// Option configures a [Card].
type Option func(*Card)

// WithType sets the class the card identifies as.
func WithType(t sdcard.Type) Option {
	return func(c *Card) { c.cardType = t }
}

// WithFailure injects a fault.
func WithFailure(f Failure) Option {
	return func(c *Card) { c.failure = f }
}

// WithTokenLatency sets the number of 0xFF bytes sent before a start token.
func WithTokenLatency(n int) Option {
	return func(c *Card) { c.latency = n }
}

// Card is a simulated SD card implementing [sdcard.Bus].
type Card struct {
	sync.Mutex

	store    io.ReaderAt
	blocks   uint32
	cardType sdcard.Type
	failure  Failure
	latency  int

	selected bool
	idle     bool
	appCmd   bool
	speed    sdcard.Speed

	frame []byte
	out   []byte

	commands  map[byte]int
	transfers int
}

// New returns a pointer to a new [Card] serving blocks from store. The
// card identifies as SDHC unless configured otherwise.
func New(store io.ReaderAt, blocks uint32, opts ...Option) *Card {
	c := &Card{
		store:    store,
		blocks:   blocks,
		cardType: sdcard.TypeSDHC,
		frame:    make([]byte, 0, frameSize),
		commands: make(map[byte]int),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Select asserts the slave select line.
func (c *Card) Select() {
	c.Lock()
	defer c.Unlock()

	c.selected = true
}

// Deselect releases the slave select line.
func (c *Card) Deselect() {
	c.Lock()
	defer c.Unlock()

	c.selected = false
	c.frame = c.frame[:0]
	c.out = nil
}

// SetSpeed records the requested clock rate.
func (c *Card) SetSpeed(s sdcard.Speed) {
	c.Lock()
	defer c.Unlock()

	c.speed = s
}

// Speed returns the last requested clock rate.
func (c *Card) Speed() sdcard.Speed {
	c.Lock()
	defer c.Unlock()

	return c.speed
}

// Commands returns how often the command with the given index was
// received.
func (c *Card) Commands(index byte) int {
	c.Lock()
	defer c.Unlock()

	return c.commands[index]
}

// Transfers returns the number of bytes exchanged on the bus.
func (c *Card) Transfers() int {
	c.Lock()
	defer c.Unlock()

	return c.transfers
}

// ResetCounters clears the command and transfer counters.
func (c *Card) ResetCounters() {
	c.Lock()
	defer c.Unlock()

	clear(c.commands)
	c.transfers = 0
}

// Transfer exchanges one byte with the card.
func (c *Card) Transfer(b byte) byte {
	c.Lock()
	defer c.Unlock()

	c.transfers++

	if !c.selected || c.failure == FailDead {
		return 0xFF
	}

	if len(c.frame) > 0 || (b != 0xFF && b&0xC0 == commandPrefix) {
		c.frame = append(c.frame, b)
		if len(c.frame) == frameSize {
			c.execute()
			c.frame = c.frame[:0]
		}

		return 0xFF
	}

	if len(c.out) == 0 {
		return 0xFF
	}

	r := c.out[0]
	c.out = c.out[1:]

	return r
}

func (c *Card) r1() byte {
	if c.idle {
		return sdcard.R1IdleState
	}

	return sdcard.R1ReadyState
}

// execute answers a complete command frame. Responses start after one
// byte of command response time.
func (c *Card) execute() {
	cmd := c.frame[0] &^ commandPrefix
	arg := binary.BigEndian.Uint32(c.frame[1:5])

	c.commands[cmd]++

	app := c.appCmd
	c.appCmd = false

	c.out = []byte{0xFF}

	switch {
	case cmd == sdcard.CMD0:
		if c.failure == FailNoIdle {
			c.respond(sdcard.R1ReadyState)

			return
		}
		c.idle = true
		c.respond(sdcard.R1IdleState)

	case cmd == sdcard.CMD8:
		c.ifCond(arg)

	case cmd == sdcard.CMD55:
		c.appCmd = true
		c.respond(c.r1())

	case cmd == sdcard.ACMD41 && app:
		hcs := arg&0x40000000 != 0
		if c.failure != FailNeverReady && (c.cardType != sdcard.TypeSDHC || hcs) {
			c.idle = false
		}
		c.respond(c.r1())

	case cmd == sdcard.CMD58:
		if c.failure == FailOCR {
			c.respond(c.r1() | r1Illegal)

			return
		}
		ocr := byte(ocrPowerUp)
		if c.cardType == sdcard.TypeSDHC {
			ocr |= ocrCCS
		}
		c.respond(c.r1(), ocr, 0xFF, 0x80, 0x00)

	case cmd == sdcard.CMD17:
		c.readBlock(arg)

	case cmd == sdcard.CMD9:
		csd := c.csd()
		c.respondData(csd[:])

	case cmd == sdcard.CMD10:
		cid := c.cid()
		c.respondData(cid[:])

	default:
		c.respond(c.r1() | r1Illegal)
	}
}

func (c *Card) respond(b ...byte) {
	c.out = append(c.out, b...)
}

// respondData queues an accepted R1, the start token (or the injected
// failure instead), the payload and a two byte trailer.
func (c *Card) respondData(payload []byte) {
	c.respond(c.r1())

	for range c.latency {
		c.respond(0xFF)
	}

	switch c.failure {
	case FailNoToken:
		return
	case FailErrorToken:
		c.respond(errorToken)

		return
	}

	c.respond(sdcard.DataStartBlock)
	c.respond(payload...)
	c.respond(0xFF, 0xFF)
}

func (c *Card) ifCond(arg uint32) {
	switch {
	case c.failure == FailCmd8:
		c.respond(sdcard.R1ReadyState)
	case c.cardType == sdcard.TypeSD1:
		c.respond(c.r1() | r1Illegal)
	case c.failure == FailBadEcho:
		c.respond(c.r1(), 0x00, 0x00, byte(arg>>8)&0x0F, ^byte(arg))
	default:
		c.respond(c.r1(), 0x00, 0x00, byte(arg>>8)&0x0F, byte(arg))
	}
}

func (c *Card) readBlock(arg uint32) {
	block := arg
	if c.cardType != sdcard.TypeSDHC {
		if arg%sdcard.BlockSize != 0 {
			c.respond(r1Parameter)

			return
		}
		block = arg / sdcard.BlockSize
	}

	if c.idle || block >= c.blocks {
		c.respond(c.r1() | r1Parameter)

		return
	}

	data := make([]byte, sdcard.BlockSize)
	n, err := c.store.ReadAt(data, int64(block)*sdcard.BlockSize)
	if err != nil && n < len(data) {
		clear(data[n:])
	}

	c.respondData(data)
}
