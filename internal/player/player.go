// Package player implements the audio player on top of the kernel: a writer
// thread clocking samples out at the tick rate, a reader thread refilling a
// double buffer from the filesystem and a control thread switching tracks
// and publishing the playback status.
package player

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/desertwitch/wavos/internal/audio"
	"github.com/desertwitch/wavos/internal/ext2"
	"github.com/desertwitch/wavos/internal/kernel"
	"github.com/desertwitch/wavos/internal/synchro"
)

const (
	// WriterStack, ReaderStack and ControlStack are the default working
	// spaces of the player threads.
	WriterStack  = 32
	ReaderStack  = 256
	ControlStack = 64

	// DefaultControlInterval is the control thread's period in ticks.
	DefaultControlInterval = 100

	requestQueueSize = 4
)

// fileSystem is the part of [ext2.FileSystem] the player uses.
type fileSystem interface {
	NumFiles() int
	Stat(index int) (ext2.Entry, error)
	SelectFile(index int) error
	ReadNextChunk(buf []byte) error
	CurrentName() string
	CurrentPosition() uint32
	CurrentSize() uint32
}

// scheduler is the part of [kernel.Scheduler] the player uses.
type scheduler interface {
	Create(entry kernel.EntryFunc, arg any, stackSize int) (int, error)
	Sleep(ticks uint16)
	DisableTick() bool
	RestoreTick(prev bool)
	CurrentID() int
	Yield()
	Ready(id int)
	HandOff(id int)
}

// Status is the published playback state.
type Status struct {
	Track     int
	NumTracks int
	Name      string
	Position  uint32
	Size      uint32
	Elapsed   time.Duration
	Total     time.Duration
	Switches  int
	LastError string
}

type request struct {
	index    int
	relative bool
}

// Option configures a [Player].
type Option func(*Player)

// WithSampleRate sets the rate used to convert positions into durations.
func WithSampleRate(rate int) Option {
	return func(p *Player) {
		p.sampleRate = rate
	}
}

// WithStartTrack sets the track selected at construction.
func WithStartTrack(index int) Option {
	return func(p *Player) {
		p.track = index
	}
}

// WithControlInterval sets the control thread's period in ticks.
func WithControlInterval(ticks uint16) Option {
	return func(p *Player) {
		if ticks > 0 {
			p.controlInterval = ticks
		}
	}
}

// WithReaderStack sets the reader thread's working space.
func WithReaderStack(size int) Option {
	return func(p *Player) {
		p.readerStack = size
	}
}

// Player owns the double buffer shared by its threads. Only the kernel
// threads touch the filesystem and the buffers; other goroutines talk to the
// player through requests and the published [Status].
type Player struct {
	kernel scheduler
	fs     fileSystem
	sink   audio.Sink

	buffers [2][ext2.ChunkSize]byte
	mutexes [2]*synchro.Mutex

	sampleRate      int
	controlInterval uint16
	readerStack     int

	track    int
	switches int
	lastErr  error

	playlist []ext2.Entry
	requests chan request

	statusLock sync.RWMutex
	status     Status
}

// New returns a pointer to a new [Player]. It selects the start track and
// fills the first buffer, so the writer has data from its first tick on.
func New(k scheduler, fs fileSystem, sink audio.Sink, opts ...Option) (*Player, error) {
	p := &Player{
		kernel:          k,
		fs:              fs,
		sink:            sink,
		sampleRate:      audio.DefaultSampleRate,
		controlInterval: DefaultControlInterval,
		readerStack:     ReaderStack,
		requests:        make(chan request, requestQueueSize),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.sampleRate <= 0 {
		return nil, fmt.Errorf("(player) %w: %d", ErrInvalidSampleRate, p.sampleRate)
	}

	n := fs.NumFiles()
	if n == 0 {
		return nil, ErrNoTracks
	}
	if p.track < 0 || p.track >= n {
		p.track = 0
	}

	p.playlist = make([]ext2.Entry, 0, n)
	for i := range n {
		e, err := fs.Stat(i)
		if err != nil {
			return nil, fmt.Errorf("(player) failed to stat track %d: %w", i, err)
		}
		p.playlist = append(p.playlist, e)
	}

	if err := fs.SelectFile(p.track); err != nil {
		return nil, fmt.Errorf("(player) failed to select track %d: %w", p.track, err)
	}
	if err := fs.ReadNextChunk(p.buffers[0][:]); err != nil {
		return nil, fmt.Errorf("(player) failed to fill buffer: %w", err)
	}

	p.mutexes[0] = synchro.NewMutex(k)
	p.mutexes[1] = synchro.NewMutex(k)

	p.publish()

	return p, nil
}

// Spawn creates the writer, reader and control threads. It must be called
// before the kernel is started.
func (p *Player) Spawn() error {
	threads := []struct {
		name  string
		entry kernel.EntryFunc
		stack int
	}{
		{"writer", p.writer, WriterStack},
		{"reader", p.reader, p.readerStack},
		{"control", p.control, ControlStack},
	}

	for _, t := range threads {
		id, err := p.kernel.Create(t.entry, nil, t.stack)
		if err != nil {
			return fmt.Errorf("(player) failed to create %s thread: %w", t.name, err)
		}

		slog.Debug("Player thread created:",
			"thread", t.name,
			"id", id,
		)
	}

	return nil
}

// Playlist returns the tracks found at construction.
func (p *Player) Playlist() []ext2.Entry {
	return append([]ext2.Entry(nil), p.playlist...)
}

// Next requests the following track. It returns false if too many requests
// are pending.
func (p *Player) Next() bool {
	return p.enqueue(request{index: 1, relative: true})
}

// Prev requests the preceding track. It returns false if too many requests
// are pending.
func (p *Player) Prev() bool {
	return p.enqueue(request{index: -1, relative: true})
}

// Select requests the track at index. It returns false if too many requests
// are pending.
func (p *Player) Select(index int) bool {
	return p.enqueue(request{index: index})
}

func (p *Player) enqueue(req request) bool {
	select {
	case p.requests <- req:
		return true
	default:
		return false
	}
}

// Status returns the last published playback state.
func (p *Player) Status() Status {
	p.statusLock.RLock()
	defer p.statusLock.RUnlock()

	return p.status
}
