// Package audio carries unsigned 8-bit mono samples from the player threads
// to the host audio output.
package audio

import "sync"

const (
	// Silence is the unsigned 8-bit sample at the zero line.
	Silence = 0x80

	// DefaultSampleRate is the playback rate of the tracks in Hz.
	DefaultSampleRate = 11000

	// DefaultRingSize holds roughly 90 ms of samples at 11 kHz.
	DefaultRingSize = 1024
)

// Sink consumes samples one at a time.
type Sink interface {
	WriteSample(b byte)
}

// Ring is a fixed-size sample buffer between a producer emitting at the
// sample clock and an output pulling in bursts. Samples arriving while the
// ring is full are dropped; reads from an empty ring yield [Silence].
type Ring struct {
	sync.Mutex
	buf   []byte
	head  int
	count int

	overruns  uint64
	underruns uint64
	written   uint64
}

// NewRing returns a pointer to a new [Ring] holding up to size samples. A
// non-positive size is replaced by [DefaultRingSize].
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}

	return &Ring{
		buf: make([]byte, size),
	}
}

// WriteSample appends one sample, dropping it if the ring is full.
func (r *Ring) WriteSample(b byte) {
	r.Lock()
	defer r.Unlock()

	r.written++

	if r.count == len(r.buf) {
		r.overruns++

		return
	}

	r.buf[(r.head+r.count)%len(r.buf)] = b
	r.count++
}

// Read fills p with buffered samples, padding with [Silence] once the ring
// runs dry. It never blocks and always fills p completely.
func (r *Ring) Read(p []byte) (int, error) {
	r.Lock()
	defer r.Unlock()

	for i := range p {
		if r.count == 0 {
			p[i] = Silence
			r.underruns++

			continue
		}

		p[i] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}

	return len(p), nil
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.Lock()
	defer r.Unlock()

	return r.count
}

// RingStats are the cumulative counters of a [Ring].
type RingStats struct {
	Written   uint64
	Overruns  uint64
	Underruns uint64
}

// Stats returns the cumulative counters.
func (r *Ring) Stats() RingStats {
	r.Lock()
	defer r.Unlock()

	return RingStats{
		Written:   r.written,
		Overruns:  r.overruns,
		Underruns: r.underruns,
	}
}

// Discard is a [Sink] that only counts samples.
type Discard struct {
	sync.Mutex
	n uint64
}

// WriteSample counts the sample.
func (d *Discard) WriteSample(byte) {
	d.Lock()
	defer d.Unlock()

	d.n++
}

// Count returns the number of samples written.
func (d *Discard) Count() uint64 {
	d.Lock()
	defer d.Unlock()

	return d.n
}
