//go:build headless

package audio

import (
	"io"
	"sync"
)

// Output is the headless stand-in for the host audio device: it only
// tracks whether playback was started.
type Output struct {
	sync.Mutex
	started bool
}

// NewOutput returns a pointer to a new [Output] that never reads src.
func NewOutput(_ int, _ io.Reader) (*Output, error) {
	return &Output{}, nil
}

// Start begins playback.
func (o *Output) Start() {
	o.Lock()
	defer o.Unlock()

	o.started = true
}

// Close stops playback.
func (o *Output) Close() error {
	o.Lock()
	defer o.Unlock()

	o.started = false

	return nil
}

// Started reports whether playback is running.
func (o *Output) Started() bool {
	o.Lock()
	defer o.Unlock()

	return o.started
}
