//go:build !headless

package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// otoBufferSize of zero selects the device default.
const otoBufferSize = 0

// Output plays samples pulled from a reader through the host audio device.
type Output struct {
	sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	started bool
}

// NewOutput opens the host audio device for unsigned 8-bit mono at the given
// sample rate and prepares a player pulling from src.
func NewOutput(sampleRate int, src io.Reader) (*Output, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatUnsignedInt8,
		BufferSize:   otoBufferSize,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("(audio) failed to open device: %w", err)
	}
	<-ready

	return &Output{
		ctx:    ctx,
		player: ctx.NewPlayer(src),
	}, nil
}

// Start begins playback.
func (o *Output) Start() {
	o.Lock()
	defer o.Unlock()

	if !o.started && o.player != nil {
		o.player.Play()
		o.started = true
	}
}

// Close stops playback and releases the player.
func (o *Output) Close() error {
	o.Lock()
	defer o.Unlock()

	if o.player == nil {
		return nil
	}

	err := o.player.Close()
	o.player = nil
	o.started = false

	if err != nil {
		return fmt.Errorf("(audio) failed to close player: %w", err)
	}

	return nil
}

// Started reports whether playback is running.
func (o *Output) Started() bool {
	o.Lock()
	defer o.Unlock()

	return o.started
}
