package player

import (
	"log/slog"
	"time"

	"github.com/desertwitch/wavos/internal/ext2"
)

// writer clocks one sample per tick out of the buffer it owns. At the end
// of a buffer it releases it to the reader and takes the other one.
func (p *Player) writer(any) {
	buf, pos := 0, 0

	p.lock(buf)

	for {
		p.sink.WriteSample(p.buffers[buf][pos])

		if pos++; pos == ext2.ChunkSize {
			pos = 0
			p.unlock(buf)
			buf ^= 1
			p.lock(buf)
		}

		p.kernel.Sleep(1)
	}
}

// reader refills whichever buffer the writer released last.
func (p *Player) reader(any) {
	buf := 0

	for {
		buf ^= 1

		p.lock(buf)
		if err := p.fs.ReadNextChunk(p.buffers[buf][:]); err != nil {
			clear(p.buffers[buf][:])
			p.fail("Failed to read chunk:", err)
		}
		p.unlock(buf)
	}
}

// control serves track requests and publishes the status once per
// interval.
func (p *Player) control(any) {
	for {
		p.serveRequests()
		p.publish()

		p.kernel.Sleep(p.controlInterval)
	}
}

func (p *Player) serveRequests() {
	for {
		select {
		case req := <-p.requests:
			p.switchTrack(req)
		default:
			return
		}
	}
}

// switchTrack selects another file while holding both buffers, so neither
// the writer nor the reader runs against a half-switched filesystem.
func (p *Player) switchTrack(req request) {
	n := len(p.playlist)

	target := req.index
	if req.relative {
		target = ((p.track+req.index)%n + n) % n
	}

	if target < 0 || target >= n {
		slog.Warn("Ignoring request for unknown track:",
			"track", target,
			"tracks", n,
		)

		return
	}

	p.lock(0)
	p.lock(1)

	if err := p.fs.SelectFile(target); err != nil {
		p.fail("Failed to select track:", err)
	} else {
		p.track = target
		p.switches++
	}

	p.unlock(0)
	p.unlock(1)

	slog.Info("Track selected:",
		"track", p.track+1,
		"name", p.fs.CurrentName(),
	)
}

func (p *Player) lock(buf int) {
	if err := p.mutexes[buf].Lock(); err != nil {
		p.fail("Failed to lock buffer:", err)
	}
}

func (p *Player) unlock(buf int) {
	if err := p.mutexes[buf].Unlock(); err != nil {
		p.fail("Failed to unlock buffer:", err)
	}
}

func (p *Player) fail(msg string, err error) {
	p.lastErr = err

	slog.Error(msg,
		"track", p.track+1,
		"err", err,
	)
}

// publish copies the playback state for readers outside the kernel.
func (p *Player) publish() {
	st := Status{
		Track:     p.track,
		NumTracks: len(p.playlist),
		Name:      p.fs.CurrentName(),
		Position:  p.fs.CurrentPosition(),
		Size:      p.fs.CurrentSize(),
		Switches:  p.switches,
	}
	st.Elapsed = p.duration(st.Position)
	st.Total = p.duration(st.Size)

	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}

	p.statusLock.Lock()
	defer p.statusLock.Unlock()

	p.status = st
}

func (p *Player) duration(samples uint32) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(p.sampleRate)
}
