package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/desertwitch/wavos/internal/audio"
	"github.com/desertwitch/wavos/internal/configuration"
	"github.com/desertwitch/wavos/internal/kernel"
	"github.com/desertwitch/wavos/internal/player"
	"github.com/desertwitch/wavos/internal/ui"
	"github.com/desertwitch/wavos/internal/volume"
)

type App struct {
	cfg       *configuration.AppConfiguration
	volume    *volume.Volume
	ring      *audio.Ring
	output    *audio.Output
	scheduler *kernel.Scheduler
	player    *player.Player
	uiHandler *ui.Handler
}

func NewApp(cfg *configuration.AppConfiguration, vol *volume.Volume) (*App, error) {
	app := &App{
		cfg:       cfg,
		volume:    vol,
		ring:      audio.NewRing(audio.DefaultRingSize),
		scheduler: kernel.NewScheduler(),
	}

	p, err := player.New(app.scheduler, vol.FS, app.ring,
		player.WithSampleRate(cfg.SampleRate),
		player.WithStartTrack(cfg.StartTrack),
		player.WithReaderStack(cfg.StackSize),
	)
	if err != nil {
		return nil, fmt.Errorf("(app) %w", err)
	}

	if err := p.Spawn(); err != nil {
		return nil, fmt.Errorf("(app) %w", err)
	}
	app.player = p

	if cfg.Audio {
		out, err := audio.NewOutput(cfg.SampleRate, app.ring)
		if err != nil {
			slog.Warn("Audio output unavailable, playing silently.",
				"err", err,
			)
		} else {
			app.output = out
		}
	}

	return app, nil
}

// Launch runs the kernel on the calling goroutine, which becomes the idle
// thread, until the context is done.
func (app *App) Launch(ctx context.Context) error {
	clock := kernel.NewWallClock(app.cfg.TickPeriod(), time.Second)

	if err := app.scheduler.Start(ctx, clock); err != nil {
		return fmt.Errorf("(app) %w", err)
	}

	if app.output != nil {
		app.output.Start()
	}

	slog.Info("Playback started:",
		"track", app.player.Status().Name,
		"tickRate", app.cfg.TickRate,
		"sampleRate", app.cfg.SampleRate,
	)

	if err := app.scheduler.Idle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("(app) %w", err)
	}

	return nil
}

func (app *App) LaunchUI() error {
	if err := app.uiHandler.Launch(); err != nil {
		return fmt.Errorf("(app-ui) %w", err)
	}

	return nil
}

func (app *App) Close() {
	app.scheduler.Shutdown()
	app.scheduler.Wait()

	if app.output != nil {
		if err := app.output.Close(); err != nil {
			slog.Warn("Failed to close audio output.", "err", err)
		}
	}

	stats := app.ring.Stats()
	slog.Debug("Audio ring statistics:",
		"written", stats.Written,
		"overruns", stats.Overruns,
		"underruns", stats.Underruns,
	)
}

func (app *App) logStatus() {
	st := app.player.Status()
	snap := app.scheduler.Snapshot()

	slog.Info("Playing:",
		"track", fmt.Sprintf("%d/%d", st.Track+1, st.NumTracks),
		"name", st.Name,
		"elapsed", st.Elapsed.Truncate(time.Second),
		"total", st.Total.Truncate(time.Second),
		"uptime", time.Duration(snap.Uptime)*time.Second,
		"interruptsPerSecond", snap.InterruptsPerSecond,
	)
}
