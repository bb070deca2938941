package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/desertwitch/wavos/internal/configuration"
	"github.com/desertwitch/wavos/internal/ui"
	"github.com/desertwitch/wavos/internal/volume"
	"github.com/lmittmann/tint"
)

const (
	stackTraceBufMax = 1 << 24
)

//nolint:gochecknoglobals
var (
	ExitCode = 0
	Version  string

	configFile = flag.String("config", configuration.DefaultConfigFile, "configuration file")
	imagePath  = flag.String("image", "", "disk image (overrides the configuration)")
	uiEnabled  = flag.Bool("ui", true, "enable the UI")
	debug      = flag.Bool("debug", false, "enable debug logging")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile = flag.String("memprofile", "", "write memory profile to this file")

	router = newLogRouter()
)

func logLevel() slog.Level {
	if *debug {
		return slog.LevelDebug
	}

	return slog.LevelInfo
}

// setupLogging routes all logs to w, replacing any previous destination.
func setupLogging(w io.Writer) {
	router.Remove("ui")
	router.Set("console", tint.NewHandler(w, &tint.Options{
		Level:      logLevel(),
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(slog.New(router))
}

func setupUILogging(w io.Writer) {
	router.Remove("console")
	router.Set("ui", tint.NewHandler(w, &tint.Options{
		Level:      logLevel(),
		TimeFormat: time.Kitchen,
	}))
}

func setupSignalHandlers(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		cancel()
	}()

	sigChan2 := make(chan os.Signal, 1)
	signal.Notify(sigChan2, syscall.SIGUSR1)
	go func() {
		for range sigChan2 {
			buf := make([]byte, stackTraceBufMax)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()
}

func loadConfiguration() (*configuration.AppConfiguration, error) {
	cfg, err := configuration.NewHandler(&configuration.GodotenvProvider{}).Load(*configFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || *configFile != configuration.DefaultConfigFile {
			return nil, err
		}
		slog.Debug("No configuration file, using defaults.",
			"path", *configFile,
		)
	}

	if *imagePath != "" {
		cfg.Image = *imagePath
	}

	return cfg, nil
}

func startApp(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, app *App) {
	defer wg.Done()
	defer cancel()

	if err := app.Launch(ctx); err != nil {
		slog.Error("Kernel failure.", "err", err)
		ExitCode = 1
	}
}

func startControls(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, app *App) {
	defer wg.Done()

	if app.uiHandler != nil {
		setupUILogging(app.uiHandler.LogWriter)

		err := app.LaunchUI()
		setupLogging(os.Stdout)

		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("UI failure: falling back to terminal.", "err", err)
		}
	}

	if ctx.Err() != nil {
		return
	}

	tc, err := newTerminalControls()
	if err != nil {
		slog.Warn("Keyboard controls unavailable, stop with a signal.", "err", err)
		<-ctx.Done()

		return
	}
	defer tc.Restore()

	setupLogging(crlfWriter{w: os.Stdout})
	defer setupLogging(os.Stdout)

	slog.Info("Controls: n = next track, p = previous track, q = quit")
	tc.Run(ctx, cancel, app)
}

func main() {
	defer func() {
		os.Exit(ExitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flag.Parse()
	setupLogging(os.Stdout)
	setupSignalHandlers(cancel)

	cpuProfiler := newProfiler(ctx, profileCPU, *cpuprofile)
	defer cpuProfiler.Stop()

	allocProfiler := newProfiler(ctx, profileAllocs, *memprofile)
	defer allocProfiler.Stop()

	cfg, err := loadConfiguration()
	if err != nil {
		slog.Error("Failed to load the configuration.",
			"err", err,
		)
		ExitCode = 1

		return
	}

	vol, err := volume.Open(cfg.Image, cfg.SlowInit, cfg.CardOptions()...)
	if err != nil {
		slog.Error("Failed to mount the card image.",
			"image", cfg.Image,
			"err", err,
		)
		ExitCode = 1

		return
	}
	defer vol.Close()

	app, err := NewApp(cfg, vol)
	if err != nil {
		slog.Error("Failed to set up the player.",
			"err", err,
		)
		ExitCode = 1

		return
	}
	defer app.Close()

	if *uiEnabled {
		app.uiHandler = ui.NewHandler(ctx, cancel, app.scheduler, app.player)
	}

	slog.Debug("Starting up.",
		"version", Version,
		"image", cfg.Image,
	)

	var wg sync.WaitGroup

	wg.Add(1)
	go startControls(ctx, cancel, &wg, app)

	wg.Add(1)
	go startApp(ctx, cancel, &wg, app)

	wg.Wait()
}
