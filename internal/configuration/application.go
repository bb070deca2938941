package configuration

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/desertwitch/wavos/internal/audio"
	"github.com/desertwitch/wavos/internal/ext2"
	"github.com/desertwitch/wavos/internal/kernel"
	"github.com/desertwitch/wavos/internal/sdcard"
)

// Configuration keys.
const (
	KeyImage        = "WAVOS_IMAGE"
	KeySampleRate   = "WAVOS_SAMPLE_RATE"
	KeyTickRate     = "WAVOS_TICK_RATE"
	KeyPartialReads = "WAVOS_PARTIAL_READS"
	KeySlowInit     = "WAVOS_SLOW_INIT"
	KeyBusyTimeout  = "WAVOS_BUSY_TIMEOUT_MS"
	KeyReadTimeout  = "WAVOS_READ_TIMEOUT_MS"
	KeyInitTimeout  = "WAVOS_INIT_TIMEOUT_MS"
	KeyStackSize    = "WAVOS_STACK_SIZE"
	KeyStartTrack   = "WAVOS_START_TRACK"
	KeyAudio        = "WAVOS_AUDIO"
)

const (
	// DefaultConfigFile is read when no configuration file is given.
	DefaultConfigFile = "/etc/wavos.conf"

	// DefaultImage is the card image used when none is configured.
	DefaultImage = "card.img"

	// DefaultSampleRate is the playback sample rate in Hz.
	DefaultSampleRate = audio.DefaultSampleRate

	// DefaultStackSize is the working space of the player's reader thread.
	DefaultStackSize = 256

	maxStackSize = kernel.StackBudget / 4
)

// AppConfiguration is the principal structure holding the application configuration.
type AppConfiguration struct {
	Image        string
	SampleRate   int
	TickRate     int
	PartialReads bool
	SlowInit     bool
	BusyTimeout  time.Duration
	ReadTimeout  time.Duration
	InitTimeout  time.Duration
	StackSize    int
	StartTrack   int
	Audio        bool
}

// NewAppConfiguration returns a pointer to a new [AppConfiguration] holding
// the defaults.
func NewAppConfiguration() *AppConfiguration {
	return &AppConfiguration{
		Image:        DefaultImage,
		SampleRate:   DefaultSampleRate,
		TickRate:     DefaultSampleRate,
		PartialReads: true,
		BusyTimeout:  sdcard.DefaultBusyTimeout,
		ReadTimeout:  sdcard.DefaultReadTimeout,
		InitTimeout:  sdcard.DefaultInitTimeout,
		StackSize:    DefaultStackSize,
		Audio:        true,
	}
}

// Load returns the defaults overridden by the given configuration files.
// Malformed values keep their defaults.
func (c *Handler) Load(filenames ...string) (*AppConfiguration, error) {
	cfg := NewAppConfiguration()

	envMap, err := c.ReadGeneric(filenames...)
	if err != nil {
		return cfg, fmt.Errorf("(config) failed to read: %w", err)
	}

	if v := c.MapKeyToString(envMap, KeyImage); v != "" {
		cfg.Image = v
	}
	if v := c.MapKeyToInt(envMap, KeySampleRate); v > 0 {
		cfg.SampleRate = v
		cfg.TickRate = v
	}
	if v := c.MapKeyToInt(envMap, KeyTickRate); v > 0 {
		cfg.TickRate = v
	}
	if v := c.MapKeyToInt(envMap, KeyStackSize); v > 0 && v <= maxStackSize {
		cfg.StackSize = v
	} else if v != -1 {
		slog.Warn("Ignoring stack size out of range:",
			"key", KeyStackSize,
			"value", v,
			"max", maxStackSize,
		)
	}
	if v := c.MapKeyToInt(envMap, KeyStartTrack); v >= 0 && v < ext2.MaxFiles {
		cfg.StartTrack = v
	}
	if v := c.MapKeyToMillis(envMap, KeyBusyTimeout); v > 0 {
		cfg.BusyTimeout = v
	}
	if v := c.MapKeyToMillis(envMap, KeyReadTimeout); v > 0 {
		cfg.ReadTimeout = v
	}
	if v := c.MapKeyToMillis(envMap, KeyInitTimeout); v > 0 {
		cfg.InitTimeout = v
	}

	cfg.PartialReads = c.MapKeyToBool(envMap, KeyPartialReads, cfg.PartialReads)
	cfg.SlowInit = c.MapKeyToBool(envMap, KeySlowInit, cfg.SlowInit)
	cfg.Audio = c.MapKeyToBool(envMap, KeyAudio, cfg.Audio)

	return cfg, nil
}

// TickPeriod returns the scheduling tick period for the configured rate.
func (cfg *AppConfiguration) TickPeriod() time.Duration {
	return time.Second / time.Duration(cfg.TickRate)
}

// CardOptions returns the storage driver options for the configuration.
func (cfg *AppConfiguration) CardOptions() []sdcard.Option {
	return []sdcard.Option{
		sdcard.WithBusyTimeout(cfg.BusyTimeout),
		sdcard.WithReadTimeout(cfg.ReadTimeout),
		sdcard.WithInitTimeout(cfg.InitTimeout),
		sdcard.WithPartialBlockRead(cfg.PartialReads),
	}
}
