// Command wavefs inspects a card image: card registers, filesystem summary
// and the playable files with their sizes and BLAKE3 digests. Files can be
// extracted to the host.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertwitch/wavos/internal/configuration"
	"github.com/desertwitch/wavos/internal/ext2"
	"github.com/desertwitch/wavos/internal/schema"
	"github.com/desertwitch/wavos/internal/sdcard"
	"github.com/desertwitch/wavos/internal/volume"
	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
)

//nolint:gochecknoglobals
var (
	ExitCode = 0

	configFile = flag.String("config", configuration.DefaultConfigFile, "configuration file")
	imagePath  = flag.String("image", "", "disk image (overrides the configuration)")
	digests    = flag.Bool("digest", true, "compute BLAKE3 digests of the files")
	extractDir = flag.String("extract", "", "extract all files into this directory")
	debug      = flag.Bool("debug", false, "enable debug logging")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func setupLogging() {
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}),
	))
}

func loadConfiguration() (*configuration.AppConfiguration, error) {
	cfg, err := configuration.NewHandler(&configuration.GodotenvProvider{}).Load(*configFile)
	if err != nil && (!errors.Is(err, fs.ErrNotExist) || *configFile != configuration.DefaultConfigFile) {
		return nil, err
	}

	if *imagePath != "" {
		cfg.Image = *imagePath
	}

	return cfg, nil
}

func printCard(w io.Writer, v *volume.Volume) error {
	cid, err := v.Card.ReadCID()
	if err != nil {
		return fmt.Errorf("failed to read CID: %w", err)
	}

	blocks, err := v.Card.Size()
	if err != nil {
		return fmt.Errorf("failed to read CSD: %w", err)
	}

	sb := v.FS.Superblock()

	fmt.Fprintf(w, "%s\n", headerStyle.Render("Card"))
	fmt.Fprintf(w, "  Type:      %s\n", v.Card.Type())
	fmt.Fprintf(w, "  Product:   %s (OEM %s, manufacturer 0x%02X, rev %d.%d)\n",
		cid.ProductName, cid.OEMID, cid.ManufacturerID, cid.Revision>>4, cid.Revision&0x0F) //nolint:mnd
	fmt.Fprintf(w, "  Serial:    %08X, made %04d-%02d\n", cid.SerialNumber, cid.Year, cid.Month)
	fmt.Fprintf(w, "  Capacity:  %s (%s blocks)\n",
		humanize.IBytes(uint64(blocks)*sdcard.BlockSize), humanize.Comma(int64(blocks)))

	fmt.Fprintf(w, "%s\n", headerStyle.Render("Filesystem"))
	fmt.Fprintf(w, "  Volume:    %q (revision %d)\n", sb.VolumeName, sb.RevLevel)
	fmt.Fprintf(w, "  Blocks:    %s of %s\n", humanize.Comma(int64(sb.BlocksCount)), humanize.IBytes(ext2.BlockSize))
	fmt.Fprintf(w, "  Inodes:    %s (%d per group, %d bytes)\n",
		humanize.Comma(int64(sb.InodesCount)), sb.InodesPerGroup, sb.InodeSize)

	return nil
}

func printFiles(ctx context.Context, w io.Writer, v *volume.Volume, sampleRate int) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}

			return cellStyle
		}).
		Headers("#", "NAME", "SIZE", "DURATION", "BLAKE3")

	for i := range v.Files {
		e, err := v.FS.Stat(i)
		if err != nil {
			return fmt.Errorf("failed to stat file %d: %w", i, err)
		}

		digest := "-"
		if *digests {
			if digest, err = v.Digest(ctx, i); err != nil {
				return err
			}
		}

		duration := time.Duration(e.Size) * time.Second / time.Duration(sampleRate)

		t.Row(
			fmt.Sprint(i+1),
			e.Name,
			humanize.IBytes(uint64(e.Size)),
			duration.Truncate(time.Second).String(),
			digest,
		)
	}

	fmt.Fprintln(w, t.Render())

	return nil
}

func extractFiles(ctx context.Context, v *volume.Volume, dir string) error {
	osOps := &schema.OS{}

	for i := range v.Files {
		dest, err := v.Extract(ctx, osOps, i, dir)
		if err != nil {
			return err
		}

		slog.Info("File extracted:",
			"index", i+1,
			"path", dest,
		)
	}

	return nil
}

func run(ctx context.Context) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	v, err := volume.Open(cfg.Image, cfg.SlowInit, cfg.CardOptions()...)
	if err != nil {
		return err
	}
	defer v.Close()

	if err := printCard(os.Stdout, v); err != nil {
		return err
	}

	if err := printFiles(ctx, os.Stdout, v, cfg.SampleRate); err != nil {
		return err
	}

	if *extractDir != "" {
		return extractFiles(ctx, v, *extractDir)
	}

	return nil
}

func main() {
	defer func() {
		os.Exit(ExitCode)
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	flag.Parse()
	setupLogging()

	if err := run(ctx); err != nil {
		slog.Error("Failed to inspect the image.",
			"err", err,
		)
		ExitCode = 1
	}
}
