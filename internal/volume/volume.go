// Package volume brings up the storage stack of a disk image: the image is
// served by a simulated card, initialized through the card driver and
// mounted as a filesystem.
package volume

import (
	"fmt"
	"log/slog"

	"github.com/desertwitch/wavos/internal/ext2"
	"github.com/desertwitch/wavos/internal/schema"
	"github.com/desertwitch/wavos/internal/sdcard"
	"github.com/desertwitch/wavos/internal/sdcard/simcard"
)

// Volume is a mounted disk image.
type Volume struct {
	Image *simcard.Image
	Bus   *simcard.Card
	Card  *sdcard.Card
	FS    *ext2.FileSystem
	Files int
}

// Open maps the image at path, initializes the card and mounts the
// filesystem, indexing the files of its root directory.
func Open(path string, slowInit bool, opts ...sdcard.Option) (*Volume, error) {
	img, err := simcard.OpenImage(path, &schema.OS{}, &schema.Unix{})
	if err != nil {
		return nil, fmt.Errorf("(volume) %w", err)
	}

	v, err := mount(img, simcard.New(img, img.Blocks()), slowInit, opts...)
	if err != nil {
		_ = img.Close()

		return nil, err
	}

	return v, nil
}

func mount(img *simcard.Image, bus *simcard.Card, slowInit bool, opts ...sdcard.Option) (*Volume, error) {
	card := sdcard.New(bus, opts...)

	if err := card.Init(slowInit); err != nil {
		code, data := card.LastError()

		return nil, fmt.Errorf("(volume) card init failed (code %s, data 0x%02X): %w", code, data, err)
	}

	fs, err := ext2.Mount(card)
	if err != nil {
		return nil, fmt.Errorf("(volume) %w", err)
	}

	n, err := fs.EnumerateFiles()
	if err != nil {
		return nil, fmt.Errorf("(volume) %w", err)
	}

	slog.Info("Volume mounted:",
		"card", card.Type(),
		"files", n,
	)

	return &Volume{
		Image: img,
		Bus:   bus,
		Card:  card,
		FS:    fs,
		Files: n,
	}, nil
}

// Close unmaps the image.
func (v *Volume) Close() error {
	if err := v.Image.Close(); err != nil {
		return fmt.Errorf("(volume) %w", err)
	}

	return nil
}
