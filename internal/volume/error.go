package volume

import "errors"

var (
	// ErrHashMismatch is returned when an extracted file does not hash like
	// its source on the image.
	ErrHashMismatch = errors.New("hash mismatch")

	// ErrRenameExists is returned when the destination of an extraction
	// already exists.
	ErrRenameExists = errors.New("destination already exists")

	// ErrInvalidName is returned for file names unusable on the host.
	ErrInvalidName = errors.New("invalid file name")
)
