package player

import "errors"

var (
	// ErrNoTracks is returned when the filesystem holds no playable files.
	ErrNoTracks = errors.New("no tracks on the filesystem")

	// ErrInvalidSampleRate is returned for a non-positive sample rate.
	ErrInvalidSampleRate = errors.New("invalid sample rate")
)
