package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLogRouter_Swap tests that records follow the installed handlers.
func TestLogRouter_Swap(t *testing.T) {
	t.Parallel()

	var console, gui bytes.Buffer

	r := newLogRouter()
	r.Set("console", slog.NewTextHandler(&console, nil))
	logger := slog.New(r)

	logger.Info("first")

	r.Remove("console")
	r.Set("ui", slog.NewTextHandler(&gui, nil))
	logger.Info("second")

	assert.Contains(t, console.String(), "first")
	assert.NotContains(t, console.String(), "second")
	assert.Contains(t, gui.String(), "second")

	assert.False(t, r.Enabled(t.Context(), slog.LevelDebug))

	derived := slog.New(r.WithAttrs([]slog.Attr{slog.String("thread", "reader")}))
	derived.Info("third")
	assert.Contains(t, gui.String(), "thread=reader")
}

// TestCRLFWriter tests the line feed translation for raw terminals.
func TestCRLFWriter(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	n, err := crlfWriter{w: &out}.Write([]byte("a\nb\n"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "a\r\nb\r\n", out.String())
}
