// Package ui implements a command-line user interface using [tea].
package ui

import (
	"context"
	"fmt"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertwitch/wavos/internal/ext2"
	"github.com/desertwitch/wavos/internal/kernel"
	"github.com/desertwitch/wavos/internal/player"
)

type playerProvider interface {
	Status() player.Status
	Playlist() []ext2.Entry
	Next() bool
	Prev() bool
}

type kernelProvider interface {
	Snapshot() kernel.Snapshot
}

// Handler is the principal implementation of a user interface [Handler].
type Handler struct {
	player  playerProvider
	kernel  kernelProvider
	program *tea.Program

	LogWriter *TeaLogWriter

	Ready  atomic.Bool
	Failed atomic.Bool
}

// NewHandler returns a pointer to a new user interface [Handler].
func NewHandler(ctx context.Context, cancel context.CancelFunc, k kernelProvider, p playerProvider) *Handler {
	handler := &Handler{
		player: p,
		kernel: k,
	}

	model := NewTeaModel(handler, cancel)
	handler.program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	handler.LogWriter = NewTeaLogWriter(handler.program)

	return handler
}

// Launch starts the command-line user interface (the [tea.Program]).
func (uiHandler *Handler) Launch() error {
	defer uiHandler.LogWriter.Stop()

	if _, err := uiHandler.program.Run(); err != nil {
		uiHandler.Failed.Store(true)

		return fmt.Errorf("(ui) %w", err)
	}

	return nil
}
