package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"
)

const (
	keyPollInterval  = 5 * time.Millisecond
	statusLogPeriod  = 5 * time.Second
	keyCtrlC         = 0x03
	keyLowerCaseMask = 0x20
)

var errNotTerminal = errors.New("stdin is not a terminal")

// terminalControls reads single keypresses from a raw-mode terminal, the
// fallback when the user interface is disabled or was closed.
type terminalControls struct {
	fd       int
	oldState *term.State
}

func newTerminalControls() (*terminalControls, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec

	if !term.IsTerminal(fd) {
		return nil, errNotTerminal
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("(terminal) failed to set raw mode: %w", err)
	}

	if err := syscall.SetNonblock(fd, true); err != nil {
		_ = term.Restore(fd, oldState)

		return nil, fmt.Errorf("(terminal) failed to set nonblocking stdin: %w", err)
	}

	return &terminalControls{
		fd:       fd,
		oldState: oldState,
	}, nil
}

// Run dispatches keypresses until the context is done or the user quits.
func (tc *terminalControls) Run(ctx context.Context, cancel context.CancelFunc, app *App) {
	buf := make([]byte, 1)

	statusTicker := time.NewTicker(statusLogPeriod)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-statusTicker.C:
			app.logStatus()
		default:
		}

		n, err := syscall.Read(tc.fd, buf)
		if errors.Is(err, syscall.EAGAIN) || n == 0 {
			time.Sleep(keyPollInterval)

			continue
		}
		if err != nil {
			slog.Error("Terminal read failure:", "err", err)

			return
		}

		switch buf[0] | keyLowerCaseMask {
		case 'n':
			app.player.Next()
		case 'p':
			app.player.Prev()
		case 'q':
			cancel()

			return
		}

		if buf[0] == keyCtrlC {
			cancel()

			return
		}
	}
}

// Restore returns the terminal to its previous mode.
func (tc *terminalControls) Restore() {
	_ = syscall.SetNonblock(tc.fd, false)
	_ = term.Restore(tc.fd, tc.oldState)
}
