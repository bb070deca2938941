package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertwitch/wavos/internal/ext2"
	"github.com/desertwitch/wavos/internal/kernel"
	"github.com/desertwitch/wavos/internal/player"
	"github.com/dustin/go-humanize"
)

const (
	pollInterval = 100 * time.Millisecond
	maxLogLines  = 100
)

//nolint:gochecknoglobals
var (
	// titleStyle defines the style for a panel's title.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	// borderStyle defines the style for a panel's borders.
	borderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4"))

	// infoStyle defines the style for a panel's text.
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	// headerStyle defines the style for the thread table's header row.
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD75F"))

	// currentStyle highlights the current track and the running thread.
	currentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5FFF87"))

	// errorStyle defines the style for the last playback error.
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	// helpStyle defines the style for the help panel's text.
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(0, 1)
)

// StatusMsg is a [tea.Msg] containing the polled kernel and player state.
type StatusMsg struct {
	t        time.Time
	snapshot kernel.Snapshot
	status   player.Status
}

// TeaModel is the principal [tea.Model] for the command-line user interface.
type TeaModel struct {
	width  int
	height int

	cancel context.CancelFunc

	uiHandler *Handler
	playlist  []ext2.Entry

	fullWidthWithBorders  int
	splitWidthWithBorders int

	snapshot kernel.Snapshot
	status   player.Status

	trackProgress progress.Model
	logsViewport  viewport.Model
	logs          []string

	ready bool
}

// NewTeaModel returns an initial new [TeaModel].
//
//nolint:mnd
func NewTeaModel(uiHandler *Handler, cancel context.CancelFunc) TeaModel {
	return TeaModel{
		uiHandler: uiHandler,
		playlist:  uiHandler.player.Playlist(),
		trackProgress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(80),
		),
		logsViewport: viewport.New(80, 20),
		logs:         make([]string, 0, maxLogLines),
		cancel:       cancel,
	}
}

// Init initializes the model within a [tea.Program].
func (m TeaModel) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		pollStatus(m.uiHandler),
	)
}

// pollStatus produces a [tea.Cmd] for later scheduling in a [tea.Program].
// When executed, a [StatusMsg] with the current kernel snapshot and
// player status is returned.
func pollStatus(h *Handler) tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return StatusMsg{
			t:        t,
			snapshot: h.kernel.Snapshot(),
			status:   h.player.Status(),
		}
	})
}

// Update is the principal message handling method of the model.
// It sets the internal state of the model, for later rendering.
//
//nolint:mnd,funlen,ireturn
func (m TeaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()

			return m, tea.Quit
		case "q":
			return m, tea.Quit
		case "n":
			m.uiHandler.player.Next()
		case "p":
			m.uiHandler.player.Prev()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		m.fullWidthWithBorders = m.width - 2
		m.splitWidthWithBorders = (m.width / 2) - 2

		m.trackProgress.Width = m.splitWidthWithBorders

		// Upper panels take about half of the height.
		upperHeight := m.height / 2
		lowerHeight := m.height - upperHeight

		// Viewport height: lower section minus borders and title.
		m.logsViewport.Width = m.fullWidthWithBorders
		m.logsViewport.Height = max(lowerHeight-3, 1)

		m.renderLogs()

		if !m.ready {
			m.ready = true
			m.uiHandler.Ready.Store(true)
		}

	case StatusMsg:
		m.snapshot = msg.snapshot
		m.status = msg.status

		var pct float64
		if m.status.Size > 0 {
			pct = float64(m.status.Position) / float64(m.status.Size)
		}

		cmds = append(cmds,
			m.trackProgress.SetPercent(pct),
			pollStatus(m.uiHandler),
		)

	case LogMsg:
		if len(m.logs) >= maxLogLines {
			m.logs = m.logs[1:]
		}
		m.logs = append(m.logs, string(msg))

		m.renderLogs()

	case progress.FrameMsg:
		updated, cmd := m.trackProgress.Update(msg)
		if progressModel, ok := updated.(progress.Model); ok {
			m.trackProgress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	m.logsViewport, cmd = m.logsViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *TeaModel) renderLogs() {
	if len(m.logs) == 0 {
		return
	}

	logs := lipgloss.NewStyle().
		Width(m.logsViewport.Width).
		Render(strings.TrimSuffix(strings.Join(m.logs, ""), "\n"))

	m.logsViewport.SetContent(logs)
	m.logsViewport.GotoBottom()
}

// View is the principal rendering function of the model.
func (m TeaModel) View() string {
	if !m.ready {
		return "Loading the GUI..."
	}

	upperSection := lipgloss.JoinHorizontal(
		lipgloss.Top,
		borderStyle.Width(m.splitWidthWithBorders).Render(m.kernelView()),
		borderStyle.Width(m.splitWidthWithBorders).Render(m.trackView()),
	)

	logsSection := borderStyle.
		Width(m.fullWidthWithBorders).
		Render(
			lipgloss.JoinVertical(
				lipgloss.Left,
				titleStyle.Width(m.fullWidthWithBorders).Render("System Log"),
				lipgloss.NewStyle().Width(m.fullWidthWithBorders).Render(m.logsViewport.View()),
			),
		)

	helpSection := helpStyle.
		Width(m.fullWidthWithBorders).
		Render("n: next track • p: previous track • q: quit gui • ctrl+c: quit program")

	return lipgloss.JoinVertical(
		lipgloss.Left,
		upperSection,
		logsSection,
		helpSection,
	)
}

// kernelView renders the system counters and the thread table.
func (m TeaModel) kernelView() string {
	snap := m.snapshot

	details := fmt.Sprintf(
		"System time: %s\n"+
			"Interrupts/second: %s\n"+
			"Number of threads: %d\n",
		formatClock(time.Duration(snap.Uptime)*time.Second),
		humanize.Comma(int64(snap.InterruptsPerSecond)),
		snap.NumThreads,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Width(m.splitWidthWithBorders).Render("Kernel"),
		"", // Empty line for spacing.
		infoStyle.Width(m.splitWidthWithBorders).Render(details),
		threadTable(snap),
	)
}

// threadTable renders one row per thread of the snapshot.
func threadTable(snap kernel.Snapshot) string {
	const row = "%-3s %-9s %6s %8s %s"

	lines := []string{
		headerStyle.Render(fmt.Sprintf(row, "ID", "STATE", "STACK", "SCHED", "RESUMED AT")),
	}

	for _, th := range snap.Threads {
		line := fmt.Sprintf(row,
			fmt.Sprint(th.ID),
			th.State.String(),
			humanize.IBytes(uint64(th.StackSize)), //nolint:gosec
			humanize.Comma(int64(th.SchedCount)),
			shortFuncName(th.ResumedAt),
		)

		if th.ID == snap.Current {
			line = currentStyle.Render(line)
		}

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// trackView renders the current track, its progress and the playlist.
func (m TeaModel) trackView() string {
	st := m.status

	details := fmt.Sprintf(
		"File: %d / %d\n"+
			"Name: %s\n"+
			"Time: %s / %s\n"+
			"Size: %s\n",
		st.Track+1, st.NumTracks,
		st.Name,
		formatClock(st.Elapsed), formatClock(st.Total),
		humanize.IBytes(uint64(st.Size)),
	)

	parts := []string{
		titleStyle.Width(m.splitWidthWithBorders).Render("Now Playing"),
		"", // Empty line for spacing.
		m.trackProgress.View(),
		"", // Empty line for spacing.
		infoStyle.Width(m.splitWidthWithBorders).Render(details),
	}

	if st.LastError != "" {
		parts = append(parts, errorStyle.Width(m.splitWidthWithBorders).Render("Error: "+st.LastError))
	}

	for _, e := range m.playlist {
		line := fmt.Sprintf("%2d. %s (%s)", e.Index+1, e.Name, humanize.IBytes(uint64(e.Size)))
		if e.Index == st.Track {
			line = currentStyle.Render(line)
		}
		parts = append(parts, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// formatClock renders a duration as m:ss.
func formatClock(d time.Duration) string {
	secs := int(d / time.Second)

	return fmt.Sprintf("%d:%02d", secs/60, secs%60) //nolint:mnd
}

// shortFuncName strips the package path of a function name.
func shortFuncName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	return name
}
