package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// maxRecent is the number of completed transfers kept for display.
const maxRecent = 50

// UIState represents the aggregated state of a batch for the TUI
type UIState struct {
	Container      string
	TotalFiles     int64
	Submitted      int64
	Completed      int64
	Succeeded      int64
	Failed         int64
	CompletedBytes int64
	MaxOutstanding int
	FilesPerSec    float64
	Elapsed        time.Duration
	Recent         []RecentTransfer
	Summary        string
	Done           bool
}

// InFlight returns the number of submitted transfers not completed yet.
func (s UIState) InFlight() int64 {
	return s.Submitted - s.Completed
}

// RecentTransfer is one finished transfer shown in the log pane
type RecentTransfer struct {
	Name string
	Size int64
	Err  string
}

// TUIModel implements the tea.Model interface
type TUIModel struct {
	state    UIState
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model
	onQuit   func()

	width  int
	height int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	streamStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg is sent periodically to update the UI state
type TUIUpdateMsg struct {
	State UIState
}

// NewTUIModel creates the dashboard. onQuit is called when the user
// quits before the batch is done.
func NewTUIModel(initialState UIState, onQuit func()) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	return TUIModel{
		state:        initialState,
		spinner:      s,
		progress:     prog,
		onQuit:       onQuit,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m TUIModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
	)
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.state.Done && m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 14

		headerHeight := 5
		footerHeight := 2
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerHeight-footerHeight, 1))

	case TUIUpdateMsg:
		m.state = msg.State

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder

	// Header
	header := fmt.Sprintf("%s bpush %s", m.spinner.View(), m.titleStyle.Render("Batch Upload "+m.state.Container))
	sb.WriteString(header + "\n")

	// Global Progress
	var percent float64
	if m.state.TotalFiles > 0 {
		percent = float64(m.state.Completed) / float64(m.state.TotalFiles)
	}

	opsInfo := fmt.Sprintf("ETA: %s | In flight: %d/%d | Files: %s/%s | %s | %s | Failed: %d",
		formatETA(m.state.Completed, m.state.TotalFiles, m.state.FilesPerSec),
		m.state.InFlight(), m.state.MaxOutstanding,
		humanize.Comma(m.state.Completed), humanize.Comma(m.state.TotalFiles),
		humanize.IBytes(uint64(m.state.CompletedBytes)),
		formatRate(m.state.FilesPerSec),
		m.state.Failed)

	sb.WriteString(m.infoStyle.Render(opsInfo) + "\n")
	sb.WriteString(m.progress.ViewAs(percent) + "\n\n")

	// Recent transfers, newest first
	sb.WriteString("Recent Transfers:\n")
	var content strings.Builder

	if len(m.state.Recent) == 0 {
		content.WriteString(m.infoStyle.Render("No completed transfers yet..."))
	} else {
		for i := len(m.state.Recent) - 1; i >= 0; i-- {
			r := m.state.Recent[i]
			name := r.Name
			if len(name) > 40 {
				name = "..." + name[len(name)-37:]
			}
			if r.Err != "" {
				content.WriteString(fmt.Sprintf("%s %s | %s\n", m.errorStyle.Render("FAIL"), name, r.Err))
			} else {
				content.WriteString(fmt.Sprintf("%s   %-40s | %s\n", m.streamStyle.Render("OK"), name, humanize.IBytes(uint64(r.Size))))
			}
		}
	}

	m.viewport.SetContent(content.String())
	sb.WriteString(m.viewport.View())

	// Footer
	help := m.helpStyle.Render("q/ctrl+c: stop submitting and quit")
	if m.state.Done {
		help = m.successStyle.Render(m.state.Summary) + " Press 'q' to exit."
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

func formatRate(filesPerSec float64) string {
	if filesPerSec >= 1000 {
		return fmt.Sprintf("%.1fk files/s", filesPerSec/1000)
	}
	return fmt.Sprintf("%.2f files/s", filesPerSec)
}

func formatETA(completed, total int64, filesPerSec float64) string {
	if completed == 0 || filesPerSec <= 0 || total == 0 {
		return "Calculating..."
	}

	remaining := total - completed
	if remaining <= 0 {
		return "0s"
	}

	d := time.Duration(float64(remaining) / filesPerSec * float64(time.Second))

	if d.Hours() > 24 {
		return "> 1d"
	}

	return d.Round(time.Second).String()
}
