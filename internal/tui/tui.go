// Package tui provides a Bubble Tea terminal user interface for the
// manga downloader.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rinshan/bilimanga-downloader/internal/app"
	"github.com/rinshan/bilimanga-downloader/internal/event"
	"github.com/rinshan/bilimanga-downloader/internal/model"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	episodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))
)

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateFetching
	StateDownloading
	StateCleaning
	StateComplete
	StateError
)

// LogLevel classifies a log entry for styling.
type LogLevel int

const (
	LevelInfo LogLevel = iota
	LevelSuccess
	LevelError
	LevelDim
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   LogLevel
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	app       *app.App
	events    <-chan event.Event
	logs      []LogEntry
	comic     *model.Comic
	err       error

	// Download context
	ctx    context.Context
	cancel context.CancelFunc

	// Download progress
	totalTasks  int
	endedTasks  int
	failedTasks int
	imgDone     int
	imgTotal    int
	speed       string

	// Directories queued for watermark removal after the downloads end.
	pendingClean []string
	taskDirs     map[int64]string

	// Options
	includeExtras   bool
	removeWatermark bool

	width  int
	height int
}

// NewModel creates a new TUI model over an assembled App.
func NewModel(a *app.App, events <-chan event.Event) Model {
	ti := textinput.New()
	ti.Placeholder = "comic id, e.g. 26551"
	ti.Focus()
	ti.CharLimit = 20
	ti.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		app:       a,
		events:    events,
		logs:      make([]LogEntry, 0),
		taskDirs:  make(map[int64]string),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

// Message types
type (
	// BusMsg wraps one progress event from the event bus.
	BusMsg struct {
		Event event.Event
	}

	// FetchDoneMsg is sent when the comic detail fetch completes.
	FetchDoneMsg struct {
		Comic  *model.Comic
		Extras []model.AlbumPlusItem
		Err    error
	}

	// CleanDoneMsg is sent when post-download watermark removal ends.
	CleanDoneMsg struct{}
)

// waitForEvent blocks on the bus subscription and forwards one event.
func waitForEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return BusMsg{Event: ev}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateFetching || m.state == StateDownloading || m.state == StateCleaning {
				m.cancel()
				m.state = StateError
				m.err = fmt.Errorf("cancelled by user")
			}

		case "enter":
			if m.state == StateInput && m.textInput.Value() != "" {
				comicID, err := strconv.ParseInt(strings.TrimSpace(m.textInput.Value()), 10, 64)
				if err != nil {
					m.err = fmt.Errorf("not a comic id: %q", m.textInput.Value())
					m.state = StateError
					return m, nil
				}
				m.state = StateFetching
				return m, tea.Batch(m.fetchComic(comicID), m.spinner.Tick)
			}

		case "a":
			if m.state == StateInput {
				m.includeExtras = !m.includeExtras
			}

		case "w":
			if m.state == StateInput {
				m.removeWatermark = !m.removeWatermark
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				// Reset for a new download
				m.state = StateInput
				m.logs = nil
				m.comic = nil
				m.err = nil
				m.totalTasks = 0
				m.endedTasks = 0
				m.failedTasks = 0
				m.imgDone = 0
				m.imgTotal = 0
				m.speed = ""
				m.pendingClean = nil
				m.taskDirs = make(map[int64]string)
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.textInput.SetValue("")
				m.textInput.Focus()
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case FetchDoneMsg:
		if msg.Err != nil {
			m.state = StateError
			m.err = msg.Err
		} else {
			m.comic = msg.Comic
			m.submit(msg.Comic, msg.Extras)
			if m.totalTasks == 0 {
				m.state = StateComplete
				m.addLog("nothing new to download", LevelDim)
			} else {
				m.state = StateDownloading
			}
		}

	case BusMsg:
		m.applyEvent(msg.Event)
		cmds = append(cmds, waitForEvent(m.events))
		if m.state == StateDownloading && m.endedTasks == m.totalTasks {
			if len(m.pendingClean) > 0 {
				m.state = StateCleaning
				cmds = append(cmds, m.runWatermark(m.pendingClean))
			} else {
				m.state = StateComplete
			}
		}

	case CleanDoneMsg:
		m.state = StateComplete

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	// Update text input
	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// submit admits the fetched episodes and extras and records where their
// output will land, for the optional watermark pass.
func (m *Model) submit(comic *model.Comic, extras []model.AlbumPlusItem) {
	cfg := m.app.GetConfig()
	cleanable := m.removeWatermark && cfg.Archive() == model.ArchiveFormatImage

	for _, ep := range comic.Episodes {
		if cleanable && !ep.IsLocked && !ep.IsDownloaded {
			m.taskDirs[ep.EpisodeID] = ep.DownloadDir(cfg.DownloadDir)
		}
	}
	m.totalTasks = m.app.DownloadEpisodes(comic.Episodes)
	m.totalTasks += m.app.DownloadAlbumPlus(extras)
}

// applyEvent folds one bus event into the view state.
func (m *Model) applyEvent(ev event.Event) {
	switch ev := ev.(type) {
	case event.DownloadStart:
		m.addLog(fmt.Sprintf("started %s (%d pages)", ev.Title, ev.Total), LevelInfo)
	case event.DownloadImageError:
		m.addLog(fmt.Sprintf("image failed: %s", ev.ErrMsg), LevelError)
	case event.DownloadSpeed:
		m.speed = ev.Speed
	case event.OverallProgress:
		m.imgDone = ev.DownloadedImageCount
		m.imgTotal = ev.TotalImageCount
	case event.DownloadEnd:
		m.endedTasks++
		if ev.ErrMsg != nil {
			m.failedTasks++
			delete(m.taskDirs, ev.ID)
			m.addLog(fmt.Sprintf("task %d failed: %s", ev.ID, *ev.ErrMsg), LevelError)
		} else {
			if dir, ok := m.taskDirs[ev.ID]; ok {
				m.pendingClean = append(m.pendingClean, dir)
			}
			m.addLog(fmt.Sprintf("task %d finished", ev.ID), LevelSuccess)
		}
	case event.RemoveWatermarkStart:
		m.addLog(fmt.Sprintf("cleaning %s (%d images)", ev.DirPath, ev.Total), LevelInfo)
	case event.RemoveWatermarkError:
		m.addLog(fmt.Sprintf("watermark removal failed: %s", ev.ErrMsg), LevelError)
	}
}

func (m *Model) addLog(message string, level LogLevel) {
	m.logs = append(m.logs, LogEntry{Message: message, Level: level})
	// Keep only the last 10 logs
	if len(m.logs) > 10 {
		m.logs = m.logs[len(m.logs)-10:]
	}
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("bilimanga downloader"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Download comics from bilibili manga"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateFetching:
		b.WriteString(m.viewFetching())
	case StateDownloading, StateCleaning:
		b.WriteString(m.viewDownloading())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter comic id:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	extrasCheck := "[ ]"
	if m.includeExtras {
		extrasCheck = "[x]"
	}
	watermarkCheck := "[ ]"
	if m.removeWatermark {
		watermarkCheck = "[x]"
	}

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s Include bonus content (a)\n", extrasCheck))
	b.WriteString(fmt.Sprintf("  %s Remove watermarks after download (w)\n", watermarkCheck))
	b.WriteString("\n")
	cfg := m.app.GetConfig()
	b.WriteString(dimStyle.Render(fmt.Sprintf("Download path: %s | format: %s", cfg.DownloadDir, cfg.ArchiveFormat)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewFetching() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render("Fetching comic detail..."))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewDownloading() string {
	var b strings.Builder

	if m.comic != nil {
		b.WriteString(episodeStyle.Render(m.comic.Title))
		b.WriteString("\n\n")
	}

	// Progress bar over completed images
	var percent float64
	if m.imgTotal > 0 {
		percent = float64(m.imgDone) / float64(m.imgTotal)
	} else if m.endedTasks == m.totalTasks && m.totalTasks > 0 {
		percent = 1
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")

	speed := m.speed
	if speed == "" {
		speed = "0.00 MB/s"
	}
	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Tasks: %d/%d | Images: %d/%d | %s",
		m.endedTasks,
		m.totalTasks,
		m.imgDone,
		m.imgTotal,
		speed,
	)))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	title := "unknown comic"
	if m.comic != nil {
		title = m.comic.Title
	}
	box := boxStyle.Render(fmt.Sprintf(
		"Download complete\n\n"+
			"Comic: %s\n"+
			"Tasks: %d (%d failed)",
		title,
		m.totalTasks,
		m.failedTasks,
	))
	return box
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case LevelError:
			style = errorStyle
			prefix = "x"
		case LevelSuccess:
			style = successStyle
			prefix = "+"
		case LevelInfo:
			style = infoStyle
			prefix = ">"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: start • a: bonus content • w: watermark removal • esc: quit"
	case StateFetching, StateDownloading, StateCleaning:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: new download • q: quit"
	}
	return ""
}

// fetchComic loads the comic detail (and optionally its bonus content).
func (m *Model) fetchComic(comicID int64) tea.Cmd {
	ctx := m.ctx
	a := m.app
	includeExtras := m.includeExtras
	return func() tea.Msg {
		comic, err := a.GetComic(ctx, comicID)
		if err != nil {
			return FetchDoneMsg{Err: err}
		}
		var extras []model.AlbumPlusItem
		if includeExtras {
			if extras, err = a.GetAlbumPlus(ctx, comicID); err != nil {
				return FetchDoneMsg{Err: err}
			}
		}
		return FetchDoneMsg{Comic: comic, Extras: extras}
	}
}

// runWatermark removes watermarks from the finished directories, one job
// per directory. Progress arrives through the bus like any other job.
func (m *Model) runWatermark(dirs []string) tea.Cmd {
	ctx := m.ctx
	a := m.app
	return func() tea.Msg {
		for _, dir := range dirs {
			if ctx.Err() != nil {
				break
			}
			_ = a.RemoveWatermark(ctx, dir)
		}
		return CleanDoneMsg{}
	}
}

// Run starts the TUI application over an assembled App. The App's worker
// pool must already be running.
func Run(a *app.App, events <-chan event.Event) error {
	p := tea.NewProgram(NewModel(a, events), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
