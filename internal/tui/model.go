package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bizmatters/promptlens/internal/analysis"
	"github.com/bizmatters/promptlens/internal/models"
	"github.com/bizmatters/promptlens/internal/presenter"
)

// MetricsSurface tags analysis metrics recorded by the terminal UI.
const MetricsSurface = "tui"

const (
	composerHeight = 8
	minWidth       = 40
	// title, health, status, help and panel borders
	chromeHeight = 8
)

// HealthChecker reports whether the inference service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) (*models.HealthResponse, error)
}

// Config wires runtime options into the TUI program.
type Config struct {
	Controller *analysis.Controller
	Health     HealthChecker
	Clipboard  presenter.Clipboard
	BaseURL    string
}

type analysisDoneMsg struct {
	outcome analysis.Outcome
}

type healthMsg struct {
	health *models.HealthResponse
	err    error
}

// Model is the bubbletea model for the analysis console.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	controller *analysis.Controller
	health     HealthChecker
	clipboard  presenter.Clipboard
	baseURL    string

	composer textarea.Model
	spinner  spinner.Model
	viewport viewport.Model
	styles   *Styles

	view presenter.ResultsView

	width        int
	healthLine   string
	healthFailed bool
	notice       string
	noticeFailed bool
}

// New returns a Model ready to be mounted into a Program. Cancelling parent
// aborts any request in flight.
func New(parent context.Context, cfg Config) *Model {
	ctx, cancel := context.WithCancel(parent)

	composer := textarea.New()
	composer.Placeholder = "Paste an LLM output here."
	composer.ShowLineNumbers = false
	composer.CharLimit = 0
	composer.MaxHeight = 0
	composer.SetWidth(80)
	composer.SetHeight(composerHeight)
	composer.SetValue(cfg.Controller.Snapshot().OutputText)
	composer.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 12)
	vp.MouseWheelEnabled = true

	clip := cfg.Clipboard
	if clip == nil {
		clip = presenter.SystemClipboard{}
	}

	return &Model{
		ctx:        ctx,
		cancel:     cancel,
		controller: cfg.Controller,
		health:     cfg.Health,
		clipboard:  clip,
		baseURL:    cfg.BaseURL,
		composer:   composer,
		spinner:    spin,
		viewport:   vp,
		styles:     NewStyles(),
		width:      80,
		healthLine: "checking service…",
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.checkHealth())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		if !m.controller.Snapshot().Pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case analysisDoneMsg:
		m.controller.Complete(msg.outcome)
		m.refreshResults(true)
		return m, nil
	case healthMsg:
		m.applyHealth(msg)
		return m, nil
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c", "esc":
		m.cancel()
		return m, tea.Quit
	case "ctrl+s", "ctrl+r":
		return m, m.analyze()
	case "ctrl+j":
		m.toggle((*presenter.ResultsView).ToggleRaw)
		return m, nil
	case "ctrl+t":
		m.toggle((*presenter.ResultsView).ToggleTrace)
		return m, nil
	case "ctrl+y":
		m.copyPrompt()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(key)
	m.controller.SetOutputText(m.composer.Value())
	return m, cmd
}

// analyze starts an attempt for the current text. The request runs as a
// command; its outcome comes back as analysisDoneMsg.
func (m *Model) analyze() tea.Cmd {
	attempt, ok := m.controller.Begin()
	if !ok {
		if m.controller.Snapshot().Pending {
			m.setNotice("Analysis already in progress.", false)
		} else {
			m.setNotice("Nothing to analyze.", true)
		}
		return nil
	}

	m.notice = ""
	ctx := m.ctx
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return analysisDoneMsg{outcome: attempt.Run(ctx)}
	})
}

func (m *Model) toggle(fn func(*presenter.ResultsView)) {
	result := m.controller.Snapshot().Result
	if result == nil {
		return
	}
	m.view.Bind(result)
	fn(&m.view)
	m.refreshResults(false)
}

func (m *Model) copyPrompt() {
	if err := presenter.CopyPrompt(m.clipboard, m.controller.Snapshot().Result); err != nil {
		if errors.Is(err, presenter.ErrNothingToCopy) {
			m.setNotice("Nothing to copy yet.", true)
			return
		}
		m.setNotice(fmt.Sprintf("Clipboard %v", err), true)
		return
	}
	m.setNotice("Inferred prompt copied to clipboard.", false)
}

func (m *Model) setNotice(text string, failed bool) {
	m.notice = text
	m.noticeFailed = failed
}

func (m *Model) checkHealth() tea.Cmd {
	if m.health == nil {
		return nil
	}
	ctx := m.ctx
	checker := m.health
	return func() tea.Msg {
		health, err := checker.Health(ctx)
		return healthMsg{health: health, err: err}
	}
}

func (m *Model) applyHealth(msg healthMsg) {
	if msg.err != nil {
		m.healthFailed = true
		m.healthLine = fmt.Sprintf("%s unreachable: %s", m.baseURL, msg.err.Error())
		return
	}
	m.healthFailed = false
	m.healthLine = fmt.Sprintf("%s %s (%s)", m.baseURL, msg.health.Status, msg.health.Environment)
}

func (m *Model) resize(width, height int) {
	if width < minWidth {
		width = minWidth
	}
	m.width = width
	m.composer.SetWidth(width - 2)

	vpHeight := height - composerHeight - chromeHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = width - 4
	m.viewport.Height = vpHeight
	m.refreshResults(false)
}

// refreshResults re-renders the results panel. A new result resets the view
// toggles and scrolls back to the top.
func (m *Model) refreshResults(scrollTop bool) {
	result := m.controller.Snapshot().Result
	m.view.Bind(result)
	if result == nil {
		m.viewport.SetContent("")
		return
	}

	var b strings.Builder
	if err := presenter.WriteText(&b, result, m.view.RawView, m.view.TraceExpanded); err != nil {
		m.setNotice(err.Error(), true)
		return
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String()))
	if scrollTop {
		m.viewport.GotoTop()
	}
}

func (m *Model) View() string {
	state := m.controller.Snapshot()

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Prompt Reverse Engineer"))
	b.WriteString("\n")
	if m.healthFailed {
		b.WriteString(m.styles.Error.Render(m.healthLine))
	} else {
		b.WriteString(m.styles.Subtle.Render(m.healthLine))
	}
	b.WriteString("\n\n")

	b.WriteString(m.composer.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine(state))
	b.WriteString("\n")

	if state.Result != nil {
		b.WriteString(m.styles.Panel.Render(m.viewport.View()))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Help.Render(m.helpLine(state)))
	return b.String()
}

func (m *Model) statusLine(state analysis.State) string {
	switch {
	case state.Pending:
		return m.spinner.View() + " " + m.styles.Accent.Render("Analyzing…")
	case state.Error != "":
		return m.styles.Error.Render(state.Error) + m.styles.Subtle.Render("  ctrl+r to retry")
	case m.notice != "" && m.noticeFailed:
		return m.styles.Error.Render(m.notice)
	case m.notice != "":
		return m.styles.Success.Render(m.notice)
	}
	return ""
}

func (m *Model) helpLine(state analysis.State) string {
	keys := []string{"ctrl+s analyze"}
	if state.Error != "" {
		keys = append(keys, "ctrl+r retry")
	}
	if state.Result != nil {
		mode := "raw"
		if m.view.RawView {
			mode = "structured"
		}
		trace := "show trace"
		if m.view.TraceExpanded {
			trace = "hide trace"
		}
		keys = append(keys, "ctrl+j "+mode, "ctrl+t "+trace, "ctrl+y copy", "pgup/pgdn scroll")
	}
	keys = append(keys, "esc quit")
	return strings.Join(keys, " • ")
}
