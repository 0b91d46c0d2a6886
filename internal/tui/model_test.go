package tui

import (
	"context"
	"errors"
	"net/http"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/promptlens/internal/analysis"
	"github.com/bizmatters/promptlens/internal/models"
	"github.com/bizmatters/promptlens/internal/reverseapi"
)

type stubAnalyzer struct {
	results []*models.ReverseResponse
	errs    []error
	texts   []string
	ctxs    []context.Context
}

func (s *stubAnalyzer) SubmitForAnalysis(ctx context.Context, outputText string) (*models.ReverseResponse, error) {
	i := len(s.texts)
	s.texts = append(s.texts, outputText)
	s.ctxs = append(s.ctxs, ctx)
	var result *models.ReverseResponse
	var err error
	if i < len(s.results) {
		result = s.results[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return result, err
}

type stubClipboard struct {
	written string
	err     error
}

func (c *stubClipboard) WriteText(text string) error {
	if c.err != nil {
		return c.err
	}
	c.written = text
	return nil
}

type stubHealth struct {
	health *models.HealthResponse
	err    error
}

func (h stubHealth) Health(context.Context) (*models.HealthResponse, error) {
	return h.health, h.err
}

func sampleResult(id string) *models.ReverseResponse {
	return &models.ReverseResponse{
		RequestID:           id,
		InferredPrompt:      "Respond in JSON with a confidence field.",
		PromptStyle:         "structured",
		TaskType:            "extraction",
		ConstraintsDetected: []string{"json_format"},
		TemperatureEstimate: "low",
		ReasoningTrace:      []string{"style=structured"},
		Explainability:      models.Explainability{Summary: "Structured output detected."},
		ConfidenceScore:     0.815,
	}
}

func newTestModel(t *testing.T, analyzer *stubAnalyzer, clip *stubClipboard) *Model {
	t.Helper()
	m := New(context.Background(), Config{
		Controller: analysis.NewController(analyzer),
		Health:     stubHealth{health: &models.HealthResponse{Status: "ok", Environment: "development"}},
		Clipboard:  clip,
		BaseURL:    "http://localhost:8000",
	})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "ctrl+j":
		return tea.KeyMsg{Type: tea.KeyCtrlJ}
	case "ctrl+t":
		return tea.KeyMsg{Type: tea.KeyCtrlT}
	case "ctrl+y":
		return tea.KeyMsg{Type: tea.KeyCtrlY}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drain runs cmd and every command it batches, returning the messages that
// matter to the model.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	var msgs []tea.Msg
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			msgs = append(msgs, drain(c)...)
		}
	case analysisDoneMsg, healthMsg:
		msgs = append(msgs, msg)
	}
	return msgs
}

func press(t *testing.T, m *Model, k string) tea.Cmd {
	t.Helper()
	_, cmd := m.Update(key(k))
	return cmd
}

func runAnalysis(t *testing.T, m *Model, k string) {
	t.Helper()
	msgs := drain(press(t, m, k))
	require.Len(t, msgs, 1)
	assert.Equal(t, analysis.PhasePending, m.controller.Phase())
	m.Update(msgs[0])
}

func TestModel_StartsWithStarterText(t *testing.T) {
	m := newTestModel(t, &stubAnalyzer{}, &stubClipboard{})

	assert.Equal(t, analysis.StarterText, m.composer.Value())
	assert.Equal(t, analysis.PhaseIdle, m.controller.Phase())
	assert.Contains(t, m.View(), "Prompt Reverse Engineer")
	assert.Contains(t, m.View(), "ctrl+s analyze")
	assert.NotContains(t, m.View(), "ctrl+y copy")
}

func TestModel_Health(t *testing.T) {
	tests := []struct {
		name     string
		checker  stubHealth
		contains string
		failed   bool
	}{
		{
			name:     "healthy",
			checker:  stubHealth{health: &models.HealthResponse{Status: "ok", Environment: "staging"}},
			contains: "http://localhost:8000 ok (staging)",
		},
		{
			name:     "unreachable",
			checker:  stubHealth{err: &reverseapi.APIError{Kind: reverseapi.KindNetworkError, Message: reverseapi.MessageNetworkFailure}},
			contains: "unreachable",
			failed:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(context.Background(), Config{
				Controller: analysis.NewController(&stubAnalyzer{}),
				Health:     tt.checker,
				BaseURL:    "http://localhost:8000",
			})

			msgs := drain(m.Init())
			require.Len(t, msgs, 1)
			m.Update(msgs[0])

			assert.Equal(t, tt.failed, m.healthFailed)
			assert.Contains(t, m.View(), tt.contains)
		})
	}
}

func TestModel_AnalyzeSuccess(t *testing.T) {
	analyzer := &stubAnalyzer{results: []*models.ReverseResponse{sampleResult("req-1")}}
	m := newTestModel(t, analyzer, &stubClipboard{})

	cmd := press(t, m, "ctrl+s")
	assert.Contains(t, m.View(), "Analyzing…")

	msgs := drain(cmd)
	require.Len(t, msgs, 1)
	m.Update(msgs[0])

	assert.Equal(t, analysis.PhaseSucceeded, m.controller.Phase())
	assert.Equal(t, []string{analysis.StarterText}, analyzer.texts)

	view := m.View()
	assert.Contains(t, view, "Respond in JSON with a confidence field.")
	assert.Contains(t, view, "82%")
	assert.Contains(t, view, "ctrl+y copy")
	assert.NotContains(t, view, "Analyzing…")
}

func TestModel_TypingUpdatesControllerText(t *testing.T) {
	analyzer := &stubAnalyzer{results: []*models.ReverseResponse{sampleResult("req-1")}}
	m := newTestModel(t, analyzer, &stubClipboard{})

	m.composer.SetValue("")
	m.controller.SetOutputText("")
	press(t, m, "hello world")
	assert.Equal(t, "hello world", m.controller.Snapshot().OutputText)

	runAnalysis(t, m, "ctrl+s")
	assert.Equal(t, []string{"hello world"}, analyzer.texts)
}

func TestModel_BlankTextDoesNotAnalyze(t *testing.T) {
	analyzer := &stubAnalyzer{}
	m := newTestModel(t, analyzer, &stubClipboard{})
	m.composer.SetValue("")
	m.controller.SetOutputText("  ")

	cmd := press(t, m, "ctrl+s")
	assert.Nil(t, cmd)
	assert.Empty(t, analyzer.texts)
	assert.Equal(t, analysis.PhaseIdle, m.controller.Phase())
	assert.Contains(t, m.View(), "Nothing to analyze.")
}

func TestModel_PendingGuard(t *testing.T) {
	analyzer := &stubAnalyzer{results: []*models.ReverseResponse{sampleResult("req-1")}}
	m := newTestModel(t, analyzer, &stubClipboard{})

	first := press(t, m, "ctrl+s")
	second := press(t, m, "ctrl+r")
	assert.Nil(t, second)

	for _, msg := range drain(first) {
		m.Update(msg)
	}
	assert.Len(t, analyzer.texts, 1)
	assert.Equal(t, analysis.PhaseSucceeded, m.controller.Phase())
}

func TestModel_FailureThenRetry(t *testing.T) {
	analyzer := &stubAnalyzer{
		results: []*models.ReverseResponse{nil, sampleResult("req-2")},
		errs: []error{&reverseapi.APIError{
			Kind:    reverseapi.KindServiceError,
			Status:  http.StatusBadGateway,
			Message: "upstream unavailable",
		}},
	}
	m := newTestModel(t, analyzer, &stubClipboard{})

	runAnalysis(t, m, "ctrl+s")
	assert.Equal(t, analysis.PhaseFailed, m.controller.Phase())
	assert.Contains(t, m.View(), "upstream unavailable")
	assert.Contains(t, m.View(), "ctrl+r to retry")

	runAnalysis(t, m, "ctrl+r")
	assert.Equal(t, analysis.PhaseSucceeded, m.controller.Phase())
	assert.NotContains(t, m.View(), "upstream unavailable")
	assert.Len(t, analyzer.texts, 2)
}

func TestModel_ViewToggles(t *testing.T) {
	analyzer := &stubAnalyzer{results: []*models.ReverseResponse{sampleResult("req-1"), sampleResult("req-2")}}
	m := newTestModel(t, analyzer, &stubClipboard{})

	press(t, m, "ctrl+j")
	assert.False(t, m.view.RawView, "toggles do nothing without a result")

	runAnalysis(t, m, "ctrl+s")

	press(t, m, "ctrl+t")
	assert.True(t, m.view.TraceExpanded)
	assert.Contains(t, m.viewport.View(), "Reasoning Trace")

	press(t, m, "ctrl+j")
	assert.True(t, m.view.RawView)
	assert.Contains(t, m.viewport.View(), `"request_id": "req-1"`)
	assert.Contains(t, m.View(), "ctrl+j structured")

	runAnalysis(t, m, "ctrl+s")
	assert.False(t, m.view.RawView)
	assert.False(t, m.view.TraceExpanded)
}

func TestModel_Copy(t *testing.T) {
	tests := []struct {
		name       string
		analyze    bool
		clipErr    error
		wantNotice string
		wantFailed bool
	}{
		{name: "no result", wantNotice: "Nothing to copy yet.", wantFailed: true},
		{name: "copied", analyze: true, wantNotice: "Inferred prompt copied to clipboard."},
		{name: "clipboard failure", analyze: true, clipErr: errors.New("xclip missing"), wantNotice: "Clipboard copy failed: xclip missing", wantFailed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip := &stubClipboard{err: tt.clipErr}
			m := newTestModel(t, &stubAnalyzer{results: []*models.ReverseResponse{sampleResult("req-1")}}, clip)
			if tt.analyze {
				runAnalysis(t, m, "ctrl+s")
			}

			press(t, m, "ctrl+y")

			assert.Equal(t, tt.wantNotice, m.notice)
			assert.Equal(t, tt.wantFailed, m.noticeFailed)
			if tt.analyze && tt.clipErr == nil {
				assert.Equal(t, "Respond in JSON with a confidence field.", clip.written)
			}
		})
	}
}

func TestModel_QuitCancelsRequests(t *testing.T) {
	analyzer := &stubAnalyzer{results: []*models.ReverseResponse{sampleResult("req-1")}}
	m := newTestModel(t, analyzer, &stubClipboard{})

	cmd := press(t, m, "ctrl+s")
	_, quit := m.Update(key("esc"))
	require.NotNil(t, quit)
	assert.IsType(t, tea.QuitMsg{}, quit())

	drain(cmd)
	require.Len(t, analyzer.ctxs, 1)
	assert.ErrorIs(t, analyzer.ctxs[0].Err(), context.Canceled)
}
