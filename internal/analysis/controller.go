package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bizmatters/promptlens/internal/models"
	"github.com/bizmatters/promptlens/internal/reverseapi"
)

// StarterText pre-fills the input so a first-time user sees what to paste.
const StarterText = "Paste an LLM output here.\nExample:\n1. First gather constraints.\n2. Then respond in JSON format with confidence."

// UnknownErrorMessage is shown for failures that carry no user-facing message.
const UnknownErrorMessage = "Unknown error"

// Phase is the controller state derived from State.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePending   Phase = "pending"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// State is the interaction state shared with the presentation layer.
type State struct {
	OutputText string
	Pending    bool
	Result     *models.ReverseResponse
	Error      string
}

// Phase derives the state machine position. A failed retry keeps the previous
// result, so Failed is checked before Succeeded.
func (s State) Phase() Phase {
	switch {
	case s.Pending:
		return PhasePending
	case s.Error != "":
		return PhaseFailed
	case s.Result != nil:
		return PhaseSucceeded
	default:
		return PhaseIdle
	}
}

// CanAnalyze reports whether an analyze action would start a request.
func (s State) CanAnalyze() bool {
	return !s.Pending && strings.TrimSpace(s.OutputText) != ""
}

// Recorder receives attempt lifecycle events. metrics.AnalysisMetrics satisfies it.
type Recorder interface {
	RecordAttemptStarted(ctx context.Context, surface string)
	RecordAttemptSucceeded(ctx context.Context, surface string, cached bool, duration time.Duration)
	RecordAttemptFailed(ctx context.Context, surface, errorKind string, duration time.Duration)
}

// Controller drives one analysis session. It allows at most one request in flight.
type Controller struct {
	mu        sync.Mutex
	analyzer  reverseapi.Analyzer
	state     State
	attemptID uint64

	observers  map[uint64]func(State)
	observerID uint64

	recorder Recorder
	surface  string
}

// Option customises a Controller.
type Option func(*Controller)

// WithRecorder reports every attempt to r, tagged with surface.
func WithRecorder(r Recorder, surface string) Option {
	return func(c *Controller) {
		c.recorder = r
		c.surface = surface
	}
}

// WithOutputText overrides the starter text.
func WithOutputText(text string) Option {
	return func(c *Controller) {
		c.state.OutputText = text
	}
}

// NewController creates an idle controller holding the starter text.
func NewController(analyzer reverseapi.Analyzer, opts ...Option) *Controller {
	c := &Controller{
		analyzer:  analyzer,
		state:     State{OutputText: StarterText},
		observers: make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.Snapshot().Phase()
}

// SetOutputText replaces the input text. Editing is allowed while a request is
// pending; the in-flight attempt keeps the text it started with.
func (c *Controller) SetOutputText(text string) {
	c.mu.Lock()
	if c.state.OutputText == text {
		c.mu.Unlock()
		return
	}
	c.state.OutputText = text
	c.unlockAndNotify()
}

// OnChange registers fn to receive a snapshot after every transition. The
// returned func removes the observer.
func (c *Controller) OnChange(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observerID++
	id := c.observerID
	c.observers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Attempt is one accepted analyze action. It is produced by Begin and must be
// finished with Complete.
type Attempt struct {
	id       uint64
	text     string
	analyzer reverseapi.Analyzer
	recorder Recorder
	surface  string
}

// Text returns the input the attempt submits.
func (a Attempt) Text() string {
	return a.text
}

// Outcome is the result of running an Attempt.
type Outcome struct {
	attemptID uint64
	Result    *models.ReverseResponse
	Err       error
}

// Run performs the single API call. It does not touch controller state, so it
// is safe to call from a goroutine or an event-loop command.
func (a Attempt) Run(ctx context.Context) Outcome {
	started := time.Now()
	if a.recorder != nil {
		a.recorder.RecordAttemptStarted(ctx, a.surface)
	}

	result, err := a.analyzer.SubmitForAnalysis(ctx, a.text)
	if err == nil && result == nil {
		err = errors.New("analysis returned no result")
	}

	if a.recorder != nil {
		elapsed := time.Since(started)
		if err != nil {
			kind := string(reverseapi.KindOf(err))
			if kind == "" {
				kind = "unknown"
			}
			a.recorder.RecordAttemptFailed(context.WithoutCancel(ctx), a.surface, kind, elapsed)
		} else {
			a.recorder.RecordAttemptSucceeded(context.WithoutCancel(ctx), a.surface, result.Cached, elapsed)
		}
	}

	return Outcome{attemptID: a.id, Result: result, Err: err}
}

// Begin applies the guards and, when they pass, enters Pending with the error
// cleared. It returns false when the text is blank or a request is in flight.
func (c *Controller) Begin() (Attempt, bool) {
	c.mu.Lock()
	if !c.state.CanAnalyze() {
		c.mu.Unlock()
		return Attempt{}, false
	}

	c.attemptID++
	attempt := Attempt{
		id:       c.attemptID,
		text:     c.state.OutputText,
		analyzer: c.analyzer,
		recorder: c.recorder,
		surface:  c.surface,
	}

	c.state.Error = ""
	c.state.Pending = true
	c.unlockAndNotify()

	return attempt, true
}

// Complete applies the exit transition for outcome. Success replaces the result
// wholesale; failure records the message and leaves the previous result alone.
// Outcomes of attempts other than the pending one are ignored.
func (c *Controller) Complete(outcome Outcome) {
	c.mu.Lock()
	if !c.state.Pending || outcome.attemptID != c.attemptID {
		c.mu.Unlock()
		return
	}

	if outcome.Err != nil {
		c.state.Error = errorMessage(outcome.Err)
	} else {
		c.state.Result = outcome.Result
	}
	c.state.Pending = false
	c.unlockAndNotify()
}

// Analyze runs Begin, Run and Complete in sequence and reports whether a request
// was made. Retry is the same action.
func (c *Controller) Analyze(ctx context.Context) bool {
	attempt, ok := c.Begin()
	if !ok {
		return false
	}
	c.Complete(attempt.Run(ctx))
	return true
}

// unlockAndNotify releases c.mu and hands the post-transition snapshot to every
// observer. Must be called with c.mu held.
func (c *Controller) unlockAndNotify() {
	snapshot := c.state
	observers := make([]func(State), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

func errorMessage(err error) string {
	var apiErr *reverseapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return UnknownErrorMessage
}
