package gateway

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bizmatters/promptlens/internal/analysis"
	"github.com/bizmatters/promptlens/internal/models"
	"github.com/bizmatters/promptlens/internal/presenter"
	"github.com/bizmatters/promptlens/internal/reverseapi"
)

// MetricsSurface tags analysis metrics recorded by the web console.
const MetricsSurface = "web"

// StateResponse is the JSON snapshot of one console session.
type StateResponse struct {
	OutputText        string                  `json:"output_text"`
	Pending           bool                    `json:"pending"`
	Phase             analysis.Phase          `json:"phase"`
	Error             string                  `json:"error"`
	CanAnalyze        bool                    `json:"can_analyze"`
	Result            *models.ReverseResponse `json:"result"`
	RawView           bool                    `json:"raw_view"`
	TraceExpanded     bool                    `json:"trace_expanded"`
	ConfidencePercent *int                    `json:"confidence_percent"`
}

// Session is one browser's analysis controller plus its results view.
type Session struct {
	ID         string
	controller *analysis.Controller

	mu          sync.Mutex
	view        presenter.ResultsView
	subscribers map[uint64]chan StateResponse
	nextSubID   uint64
	detach      func()
}

func newSession(id string, analyzer reverseapi.Analyzer, recorder analysis.Recorder) *Session {
	var opts []analysis.Option
	if recorder != nil {
		opts = append(opts, analysis.WithRecorder(recorder, MetricsSurface))
	}

	s := &Session{
		ID:          id,
		controller:  analysis.NewController(analyzer, opts...),
		subscribers: make(map[uint64]chan StateResponse),
	}
	s.detach = s.controller.OnChange(func(analysis.State) { s.publish() })
	return s
}

// Controller returns the session's analysis controller.
func (s *Session) Controller() *analysis.Controller {
	return s.controller
}

// State returns the current snapshot with the view bound to the latest result.
func (s *Session) State() StateResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// ToggleRaw flips raw mode and publishes the new state.
func (s *Session) ToggleRaw() {
	s.mu.Lock()
	s.view.Bind(s.controller.Snapshot().Result)
	s.view.ToggleRaw()
	s.mu.Unlock()
	s.publish()
}

// ToggleTrace flips the reasoning trace and publishes the new state.
func (s *Session) ToggleTrace() {
	s.mu.Lock()
	s.view.Bind(s.controller.Snapshot().Result)
	s.view.ToggleTrace()
	s.mu.Unlock()
	s.publish()
}

// Subscribe returns a channel that always holds the most recent state not yet
// read. The returned func stops delivery.
func (s *Session) Subscribe() (<-chan StateResponse, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	ch := make(chan StateResponse, 1)
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

func (s *Session) stateLocked() StateResponse {
	snapshot := s.controller.Snapshot()
	s.view.Bind(snapshot.Result)

	resp := StateResponse{
		OutputText:    snapshot.OutputText,
		Pending:       snapshot.Pending,
		Phase:         snapshot.Phase(),
		Error:         snapshot.Error,
		CanAnalyze:    snapshot.CanAnalyze(),
		Result:        snapshot.Result,
		RawView:       s.view.RawView,
		TraceExpanded: s.view.TraceExpanded,
	}
	if snapshot.Result != nil {
		percent := presenter.ConfidencePercent(snapshot.Result.ConfidenceScore)
		resp.ConfidencePercent = &percent
	}
	return resp
}

func (s *Session) close() {
	s.detach()
}

// SessionStore keeps console sessions in memory and expires idle ones.
type SessionStore struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]
	analyzer reverseapi.Analyzer
	recorder analysis.Recorder
}

// NewSessionStore creates a store holding at most size sessions, each dropped
// after ttl without use. recorder may be nil.
func NewSessionStore(analyzer reverseapi.Analyzer, recorder analysis.Recorder, size int, ttl time.Duration) *SessionStore {
	onEvict := func(_ string, s *Session) { s.close() }
	return &SessionStore{
		sessions: expirable.NewLRU[string, *Session](size, onEvict, ttl),
		analyzer: analyzer,
		recorder: recorder,
	}
}

// Get returns the session for id, creating it on first use. Every call renews
// the session's expiry.
func (st *SessionStore) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions.Get(id)
	if !ok {
		s = newSession(id, st.analyzer, st.recorder)
	}
	st.sessions.Add(id, s)
	return s
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	return st.sessions.Len()
}
