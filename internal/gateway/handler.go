package gateway

import (
	"context"
	_ "embed"
	"html/template"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/promptlens/internal/auth"
	"github.com/bizmatters/promptlens/internal/presenter"
)

//go:embed templates/console.html
var consoleTemplate string

// ConsolePage is the data rendered by the console template.
type ConsolePage struct {
	State   StateResponse
	Result  *presenter.Structured
	RawJSON string
}

// Handler serves the web console
type Handler struct {
	sessions *SessionStore
	// baseCtx parents every analysis request; cancelling it aborts them all.
	baseCtx context.Context
	tracer  trace.Tracer
	stream  *StateStream
}

// NewHandler creates a new console handler
func NewHandler(baseCtx context.Context, sessions *SessionStore) *Handler {
	return &Handler{
		sessions: sessions,
		baseCtx:  baseCtx,
		tracer:   otel.Tracer("console-handler"),
		stream:   NewStateStream(sessions),
	}
}

// RegisterRoutes mounts the console on router. Every route except /health runs
// inside a session.
func (h *Handler) RegisterRoutes(router *gin.Engine, sm *auth.SessionManager, secureCookies bool) {
	router.SetHTMLTemplate(template.Must(template.New("console").Parse(consoleTemplate)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	console := router.Group("")
	console.Use(auth.EnsureSession(sm, secureCookies))

	console.GET("/", h.Console)
	console.POST("/analyze", h.Analyze)
	console.POST("/retry", h.Retry)
	console.POST("/view/raw", h.ToggleRaw)
	console.POST("/view/trace", h.ToggleTrace)
	console.GET("/api/state", h.GetState)
	console.GET("/ws/state", h.stream.Stream)
}

// Console renders the page for the caller's session
func (h *Handler) Console(c *gin.Context) {
	session := h.sessions.Get(auth.SessionID(c))
	state := session.State()

	page := ConsolePage{State: state}
	if state.Result != nil {
		structured := presenter.Project(state.Result, state.TraceExpanded)
		page.Result = &structured
		if state.RawView {
			raw, err := presenter.RawJSON(state.Result)
			if err != nil {
				log.Printf(`{"level":"error","message":"Failed to render raw view","session_id":"%s","error":"%v"}`, session.ID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render result"})
				return
			}
			page.RawJSON = raw
		}
	}

	c.HTML(http.StatusOK, "console", page)
}

// Analyze stores the submitted text and starts an analysis when the guards allow
func (h *Handler) Analyze(c *gin.Context) {
	session := h.sessions.Get(auth.SessionID(c))
	if text, ok := c.GetPostForm("output_text"); ok {
		session.Controller().SetOutputText(text)
	}
	h.start(c, session)
	c.Redirect(http.StatusSeeOther, "/")
}

// Retry re-runs the analysis with the stored text
func (h *Handler) Retry(c *gin.Context) {
	session := h.sessions.Get(auth.SessionID(c))
	h.start(c, session)
	c.Redirect(http.StatusSeeOther, "/")
}

// ToggleRaw switches between structured and raw JSON
func (h *Handler) ToggleRaw(c *gin.Context) {
	h.sessions.Get(auth.SessionID(c)).ToggleRaw()
	c.Redirect(http.StatusSeeOther, "/")
}

// ToggleTrace shows or hides the reasoning trace
func (h *Handler) ToggleTrace(c *gin.Context) {
	h.sessions.Get(auth.SessionID(c)).ToggleTrace()
	c.Redirect(http.StatusSeeOther, "/")
}

// GetState returns the session snapshot as JSON
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Get(auth.SessionID(c)).State())
}

// start begins an attempt and completes it in the background. A rejected
// attempt leaves the state untouched.
func (h *Handler) start(c *gin.Context, session *Session) {
	_, span := h.tracer.Start(c.Request.Context(), "console.start_analysis")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", session.ID))

	attempt, ok := session.Controller().Begin()
	span.SetAttributes(attribute.Bool("analysis.started", ok))
	if !ok {
		log.Printf(`{"level":"info","message":"Analysis not started","session_id":"%s","phase":"%s"}`,
			session.ID, session.Controller().Phase())
		return
	}

	runCtx := trace.ContextWithSpanContext(h.baseCtx, span.SpanContext())
	go func() {
		session.Controller().Complete(attempt.Run(runCtx))
	}()
}
