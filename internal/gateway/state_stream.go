package gateway

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/promptlens/internal/auth"
)

const stateWriteTimeout = 10 * time.Second

// StateStream pushes a session's state to the browser after every transition.
type StateStream struct {
	sessions *SessionStore
	tracer   trace.Tracer
	upgrader websocket.Upgrader
}

// NewStateStream creates a new state stream
func NewStateStream(sessions *SessionStore) *StateStream {
	return &StateStream{
		sessions: sessions,
		tracer:   otel.Tracer("console-state-stream"),
		upgrader: websocket.Upgrader{
			CheckOrigin:      sameOrigin,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Stream handles GET /ws/state. The current state is sent on connect; later
// states follow as they happen. Messages from the browser are ignored.
func (s *StateStream) Stream(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "state_stream.stream")
	defer span.End()

	session := s.sessions.Get(auth.SessionID(c))
	span.SetAttributes(attribute.String("session.id", session.ID))

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		log.Printf(`{"level":"warn","message":"Failed to upgrade connection","session_id":"%s","error":"%v"}`, session.ID, err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	errChan := make(chan error, 1)

	// Browser -> server: only used to notice the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				errChan <- err
				return
			}
		}
	}()

	if err := s.write(conn, session.State()); err != nil {
		span.RecordError(err)
		return
	}

	for {
		select {
		case state := <-updates:
			if err := s.write(conn, state); err != nil {
				span.RecordError(err)
				log.Printf(`{"level":"warn","message":"Failed to push state","session_id":"%s","error":"%v"}`, session.ID, err)
				return
			}
		case err := <-errChan:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf(`{"level":"warn","message":"State stream read error","session_id":"%s","error":"%v"}`, session.ID, err)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *StateStream) write(conn *websocket.Conn, state StateResponse) error {
	if err := conn.SetWriteDeadline(time.Now().Add(stateWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(state)
}

// sameOrigin accepts requests without an Origin header and those whose Origin
// host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
