package auth

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var middlewareTracer = otel.Tracer("session-middleware")

const (
	// SessionCookieName holds the signed session token
	SessionCookieName = "promptlens_session"
	// SessionIDKey is the gin context key for the session id
	SessionIDKey = "session_id"
	// SessionTTL bounds both the cookie and the token lifetime
	SessionTTL = 24 * time.Hour
)

// EnsureSession is a Gin middleware that resolves the caller's session from the
// session cookie and starts a new one when the cookie is missing or invalid.
func EnsureSession(sm *SessionManager, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.ensure_session")
		defer span.End()

		if token, err := c.Cookie(SessionCookieName); err == nil && token != "" {
			claims, err := sm.ValidateToken(ctx, token)
			if err == nil {
				span.SetAttributes(
					attribute.Bool("session.resumed", true),
					attribute.String("session.id", claims.SessionID),
				)
				c.Set(SessionIDKey, claims.SessionID)
				c.Next()
				return
			}
			span.RecordError(err)
			log.Printf(`{"level":"warn","message":"Invalid session token","error":"%v"}`, err)
		}

		sessionID := NewSessionID()
		token, err := sm.IssueToken(ctx, sessionID, SessionTTL)
		if err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
			c.Abort()
			return
		}

		span.SetAttributes(
			attribute.Bool("session.resumed", false),
			attribute.String("session.id", sessionID),
		)

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookieName, token, int(SessionTTL.Seconds()), "/", "", secure, true)
		c.Set(SessionIDKey, sessionID)

		log.Printf(`{"level":"info","message":"Session started","session_id":"%s","path":"%s"}`,
			sessionID, c.Request.URL.Path)

		c.Next()
	}
}

// SessionID returns the session id attached by EnsureSession.
func SessionID(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}
