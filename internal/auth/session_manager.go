package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("session-manager")

const sessionIssuer = "promptlens-console"

// SessionManager issues and validates signed session tokens for the web console
type SessionManager struct {
	signingKey []byte
	algorithm  string
	keyID      string
	tracer     trace.Tracer
}

// SessionClaims identifies one browser session
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewSessionManager creates a session manager. An empty secret gets a random
// per-process key, so sessions do not survive a restart.
func NewSessionManager(secret string) (*SessionManager, error) {
	key := []byte(secret)
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
		key = []byte(hex.EncodeToString(buf))
	}

	return &SessionManager{
		signingKey: key,
		algorithm:  "HS256",
		keyID:      "default",
		tracer:     tracer,
	}, nil
}

// NewSessionID returns a fresh random session identifier
func NewSessionID() string {
	return uuid.NewString()
}

// IssueToken signs a token for sessionID that expires after duration
func (sm *SessionManager) IssueToken(ctx context.Context, sessionID string, duration time.Duration) (string, error) {
	_, span := sm.tracer.Start(ctx, "session.issue_token")
	defer span.End()

	span.SetAttributes(attribute.String("session.id", sessionID))

	now := time.Now()
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    sessionIssuer,
			Subject:   sessionID,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(sm.algorithm), claims)
	token.Header["kid"] = sm.keyID

	tokenString, err := token.SignedString(sm.signingKey)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	span.SetAttributes(attribute.String("jwt.expires_at", claims.ExpiresAt.String()))
	return tokenString, nil
}

// ValidateToken parses tokenString and returns its claims
func (sm *SessionManager) ValidateToken(ctx context.Context, tokenString string) (*SessionClaims, error) {
	_, span := sm.tracer.Start(ctx, "session.validate_token")
	defer span.End()

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != sm.algorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if kid, ok := token.Header["kid"].(string); ok && kid != sm.keyID {
			span.SetAttributes(attribute.String("jwt.kid_mismatch", kid))
		}
		return sm.signingKey, nil
	}, jwt.WithIssuer(sessionIssuer))

	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, fmt.Errorf("invalid token claims")
	}

	span.SetAttributes(attribute.String("session.id", claims.SessionID))
	return claims, nil
}
