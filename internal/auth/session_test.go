package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes-only"

func TestSessionManager_IssueAndValidate(t *testing.T) {
	sm, err := NewSessionManager(testSecret)
	require.NoError(t, err)
	ctx := context.Background()

	token, err := sm.IssueToken(ctx, "session-123", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := sm.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "session-123", claims.SessionID)
	assert.Equal(t, "session-123", claims.Subject)
	assert.Equal(t, sessionIssuer, claims.Issuer)
}

func TestSessionManager_RejectsBadTokens(t *testing.T) {
	sm, err := NewSessionManager(testSecret)
	require.NoError(t, err)
	other, err := NewSessionManager("a-completely-different-secret-value")
	require.NoError(t, err)
	ctx := context.Background()

	expired, err := sm.IssueToken(ctx, "session-123", -time.Minute)
	require.NoError(t, err)

	foreign, err := other.IssueToken(ctx, "session-123", time.Hour)
	require.NoError(t, err)

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, &SessionClaims{SessionID: "x"})
	unsigned, err := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong_key", foreign},
		{"none_algorithm", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := sm.ValidateToken(ctx, tt.token)
			assert.Nil(t, claims)
			assert.Error(t, err)
		})
	}
}

func TestNewSessionManager_RandomKeyWhenSecretEmpty(t *testing.T) {
	a, err := NewSessionManager("")
	require.NoError(t, err)
	b, err := NewSessionManager("")
	require.NoError(t, err)

	assert.Len(t, a.signingKey, 64)
	assert.NotEqual(t, a.signingKey, b.signingKey)
}

func setupSessionRouter(sm *SessionManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(EnsureSession(sm, false))
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, SessionID(c))
	})
	return router
}

func TestEnsureSession(t *testing.T) {
	sm, err := NewSessionManager(testSecret)
	require.NoError(t, err)
	router := setupSessionRouter(sm)

	t.Run("starts a session without a cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		sessionID := w.Body.String()
		assert.Len(t, sessionID, 36)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, SessionCookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)

		claims, err := sm.ValidateToken(context.Background(), cookies[0].Value)
		require.NoError(t, err)
		assert.Equal(t, sessionID, claims.SessionID)
	})

	t.Run("resumes a session from a valid cookie", func(t *testing.T) {
		token, err := sm.IssueToken(context.Background(), "existing-session", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "existing-session", w.Body.String())
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("replaces an invalid cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tampered"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEqual(t, "", w.Body.String())
		require.Len(t, w.Result().Cookies(), 1)
	})
}
