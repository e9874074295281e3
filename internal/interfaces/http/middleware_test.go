package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"remnabot/internal/entities"
	"remnabot/internal/logging"
	"remnabot/internal/usecases"
)

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodGet, "/api/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodGet, "/api/me", ts.token(t, entities.RoleOwner, int64Ptr(7)), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"admin_id":9,"role":"owner","bot_id":7}`, w.Body.String())
}

func TestTenantScope(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.token(t, entities.RoleOwner, int64Ptr(7))
	super := ts.token(t, entities.RoleSuperAdmin, nil)

	t.Run("owner of the bot", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/bots/7/stats", owner, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("owner of another bot", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/bots/8/stats", owner, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("superadmin any bot", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/bots/8/stats", super, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/bots/abc/stats", super, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	assert.Equal(t, []int64{7, 8}, ts.dashboard.scopedTo)
}

func TestSuperAdminRequired(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/bots", ts.token(t, entities.RoleOwner, int64Ptr(7)), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodGet, "/api/bots", ts.token(t, entities.RoleSuperAdmin, nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitPerAdmin(t *testing.T) {
	mw := NewMiddleware(nil, 1, 2)
	r := gin.New()
	r.GET("/limited", func(c *gin.Context) {
		c.Set(claimsKey, &usecases.Claims{AdminID: 5})
		c.Next()
	}, mw.RateLimitPerAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	codes := []int{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestSecurityHeadersAndCORS(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodOptions, "/api/bots", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestRequestSizeLimiter(t *testing.T) {
	ts := newTestServer(t)
	big := make([]byte, 2<<20)
	for i := range big {
		big[i] = 'a'
	}

	w := ts.do(http.MethodPost, "/webhook/telegram/7", "", big, telegramSecretHeader, "s3cret")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestLoggerRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) {
		logging.FromContext(c.Request.Context()).Info("inside")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, generated)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	inside := logs.FilterMessage("inside").All()
	require.Len(t, inside, 2)
	assert.Equal(t, generated, inside[0].ContextMap()[logging.RequestIDKey])
	assert.Equal(t, "abc-123", inside[1].ContextMap()[logging.RequestIDKey])
}
