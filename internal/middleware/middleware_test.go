package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posixpascal/discourse-piratenlogin/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newSessionStore(t *testing.T) *session.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewRedisStore(client)
}

func newRouter(auth *AuthMiddleware, mw func(*AuthMiddleware) gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/me", mw(auth), func(c *gin.Context) {
		id, ok := AccountIDFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"account_id": id, "ok": ok})
	})
	return r
}

func request(r http.Handler, sessionID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sessionID})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGinRequireAuth(t *testing.T) {
	store := newSessionStore(t)
	require.NoError(t, store.Create(context.Background(), session.Session{
		SessionID: "sid",
		AccountID: "acc-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	r := newRouter(NewAuthMiddleware(store), GinRequireAuth)

	w := request(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, "unknown")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, "sid")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"account_id":"acc-1"`)
}

func TestGinRequireAuth_ExpiredSessionIsDeleted(t *testing.T) {
	store := newSessionStore(t)
	require.NoError(t, store.Create(context.Background(), session.Session{
		SessionID: "sid",
		AccountID: "acc-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	auth := NewAuthMiddleware(store)
	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	r := newRouter(auth, GinRequireAuth)

	w := request(r, "sid")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	got, err := store.Get(context.Background(), "sid")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGinLoadSession(t *testing.T) {
	store := newSessionStore(t)
	require.NoError(t, store.Create(context.Background(), session.Session{
		SessionID: "sid",
		AccountID: "acc-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	r := newRouter(NewAuthMiddleware(store), GinLoadSession)

	w := request(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":false`)

	w = request(r, "sid")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"account_id":"acc-1"`)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(60, 2)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per IP")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("10.0.0.1"))
	}
}

func TestRateLimiter_Gin(t *testing.T) {
	l := NewRateLimiter(1, 1)
	r := gin.New()
	r.GET("/x", l.Gin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestRateLimiter_SweepsIdleClientsOncePerTTL(t *testing.T) {
	l := NewRateLimiter(60, 2)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")

	now = t0.Add(l.ttl)
	l.Allow("10.0.0.2")
	assert.Len(t, l.clients, 2)

	// 10.0.0.1 is idle, but the last sweep was too recent.
	now = t0.Add(l.ttl + l.ttl/2)
	l.Allow("10.0.0.3")
	assert.Len(t, l.clients, 3)

	now = t0.Add(2*l.ttl + time.Second)
	l.Allow("10.0.0.4")
	assert.Len(t, l.clients, 2)
	assert.Contains(t, l.clients, "10.0.0.3")
	assert.Contains(t, l.clients, "10.0.0.4")
}
