package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Lifecycle(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client)
	ctx := context.Background()

	sess := Session{
		SessionID: "sid",
		AccountID: "acc-1",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.Create(ctx, sess))
	assert.True(t, mr.Exists("session:sid"))

	got, err := s.Get(ctx, "sid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acc-1", got.AccountID)

	sess.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, s.Update(ctx, sess))
	assert.False(t, mr.Exists("session:sid"))

	got, err = s.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_CreateValidation(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisStore(client)
	ctx := context.Background()

	assert.Error(t, s.Create(ctx, Session{SessionID: "sid", ExpiresAt: time.Now().Add(time.Hour)}))
	assert.Error(t, s.Create(ctx, Session{SessionID: "sid", AccountID: "a", ExpiresAt: time.Now()}))
}

func TestRedisStore_TTL(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client)

	require.NoError(t, s.Create(context.Background(), Session{
		SessionID: "sid",
		AccountID: "acc-1",
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("session:sid"))
}

func TestRedisPendingStore_TakeOnce(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisPendingStore(client)
	ctx := context.Background()

	p := PendingSignup{
		ID:        "pending-1",
		Extra:     auth.ExtraData{Provider: "piratenlogin", Subject: "u1"},
		Username:  "pirat",
		Info:      auth.Info{Nickname: "pirat", Email: "pirat@example.org"},
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, s.Put(ctx, p))

	got, err := s.Take(ctx, "pending-1")
	require.NoError(t, err)
	assert.Equal(t, p.Extra, got.Extra)
	assert.Equal(t, "pirat@example.org", got.Info.Email)

	_, err = s.Take(ctx, "pending-1")
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestRedisPendingStore_PutValidation(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisPendingStore(client)
	ctx := context.Background()

	err := s.Put(ctx, PendingSignup{ID: "p", ExpiresAt: time.Now().Add(time.Minute)})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	err = s.Put(ctx, PendingSignup{
		Extra:     auth.ExtraData{Provider: "p", Subject: "s"},
		ExpiresAt: time.Now().Add(time.Minute),
	})
	assert.Error(t, err)
}

func TestCookies(t *testing.T) {
	w := httptest.NewRecorder()
	expires := time.Now().Add(time.Hour)

	SetCookie(w, "sid", expires, CookieOptions{Secure: true, SameSite: http.SameSiteLaxMode})
	SetPendingCookie(w, "pid", expires, CookieOptions{Secure: true})
	ClearCookie(w, CookieOptions{Secure: true})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 3)

	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, "sid", cookies[0].Value)
	assert.Equal(t, "/", cookies[0].Path)
	assert.True(t, cookies[0].HttpOnly)

	assert.Equal(t, PendingCookieName, cookies[1].Name)
	assert.Equal(t, "pid", cookies[1].Value)

	assert.Equal(t, CookieName, cookies[2].Name)
	assert.Equal(t, -1, cookies[2].MaxAge)
}

func TestGenerateID(t *testing.T) {
	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}
