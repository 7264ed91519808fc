package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posixpascal/discourse-piratenlogin/internal/config"
	"github.com/posixpascal/discourse-piratenlogin/internal/db"
	"github.com/posixpascal/discourse-piratenlogin/internal/redis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestInfra(t *testing.T) *Infra {
	t.Helper()

	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &Infra{
		DB:    &db.DB{DB: sqlDB},
		Redis: &redis.Client{Client: client},
	}
}

func TestNewRouter(t *testing.T) {
	cfg := config.Default()
	cfg.Piratenlogin.Enabled = false

	router, err := newRouter(cfg, newTestInfra(t), prometheus.NewRegistry())
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/oauth/login/piratenlogin", http.StatusNotFound},
		{http.MethodPost, "/auth/signup", http.StatusNotFound},
		{http.MethodGet, "/api/me", http.StatusUnauthorized},
		{http.MethodPost, "/auth/logout", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestNewRouter_InvalidPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Piratenlogin.Group = ""

	_, err := newRouter(cfg, newTestInfra(t), prometheus.NewRegistry())
	assert.Error(t, err)
}
