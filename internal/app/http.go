package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth/enrich"
	"github.com/posixpascal/discourse-piratenlogin/internal/auth/handler"
	"github.com/posixpascal/discourse-piratenlogin/internal/auth/provider"
	"github.com/posixpascal/discourse-piratenlogin/internal/auth/provider/oidc"
	"github.com/posixpascal/discourse-piratenlogin/internal/auth/resolver"
	"github.com/posixpascal/discourse-piratenlogin/internal/config"
	"github.com/posixpascal/discourse-piratenlogin/internal/metrics"
	"github.com/posixpascal/discourse-piratenlogin/internal/middleware"
	"github.com/posixpascal/discourse-piratenlogin/internal/session"
	"github.com/posixpascal/discourse-piratenlogin/internal/store"
)

// lockTTL bounds how long a crashed instance can block one identity.
const lockTTL = 30 * time.Second

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var providers []provider.OAuthProvider
	if cfg.Piratenlogin.Enabled {
		p, err := oidc.New(ctx, oidc.Config{
			Name:         oidc.DefaultName,
			Issuer:       cfg.Piratenlogin.Issuer,
			ClientID:     cfg.Piratenlogin.ClientID,
			ClientSecret: cfg.Piratenlogin.ClientSecret,
			RedirectURL:  cfg.Piratenlogin.RedirectURL,
			Scopes:       cfg.Piratenlogin.Scopes(),
			TokenScope:   cfg.Piratenlogin.TokenScope,
			Passthrough:  cfg.Piratenlogin.Passthrough(),
			Verbose:      cfg.Piratenlogin.VerboseLogging,
		})
		if err != nil {
			_ = infra.Close()
			return nil, nil, err
		}
		providers = append(providers, p)
	}

	router, err := newRouter(cfg, infra, prometheus.DefaultRegisterer, providers...)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return router, infra.Close, nil
}

// newRouter wires stores, the reconciler and the handlers on top of infra.
func newRouter(
	cfg config.Config,
	infra *Infra,
	reg prometheus.Registerer,
	providers ...provider.OAuthProvider,
) (*gin.Engine, error) {

	if err := metrics.Register(reg); err != nil {
		return nil, err
	}

	accounts := store.NewPostgresAccounts(infra.DB)
	associations := store.NewPostgresAssociations(infra.DB)

	reconciler, err := resolver.NewReconciler(
		associations,
		accounts,
		cfg.Policy(),
		resolver.WithEnricher(enrich.NewAccountProfile(accounts)),
		resolver.WithLocker(store.NewRedisLocker(infra.Redis.Client, lockTTL)),
		resolver.WithConnectExisting(cfg.Piratenlogin.ConnectExisting),
	)
	if err != nil {
		return nil, err
	}

	sessions := session.NewRedisStore(infra.Redis.Client)

	authHandler := handler.NewHandler(
		provider.NewRegistry(providers...),
		sessions,
		session.NewRedisPendingStore(infra.Redis.Client),
		reconciler,
		accounts,
		handler.Config{
			Enabled:        cfg.Piratenlogin.Enabled,
			ErrorRedirects: handler.ParseErrorRedirects(cfg.Piratenlogin.ErrorRedirects),
			SessionTTL:     cfg.SessionTTL,
		},
	)

	router := gin.New()
	router.Use(gin.Recovery())

	authHandler.RegisterRoutes(
		router,
		middleware.NewAuthMiddleware(sessions),
		middleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, nil
}
