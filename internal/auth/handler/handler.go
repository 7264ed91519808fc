package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
	"github.com/posixpascal/discourse-piratenlogin/internal/auth/provider"
	"github.com/posixpascal/discourse-piratenlogin/internal/auth/resolver"
	"github.com/posixpascal/discourse-piratenlogin/internal/i18n"
	"github.com/posixpascal/discourse-piratenlogin/internal/logger"
	"github.com/posixpascal/discourse-piratenlogin/internal/middleware"
	"github.com/posixpascal/discourse-piratenlogin/internal/session"
	"github.com/posixpascal/discourse-piratenlogin/internal/store"
)

// Config controls the login endpoints.
type Config struct {
	Enabled        bool
	ErrorRedirects []ErrorRedirect
	SessionTTL     time.Duration
	PendingTTL     time.Duration
}

type Handler struct {
	providers *provider.Registry
	sessions  session.Store
	pending   session.PendingStore
	resolver  resolver.Resolver
	accounts  store.Accounts
	cfg       Config
}

func NewHandler(
	registry *provider.Registry,
	sessions session.Store,
	pending session.PendingStore,
	resolver resolver.Resolver,
	accounts store.Accounts,
	cfg Config,
) *Handler {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 10 * time.Minute
	}
	return &Handler{
		providers: registry,
		sessions:  sessions,
		pending:   pending,
		resolver:  resolver,
		accounts:  accounts,
		cfg:       cfg,
	}
}

// RegisterRoutes mounts the login flow. limiter may be nil.
func (h *Handler) RegisterRoutes(r *gin.Engine, authMW *middleware.AuthMiddleware, limiter *middleware.RateLimiter) {
	flow := r.Group("/")
	if limiter != nil {
		flow.Use(limiter.Gin())
	}

	flow.GET("/oauth/login/:provider", h.requireEnabled, h.login)
	flow.GET("/oauth/callback/:provider", h.requireEnabled, middleware.GinLoadSession(authMW), h.callback)
	flow.POST("/auth/signup", h.requireEnabled, h.signup)
	r.POST("/auth/logout", h.Logout)
	r.GET("/api/me", middleware.GinRequireAuth(authMW), h.Me)

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

func (h *Handler) requireEnabled(c *gin.Context) {
	if !h.cfg.Enabled {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":   i18n.KeyDisabled,
			"message": translate(c, i18n.KeyDisabled),
		})
		return
	}
	c.Next()
}

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	state, err := generateState(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}
	_, codeChallenge, err := generatePKCE(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}

	params := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	authURL := p.AuthCodeURL(state, codeChallenge, provider.AuthOptions{
		Params:  params,
		Locales: c.GetHeader("Accept-Language"),
	})
	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")
	ctx := c.Request.Context()

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}
	codeVerifier := getPKCEVerifier(c)
	clearFlowCookies(c)

	// CASE 1: the provider reported an error
	if errParam := c.Query("error"); errParam != "" {
		errDesc := c.Query("error_description")
		target := errorRedirect(h.cfg.ErrorRedirects, errParam+": "+errDesc)

		logger.Warn("oidc callback returned error", map[string]any{
			"provider": providerName,
			"error":    errParam,
			"desc":     errDesc,
			"redirect": target,
		})

		c.Redirect(http.StatusFound, target)
		return
	}

	// CASE 2: normal callback
	code := c.Query("code")
	if code == "" {
		logger.Error("oidc callback missing code and error", nil)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing pkce verifier",
		})
		return
	}

	token, err := p.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   i18n.KeyProviderError,
			"message": translate(c, i18n.KeyProviderError),
		})
		return
	}

	existing, err := h.signedInAccount(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}

	outcome, err := h.resolver.Reconcile(ctx, token, existing)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrInvalidToken) {
			status = http.StatusBadRequest
		}
		logger.Error("reconcile failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		c.JSON(status, gin.H{"error": "failed to resolve account"})
		return
	}

	if outcome.Failed {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   outcome.FailedReason,
			"message": translate(c, outcome.FailedReason),
		})
		return
	}

	if outcome.Account != nil {
		if err := h.startSession(c, outcome.Account.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}

		logger.Info("login succeeded", map[string]any{
			"provider":   providerName,
			"account_id": outcome.Account.ID,
			"ip":         c.ClientIP(),
		})

		c.JSON(http.StatusOK, gin.H{
			"status":     "authenticated",
			"account_id": outcome.Account.ID,
		})
		return
	}

	// CASE 3: allowed, but no account yet
	pendingID, err := session.GenerateID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start signup"})
		return
	}
	expiresAt := time.Now().Add(h.cfg.PendingTTL)

	err = h.pending.Put(ctx, session.PendingSignup{
		ID:        pendingID,
		Extra:     outcome.Extra,
		Username:  outcome.Username,
		Info:      token.Info,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start signup"})
		return
	}

	session.SetPendingCookie(c.Writer, pendingID, expiresAt, cookieOptions())

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "signup_required",
		"username": outcome.Username,
		"message":  translate(c, i18n.KeySignupRequired),
	})
}

type signupRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

func (h *Handler) signup(c *gin.Context) {
	ctx := c.Request.Context()

	var req signupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	cookie, err := c.Request.Cookie(session.PendingCookieName)
	if err != nil || cookie.Value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending signup"})
		return
	}

	pending, err := h.pending.Take(ctx, cookie.Value)
	if errors.Is(err, session.ErrPendingNotFound) {
		session.ClearPendingCookie(c.Writer, cookieOptions())
		c.JSON(http.StatusGone, gin.H{"error": "pending signup expired"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load signup"})
		return
	}

	username := req.Username
	if username == "" {
		username = pending.Username
	}
	if username == "" {
		_ = h.pending.Put(ctx, *pending)
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}

	name := req.Name
	if name == "" {
		name = pending.Info.Name
	}

	account := &auth.Account{Username: username, Name: name}
	if err := h.accounts.Create(ctx, account); err != nil {
		// Give the visitor another try with a different username.
		_ = h.pending.Put(ctx, *pending)
		logger.Warn("account creation failed", map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		c.JSON(http.StatusConflict, gin.H{"error": "account could not be created"})
		return
	}

	if err := h.resolver.AfterCreateAccount(ctx, account, pending.Extra); err != nil {
		logger.Error("account creation hook failed", map[string]any{
			"account_id": account.ID,
			"error":      err.Error(),
		})
		// The account is unreachable without its association; drop it and
		// keep the signup open for a retry.
		if derr := h.accounts.Delete(ctx, account.ID); derr != nil {
			logger.Error("failed to remove unlinked account", map[string]any{
				"account_id": account.ID,
				"error":      derr.Error(),
			})
		}
		_ = h.pending.Put(ctx, *pending)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to link account"})
		return
	}

	session.ClearPendingCookie(c.Writer, cookieOptions())

	if err := h.startSession(c, account.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":     "registered",
		"account_id": account.ID,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	cookie, err := c.Request.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		// Best-effort; the cookie is cleared regardless.
		_ = h.sessions.Delete(c.Request.Context(), cookie.Value)
		logger.Info("logout", map[string]any{
			"ip": c.ClientIP(),
		})
	}

	session.ClearCookie(c.Writer, cookieOptions())

	c.Status(http.StatusNoContent)
}

// Me returns the signed-in account.
func (h *Handler) Me(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	a, err := h.accounts.Get(c.Request.Context(), accountID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         a.ID,
		"username":   a.Username,
		"name":       a.Name,
		"title":      a.Title,
		"avatar_url": a.AvatarURL,
		"groups":     a.Groups,
	})
}

// signedInAccount loads the account of the current session, if any.
func (h *Handler) signedInAccount(c *gin.Context) (*auth.Account, error) {
	accountID, ok := middleware.AccountIDFromContext(c.Request.Context())
	if !ok {
		return nil, nil
	}

	a, err := h.accounts.Get(c.Request.Context(), accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (h *Handler) startSession(c *gin.Context, accountID string) error {
	sessionID, err := session.GenerateID()
	if err != nil {
		return err
	}

	now := time.Now()
	expiresAt := now.Add(h.cfg.SessionTTL)

	err = h.sessions.Create(c.Request.Context(), session.Session{
		SessionID: sessionID,
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}

	session.SetCookie(c.Writer, sessionID, expiresAt, cookieOptions())
	return nil
}

func cookieOptions() session.CookieOptions {
	return session.CookieOptions{
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func translate(c *gin.Context, key string) string {
	return i18n.Translate(c.GetHeader("Accept-Language"), key)
}
