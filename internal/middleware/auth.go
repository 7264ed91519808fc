package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/posixpascal/discourse-piratenlogin/internal/session"
)

// unexported, collision-proof context key
type accountIDContextKeyType struct{}

var accountIDKey = accountIDContextKeyType{}

// AccountIDFromContext extracts the authenticated account ID from context.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDKey).(string)
	return id, ok && id != ""
}

// WithAccountID returns a context carrying the account ID.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

type AuthMiddleware struct {
	Store session.Store
	now   func() time.Time
}

func NewAuthMiddleware(store session.Store) *AuthMiddleware {
	return &AuthMiddleware{Store: store, now: time.Now}
}

// resolve returns the account ID of a live session, or "".
func (a *AuthMiddleware) resolve(r *http.Request) string {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	sess, err := a.Store.Get(r.Context(), cookie.Value)
	if err != nil || sess == nil {
		return ""
	}

	// Expiry is enforced here, not only by the store TTL.
	if a.now().After(sess.ExpiresAt) {
		_ = a.Store.Delete(r.Context(), cookie.Value)
		return ""
	}

	return sess.AccountID
}

// RequireAuth rejects requests without a live session.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := a.resolve(r)
		if accountID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
	})
}

// LoadSession attaches the account ID when a live session exists and
// otherwise lets the request through unchanged.
func (a *AuthMiddleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accountID := a.resolve(r); accountID != "" {
			r = r.WithContext(WithAccountID(r.Context(), accountID))
		}
		next.ServeHTTP(w, r)
	})
}
