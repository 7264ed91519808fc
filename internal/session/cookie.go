package session

import (
	"net/http"
	"time"
)

const (
	CookieName        = "__Host-session"
	PendingCookieName = "__Host-signup"
)

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	Domain   string // should usually be empty for __Host- cookies
}

// normalize applies safe defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/" // required for __Host-
	}
	if !o.HttpOnly {
		o.HttpOnly = true
	}
	return o
}

// SetCookie issues the session cookie to the client.
func SetCookie(w http.ResponseWriter, sessionID string, expiresAt time.Time, opts CookieOptions) {
	setCookie(w, CookieName, sessionID, expiresAt, opts)
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	clearCookie(w, CookieName, opts)
}

// SetPendingCookie issues the pending signup cookie.
func SetPendingCookie(w http.ResponseWriter, pendingID string, expiresAt time.Time, opts CookieOptions) {
	setCookie(w, PendingCookieName, pendingID, expiresAt, opts)
}

// ClearPendingCookie removes the pending signup cookie.
func ClearPendingCookie(w http.ResponseWriter, opts CookieOptions) {
	clearCookie(w, PendingCookieName, opts)
}

func setCookie(w http.ResponseWriter, name, value string, expiresAt time.Time, opts CookieOptions) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Expires:  expiresAt,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

func clearCookie(w http.ResponseWriter, name string, opts CookieOptions) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
