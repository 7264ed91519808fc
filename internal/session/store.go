package session

import (
	"context"
	"errors"
	"time"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
)

var ErrPendingNotFound = errors.New("session: pending signup not found")

// Session represents an authenticated account session.
// It stores only the account pointer, never provider credentials.
type Session struct {
	SessionID string    `json:"session_id"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"` // absolute expiry time
}

// Store defines how sessions are stored and retrieved.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}

// PendingSignup remembers an identity that passed the role check but has no
// account yet, until the visitor picks a username.
type PendingSignup struct {
	ID        string         `json:"id"`
	Extra     auth.ExtraData `json:"extra"`
	Username  string         `json:"username"` // suggested, from the nickname
	Info      auth.Info      `json:"info"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// PendingStore holds pending signups. Take consumes the entry so a signup
// can be completed at most once.
type PendingStore interface {
	Put(ctx context.Context, p PendingSignup) error
	Take(ctx context.Context, id string) (*PendingSignup, error)
}
