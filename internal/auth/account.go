package auth

import "time"

// Account is a local user. Provisioning happens elsewhere; login only
// touches group membership, title and the enrichment fields.
type Account struct {
	ID        string
	Username  string
	Name      string
	AvatarURL string
	Title     string // empty means no title
	Groups    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InGroup reports whether the account is a member of the named group.
func (a *Account) InGroup(name string) bool {
	for _, g := range a.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// AddGroup adds the group and reports whether membership changed.
func (a *Account) AddGroup(name string) bool {
	if a.InGroup(name) {
		return false
	}
	a.Groups = append(a.Groups, name)
	return true
}

// RemoveGroup removes the group and reports whether membership changed.
// The slice is rebuilt so earlier copies of Groups stay intact.
func (a *Account) RemoveGroup(name string) bool {
	if !a.InGroup(name) {
		return false
	}
	out := make([]string, 0, len(a.Groups))
	removed := false
	for _, g := range a.Groups {
		if g == name {
			removed = true
			continue
		}
		out = append(out, g)
	}
	a.Groups = out
	return removed
}

// Clone returns a deep copy, so stores never share slices with callers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Groups = append([]string(nil), a.Groups...)
	return &c
}

// Association links an external identity to an optional local account.
// (Provider, Subject) is unique.
type Association struct {
	Provider    string
	Subject     string
	AccountID   string // empty while unlinked
	Info        Info
	Credentials Credentials
	LastUsed    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Linked reports whether the association has an owning account.
func (a *Association) Linked() bool {
	return a.AccountID != ""
}

// Key returns the natural key used for locking and caching.
func (a *Association) Key() string {
	return AssociationKey(a.Provider, a.Subject)
}

// AssociationKey formats the natural key of an association.
func AssociationKey(provider, subject string) string {
	return provider + ":" + subject
}

// ExtraData is carried on an outcome so that a later account creation can
// find the association again.
type ExtraData struct {
	Provider string `json:"provider"`
	Subject  string `json:"uid"`
}

// Validate rejects extra data that cannot identify an association.
func (e ExtraData) Validate() error {
	if e.Provider == "" {
		return &ValidationError{Field: "provider"}
	}
	if e.Subject == "" {
		return &ValidationError{Field: "subject"}
	}
	return nil
}

// Outcome is the result of one login attempt.
type Outcome struct {
	Failed       bool
	FailedReason string // message key, localized by the caller
	Username     string
	Account      *Account // nil on failure or until an account is created
	Extra        ExtraData
}

// ReasonNotAllowed is returned for new identities lacking the required role.
const ReasonNotAllowed = "piratenlogin.not_allowed"
