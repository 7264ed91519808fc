package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
	"github.com/posixpascal/discourse-piratenlogin/internal/db"
)

// PostgresAssociations stores associations in the associated_accounts table.
// The (provider_name, provider_uid) unique constraint makes Save an upsert.
type PostgresAssociations struct {
	db *db.DB
}

func NewPostgresAssociations(db *db.DB) *PostgresAssociations {
	return &PostgresAssociations{db: db}
}

func (s *PostgresAssociations) FindOrCreate(
	ctx context.Context,
	provider string,
	subject string,
) (*auth.Association, error) {

	var (
		accountID   sql.NullString
		info        []byte
		credentials []byte
		lastUsed    sql.NullTime
	)

	a := &auth.Association{Provider: provider, Subject: subject}

	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, info, credentials, last_used, created_at, updated_at
		FROM associated_accounts
		WHERE provider_name = $1
		  AND provider_uid = $2
	`,
		provider,
		subject,
	).Scan(&accountID, &info, &credentials, &lastUsed, &a.CreatedAt, &a.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find association: %w", err)
	}

	a.AccountID = accountID.String
	a.LastUsed = lastUsed.Time

	if len(info) > 0 {
		if err := json.Unmarshal(info, &a.Info); err != nil {
			return nil, fmt.Errorf("store: decode association info: %w", err)
		}
	}
	if len(credentials) > 0 {
		if err := json.Unmarshal(credentials, &a.Credentials); err != nil {
			return nil, fmt.Errorf("store: decode association credentials: %w", err)
		}
	}

	return a, nil
}

func (s *PostgresAssociations) Save(ctx context.Context, a *auth.Association) error {
	info, err := json.Marshal(a.Info)
	if err != nil {
		return fmt.Errorf("%w: encode info: %w", ErrPersistence, err)
	}
	credentials, err := json.Marshal(a.Credentials)
	if err != nil {
		return fmt.Errorf("%w: encode credentials: %w", ErrPersistence, err)
	}

	accountID := sql.NullString{String: a.AccountID, Valid: a.AccountID != ""}
	lastUsed := sql.NullTime{Time: a.LastUsed, Valid: !a.LastUsed.IsZero()}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO associated_accounts
			(provider_name, provider_uid, account_id, info, credentials, last_used)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_name, provider_uid) DO UPDATE
		SET account_id  = EXCLUDED.account_id,
		    info        = EXCLUDED.info,
		    credentials = EXCLUDED.credentials,
		    last_used   = EXCLUDED.last_used,
		    updated_at  = NOW()
		RETURNING created_at, updated_at
	`,
		a.Provider,
		a.Subject,
		accountID,
		info,
		credentials,
		lastUsed,
	).Scan(&a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		return fmt.Errorf("%w: save association: %w", ErrPersistence, err)
	}
	return nil
}

// PostgresAccounts stores accounts and group memberships.
type PostgresAccounts struct {
	db *db.DB
}

func NewPostgresAccounts(db *db.DB) *PostgresAccounts {
	return &PostgresAccounts{db: db}
}

func (s *PostgresAccounts) Get(ctx context.Context, id string) (*auth.Account, error) {
	a := &auth.Account{}

	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, avatar_url, title, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Username, &a.Name, &a.AvatarURL, &a.Title, &a.CreatedAt, &a.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get account: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.name
		FROM account_groups ag
		JOIN groups g ON g.id = ag.group_id
		WHERE ag.account_id = $1
		ORDER BY g.name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("store: get account groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("store: scan account group: %w", err)
		}
		a.Groups = append(a.Groups, name)
	}

	return a, rows.Err()
}

func (s *PostgresAccounts) Create(ctx context.Context, a *auth.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO accounts (id, username, name, avatar_url, title)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, a.ID, a.Username, a.Name, a.AvatarURL, a.Title).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: create account: %w", ErrPersistence, err)
	}

	if err := syncGroups(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return nil
}

func (s *PostgresAccounts) Save(ctx context.Context, a *auth.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET username = $2, name = $3, avatar_url = $4, title = $5, updated_at = NOW()
		WHERE id = $1
	`, a.ID, a.Username, a.Name, a.AvatarURL, a.Title)
	if err != nil {
		return fmt.Errorf("%w: update account: %w", ErrPersistence, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: account %s: %w", ErrPersistence, a.ID, ErrNotFound)
	}

	if err := syncGroups(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return nil
}

// syncGroups makes account_groups mirror a.Groups. An undefined group name
// fails the whole transaction.
func syncGroups(ctx context.Context, tx *sql.Tx, a *auth.Account) error {
	groups := pq.Array(a.Groups)

	if names := distinct(a.Groups); len(names) > 0 {
		var defined int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM groups WHERE name = ANY($1)
		`, pq.Array(names)).Scan(&defined)
		if err != nil {
			return fmt.Errorf("%w: check groups: %w", ErrPersistence, err)
		}
		if defined != len(names) {
			return fmt.Errorf("%w: account %s names an undefined group", ErrPersistence, a.ID)
		}
	}

	_, err := tx.ExecContext(ctx, `
		DELETE FROM account_groups
		WHERE account_id = $1
		  AND group_id NOT IN (SELECT id FROM groups WHERE name = ANY($2))
	`, a.ID, groups)
	if err != nil {
		return fmt.Errorf("%w: remove account groups: %w", ErrPersistence, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO account_groups (account_id, group_id)
		SELECT $1, id FROM groups WHERE name = ANY($2)
		ON CONFLICT DO NOTHING
	`, a.ID, groups)
	if err != nil {
		return fmt.Errorf("%w: add account groups: %w", ErrPersistence, err)
	}

	return nil
}

func distinct(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Delete removes the account. Memberships go with it and associations are
// unlinked by the foreign keys.
func (s *PostgresAccounts) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete account: %w", ErrPersistence, err)
	}
	return nil
}

func (s *PostgresAccounts) GroupExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM groups WHERE name = $1
		)
	`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: group exists: %w", err)
	}
	return exists, nil
}
