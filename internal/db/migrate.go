package db

import (
	"context"
	"fmt"
)

const schemaMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS accounts (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    username text NOT NULL,
    name text NOT NULL DEFAULT '',
    avatar_url text NOT NULL DEFAULT '',
    title text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS accounts_username_lower_unique
ON accounts (LOWER(username));

CREATE TABLE IF NOT EXISTS groups (
    id serial PRIMARY KEY,
    name text NOT NULL,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT groups_name_unique UNIQUE (name)
);

CREATE TABLE IF NOT EXISTS account_groups (
    account_id uuid NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    group_id integer NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    PRIMARY KEY (account_id, group_id)
);

CREATE TABLE IF NOT EXISTS associated_accounts (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    provider_name text NOT NULL,
    provider_uid text NOT NULL,
    account_id uuid REFERENCES accounts(id) ON DELETE SET NULL,
    info jsonb NOT NULL DEFAULT '{}',
    credentials jsonb NOT NULL DEFAULT '{}',
    last_used timestamptz,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT associated_accounts_provider_unique
        UNIQUE (provider_name, provider_uid)
);

CREATE INDEX IF NOT EXISTS associated_accounts_account_id_idx
ON associated_accounts (account_id);
`

// Migrate creates the account, group and association tables.
func Migrate(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, schemaMigration); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

// EnsureGroup defines the named group if it does not exist yet.
func EnsureGroup(ctx context.Context, db *DB, name string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO groups (name)
		VALUES ($1)
		ON CONFLICT (name) DO NOTHING
	`, name)
	if err != nil {
		return fmt.Errorf("db: ensure group %q: %w", name, err)
	}
	return nil
}
