package accounts

import (
	"context"

	"github.com/uptrace/bun"
)

const sqliteCreateUsers = `CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    user_role TEXT NOT NULL DEFAULT 'guest',
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    phone_number TEXT,
    password_hash TEXT,
    status TEXT NOT NULL DEFAULT 'unverified',
    email_verification_token TEXT,
    password_reset_token TEXT,
    suspended_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP NULL
);`

const sqliteCreateSessions = `CREATE TABLE IF NOT EXISTS user_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_token TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`

const sqliteCreateDevices = `CREATE TABLE IF NOT EXISTS user_devices (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    push_token TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`

// EnsureSchema creates the three tables if they do not exist. Good enough
// for sqlite deployments and tests; a managed database would use proper
// migrations instead.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return err
	}

	for _, ddl := range []string{sqliteCreateUsers, sqliteCreateSessions, sqliteCreateDevices} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}

	return nil
}
