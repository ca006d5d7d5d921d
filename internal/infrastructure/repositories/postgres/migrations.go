package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	SQL     string
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const selectSchemaVersion = `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`

const insertSchemaVersion = `INSERT INTO schema_migrations (version) VALUES ($1)`

var migrations = []Migration{
	{
		Version: 1,
		SQL: `
CREATE TABLE IF NOT EXISTS group_members (
	group_id  BIGINT NOT NULL,
	user_id   BIGINT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (group_id, user_id)
);
CREATE TABLE IF NOT EXISTS friendships (
	user_id    BIGINT NOT NULL,
	friend_id  BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, friend_id)
);
CREATE TABLE IF NOT EXISTS group_messages (
	id          BIGSERIAL PRIMARY KEY,
	group_id    BIGINT NOT NULL,
	sender_id   BIGINT,
	sender_name TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS group_messages_group_idx ON group_messages (group_id, id);
CREATE TABLE IF NOT EXISTS direct_messages (
	id              BIGSERIAL PRIMARY KEY,
	conversation_id BIGINT NOT NULL,
	sender_id       BIGINT,
	sender_name     TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS direct_messages_conversation_idx ON direct_messages (conversation_id, id);`,
	},
}

// Migrate applies every migration newer than the recorded version, each in
// its own transaction.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.SugaredLogger) error {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, selectSchemaVersion).Scan(&current); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", m.Version)
		}
		err := WithTransaction(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, insertSchemaVersion, m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		current = m.Version
	}

	if logger != nil {
		logger.Infow("schema is up to date", "version", current)
	}
	return nil
}
