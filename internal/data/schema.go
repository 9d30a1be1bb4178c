package data

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements holds the idempotent DDL for the engine's tables.
// Applied in order at startup; each statement is safe to re-run.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS job_definitions (
		id                                TEXT PRIMARY KEY,
		timeout_seconds                   BIGINT NOT NULL,
		supersede_on_enqueue              BOOLEAN NOT NULL DEFAULT FALSE,
		pre_completion_job_definition_ids JSONB,
		queue_name                        TEXT NOT NULL DEFAULT '',
		topic_name                        TEXT NOT NULL DEFAULT '',
		session_property_name             TEXT NOT NULL DEFAULT '',
		required_body_paths               JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id                        TEXT PRIMARY KEY,
		job_definition_id         TEXT NOT NULL,
		owner_id                  TEXT NOT NULL,
		parent_job_id             TEXT,
		correlation_id            TEXT NOT NULL DEFAULT '',
		invoker_user_id           TEXT NOT NULL DEFAULT '',
		invoker_user_display_name TEXT NOT NULL DEFAULT '',
		message_body              BYTEA,
		properties                JSONB,
		item_count                INTEGER,
		trigger_message           TEXT NOT NULL DEFAULT '',
		trigger_entity_id         TEXT NOT NULL DEFAULT '',
		trigger_entity_type       TEXT NOT NULL DEFAULT '',
		running_status            TEXT NOT NULL,
		completion_status         TEXT,
		outcome                   TEXT,
		superseded_by_job_id      TEXT,
		deleted                   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at                TIMESTAMPTZ NOT NULL,
		completed_at              TIMESTAMPTZ,
		CONSTRAINT jobs_completion_iff_completed CHECK (
			(running_status = 'completed') = (completion_status IS NOT NULL)
		)
	)`,
	`CREATE INDEX IF NOT EXISTS jobs_parent_idx ON jobs (parent_job_id)
		WHERE parent_job_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS jobs_owner_definition_running_idx
		ON jobs (owner_id, job_definition_id)
		WHERE running_status <> 'completed'`,
	`CREATE INDEX IF NOT EXISTS jobs_non_completed_idx ON jobs (created_at)
		WHERE running_status <> 'completed'`,
	`CREATE TABLE IF NOT EXISTS job_logs (
		id                     TEXT PRIMARY KEY,
		job_id                 TEXT NOT NULL REFERENCES jobs (id) ON DELETE CASCADE,
		items_processed        INTEGER,
		items_succeeded        INTEGER,
		items_failed           INTEGER,
		outcome                TEXT,
		completed_successfully BOOLEAN,
		timestamp              TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS job_logs_job_idx ON job_logs (job_id, timestamp)`,
}

// Migrate applies the engine schema to the given database.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
