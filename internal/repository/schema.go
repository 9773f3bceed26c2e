// internal/repository/schema.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations create the engine-owned tables. Subject tables (appointments,
// customers, booking_requests, services, staff) belong to the host application.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS automation_settings (
		workflow_type          TEXT PRIMARY KEY,
		enabled                BOOLEAN NOT NULL DEFAULT FALSE,
		timing_offset_minutes  INTEGER NOT NULL,
		business_hours_only    BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS automation_logs (
		id              UUID PRIMARY KEY,
		workflow_type   TEXT NOT NULL,
		subject_kind    TEXT NOT NULL,
		subject_id      TEXT NOT NULL,
		recipient       TEXT NOT NULL,
		status          TEXT NOT NULL CHECK (status IN ('sent', 'failed')),
		error           TEXT,
		trigger_source  TEXT NOT NULL DEFAULT 'scheduled',
		attempted_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// at most one sent record per (workflow type, subject), enforced at write time
	`CREATE UNIQUE INDEX IF NOT EXISTS automation_logs_sent_once
		ON automation_logs (workflow_type, subject_id) WHERE status = 'sent'`,
	`CREATE INDEX IF NOT EXISTS automation_logs_attempted_at
		ON automation_logs (attempted_at DESC)`,
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
