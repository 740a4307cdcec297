package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema bootstraps all pipeline tables. The advisory lock serializes
// DDL across concurrently starting api/worker processes.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS report_files (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	channel TEXT NOT NULL,
	category TEXT,
	report_date DATE,
	range_start DATE,
	range_end DATE,
	row_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT,
	storage_path TEXT,
	payload JSONB,
	received_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_report_files_date_category
	ON report_files(report_date, category) WHERE status = 'completed';
CREATE INDEX IF NOT EXISTS idx_report_files_status ON report_files(status);
CREATE INDEX IF NOT EXISTS idx_report_files_report_date ON report_files(report_date);

CREATE TABLE IF NOT EXISTS daily_kpis (
	report_date DATE PRIMARY KEY,
	total_dials INTEGER NOT NULL,
	total_connects INTEGER NOT NULL,
	total_transfers INTEGER NOT NULL,
	connect_rate DOUBLE PRECISION NOT NULL,
	conversion_rate DOUBLE PRECISION NOT NULL,
	transfers_per_hour DOUBLE PRECISION NOT NULL,
	total_agents INTEGER NOT NULL,
	agents_with_transfers INTEGER NOT NULL,
	total_man_hours DOUBLE PRECISION NOT NULL,
	campaign_count INTEGER NOT NULL,
	system_connects INTEGER NOT NULL,
	delta_transfers INTEGER,
	delta_tph DOUBLE PRECISION,
	computed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS skill_summaries (
	report_date DATE NOT NULL,
	skill TEXT NOT NULL,
	total_transfers INTEGER NOT NULL,
	avg_tph DOUBLE PRECISION NOT NULL,
	agent_count INTEGER NOT NULL,
	total_man_hours DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (report_date, skill)
);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	rule TEXT NOT NULL,
	report_date DATE NOT NULL,
	severity TEXT NOT NULL,
	message TEXT NOT NULL,
	acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
	acknowledged_by TEXT,
	acknowledged_at TIMESTAMPTZ,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (rule, report_date)
);

CREATE INDEX IF NOT EXISTS idx_alerts_report_date ON alerts(report_date);
CREATE INDEX IF NOT EXISTS idx_alerts_acknowledged ON alerts(acknowledged);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
