package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const defaultAlertLimit = 50

// Create inserts one alert. The (rule, report_date) unique constraint makes a
// recomputed day skip alerts it already raised, preserving any acknowledgement
// state on the existing row.
func (r *AlertRepository) Create(ctx context.Context, alert *domain.Alert) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
INSERT INTO alerts (id, rule, report_date, severity, message, acknowledged, acknowledged_by, acknowledged_at, notes, created_at)
VALUES ($1,$2,$3,$4,$5,FALSE,NULL,NULL,'',$6)
ON CONFLICT (rule, report_date) DO NOTHING
`, alert.ID, alert.Rule, alert.ReportDate, string(alert.Severity), alert.Message, alert.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert alert rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *AlertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAlertLimit
	}

	query := `
SELECT id, rule, report_date, severity, message, acknowledged, acknowledged_by, acknowledged_at, notes, created_at
FROM alerts
WHERE 1=1
`
	args := make([]any, 0, 3)
	if !filter.ReportDate.IsZero() {
		args = append(args, filter.ReportDate)
		query += fmt.Sprintf("AND report_date = $%d\n", len(args))
	}
	if filter.UnacknowledgedOnly {
		query += "AND acknowledged = FALSE\n"
	}
	args = append(args, limit)
	query += fmt.Sprintf("ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func (r *AlertRepository) Acknowledge(ctx context.Context, alertID, acknowledgedBy, notes string) (*domain.Alert, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE alerts
SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3, notes = $4
WHERE id = $1
RETURNING id, rule, report_date, severity, message, acknowledged, acknowledged_by, acknowledged_at, notes, created_at
`, alertID, acknowledgedBy, time.Now().UTC(), notes)

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAlertNotFound, "acknowledge alert",
				fmt.Errorf("id=%s", alertID))
		}
		return nil, fmt.Errorf("acknowledge alert: %w", err)
	}
	return &alert, nil
}

type alertScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row alertScanner) (domain.Alert, error) {
	var alert domain.Alert
	var severity string
	var acknowledgedBy, notes sql.NullString
	var acknowledgedAt sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.Rule, &alert.ReportDate, &severity, &alert.Message,
		&alert.Acknowledged, &acknowledgedBy, &acknowledgedAt, &notes, &alert.CreatedAt,
	)
	if err != nil {
		return domain.Alert{}, err
	}

	alert.ReportDate = domain.Day(alert.ReportDate)
	alert.Severity = domain.Severity(severity)
	alert.AcknowledgedBy = acknowledgedBy.String
	alert.Notes = notes.String
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		alert.AcknowledgedAt = &t
	}
	return alert, nil
}
