package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// UpsertCompleted stores a successfully parsed file. The partial unique index
// on (report_date, category) for completed rows makes re-ingestion of the same
// key overwrite the earlier row; the authoritative row keeps its original id.
func (r *ReportRepository) UpsertCompleted(ctx context.Context, file *domain.ReportFile, parsed *domain.ParsedReport) error {
	payload, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("marshal parsed payload: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
INSERT INTO report_files (
	id, filename, channel, category, report_date, range_start, range_end,
	row_count, status, error_message, storage_path, payload, received_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULL,$10,$11,$12,$12)
ON CONFLICT (report_date, category) WHERE status = 'completed'
DO UPDATE SET
	filename = EXCLUDED.filename,
	channel = EXCLUDED.channel,
	range_start = EXCLUDED.range_start,
	range_end = EXCLUDED.range_end,
	row_count = EXCLUDED.row_count,
	error_message = NULL,
	storage_path = EXCLUDED.storage_path,
	payload = EXCLUDED.payload,
	received_at = EXCLUDED.received_at,
	updated_at = EXCLUDED.updated_at
RETURNING id
`,
		file.ID, file.Filename, string(file.Channel), file.Category,
		file.ReportDate, file.RangeStart, file.RangeEnd,
		file.RowCount, string(domain.StatusCompleted),
		file.StoragePath, payload, file.ReceivedAt,
	)

	if err := row.Scan(&file.ID); err != nil {
		return fmt.Errorf("upsert report file: %w", err)
	}
	file.Status = domain.StatusCompleted
	return nil
}

// RecordFailure keeps an audit row for a file that could not be ingested.
// Category and report date may be unknown depending on how far parsing got.
func (r *ReportRepository) RecordFailure(ctx context.Context, file *domain.ReportFile) error {
	var category, storagePath any
	if file.Category != "" {
		category = file.Category
	}
	if file.StoragePath != "" {
		storagePath = file.StoragePath
	}
	var reportDate any
	if !file.ReportDate.IsZero() {
		reportDate = file.ReportDate
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO report_files (
	id, filename, channel, category, report_date, range_start, range_end,
	row_count, status, error_message, storage_path, payload, received_at, updated_at
) VALUES ($1,$2,$3,$4,$5,NULL,NULL,0,$6,$7,$8,NULL,$9,$9)
`,
		file.ID, file.Filename, string(file.Channel), category, reportDate,
		string(domain.StatusFailed), file.Error, storagePath, file.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("record failed report file: %w", err)
	}
	file.Status = domain.StatusFailed
	return nil
}

// GetByID looks a single file up by its ingest id, completed or failed.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*domain.ReportFile, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, channel, category, report_date, range_start, range_end,
	row_count, status, error_message, storage_path, received_at, updated_at
FROM report_files
WHERE id = $1
`, id)

	var file domain.ReportFile
	var channel, status string
	var category, errorMessage, storagePath sql.NullString
	var reportDate, rangeStart, rangeEnd sql.NullTime
	err := row.Scan(
		&file.ID, &file.Filename, &channel, &category,
		&reportDate, &rangeStart, &rangeEnd,
		&file.RowCount, &status, &errorMessage, &storagePath,
		&file.ReceivedAt, &file.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrReportNotFound, "get report file", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get report file: %w", err)
	}
	file.Channel = domain.SourceChannel(channel)
	file.Status = domain.IngestStatus(status)
	file.Category = category.String
	file.Error = errorMessage.String
	file.StoragePath = storagePath.String
	file.ReportDate = reportDate.Time
	file.RangeStart = rangeStart.Time
	file.RangeEnd = rangeEnd.Time
	return &file, nil
}

func (r *ReportRepository) CompletedCategories(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT category
FROM report_files
WHERE report_date = $1 AND status = $2
ORDER BY category
`, date, string(domain.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("list completed categories: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

func (r *ReportRepository) ListCompletedByDate(ctx context.Context, date time.Time) ([]domain.ReportFile, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, filename, channel, category, report_date, range_start, range_end, row_count, storage_path, received_at, updated_at
FROM report_files
WHERE report_date = $1 AND status = $2
ORDER BY category
`, date, string(domain.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("list completed reports: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ReportFile, 0)
	for rows.Next() {
		var file domain.ReportFile
		var channel string
		var storagePath sql.NullString
		err := rows.Scan(
			&file.ID, &file.Filename, &channel, &file.Category,
			&file.ReportDate, &file.RangeStart, &file.RangeEnd,
			&file.RowCount, &storagePath, &file.ReceivedAt, &file.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan report file: %w", err)
		}
		file.Channel = domain.SourceChannel(channel)
		file.StoragePath = storagePath.String
		file.Status = domain.StatusCompleted
		out = append(out, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report files: %w", err)
	}
	return out, nil
}

func (r *ReportRepository) LoadParsedByDate(ctx context.Context, date time.Time) ([]domain.ParsedReport, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT payload
FROM report_files
WHERE report_date = $1 AND status = $2
ORDER BY category
`, date, string(domain.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("load parsed reports: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ParsedReport, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan parsed payload: %w", err)
		}
		var parsed domain.ParsedReport
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("unmarshal parsed payload: %w", err)
		}
		out = append(out, parsed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parsed payloads: %w", err)
	}
	return out, nil
}
