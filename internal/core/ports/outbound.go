package ports

import (
	"context"
	"io"
	"time"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

// ReportParser decodes one binary report file into its typed form.
type ReportParser interface {
	Parse(content []byte, filename string) (*domain.ParsedReport, error)
}

// ReportRepository persists ingested report files. Completed rows are keyed
// by (report date, category); re-ingestion of the same key upserts.
type ReportRepository interface {
	UpsertCompleted(ctx context.Context, file *domain.ReportFile, parsed *domain.ParsedReport) error
	RecordFailure(ctx context.Context, file *domain.ReportFile) error
	GetByID(ctx context.Context, id string) (*domain.ReportFile, error)
	CompletedCategories(ctx context.Context, date time.Time) ([]string, error)
	ListCompletedByDate(ctx context.Context, date time.Time) ([]domain.ReportFile, error)
	LoadParsedByDate(ctx context.Context, date time.Time) ([]domain.ParsedReport, error)
}

// KPIRepository persists daily snapshots and skill breakdowns.
type KPIRepository interface {
	// SaveDay upserts the daily snapshot and replaces all skill summaries for
	// its date in one transaction, serialized per date.
	SaveDay(ctx context.Context, kpis *domain.DailyKPIs, skills []domain.SkillSummary) error
	GetByDate(ctx context.Context, date time.Time) (*domain.DailyKPIs, error)
	// LatestBefore returns the nearest computed row strictly before date, or
	// nil when no prior row exists.
	LatestBefore(ctx context.Context, date time.Time) (*domain.DailyKPIs, error)
	// ListRecentBefore returns up to n computed rows strictly before date,
	// newest first.
	ListRecentBefore(ctx context.Context, date time.Time, n int) ([]domain.DailyKPIs, error)
	ListRange(ctx context.Context, start, end time.Time) ([]domain.DailyKPIs, error)
	LatestComputedDate(ctx context.Context) (time.Time, bool, error)
	SkillsByDate(ctx context.Context, date time.Time) ([]domain.SkillSummary, error)
}

// AlertRepository persists anomaly alerts. Creation is idempotent per
// (rule, report date) so a recomputed day never duplicates its alerts.
type AlertRepository interface {
	Create(ctx context.Context, alert *domain.Alert) (created bool, err error)
	List(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error)
	Acknowledge(ctx context.Context, alertID, acknowledgedBy, notes string) (*domain.Alert, error)
}

// ObjectStorage keeps the raw bytes of every received file for audit and
// re-parse. Retention is an external concern.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// EventBus publishes pipeline events for downstream collaborators.
type EventBus interface {
	PublishReportIngested(ctx context.Context, ev domain.ReportIngestedEvent) error
	PublishDayComputed(ctx context.Context, ev domain.DayComputedEvent) error
	PublishAlertRaised(ctx context.Context, ev domain.AlertRaisedEvent) error
	SubscribePipelineEvents(ctx context.Context, handler func(ctx context.Context, subject string, payload []byte) error) error
}
