package ports

import (
	"context"
	"io"
	"time"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

// IngestFile is one raw file in an ingestion batch.
type IngestFile struct {
	Filename string
	Content  []byte
}

// FileResult is the per-file outcome of a batch; Error is empty on success.
type FileResult struct {
	Filename   string `json:"filename"`
	ReportID   string `json:"report_id,omitempty"`
	Category   string `json:"category,omitempty"`
	ReportDate string `json:"report_date,omitempty"`
	RowCount   int    `json:"row_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchResult reports partial success: every file's outcome plus the compute
// attempt for each report date the batch touched.
type BatchResult struct {
	Files    []FileResult            `json:"files"`
	Computed []*domain.ComputeResult `json:"computed,omitempty"`
}

// ReportIngestor is the inbound contract for webhook and manual upload.
// OpenRaw streams the stored raw copy of an earlier ingest for audit.
type ReportIngestor interface {
	IngestBatch(ctx context.Context, files []IngestFile, channel domain.SourceChannel) (*BatchResult, error)
	OpenRaw(ctx context.Context, reportID string) (*domain.ReportFile, io.ReadCloser, error)
}

// CompletenessReader answers the completeness gate for a date. Pure read.
type CompletenessReader interface {
	Status(ctx context.Context, date time.Time) (*domain.ChecklistStatus, error)
}

// KPIQueryService is the inbound read model for computed snapshots.
type KPIQueryService interface {
	KPIsByDate(ctx context.Context, date time.Time) (*domain.DailyKPIs, error)
	KPIsLastDays(ctx context.Context, days int) ([]domain.DailyKPIs, error)
	KPIsRange(ctx context.Context, start, end time.Time) ([]domain.DailyKPIs, error)
	SkillsByDate(ctx context.Context, date time.Time) ([]domain.SkillSummary, error)
	SkillsLatest(ctx context.Context) ([]domain.SkillSummary, error)
}

// AlertService lists alerts and handles the acknowledgement workflow.
type AlertService interface {
	List(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error)
	Acknowledge(ctx context.Context, alertID, acknowledgedBy, notes string) (*domain.Alert, error)
}
