package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dialerops/report-pipeline/internal/core/domain"
	"github.com/dialerops/report-pipeline/internal/core/ports"
)

// IngestUseCase handles report batches from both channels. Files fail
// individually: one bad attachment never blocks the rest of the batch, and
// every distinct report date the batch touched gets one compute attempt.
type IngestUseCase struct {
	parser     ports.ReportParser
	reports    ports.ReportRepository
	storage    ports.ObjectStorage
	bus        ports.EventBus
	aggregator *AggregateUseCase

	now func() time.Time
}

func NewIngestUseCase(
	parser ports.ReportParser,
	reports ports.ReportRepository,
	storage ports.ObjectStorage,
	bus ports.EventBus,
	aggregator *AggregateUseCase,
) *IngestUseCase {
	return &IngestUseCase{
		parser:     parser,
		reports:    reports,
		storage:    storage,
		bus:        bus,
		aggregator: aggregator,
		now:        time.Now,
	}
}

func (uc *IngestUseCase) IngestBatch(ctx context.Context, files []ports.IngestFile, channel domain.SourceChannel) (*ports.BatchResult, error) {
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest batch", fmt.Errorf("batch contains no files"))
	}

	result := &ports.BatchResult{Files: make([]ports.FileResult, 0, len(files))}
	touched := map[time.Time]struct{}{}

	for _, f := range files {
		fileResult, date, err := uc.ingestOne(ctx, f, channel)
		if err != nil {
			return nil, err
		}
		result.Files = append(result.Files, fileResult)
		if fileResult.Error == "" {
			touched[date] = struct{}{}
		}
	}

	for _, date := range sortedDates(touched) {
		computed, err := uc.aggregator.ComputeDay(ctx, date)
		if err != nil {
			return nil, err
		}
		result.Computed = append(result.Computed, computed)
	}
	return result, nil
}

// ingestOne stores one file. Parse failures are recorded and reported in the
// file's result; only infrastructure errors propagate.
func (uc *IngestUseCase) ingestOne(ctx context.Context, in ports.IngestFile, channel domain.SourceChannel) (ports.FileResult, time.Time, error) {
	receivedAt := uc.now().UTC()
	file := &domain.ReportFile{
		ID:         uuid.NewString(),
		Filename:   in.Filename,
		Channel:    channel,
		ReceivedAt: receivedAt,
	}

	parsed, err := uc.parser.Parse(in.Content, in.Filename)
	if err != nil {
		if !domain.IsParseError(err) {
			return ports.FileResult{}, time.Time{}, err
		}
		file.Error = err.Error()
		if recordErr := uc.reports.RecordFailure(ctx, file); recordErr != nil {
			return ports.FileResult{}, time.Time{}, recordErr
		}
		return ports.FileResult{Filename: in.Filename, ReportID: file.ID, Error: file.Error}, time.Time{}, nil
	}

	file.Category = parsed.Category
	file.ReportDate = parsed.ReportDate
	file.RangeStart = parsed.RangeStart
	file.RangeEnd = parsed.RangeEnd
	file.RowCount = parsed.RowCount()
	file.StoragePath = storageKey(file.ID, in.Filename)

	if err := uc.storage.Save(ctx, file.StoragePath, bytes.NewReader(in.Content)); err != nil {
		return ports.FileResult{}, time.Time{}, fmt.Errorf("store raw file %s: %w", in.Filename, err)
	}
	if err := uc.reports.UpsertCompleted(ctx, file, parsed); err != nil {
		return ports.FileResult{}, time.Time{}, err
	}
	uc.publishIngested(ctx, file)

	return ports.FileResult{
		Filename:   in.Filename,
		ReportID:   file.ID,
		Category:   file.Category,
		ReportDate: domain.FormatDay(file.ReportDate),
		RowCount:   file.RowCount,
	}, file.ReportDate, nil
}

// OpenRaw streams the stored raw copy of an ingested file. Failed files that
// never reached storage report not found, like an unknown id.
func (uc *IngestUseCase) OpenRaw(ctx context.Context, reportID string) (*domain.ReportFile, io.ReadCloser, error) {
	file, err := uc.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	if file.StoragePath == "" {
		return nil, nil, domain.WrapError(domain.ErrReportNotFound, "open raw copy",
			fmt.Errorf("report %s has no stored copy", reportID))
	}
	body, err := uc.storage.Open(ctx, file.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return file, body, nil
}

func (uc *IngestUseCase) publishIngested(ctx context.Context, file *domain.ReportFile) {
	if uc.bus == nil {
		return
	}
	ev := domain.ReportIngestedEvent{
		ReportID:   file.ID,
		Category:   file.Category,
		ReportDate: domain.FormatDay(file.ReportDate),
		Channel:    file.Channel,
		RowCount:   file.RowCount,
		At:         uc.now().UTC(),
	}
	if err := uc.bus.PublishReportIngested(ctx, ev); err != nil {
		slog.Warn("publish ingested event failed", "report_id", ev.ReportID, "error", err)
	}
}

// storageKey prefixes the report id so re-uploads of the same filename never
// clobber earlier raw copies.
func storageKey(id, filename string) string {
	base := filepath.Base(filename)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	return id + "_" + base
}

func sortedDates(set map[time.Time]struct{}) []time.Time {
	dates := make([]time.Time, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
