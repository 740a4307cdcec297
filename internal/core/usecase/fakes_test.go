package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDay(s)
	if err != nil {
		t.Fatalf("ParseDay(%q) error = %v", s, err)
	}
	return d
}

func testCatalog(t *testing.T) *domain.Catalog {
	t.Helper()
	catalog, err := domain.NewCatalog([]domain.Category{
		{Key: "agent_summary", Name: "Agent Summary", Kind: domain.KindAgent,
			FilenamePattern: `(?i)^agent[_ -]?summary[_ -](\d{4}-\d{2}-\d{2})\.xlsx$`},
		{Key: "call_log", Name: "Call Log", Kind: domain.KindCall,
			FilenamePattern: `(?i)^call[_ -]?log[_ -](\d{4}-\d{2}-\d{2})\.xlsx$`},
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return catalog
}

type fakeReportRepo struct {
	completedFiles map[string][]domain.ReportFile
	parsed         map[string][]domain.ParsedReport

	upserts        []*domain.ReportFile
	failures       []*domain.ReportFile
	completedCalls int
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{
		completedFiles: map[string][]domain.ReportFile{},
		parsed:         map[string][]domain.ParsedReport{},
	}
}

func (r *fakeReportRepo) UpsertCompleted(_ context.Context, file *domain.ReportFile, parsed *domain.ParsedReport) error {
	file.Status = domain.StatusCompleted
	r.upserts = append(r.upserts, file)
	key := domain.FormatDay(file.ReportDate)
	r.completedFiles[key] = append(r.completedFiles[key], *file)
	r.parsed[key] = append(r.parsed[key], *parsed)
	return nil
}

func (r *fakeReportRepo) RecordFailure(_ context.Context, file *domain.ReportFile) error {
	file.Status = domain.StatusFailed
	r.failures = append(r.failures, file)
	return nil
}

func (r *fakeReportRepo) GetByID(_ context.Context, id string) (*domain.ReportFile, error) {
	for _, f := range r.upserts {
		if f.ID == id {
			c := *f
			return &c, nil
		}
	}
	for _, f := range r.failures {
		if f.ID == id {
			c := *f
			return &c, nil
		}
	}
	return nil, domain.WrapError(domain.ErrReportNotFound, "get report file", fmt.Errorf("no row for %s", id))
}

func (r *fakeReportRepo) CompletedCategories(_ context.Context, date time.Time) ([]string, error) {
	r.completedCalls++
	seen := map[string]struct{}{}
	var categories []string
	for _, f := range r.completedFiles[domain.FormatDay(date)] {
		if _, ok := seen[f.Category]; ok {
			continue
		}
		seen[f.Category] = struct{}{}
		categories = append(categories, f.Category)
	}
	return categories, nil
}

func (r *fakeReportRepo) ListCompletedByDate(_ context.Context, date time.Time) ([]domain.ReportFile, error) {
	return r.completedFiles[domain.FormatDay(date)], nil
}

func (r *fakeReportRepo) LoadParsedByDate(_ context.Context, date time.Time) ([]domain.ParsedReport, error) {
	return r.parsed[domain.FormatDay(date)], nil
}

type fakeKPIRepo struct {
	saved       map[string]*domain.DailyKPIs
	savedSkills map[string][]domain.SkillSummary
	prior       *domain.DailyKPIs
	history     []domain.DailyKPIs
	latestDate  *time.Time
	rangeRows   []domain.DailyKPIs

	saveCalls  int
	rangeStart time.Time
	rangeEnd   time.Time
}

func newFakeKPIRepo() *fakeKPIRepo {
	return &fakeKPIRepo{
		saved:       map[string]*domain.DailyKPIs{},
		savedSkills: map[string][]domain.SkillSummary{},
	}
}

func (r *fakeKPIRepo) SaveDay(_ context.Context, kpis *domain.DailyKPIs, skills []domain.SkillSummary) error {
	r.saveCalls++
	key := domain.FormatDay(kpis.ReportDate)
	r.saved[key] = kpis
	r.savedSkills[key] = skills
	return nil
}

func (r *fakeKPIRepo) GetByDate(_ context.Context, date time.Time) (*domain.DailyKPIs, error) {
	kpis, ok := r.saved[domain.FormatDay(date)]
	if !ok {
		return nil, domain.ErrDayNotComputed
	}
	return kpis, nil
}

func (r *fakeKPIRepo) LatestBefore(_ context.Context, _ time.Time) (*domain.DailyKPIs, error) {
	return r.prior, nil
}

func (r *fakeKPIRepo) ListRecentBefore(_ context.Context, _ time.Time, n int) ([]domain.DailyKPIs, error) {
	if len(r.history) > n {
		return r.history[:n], nil
	}
	return r.history, nil
}

func (r *fakeKPIRepo) ListRange(_ context.Context, start, end time.Time) ([]domain.DailyKPIs, error) {
	r.rangeStart, r.rangeEnd = start, end
	return r.rangeRows, nil
}

func (r *fakeKPIRepo) LatestComputedDate(_ context.Context) (time.Time, bool, error) {
	if r.latestDate == nil {
		return time.Time{}, false, nil
	}
	return *r.latestDate, true, nil
}

func (r *fakeKPIRepo) SkillsByDate(_ context.Context, date time.Time) ([]domain.SkillSummary, error) {
	return r.savedSkills[domain.FormatDay(date)], nil
}

type fakeAlertRepo struct {
	created []domain.Alert
	acked   map[string]*domain.Alert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{acked: map[string]*domain.Alert{}}
}

func (r *fakeAlertRepo) Create(_ context.Context, alert *domain.Alert) (bool, error) {
	for _, existing := range r.created {
		if existing.Rule == alert.Rule && existing.ReportDate.Equal(alert.ReportDate) {
			return false, nil
		}
	}
	r.created = append(r.created, *alert)
	return true, nil
}

func (r *fakeAlertRepo) List(_ context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, a := range r.created {
		if !filter.ReportDate.IsZero() && !a.ReportDate.Equal(filter.ReportDate) {
			continue
		}
		if filter.UnacknowledgedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *fakeAlertRepo) Acknowledge(_ context.Context, alertID, acknowledgedBy, notes string) (*domain.Alert, error) {
	for i := range r.created {
		if r.created[i].ID == alertID {
			now := time.Now().UTC()
			r.created[i].Acknowledged = true
			r.created[i].AcknowledgedBy = acknowledgedBy
			r.created[i].AcknowledgedAt = &now
			r.created[i].Notes = notes
			return &r.created[i], nil
		}
	}
	return nil, domain.ErrAlertNotFound
}

type fakeBus struct {
	ingested    []domain.ReportIngestedEvent
	dayComputed []domain.DayComputedEvent
	alertRaised []domain.AlertRaisedEvent
	publishErr  error
}

func (b *fakeBus) PublishReportIngested(_ context.Context, ev domain.ReportIngestedEvent) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.ingested = append(b.ingested, ev)
	return nil
}

func (b *fakeBus) PublishDayComputed(_ context.Context, ev domain.DayComputedEvent) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.dayComputed = append(b.dayComputed, ev)
	return nil
}

func (b *fakeBus) PublishAlertRaised(_ context.Context, ev domain.AlertRaisedEvent) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.alertRaised = append(b.alertRaised, ev)
	return nil
}

func (b *fakeBus) SubscribePipelineEvents(ctx context.Context, _ func(context.Context, string, []byte) error) error {
	<-ctx.Done()
	return nil
}

type fakeParser struct {
	reports map[string]*domain.ParsedReport
	errs    map[string]error
}

func (p *fakeParser) Parse(_ []byte, filename string) (*domain.ParsedReport, error) {
	if err, ok := p.errs[filename]; ok {
		return nil, err
	}
	report, ok := p.reports[filename]
	if !ok {
		return nil, fmt.Errorf("detect category: %w", domain.ErrUnrecognizedFormat)
	}
	return report, nil
}

type fakeStorage struct {
	objects map[string][]byte
	saveErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (s *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.objects[key] = raw
	return nil
}

func (s *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}
