package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

func TestKPIsLastDaysWindowsFromToday(t *testing.T) {
	repo := newFakeKPIRepo()
	uc := NewKPIQueryUseCase(repo)
	uc.now = func() time.Time { return day(t, "2026-01-20").Add(15 * time.Hour) }

	if _, err := uc.KPIsLastDays(context.Background(), 7); err != nil {
		t.Fatalf("KPIsLastDays() error = %v", err)
	}
	if !repo.rangeStart.Equal(day(t, "2026-01-14")) || !repo.rangeEnd.Equal(day(t, "2026-01-20")) {
		t.Fatalf("window = %s..%s, want 2026-01-14..2026-01-20",
			domain.FormatDay(repo.rangeStart), domain.FormatDay(repo.rangeEnd))
	}

	// Non-positive day counts fall back to a week.
	if _, err := uc.KPIsLastDays(context.Background(), 0); err != nil {
		t.Fatalf("KPIsLastDays(0) error = %v", err)
	}
	if !repo.rangeStart.Equal(day(t, "2026-01-14")) {
		t.Fatalf("zero days should default to 7, start = %s", domain.FormatDay(repo.rangeStart))
	}
}

func TestKPIsRangeRejectsInvertedBounds(t *testing.T) {
	uc := NewKPIQueryUseCase(newFakeKPIRepo())

	_, err := uc.KPIsRange(context.Background(), day(t, "2026-01-20"), day(t, "2026-01-15"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSkillsLatestFallsBackToEmpty(t *testing.T) {
	repo := newFakeKPIRepo()
	uc := NewKPIQueryUseCase(repo)

	skills, err := uc.SkillsLatest(context.Background())
	if err != nil {
		t.Fatalf("SkillsLatest() error = %v", err)
	}
	if skills == nil || len(skills) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", skills)
	}

	d := day(t, "2026-01-15")
	repo.latestDate = &d
	repo.savedSkills[domain.FormatDay(d)] = []domain.SkillSummary{{ReportDate: d, Skill: "medicare", TotalTransfers: 5}}

	skills, err = uc.SkillsLatest(context.Background())
	if err != nil {
		t.Fatalf("SkillsLatest() error = %v", err)
	}
	if len(skills) != 1 || skills[0].Skill != "medicare" {
		t.Fatalf("unexpected latest skills: %+v", skills)
	}
}

func TestKPIsByDateTruncatesToCalendarDay(t *testing.T) {
	repo := newFakeKPIRepo()
	d := day(t, "2026-01-15")
	repo.saved[domain.FormatDay(d)] = &domain.DailyKPIs{ReportDate: d, TotalTransfers: 9}
	uc := NewKPIQueryUseCase(repo)

	kpis, err := uc.KPIsByDate(context.Background(), d.Add(13*time.Hour))
	if err != nil {
		t.Fatalf("KPIsByDate() error = %v", err)
	}
	if kpis.TotalTransfers != 9 {
		t.Fatalf("unexpected snapshot: %+v", kpis)
	}
}
