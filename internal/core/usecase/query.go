package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/dialerops/report-pipeline/internal/core/domain"
	"github.com/dialerops/report-pipeline/internal/core/ports"
)

// KPIQueryUseCase is the read model over computed snapshots.
type KPIQueryUseCase struct {
	kpis ports.KPIRepository
	now  func() time.Time
}

func NewKPIQueryUseCase(kpis ports.KPIRepository) *KPIQueryUseCase {
	return &KPIQueryUseCase{kpis: kpis, now: time.Now}
}

func (uc *KPIQueryUseCase) KPIsByDate(ctx context.Context, date time.Time) (*domain.DailyKPIs, error) {
	return uc.kpis.GetByDate(ctx, domain.Day(date))
}

// KPIsLastDays returns the computed rows of the trailing N calendar days,
// today included, newest first. Uncomputed days are simply absent.
func (uc *KPIQueryUseCase) KPIsLastDays(ctx context.Context, days int) ([]domain.DailyKPIs, error) {
	if days <= 0 {
		days = 7
	}
	end := domain.Day(uc.now())
	start := end.AddDate(0, 0, -(days - 1))
	return uc.kpis.ListRange(ctx, start, end)
}

func (uc *KPIQueryUseCase) KPIsRange(ctx context.Context, start, end time.Time) ([]domain.DailyKPIs, error) {
	start, end = domain.Day(start), domain.Day(end)
	if end.Before(start) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "kpis range",
			fmt.Errorf("end %s before start %s", domain.FormatDay(end), domain.FormatDay(start)))
	}
	return uc.kpis.ListRange(ctx, start, end)
}

func (uc *KPIQueryUseCase) SkillsByDate(ctx context.Context, date time.Time) ([]domain.SkillSummary, error) {
	return uc.kpis.SkillsByDate(ctx, domain.Day(date))
}

// SkillsLatest returns the breakdown of the most recently computed date, or
// an empty slice when nothing has been computed yet.
func (uc *KPIQueryUseCase) SkillsLatest(ctx context.Context) ([]domain.SkillSummary, error) {
	date, ok, err := uc.kpis.LatestComputedDate(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.SkillSummary{}, nil
	}
	return uc.kpis.SkillsByDate(ctx, date)
}
