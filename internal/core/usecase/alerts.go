package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dialerops/report-pipeline/internal/core/domain"
	"github.com/dialerops/report-pipeline/internal/core/ports"
)

// Alert rule names. Per-skill rules suffix the skill so the (rule, report
// date) uniqueness still distinguishes skills.
const (
	RuleConnectRateFloor    = "connect_rate_floor"
	RuleConversionRateFloor = "conversion_rate_floor"
	RuleTPHTrendDrop        = "tph_trend_drop"
	RuleTransferDayDrop     = "transfer_day_drop"
	RuleSkillZeroTransfers  = "skill_zero_transfers"
)

// AlertThresholds holds the tunable bounds of the anomaly rules. Percentages
// are 0-100.
type AlertThresholds struct {
	MinConnectRatePct    float64
	MinConversionRatePct float64
	TPHDropPct           float64
	TransferDropPct      float64
}

// AlertEngine evaluates one computed day against the rule set. Detection is
// pure: persistence and dedup are the caller's concern.
type AlertEngine struct {
	thresholds AlertThresholds
	now        func() time.Time
}

func NewAlertEngine(thresholds AlertThresholds) *AlertEngine {
	return &AlertEngine{thresholds: thresholds, now: time.Now}
}

// Detect returns every alert the day's snapshot triggers. history is prior
// computed days, newest first, used for trend rules; it may be empty.
func (e *AlertEngine) Detect(kpis *domain.DailyKPIs, skills []domain.SkillSummary, history []domain.DailyKPIs) []domain.Alert {
	var alerts []domain.Alert
	add := func(rule string, severity domain.Severity, message string) {
		alerts = append(alerts, domain.Alert{
			ID:         uuid.NewString(),
			Rule:       rule,
			ReportDate: kpis.ReportDate,
			Severity:   severity,
			Message:    message,
			CreatedAt:  e.now().UTC(),
		})
	}

	if a, ok := e.connectRateFloor(kpis); ok {
		add(RuleConnectRateFloor, a.severity, a.message)
	}
	if a, ok := e.conversionRateFloor(kpis); ok {
		add(RuleConversionRateFloor, a.severity, a.message)
	}
	if a, ok := e.tphTrendDrop(kpis, history); ok {
		add(RuleTPHTrendDrop, a.severity, a.message)
	}
	if a, ok := e.transferDayDrop(kpis); ok {
		add(RuleTransferDayDrop, a.severity, a.message)
	}
	for _, s := range skills {
		if s.AgentCount > 0 && s.TotalTransfers == 0 {
			add(RuleSkillZeroTransfers+":"+s.Skill, domain.SeverityInfo,
				fmt.Sprintf("skill %s had %d agents staffed and zero transfers", s.Skill, s.AgentCount))
		}
	}
	return alerts
}

type finding struct {
	severity domain.Severity
	message  string
}

func (e *AlertEngine) connectRateFloor(kpis *domain.DailyKPIs) (finding, bool) {
	floor := e.thresholds.MinConnectRatePct
	if floor <= 0 || kpis.TotalDials == 0 || kpis.ConnectRate >= floor {
		return finding{}, false
	}
	severity := domain.SeverityWarning
	if kpis.ConnectRate < floor/2 {
		severity = domain.SeverityCritical
	}
	return finding{
		severity: severity,
		message:  fmt.Sprintf("connect rate %.1f%% below floor %.1f%% (%d connects / %d dials)", kpis.ConnectRate, floor, kpis.TotalConnects, kpis.TotalDials),
	}, true
}

func (e *AlertEngine) conversionRateFloor(kpis *domain.DailyKPIs) (finding, bool) {
	floor := e.thresholds.MinConversionRatePct
	if floor <= 0 || kpis.TotalConnects == 0 || kpis.ConversionRate >= floor {
		return finding{}, false
	}
	return finding{
		severity: domain.SeverityWarning,
		message:  fmt.Sprintf("conversion rate %.1f%% below floor %.1f%% (%d transfers / %d connects)", kpis.ConversionRate, floor, kpis.TotalTransfers, kpis.TotalConnects),
	}, true
}

// tphTrendDrop compares the day's transfers-per-hour against the trailing
// average of the history window.
func (e *AlertEngine) tphTrendDrop(kpis *domain.DailyKPIs, history []domain.DailyKPIs) (finding, bool) {
	dropPct := e.thresholds.TPHDropPct
	if dropPct <= 0 || len(history) == 0 {
		return finding{}, false
	}
	var sum float64
	for _, h := range history {
		sum += h.TransfersPerHour
	}
	avg := sum / float64(len(history))
	if avg <= 0 {
		return finding{}, false
	}
	if kpis.TransfersPerHour >= avg*(1-dropPct/100) {
		return finding{}, false
	}
	actualDrop := (avg - kpis.TransfersPerHour) / avg * 100
	return finding{
		severity: domain.SeverityCritical,
		message:  fmt.Sprintf("transfers/hour %.2f down %.0f%% from %d-day average %.2f", kpis.TransfersPerHour, actualDrop, len(history), avg),
	}, true
}

// transferDayDrop fires on a day-over-day transfer collapse. It relies on
// DeltaTransfers, so the first computed day can never trigger it.
func (e *AlertEngine) transferDayDrop(kpis *domain.DailyKPIs) (finding, bool) {
	dropPct := e.thresholds.TransferDropPct
	if dropPct <= 0 || kpis.DeltaTransfers == nil || *kpis.DeltaTransfers >= 0 {
		return finding{}, false
	}
	prior := kpis.TotalTransfers - *kpis.DeltaTransfers
	if prior <= 0 {
		return finding{}, false
	}
	actualDrop := float64(-*kpis.DeltaTransfers) / float64(prior) * 100
	if actualDrop < dropPct {
		return finding{}, false
	}
	return finding{
		severity: domain.SeverityWarning,
		message:  fmt.Sprintf("transfers dropped %.0f%% day-over-day (%d -> %d)", actualDrop, prior, kpis.TotalTransfers),
	}, true
}

// AlertQueryUseCase is the inbound alert surface: listing and the terminal
// acknowledgement workflow.
type AlertQueryUseCase struct {
	alerts       ports.AlertRepository
	defaultLimit int
}

func NewAlertQueryUseCase(alerts ports.AlertRepository, defaultLimit int) *AlertQueryUseCase {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &AlertQueryUseCase{alerts: alerts, defaultLimit: defaultLimit}
}

func (uc *AlertQueryUseCase) List(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	if filter.Limit <= 0 {
		filter.Limit = uc.defaultLimit
	}
	return uc.alerts.List(ctx, filter)
}

func (uc *AlertQueryUseCase) Acknowledge(ctx context.Context, alertID, acknowledgedBy, notes string) (*domain.Alert, error) {
	if strings.TrimSpace(alertID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "acknowledge alert", fmt.Errorf("alert id is required"))
	}
	if strings.TrimSpace(acknowledgedBy) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "acknowledge alert", fmt.Errorf("acknowledged_by is required"))
	}
	return uc.alerts.Acknowledge(ctx, alertID, acknowledgedBy, notes)
}
