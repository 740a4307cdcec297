package usecase

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/dialerops/report-pipeline/internal/core/domain"
	"github.com/dialerops/report-pipeline/internal/core/ports"
)

// AggregateUseCase owns the completeness gate and the daily KPI computation.
// A date is computed only when every catalog category has a completed file;
// recomputation overwrites the snapshot wholesale and re-runs detection, with
// alert dedup handled by the repository's (rule, report date) key.
type AggregateUseCase struct {
	catalog *domain.Catalog
	reports ports.ReportRepository
	kpis    ports.KPIRepository
	alerts  ports.AlertRepository
	engine  *AlertEngine
	bus     ports.EventBus

	trendWindowDays int
	now             func() time.Time
}

func NewAggregateUseCase(
	catalog *domain.Catalog,
	reports ports.ReportRepository,
	kpis ports.KPIRepository,
	alerts ports.AlertRepository,
	engine *AlertEngine,
	bus ports.EventBus,
	trendWindowDays int,
) *AggregateUseCase {
	if trendWindowDays <= 0 {
		trendWindowDays = 7
	}
	return &AggregateUseCase{
		catalog:         catalog,
		reports:         reports,
		kpis:            kpis,
		alerts:          alerts,
		engine:          engine,
		bus:             bus,
		trendWindowDays: trendWindowDays,
		now:             time.Now,
	}
}

// Status answers the checklist for one date: which categories arrived, which
// are missing, and whether the day's snapshot exists.
func (uc *AggregateUseCase) Status(ctx context.Context, date time.Time) (*domain.ChecklistStatus, error) {
	date = domain.Day(date)

	files, err := uc.reports.ListCompletedByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[string]domain.ReportFile, len(files))
	for _, f := range files {
		byCategory[f.Category] = f
	}

	status := &domain.ChecklistStatus{
		ReportDate: date,
		TotalCount: uc.catalog.Len(),
		Reports:    make([]domain.ChecklistEntry, 0, uc.catalog.Len()),
	}
	for _, key := range uc.catalog.Keys() {
		cat, _ := uc.catalog.Get(key)
		entry := domain.ChecklistEntry{Category: key, Name: cat.Name}
		if f, ok := byCategory[key]; ok {
			entry.Received = true
			entry.RowCount = f.RowCount
			receivedAt := f.ReceivedAt
			entry.ReceivedAt = &receivedAt
			status.ReceivedCount++
		} else {
			status.Missing = append(status.Missing, key)
		}
		status.Reports = append(status.Reports, entry)
	}
	status.Complete = status.ReceivedCount == status.TotalCount

	kpis, err := uc.kpis.GetByDate(ctx, date)
	switch {
	case err == nil:
		status.Computed = true
		computedAt := kpis.ComputedAt
		status.ComputedAt = &computedAt
	case domain.IsKind(err, domain.ErrDayNotComputed):
	default:
		return nil, err
	}
	return status, nil
}

// ComputeDay runs one aggregation attempt for date. When the gate is not
// satisfied it returns the incomplete sentinel and writes nothing.
func (uc *AggregateUseCase) ComputeDay(ctx context.Context, date time.Time) (*domain.ComputeResult, error) {
	date = domain.Day(date)

	completed, err := uc.reports.CompletedCategories(ctx, date)
	if err != nil {
		return nil, err
	}
	missing := uc.missingCategories(completed)
	if len(missing) > 0 {
		return &domain.ComputeResult{ReportDate: date, Incomplete: true, Missing: missing}, nil
	}

	parsed, err := uc.reports.LoadParsedByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	kpis, skills := buildDay(date, parsed, uc.now().UTC())

	prior, err := uc.kpis.LatestBefore(ctx, date)
	if err != nil {
		return nil, err
	}
	applyDeltas(kpis, prior)

	history, err := uc.kpis.ListRecentBefore(ctx, date, uc.trendWindowDays)
	if err != nil {
		return nil, err
	}
	alerts := uc.engine.Detect(kpis, skills, history)

	if err := uc.kpis.SaveDay(ctx, kpis, skills); err != nil {
		return nil, err
	}

	result := &domain.ComputeResult{
		ReportDate: date,
		KPIs:       kpis,
		Skills:     skills,
	}
	for i := range alerts {
		created, err := uc.alerts.Create(ctx, &alerts[i])
		if err != nil {
			return nil, err
		}
		result.Alerts = append(result.Alerts, alerts[i])
		if created {
			uc.publishAlertRaised(ctx, alerts[i])
		}
	}
	uc.publishDayComputed(ctx, kpis, len(result.Alerts))
	return result, nil
}

func (uc *AggregateUseCase) missingCategories(completed []string) []string {
	have := make(map[string]struct{}, len(completed))
	for _, c := range completed {
		have[c] = struct{}{}
	}
	var missing []string
	for _, key := range uc.catalog.Keys() {
		if _, ok := have[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func (uc *AggregateUseCase) publishDayComputed(ctx context.Context, kpis *domain.DailyKPIs, alertCount int) {
	if uc.bus == nil {
		return
	}
	ev := domain.DayComputedEvent{
		ReportDate:       domain.FormatDay(kpis.ReportDate),
		TotalTransfers:   kpis.TotalTransfers,
		TransfersPerHour: kpis.TransfersPerHour,
		AlertCount:       alertCount,
		At:               uc.now().UTC(),
	}
	if err := uc.bus.PublishDayComputed(ctx, ev); err != nil {
		slog.Warn("publish day_computed event failed", "report_date", ev.ReportDate, "error", err)
	}
}

func (uc *AggregateUseCase) publishAlertRaised(ctx context.Context, alert domain.Alert) {
	if uc.bus == nil {
		return
	}
	ev := domain.AlertRaisedEvent{
		AlertID:    alert.ID,
		Rule:       alert.Rule,
		Severity:   alert.Severity,
		ReportDate: domain.FormatDay(alert.ReportDate),
		Message:    alert.Message,
		At:         uc.now().UTC(),
	}
	if err := uc.bus.PublishAlertRaised(ctx, ev); err != nil {
		slog.Warn("publish alert_raised event failed", "alert_id", ev.AlertID, "error", err)
	}
}

// skillAccum reconciles one skill across report sources.
type skillAccum struct {
	reported       domain.SkillRow // from skill-kind reports, field-wise max
	agentTransfers int
	agentHours     float64
	agentIDs       map[string]struct{}
	callTransfers  int
}

// buildDay reconciles all completed reports for a date into the daily
// snapshot. Several categories describe the same activity from different
// angles, so figures shared by more than one source take the field-wise
// maximum per join key instead of summing across categories.
func buildDay(date time.Time, parsed []domain.ParsedReport, computedAt time.Time) (*domain.DailyKPIs, []domain.SkillSummary) {
	agents := map[string]*domain.AgentRow{}
	skills := map[string]*skillAccum{}
	campaigns := map[string]*domain.CampaignRow{}
	callCampaignDials := map[string]int{}

	skillFor := func(name string) *skillAccum {
		acc, ok := skills[name]
		if !ok {
			acc = &skillAccum{agentIDs: map[string]struct{}{}}
			skills[name] = acc
		}
		return acc
	}

	for _, report := range parsed {
		for _, row := range report.AgentRows {
			mergeAgentRow(agents, row)
		}
		for _, row := range report.SkillRows {
			acc := skillFor(row.Skill)
			acc.reported.Skill = row.Skill
			acc.reported.Transfers = max(acc.reported.Transfers, row.Transfers)
			acc.reported.Agents = max(acc.reported.Agents, row.Agents)
			acc.reported.Hours = max(acc.reported.Hours, row.Hours)
		}
		for _, row := range report.CallRows {
			if row.Campaign != "" {
				callCampaignDials[row.Campaign]++
			}
			if row.Skill != "" && row.Transferred {
				skillFor(row.Skill).callTransfers++
			}
		}
		for _, row := range report.CampaignRows {
			existing, ok := campaigns[row.Campaign]
			if !ok {
				r := row
				campaigns[row.Campaign] = &r
				continue
			}
			existing.Dials = max(existing.Dials, row.Dials)
			existing.SystemConnects = max(existing.SystemConnects, row.SystemConnects)
		}
	}

	// Fold the merged agent rows into their skills.
	for id, agent := range agents {
		if agent.Skill == "" {
			continue
		}
		acc := skillFor(agent.Skill)
		acc.agentTransfers += agent.Transfers
		acc.agentHours += agent.Hours
		acc.agentIDs[id] = struct{}{}
	}

	kpis := &domain.DailyKPIs{ReportDate: date, ComputedAt: computedAt}
	for _, agent := range agents {
		kpis.TotalDials += agent.Dials
		kpis.TotalConnects += agent.Connects
		kpis.TotalTransfers += agent.Transfers
		kpis.TotalManHours += agent.Hours
		kpis.TotalAgents++
		if agent.Transfers > 0 {
			kpis.AgentsWithTransfers++
		}
	}

	// Call-log dial counts backstop campaigns absent from campaign reports.
	for campaign, dials := range callCampaignDials {
		existing, ok := campaigns[campaign]
		if !ok {
			campaigns[campaign] = &domain.CampaignRow{Campaign: campaign, Dials: dials}
			continue
		}
		existing.Dials = max(existing.Dials, dials)
	}
	kpis.CampaignCount = len(campaigns)
	for _, c := range campaigns {
		kpis.SystemConnects += c.SystemConnects
	}

	kpis.ConnectRate = pct(kpis.TotalConnects, kpis.TotalDials)
	kpis.ConversionRate = pct(kpis.TotalTransfers, kpis.TotalConnects)
	kpis.TransfersPerHour = perHour(kpis.TotalTransfers, kpis.TotalManHours)

	summaries := make([]domain.SkillSummary, 0, len(skills))
	for name, acc := range skills {
		transfers := max(acc.reported.Transfers, max(acc.agentTransfers, acc.callTransfers))
		agentCount := max(acc.reported.Agents, len(acc.agentIDs))
		hours := max(acc.reported.Hours, acc.agentHours)
		summaries = append(summaries, domain.SkillSummary{
			ReportDate:     date,
			Skill:          name,
			TotalTransfers: transfers,
			AvgTPH:         perHour(transfers, hours),
			AgentCount:     agentCount,
			TotalManHours:  hours,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].TotalTransfers != summaries[j].TotalTransfers {
			return summaries[i].TotalTransfers > summaries[j].TotalTransfers
		}
		return summaries[i].Skill < summaries[j].Skill
	})
	return kpis, summaries
}

func mergeAgentRow(agents map[string]*domain.AgentRow, row domain.AgentRow) {
	existing, ok := agents[row.AgentID]
	if !ok {
		r := row
		agents[row.AgentID] = &r
		return
	}
	if existing.AgentName == "" {
		existing.AgentName = row.AgentName
	}
	if existing.Skill == "" {
		existing.Skill = row.Skill
	}
	existing.Dials = max(existing.Dials, row.Dials)
	existing.Connects = max(existing.Connects, row.Connects)
	existing.Transfers = max(existing.Transfers, row.Transfers)
	existing.Hours = max(existing.Hours, row.Hours)
}

// applyDeltas fills day-over-day deltas against the nearest prior computed
// date. They stay nil for the first computed day.
func applyDeltas(kpis *domain.DailyKPIs, prior *domain.DailyKPIs) {
	if prior == nil {
		return
	}
	deltaTransfers := kpis.TotalTransfers - prior.TotalTransfers
	deltaTPH := kpis.TransfersPerHour - prior.TransfersPerHour
	kpis.DeltaTransfers = &deltaTransfers
	kpis.DeltaTPH = &deltaTPH
}

// pct guards the zero-denominator day: rates report 0, never NaN.
func pct(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}

func perHour(count int, hours float64) float64 {
	if hours <= 0 {
		return 0
	}
	return float64(count) / hours
}
