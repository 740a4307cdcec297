package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

func newAggregateForTest(t *testing.T, reports *fakeReportRepo, kpis *fakeKPIRepo, alerts *fakeAlertRepo, bus *fakeBus) *AggregateUseCase {
	t.Helper()
	engine := NewAlertEngine(AlertThresholds{
		MinConnectRatePct:    10,
		MinConversionRatePct: 5,
		TPHDropPct:           20,
		TransferDropPct:      30,
	})
	return NewAggregateUseCase(testCatalog(t), reports, kpis, alerts, engine, bus, 7)
}

func seedCompleted(reports *fakeReportRepo, date time.Time, parsed ...domain.ParsedReport) {
	key := domain.FormatDay(date)
	for _, p := range parsed {
		reports.completedFiles[key] = append(reports.completedFiles[key], domain.ReportFile{
			Category:   p.Category,
			ReportDate: date,
			RowCount:   p.RowCount(),
			Status:     domain.StatusCompleted,
			ReceivedAt: time.Now().UTC(),
		})
		reports.parsed[key] = append(reports.parsed[key], p)
	}
}

func TestComputeDayDefersUntilAllCategoriesArrive(t *testing.T) {
	reports := newFakeReportRepo()
	kpis := newFakeKPIRepo()
	alerts := newFakeAlertRepo()
	bus := &fakeBus{}
	uc := newAggregateForTest(t, reports, kpis, alerts, bus)

	d := day(t, "2026-01-15")
	seedCompleted(reports, d, domain.ParsedReport{
		Category: "agent_summary", Kind: domain.KindAgent, ReportDate: d,
		AgentRows: []domain.AgentRow{{AgentID: "a1", Dials: 10}},
	})

	result, err := uc.ComputeDay(context.Background(), d)
	if err != nil {
		t.Fatalf("ComputeDay() error = %v", err)
	}
	if !result.Incomplete {
		t.Fatalf("expected incomplete sentinel, got %+v", result)
	}
	if len(result.Missing) != 1 || result.Missing[0] != "call_log" {
		t.Fatalf("unexpected missing list: %v", result.Missing)
	}
	if kpis.saveCalls != 0 {
		t.Fatalf("incomplete day must not write a snapshot, saves = %d", kpis.saveCalls)
	}
	if len(alerts.created) != 0 || len(bus.dayComputed) != 0 {
		t.Fatalf("incomplete day must not alert or publish")
	}
}

func TestComputeDayReconcilesOverlappingSources(t *testing.T) {
	reports := newFakeReportRepo()
	kpis := newFakeKPIRepo()
	uc := newAggregateForTest(t, reports, kpis, newFakeAlertRepo(), &fakeBus{})

	d := day(t, "2026-01-15")
	// Two sources report agent a1; shared figures reconcile by max, not sum.
	seedCompleted(reports, d,
		domain.ParsedReport{
			Category: "agent_summary", Kind: domain.KindAgent, ReportDate: d,
			AgentRows: []domain.AgentRow{
				{AgentID: "a1", Skill: "medicare", Dials: 50, Connects: 20, Transfers: 5, Hours: 8},
				{AgentID: "a2", Skill: "auto", Dials: 40, Connects: 10, Transfers: 0, Hours: 8},
			},
		},
		domain.ParsedReport{
			Category: "call_log", Kind: domain.KindCall, ReportDate: d,
			AgentRows: []domain.AgentRow{
				{AgentID: "a1", Skill: "medicare", Dials: 60, Connects: 18, Transfers: 5, Hours: 7.5},
			},
			CallRows: []domain.CallRow{
				{Campaign: "camp-a", Skill: "medicare", Transferred: true},
				{Campaign: "camp-a", Skill: "medicare", Transferred: false},
				{Campaign: "camp-b", Skill: "auto", Transferred: false},
			},
		},
	)

	result, err := uc.ComputeDay(context.Background(), d)
	if err != nil {
		t.Fatalf("ComputeDay() error = %v", err)
	}
	if result.Incomplete {
		t.Fatalf("expected computed day, got incomplete with missing %v", result.Missing)
	}

	got := result.KPIs
	if got.TotalDials != 100 { // max(50,60) + 40
		t.Fatalf("TotalDials = %d, want 100", got.TotalDials)
	}
	if got.TotalConnects != 30 || got.TotalTransfers != 5 {
		t.Fatalf("connects/transfers = %d/%d, want 30/5", got.TotalConnects, got.TotalTransfers)
	}
	if got.TotalAgents != 2 || got.AgentsWithTransfers != 1 {
		t.Fatalf("agents = %d with transfers %d, want 2/1", got.TotalAgents, got.AgentsWithTransfers)
	}
	if got.TotalManHours != 16 {
		t.Fatalf("TotalManHours = %v, want 16", got.TotalManHours)
	}
	if got.ConnectRate != 30 {
		t.Fatalf("ConnectRate = %v, want 30", got.ConnectRate)
	}
	if got.CampaignCount != 2 {
		t.Fatalf("CampaignCount = %d, want 2", got.CampaignCount)
	}
	if got.DeltaTransfers != nil || got.DeltaTPH != nil {
		t.Fatalf("first computed day must have nil deltas, got %+v", got)
	}

	if len(result.Skills) != 2 {
		t.Fatalf("expected 2 skills, got %+v", result.Skills)
	}
	if result.Skills[0].Skill != "medicare" || result.Skills[0].TotalTransfers != 5 {
		t.Fatalf("unexpected top skill: %+v", result.Skills[0])
	}
	if result.Skills[0].AgentCount != 1 || result.Skills[0].TotalManHours != 8 {
		t.Fatalf("unexpected medicare reconciliation: %+v", result.Skills[0])
	}
	if kpis.saveCalls != 1 {
		t.Fatalf("expected one snapshot save, got %d", kpis.saveCalls)
	}
}

func TestComputeDayZeroDenominatorsReportZeroRates(t *testing.T) {
	reports := newFakeReportRepo()
	uc := newAggregateForTest(t, reports, newFakeKPIRepo(), newFakeAlertRepo(), &fakeBus{})

	d := day(t, "2026-01-15")
	seedCompleted(reports, d,
		domain.ParsedReport{Category: "agent_summary", Kind: domain.KindAgent, ReportDate: d,
			AgentRows: []domain.AgentRow{{AgentID: "a1"}}},
		domain.ParsedReport{Category: "call_log", Kind: domain.KindCall, ReportDate: d},
	)

	result, err := uc.ComputeDay(context.Background(), d)
	if err != nil {
		t.Fatalf("ComputeDay() error = %v", err)
	}
	got := result.KPIs
	if got.ConnectRate != 0 || got.ConversionRate != 0 || got.TransfersPerHour != 0 {
		t.Fatalf("zero-activity day must report zero rates, got %+v", got)
	}
}

func TestComputeDayDeltasAgainstNearestPriorDay(t *testing.T) {
	reports := newFakeReportRepo()
	kpis := newFakeKPIRepo()
	kpis.prior = &domain.DailyKPIs{
		ReportDate:       day(t, "2026-01-12"),
		TotalTransfers:   8,
		TransfersPerHour: 1.0,
	}
	uc := newAggregateForTest(t, reports, kpis, newFakeAlertRepo(), &fakeBus{})

	d := day(t, "2026-01-15")
	seedCompleted(reports, d,
		domain.ParsedReport{Category: "agent_summary", Kind: domain.KindAgent, ReportDate: d,
			AgentRows: []domain.AgentRow{{AgentID: "a1", Dials: 100, Connects: 40, Transfers: 10, Hours: 8}}},
		domain.ParsedReport{Category: "call_log", Kind: domain.KindCall, ReportDate: d},
	)

	result, err := uc.ComputeDay(context.Background(), d)
	if err != nil {
		t.Fatalf("ComputeDay() error = %v", err)
	}
	got := result.KPIs
	if got.DeltaTransfers == nil || *got.DeltaTransfers != 2 {
		t.Fatalf("DeltaTransfers = %v, want 2", got.DeltaTransfers)
	}
	if got.DeltaTPH == nil || *got.DeltaTPH != 0.25 {
		t.Fatalf("DeltaTPH = %v, want 0.25", got.DeltaTPH)
	}
}

func TestRecomputeKeepsAlertsIdempotent(t *testing.T) {
	reports := newFakeReportRepo()
	kpis := newFakeKPIRepo()
	alerts := newFakeAlertRepo()
	bus := &fakeBus{}
	uc := newAggregateForTest(t, reports, kpis, alerts, bus)

	d := day(t, "2026-01-15")
	// Connect rate 4% trips the floor rule on every recomputation.
	seedCompleted(reports, d,
		domain.ParsedReport{Category: "agent_summary", Kind: domain.KindAgent, ReportDate: d,
			AgentRows: []domain.AgentRow{{AgentID: "a1", Dials: 100, Connects: 4, Transfers: 1, Hours: 8}}},
		domain.ParsedReport{Category: "call_log", Kind: domain.KindCall, ReportDate: d},
	)

	first, err := uc.ComputeDay(context.Background(), d)
	if err != nil {
		t.Fatalf("first ComputeDay() error = %v", err)
	}
	second, err := uc.ComputeDay(context.Background(), d)
	if err != nil {
		t.Fatalf("second ComputeDay() error = %v", err)
	}

	if len(first.Alerts) == 0 || len(second.Alerts) != len(first.Alerts) {
		t.Fatalf("both runs must report the same alerts: %d vs %d", len(first.Alerts), len(second.Alerts))
	}
	ruleCounts := map[string]int{}
	for _, a := range alerts.created {
		ruleCounts[a.Rule]++
		if ruleCounts[a.Rule] > 1 {
			t.Fatalf("rule %s persisted twice for the same date", a.Rule)
		}
	}
	if len(bus.alertRaised) != len(alerts.created) {
		t.Fatalf("alert events = %d, want one per newly created alert (%d)", len(bus.alertRaised), len(alerts.created))
	}
	if kpis.saveCalls != 2 {
		t.Fatalf("recompute must overwrite the snapshot, saves = %d", kpis.saveCalls)
	}
	if len(bus.dayComputed) != 2 {
		t.Fatalf("expected a day_computed event per run, got %d", len(bus.dayComputed))
	}
}

func TestStatusChecklistTracksMissingAndComputed(t *testing.T) {
	reports := newFakeReportRepo()
	kpis := newFakeKPIRepo()
	uc := newAggregateForTest(t, reports, kpis, newFakeAlertRepo(), &fakeBus{})

	d := day(t, "2026-01-15")
	seedCompleted(reports, d, domain.ParsedReport{
		Category: "agent_summary", Kind: domain.KindAgent, ReportDate: d,
		AgentRows: []domain.AgentRow{{AgentID: "a1"}, {AgentID: "a2"}},
	})

	status, err := uc.Status(context.Background(), d)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.ReceivedCount != 1 || status.TotalCount != 2 || status.Complete {
		t.Fatalf("unexpected counts: %+v", status)
	}
	if len(status.Missing) != 1 || status.Missing[0] != "call_log" {
		t.Fatalf("unexpected missing: %v", status.Missing)
	}
	if status.Computed {
		t.Fatalf("day must not be marked computed before aggregation")
	}
	if len(status.Reports) != 2 || !status.Reports[0].Received || status.Reports[0].RowCount != 2 {
		t.Fatalf("unexpected checklist entries: %+v", status.Reports)
	}

	kpis.saved[domain.FormatDay(d)] = &domain.DailyKPIs{ReportDate: d, ComputedAt: time.Now().UTC()}
	status, err = uc.Status(context.Background(), d)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Computed || status.ComputedAt == nil {
		t.Fatalf("expected computed status once a snapshot exists: %+v", status)
	}
}

func TestMergeAgentRowTakesFieldwiseMax(t *testing.T) {
	agents := map[string]*domain.AgentRow{}
	mergeAgentRow(agents, domain.AgentRow{AgentID: "a1", Dials: 50, Connects: 10, Transfers: 3, Hours: 7.5})
	mergeAgentRow(agents, domain.AgentRow{AgentID: "a1", AgentName: "Ana", Skill: "medicare", Dials: 40, Connects: 12, Transfers: 2, Hours: 8})

	got := agents["a1"]
	if got.Dials != 50 || got.Connects != 12 || got.Transfers != 3 {
		t.Fatalf("count figures must merge field-wise: %+v", got)
	}
	if got.Hours != 8 {
		t.Fatalf("hours must keep the larger figure, got %v", got.Hours)
	}
	if got.AgentName != "Ana" || got.Skill != "medicare" {
		t.Fatalf("identity fields must backfill from later sources: %+v", got)
	}
}
