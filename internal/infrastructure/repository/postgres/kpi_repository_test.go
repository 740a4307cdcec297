package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

func newKPIRepoWithMock(t *testing.T) (*KPIRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &KPIRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByDateReturnsDayNotComputed(t *testing.T) {
	repo, mock, done := newKPIRepoWithMock(t)
	defer done()

	day := testDay(t, "2026-01-15")
	mock.ExpectQuery("SELECT").
		WithArgs(day).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByDate(context.Background(), day)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDayNotComputed) {
		t.Fatalf("expected ErrDayNotComputed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLatestBeforeReturnsNilWhenNoPriorRow(t *testing.T) {
	repo, mock, done := newKPIRepoWithMock(t)
	defer done()

	day := testDay(t, "2026-01-15")
	mock.ExpectQuery("SELECT").
		WithArgs(day).
		WillReturnError(sql.ErrNoRows)

	kpis, err := repo.LatestBefore(context.Background(), day)
	if err != nil {
		t.Fatalf("LatestBefore() error = %v", err)
	}
	if kpis != nil {
		t.Fatalf("expected nil kpis when no prior row, got %+v", kpis)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveDayReplacesSkillRowsInOneTransaction(t *testing.T) {
	repo, mock, done := newKPIRepoWithMock(t)
	defer done()

	day := testDay(t, "2026-01-15")
	delta := 5
	deltaTPH := 0.25
	kpis := &domain.DailyKPIs{
		ReportDate:     day,
		TotalDials:     100,
		TotalConnects:  30,
		TotalTransfers: 10,
		DeltaTransfers: &delta,
		DeltaTPH:       &deltaTPH,
		ComputedAt:     time.Now().UTC(),
	}
	skills := []domain.SkillSummary{
		{ReportDate: day, Skill: "medicare", TotalTransfers: 7},
		{ReportDate: day, Skill: "auto", TotalTransfers: 3},
	}

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(dayLockClass, dayLockKey(day)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO daily_kpis").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM skill_summaries").
		WithArgs(day).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO skill_summaries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO skill_summaries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.SaveDay(context.Background(), kpis, skills); err != nil {
		t.Fatalf("SaveDay() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLatestComputedDateReportsAbsence(t *testing.T) {
	repo, mock, done := newKPIRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT report_date FROM daily_kpis").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := repo.LatestComputedDate(context.Background())
	if err != nil {
		t.Fatalf("LatestComputedDate() error = %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false when no computed rows exist")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestScanKPIsCarriesNullDeltas(t *testing.T) {
	repo, mock, done := newKPIRepoWithMock(t)
	defer done()

	day := testDay(t, "2026-01-15")
	rows := sqlmock.NewRows([]string{
		"report_date", "total_dials", "total_connects", "total_transfers",
		"connect_rate", "conversion_rate", "transfers_per_hour",
		"total_agents", "agents_with_transfers", "total_man_hours",
		"campaign_count", "system_connects", "delta_transfers", "delta_tph", "computed_at",
	}).AddRow(day, 100, 30, 10, 30.0, 33.33, 1.25, 8, 5, 60.0, 2, 40, nil, nil, time.Now().UTC())

	mock.ExpectQuery("SELECT").WithArgs(day).WillReturnRows(rows)

	kpis, err := repo.GetByDate(context.Background(), day)
	if err != nil {
		t.Fatalf("GetByDate() error = %v", err)
	}
	if kpis.DeltaTransfers != nil || kpis.DeltaTPH != nil {
		t.Fatalf("expected nil deltas for first computed day, got %+v", kpis)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
