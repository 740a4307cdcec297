package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

type KPIRepository struct {
	db *sql.DB
}

func NewKPIRepository(db *sql.DB) *KPIRepository {
	return &KPIRepository{db: db}
}

// dayLockClass namespaces the per-date advisory locks taken by SaveDay so
// they cannot collide with the schema bootstrap lock.
const dayLockClass = int32(7421)

func dayLockKey(date time.Time) int32 {
	return int32(date.UTC().Unix() / 86400)
}

// SaveDay upserts the daily snapshot and replaces all skill rows for its date
// in one transaction. The per-date advisory lock serializes two concurrent
// completeness triggers for the same date; because the write is a full
// overwrite of deterministic values, the second run is harmless.
func (r *KPIRepository) SaveDay(ctx context.Context, kpis *domain.DailyKPIs, skills []domain.SkillSummary) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save day tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, dayLockClass, dayLockKey(kpis.ReportDate)); err != nil {
		return fmt.Errorf("acquire day lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO daily_kpis (
	report_date, total_dials, total_connects, total_transfers,
	connect_rate, conversion_rate, transfers_per_hour,
	total_agents, agents_with_transfers, total_man_hours,
	campaign_count, system_connects, delta_transfers, delta_tph, computed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (report_date) DO UPDATE SET
	total_dials = EXCLUDED.total_dials,
	total_connects = EXCLUDED.total_connects,
	total_transfers = EXCLUDED.total_transfers,
	connect_rate = EXCLUDED.connect_rate,
	conversion_rate = EXCLUDED.conversion_rate,
	transfers_per_hour = EXCLUDED.transfers_per_hour,
	total_agents = EXCLUDED.total_agents,
	agents_with_transfers = EXCLUDED.agents_with_transfers,
	total_man_hours = EXCLUDED.total_man_hours,
	campaign_count = EXCLUDED.campaign_count,
	system_connects = EXCLUDED.system_connects,
	delta_transfers = EXCLUDED.delta_transfers,
	delta_tph = EXCLUDED.delta_tph,
	computed_at = EXCLUDED.computed_at
`,
		kpis.ReportDate, kpis.TotalDials, kpis.TotalConnects, kpis.TotalTransfers,
		kpis.ConnectRate, kpis.ConversionRate, kpis.TransfersPerHour,
		kpis.TotalAgents, kpis.AgentsWithTransfers, kpis.TotalManHours,
		kpis.CampaignCount, kpis.SystemConnects,
		nullableInt(kpis.DeltaTransfers), nullableFloat(kpis.DeltaTPH), kpis.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert daily kpis: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM skill_summaries WHERE report_date = $1`, kpis.ReportDate); err != nil {
		return fmt.Errorf("clear skill summaries: %w", err)
	}
	for _, skill := range skills {
		_, err := tx.ExecContext(ctx, `
INSERT INTO skill_summaries (report_date, skill, total_transfers, avg_tph, agent_count, total_man_hours)
VALUES ($1,$2,$3,$4,$5,$6)
`, kpis.ReportDate, skill.Skill, skill.TotalTransfers, skill.AvgTPH, skill.AgentCount, skill.TotalManHours)
		if err != nil {
			return fmt.Errorf("insert skill summary %s: %w", skill.Skill, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save day tx: %w", err)
	}
	return nil
}

const kpiColumns = `
report_date, total_dials, total_connects, total_transfers,
connect_rate, conversion_rate, transfers_per_hour,
total_agents, agents_with_transfers, total_man_hours,
campaign_count, system_connects, delta_transfers, delta_tph, computed_at`

func (r *KPIRepository) GetByDate(ctx context.Context, date time.Time) (*domain.DailyKPIs, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+kpiColumns+` FROM daily_kpis WHERE report_date = $1`, date)

	kpis, err := scanKPIs(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDayNotComputed, "get daily kpis",
				fmt.Errorf("no computed row for %s", domain.FormatDay(date)))
		}
		return nil, fmt.Errorf("get daily kpis: %w", err)
	}
	return kpis, nil
}

// LatestBefore scans backward to the nearest computed date strictly before
// date; gaps in reporting are expected. Returns nil when no prior row exists.
func (r *KPIRepository) LatestBefore(ctx context.Context, date time.Time) (*domain.DailyKPIs, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT`+kpiColumns+`
FROM daily_kpis
WHERE report_date < $1
ORDER BY report_date DESC
LIMIT 1
`, date)

	kpis, err := scanKPIs(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest kpis before date: %w", err)
	}
	return kpis, nil
}

func (r *KPIRepository) ListRecentBefore(ctx context.Context, date time.Time, n int) ([]domain.DailyKPIs, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT`+kpiColumns+`
FROM daily_kpis
WHERE report_date < $1
ORDER BY report_date DESC
LIMIT $2
`, date, n)
	if err != nil {
		return nil, fmt.Errorf("list recent kpis: %w", err)
	}
	defer rows.Close()
	return collectKPIs(rows)
}

func (r *KPIRepository) ListRange(ctx context.Context, start, end time.Time) ([]domain.DailyKPIs, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT`+kpiColumns+`
FROM daily_kpis
WHERE report_date >= $1 AND report_date <= $2
ORDER BY report_date DESC
`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list kpis range: %w", err)
	}
	defer rows.Close()
	return collectKPIs(rows)
}

func (r *KPIRepository) LatestComputedDate(ctx context.Context) (time.Time, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT report_date FROM daily_kpis ORDER BY report_date DESC LIMIT 1`)

	var date time.Time
	if err := row.Scan(&date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("get latest computed date: %w", err)
	}
	return domain.Day(date), true, nil
}

func (r *KPIRepository) SkillsByDate(ctx context.Context, date time.Time) ([]domain.SkillSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT report_date, skill, total_transfers, avg_tph, agent_count, total_man_hours
FROM skill_summaries
WHERE report_date = $1
ORDER BY total_transfers DESC, skill
`, date)
	if err != nil {
		return nil, fmt.Errorf("list skill summaries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SkillSummary, 0)
	for rows.Next() {
		var s domain.SkillSummary
		if err := rows.Scan(&s.ReportDate, &s.Skill, &s.TotalTransfers, &s.AvgTPH, &s.AgentCount, &s.TotalManHours); err != nil {
			return nil, fmt.Errorf("scan skill summary: %w", err)
		}
		s.ReportDate = domain.Day(s.ReportDate)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skill summaries: %w", err)
	}
	return out, nil
}

type kpiScanner interface {
	Scan(dest ...interface{}) error
}

func scanKPIs(row kpiScanner) (*domain.DailyKPIs, error) {
	var kpis domain.DailyKPIs
	var deltaTransfers sql.NullInt64
	var deltaTPH sql.NullFloat64

	err := row.Scan(
		&kpis.ReportDate, &kpis.TotalDials, &kpis.TotalConnects, &kpis.TotalTransfers,
		&kpis.ConnectRate, &kpis.ConversionRate, &kpis.TransfersPerHour,
		&kpis.TotalAgents, &kpis.AgentsWithTransfers, &kpis.TotalManHours,
		&kpis.CampaignCount, &kpis.SystemConnects, &deltaTransfers, &deltaTPH, &kpis.ComputedAt,
	)
	if err != nil {
		return nil, err
	}

	kpis.ReportDate = domain.Day(kpis.ReportDate)
	if deltaTransfers.Valid {
		v := int(deltaTransfers.Int64)
		kpis.DeltaTransfers = &v
	}
	if deltaTPH.Valid {
		v := deltaTPH.Float64
		kpis.DeltaTPH = &v
	}
	return &kpis, nil
}

func collectKPIs(rows *sql.Rows) ([]domain.DailyKPIs, error) {
	out := make([]domain.DailyKPIs, 0)
	for rows.Next() {
		kpis, err := scanKPIs(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily kpis: %w", err)
		}
		out = append(out, *kpis)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily kpis: %w", err)
	}
	return out, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
