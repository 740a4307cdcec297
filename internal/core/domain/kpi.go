package domain

import "time"

// DailyKPIs is the single daily performance snapshot for one report date.
// A row exists only for dates whose completeness gate was satisfied at
// computation time; recomputation overwrites it wholesale.
type DailyKPIs struct {
	ReportDate          time.Time `json:"report_date"`
	TotalDials          int       `json:"total_dials"`
	TotalConnects       int       `json:"total_connects"`
	TotalTransfers      int       `json:"total_transfers"`
	ConnectRate         float64   `json:"connect_rate"`
	ConversionRate      float64   `json:"conversion_rate"`
	TransfersPerHour    float64   `json:"transfers_per_hour"`
	TotalAgents         int       `json:"total_agents"`
	AgentsWithTransfers int       `json:"agents_with_transfers"`
	TotalManHours       float64   `json:"total_man_hours"`
	CampaignCount       int       `json:"campaign_count"`
	SystemConnects      int       `json:"system_connects"`
	DeltaTransfers      *int      `json:"delta_transfers"`
	DeltaTPH            *float64  `json:"delta_tph"`
	ComputedAt          time.Time `json:"computed_at"`
}

// SkillSummary is the per-(report date, skill) breakdown, replaced wholesale
// on every recomputation of its date.
type SkillSummary struct {
	ReportDate     time.Time `json:"report_date"`
	Skill          string    `json:"skill"`
	TotalTransfers int       `json:"total_transfers"`
	AvgTPH         float64   `json:"avg_tph"`
	AgentCount     int       `json:"agent_count"`
	TotalManHours  float64   `json:"total_man_hours"`
}

// ChecklistEntry is the per-category receipt state for one date.
type ChecklistEntry struct {
	Category   string     `json:"category"`
	Name       string     `json:"name"`
	Received   bool       `json:"received"`
	RowCount   int        `json:"rows,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

// ChecklistStatus answers the completeness gate for one date.
type ChecklistStatus struct {
	ReportDate    time.Time        `json:"report_date"`
	ReceivedCount int              `json:"received"`
	TotalCount    int              `json:"total"`
	Missing       []string         `json:"missing"`
	Complete      bool             `json:"complete"`
	Computed      bool             `json:"computed"`
	ComputedAt    *time.Time       `json:"computed_at,omitempty"`
	Reports       []ChecklistEntry `json:"reports"`
}

// ComputeResult is the outcome of one aggregation attempt for a date.
// Incomplete is a sentinel, not a failure: the gate deferred computation.
type ComputeResult struct {
	ReportDate time.Time      `json:"report_date"`
	Incomplete bool           `json:"incomplete"`
	Missing    []string       `json:"missing,omitempty"`
	KPIs       *DailyKPIs     `json:"kpis,omitempty"`
	Skills     []SkillSummary `json:"skills,omitempty"`
	Alerts     []Alert        `json:"alerts,omitempty"`
}
