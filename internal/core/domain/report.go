package domain

import "time"

// DayLayout is the canonical wire and storage format for report dates.
const DayLayout = "2006-01-02"

type SourceChannel string

const (
	ChannelManual SourceChannel = "manual"
	ChannelEmail  SourceChannel = "email"
)

type IngestStatus string

const (
	StatusProcessing IngestStatus = "processing"
	StatusCompleted  IngestStatus = "completed"
	StatusFailed     IngestStatus = "failed"
)

// ReportFile is one ingested dialer export. At most one completed row is
// authoritative per (report date, category); re-ingestion upserts it.
type ReportFile struct {
	ID          string        `json:"id"`
	Filename    string        `json:"filename"`
	Channel     SourceChannel `json:"channel"`
	Category    string        `json:"category,omitempty"`
	ReportDate  time.Time     `json:"report_date,omitempty"`
	RangeStart  time.Time     `json:"range_start,omitempty"`
	RangeEnd    time.Time     `json:"range_end,omitempty"`
	RowCount    int           `json:"row_count"`
	Status      IngestStatus  `json:"status"`
	Error       string        `json:"error,omitempty"`
	StoragePath string        `json:"storage_path,omitempty"`
	ReceivedAt  time.Time     `json:"received_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// RowKind selects the decoder and aggregation role for a category's rows.
type RowKind string

const (
	KindAgent    RowKind = "agent"
	KindSkill    RowKind = "skill"
	KindCall     RowKind = "call"
	KindCampaign RowKind = "campaign"
)

type AgentRow struct {
	AgentID   string  `json:"agent_id"`
	AgentName string  `json:"agent_name,omitempty"`
	Skill     string  `json:"skill,omitempty"`
	Dials     int     `json:"dials"`
	Connects  int     `json:"connects"`
	Transfers int     `json:"transfers"`
	Hours     float64 `json:"hours"`
}

type SkillRow struct {
	Skill     string  `json:"skill"`
	Transfers int     `json:"transfers"`
	Agents    int     `json:"agents"`
	Hours     float64 `json:"hours"`
}

type CallRow struct {
	Campaign    string `json:"campaign,omitempty"`
	Skill       string `json:"skill,omitempty"`
	AgentID     string `json:"agent_id,omitempty"`
	Disposition string `json:"disposition,omitempty"`
	Transferred bool   `json:"transferred"`
}

type CampaignRow struct {
	Campaign       string `json:"campaign"`
	Dials          int    `json:"dials"`
	SystemConnects int    `json:"system_connects"`
}

// ParsedReport is the typed in-memory form of one decoded report file.
// Reports are filed under the date their data set ends.
type ParsedReport struct {
	Category     string        `json:"category"`
	Kind         RowKind       `json:"kind"`
	ReportDate   time.Time     `json:"report_date"`
	RangeStart   time.Time     `json:"range_start"`
	RangeEnd     time.Time     `json:"range_end"`
	AgentRows    []AgentRow    `json:"agent_rows,omitempty"`
	SkillRows    []SkillRow    `json:"skill_rows,omitempty"`
	CallRows     []CallRow     `json:"call_rows,omitempty"`
	CampaignRows []CampaignRow `json:"campaign_rows,omitempty"`
}

func (p *ParsedReport) RowCount() int {
	return len(p.AgentRows) + len(p.SkillRows) + len(p.CallRows) + len(p.CampaignRows)
}

// Day truncates a timestamp to its UTC calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDay(s string) (time.Time, error) {
	return time.Parse(DayLayout, s)
}

func FormatDay(t time.Time) string {
	return t.UTC().Format(DayLayout)
}
