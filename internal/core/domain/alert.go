package domain

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one detected anomaly. Acknowledgement is terminal.
type Alert struct {
	ID             string     `json:"id"`
	Rule           string     `json:"rule"`
	ReportDate     time.Time  `json:"report_date"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// AlertFilter narrows alert listings. A zero ReportDate means no date filter;
// Limit <= 0 falls back to the repository default.
type AlertFilter struct {
	ReportDate         time.Time
	UnacknowledgedOnly bool
	Limit              int
}
