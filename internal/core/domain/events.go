package domain

import "time"

// Pipeline events published for downstream collaborators (dashboards,
// notification fan-out). They are advisory: a failed publish never fails
// the ingestion request that produced it.

type ReportIngestedEvent struct {
	ReportID   string        `json:"report_id"`
	Category   string        `json:"category"`
	ReportDate string        `json:"report_date"`
	Channel    SourceChannel `json:"channel"`
	RowCount   int           `json:"row_count"`
	At         time.Time     `json:"at"`
}

type DayComputedEvent struct {
	ReportDate       string    `json:"report_date"`
	TotalTransfers   int       `json:"total_transfers"`
	TransfersPerHour float64   `json:"transfers_per_hour"`
	AlertCount       int       `json:"alert_count"`
	At               time.Time `json:"at"`
}

type AlertRaisedEvent struct {
	AlertID    string    `json:"alert_id"`
	Rule       string    `json:"rule"`
	Severity   Severity  `json:"severity"`
	ReportDate string    `json:"report_date"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}
