package models

import "time"

// Severity captures qualitative severity hints attached to incoming incidents.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Incident is a structured anomaly report submitted for decisioning. It is
// immutable once submitted; the pipeline only reads it.
type Incident struct {
	Service   string         `json:"service"`
	Metric    string         `json:"metric"`
	DeltaPct  float64        `json:"delta_pct"`
	Severity  Severity       `json:"severity,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}
