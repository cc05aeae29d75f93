package scans

import "strings"

// Severity of a normalized finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ParseSeverity maps the labels engines use onto the five levels.
// Unknown labels become info.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "crit":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "moderate", "warning":
		return SeverityMedium
	case "low", "note":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Finding is one normalized issue extracted from an engine's output.
type Finding struct {
	Engine    Engine   `json:"engine"`
	Title     string   `json:"title"`
	Severity  Severity `json:"severity"`
	Location  string   `json:"location,omitempty"`
	Evidence  string   `json:"evidence,omitempty"`
	Reference string   `json:"reference,omitempty"`
}

func (f Finding) clean() Finding {
	f.Title = cleanText(f.Title)
	f.Location = cleanText(f.Location)
	f.Evidence = cleanText(f.Evidence)
	f.Reference = cleanText(f.Reference)
	return f
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

func (c SeverityCounts) Add(s Severity) SeverityCounts {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	default:
		c.Info++
	}
	c.Total++
	return c
}

func (c SeverityCounts) Merge(o SeverityCounts) SeverityCounts {
	c.Critical += o.Critical
	c.High += o.High
	c.Medium += o.Medium
	c.Low += o.Low
	c.Info += o.Info
	c.Total += o.Total
	return c
}

func CountFindings(findings []Finding) SeverityCounts {
	var c SeverityCounts
	for _, f := range findings {
		c = c.Add(f.Severity)
	}
	return c
}
