package process

import (
	"encoding/json"
	"slices"
	"strings"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

type wapitiReport struct {
	Vulnerabilities map[string][]wapitiEntry `json:"vulnerabilities"`
	Anomalies       map[string][]wapitiEntry `json:"anomalies"`
}

type wapitiEntry struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	Info      string `json:"info"`
	Level     int    `json:"level"`
	Parameter string `json:"parameter"`
}

func wapitiSeverity(level int) domain.Severity {
	switch {
	case level >= 4:
		return domain.SeverityCritical
	case level == 3:
		return domain.SeverityHigh
	case level == 2:
		return domain.SeverityMedium
	case level == 1:
		return domain.SeverityLow
	default:
		return domain.SeverityInfo
	}
}

func normalizeWapiti(out []byte) (domain.Payload, []domain.Finding, error) {
	payload, err := decodeGeneric(out)
	if err != nil {
		return domain.Payload{}, nil, err
	}

	var report wapitiReport
	if err := json.Unmarshal(out, &report); err != nil {
		return payload, nil, nil
	}

	var findings []domain.Finding
	for _, group := range []map[string][]wapitiEntry{report.Vulnerabilities, report.Anomalies} {
		categories := make([]string, 0, len(group))
		for c := range group {
			categories = append(categories, c)
		}
		slices.Sort(categories)
		for _, category := range categories {
			for _, e := range group[category] {
				loc := strings.TrimSpace(e.Method + " " + e.Path)
				if e.Parameter != "" {
					loc += " (" + e.Parameter + ")"
				}
				findings = append(findings, domain.Finding{
					Engine:   domain.EngineWapiti,
					Title:    category,
					Severity: wapitiSeverity(e.Level),
					Location: loc,
					Evidence: strings.TrimSpace(e.Info),
				})
			}
		}
	}
	return payload, findings, nil
}
