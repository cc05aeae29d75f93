package process

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

type zapReport struct {
	Site json.RawMessage `json:"site"`
}

type zapSite struct {
	Name   string     `json:"@name"`
	Alerts []zapAlert `json:"alerts"`
}

type zapAlert struct {
	Alert     string        `json:"alert"`
	Name      string        `json:"name"`
	RiskCode  string        `json:"riskcode"`
	Reference string        `json:"reference"`
	Instances []zapInstance `json:"instances"`
}

type zapInstance struct {
	URI      string `json:"uri"`
	Evidence string `json:"evidence"`
}

// ZAP riskcode: 0 informational, 1 low, 2 medium, 3 high.
func zapSeverity(code string) domain.Severity {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return domain.SeverityInfo
	}
	switch n {
	case 3:
		return domain.SeverityHigh
	case 2:
		return domain.SeverityMedium
	case 1:
		return domain.SeverityLow
	default:
		return domain.SeverityInfo
	}
}

func normalizeZAP(out []byte) (domain.Payload, []domain.Finding, error) {
	payload, err := decodeGeneric(out)
	if err != nil {
		return domain.Payload{}, nil, err
	}

	var report zapReport
	if err := json.Unmarshal(out, &report); err != nil {
		// valid JSON but not a report object; keep the document as is
		return payload, nil, nil
	}
	sites, err := zapSites(report.Site)
	if err != nil {
		return payload, nil, nil
	}

	var findings []domain.Finding
	for _, site := range sites {
		for _, a := range site.Alerts {
			title := a.Alert
			if title == "" {
				title = a.Name
			}
			f := domain.Finding{
				Engine:    domain.EngineZAP,
				Title:     title,
				Severity:  zapSeverity(a.RiskCode),
				Location:  site.Name,
				Reference: firstLine(a.Reference),
			}
			if len(a.Instances) > 0 {
				f.Location = a.Instances[0].URI
				f.Evidence = a.Instances[0].Evidence
			}
			findings = append(findings, f)
		}
	}
	return payload, findings, nil
}

// zapSites accepts both a single site object and a list of them.
func zapSites(raw json.RawMessage) ([]zapSite, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var many []zapSite
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one zapSite
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("zap site: %w", err)
	}
	return []zapSite{one}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(stripTags(s))
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// stripTags removes the <p> markup ZAP puts around descriptions.
func stripTags(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
			b.WriteRune('\n')
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
