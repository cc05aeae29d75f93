package process

import (
	"encoding/json"
	"strings"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

type niktoHost struct {
	Host            string       `json:"host"`
	Port            any          `json:"port"`
	Vulnerabilities []niktoEntry `json:"vulnerabilities"`
}

type niktoEntry struct {
	ID         any    `json:"id"`
	Method     string `json:"method"`
	URL        string `json:"url"`
	Msg        string `json:"msg"`
	References string `json:"references"`
}

// Nikto has no severity scale; every reported item is treated as medium.
func normalizeNikto(out []byte) (domain.Payload, []domain.Finding, error) {
	payload, err := decodeGeneric(out)
	if err != nil {
		return domain.Payload{}, nil, err
	}

	var hosts []niktoHost
	if err := json.Unmarshal(out, &hosts); err != nil {
		var one niktoHost
		if err := json.Unmarshal(out, &one); err != nil {
			return payload, nil, nil
		}
		hosts = []niktoHost{one}
	}

	var findings []domain.Finding
	for _, h := range hosts {
		for _, v := range h.Vulnerabilities {
			if strings.TrimSpace(v.Msg) == "" {
				continue
			}
			findings = append(findings, domain.Finding{
				Engine:    domain.EngineNikto,
				Title:     strings.TrimSpace(v.Msg),
				Severity:  domain.SeverityMedium,
				Location:  strings.TrimSpace(v.Method + " " + v.URL),
				Reference: strings.TrimSpace(v.References),
			})
		}
	}
	return payload, findings, nil
}
