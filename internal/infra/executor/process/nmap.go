package process

import (
	"encoding/xml"
	"fmt"
	"slices"
	"strings"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

type nmapRun struct {
	XMLName xml.Name   `xml:"nmaprun"`
	Hosts   []nmapHost `xml:"host"`
}

type nmapHost struct {
	Addresses []struct {
		Addr string `xml:"addr,attr"`
		Type string `xml:"addrtype,attr"`
	} `xml:"address"`
	Hostnames []struct {
		Name string `xml:"name,attr"`
	} `xml:"hostnames>hostname"`
	Ports   []nmapPort   `xml:"ports>port"`
	Scripts []nmapScript `xml:"hostscript>script"`
}

type nmapPort struct {
	Protocol string `xml:"protocol,attr"`
	PortID   int    `xml:"portid,attr"`
	State    struct {
		State string `xml:"state,attr"`
	} `xml:"state"`
	Service struct {
		Name    string `xml:"name,attr"`
		Product string `xml:"product,attr"`
		Version string `xml:"version,attr"`
	} `xml:"service"`
	Scripts []nmapScript `xml:"script"`
}

type nmapScript struct {
	ID     string `xml:"id,attr"`
	Output string `xml:"output,attr"`
}

// remote-access services exposed to the internet are reported as high
var riskyPorts = []int{22, 23, 3389}

// normalizeNmap keeps the XML text next to a JSON view of hosts and ports.
func normalizeNmap(out []byte) (domain.Payload, []domain.Finding, error) {
	var run nmapRun
	if err := xml.Unmarshal(out, &run); err != nil {
		return domain.Payload{}, nil, fmt.Errorf("nmap xml: %w", err)
	}

	hosts := make([]map[string]any, 0, len(run.Hosts))
	var findings []domain.Finding
	for _, h := range run.Hosts {
		addr := h.address()
		ports := make([]map[string]any, 0, len(h.Ports))
		for _, p := range h.Ports {
			ports = append(ports, map[string]any{
				"protocol": p.Protocol,
				"port":     p.PortID,
				"state":    p.State.State,
				"service":  p.Service.Name,
				"product":  strings.TrimSpace(p.Service.Product + " " + p.Service.Version),
			})
			loc := fmt.Sprintf("%s:%d/%s", addr, p.PortID, p.Protocol)
			if p.State.State == "open" {
				sev := domain.SeverityInfo
				if slices.Contains(riskyPorts, p.PortID) {
					sev = domain.SeverityHigh
				}
				findings = append(findings, domain.Finding{
					Engine:   domain.EngineNmap,
					Title:    fmt.Sprintf("open port %d (%s)", p.PortID, orUnknown(p.Service.Name)),
					Severity: sev,
					Location: loc,
				})
			}
			findings = append(findings, scriptFindings(p.Scripts, loc)...)
		}
		findings = append(findings, scriptFindings(h.Scripts, addr)...)
		hosts = append(hosts, map[string]any{"address": addr, "ports": ports})
	}

	payload, err := domain.StructuredPayload(map[string]any{
		"hosts": hosts,
		"xml":   strings.ToValidUTF8(string(out), ""),
	})
	if err != nil {
		return domain.Payload{}, nil, err
	}
	return payload, findings, nil
}

func (h nmapHost) address() string {
	for _, n := range h.Hostnames {
		if n.Name != "" {
			return n.Name
		}
	}
	for _, a := range h.Addresses {
		if a.Type != "mac" && a.Addr != "" {
			return a.Addr
		}
	}
	return "unknown"
}

func scriptFindings(scripts []nmapScript, loc string) []domain.Finding {
	var out []domain.Finding
	for _, s := range scripts {
		if !strings.Contains(s.Output, "VULNERABLE") {
			continue
		}
		out = append(out, domain.Finding{
			Engine:   domain.EngineNmap,
			Title:    s.ID,
			Severity: domain.SeverityHigh,
			Location: loc,
			Evidence: firstLine(s.Output),
		})
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
