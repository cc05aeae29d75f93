package process

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

type whatwebEntry struct {
	Target     string                   `json:"target"`
	HTTPStatus int                      `json:"http_status"`
	Plugins    map[string]whatwebPlugin `json:"plugins"`
}

type whatwebPlugin struct {
	Version []string `json:"version"`
	String  []string `json:"string"`
}

// normalizeWhatWeb reads the JSON array whatweb writes and falls back to one
// object per line, which is what older releases emit.
func normalizeWhatWeb(out []byte) (domain.Payload, []domain.Finding, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(out, &raw); err != nil {
		raw, err = jsonLines(out)
		if err != nil {
			return domain.Payload{}, nil, err
		}
	}

	docs := make([]any, 0, len(raw))
	var findings []domain.Finding
	for _, r := range raw {
		var doc any
		if err := json.Unmarshal(r, &doc); err != nil {
			return domain.Payload{}, nil, err
		}
		docs = append(docs, doc)

		var e whatwebEntry
		if err := json.Unmarshal(r, &e); err != nil {
			continue
		}
		names := make([]string, 0, len(e.Plugins))
		for n := range e.Plugins {
			names = append(names, n)
		}
		slices.Sort(names)
		for _, n := range names {
			p := e.Plugins[n]
			findings = append(findings, domain.Finding{
				Engine:   domain.EngineWhatWeb,
				Title:    n,
				Severity: domain.SeverityInfo,
				Location: e.Target,
				Evidence: strings.Join(append(slices.Clone(p.Version), p.String...), ", "),
			})
		}
	}

	payload, err := domain.StructuredPayload(docs)
	if err != nil {
		return domain.Payload{}, nil, err
	}
	return payload, findings, nil
}

func jsonLines(out []byte) ([]json.RawMessage, error) {
	var docs []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		line = bytes.TrimSuffix(line, []byte(","))
		if len(line) == 0 || bytes.Equal(line, []byte("[")) || bytes.Equal(line, []byte("]")) {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("whatweb: invalid json line")
		}
		docs = append(docs, json.RawMessage(bytes.Clone(line)))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("whatweb: no entries")
	}
	return docs, nil
}
