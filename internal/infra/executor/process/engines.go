package process

import (
	"bytes"
	"encoding/json"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

// engineSpec describes how one engine is invoked and how its output is read.
type engineSpec struct {
	binary string
	format domain.Format
	// artifact engines write their report to a file instead of stdout.
	artifact  bool
	args      func(target domain.Target, artifact string) []string
	normalize func(out []byte) (domain.Payload, []domain.Finding, error)
}

var catalogue = map[domain.Engine]engineSpec{
	domain.EngineZAP: {
		binary:   "zap.sh",
		format:   domain.FormatJSON,
		artifact: true,
		args: func(t domain.Target, artifact string) []string {
			return []string{"-cmd", "-quickurl", t.String(), "-quickout", artifact}
		},
		normalize: normalizeZAP,
	},
	domain.EngineNikto: {
		binary: "nikto",
		format: domain.FormatJSON,
		args: func(t domain.Target, _ string) []string {
			return []string{"-h", t.String(), "-o", "-", "-Format", "json"}
		},
		normalize: normalizeNikto,
	},
	domain.EngineWapiti: {
		binary:   "wapiti",
		format:   domain.FormatJSON,
		artifact: true,
		args: func(t domain.Target, artifact string) []string {
			return []string{"-u", t.String(), "-f", "json", "-o", artifact}
		},
		normalize: normalizeWapiti,
	},
	domain.EngineNmap: {
		binary: "nmap",
		format: domain.FormatXML,
		args: func(t domain.Target, _ string) []string {
			return []string{"-sV", "--script", "vuln", t.Host(), "-oX", "-"}
		},
		normalize: normalizeNmap,
	},
	domain.EngineWhatWeb: {
		binary: "whatweb",
		format: domain.FormatJSON,
		args: func(t domain.Target, _ string) []string {
			return []string{t.String(), "--log-json=-"}
		},
		normalize: normalizeWhatWeb,
	},
}

func lookup(e domain.Engine) (engineSpec, bool) {
	spec, ok := catalogue[e]
	return spec, ok
}

// DefaultBinary returns the conventional executable name of an engine.
func DefaultBinary(e domain.Engine) string {
	return catalogue[e].binary
}

// normalize never fails: empty output is an empty payload and unparseable
// output degrades to raw text.
func normalize(spec engineSpec, out []byte) (domain.Payload, []domain.Finding) {
	if len(bytes.TrimSpace(out)) == 0 {
		return domain.EmptyPayload(), nil
	}
	payload, findings, err := spec.normalize(out)
	if err != nil {
		return domain.RawPayload(string(out)), nil
	}
	return payload, findings
}

// decodeGeneric parses a JSON document into its generic payload form.
func decodeGeneric(out []byte) (domain.Payload, error) {
	var doc any
	if err := json.Unmarshal(out, &doc); err != nil {
		return domain.Payload{}, err
	}
	return domain.StructuredPayload(doc)
}
