package scans

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Engine enum
type Engine string

const (
	EngineZAP     Engine = "zap"
	EngineNikto   Engine = "nikto"
	EngineWapiti  Engine = "wapiti"
	EngineNmap    Engine = "nmap"
	EngineWhatWeb Engine = "whatweb"
)

// Engines lists every supported engine in default run order.
var Engines = []Engine{EngineZAP, EngineNikto, EngineWapiti, EngineNmap, EngineWhatWeb}

// ParseEngine resolves a configured engine name.
func ParseEngine(name string) (Engine, error) {
	e := Engine(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Engines {
		if e == known {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown engine %q", name)
}

// Status enum
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Format is the native output format an engine was asked to produce.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatText Format = "text"
)

// EngineOutcome is the result of one engine for one target. Exactly one of
// Payload and ErrorDetail is set, depending on Status.
type EngineOutcome struct {
	Engine      Engine
	Status      Status
	Format      Format
	Payload     *Payload
	Findings    []Finding
	Counts      SeverityCounts
	ErrorDetail string
	ArtifactURL string
	DurationMS  int64
}

// OK builds a successful outcome and derives its severity counts.
func OK(engine Engine, format Format, payload Payload, findings []Finding) EngineOutcome {
	if payload.Degraded() {
		findings = nil
	}
	if len(findings) == 0 {
		findings = nil
	}
	for i := range findings {
		findings[i] = findings[i].clean()
	}
	return EngineOutcome{
		Engine:   engine,
		Status:   StatusOK,
		Format:   format,
		Payload:  &payload,
		Findings: findings,
		Counts:   CountFindings(findings),
	}
}

// Failed builds an error outcome. The detail is prefixed with the engine name.
func Failed(engine Engine, format Format, detail string) EngineOutcome {
	detail = strings.TrimSpace(cleanText(detail))
	if detail == "" {
		detail = "failed"
	}
	prefix := string(engine) + ": "
	if !strings.HasPrefix(detail, prefix) {
		detail = prefix + detail
	}
	return EngineOutcome{
		Engine:      engine,
		Status:      StatusError,
		Format:      format,
		ErrorDetail: detail,
	}
}

// Degraded reports whether the engine succeeded but its output could not be parsed.
func (o EngineOutcome) Degraded() bool {
	return o.Status == StatusOK && o.Payload != nil && o.Payload.Degraded()
}

// Validate checks the payload/error exclusivity invariant.
func (o EngineOutcome) Validate() error {
	if o.Engine == "" {
		return fmt.Errorf("outcome without engine name")
	}
	switch o.Status {
	case StatusOK:
		if o.Payload == nil {
			return fmt.Errorf("%s: ok outcome without payload", o.Engine)
		}
		if o.ErrorDetail != "" {
			return fmt.Errorf("%s: ok outcome with error detail", o.Engine)
		}
	case StatusError:
		if o.ErrorDetail == "" {
			return fmt.Errorf("%s: error outcome without detail", o.Engine)
		}
		if o.Payload != nil || len(o.Findings) > 0 {
			return fmt.Errorf("%s: error outcome with payload", o.Engine)
		}
	default:
		return fmt.Errorf("%s: unknown status %q", o.Engine, o.Status)
	}
	return nil
}

// Aggregate Root: Record is one completed orchestration run. It is never
// mutated once appended to a Store.
type Record struct {
	RunID     string                   `json:"run_id"`
	Target    Target                   `json:"target"`
	Outcomes  map[Engine]EngineOutcome `json:"engines"`
	CreatedAt time.Time                `json:"created_at"`
}

// Counts sums severity counts over all successful engines.
func (r *Record) Counts() SeverityCounts {
	var c SeverityCounts
	for _, o := range r.Outcomes {
		if o.Status == StatusOK {
			c = c.Merge(o.Counts)
		}
	}
	return c
}

// Failures lists the engines that ended in error, sorted by name.
func (r *Record) Failures() []Engine {
	var out []Engine
	for _, e := range r.SortedEngines() {
		if r.Outcomes[e].Status == StatusError {
			out = append(out, e)
		}
	}
	return out
}

// SortedEngines returns the engines present in the record in stable order.
func (r *Record) SortedEngines() []Engine {
	out := make([]Engine, 0, len(r.Outcomes))
	for e := range r.Outcomes {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("nil record")
	}
	if r.RunID == "" {
		return fmt.Errorf("record without run id")
	}
	if err := r.Target.Validate(); err != nil {
		return err
	}
	for name, o := range r.Outcomes {
		if o.Engine != name {
			return fmt.Errorf("outcome keyed %q carries engine %q", name, o.Engine)
		}
		if err := o.Validate(); err != nil {
			return err
		}
	}
	return nil
}
