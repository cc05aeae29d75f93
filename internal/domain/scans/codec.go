package scans

import (
	"encoding/json"
	"fmt"
	"time"
)

type outcomeJSON struct {
	Engine      Engine          `json:"engine"`
	Status      Status          `json:"status"`
	Format      Format          `json:"format,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Degraded    bool            `json:"degraded,omitempty"`
	Findings    []Finding       `json:"findings,omitempty"`
	Counts      *SeverityCounts `json:"counts,omitempty"`
	Error       string          `json:"error,omitempty"`
	ArtifactURL string          `json:"artifact_url,omitempty"`
	DurationMS  int64           `json:"duration_ms"`
}

func (o EngineOutcome) MarshalJSON() ([]byte, error) {
	w := outcomeJSON{
		Engine:      o.Engine,
		Status:      o.Status,
		Format:      o.Format,
		Findings:    o.Findings,
		Error:       o.ErrorDetail,
		ArtifactURL: o.ArtifactURL,
		DurationMS:  o.DurationMS,
	}
	if o.Payload != nil {
		b, err := json.Marshal(o.Payload)
		if err != nil {
			return nil, err
		}
		w.Payload = b
		w.Degraded = o.Payload.Degraded()
	}
	if o.Status == StatusOK {
		counts := o.Counts
		w.Counts = &counts
	}
	return json.Marshal(w)
}

func (o *EngineOutcome) UnmarshalJSON(b []byte) error {
	var w outcomeJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*o = EngineOutcome{
		Engine:      w.Engine,
		Status:      w.Status,
		Format:      w.Format,
		Findings:    w.Findings,
		ErrorDetail: w.Error,
		ArtifactURL: w.ArtifactURL,
		DurationMS:  w.DurationMS,
	}
	if len(w.Payload) > 0 {
		p, err := decodePayload(w.Payload, w.Degraded)
		if err != nil {
			return fmt.Errorf("%s payload: %w", w.Engine, err)
		}
		o.Payload = &p
	}
	if w.Counts != nil {
		o.Counts = *w.Counts
	}
	return nil
}

// MarshalJSON adds the aggregated counts for API consumers. They are derived,
// so decoding ignores them.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		Counts SeverityCounts `json:"counts"`
	}{plain(r), r.Counts()})
}

// EncodeOutcomes produces the document a store persists for a record.
func EncodeOutcomes(outcomes map[Engine]EngineOutcome) ([]byte, error) {
	if outcomes == nil {
		outcomes = map[Engine]EngineOutcome{}
	}
	return json.Marshal(outcomes)
}

// DecodeRecord rebuilds a record from its stored columns. Any decoding or
// invariant failure is reported as ErrMalformedRecord.
func DecodeRecord(runID, target string, report []byte, createdAt time.Time) (*Record, error) {
	outcomes := map[Engine]EngineOutcome{}
	if err := json.Unmarshal(report, &outcomes); err != nil {
		return nil, fmt.Errorf("%w: run %s: %v", ErrMalformedRecord, runID, err)
	}
	rec := &Record{
		RunID:     runID,
		Target:    Target(target),
		Outcomes:  outcomes,
		CreatedAt: createdAt.UTC(),
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: run %s: %v", ErrMalformedRecord, runID, err)
	}
	return rec, nil
}
