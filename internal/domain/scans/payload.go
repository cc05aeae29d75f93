package scans

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PayloadKind tags the Payload variant.
type PayloadKind string

const (
	PayloadStructured PayloadKind = "structured"
	PayloadRaw        PayloadKind = "raw"
)

// Payload is an engine's normalized output: either a JSON-generic structure
// (maps, slices, strings, float64, bool) or raw text when parsing failed.
type Payload struct {
	Kind PayloadKind
	Data any
	Raw  string
}

// StructuredPayload canonicalizes v through JSON so that the in-memory value
// equals what a store hands back after a round trip.
func StructuredPayload(v any) (Payload, error) {
	if v == nil {
		return EmptyPayload(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("encode payload: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if generic == nil {
		return EmptyPayload(), nil
	}
	return Payload{Kind: PayloadStructured, Data: cleanValue(generic)}, nil
}

// RawPayload wraps unparsed output.
func RawPayload(text string) Payload {
	return Payload{Kind: PayloadRaw, Raw: cleanText(text)}
}

// cleanText drops NUL and invalid UTF-8: postgres JSONB rejects \u0000.
func cleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}

// cleanValue applies cleanText to every string and key of a generic JSON value.
func cleanValue(v any) any {
	switch t := v.(type) {
	case string:
		return cleanText(t)
	case []any:
		for i := range t {
			t[i] = cleanValue(t[i])
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[cleanText(k)] = cleanValue(val)
		}
		return out
	default:
		return v
	}
}

// EmptyPayload is what an engine with no output produces.
func EmptyPayload() Payload {
	return Payload{Kind: PayloadStructured, Data: map[string]any{}}
}

func (p Payload) Degraded() bool { return p.Kind == PayloadRaw }

// MarshalJSON writes structured data as-is and raw text as {"raw": "..."}.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Kind == PayloadRaw {
		return json.Marshal(struct {
			Raw string `json:"raw"`
		}{p.Raw})
	}
	return json.Marshal(p.Data)
}

func decodePayload(b []byte, degraded bool) (Payload, error) {
	if degraded {
		var w struct {
			Raw *string `json:"raw"`
		}
		if err := json.Unmarshal(b, &w); err != nil {
			return Payload{}, err
		}
		if w.Raw == nil {
			return Payload{}, fmt.Errorf("degraded payload without raw text")
		}
		return Payload{Kind: PayloadRaw, Raw: *w.Raw}, nil
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return Payload{}, err
	}
	if generic == nil {
		return EmptyPayload(), nil
	}
	return Payload{Kind: PayloadStructured, Data: generic}, nil
}
