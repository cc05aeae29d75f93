package scans

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(t *testing.T) *Record {
	t.Helper()

	structured, err := StructuredPayload(map[string]any{
		"site": []map[string]any{{"@name": "https://example.com", "alerts": []any{}}},
		"port": 443,
	})
	require.NoError(t, err)

	zap := OK(EngineZAP, FormatJSON, structured, []Finding{
		{Engine: EngineZAP, Title: "Missing CSP", Severity: SeverityMedium, Location: "https://example.com/"},
	})
	zap.DurationMS = 1200
	zap.ArtifactURL = "http://minio:9000/scans/example.com/run/zap.json"

	whatweb := OK(EngineWhatWeb, FormatJSON, RawPayload("not json\x00 at all"), nil)
	nikto := Failed(EngineNikto, FormatJSON, "exit status 1")
	empty := OK(EngineWapiti, FormatJSON, EmptyPayload(), nil)

	return &Record{
		RunID:  "0b6e2f38-6f2e-4c55-9d6f-0f4a9b0d1e21",
		Target: Target("https://example.com"),
		Outcomes: map[Engine]EngineOutcome{
			EngineZAP:     zap,
			EngineWhatWeb: whatweb,
			EngineNikto:   nikto,
			EngineWapiti:  empty,
		},
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123456000, time.UTC),
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := sampleRecord(t)
	require.NoError(t, rec.Validate())

	doc, err := EncodeOutcomes(rec.Outcomes)
	require.NoError(t, err)

	got, err := DecodeRecord(rec.RunID, string(rec.Target), doc, rec.CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestOutcomeJSON_Shape(t *testing.T) {
	rec := sampleRecord(t)

	b, err := json.Marshal(rec.Outcomes[EngineWhatWeb])
	require.NoError(t, err)
	assert.JSONEq(t, `{"engine":"whatweb","status":"ok","format":"json","payload":{"raw":"not json at all"},"degraded":true,"counts":{"critical":0,"high":0,"medium":0,"low":0,"info":0,"total":0},"duration_ms":0}`, string(b))

	b, err = json.Marshal(rec.Outcomes[EngineNikto])
	require.NoError(t, err)
	assert.JSONEq(t, `{"engine":"nikto","status":"error","format":"json","error":"nikto: exit status 1","duration_ms":0}`, string(b))

	b, err = json.Marshal(rec.Outcomes[EngineWapiti])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"payload":{}`)
}

func TestRecordJSON_IncludesCounts(t *testing.T) {
	rec := sampleRecord(t)
	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body))
	assert.Equal(t, "https://example.com", body["target"])
	assert.Len(t, body["engines"], 4)
	counts := body["counts"].(map[string]any)
	assert.EqualValues(t, 1, counts["medium"])
	assert.EqualValues(t, 1, counts["total"])
}

func TestDecodeRecord_Malformed(t *testing.T) {
	_, err := DecodeRecord("run", "https://example.com", []byte(`{"zap":`), time.Now())
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = DecodeRecord("run", "https://example.com", []byte(`{"zap":{"engine":"zap","status":"ok"}}`), time.Now())
	assert.ErrorIs(t, err, ErrMalformedRecord, "ok outcome without payload")

	_, err = DecodeRecord("run", "https://example.com", []byte(`{"zap":{"engine":"nmap","status":"error","error":"x"}}`), time.Now())
	assert.ErrorIs(t, err, ErrMalformedRecord, "engine key mismatch")
}

func TestEncodeOutcomes_StripsNUL(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"title":"a\u0000b","plugins":[{"k\u0000ey":["x\u0000"]}],"n":3}`), &doc))
	payload, err := StructuredPayload(doc)
	require.NoError(t, err)

	o := OK(EngineWhatWeb, FormatJSON, payload, []Finding{
		{Engine: EngineWhatWeb, Title: "x\x00y", Severity: SeverityInfo, Evidence: "\x00ev", Location: "/a\x00", Reference: "r\x00"},
	})
	failed := Failed(EngineNikto, FormatJSON, "exit status 1: \x00tail")

	b, err := EncodeOutcomes(map[Engine]EngineOutcome{EngineWhatWeb: o, EngineNikto: failed})
	require.NoError(t, err)
	assert.NotContains(t, string(b), `\u0000`)

	assert.Equal(t, "ab", payload.Data.(map[string]any)["title"])
	assert.Equal(t, Finding{Engine: EngineWhatWeb, Title: "xy", Severity: SeverityInfo, Evidence: "ev", Location: "/a", Reference: "r"}, o.Findings[0])
	assert.Equal(t, "nikto: exit status 1: tail", failed.ErrorDetail)
}
