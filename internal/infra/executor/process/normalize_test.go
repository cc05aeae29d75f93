package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

func TestNormalize_EmptyAndWhitespace(t *testing.T) {
	for _, e := range domain.Engines {
		spec, ok := lookup(e)
		require.True(t, ok, e)
		for _, out := range []string{"", "  \n\t"} {
			p, f := normalize(spec, []byte(out))
			assert.Equal(t, domain.EmptyPayload(), p, e)
			assert.Nil(t, f, e)
		}
	}
}

func TestNormalize_GarbageDegrades(t *testing.T) {
	for _, e := range domain.Engines {
		spec, _ := lookup(e)
		p, f := normalize(spec, []byte("Segmentation fault"))
		assert.True(t, p.Degraded(), e)
		assert.Equal(t, "Segmentation fault", p.Raw, e)
		assert.Nil(t, f, e)
	}
}

func TestNormalizeZAP(t *testing.T) {
	out := `{"@version":"2.14.0","site":{"@name":"https://example.com","alerts":[
		{"alert":"Cross Site Scripting","riskcode":"3","reference":"<p>https://owasp.org/xss</p><p>other</p>",
		 "instances":[{"uri":"https://example.com/q","evidence":"<script>"}]},
		{"name":"Server Leaks Version","riskcode":"1"},
		{"alert":"Modern Web App","riskcode":"0"}]}}`

	p, findings, err := normalizeZAP([]byte(out))
	require.NoError(t, err)
	assert.False(t, p.Degraded())
	require.Len(t, findings, 3)

	assert.Equal(t, domain.Finding{
		Engine: domain.EngineZAP, Title: "Cross Site Scripting", Severity: domain.SeverityHigh,
		Location: "https://example.com/q", Evidence: "<script>", Reference: "https://owasp.org/xss",
	}, findings[0])
	assert.Equal(t, "Server Leaks Version", findings[1].Title)
	assert.Equal(t, domain.SeverityLow, findings[1].Severity)
	assert.Equal(t, "https://example.com", findings[1].Location)
	assert.Equal(t, domain.SeverityInfo, findings[2].Severity)
}

func TestNormalizeZAP_UnexpectedShapeKeepsDocument(t *testing.T) {
	p, findings, err := normalizeZAP([]byte(`["a","b"]`))
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, p.Data)
	assert.Nil(t, findings)
}

func TestNormalizeNikto(t *testing.T) {
	out := `[{"host":"example.com","port":"443","vulnerabilities":[
		{"id":"999100","method":"GET","url":"/","msg":"X-Frame-Options header not present.","references":"https://developer.mozilla.org"},
		{"id":"1","method":"GET","url":"/","msg":"  "}]}]`

	_, findings, err := normalizeNikto([]byte(out))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "GET /", findings[0].Location)
	assert.Equal(t, domain.SeverityMedium, findings[0].Severity)
}

func TestNormalizeWapiti(t *testing.T) {
	out := `{"vulnerabilities":{
		"SQL Injection":[{"method":"GET","path":"/item","info":"sqli via id","level":4,"parameter":"id"}],
		"Cross Site Scripting":[{"method":"POST","path":"/c","info":"xss","level":2}],
		"Backup file":[]},
		"anomalies":{"Internal Server Error":[{"method":"GET","path":"/boom","level":3}]},
		"infos":{"target":"https://example.com"}}`

	_, findings, err := normalizeWapiti([]byte(out))
	require.NoError(t, err)
	require.Len(t, findings, 3)

	assert.Equal(t, "Cross Site Scripting", findings[0].Title)
	assert.Equal(t, domain.SeverityMedium, findings[0].Severity)
	assert.Equal(t, "SQL Injection", findings[1].Title)
	assert.Equal(t, domain.SeverityCritical, findings[1].Severity)
	assert.Equal(t, "GET /item (id)", findings[1].Location)
	assert.Equal(t, domain.SeverityHigh, findings[2].Severity)

	counts := domain.CountFindings(findings)
	assert.Equal(t, 3, counts.Total)
}

func TestNormalizeNmap(t *testing.T) {
	out := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE nmaprun>
<nmaprun scanner="nmap">
  <host>
    <address addr="93.184.216.34" addrtype="ipv4"/>
    <hostnames><hostname name="example.com" type="user"/></hostnames>
    <ports>
      <port protocol="tcp" portid="22"><state state="open"/><service name="ssh" product="OpenSSH" version="8.9"/></port>
      <port protocol="tcp" portid="443"><state state="open"/><service name="https"/>
        <script id="ssl-heartbleed" output="  VULNERABLE:&#xa;  The Heartbleed Bug"/>
      </port>
      <port protocol="tcp" portid="25"><state state="filtered"/><service name="smtp"/></port>
    </ports>
  </host>
</nmaprun>`

	p, findings, err := normalizeNmap([]byte(out))
	require.NoError(t, err)

	data := p.Data.(map[string]any)
	assert.Contains(t, data["xml"], "<nmaprun")
	hosts := data["hosts"].([]any)
	require.Len(t, hosts, 1)
	host := hosts[0].(map[string]any)
	assert.Equal(t, "example.com", host["address"])
	assert.Len(t, host["ports"], 3)

	require.Len(t, findings, 3)
	assert.Equal(t, "open port 22 (ssh)", findings[0].Title)
	assert.Equal(t, domain.SeverityHigh, findings[0].Severity)
	assert.Equal(t, "example.com:22/tcp", findings[0].Location)
	assert.Equal(t, domain.SeverityInfo, findings[1].Severity)
	assert.Equal(t, "ssl-heartbleed", findings[2].Title)
	assert.Equal(t, domain.SeverityHigh, findings[2].Severity)
	assert.Equal(t, "VULNERABLE:", findings[2].Evidence)
}

func TestNormalizeNmap_NotXML(t *testing.T) {
	_, _, err := normalizeNmap([]byte(`{"json":true}`))
	assert.Error(t, err)
}

func TestNormalizeWhatWeb(t *testing.T) {
	array := `[
{"target":"https://example.com","http_status":200,"plugins":{"nginx":{"version":["1.25"]},"Country":{"string":["US"]}}}
]`
	lines := `{"target":"https://example.com","http_status":200,"plugins":{"nginx":{"version":["1.25"]}}}
{"target":"https://example.com/","http_status":301,"plugins":{}}`

	p, findings, err := normalizeWhatWeb([]byte(array))
	require.NoError(t, err)
	assert.Len(t, p.Data, 1)
	require.Len(t, findings, 2)
	assert.Equal(t, "Country", findings[0].Title)
	assert.Equal(t, "US", findings[0].Evidence)
	assert.Equal(t, "nginx", findings[1].Title)
	assert.Equal(t, "1.25", findings[1].Evidence)

	p, findings, err = normalizeWhatWeb([]byte(lines))
	require.NoError(t, err)
	assert.Len(t, p.Data, 2)
	assert.Len(t, findings, 1)
}
