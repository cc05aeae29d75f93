//go:build unix

package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

const target = domain.Target("https://example.com/login")

// script writes an executable shell script standing in for an engine binary.
func script(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestRunner(t *testing.T) *Runner {
	return NewRunner(t.TempDir(), nil)
}

func TestRun_StdoutJSON(t *testing.T) {
	bin := script(t, `echo '{"host":"example.com","vulnerabilities":[{"method":"GET","url":"/admin","msg":"Admin page found"}]}'`)

	res := newTestRunner(t).Run(context.Background(), target, domain.EngineConfig{Name: domain.EngineNikto, Path: bin})

	o := res.Outcome
	require.Equal(t, domain.StatusOK, o.Status, o.ErrorDetail)
	assert.Equal(t, domain.EngineNikto, o.Engine)
	assert.Equal(t, domain.FormatJSON, o.Format)
	assert.False(t, o.Degraded())
	require.Len(t, o.Findings, 1)
	assert.Equal(t, "Admin page found", o.Findings[0].Title)
	assert.Equal(t, 1, o.Counts.Medium)
	assert.NotEmpty(t, res.Raw)
}

func TestRun_ArtifactFile(t *testing.T) {
	// zap argv: -cmd -quickurl URL -quickout FILE
	bin := script(t, `echo '{"site":[{"@name":"'"$3"'","alerts":[{"alert":"XSS","riskcode":"3"}]}]}' > "$5"`)

	res := newTestRunner(t).Run(context.Background(), target, domain.EngineConfig{Name: domain.EngineZAP, Path: bin})

	o := res.Outcome
	require.Equal(t, domain.StatusOK, o.Status, o.ErrorDetail)
	require.Len(t, o.Findings, 1)
	assert.Equal(t, domain.SeverityHigh, o.Findings[0].Severity)
	assert.Equal(t, string(target), o.Findings[0].Location)
}

func TestRun_MissingArtifact(t *testing.T) {
	bin := script(t, `exit 0`)

	res := newTestRunner(t).Run(context.Background(), target, domain.EngineConfig{Name: domain.EngineWapiti, Path: bin})

	assert.Equal(t, domain.StatusError, res.Outcome.Status)
	assert.Equal(t, "wapiti: report file not produced", res.Outcome.ErrorDetail)
	assert.Nil(t, res.Outcome.Payload)
}

func TestRun_NonZeroExit(t *testing.T) {
	bin := script(t, `echo "connection refused" >&2; exit 1`)

	res := newTestRunner(t).Run(context.Background(), target, domain.EngineConfig{Name: domain.EngineNikto, Path: bin})

	o := res.Outcome
	assert.Equal(t, domain.StatusError, o.Status)
	assert.Equal(t, "nikto: exit status 1: connection refused", o.ErrorDetail)
	assert.Nil(t, o.Payload)
	assert.Nil(t, o.Findings)
	assert.NoError(t, o.Validate())
}

func TestRun_AcceptedExitCode(t *testing.T) {
	bin := script(t, `echo '[]'; exit 1`)

	res := newTestRunner(t).Run(context.Background(), target, domain.EngineConfig{
		Name: domain.EngineNikto, Path: bin, OKExitCodes: []int{0, 1},
	})

	assert.Equal(t, domain.StatusOK, res.Outcome.Status, res.Outcome.ErrorDetail)
}

func TestRun_MissingBinary(t *testing.T) {
	res := newTestRunner(t).Run(context.Background(), target, domain.EngineConfig{
		Name: domain.EngineNmap, Path: filepath.Join(t.TempDir(), "nope"),
	})

	assert.Equal(t, domain.StatusError, res.Outcome.Status)
	assert.Contains(t, res.Outcome.ErrorDetail, "nmap: start ")
}

func TestRun_Timeout(t *testing.T) {
	bin := script(t, `sleep 30`)

	start := time.Now()
	res := newTestRunner(t).Run(context.Background(), target, domain.EngineConfig{
		Name: domain.EngineWhatWeb, Path: bin, Timeout: 200 * time.Millisecond,
	})

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, domain.StatusError, res.Outcome.Status)
	assert.Equal(t, "whatweb: timed out after 200ms", res.Outcome.ErrorDetail)
}

func TestRun_Cancelled(t *testing.T) {
	bin := script(t, `sleep 30`)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := newTestRunner(t).Run(ctx, target, domain.EngineConfig{Name: domain.EngineWhatWeb, Path: bin})

	assert.Equal(t, domain.StatusError, res.Outcome.Status)
	assert.Equal(t, "whatweb: cancelled", res.Outcome.ErrorDetail)
}

func TestRun_EmptyOutput(t *testing.T) {
	bin := script(t, `exit 0`)

	res := newTestRunner(t).Run(context.Background(), target, domain.EngineConfig{Name: domain.EngineWhatWeb, Path: bin})

	o := res.Outcome
	require.Equal(t, domain.StatusOK, o.Status)
	assert.Equal(t, domain.EmptyPayload(), *o.Payload)
	assert.Zero(t, o.Counts.Total)
}

func TestRun_UnparseableOutputDegrades(t *testing.T) {
	bin := script(t, `echo "- Nikto v2.5.0 --- not json"`)

	res := newTestRunner(t).Run(context.Background(), target, domain.EngineConfig{Name: domain.EngineNikto, Path: bin})

	o := res.Outcome
	require.Equal(t, domain.StatusOK, o.Status)
	assert.True(t, o.Degraded())
	assert.Contains(t, o.Payload.Raw, "not json")
	assert.Nil(t, o.Findings)
}

func TestRun_NmapReceivesHost(t *testing.T) {
	// argv: -sV --script vuln HOST -oX -
	bin := script(t, `echo "<nmaprun><host><address addr=\"$4\" addrtype=\"ipv4\"/></host></nmaprun>"`)

	res := newTestRunner(t).Run(context.Background(), target, domain.EngineConfig{Name: domain.EngineNmap, Path: bin})

	o := res.Outcome
	require.Equal(t, domain.StatusOK, o.Status, o.ErrorDetail)
	data := o.Payload.Data.(map[string]any)
	hosts := data["hosts"].([]any)
	require.Len(t, hosts, 1)
	assert.Equal(t, "example.com", hosts[0].(map[string]any)["address"])
}

func TestRun_OptionLikeHostNeverSpawns(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "spawned")
	bin := script(t, `touch "`+marker+`"; echo "<nmaprun/>"`)

	for _, tgt := range []domain.Target{"http://--script=broadcast/", "http://-onpwned/", "http://-il/"} {
		res := newTestRunner(t).Run(context.Background(), tgt, domain.EngineConfig{Name: domain.EngineNmap, Path: bin})

		assert.Equal(t, domain.StatusError, res.Outcome.Status, tgt)
		assert.Contains(t, res.Outcome.ErrorDetail, "nmap: ", tgt)
		assert.Empty(t, tgt.Host(), tgt)
	}
	assert.NoFileExists(t, marker)
}

func TestCommand_DockerWrap(t *testing.T) {
	r := &Runner{Docker: "podman"}
	spec, _ := lookup(domain.EngineWapiti)

	name, args := r.command(domain.EngineConfig{Name: domain.EngineWapiti, Image: "cyberwatch/wapiti", Args: []string{"--flush-session"}},
		spec, target, "/tmp/w", "/tmp/w/report.json")

	assert.Equal(t, "podman", name)
	assert.Equal(t, []string{
		"run", "--rm", "-v", "/tmp/w:/tmp/w", "cyberwatch/wapiti", "wapiti",
		"-u", string(target), "-f", "json", "-o", "/tmp/w/report.json", "--flush-session",
	}, args)
}

func TestCheck(t *testing.T) {
	r := newTestRunner(t)
	assert.NoError(t, r.Check(domain.EngineConfig{Name: domain.EngineNikto, Path: script(t, "exit 0")}))
	assert.Error(t, r.Check(domain.EngineConfig{Name: domain.EngineNikto, Path: filepath.Join(t.TempDir(), "missing")}))
	assert.Error(t, r.Check(domain.EngineConfig{Name: "sqlmap"}))
}

func TestTailOf(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	got := tailOf(string(long))
	assert.Len(t, got, stderrTail+3)
	assert.Equal(t, "a b c", tailOf("  a\n b\t\tc \n"))
}
