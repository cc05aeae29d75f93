//go:build unix

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/webscan/internal/config"
	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

// execute runs the root command against a missing config file so only the
// environment shapes the configuration.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	scanEngines, scanStore, scanSequential, historyLimit = "", "", false, 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--log-level", "error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fakeEngine(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestScanCommand_MemoryStore(t *testing.T) {
	t.Setenv("NIKTO_PATH", fakeEngine(t, `echo '{"vulnerabilities":[{"method":"GET","url":"/admin","msg":"Admin page found"}]}'`))

	out, err := execute(t, "scan", "https://example.com", "--engines", "nikto", "--store", "memory")
	require.NoError(t, err)

	var rec struct {
		RunID   string `json:"run_id"`
		Target  string `json:"target"`
		Engines map[string]struct {
			Status   string `json:"status"`
			Findings []any  `json:"findings"`
		} `json:"engines"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, "https://example.com", rec.Target)
	require.Len(t, rec.Engines, 1)
	assert.Equal(t, "ok", rec.Engines["nikto"].Status)
	assert.Len(t, rec.Engines["nikto"].Findings, 1)
}

func TestScanCommand_RejectsBadInput(t *testing.T) {
	_, err := execute(t, "scan", "ftp://example.com", "--store", "memory")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = execute(t, "scan", "https://example.com", "--engines", "burp", "--store", "memory")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEnginesCommand(t *testing.T) {
	t.Setenv("NMAP_PATH", fakeEngine(t, "exit 0"))
	t.Setenv("ZAP_PATH", filepath.Join(t.TempDir(), "missing"))

	out, err := execute(t, "engines")
	require.NoError(t, err)
	assert.Contains(t, out, "nmap")
	assert.Regexp(t, `nmap\s+timeout=\S+\s+ok`, out)
	assert.Regexp(t, `zap\s+timeout=\S+\s+zap: `, out)
}

func TestSelectEngines(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scan.Engines = []config.EngineConfig{{Name: "nmap", Path: "/opt/nmap", Timeout: 42}}
	cfg.Scan.DefaultTimeout = 7

	got, err := selectEngines(cfg, "whatweb, nmap,whatweb")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.EngineConfig{Name: domain.EngineWhatWeb, Timeout: 7}, got[0])
	assert.Equal(t, "/opt/nmap", got[1].Path)
	assert.EqualValues(t, 42, got[1].Timeout)

	_, err = selectEngines(cfg, " , ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewApp_EngineCheckers(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	cfg.Scan.Engines = []config.EngineConfig{{Name: "whatweb", Path: filepath.Join(t.TempDir(), "missing")}}

	a, err := newApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer a.Close(context.Background())

	checks := a.engineCheckers()
	require.Contains(t, checks, "engine:whatweb")
	assert.Error(t, checks["engine:whatweb"].Check(context.Background()))
	assert.NoError(t, a.store.Ping(context.Background()))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryApp(t *testing.T, engines ...config.EngineConfig) (*app, *config.Config) {
	t.Helper()
	t.Setenv("DB_DRIVER", "memory")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	cfg.Scan.Engines = engines

	a, err := newApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a, cfg
}

func TestRunScan_CancelKillsEnginesAndPersistsNothing(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "pid")
	bin := fakeEngine(t, `echo $$ > "`+pidFile+`"; exec sleep 30`)
	a, cfg := memoryApp(t, config.EngineConfig{Name: "nikto", Path: bin})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			if b, err := os.ReadFile(pidFile); err == nil && len(b) > 0 {
				cancel()
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	start := time.Now()
	rec, err := runScan(ctx, a, cfg, "https://example.com", "nikto")
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Nil(t, rec)
	assert.Less(t, time.Since(start), 20*time.Second)

	_, err = a.store.Latest(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	require.NoError(t, err)
	assert.Error(t, syscall.Kill(pid, 0), "engine process still alive")
}

func TestRunScan_SubsetIsReadBack(t *testing.T) {
	bin := fakeEngine(t, `echo '{"vulnerabilities":[]}'`)
	a, cfg := memoryApp(t, config.EngineConfig{Name: "nikto", Path: bin})

	rec, err := runScan(context.Background(), a, cfg, "https://example.com", "nikto")
	require.NoError(t, err)

	stored, err := a.store.Get(context.Background(), rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, stored, rec)
}
