package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

const (
	stderrTail = 400
	waitDelay  = 3 * time.Second
)

// Runner executes scanning engines as child processes, either directly or
// through `docker run` when the engine config names an image.
type Runner struct {
	// TempDir hosts per-run work directories for engines that write report files.
	TempDir string
	// Docker is the container CLI used for image-based engines.
	Docker string
	Logger *slog.Logger
}

func NewRunner(tempDir string, logger *slog.Logger) *Runner {
	return &Runner{TempDir: tempDir, Docker: "docker", Logger: logger}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run spawns exactly one process for the engine and converts whatever it
// produced into an outcome. It never returns an error.
func (r *Runner) Run(ctx context.Context, target domain.Target, cfg domain.EngineConfig) domain.RunResult {
	start := time.Now()

	spec, ok := lookup(cfg.Name)
	if !ok {
		return failed(cfg.Name, domain.FormatText, start, "unsupported engine")
	}
	// targets end up in argv
	if err := target.Validate(); err != nil {
		return failed(cfg.Name, spec.format, start, err.Error())
	}

	timeout := cfg.EffectiveTimeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var workDir, artifact string
	if spec.artifact {
		dir, err := os.MkdirTemp(r.TempDir, string(cfg.Name)+"-*")
		if err != nil {
			return failed(cfg.Name, spec.format, start, fmt.Sprintf("prepare work dir: %v", err))
		}
		defer os.RemoveAll(dir)
		workDir = dir
		artifact = filepath.Join(dir, "report."+string(spec.format))
	}

	name, args := r.command(cfg, spec, target, workDir, artifact)
	cmd := exec.CommandContext(runCtx, name, args...)
	configureProcess(cmd)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger().Debug("engine started", "engine", cfg.Name, "target", target, "command", name)
	err := cmd.Run()

	if err != nil {
		switch {
		case ctx.Err() != nil:
			return failed(cfg.Name, spec.format, start, "cancelled")
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return failed(cfg.Name, spec.format, start, fmt.Sprintf("timed out after %s", timeout))
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return failed(cfg.Name, spec.format, start, fmt.Sprintf("start %s: %v", name, err))
		}
		if !cfg.AcceptsExit(exitErr.ExitCode()) {
			detail := fmt.Sprintf("exit status %d", exitErr.ExitCode())
			if tail := tailOf(stderr.String()); tail != "" {
				detail += ": " + tail
			}
			return failed(cfg.Name, spec.format, start, detail)
		}
	}

	out := stdout.Bytes()
	if spec.artifact {
		data, err := os.ReadFile(artifact)
		if errors.Is(err, fs.ErrNotExist) {
			return failed(cfg.Name, spec.format, start, "report file not produced")
		}
		if err != nil {
			return failed(cfg.Name, spec.format, start, fmt.Sprintf("read report: %v", err))
		}
		out = data
	}

	payload, findings := normalize(spec, out)
	if payload.Degraded() {
		r.logger().Warn("engine output not parseable, keeping raw text",
			"engine", cfg.Name, "format", spec.format, "bytes", len(out))
	}

	outcome := domain.OK(cfg.Name, spec.format, payload, findings)
	outcome.DurationMS = time.Since(start).Milliseconds()
	return domain.RunResult{Outcome: outcome, Raw: out, RawFormat: string(spec.format)}
}

// command builds argv, wrapping it in `docker run` when an image is configured.
// The work dir is mounted at the same path so artifact paths stay valid.
func (r *Runner) command(cfg domain.EngineConfig, spec engineSpec, target domain.Target, workDir, artifact string) (string, []string) {
	binary := cfg.Path
	if binary == "" {
		binary = spec.binary
	}
	argv := append(spec.args(target, artifact), cfg.Args...)
	if cfg.Image == "" {
		return binary, argv
	}

	docker := r.Docker
	if docker == "" {
		docker = "docker"
	}
	wrapped := []string{"run", "--rm"}
	if workDir != "" {
		wrapped = append(wrapped, "-v", fmt.Sprintf("%s:%s", workDir, workDir))
	}
	wrapped = append(wrapped, cfg.Image, binary)
	return docker, append(wrapped, argv...)
}

// Check reports whether the binary an engine needs can be found.
func (r *Runner) Check(cfg domain.EngineConfig) error {
	spec, ok := lookup(cfg.Name)
	if !ok {
		return fmt.Errorf("unsupported engine %q", cfg.Name)
	}
	binary := cfg.Path
	if binary == "" {
		binary = spec.binary
	}
	if cfg.Image != "" {
		binary = r.Docker
		if binary == "" {
			binary = "docker"
		}
	}
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("%s: %w", cfg.Name, err)
	}
	return nil
}

func failed(engine domain.Engine, format domain.Format, start time.Time, detail string) domain.RunResult {
	o := domain.Failed(engine, format, detail)
	o.DurationMS = time.Since(start).Milliseconds()
	return domain.RunResult{Outcome: o}
}

func tailOf(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return strings.ToValidUTF8(strings.Join(strings.Fields(s), " "), "")
}
