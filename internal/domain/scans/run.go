package scans

import (
	"slices"
	"time"
)

// DefaultEngineTimeout bounds an engine when its config sets none.
const DefaultEngineTimeout = 10 * time.Minute

// EngineConfig untuk Runner
type EngineConfig struct {
	Name        Engine
	Path        string   // binary; empty means the engine's conventional name
	Image       string   // when set the engine runs inside this container image
	Args        []string // extra flags appended to the engine's argv
	Timeout     time.Duration
	OKExitCodes []int
}

// AcceptsExit reports whether code counts as a successful run.
func (c EngineConfig) AcceptsExit(code int) bool {
	if len(c.OKExitCodes) == 0 {
		return code == 0
	}
	return slices.Contains(c.OKExitCodes, code)
}

// EffectiveTimeout never returns zero: every engine run is bounded.
func (c EngineConfig) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultEngineTimeout
	}
	return c.Timeout
}

// RunResult hasil dari Runner. Raw is the captured output; it is archived
// but never persisted inside the record.
type RunResult struct {
	Outcome   EngineOutcome
	Raw       []byte
	RawFormat string
}
