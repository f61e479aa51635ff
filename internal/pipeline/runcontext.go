// Package pipeline drives a hashing run end to end: discovery, chunked
// concurrent hashing, state-log appends, and the final aggregate tree hash.
package pipeline

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jonasyr/HashSmith-sub000/internal/breaker"
	"github.com/jonasyr/HashSmith-sub000/internal/config"
)

// Stats holds the shared run counters. Workers update them atomically; the
// progress sink reads snapshots without locking.
type Stats struct {
	Files  atomic.Int64 // files attempted this run
	Bytes  atomic.Int64 // bytes hashed this run
	Errors atomic.Int64 // files that ended in failure
	Races  atomic.Int64 // race conditions detected
}

// Snapshot returns a consistent-enough view for display purposes.
func (s *Stats) Snapshot() (files, bytes, errors int64) {
	return s.Files.Load(), s.Bytes.Load(), s.Errors.Load()
}

// RunContext carries everything shared across the run: configuration, the
// run counters, and the circuit breaker guarding file access. It is passed
// explicitly to every component so the pipeline has no hidden global state.
type RunContext struct {
	Cfg     *config.Config
	Logger  *zap.Logger
	Breaker *breaker.CircuitBreaker
	Stats   Stats
	Started time.Time
}

// NewRunContext wires a run context from configuration.
func NewRunContext(cfg *config.Config, logger *zap.Logger) *RunContext {
	return &RunContext{
		Cfg:    cfg,
		Logger: logger,
		Breaker: breaker.New(cfg.BreakerThreshold,
			time.Duration(cfg.BreakerCooldownSeconds)*time.Second),
		Started: time.Now(),
	}
}
