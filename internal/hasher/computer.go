package hasher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jonasyr/HashSmith-sub000/internal/breaker"
	"github.com/jonasyr/HashSmith-sub000/internal/integrity"
	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

const (
	// readBufferSize bounds per-worker memory; files of any size stream
	// through this buffer.
	readBufferSize = 1 << 20

	backoffBase = 500 * time.Millisecond
	backoffCap  = 5 * time.Second
)

// errFileMutated marks a strict-mode pre/post snapshot mismatch.
var errFileMutated = errors.New("file changed while being read")

// Options configures a Computer.
type Options struct {
	Algorithm       string        // Registry name, e.g. "SHA256"
	MaxAttempts     int           // Attempt limit for retriable failures
	Timeout         time.Duration // Per-attempt deadline, 0 disables
	VerifyIntegrity bool          // Take pre/post snapshots
	Strict          bool          // Snapshot mismatch is terminal
}

// Computer hashes files with retry, backoff, and optional mutation
// detection. Safe for concurrent use by multiple workers; each call owns its
// hasher instance and read buffer.
type Computer struct {
	opts    Options
	breaker *breaker.CircuitBreaker
	logger  *zap.Logger

	// Test seams.
	openFile func(string) (*os.File, error)
	sleep    func(time.Duration)
}

// NewComputer creates a Computer sharing the given circuit breaker.
func NewComputer(opts Options, cb *breaker.CircuitBreaker, logger *zap.Logger) *Computer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &Computer{
		opts:     opts,
		breaker:  cb,
		logger:   logger,
		openFile: os.Open,
		sleep:    time.Sleep,
	}
}

// Hash computes the digest of one file, retrying transient failures with
// exponential backoff. The returned outcome always carries the attempt count
// and elapsed time; Hash itself never returns an error because every failure
// is a recordable per-file result.
func (c *Computer) Hash(ctx context.Context, rec models.FileRecord) models.HashOutcome {
	start := time.Now()
	outcome := models.HashOutcome{
		Path:      rec.Path,
		Algorithm: CanonicalName(c.opts.Algorithm),
		Size:      rec.Size,
		ModTime:   rec.ModTime,
		IsSymlink: rec.IsSymlink,
	}

	if c.breaker.IsOpen() {
		outcome.Category = models.ErrCatCircuitBreakerOpen
		outcome.Message = "circuit breaker open, skipping attempt"
		outcome.Elapsed = time.Since(start)
		return outcome
	}

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		outcome.Attempts = attempt

		hash, race, verified, err := c.attempt(ctx, rec)
		if err == nil {
			c.breaker.RecordSuccess()
			outcome.Success = true
			outcome.Hash = hash
			outcome.RaceConditionDetected = race
			outcome.IntegrityVerified = verified
			outcome.Elapsed = time.Since(start)
			return outcome
		}

		c.breaker.RecordFailure()
		category := c.categorize(rec.Path, err)
		outcome.Category = category
		outcome.Message = err.Error()

		if !category.Retriable() || attempt == c.opts.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			outcome.Message = fmt.Sprintf("%s (canceled before retry)", err)
			break
		}

		delay := backoffDelay(attempt)
		c.logger.Debug("Retrying after transient failure",
			zap.String("path", rec.Path),
			zap.String("category", string(category)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		c.sleep(delay)
	}

	outcome.Elapsed = time.Since(start)
	return outcome
}

// attempt performs a single hashing pass over the file. With a timeout
// configured, every blocking syscall of the pass (stat, open, reads,
// snapshots) runs in its own goroutine selected against the deadline, so a
// dead mount cannot wedge a worker. A goroutine abandoned by timeout exits
// once its pending syscall returns; it owns its file handle and hasher, so
// nothing it touches is shared.
func (c *Computer) attempt(ctx context.Context, rec models.FileRecord) (string, bool, bool, error) {
	if c.opts.Timeout <= 0 {
		return c.attemptIO(rec)
	}

	type attemptResult struct {
		hash     string
		race     bool
		verified bool
		err      error
	}
	done := make(chan attemptResult, 1)
	go func() {
		hash, race, verified, err := c.attemptIO(rec)
		done <- attemptResult{hash, race, verified, err}
	}()

	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.hash, res.race, res.verified, res.err
	case <-timer.C:
		return "", false, false, fmt.Errorf("%w after %s", errReadTimeout, c.opts.Timeout)
	case <-ctx.Done():
		return "", false, false, ctx.Err()
	}
}

// attemptIO is the blocking body of one attempt.
func (c *Computer) attemptIO(rec models.FileRecord) (hash string, race, verified bool, err error) {
	// Reachability check before opening; a vanished parent directory or a
	// dead mount surfaces here rather than mid-read.
	if _, err := os.Stat(rec.Path); err != nil {
		return "", false, false, err
	}

	var before models.IntegritySnapshot
	if c.opts.VerifyIntegrity {
		before, err = integrity.Snapshot(rec.Path)
		if err != nil {
			return "", false, false, err
		}
	}

	f, err := c.openFile(rec.Path)
	if err != nil {
		return "", false, false, err
	}
	defer f.Close()

	h, err := New(c.opts.Algorithm)
	if err != nil {
		return "", false, false, err
	}

	buf := make([]byte, readBufferSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", false, false, readErr
		}
	}

	if c.opts.VerifyIntegrity {
		after, err := integrity.Snapshot(rec.Path)
		if err != nil {
			return "", false, false, err
		}
		if !integrity.Equal(before, after) {
			if c.opts.Strict {
				return "", false, false, fmt.Errorf("%w: size %d->%d",
					errFileMutated, before.Size, after.Size)
			}
			// Best effort: the hash is accepted even though the file
			// mutated under us. The outcome flags the race so audits can
			// treat the digest as suspect.
			c.logger.Warn("File changed while being read, keeping hash",
				zap.String("path", rec.Path),
				zap.Int64("size_before", before.Size),
				zap.Int64("size_after", after.Size))
			return h.SumHex(), true, false, nil
		}
		return h.SumHex(), false, true, nil
	}

	return h.SumHex(), false, false, nil
}

// categorize maps an attempt error, promoting strict-mode mutation failures
// to their own terminal category.
func (c *Computer) categorize(path string, err error) models.ErrorCategory {
	if errors.Is(err, errFileMutated) {
		return models.ErrCatIntegrityViolation
	}
	return Classify(path, err)
}

// backoffDelay returns the exponential delay before the next attempt:
// 500ms base, doubled per attempt, capped at 5s.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase << uint(attempt-1)
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}
