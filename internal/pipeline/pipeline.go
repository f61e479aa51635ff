package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/jonasyr/HashSmith-sub000/internal/config"
	"github.com/jonasyr/HashSmith-sub000/internal/discovery"
	"github.com/jonasyr/HashSmith-sub000/internal/hasher"
	"github.com/jonasyr/HashSmith-sub000/internal/pathutil"
	"github.com/jonasyr/HashSmith-sub000/internal/statelog"
	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

// ErrDiscoveryIntegrity signals that strict mode found too many enumeration
// failures for the aggregate to be trustworthy.
var ErrDiscoveryIntegrity = errors.New("discovery errors exceed strict-mode limit")

// strictDiscoveryErrorLimit is the tolerated share of enumeration failures
// in strict mode.
const strictDiscoveryErrorLimit = 0.01

// Summary is the final result of one run.
type Summary struct {
	Root            string
	Algorithm       string
	LogPath         string
	Discovered      int
	Skipped         int // resume-filtered
	Succeeded       int
	Failed          int
	Races           int64
	TotalBytes      int64 // bytes hashed this run
	DiscoveryErrors []models.DiscoveryError
	ByCategory      map[models.ErrorCategory]int
	Tree            *models.TreeHashResult // nil on fix-errors runs
	Elapsed         time.Duration
}

// Pipeline wires discovery, hashing, the state log, and aggregation into
// one run.
type Pipeline struct {
	cfg      *config.Config
	logger   *zap.Logger
	progress ProgressFunc
}

// New creates a pipeline.
func New(cfg *config.Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger}
}

// SetProgressCallback sets the observational progress sink.
func (p *Pipeline) SetProgressCallback(fn ProgressFunc) {
	p.progress = fn
}

// Run hashes the tree under root. The returned summary is valid even when
// err is non-nil (high error rate, strict discovery failure, cancellation);
// the state log is flushed on every exit path so a later resume is safe.
func (p *Pipeline) Run(ctx context.Context, root string) (*Summary, error) {
	rc := NewRunContext(p.cfg, p.logger)

	scanner := discovery.NewScanner(discovery.Options{
		Exclude:         p.cfg.Exclude,
		IncludeHidden:   p.cfg.IncludeHidden,
		IncludeSymlinks: p.cfg.IncludeSymlinks,
	}, p.logger)

	scan, err := scanner.Scan(ctx, root)
	if err != nil {
		return nil, err
	}

	logPath := p.logPath(scan.Root)
	summary := &Summary{
		Root:            scan.Root,
		Algorithm:       hasher.CanonicalName(p.cfg.Algorithm),
		LogPath:         logPath,
		Discovered:      len(scan.Records),
		DiscoveryErrors: scan.Errors,
		ByCategory:      make(map[models.ErrorCategory]int),
	}

	if p.cfg.Strict && len(scan.Errors) > 0 {
		// A scan yielding only enumeration errors counts as fully failed.
		rate := 1.0
		if len(scan.Records) > 0 {
			rate = float64(len(scan.Errors)) / float64(len(scan.Records))
		}
		if rate > strictDiscoveryErrorLimit {
			return summary, fmt.Errorf("%w: %d errors over %d files",
				ErrDiscoveryIntegrity, len(scan.Errors), len(scan.Records))
		}
	}

	// The state log must never hash itself.
	records := scan.Records[:0:0]
	for _, rec := range scan.Records {
		if pathutil.StripPrefix(rec.Path) == pathutil.StripPrefix(logPath) {
			continue
		}
		records = append(records, rec)
	}

	index := statelog.NewResumeIndex()
	if p.cfg.Resume || p.cfg.FixErrors {
		index, err = statelog.Parse(logPath)
		if err != nil {
			return summary, err
		}
		if index.Algorithm != "" && index.Algorithm != summary.Algorithm {
			p.logger.Warn("Log was written with a different algorithm",
				zap.String("log", index.Algorithm),
				zap.String("run", summary.Algorithm))
		}
	}

	var log *statelog.Writer
	if p.cfg.Resume || p.cfg.FixErrors {
		log, err = statelog.OpenAppend(logPath)
	} else {
		log, err = statelog.Create(logPath, summary.Algorithm, pathutil.StripPrefix(scan.Root))
	}
	if err != nil {
		return summary, err
	}
	defer log.Close()

	computer := hasher.NewComputer(hasher.Options{
		Algorithm:       p.cfg.Algorithm,
		MaxAttempts:     p.cfg.MaxAttempts,
		Timeout:         time.Duration(p.cfg.TimeoutSeconds) * time.Second,
		VerifyIntegrity: p.cfg.VerifyIntegrity || p.cfg.Strict,
		Strict:          p.cfg.Strict,
	}, rc.Breaker, p.logger)

	orch := NewOrchestrator(rc, computer, log)
	orch.SetProgress(p.progress)

	outcomes, skipped, procErr := orch.Process(ctx, scan.Root, records, index)
	summary.Skipped = skipped
	for _, outcome := range outcomes {
		if outcome.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
			summary.ByCategory[outcome.Category]++
		}
	}
	summary.Races = rc.Stats.Races.Load()
	summary.TotalBytes = rc.Stats.Bytes.Load()
	summary.Elapsed = time.Since(rc.Started)
	if procErr != nil {
		return summary, procErr
	}

	// Fix-errors runs repair records only; the tree hash and trailing
	// summary belong to full runs.
	if p.cfg.FixErrors {
		return summary, nil
	}

	tree, err := ComputeTreeHash(finalTable(outcomes, index), p.cfg.Algorithm, time.Now())
	if err != nil {
		return summary, err
	}
	summary.Tree = &tree
	summary.Elapsed = time.Since(rc.Started)

	if err := log.WriteSummary(tree, summary.Elapsed); err != nil {
		return summary, err
	}
	p.logger.Info("Run complete",
		zap.String("tree_hash", tree.Hash),
		zap.Int("files", tree.FileCount),
		zap.Int64("bytes", tree.TotalBytes),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// finalTable merges this run's outcomes over the hashes carried forward
// from the resume index, producing the per-file table the aggregate covers.
func finalTable(outcomes map[string]models.HashOutcome, index *statelog.ResumeIndex) map[string]models.HashOutcome {
	table := make(map[string]models.HashOutcome, len(outcomes)+len(index.Processed))
	for rel, rec := range index.Processed {
		table[rel] = models.HashOutcome{
			Path:                  rel,
			Success:               true,
			Hash:                  rec.Hash,
			Size:                  rec.Size,
			ModTime:               rec.ModTime,
			IsSymlink:             rec.Symlink,
			RaceConditionDetected: rec.Race,
			IntegrityVerified:     rec.Verified,
		}
	}
	for rel, outcome := range outcomes {
		table[rel] = outcome
	}
	return table
}

// logPath resolves the state log location: configured path, or
// "<root>.hashlog" next to the tree so the log never sits inside it.
func (p *Pipeline) logPath(root string) string {
	if p.cfg.LogFile != "" {
		return p.cfg.LogFile
	}
	clean := pathutil.StripPrefix(root)
	return filepath.Join(filepath.Dir(clean), filepath.Base(clean)+".hashlog")
}
