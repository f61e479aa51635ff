package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/jonasyr/HashSmith-sub000/internal/config"
	"github.com/jonasyr/HashSmith-sub000/internal/hasher"
	"github.com/jonasyr/HashSmith-sub000/internal/pathutil"
	"github.com/jonasyr/HashSmith-sub000/internal/statelog"
	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

// ErrHighErrorRate signals that processing was halted because more than half
// of the attempted files failed after a minimum sample, so the aggregate
// hash would be garbage.
var ErrHighErrorRate = errors.New("error rate exceeded 50%, aborting run")

// Workload-shape thresholds for chunk planning.
const (
	largeFileBytes     = 100 << 20 // a "very large" file
	smallFileBytes     = 1 << 20   // a "small" file
	largeHeavyFraction = 0.3       // large-file share that narrows chunks
	smallHeavyFraction = 0.8       // small-file share that widens chunks

	// errorRateMinSample is how many attempts accrue before the error-rate
	// guard may fire.
	errorRateMinSample = 100
)

// ProgressFunc receives periodic counters; purely observational.
type ProgressFunc func(processed, total int64, bytes, errorCount int64)

// Orchestrator partitions pending files into workload-shaped chunks and
// dispatches each chunk across a bounded worker pool. Chunks run
// sequentially; the log is flushed between them, bounding memory and giving
// resume a natural checkpoint.
type Orchestrator struct {
	rc       *RunContext
	computer *hasher.Computer
	log      *statelog.Writer
	progress ProgressFunc
}

// NewOrchestrator creates an orchestrator writing outcomes to log.
func NewOrchestrator(rc *RunContext, computer *hasher.Computer, log *statelog.Writer) *Orchestrator {
	return &Orchestrator{rc: rc, computer: computer, log: log}
}

// SetProgress sets the progress callback.
func (o *Orchestrator) SetProgress(fn ProgressFunc) {
	o.progress = fn
}

// Process hashes every pending file and returns outcomes keyed by
// root-relative path, plus the count of files skipped via the resume index.
// Already-successful files are filtered out before chunking and are never
// re-hashed. Cancellation stops dispatch at chunk and file boundaries and
// returns ctx.Err() with the outcomes gathered so far.
func (o *Orchestrator) Process(ctx context.Context, root string, records []models.FileRecord, index *statelog.ResumeIndex) (map[string]models.HashOutcome, int, error) {
	pending, skipped := o.selectPending(root, records, index)
	outcomes := make(map[string]models.HashOutcome, len(pending))
	if len(pending) == 0 {
		return outcomes, skipped, nil
	}

	chunkSize, workers := planChunks(pending, o.rc.Cfg)
	o.rc.Logger.Info("Processing plan",
		zap.Int("pending", len(pending)),
		zap.Int("skipped", skipped),
		zap.Int("chunk_size", chunkSize),
		zap.Int("workers", workers))

	total := int64(len(pending))
	var attempted, failed int64

	for start := 0; start < len(pending); start += chunkSize {
		if err := ctx.Err(); err != nil {
			o.log.Sync()
			return outcomes, skipped, err
		}

		end := start + chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		chunkFailed, err := o.processChunk(ctx, root, pending[start:end], total, outcomes)
		attempted += int64(end - start)
		failed += chunkFailed
		if err != nil {
			o.log.Sync()
			return outcomes, skipped, err
		}

		// Chunk boundary checkpoint: flush appends, then apply the
		// error-rate guard.
		if err := o.log.Sync(); err != nil {
			return outcomes, skipped, err
		}
		if attempted >= errorRateMinSample && failed*2 > attempted {
			o.rc.Logger.Error("Run aborted on error rate",
				zap.Int64("attempted", attempted),
				zap.Int64("failed", failed))
			return outcomes, skipped, ErrHighErrorRate
		}
	}

	return outcomes, skipped, nil
}

// processChunk runs one chunk through the worker pool and returns its
// failure count.
func (o *Orchestrator) processChunk(ctx context.Context, root string, chunk []models.FileRecord, total int64, outcomes map[string]models.HashOutcome) (int64, error) {
	workers := chunkWorkers(chunk, o.rc.Cfg)

	fileChan := make(chan models.FileRecord, workers)
	resultChan := make(chan models.HashOutcome, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range fileChan {
				resultChan <- o.computer.Hash(ctx, rec)
			}
		}()
	}

	var collectWg sync.WaitGroup
	var failed int64
	var appendErr error
	collectWg.Add(1)
	go func() {
		defer collectWg.Done()
		for outcome := range resultChan {
			rel := pathutil.ToRelative(root, outcome.Path)
			if err := o.log.Append(rel, outcome); err != nil && appendErr == nil {
				appendErr = err
			}
			outcomes[rel] = outcome

			o.rc.Stats.Files.Add(1)
			if outcome.Success {
				o.rc.Stats.Bytes.Add(outcome.Size)
			} else {
				failed++
				o.rc.Stats.Errors.Add(1)
			}
			if outcome.RaceConditionDetected {
				o.rc.Stats.Races.Add(1)
			}

			if o.progress != nil {
				files, bytes, errorCount := o.rc.Stats.Snapshot()
				o.progress(files, total, bytes, errorCount)
			}
		}
	}()

feed:
	for _, rec := range chunk {
		select {
		case <-ctx.Done():
			break feed
		case fileChan <- rec:
		}
	}
	close(fileChan)
	wg.Wait()
	close(resultChan)
	collectWg.Wait()

	return failed, appendErr
}

// selectPending applies resume and fix-errors filtering.
func (o *Orchestrator) selectPending(root string, records []models.FileRecord, index *statelog.ResumeIndex) ([]models.FileRecord, int) {
	if o.rc.Cfg.FixErrors {
		return o.selectFailed(root, records, index), 0
	}

	pending := make([]models.FileRecord, 0, len(records))
	skipped := 0
	for _, rec := range records {
		if index.IsProcessed(root, rec.Path) {
			skipped++
			continue
		}
		pending = append(pending, rec)
	}
	return pending, skipped
}

// selectFailed narrows the run to previously failed paths that still exist.
// Vanished failures are dropped with a warning, never re-attempted.
func (o *Orchestrator) selectFailed(root string, records []models.FileRecord, index *statelog.ResumeIndex) []models.FileRecord {
	discovered := make(map[string]models.FileRecord, len(records))
	for _, rec := range records {
		discovered[pathutil.ToRelative(root, rec.Path)] = rec
	}

	pending := make([]models.FileRecord, 0, len(index.Failed))
	for rel := range index.Failed {
		if rec, ok := discovered[rel]; ok {
			pending = append(pending, rec)
			continue
		}
		abs := filepath.Join(pathutil.StripPrefix(root), filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil {
			o.rc.Logger.Warn("Previously failed file no longer exists, dropping",
				zap.String("path", rel), zap.Error(err))
			continue
		}
		pending = append(pending, models.FileRecord{
			Path:    abs,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return pending
}

// planChunks sizes chunks and the worker ceiling to the workload shape:
// wide chunks for trees of many small files, narrow chunks and fewer
// workers when very large files dominate, so disk I/O is not oversubscribed.
func planChunks(pending []models.FileRecord, cfg *config.Config) (chunkSize, workers int) {
	chunkSize = cfg.BaseChunkSize
	workers = cfg.Workers

	var large, small int
	for _, rec := range pending {
		switch {
		case rec.Size >= largeFileBytes:
			large++
		case rec.Size < smallFileBytes:
			small++
		}
	}

	n := float64(len(pending))
	switch {
	case float64(large)/n > largeHeavyFraction:
		chunkSize /= 2
		workers /= 2
	case float64(small)/n > smallHeavyFraction:
		chunkSize *= 2
	}

	if chunkSize < cfg.MinChunkSize {
		chunkSize = cfg.MinChunkSize
	}
	if chunkSize > cfg.MaxChunkSize {
		chunkSize = cfg.MaxChunkSize
	}
	if workers < 1 {
		workers = 1
	}
	return chunkSize, workers
}

// chunkWorkers bounds pool size for one chunk.
func chunkWorkers(chunk []models.FileRecord, cfg *config.Config) int {
	_, workers := planChunks(chunk, cfg)
	if workers > len(chunk) {
		workers = len(chunk)
	}
	return workers
}
