package statelog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

// Writer appends records to the run log. Appends from concurrent workers are
// serialized internally, and every record is written as one complete line in
// a single write call so abrupt termination can never leave a partial line
// followed by another record.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Create starts a new log at path with a parseable header. The parent
// directory must already exist.
func Create(path, algorithm, root string) (*Writer, error) {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create log %s: %w", path, err)
	}

	w := &Writer{f: f, path: path}
	if err := w.writeLine(FormatHeader(algorithm, root, time.Now())); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// OpenAppend continues an existing log, as used by resume and fix-errors
// runs. The existing content is left untouched; new records supersede old
// ones for the same path when the log is next parsed.
func OpenAppend(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return &Writer{f: f, path: path}, nil
}

// Path returns the log file location.
func (w *Writer) Path() string { return w.path }

// Append writes one outcome under its root-relative path.
func (w *Writer) Append(relPath string, outcome models.HashOutcome) error {
	return w.writeLine(FormatLine(relPath, outcome))
}

// WriteSummary appends the trailing aggregate block: a blank separator, the
// tree hash, and the throughput line. Called once at the end of a run that
// produced a tree hash.
func (w *Writer) WriteSummary(result models.TreeHashResult, elapsed time.Duration) error {
	gb := float64(result.TotalBytes) / (1024 * 1024 * 1024)
	mbps := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		mbps = float64(result.TotalBytes) / (1024 * 1024) / secs
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	block := fmt.Sprintf("\nTotal%s = %s\n%d files checked (%d bytes, %.2f GB, %.2f MB/s).\n",
		result.Algorithm, result.Hash, result.FileCount, result.TotalBytes, gb, mbps)
	if _, err := w.f.WriteString(block); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return w.f.Sync()
}

// Sync flushes buffered data to stable storage.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Sync()
}

// Close syncs and closes the log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func (w *Writer) writeLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append to log: %w", err)
	}
	return nil
}
