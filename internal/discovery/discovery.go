// Package discovery streams the recursive file list under a root,
// classifying entries and isolating per-entry enumeration errors so a single
// unreadable directory never aborts the scan.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jonasyr/HashSmith-sub000/internal/integrity"
	"github.com/jonasyr/HashSmith-sub000/internal/pathutil"
	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

// ErrRootInaccessible means the scan root itself could not be opened. It is
// the only condition that fails a scan outright.
var ErrRootInaccessible = errors.New("root path inaccessible")

// Options controls what the scanner reports.
type Options struct {
	// Exclude holds glob patterns matched against both the base name and
	// the full slash-normalized path; any match excludes the entry.
	Exclude []string
	// IncludeHidden admits files with the hidden attribute.
	IncludeHidden bool
	// IncludeSymlinks admits symbolic links / reparse points into the
	// record set. They are counted either way.
	IncludeSymlinks bool
}

// Result is the complete outcome of one discovery phase.
type Result struct {
	Root       string // Normalized root the records descend from
	Records    []models.FileRecord
	Errors     []models.DiscoveryError
	Symlinks   int   // Symlinks seen (reported even when excluded)
	Hidden     int   // Hidden files skipped
	Excluded   int   // Entries removed by exclusion patterns
	Dirs       int   // Directories traversed
	TotalBytes int64 // Sum of record sizes
}

// Scanner walks a directory tree and produces FileRecords.
type Scanner struct {
	opts   Options
	logger *zap.Logger
}

// NewScanner creates a discovery scanner.
func NewScanner(opts Options, logger *zap.Logger) *Scanner {
	return &Scanner{opts: opts, logger: logger}
}

// Scan walks root recursively. Enumeration order is filesystem-native.
// Per-entry failures are collected into Result.Errors; only an unreadable
// root returns a non-nil error. Cancellation stops the walk at the next
// entry boundary and returns what was gathered so far with ctx.Err().
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	normalized, err := pathutil.Normalize(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootInaccessible, root, err)
	}

	result := &Result{Root: normalized}

	walkErr := filepath.WalkDir(normalized, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// The root reports twice when it stats but cannot be read:
			// once clean, then with the ReadDir error. Either way an
			// error on the root fails the scan outright.
			if path == normalized {
				return fmt.Errorf("%w: %s: %v", ErrRootInaccessible, path, err)
			}
			s.logger.Warn("Error accessing path", zap.String("path", path), zap.Error(err))
			result.Errors = append(result.Errors, models.DiscoveryError{
				Path:    path,
				Message: err.Error(),
			})
			return nil // keep walking
		}

		select {
		case <-ctx.Done():
			return fs.SkipAll
		default:
		}

		rel := pathutil.ToRelative(normalized, path)
		name := d.Name()

		if d.IsDir() {
			if path != normalized && s.excluded(name, rel) {
				s.logger.Debug("Skipping excluded directory", zap.String("path", rel))
				result.Excluded++
				return fs.SkipDir
			}
			result.Dirs++
			return nil
		}

		isSymlink := d.Type()&fs.ModeSymlink != 0
		if isSymlink {
			result.Symlinks++
			if !s.opts.IncludeSymlinks {
				s.logger.Debug("Skipping symlink", zap.String("path", rel))
				return nil
			}
		} else if !d.Type().IsRegular() {
			// Sockets, devices, fifos: not hashable content.
			return nil
		}

		if s.excluded(name, rel) {
			result.Excluded++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, models.DiscoveryError{
				Path:    path,
				Message: err.Error(),
			})
			return nil
		}

		attrs := integrity.Attributes(info)
		if attrs.Has(models.AttrHidden) && !s.opts.IncludeHidden {
			result.Hidden++
			return nil
		}

		result.Records = append(result.Records, models.FileRecord{
			Path:       path,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			Attributes: attrs,
			IsSymlink:  isSymlink,
		})
		result.TotalBytes += info.Size()
		return nil
	})

	if walkErr != nil {
		if errors.Is(walkErr, ErrRootInaccessible) {
			return nil, walkErr
		}
		// WalkDir only surfaces what the callback returned; anything else
		// is an isolated entry failure already recorded.
		result.Errors = append(result.Errors, models.DiscoveryError{
			Path:    normalized,
			Message: walkErr.Error(),
		})
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	s.logger.Info("Discovery complete",
		zap.String("root", normalized),
		zap.Int("files", len(result.Records)),
		zap.Int("dirs", result.Dirs),
		zap.Int("symlinks", result.Symlinks),
		zap.Int("errors", len(result.Errors)),
		zap.Int64("bytes", result.TotalBytes))
	return result, nil
}

// excluded reports whether any pattern matches the base name or full path.
func (s *Scanner) excluded(name, rel string) bool {
	for _, pattern := range s.opts.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
