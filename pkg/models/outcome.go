package models

import (
	"time"
)

// ErrorCategory classifies a per-file hashing failure.
type ErrorCategory string

const (
	ErrCatNone               ErrorCategory = ""
	ErrCatFileNotFound       ErrorCategory = "FileNotFound"
	ErrCatDirectoryNotFound  ErrorCategory = "DirectoryNotFound"
	ErrCatAccessDenied       ErrorCategory = "AccessDenied"
	ErrCatIntegrityViolation ErrorCategory = "IntegrityViolation"
	ErrCatIO                 ErrorCategory = "IO"
	ErrCatCircuitBreakerOpen ErrorCategory = "CircuitBreakerOpen"
	ErrCatUnknown            ErrorCategory = "Unknown"
)

// Retriable reports whether a failure of this category is worth another
// attempt. Missing files, denied access, integrity violations, and an open
// circuit breaker are terminal for the file.
func (c ErrorCategory) Retriable() bool {
	switch c {
	case ErrCatIO, ErrCatUnknown:
		return true
	default:
		return false
	}
}

// ParseErrorCategory maps a category name back to its value. Unrecognized
// names fold into Unknown so old logs stay parseable.
func ParseErrorCategory(s string) ErrorCategory {
	switch ErrorCategory(s) {
	case ErrCatFileNotFound, ErrCatDirectoryNotFound, ErrCatAccessDenied,
		ErrCatIntegrityViolation, ErrCatIO, ErrCatCircuitBreakerOpen:
		return ErrorCategory(s)
	default:
		return ErrCatUnknown
	}
}

// HashOutcome is the result of hashing one file, covering the whole attempt
// series. Immutable after creation; written to the state log exactly once
// per file per run.
type HashOutcome struct {
	Path      string        // Absolute, normalized path
	Algorithm string        // Registry name of the digest used
	Success   bool          //
	Hash      string        // Lowercase hex digest, set iff Success
	Category  ErrorCategory // Failure class, set iff !Success
	Message   string        // Failure detail, set iff !Success
	Attempts  int           // Total attempts made; 0 when the breaker rejected the file unattempted
	Elapsed   time.Duration // Wall time across all attempts

	// RaceConditionDetected is set when the pre/post integrity snapshots
	// differ outside strict mode. The hash is still accepted in that case
	// even though it may not correspond to any single consistent file
	// state; callers wanting hard guarantees should run strict.
	RaceConditionDetected bool
	// IntegrityVerified is set when snapshots were taken and matched.
	IntegrityVerified bool

	Size      int64     // Size from the discovery record
	ModTime   time.Time // Modification time from the discovery record
	IsSymlink bool      //
}

// Flags returns the comma-joined flag set recorded alongside the outcome:
// S symlink, R race condition detected, I integrity verified. Empty when no
// flag applies.
func (o *HashOutcome) Flags() string {
	flags := make([]byte, 0, 5)
	if o.IsSymlink {
		flags = append(flags, 'S')
	}
	if o.RaceConditionDetected {
		if len(flags) > 0 {
			flags = append(flags, ',')
		}
		flags = append(flags, 'R')
	}
	if o.IntegrityVerified {
		if len(flags) > 0 {
			flags = append(flags, ',')
		}
		flags = append(flags, 'I')
	}
	return string(flags)
}

// TreeHashResult is the aggregate digest over every successfully hashed file
// in the tree, plus the run metadata that participated in the digest.
type TreeHashResult struct {
	Algorithm   string
	Hash        string // Lowercase hex
	FileCount   int
	TotalBytes  int64
	GeneratedAt time.Time
}
