package models

import (
	"time"
)

// FileAttributes is a bitmask of platform file attributes relevant to hashing.
type FileAttributes uint32

const (
	AttrHidden FileAttributes = 1 << iota
	AttrSystem
	AttrReparse
)

// Has reports whether all bits in mask are set.
func (a FileAttributes) Has(mask FileAttributes) bool {
	return a&mask == mask
}

// FileRecord describes one discovered file. Records are immutable and never
// hold open handles; workers re-open the path when hashing.
type FileRecord struct {
	Path       string         // Absolute, normalized path
	Size       int64          // Size in bytes at discovery time
	ModTime    time.Time      // Modification time at discovery time
	Attributes FileAttributes // Hidden/system/reparse flags
	IsSymlink  bool           // Symbolic link or reparse point
}

// IsHidden reports whether the file carried a hidden attribute at discovery.
func (f *FileRecord) IsHidden() bool {
	return f.Attributes.Has(AttrHidden)
}

// IntegritySnapshot captures the metadata used to detect concurrent
// modification of a file while it is being read. Two snapshots are equal
// iff size, modification time, and attributes all match exactly.
type IntegritySnapshot struct {
	Size       int64
	ModTime    time.Time // UTC
	Attributes FileAttributes
}

// Equal reports whether both snapshots describe the same file state.
func (s IntegritySnapshot) Equal(other IntegritySnapshot) bool {
	return s.Size == other.Size &&
		s.ModTime.Equal(other.ModTime) &&
		s.Attributes == other.Attributes
}

// DiscoveryError records a single enumeration failure. Discovery errors are
// collected per entry and never abort a scan.
type DiscoveryError struct {
	Path    string
	Message string
}
