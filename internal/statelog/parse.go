package statelog

import (
	"bufio"
	"fmt"
	"os"

	"github.com/jonasyr/HashSmith-sub000/internal/pathutil"
)

// ResumeIndex is the in-memory view of a prior run log: the authoritative
// record per relative path, split into successes and failures. Built once at
// startup and read-only afterward.
type ResumeIndex struct {
	Algorithm string
	Root      string
	Processed map[string]Record // last record was a success
	Failed    map[string]Record // last record was an error
	TreeHash  string            // from the trailing summary, if present
}

// NewResumeIndex returns an empty index, used for fresh runs.
func NewResumeIndex() *ResumeIndex {
	return &ResumeIndex{
		Processed: make(map[string]Record),
		Failed:    make(map[string]Record),
	}
}

// Parse reads an existing log top to bottom. Lines matching neither record
// grammar are skipped, so logs written by newer versions still resume.
// Later records supersede earlier ones for the same path: a path both failed
// and then fixed counts as processed.
func Parse(path string) (*ResumeIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	index := NewResumeIndex()
	scanner := bufio.NewScanner(f)
	// Error messages can make lines long; the default token limit is too
	// small for deep trees with long paths.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if m := headerRe.FindStringSubmatch(line); m != nil {
			index.Algorithm = m[2]
			index.Root = m[3]
			continue
		}
		if m := totalRe.FindStringSubmatch(line); m != nil {
			index.TreeHash = m[2]
			continue
		}

		rec, ok := ParseLine(line)
		if !ok {
			continue
		}
		// Older logs recorded absolute paths; rebase them onto the header
		// root so both forms resolve to the same resume key.
		if index.Root != "" {
			rec.RelPath = pathutil.ToRelative(index.Root, rec.RelPath)
		}
		if rec.Failed() {
			index.Failed[rec.RelPath] = rec
			delete(index.Processed, rec.RelPath)
		} else {
			index.Processed[rec.RelPath] = rec
			delete(index.Failed, rec.RelPath)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}
	return index, nil
}

// IsProcessed reports whether the given path (relative or absolute, with or
// without trailing separators) is already recorded as successfully hashed.
func (ix *ResumeIndex) IsProcessed(root, path string) bool {
	_, ok := ix.Processed[ix.key(root, path)]
	return ok
}

// FailedRecord returns the failure record for path, if any.
func (ix *ResumeIndex) FailedRecord(root, path string) (Record, bool) {
	rec, ok := ix.Failed[ix.key(root, path)]
	return rec, ok
}

func (ix *ResumeIndex) key(root, path string) string {
	return pathutil.ToRelative(root, path)
}
