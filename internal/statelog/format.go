// Package statelog maintains the append-only run log that records one
// outcome per file, drives resume and fix-errors, and carries the final
// tree-hash summary. The log is plain UTF-8 text, one record per line, so a
// partially written run remains inspectable and resumable after a crash.
package statelog

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

const (
	headerPrefix = "# HashSmith"
	// FormatVersion tags the header so future grammar changes stay
	// distinguishable.
	FormatVersion = 2

	timeLayout   = "2006-01-02 15:04:05"
	headerLayout = time.RFC3339
)

// Record is the parsed form of one log line. A record either carries a hash
// (success) or a category + message (error), never both.
type Record struct {
	RelPath  string // Slash-normalized, root-relative
	Hash     string // Lowercase hex, empty on failure
	Category models.ErrorCategory
	Message  string
	Size     int64
	ModTime  time.Time
	Symlink  bool
	Race     bool
	Verified bool
}

// Failed reports whether this record describes a hashing failure.
func (r Record) Failed() bool { return r.Hash == "" }

// Line grammars. The path segment is non-greedy so paths containing " = "
// cannot swallow the digest; the digest length range covers md5 through
// sha512.
var (
	successRe = regexp.MustCompile(
		`^(.+?) = ([0-9a-f]{32,128}), size: (\d+), modified: (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})(?:, \[([SRI,]+)\])?$`)
	errorRe = regexp.MustCompile(
		`^(.+?) = ERROR\(([A-Za-z]+)\): (.*?), size: (\d+), modified: (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})(?:, \[([SRI,]+)\])?$`)
	headerRe = regexp.MustCompile(
		`^# HashSmith v(\d+) \| algorithm: (\S+) \| root: (.+) \| generated: (\S+)$`)
	totalRe = regexp.MustCompile(`^Total(\S+) = ([0-9a-f]+)$`)
)

// FormatHeader renders the parseable header comment line.
func FormatHeader(algorithm, root string, generated time.Time) string {
	return fmt.Sprintf("%s v%d | algorithm: %s | root: %s | generated: %s",
		headerPrefix, FormatVersion, algorithm, root, generated.UTC().Format(headerLayout))
}

// FormatLine renders one outcome as a log line (without newline). The path
// is written with native separators; parsing normalizes it back.
func FormatLine(relPath string, outcome models.HashOutcome) string {
	var b strings.Builder
	b.WriteString(filepath.FromSlash(relPath))
	b.WriteString(" = ")
	if outcome.Success {
		b.WriteString(outcome.Hash)
	} else {
		fmt.Fprintf(&b, "ERROR(%s): %s", outcome.Category, sanitizeMessage(outcome.Message))
	}
	fmt.Fprintf(&b, ", size: %d, modified: %s",
		outcome.Size, outcome.ModTime.UTC().Format(timeLayout))
	if flags := outcome.Flags(); flags != "" {
		fmt.Fprintf(&b, ", [%s]", flags)
	}
	return b.String()
}

// ParseLine parses one log line. The second return value is false for lines
// that match no record grammar (header, summary, blank, or future shapes);
// such lines are skipped by Parse for forward compatibility.
func ParseLine(line string) (Record, bool) {
	if m := successRe.FindStringSubmatch(line); m != nil {
		size, _ := strconv.ParseInt(m[3], 10, 64)
		mod, _ := time.ParseInLocation(timeLayout, m[4], time.UTC)
		rec := Record{
			RelPath: normalizeKey(m[1]),
			Hash:    m[2],
			Size:    size,
			ModTime: mod,
		}
		applyFlags(&rec, m[5])
		return rec, true
	}
	if m := errorRe.FindStringSubmatch(line); m != nil {
		size, _ := strconv.ParseInt(m[4], 10, 64)
		mod, _ := time.ParseInLocation(timeLayout, m[5], time.UTC)
		rec := Record{
			RelPath:  normalizeKey(m[1]),
			Category: models.ParseErrorCategory(m[2]),
			Message:  m[3],
			Size:     size,
			ModTime:  mod,
		}
		applyFlags(&rec, m[6])
		return rec, true
	}
	return Record{}, false
}

func applyFlags(rec *Record, flags string) {
	for _, f := range strings.Split(flags, ",") {
		switch f {
		case "S":
			rec.Symlink = true
		case "R":
			rec.Race = true
		case "I":
			rec.Verified = true
		}
	}
}

// sanitizeMessage keeps error lines on one line.
func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.ReplaceAll(msg, "\r", " ")
}

// normalizeKey converts a logged path to the slash-normalized resume key.
func normalizeKey(path string) string {
	return strings.TrimRight(strings.ReplaceAll(path, `\`, "/"), "/")
}
