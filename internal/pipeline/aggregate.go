package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonasyr/HashSmith-sub000/internal/hasher"
	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

// aggregateFormatVersion participates in the hashed metadata so a grammar
// change can never collide with an older digest.
const aggregateFormatVersion = 2

// ComputeTreeHash combines all successful per-file hashes into one
// deterministic, order-independent digest. Outcomes are keyed by
// root-relative slash path; entries are sorted case-insensitively by path
// (size as tie-break for path collisions across case-insensitive
// filesystems) and serialized as "path|hash|size|flags" lines, followed by
// run metadata, and the whole byte sequence is hashed with the run
// algorithm.
//
// The generation timestamp is part of the hashed metadata, so two runs over
// an identical tree yield different tree hashes. Tests and comparisons that
// need reproducibility must pin generatedAt.
func ComputeTreeHash(outcomes map[string]models.HashOutcome, algorithm string, generatedAt time.Time) (models.TreeHashResult, error) {
	type entry struct {
		rel   string
		lower string
		line  string
		size  int64
	}

	entries := make([]entry, 0, len(outcomes))
	var totalBytes int64
	for rel, outcome := range outcomes {
		if !outcome.Success {
			continue
		}
		entries = append(entries, entry{
			rel:   rel,
			lower: strings.ToLower(rel),
			line:  fmt.Sprintf("%s|%s|%d|%s", rel, outcome.Hash, outcome.Size, outcome.Flags()),
			size:  outcome.Size,
		})
		totalBytes += outcome.Size
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].lower != entries[j].lower {
			return entries[i].lower < entries[j].lower
		}
		if entries[i].size != entries[j].size {
			return entries[i].size < entries[j].size
		}
		return entries[i].rel < entries[j].rel
	})

	canonical := hasher.CanonicalName(algorithm)
	h, err := hasher.New(canonical)
	if err != nil {
		return models.TreeHashResult{}, err
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "files: %d\n", len(entries))
	fmt.Fprintf(&b, "bytes: %d\n", totalBytes)
	fmt.Fprintf(&b, "algorithm: %s\n", canonical)
	fmt.Fprintf(&b, "format: %d\n", aggregateFormatVersion)
	fmt.Fprintf(&b, "generated: %s\n", generatedAt.UTC().Format(time.RFC3339))

	h.Write([]byte(b.String()))
	return models.TreeHashResult{
		Algorithm:   canonical,
		Hash:        h.SumHex(),
		FileCount:   len(entries),
		TotalBytes:  totalBytes,
		GeneratedAt: generatedAt,
	}, nil
}
