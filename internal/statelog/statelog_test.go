package statelog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

var testModTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func successOutcome(hash string) models.HashOutcome {
	return models.HashOutcome{
		Algorithm: "SHA256",
		Success:   true,
		Hash:      hash,
		Attempts:  1,
		Size:      1234,
		ModTime:   testModTime,
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	const hash = "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4"

	tests := []struct {
		name    string
		relPath string
		outcome models.HashOutcome
	}{
		{"plain success", "a.txt", successOutcome(hash)},
		{"nested path", "c/d e/file name.txt", successOutcome(hash)},
		{"path with equals", "weird = name.txt", successOutcome(hash)},
		{"symlink flag", "link.txt", func() models.HashOutcome {
			o := successOutcome(hash)
			o.IsSymlink = true
			return o
		}()},
		{"race flag", "raced.txt", func() models.HashOutcome {
			o := successOutcome(hash)
			o.RaceConditionDetected = true
			return o
		}()},
		{"all flags", "all.txt", func() models.HashOutcome {
			o := successOutcome(hash)
			o.IsSymlink = true
			o.RaceConditionDetected = true
			o.IntegrityVerified = true
			return o
		}()},
		{"io error", "bad.txt", models.HashOutcome{
			Algorithm: "SHA256",
			Category:  models.ErrCatIO,
			Message:   "read timed out after 30s",
			Attempts:  3,
			Size:      99,
			ModTime:   testModTime,
		}},
		{"access denied", "locked.txt", models.HashOutcome{
			Algorithm: "SHA256",
			Category:  models.ErrCatAccessDenied,
			Message:   "open locked.txt: permission denied",
			Attempts:  1,
			ModTime:   testModTime,
		}},
		{"message mimicking the record suffix", "trap.txt", models.HashOutcome{
			Algorithm: "SHA256",
			Category:  models.ErrCatUnknown,
			Message:   "remote said: , size: 3, modified: 2020-01-01 00:00:00",
			Attempts:  1,
			Size:      7,
			ModTime:   testModTime,
		}},
		{"message mimicking suffix and flags", "trap2.txt", models.HashOutcome{
			Algorithm: "SHA256",
			Category:  models.ErrCatIO,
			Message:   "boom, size: 1, modified: 2020-01-01 00:00:00, [S]",
			Attempts:  3,
			Size:      42,
			ModTime:   testModTime,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := FormatLine(tt.relPath, tt.outcome)
			rec, ok := ParseLine(line)
			if !ok {
				t.Fatalf("ParseLine(%q) did not match", line)
			}
			if rec.RelPath != tt.relPath {
				t.Errorf("RelPath = %q, want %q", rec.RelPath, tt.relPath)
			}
			if rec.Hash != tt.outcome.Hash {
				t.Errorf("Hash = %q, want %q", rec.Hash, tt.outcome.Hash)
			}
			if !tt.outcome.Success {
				if rec.Category != tt.outcome.Category {
					t.Errorf("Category = %s, want %s", rec.Category, tt.outcome.Category)
				}
				if rec.Message != tt.outcome.Message {
					t.Errorf("Message = %q, want %q", rec.Message, tt.outcome.Message)
				}
			}
			if rec.Size != tt.outcome.Size {
				t.Errorf("Size = %d, want %d", rec.Size, tt.outcome.Size)
			}
			if !rec.ModTime.Equal(tt.outcome.ModTime) {
				t.Errorf("ModTime = %v, want %v", rec.ModTime, tt.outcome.ModTime)
			}
			if rec.Symlink != tt.outcome.IsSymlink ||
				rec.Race != tt.outcome.RaceConditionDetected ||
				rec.Verified != tt.outcome.IntegrityVerified {
				t.Errorf("flags = S:%v R:%v I:%v, want S:%v R:%v I:%v",
					rec.Symlink, rec.Race, rec.Verified,
					tt.outcome.IsSymlink, tt.outcome.RaceConditionDetected, tt.outcome.IntegrityVerified)
			}
		})
	}
}

func TestParseLineRejectsOtherShapes(t *testing.T) {
	lines := []string{
		"",
		"# HashSmith v2 | algorithm: SHA256 | root: /x | generated: 2024-03-15T10:30:00Z",
		"TotalSHA256 = abc123",
		"3 files checked (7 bytes, 0.00 GB, 1.00 MB/s).",
		"random garbage line",
	}
	for _, line := range lines {
		if _, ok := ParseLine(line); ok {
			t.Errorf("ParseLine(%q) matched, want skip", line)
		}
	}
}

func TestWriterCreateRequiresParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "run.log")
	if _, err := Create(path, "SHA256", "/data"); err == nil {
		t.Fatal("Create() with missing parent directory succeeded")
	}
}

func TestWriterParseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")

	w, err := Create(path, "SHA256", "/data/tree")
	if err != nil {
		t.Fatal(err)
	}
	const hashA = "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4"
	const hashB = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if err := w.Append("a.txt", successOutcome(hashA)); err != nil {
		t.Fatal(err)
	}
	if err := w.Append("c/d.txt", successOutcome(hashB)); err != nil {
		t.Fatal(err)
	}
	failed := models.HashOutcome{
		Algorithm: "SHA256",
		Category:  models.ErrCatIO,
		Message:   "device busy",
		Attempts:  3,
		ModTime:   testModTime,
	}
	if err := w.Append("bad.txt", failed); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteSummary(models.TreeHashResult{
		Algorithm:  "SHA256",
		Hash:       hashA,
		FileCount:  2,
		TotalBytes: 2468,
	}, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	index, err := Parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if index.Algorithm != "SHA256" {
		t.Errorf("Algorithm = %q, want SHA256", index.Algorithm)
	}
	if index.Root != "/data/tree" {
		t.Errorf("Root = %q, want /data/tree", index.Root)
	}
	if len(index.Processed) != 2 {
		t.Errorf("Processed = %d entries, want 2", len(index.Processed))
	}
	if len(index.Failed) != 1 {
		t.Errorf("Failed = %d entries, want 1", len(index.Failed))
	}
	if index.TreeHash != hashA {
		t.Errorf("TreeHash = %q, want %q", index.TreeHash, hashA)
	}
	if rec, ok := index.Failed["bad.txt"]; !ok || rec.Category != models.ErrCatIO {
		t.Errorf("Failed[bad.txt] = %+v, %v", rec, ok)
	}
}

func TestParseLaterRecordsWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	const hash = "49f68a5c8493ec2c0bf489821c21fc3b49f68a5c8493ec2c0bf489821c21fc3b"

	content := strings.Join([]string{
		FormatHeader("SHA256", "/r", testModTime),
		FormatLine("flip.txt", models.HashOutcome{
			Category: models.ErrCatIO, Message: "busy", ModTime: testModTime,
		}),
		FormatLine("flip.txt", successOutcome(hash)),
		FormatLine("flop.txt", successOutcome(hash)),
		FormatLine("flop.txt", models.HashOutcome{
			Category: models.ErrCatAccessDenied, Message: "denied", ModTime: testModTime,
		}),
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	index, err := Parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if !index.IsProcessed("/r", "flip.txt") {
		t.Error("flip.txt should be processed (error then success)")
	}
	if index.IsProcessed("/r", "flop.txt") {
		t.Error("flop.txt should not be processed (success then error)")
	}
	if _, ok := index.Failed["flop.txt"]; !ok {
		t.Error("flop.txt missing from Failed")
	}
}

func TestIsProcessedPathForms(t *testing.T) {
	index := NewResumeIndex()
	index.Processed["c/d.txt"] = Record{RelPath: "c/d.txt"}

	root := filepath.Join(string(filepath.Separator), "data", "tree")
	abs := filepath.Join(root, "c", "d.txt")

	if !index.IsProcessed(root, abs) {
		t.Error("absolute form not matched")
	}
	if !index.IsProcessed(root, "c/d.txt") {
		t.Error("relative form not matched")
	}
	if !index.IsProcessed(root, "c/d.txt/") {
		t.Error("trailing separator not trimmed")
	}
	if index.IsProcessed(root, "c/other.txt") {
		t.Error("unrelated path matched")
	}
}

func TestParseAbsolutePathRecords(t *testing.T) {
	const hash = "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4"
	root := filepath.Join(string(filepath.Separator), "data", "tree")

	content := strings.Join([]string{
		FormatHeader("SHA256", root, testModTime),
		FormatLine(filepath.Join(root, "a.txt"), successOutcome(hash)),
		FormatLine(filepath.Join(root, "c", "d.txt"), models.HashOutcome{
			Algorithm: "SHA256",
			Category:  models.ErrCatIO,
			Message:   "read timed out after 30s",
			Attempts:  3,
			ModTime:   testModTime,
		}),
	}, "\n") + "\n"

	logPath := filepath.Join(t.TempDir(), "run.log")
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	index, err := Parse(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !index.IsProcessed(root, "a.txt") {
		t.Error("absolute-form record not matched by relative lookup")
	}
	if !index.IsProcessed(root, filepath.Join(root, "a.txt")) {
		t.Error("absolute-form record not matched by absolute lookup")
	}
	if _, ok := index.FailedRecord(root, "c/d.txt"); !ok {
		t.Error("absolute-form failure record not found under relative key")
	}
}

func TestConcurrentAppendsNoInterleaving(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	w, err := Create(path, "SHA256", "/r")
	if err != nil {
		t.Fatal(err)
	}

	const workers = 8
	const perWorker = 50
	const hash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				rel := filepath.ToSlash(filepath.Join("w", string(rune('a'+id)), "f.txt"))
				if err := w.Append(rel, successOutcome(hash)); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != workers*perWorker+1 { // +1 header
		t.Fatalf("got %d lines, want %d", len(lines), workers*perWorker+1)
	}
	for i, line := range lines[1:] {
		if _, ok := ParseLine(line); !ok {
			t.Errorf("line %d does not parse: %q", i+2, line)
		}
	}
}
