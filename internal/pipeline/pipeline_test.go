package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonasyr/HashSmith-sub000/internal/config"
	"github.com/jonasyr/HashSmith-sub000/internal/statelog"
	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

const (
	hashHi    = "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4"
	hashEmpty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	hashWorld = "486ea46224d1bb4fb680f34f7c9ad96a8f24ec88be73ea8e5a6c65260e9cb8a7"
)

// buildSampleTree creates {a.txt: "hi", b.bin: <empty>, c/d.txt: "world"}.
func buildSampleTree(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "tree")
	require.NoError(t, os.Mkdir(root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.bin"), nil, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "c"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c", "d.txt"), []byte("world"), 0644))
	return root
}

func pipelineConfig(root string) *config.Config {
	return &config.Config{
		Algorithm:              "sha256",
		Workers:                4,
		BaseChunkSize:          100,
		MinChunkSize:           10,
		MaxChunkSize:           1000,
		MaxAttempts:            2,
		TimeoutSeconds:         10,
		BreakerThreshold:       10,
		BreakerCooldownSeconds: 30,
		LogFile:                filepath.Join(filepath.Dir(root), "run.hashlog"),
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	root := buildSampleTree(t)
	cfg := pipelineConfig(root)

	p := New(cfg, zap.NewNop())
	summary, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Discovered)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	require.NotNil(t, summary.Tree)
	assert.Equal(t, 3, summary.Tree.FileCount)
	assert.Equal(t, int64(7), summary.Tree.TotalBytes)
	assert.Equal(t, "SHA256", summary.Tree.Algorithm)
	assert.Len(t, summary.Tree.Hash, 64)

	index, err := statelog.Parse(cfg.LogFile)
	require.NoError(t, err)
	require.Len(t, index.Processed, 3)
	assert.Equal(t, hashHi, index.Processed["a.txt"].Hash)
	assert.Equal(t, hashEmpty, index.Processed["b.bin"].Hash)
	assert.Equal(t, hashWorld, index.Processed["c/d.txt"].Hash)
	assert.Equal(t, summary.Tree.Hash, index.TreeHash)
	assert.Equal(t, "SHA256", index.Algorithm)
}

func TestPipelineResumeSkipsProcessed(t *testing.T) {
	root := buildSampleTree(t)
	cfg := pipelineConfig(root)

	// Simulate an interrupted run: a.txt already recorded as hashed.
	w, err := statelog.Create(cfg.LogFile, "SHA256", root)
	require.NoError(t, err)
	require.NoError(t, w.Append("a.txt", models.HashOutcome{
		Algorithm: "SHA256",
		Success:   true,
		Hash:      hashHi,
		Size:      2,
	}))
	require.NoError(t, w.Close())

	cfg.Resume = true
	p := New(cfg, zap.NewNop())
	summary, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped, "already-hashed file must not be re-attempted")
	assert.Equal(t, 2, summary.Succeeded)

	// The resumed run still aggregates over the full table.
	require.NotNil(t, summary.Tree)
	assert.Equal(t, 3, summary.Tree.FileCount)
	assert.Equal(t, int64(7), summary.Tree.TotalBytes)

	index, err := statelog.Parse(cfg.LogFile)
	require.NoError(t, err)
	assert.Len(t, index.Processed, 3)
	assert.Equal(t, hashHi, index.Processed["a.txt"].Hash)
	assert.Equal(t, hashWorld, index.Processed["c/d.txt"].Hash)
}

func TestPipelineFixErrors(t *testing.T) {
	root := buildSampleTree(t)
	cfg := pipelineConfig(root)

	w, err := statelog.Create(cfg.LogFile, "SHA256", root)
	require.NoError(t, err)
	require.NoError(t, w.Append("a.txt", models.HashOutcome{
		Algorithm: "SHA256", Success: true, Hash: hashHi, Size: 2,
	}))
	require.NoError(t, w.Append("b.bin", models.HashOutcome{
		Algorithm: "SHA256", Success: true, Hash: hashEmpty,
	}))
	require.NoError(t, w.Append("c/d.txt", models.HashOutcome{
		Algorithm: "SHA256",
		Category:  models.ErrCatIO,
		Message:   "device busy",
		Size:      5,
	}))
	require.NoError(t, w.Close())

	cfg.FixErrors = true
	p := New(cfg, zap.NewNop())
	summary, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded, "only the failed path is re-attempted")
	assert.Equal(t, 0, summary.Failed)
	assert.Nil(t, summary.Tree, "fix-errors runs do not aggregate")

	index, err := statelog.Parse(cfg.LogFile)
	require.NoError(t, err)
	assert.Len(t, index.Processed, 3, "repaired record supersedes the failure")
	assert.Empty(t, index.Failed)
	assert.Equal(t, hashWorld, index.Processed["c/d.txt"].Hash)
}

func TestPipelinePartialFailure(t *testing.T) {
	root := buildSampleTree(t)
	if os.Getuid() == 0 {
		t.Skip("permission-based failure needs a non-root user")
	}
	locked := filepath.Join(root, "locked.txt")
	require.NoError(t, os.WriteFile(locked, []byte("secret"), 0000))

	cfg := pipelineConfig(root)
	p := New(cfg, zap.NewNop())
	summary, err := p.Run(context.Background(), root)
	require.NoError(t, err, "partial failure is reported via the summary, not an error")

	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.ByCategory[models.ErrCatAccessDenied])

	index, err := statelog.Parse(cfg.LogFile)
	require.NoError(t, err)
	rec, ok := index.Failed["locked.txt"]
	require.True(t, ok)
	assert.Equal(t, models.ErrCatAccessDenied, rec.Category)
}

func TestPipelineStrictFailsWhenNothingDiscovered(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission test needs a non-root unix user")
	}
	base := t.TempDir()
	root := filepath.Join(base, "tree")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.MkdirAll(locked, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(locked, "inside.txt"), []byte("x"), 0644))
	require.NoError(t, os.Chmod(locked, 0000))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	cfg := pipelineConfig(root)
	cfg.Strict = true

	p := New(cfg, zap.NewNop())
	summary, err := p.Run(context.Background(), root)
	require.ErrorIs(t, err, ErrDiscoveryIntegrity)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Discovered)
	assert.NotEmpty(t, summary.DiscoveryErrors)
	assert.Nil(t, summary.Tree)
}

func TestPipelineProgressCallback(t *testing.T) {
	root := buildSampleTree(t)
	cfg := pipelineConfig(root)

	var calls int
	var lastFiles int64
	p := New(cfg, zap.NewNop())
	p.SetProgressCallback(func(processed, total, bytes, errorCount int64) {
		calls++
		lastFiles = processed
	})

	_, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(3), lastFiles)
}
