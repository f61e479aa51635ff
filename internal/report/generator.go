// Package report exports the run summary in text, JSON, or YAML form.
package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jonasyr/HashSmith-sub000/internal/config"
	"github.com/jonasyr/HashSmith-sub000/internal/pipeline"
	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

// Generator renders run reports.
type Generator struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewGenerator creates a report generator.
func NewGenerator(cfg *config.Config, logger *zap.Logger) (*Generator, error) {
	switch cfg.ReportFormat {
	case "", "text", "json", "yaml":
	default:
		return nil, fmt.Errorf("unsupported report format %q", cfg.ReportFormat)
	}
	return &Generator{cfg: cfg, logger: logger}, nil
}

// Generate writes the report to the configured output file and returns its
// path. With no output file configured it returns "" without writing.
func (g *Generator) Generate(summary *pipeline.Summary) (string, error) {
	if g.cfg.ReportFile == "" {
		return "", nil
	}

	data, err := g.render(summary)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(g.cfg.ReportFile, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	g.logger.Info("Report written",
		zap.String("path", g.cfg.ReportFile),
		zap.String("format", g.format()))
	return g.cfg.ReportFile, nil
}

func (g *Generator) format() string {
	if g.cfg.ReportFormat == "" {
		return "text"
	}
	return g.cfg.ReportFormat
}

func (g *Generator) render(summary *pipeline.Summary) ([]byte, error) {
	view := newRunReport(summary)
	switch g.format() {
	case "json":
		return renderJSON(view)
	case "yaml":
		return yaml.Marshal(view)
	default:
		return []byte(Text(summary)), nil
	}
}

// runReport is the serializable view shared by the JSON and YAML encoders.
type runReport struct {
	Root           string            `json:"root" yaml:"root"`
	Algorithm      string            `json:"algorithm" yaml:"algorithm"`
	LogPath        string            `json:"log_path" yaml:"log_path"`
	Discovered     int               `json:"discovered" yaml:"discovered"`
	Succeeded      int               `json:"succeeded" yaml:"succeeded"`
	Failed         int               `json:"failed" yaml:"failed"`
	Skipped        int               `json:"skipped" yaml:"skipped"`
	Races          int64             `json:"race_conditions" yaml:"race_conditions"`
	BytesHashed    int64             `json:"bytes_hashed" yaml:"bytes_hashed"`
	ElapsedSeconds float64           `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	TreeHash       string            `json:"tree_hash,omitempty" yaml:"tree_hash,omitempty"`
	TreeFileCount  int               `json:"tree_file_count,omitempty" yaml:"tree_file_count,omitempty"`
	TreeBytes      int64             `json:"tree_bytes,omitempty" yaml:"tree_bytes,omitempty"`
	GeneratedAt    string            `json:"generated_at,omitempty" yaml:"generated_at,omitempty"`
	ErrorsByType   map[string]int    `json:"errors_by_category,omitempty" yaml:"errors_by_category,omitempty"`
	DiscoveryFails []discoveryFailed `json:"discovery_errors,omitempty" yaml:"discovery_errors,omitempty"`
}

type discoveryFailed struct {
	Path    string `json:"path" yaml:"path"`
	Message string `json:"message" yaml:"message"`
}

func newRunReport(summary *pipeline.Summary) *runReport {
	view := &runReport{
		Root:           summary.Root,
		Algorithm:      summary.Algorithm,
		LogPath:        summary.LogPath,
		Discovered:     summary.Discovered,
		Succeeded:      summary.Succeeded,
		Failed:         summary.Failed,
		Skipped:        summary.Skipped,
		Races:          summary.Races,
		BytesHashed:    summary.TotalBytes,
		ElapsedSeconds: summary.Elapsed.Seconds(),
	}
	if summary.Tree != nil {
		view.TreeHash = summary.Tree.Hash
		view.TreeFileCount = summary.Tree.FileCount
		view.TreeBytes = summary.Tree.TotalBytes
		view.GeneratedAt = summary.Tree.GeneratedAt.UTC().Format(time.RFC3339)
	}
	if len(summary.ByCategory) > 0 {
		view.ErrorsByType = make(map[string]int, len(summary.ByCategory))
		for cat, n := range summary.ByCategory {
			view.ErrorsByType[string(cat)] = n
		}
	}
	for _, de := range summary.DiscoveryErrors {
		view.DiscoveryFails = append(view.DiscoveryFails, discoveryFailed{
			Path:    de.Path,
			Message: de.Message,
		})
	}
	return view
}

// Text produces the human-readable summary block, also used by the CLI.
func Text(summary *pipeline.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Root:        %s\n", summary.Root)
	fmt.Fprintf(&b, "Algorithm:   %s\n", summary.Algorithm)
	fmt.Fprintf(&b, "State log:   %s\n", summary.LogPath)
	fmt.Fprintf(&b, "Discovered:  %d files\n", summary.Discovered)
	fmt.Fprintf(&b, "Hashed:      %d files (%s)\n",
		summary.Succeeded, humanize.Bytes(uint64(summary.TotalBytes)))
	if summary.Skipped > 0 {
		fmt.Fprintf(&b, "Skipped:     %d files (already in log)\n", summary.Skipped)
	}
	if summary.Failed > 0 {
		fmt.Fprintf(&b, "Failed:      %d files\n", summary.Failed)
		cats := make([]string, 0, len(summary.ByCategory))
		for cat := range summary.ByCategory {
			cats = append(cats, string(cat))
		}
		sort.Strings(cats)
		for _, cat := range cats {
			fmt.Fprintf(&b, "  %-20s %d\n", cat+":", summary.ByCategory[models.ErrorCategory(cat)])
		}
	}
	if summary.Races > 0 {
		fmt.Fprintf(&b, "Races:       %d files changed while being read\n", summary.Races)
	}
	if len(summary.DiscoveryErrors) > 0 {
		fmt.Fprintf(&b, "Discovery:   %d entries could not be enumerated\n", len(summary.DiscoveryErrors))
	}
	if summary.Tree != nil {
		fmt.Fprintf(&b, "Tree hash:   %s (%d files, %s)\n",
			summary.Tree.Hash, summary.Tree.FileCount,
			humanize.Bytes(uint64(summary.Tree.TotalBytes)))
	}
	elapsed := summary.Elapsed.Seconds()
	if elapsed > 0 {
		mbps := float64(summary.TotalBytes) / (1024 * 1024) / elapsed
		fmt.Fprintf(&b, "Elapsed:     %s (%.2f MB/s)\n", summary.Elapsed.Round(time.Millisecond), mbps)
	}
	return b.String()
}
