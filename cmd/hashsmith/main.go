package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jonasyr/HashSmith-sub000/internal/breaker"
	"github.com/jonasyr/HashSmith-sub000/internal/config"
	"github.com/jonasyr/HashSmith-sub000/internal/discovery"
	"github.com/jonasyr/HashSmith-sub000/internal/hasher"
	"github.com/jonasyr/HashSmith-sub000/internal/pathutil"
	"github.com/jonasyr/HashSmith-sub000/internal/pipeline"
	"github.com/jonasyr/HashSmith-sub000/internal/report"
	"github.com/jonasyr/HashSmith-sub000/internal/statelog"
)

// ANSI colors
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[38;5;245m"
)

// Exit codes
const (
	exitOK            = 0
	exitPartial       = 1
	exitHighErrorRate = 2
	exitIntegrity     = 3
	exitFatal         = 4
	exitCanceled      = 130
)

var (
	version = "2.0.0"
	logger  *zap.Logger
	verbose bool
)

// exitError carries a process exit code through cobra's RunE plumbing.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "hashsmith",
		Short: "HashSmith - Resumable Directory Tree Hashing",
		Long: `Concurrent, crash-safe hashing of large directory trees with an
append-only state log, resumable runs, and an aggregate tree hash.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			printBanner()
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(hashCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(algorithmsCmd())

	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
}

// printBanner prints the startup banner
func printBanner() {
	fmt.Println()
	fmt.Printf("%s", colorCyan)
	fmt.Println("██  ██ ▄████▄ ▄█████ ██  ██ ▄█████ ███▄ ▄███ ██ ██████ ██  ██")
	fmt.Println("██████ ██▄▄██ ▀▀▀▄▄▄ ██████ ▀▀▀▄▄▄ ██ ▀█▀ ██ ██   ██   ██████")
	fmt.Println("██  ██ ██  ██ █████▀ ██  ██ █████▀ ██     ██ ██   ██   ██  ██")
	fmt.Printf("%s", colorReset)
	fmt.Println()
	fmt.Printf("%sTree Hashing v%s%s\n", colorGray, version, colorReset)
	fmt.Println()
}

// initLogger builds the zap logger: development output when verbose,
// otherwise errors only so progress rendering stays readable.
func initLogger() error {
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.Config{
			Level:            zap.NewAtomicLevelAt(zapcore.ErrorLevel),
			Encoding:         "json",
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
			EncoderConfig:    zap.NewProductionEncoderConfig(),
		}
		logger, err = cfg.Build()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
	}
	return err
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// hashCmd creates the hash command
func hashCmd() *cobra.Command {
	var (
		configFile      string
		algorithm       string
		workers         int
		chunkSize       int
		maxAttempts     int
		timeoutSec      int
		resume          bool
		fixErrors       bool
		strict          bool
		verifyIntegrity bool
		includeHidden   bool
		includeSymlinks bool
		exclude         []string
		logFile         string
		reportFile      string
		reportFormat    string
		quiet           bool
	)

	cmd := &cobra.Command{
		Use:   "hash <path>",
		Short: "Hash every file under a directory tree",
		Long: `Recursively hash all regular files under a directory, writing each
result to an append-only state log and finishing with an aggregate tree hash.
Interrupted runs continue with --resume; recorded failures are retried with
--fix-errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			if err := initLogger(); err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			defer logger.Sync()

			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				logger.Error("Failed to load config", zap.Error(err))
				return &exitError{code: exitFatal, err: err}
			}

			// Override config with CLI flags
			if algorithm != "" {
				cfg.Algorithm = algorithm
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if chunkSize > 0 {
				cfg.BaseChunkSize = chunkSize
			}
			if maxAttempts > 0 {
				cfg.MaxAttempts = maxAttempts
			}
			if timeoutSec > 0 {
				cfg.TimeoutSeconds = timeoutSec
			}
			if resume {
				cfg.Resume = true
			}
			if fixErrors {
				cfg.FixErrors = true
			}
			if strict {
				cfg.Strict = true
			}
			if verifyIntegrity {
				cfg.VerifyIntegrity = true
			}
			if includeHidden {
				cfg.IncludeHidden = true
			}
			if includeSymlinks {
				cfg.IncludeSymlinks = true
			}
			if len(exclude) > 0 {
				cfg.Exclude = exclude
			}
			if logFile != "" {
				cfg.LogFile = logFile
			}
			if reportFile != "" {
				cfg.ReportFile = reportFile
			}
			if reportFormat != "" {
				cfg.ReportFormat = reportFormat
			}
			if cfg.LogFile == "" {
				cfg.LogFile = defaultLogPath(path)
			}

			if err := cfg.Validate(); err != nil {
				fmt.Printf("\n  %s✗ Invalid parameter:%s %s\n\n", colorRed, colorReset, err.Error())
				return &exitError{code: exitFatal, err: err}
			}

			ctx, stop := signalContext()
			defer stop()

			interactive := !verbose && !quiet
			if interactive {
				printBanner()
				fmt.Printf("  %sHashing:%s    %s\n", colorGray, colorReset, path)
				fmt.Printf("  %sAlgorithm:%s  %s\n", colorGray, colorReset, hasher.CanonicalName(cfg.Algorithm))
				fmt.Printf("  %sState log:%s  %s\n", colorGray, colorReset, cfg.LogFile)
				fmt.Println()
			}

			p := pipeline.New(cfg, logger)
			if interactive {
				p.SetProgressCallback(progressRenderer())
			}

			summary, err := p.Run(ctx, path)
			if interactive {
				fmt.Println()
			}

			if summary != nil {
				if !quiet {
					fmt.Println(report.Text(summary))
				}

				gen, genErr := report.NewGenerator(cfg, logger)
				if genErr != nil {
					logger.Error("Report generation failed", zap.Error(genErr))
				} else if written, genErr := gen.Generate(summary); genErr != nil {
					logger.Error("Report generation failed", zap.Error(genErr))
				} else if written != "" {
					fmt.Printf("  %sReport:%s     %s\n", colorGray, colorReset, written)
				}
			}

			switch {
			case err == nil && summary != nil && summary.Failed > 0:
				return &exitError{code: exitPartial}
			case err == nil:
				return nil
			case errors.Is(err, context.Canceled) || ctx.Err() != nil:
				fmt.Printf("  %sInterrupted. Continue with --resume.%s\n", colorGray, colorReset)
				return &exitError{code: exitCanceled}
			case errors.Is(err, pipeline.ErrHighErrorRate):
				return &exitError{code: exitHighErrorRate, err: err}
			case errors.Is(err, pipeline.ErrDiscoveryIntegrity):
				return &exitError{code: exitIntegrity, err: err}
			default:
				return &exitError{code: exitFatal, err: err}
			}
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Config file path (YAML)")
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "", "Hash algorithm: md5, sha1, sha256, sha512, blake2b, blake3 (default: sha256)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of worker goroutines (default: CPU cores * 2)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Files per work chunk before workload adaptation (default: 100)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempts per file for transient failures (default: 3)")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "Per-attempt I/O timeout in seconds (default: 30)")
	cmd.Flags().BoolVar(&resume, "resume", false, "Skip files already recorded in the state log")
	cmd.Flags().BoolVar(&fixErrors, "fix-errors", false, "Re-attempt only the failures recorded in the state log")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat integrity and discovery problems as fatal")
	cmd.Flags().BoolVar(&verifyIntegrity, "verify-integrity", false, "Snapshot files before and after reading to detect mutation")
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "Hash hidden files")
	cmd.Flags().BoolVar(&includeSymlinks, "include-symlinks", false, "Follow symbolic links")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Glob patterns to exclude (comma-separated)")
	cmd.Flags().StringVarP(&logFile, "log-file", "l", "", "State log path (default: <path>.hashlog)")
	cmd.Flags().StringVarP(&reportFile, "output", "o", "", "Run report output file")
	cmd.Flags().StringVarP(&reportFormat, "report", "r", "", "Run report format: text, json, yaml")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress banner, progress, and summary output")

	return cmd
}

// progressRenderer returns a throttled single-line progress bar callback.
func progressRenderer() pipeline.ProgressFunc {
	var lastDraw time.Time
	drawn := false
	return func(processed, total, bytes, errorCount int64) {
		if processed < total && time.Since(lastDraw) < 100*time.Millisecond {
			return
		}
		lastDraw = time.Now()

		if drawn {
			fmt.Print("\033[1A\033[K")
		}
		drawn = true

		pct := float64(0)
		if total > 0 {
			pct = float64(processed) / float64(total) * 100
		}
		barWidth := 30
		filled := 0
		if total > 0 {
			filled = int(float64(barWidth) * float64(processed) / float64(total))
		}
		bar := fmt.Sprintf("%s%s", repeat("█", filled), repeat("░", barWidth-filled))
		line := fmt.Sprintf("  %sHashing:%s  [%s%s%s] %s%.1f%%%s (%d/%d, %s)",
			colorGray, colorReset, colorCyan, bar, colorReset, colorCyan, pct, colorReset,
			processed, total, humanize.Bytes(uint64(bytes)))
		if errorCount > 0 {
			line += fmt.Sprintf(" %s%d errors%s", colorRed, errorCount, colorReset)
		}
		fmt.Println(line)
	}
}

// verifyCmd creates the verify command
func verifyCmd() *cobra.Command {
	var (
		logFile         string
		includeHidden   bool
		includeSymlinks bool
		exclude         []string
	)

	cmd := &cobra.Command{
		Use:   "verify <path>",
		Short: "Re-hash a tree and compare it against an existing state log",
		Long: `Re-hash every file recorded in the state log and report files whose
content changed, files that disappeared, and files present on disk but absent
from the log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			if err := initLogger(); err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			defer logger.Sync()

			if logFile == "" {
				logFile = defaultLogPath(path)
			}

			ctx, stop := signalContext()
			defer stop()

			result, err := runVerify(ctx, path, logFile, discovery.Options{
				Exclude:         exclude,
				IncludeHidden:   includeHidden,
				IncludeSymlinks: includeSymlinks,
			})
			if err != nil {
				if ctx.Err() != nil {
					return &exitError{code: exitCanceled}
				}
				return &exitError{code: exitFatal, err: err}
			}

			printVerifyResult(result)
			if len(result.Changed) > 0 || len(result.Missing) > 0 {
				return &exitError{code: exitPartial}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&logFile, "log-file", "l", "", "State log to verify against (default: <path>.hashlog)")
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "Include hidden files when looking for new files")
	cmd.Flags().BoolVar(&includeSymlinks, "include-symlinks", false, "Follow symbolic links")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Glob patterns to exclude (comma-separated)")

	return cmd
}

// verifyResult groups the per-file comparison buckets.
type verifyResult struct {
	Algorithm string
	Intact    int
	Changed   []string
	Missing   []string
	New       []string
	Errors    []string
}

// runVerify parses the log, re-hashes every recorded file with the log's
// algorithm, and diffs the log against the current tree.
func runVerify(ctx context.Context, root, logFile string, opts discovery.Options) (*verifyResult, error) {
	index, err := statelog.Parse(logFile)
	if err != nil {
		return nil, err
	}
	if len(index.Processed) == 0 {
		return nil, fmt.Errorf("state log %s holds no successful records", logFile)
	}
	algorithm := index.Algorithm
	if !hasher.Supported(algorithm) {
		return nil, fmt.Errorf("state log algorithm %q is not supported", algorithm)
	}

	scanner := discovery.NewScanner(opts, logger)
	scan, err := scanner.Scan(ctx, root)
	if err != nil {
		return nil, err
	}

	onDisk := make(map[string]int, len(scan.Records))
	for i, rec := range scan.Records {
		if pathutil.StripPrefix(rec.Path) == pathutil.StripPrefix(logFile) {
			continue
		}
		onDisk[pathutil.ToRelative(scan.Root, rec.Path)] = i
	}

	cfg, err := config.LoadConfig("")
	if err != nil {
		return nil, err
	}
	computer := hasher.NewComputer(hasher.Options{
		Algorithm:   algorithm,
		MaxAttempts: cfg.MaxAttempts,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, breaker.New(cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldownSeconds)*time.Second), logger)

	result := &verifyResult{Algorithm: algorithm}
	rels := make([]string, 0, len(index.Processed))
	for rel := range index.Processed {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		i, ok := onDisk[rel]
		if !ok {
			result.Missing = append(result.Missing, rel)
			continue
		}
		outcome := computer.Hash(ctx, scan.Records[i])
		switch {
		case !outcome.Success:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", rel, outcome.Message))
		case outcome.Hash != index.Processed[rel].Hash:
			result.Changed = append(result.Changed, rel)
		default:
			result.Intact++
		}
		delete(onDisk, rel)
	}

	for rel := range onDisk {
		result.New = append(result.New, rel)
	}
	sort.Strings(result.New)
	return result, nil
}

func printVerifyResult(r *verifyResult) {
	fmt.Println()
	fmt.Printf("  %sAlgorithm:%s %s\n", colorGray, colorReset, r.Algorithm)
	fmt.Printf("  %s✓ Intact:%s  %d files\n", colorGreen, colorReset, r.Intact)
	for _, rel := range r.Changed {
		fmt.Printf("  %s✗ Changed:%s %s\n", colorRed, colorReset, rel)
	}
	for _, rel := range r.Missing {
		fmt.Printf("  %s✗ Missing:%s %s\n", colorRed, colorReset, rel)
	}
	for _, rel := range r.New {
		fmt.Printf("  %s+ New:%s     %s\n", colorCyan, colorReset, rel)
	}
	for _, msg := range r.Errors {
		fmt.Printf("  %s⚠ Error:%s   %s\n", colorRed, colorReset, msg)
	}
	fmt.Println()
}

// algorithmsCmd creates the algorithms command
func algorithmsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "algorithms",
		Short: "List supported hash algorithms",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("SUPPORTED ALGORITHMS:")
			for _, name := range hasher.Algorithms() {
				marker := "  "
				if name == "SHA256" {
					marker = "* "
				}
				fmt.Printf("  %s%s\n", marker, name)
			}
			fmt.Println()
			fmt.Println("* default")
			fmt.Println()
			fmt.Println("EXAMPLES:")
			fmt.Println("  hashsmith hash /data/tree                      # SHA256")
			fmt.Println("  hashsmith hash -a blake3 /data/tree            # BLAKE3")
			fmt.Println("  hashsmith hash --resume /data/tree             # Continue an interrupted run")
			fmt.Println("  hashsmith hash --fix-errors /data/tree         # Retry recorded failures")
			fmt.Println("  hashsmith verify /data/tree                    # Compare tree against its log")
		},
	}
}

// defaultLogPath mirrors the pipeline default: "<path>.hashlog" next to the
// tree so the log never sits inside it.
func defaultLogPath(path string) string {
	clean, err := pathutil.Normalize(path)
	if err != nil {
		clean = filepath.Clean(path)
	}
	clean = pathutil.StripPrefix(clean)
	return filepath.Join(filepath.Dir(clean), filepath.Base(clean)+".hashlog")
}

// repeat returns a string with character c repeated n times
func repeat(c string, n int) string {
	if n <= 0 {
		return ""
	}
	result := ""
	for i := 0; i < n; i++ {
		result += c
	}
	return result
}
