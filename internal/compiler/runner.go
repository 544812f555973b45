package compiler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kettle/internal/artifact"
	"kettle/internal/config"
	"kettle/internal/fileutil"
	"kettle/internal/ledger"
	"kettle/internal/logging"
)

const (
	outputMode       os.FileMode = 0o644
	outputDirMode    os.FileMode = 0o755
	legacyOutputMode os.FileMode = 0o666
	legacyDirMode    os.FileMode = 0o777
)

// Options configures a Runner.
type Options struct {
	SourceRoot string
	OutputRoot string
	SourceExt  string
	OutputExt  string

	Binary string
	// Args precede the positional input and output paths.
	Args []string
	// Timeout bounds each compiler process; zero waits indefinitely.
	Timeout time.Duration

	CheckTimestamps bool
	Compress        bool
	// LegacyPermissions makes fresh outputs 0666 and created directories
	// 0777 instead of 0644/0755.
	LegacyPermissions bool
}

// OptionsFromConfig derives runner options from application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SourceRoot:        cfg.Paths.SourceDir,
		OutputRoot:        cfg.Paths.OutputDir,
		SourceExt:         cfg.Compiler.SourceExt,
		OutputExt:         cfg.Compiler.OutputExt,
		Binary:            cfg.Compiler.Binary,
		Args:              append([]string(nil), cfg.Compiler.Args...),
		Timeout:           cfg.CompilerTimeout(),
		CheckTimestamps:   cfg.Build.CheckTimestamps,
		Compress:          cfg.Build.Compress,
		LegacyPermissions: cfg.Build.LegacyPermissions,
	}
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithLogger sets the logger used for per-file decisions and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logging.NewComponentLogger(logger, "compiler")
	}
}

// Runner compiles single source files and records each attempt.
type Runner struct {
	opts    Options
	exec    Executor
	ledger  *ledger.Ledger
	logger  *slog.Logger
	current string
}

// New constructs a Runner that records into l.
func New(opts Options, l *ledger.Ledger, options ...Option) (*Runner, error) {
	if l == nil {
		return nil, errors.New("compiler: ledger required")
	}
	opts.Binary = strings.TrimSpace(opts.Binary)
	if opts.Binary == "" {
		return nil, errors.New("compiler: binary required")
	}
	if opts.SourceRoot == "" || opts.OutputRoot == "" {
		return nil, errors.New("compiler: source and output roots required")
	}
	if opts.SourceExt == "" || opts.OutputExt == "" {
		return nil, errors.New("compiler: source and output extensions required")
	}
	var err error
	if opts.SourceRoot, err = filepath.Abs(opts.SourceRoot); err != nil {
		return nil, fmt.Errorf("compiler: resolve source root: %w", err)
	}
	if opts.OutputRoot, err = filepath.Abs(opts.OutputRoot); err != nil {
		return nil, fmt.Errorf("compiler: resolve output root: %w", err)
	}

	r := &Runner{
		opts:   opts,
		exec:   commandExecutor{},
		ledger: l,
		logger: logging.NewComponentLogger(nil, "compiler"),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Options returns the runner configuration.
func (r *Runner) Options() Options {
	return r.opts
}

// Ledger returns the ledger outcomes are recorded in.
func (r *Runner) Ledger() *ledger.Ledger {
	return r.ledger
}

// Current returns the source being compiled, or "" between attempts.
func (r *Runner) Current() string {
	return r.current
}

// OutputPath maps source from the source root into the output root and
// swaps its extension.
func (r *Runner) OutputPath(source string) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("map %s to output: %w", source, err)
	}
	rel, err := filepath.Rel(r.opts.SourceRoot, abs)
	if err != nil {
		return "", fmt.Errorf("map %s to output: %w", source, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("map %s to output: outside source root %s", source, r.opts.SourceRoot)
	}
	rel = strings.TrimSuffix(rel, r.opts.SourceExt) + r.opts.OutputExt
	return filepath.Join(r.opts.OutputRoot, rel), nil
}

// Compile brings the output of source up to date and records the attempt.
func (r *Runner) Compile(ctx context.Context, source string) ledger.Outcome {
	outcome := r.compile(ctx, source)
	r.ledger.Record(outcome)
	return outcome
}

func (r *Runner) compile(ctx context.Context, source string) ledger.Outcome {
	outcome := ledger.Outcome{Input: source}
	logger := r.logger.With(logging.String(logging.FieldSource, source))

	output, err := r.OutputPath(source)
	if err != nil {
		return r.fail(logger, outcome, 0, err.Error())
	}
	outcome.Output = output
	logger = logger.With(logging.String(logging.FieldOutput, output))

	start := time.Now()
	elapsed := func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}

	if err := fileutil.EnsureDir(filepath.Dir(output), r.dirMode()); err != nil {
		return r.fail(logger, outcome, elapsed(), fmt.Sprintf("create output directory: %v", err))
	}

	if r.opts.CheckTimestamps {
		current, reason, err := outputCurrent(source, output)
		if err != nil {
			return r.fail(logger, outcome, elapsed(), err.Error())
		}
		if current {
			logger.Debug("output up to date", logging.Args(logging.DecisionAttrs("staleness", "skip", reason)...)...)
			outcome.Compiled = true
			outcome.Skipped = true
			return outcome
		}
		logger.Debug("output stale", logging.Args(logging.DecisionAttrs("staleness", "compile", reason)...)...)
	}

	if diagnostic := r.invoke(ctx, source, output); diagnostic != "" {
		return r.fail(logger, outcome, elapsed(), diagnostic)
	}

	outcome.Compiled = true
	outcome.ElapsedMs = elapsed()
	logger.Info("compiled", logging.Float64("elapsed_ms", outcome.ElapsedMs))
	return outcome
}

func (r *Runner) fail(logger *slog.Logger, outcome ledger.Outcome, elapsedMs float64, diagnostic string) ledger.Outcome {
	outcome.Compiled = false
	outcome.ElapsedMs = elapsedMs
	outcome.Error = diagnostic
	logger.Warn("compile failed",
		logging.String("diagnostic", diagnostic),
		logging.String("impact", "previous output left untouched"),
	)
	return outcome
}

// outputCurrent reports whether output exists and is not older than source.
func outputCurrent(source, output string) (bool, string, error) {
	srcInfo, err := os.Stat(source)
	if err != nil {
		return false, "", fmt.Errorf("stat source: %w", err)
	}
	outInfo, err := os.Stat(output)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, "output missing", nil
		}
		return false, "", fmt.Errorf("stat output: %w", err)
	}
	if srcInfo.ModTime().After(outInfo.ModTime()) {
		return false, "source newer than output", nil
	}
	return true, "output not older than source", nil
}

// invoke runs the compiler and installs its result. It returns the
// diagnostic describing a failure, or "" on success.
func (r *Runner) invoke(ctx context.Context, source, output string) string {
	r.current = source
	defer func() { r.current = "" }()

	staging, err := fileutil.StagingFile(output)
	if err != nil {
		return fmt.Sprintf("create staging file: %v", err)
	}
	defer os.Remove(staging)

	runCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), r.opts.Args...), source, staging)
	result, runErr := r.exec.Run(runCtx, r.opts.Binary, args)
	if diagnostic := classify(runCtx, ctx, r.opts.Timeout, result, runErr); diagnostic != "" {
		if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
			r.logger.Debug("compiler stderr", logging.String(logging.FieldSource, source), logging.String("stderr", stderr))
		}
		return diagnostic
	}

	body, err := os.ReadFile(staging)
	if err != nil {
		return fmt.Sprintf("read compiler output: %v", err)
	}
	if r.opts.Compress {
		body = []byte(Minify(string(body)))
	}

	created, err := fileutil.WriteOutput(output, artifact.Wrap(body), r.fileMode())
	if err != nil {
		return fmt.Sprintf("write output: %v", err)
	}
	if created {
		r.logger.Debug("created output", logging.String(logging.FieldOutput, output), logging.String("mode", r.fileMode().String()))
	}
	return ""
}

// classify turns a finished process into a diagnostic. Any stderr output
// counts as failure even when the exit status is zero.
func classify(runCtx, parent context.Context, timeout time.Duration, result ExecResult, runErr error) string {
	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			return fmt.Sprintf("compiler timed out after %s", timeout)
		}
		if line := firstLine(result.Stderr); line != "" {
			return line
		}
		if line := firstLine(result.Stdout); line != "" {
			return line
		}
		return runErr.Error()
	}
	return firstLine(result.Stderr)
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (r *Runner) fileMode() os.FileMode {
	if r.opts.LegacyPermissions {
		return legacyOutputMode
	}
	return outputMode
}

func (r *Runner) dirMode() os.FileMode {
	if r.opts.LegacyPermissions {
		return legacyDirMode
	}
	return outputDirMode
}
