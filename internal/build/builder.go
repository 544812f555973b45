package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"kettle/internal/compiler"
	"kettle/internal/config"
	"kettle/internal/discovery"
	"kettle/internal/history"
	"kettle/internal/ledger"
	"kettle/internal/logging"
	"kettle/internal/staging"
)

// RunOptions adjusts a single run on top of the configured behaviour.
type RunOptions struct {
	// Clean removes managed outputs before compiling.
	Clean bool
	// Filters restrict the run to sources matching any pattern.
	Filters []string
	// Force disables the timestamp check so every source is recompiled.
	Force bool
	// Compress minifies outputs even when build.compress is off.
	Compress bool
	Trigger  history.Trigger
}

// Result describes a finished run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Ledger     *ledger.Ledger
	Summary    ledger.Summary
	// Removed lists outputs deleted by a clean pass.
	Removed []string
}

// Err returns a *FailureError when any file failed, nil otherwise.
func (r *Result) Err() error {
	if r == nil || r.Ledger == nil {
		return nil
	}
	failed := r.Ledger.Failures()
	if len(failed) == 0 {
		return nil
	}
	return &FailureError{Failed: failed, Total: r.Ledger.Len()}
}

// DebugInfo reports the effective settings of a run.
type DebugInfo struct {
	CheckTimestamps bool     `json:"check_timestamps"`
	Compress        bool     `json:"compress"`
	SourceRoot      string   `json:"source_root"`
	OutputRoot      string   `json:"output_root"`
	Compiler        string   `json:"compiler"`
	CompilerArgs    []string `json:"compiler_args,omitempty"`
	SourceExt       string   `json:"source_ext"`
	OutputExt       string   `json:"output_ext"`
	ExcludePrefixes []string `json:"exclude_prefixes,omitempty"`
	FollowLinks     bool     `json:"follow_links"`
	Timeout         string   `json:"timeout"`
	LockPath        string   `json:"lock_path"`
	HistoryPath     string   `json:"history_path,omitempty"`
}

// Option configures a Builder.
type Option func(*Builder)

// WithExecutor replaces the compiler subprocess executor.
func WithExecutor(exec compiler.Executor) Option {
	return func(b *Builder) {
		b.exec = exec
	}
}

// WithHistory records completed runs in store.
func WithHistory(store *history.Store) Option {
	return func(b *Builder) {
		b.history = store
	}
}

// Builder runs builds for one configuration.
type Builder struct {
	cfg     *config.Config
	logger  *slog.Logger
	exec    compiler.Executor
	history *history.Store

	lock *flock.Flock
	held bool
}

// New constructs a Builder. The state directory is created if needed.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Builder, error) {
	if cfg == nil {
		return nil, errors.New("build: config required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	b := &Builder{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "build"),
		lock:   flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Lock acquires the build lock and holds it until Unlock. Runs started
// while the lock is held reuse it.
func (b *Builder) Lock() error {
	if b.held {
		return nil
	}
	ok, err := b.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrBuildLocked, b.cfg.LockPath())
	}
	b.held = true
	return nil
}

// Unlock releases the build lock.
func (b *Builder) Unlock() {
	if !b.held {
		return
	}
	if err := b.lock.Unlock(); err != nil {
		b.logger.Warn("failed to release build lock",
			logging.String("lock", b.cfg.LockPath()),
			logging.Error(err),
		)
	}
	b.held = false
}

func (b *Builder) acquire() (func(), error) {
	if b.held {
		return func() {}, nil
	}
	if err := b.Lock(); err != nil {
		return nil, err
	}
	return b.Unlock, nil
}

// DebugInfo reports the settings a run with opts would use.
func (b *Builder) DebugInfo(opts RunOptions) DebugInfo {
	runner := b.runnerOptions(opts)
	info := DebugInfo{
		CheckTimestamps: runner.CheckTimestamps,
		Compress:        runner.Compress,
		SourceRoot:      runner.SourceRoot,
		OutputRoot:      runner.OutputRoot,
		Compiler:        runner.Binary,
		CompilerArgs:    runner.Args,
		SourceExt:       runner.SourceExt,
		OutputExt:       runner.OutputExt,
		ExcludePrefixes: b.cfg.Build.ExcludePrefixes,
		FollowLinks:     b.cfg.Build.FollowLinks,
		Timeout:         runner.Timeout.String(),
		LockPath:        b.cfg.LockPath(),
	}
	if b.history != nil {
		info.HistoryPath = b.history.Path()
	}
	return info
}

func (b *Builder) runnerOptions(opts RunOptions) compiler.Options {
	runner := compiler.OptionsFromConfig(b.cfg)
	if opts.Force {
		runner.CheckTimestamps = false
	}
	if opts.Compress {
		runner.Compress = true
	}
	return runner
}

// Run compiles every discovered source once, in order. A discovery failure
// aborts the run; per-file failures are only recorded. The returned Result
// is non-nil whenever the lock was acquired.
func (b *Builder) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	release, err := b.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if opts.Trigger == "" {
		opts.Trigger = history.TriggerCompile
	}
	result := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Ledger:    ledger.New(),
	}
	logger := b.logger.With(logging.String(logging.FieldRunID, result.RunID))

	runErr := b.run(ctx, logger, opts, result)

	result.FinishedAt = time.Now()
	result.Summary = result.Ledger.Summary()
	b.recordHistory(ctx, logger, opts, result, runErr)

	if runErr != nil {
		logger.Error("build aborted", logging.Error(runErr))
		return result, runErr
	}
	logger.Info("build finished",
		logging.Int("total", result.Summary.Total),
		logging.Int("compiled", result.Summary.Compiled),
		logging.Int("skipped", result.Summary.Skipped),
		logging.Int("failed", result.Summary.Failed),
		logging.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
	if result.Summary.Failed > 0 {
		logger.Warn("some sources failed to compile",
			logging.Int("failed", result.Summary.Failed),
			logging.Alert("compile_failures"),
		)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("build interrupted: %w", err)
	}
	return result, nil
}

func (b *Builder) run(ctx context.Context, logger *slog.Logger, opts RunOptions, result *Result) error {
	if opts.Clean {
		removed, err := b.removeOutputs(logger, false, opts.Filters)
		result.Removed = removed
		if err != nil {
			return err
		}
	}

	staging.CleanStale(ctx, b.cfg.Paths.OutputDir, b.staleStagingAge(), logger)

	sources, err := discovery.Find(
		b.cfg.Paths.SourceDir,
		b.cfg.Compiler.SourceExt,
		b.cfg.Build.ExcludePrefixes,
		b.cfg.Build.FollowLinks,
	)
	if err != nil {
		return fmt.Errorf("discover sources: %w", err)
	}
	sources, err = filterSources(b.cfg.Paths.SourceDir, sources, opts.Filters)
	if err != nil {
		return err
	}
	logger.Info("sources discovered",
		logging.Int("count", len(sources)),
		logging.String("source_root", b.cfg.Paths.SourceDir),
	)

	runnerOpts := []compiler.Option{compiler.WithLogger(logger)}
	if b.exec != nil {
		runnerOpts = append(runnerOpts, compiler.WithExecutor(b.exec))
	}
	runner, err := compiler.New(b.runnerOptions(opts), result.Ledger, runnerOpts...)
	if err != nil {
		return err
	}

	for _, source := range sources {
		if ctxErr := ctx.Err(); ctxErr != nil {
			output, _ := runner.OutputPath(source)
			result.Ledger.Record(ledger.Outcome{Input: source, Output: output, Error: ctxErr.Error()})
			continue
		}
		runner.Compile(ctx, source)
	}
	return nil
}

// staleStagingAge is the age past which a staging file cannot belong to a
// compiler that is still running.
func (b *Builder) staleStagingAge() time.Duration {
	return b.cfg.CompilerTimeout() + time.Minute
}

func filterSources(root string, sources, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return sources, nil
	}
	filtered := make([]string, 0, len(sources))
	for _, source := range sources {
		ok, err := discovery.MatchFilter(root, source, patterns)
		if err != nil {
			return nil, fmt.Errorf("filter sources: %w", err)
		}
		if ok {
			filtered = append(filtered, source)
		}
	}
	return filtered, nil
}

// Clean removes every managed output under the output root. With dryRun
// the outputs are only listed.
func (b *Builder) Clean(ctx context.Context, dryRun bool) ([]string, error) {
	release, err := b.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.removeOutputs(b.logger, dryRun, nil)
}

// removeOutputs deletes managed outputs. With filters, only outputs whose
// source counterpart or own path matches are touched.
func (b *Builder) removeOutputs(logger *slog.Logger, dryRun bool, filters []string) ([]string, error) {
	outputs, err := discovery.FindCompiledOutputs(b.cfg.Paths.OutputDir, b.cfg.Compiler.OutputExt)
	if err != nil {
		return nil, fmt.Errorf("find compiled outputs: %w", err)
	}
	if len(filters) > 0 {
		if outputs, err = b.filterOutputs(outputs, filters); err != nil {
			return nil, err
		}
	}
	if dryRun {
		logger.Info("clean dry run", logging.Int("outputs", len(outputs)))
		return outputs, nil
	}
	removed := make([]string, 0, len(outputs))
	for _, output := range outputs {
		if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", output, err)
		}
		removed = append(removed, output)
		logger.Debug("removed output", logging.String(logging.FieldOutput, output))
	}
	logger.Info("cleaned outputs", logging.Int("removed", len(removed)))
	return removed, nil
}

func (b *Builder) filterOutputs(outputs, patterns []string) ([]string, error) {
	filtered := make([]string, 0, len(outputs))
	for _, output := range outputs {
		ok, err := discovery.MatchFilter(b.cfg.Paths.OutputDir, output, patterns)
		if err != nil {
			return nil, fmt.Errorf("filter outputs: %w", err)
		}
		if !ok {
			if source, mapped := b.sourceFor(output); mapped {
				if ok, err = discovery.MatchFilter(b.cfg.Paths.SourceDir, source, patterns); err != nil {
					return nil, fmt.Errorf("filter outputs: %w", err)
				}
			}
		}
		if ok {
			filtered = append(filtered, output)
		}
	}
	return filtered, nil
}

// sourceFor maps an output back to the source path that would produce it.
func (b *Builder) sourceFor(output string) (string, bool) {
	rel, err := filepath.Rel(b.cfg.Paths.OutputDir, output)
	if err != nil || !strings.HasSuffix(rel, b.cfg.Compiler.OutputExt) {
		return "", false
	}
	rel = strings.TrimSuffix(rel, b.cfg.Compiler.OutputExt) + b.cfg.Compiler.SourceExt
	return filepath.Join(b.cfg.Paths.SourceDir, rel), true
}

func (b *Builder) recordHistory(ctx context.Context, logger *slog.Logger, opts RunOptions, result *Result, runErr error) {
	if b.history == nil || !b.cfg.History.Enabled {
		return
	}
	runner := b.runnerOptions(opts)
	run := history.Run{
		ID:              result.RunID,
		Trigger:         opts.Trigger,
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
		SourceRoot:      b.cfg.Paths.SourceDir,
		OutputRoot:      b.cfg.Paths.OutputDir,
		CheckTimestamps: runner.CheckTimestamps,
		Compress:        runner.Compress,
		Clean:           opts.Clean,
		Filters:         opts.Filters,
		Summary:         result.Summary,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// History writes outlive a cancelled build context.
	storeCtx := context.WithoutCancel(ctx)
	if err := b.history.RecordRun(storeCtx, run, result.Ledger.Results()); err != nil {
		logger.Warn("failed to record run history",
			logging.Error(err),
			logging.String("impact", "run missing from kettle history"),
		)
		return
	}
	if removed, err := b.history.Prune(storeCtx, b.cfg.History.KeepRuns); err != nil {
		logger.Warn("failed to prune run history", logging.Error(err))
	} else if removed > 0 {
		logger.Debug("pruned run history", logging.Int("removed", int(removed)))
	}
}
