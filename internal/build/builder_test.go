package build_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kettle/internal/artifact"
	"kettle/internal/build"
	"kettle/internal/config"
	"kettle/internal/discovery"
	"kettle/internal/history"
	"kettle/internal/testsupport"
)

func newBuilder(t *testing.T, cfg *config.Config, opts ...build.Option) *build.Builder {
	t.Helper()
	b, err := build.New(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("build.New: %v", err)
	}
	return b
}

func TestRunCompilesDiscoveredSources(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	testsupport.WriteSource(t, cfg, "app.coffee", "app()\n")
	testsupport.WriteSource(t, cfg, "lib/util.coffee", "util()\n")
	testsupport.WriteSource(t, cfg, "lib/_partial.coffee", "partial()\n")
	testsupport.WriteSource(t, cfg, "README.md", "docs\n")

	result, err := newBuilder(t, cfg).Run(context.Background(), build.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("expected run id")
	}
	if result.Summary.Total != 2 || result.Summary.Compiled != 2 {
		t.Fatalf("summary = %+v", result.Summary)
	}
	if err := result.Err(); err != nil {
		t.Fatalf("Err = %v", err)
	}

	for _, rel := range []string{"app.js", "lib/util.js"} {
		content := testsupport.ReadFile(t, filepath.Join(cfg.Paths.OutputDir, rel))
		if !strings.HasPrefix(content, artifact.Header) {
			t.Fatalf("%s missing marker: %q", rel, content)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, "lib", "_partial.js")); !os.IsNotExist(err) {
		t.Fatalf("excluded source was compiled: %v", err)
	}
}

func TestRunSkipsUpToDateOutputsOnSecondPass(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	a := testsupport.WriteSource(t, cfg, "a.coffee", "a()\n")
	b := testsupport.WriteSource(t, cfg, "b.coffee", "b()\n")
	past := time.Now().Add(-time.Hour)
	testsupport.SetMtime(t, a, past)
	testsupport.SetMtime(t, b, past)
	builder := newBuilder(t, cfg)

	if _, err := builder.Run(context.Background(), build.RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := builder.Run(context.Background(), build.RunOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Summary.Skipped != 2 || second.Summary.Compiled != 0 {
		t.Fatalf("second summary = %+v", second.Summary)
	}
	for _, outcome := range second.Ledger.Results() {
		if !outcome.Compiled || outcome.ElapsedMs != 0 {
			t.Fatalf("skip outcome = %+v", outcome)
		}
	}
	if got := testsupport.CompilerInvocations(t, cfg); len(got) != 2 {
		t.Fatalf("expected 2 compiler invocations, got %v", got)
	}

	forced, err := builder.Run(context.Background(), build.RunOptions{Force: true})
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if forced.Summary.Compiled != 2 {
		t.Fatalf("forced summary = %+v", forced.Summary)
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	bad := testsupport.WriteSource(t, cfg, "bad.coffee", "if\n")
	testsupport.WriteSource(t, cfg, "good.coffee", "ok()\n")

	result, err := newBuilder(t, cfg).Run(context.Background(), build.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Summary.Failed != 1 || result.Summary.Compiled != 1 {
		t.Fatalf("summary = %+v", result.Summary)
	}
	if msg, ok := result.Ledger.ErrorFor(bad); !ok || msg != "syntax error line 3" {
		t.Fatalf("ErrorFor(bad) = %q, %v", msg, ok)
	}

	var failure *build.FailureError
	if !errors.As(result.Err(), &failure) {
		t.Fatalf("expected FailureError, got %v", result.Err())
	}
	if len(failure.Inputs()) != 1 || failure.Inputs()[0] != bad {
		t.Fatalf("failed inputs = %v", failure.Inputs())
	}
	if !strings.Contains(failure.Error(), "syntax error line 3") {
		t.Fatalf("error text = %q", failure.Error())
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, "good.js")); err != nil {
		t.Fatalf("good output missing: %v", err)
	}
}

func TestRunWithMissingSourceRootDoesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())

	result, err := newBuilder(t, cfg).Run(context.Background(), build.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Summary.Total != 0 {
		t.Fatalf("summary = %+v", result.Summary)
	}
	if got := testsupport.CompilerInvocations(t, cfg); len(got) != 0 {
		t.Fatalf("compiler invoked: %v", got)
	}
}

func TestRunDiscoveryErrorIsFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	testsupport.WriteFile(t, cfg.Paths.SourceDir, "not a directory")

	result, err := newBuilder(t, cfg).Run(context.Background(), build.RunOptions{})
	var discErr *discovery.Error
	if !errors.As(err, &discErr) {
		t.Fatalf("expected discovery error, got %v", err)
	}
	if result == nil || result.Ledger.Len() != 0 {
		t.Fatalf("expected empty ledger, got %+v", result)
	}
}

func TestRunCleanRemovesOnlyManagedOutputs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	testsupport.WriteSource(t, cfg, "app.coffee", "app()\n")
	stale := filepath.Join(cfg.Paths.OutputDir, "old", "gone.js")
	handWritten := filepath.Join(cfg.Paths.OutputDir, "vendor.js")
	testsupport.WriteFile(t, stale, string(artifact.Wrap([]byte("gone()\n"))))
	testsupport.WriteFile(t, handWritten, "// vendor code\n")

	result, err := newBuilder(t, cfg).Run(context.Background(), build.RunOptions{Clean: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0] != stale {
		t.Fatalf("removed = %v", result.Removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("managed output survived clean: %v", err)
	}
	if got := testsupport.ReadFile(t, handWritten); got != "// vendor code\n" {
		t.Fatalf("hand-written file modified: %q", got)
	}
	if result.Summary.Compiled != 1 {
		t.Fatalf("summary = %+v", result.Summary)
	}
}

func TestCleanDryRunKeepsFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	managed := filepath.Join(cfg.Paths.OutputDir, "app.js")
	testsupport.WriteFile(t, managed, string(artifact.Wrap([]byte("app()\n"))))
	builder := newBuilder(t, cfg)

	listed, err := builder.Clean(context.Background(), true)
	if err != nil {
		t.Fatalf("Clean dry run: %v", err)
	}
	if len(listed) != 1 || listed[0] != managed {
		t.Fatalf("listed = %v", listed)
	}
	if _, err := os.Stat(managed); err != nil {
		t.Fatalf("dry run removed output: %v", err)
	}

	removed, err := builder.Clean(context.Background(), false)
	if err != nil || len(removed) != 1 {
		t.Fatalf("Clean = %v, %v", removed, err)
	}
	if _, err := os.Stat(managed); !os.IsNotExist(err) {
		t.Fatalf("output survived clean: %v", err)
	}
}

func TestRunCleanWithFilterKeepsOtherOutputs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	testsupport.WriteSource(t, cfg, "app.coffee", "app()\n")
	testsupport.WriteSource(t, cfg, "admin.coffee", "admin()\n")
	builder := newBuilder(t, cfg)
	if _, err := builder.Run(context.Background(), build.RunOptions{}); err != nil {
		t.Fatalf("initial Run: %v", err)
	}

	result, err := builder.Run(context.Background(), build.RunOptions{Clean: true, Filters: []string{"app"}})
	if err != nil {
		t.Fatalf("filtered clean Run: %v", err)
	}
	appOut := filepath.Join(cfg.Paths.OutputDir, "app.js")
	adminOut := filepath.Join(cfg.Paths.OutputDir, "admin.js")
	if len(result.Removed) != 1 || result.Removed[0] != appOut {
		t.Fatalf("removed = %v", result.Removed)
	}
	if got := testsupport.ReadFile(t, adminOut); !strings.Contains(got, "admin()") {
		t.Fatalf("unfiltered output lost: %q", got)
	}
	if _, err := os.Stat(appOut); err != nil {
		t.Fatalf("filtered output not rebuilt: %v", err)
	}
	if result.Summary.Compiled != 1 {
		t.Fatalf("summary = %+v", result.Summary)
	}
}

func TestCompiledOutputsListOnlySuccessfulCompiles(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	testsupport.WriteSource(t, cfg, "good.coffee", "good()\n")
	testsupport.WriteSource(t, cfg, "bad.coffee", "bad(\n")

	if _, err := newBuilder(t, cfg).Run(context.Background(), build.RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	outputs, err := discovery.FindCompiledOutputs(cfg.Paths.OutputDir, cfg.Compiler.OutputExt)
	if err != nil {
		t.Fatalf("FindCompiledOutputs: %v", err)
	}
	want := filepath.Join(cfg.Paths.OutputDir, "good.js")
	if len(outputs) != 1 || outputs[0] != want {
		t.Fatalf("outputs = %v, want [%s]", outputs, want)
	}
	entries, err := os.ReadDir(cfg.Paths.OutputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("unexpected files left in output dir: %v", entries)
	}
}

func TestRunSweepsStaleStagingFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	testsupport.WriteSource(t, cfg, "app.coffee", "app()\n")
	leftover := filepath.Join(cfg.Paths.OutputDir, "lib", ".util.js.42.tmp")
	fresh := filepath.Join(cfg.Paths.OutputDir, ".other.js.7.tmp")
	testsupport.WriteFile(t, leftover, "partial")
	testsupport.WriteFile(t, fresh, "partial")
	testsupport.SetMtime(t, leftover, time.Now().Add(-time.Hour))

	if _, err := newBuilder(t, cfg).Run(context.Background(), build.RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Fatalf("stale staging file survived: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh staging file removed: %v", err)
	}
}

func TestRunFiltersSources(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	app := testsupport.WriteSource(t, cfg, "app.coffee", "app()\n")
	testsupport.WriteSource(t, cfg, "admin.coffee", "admin()\n")

	result, err := newBuilder(t, cfg).Run(context.Background(), build.RunOptions{Filters: []string{"app"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := result.Ledger.Results()
	if len(results) != 1 || results[0].Input != app {
		t.Fatalf("results = %+v", results)
	}

	if _, err := newBuilder(t, cfg).Run(context.Background(), build.RunOptions{Filters: []string{"["}}); err == nil {
		t.Fatal("expected error for invalid filter pattern")
	}
}

func TestRunHoldsBuildLock(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	holder := newBuilder(t, cfg)
	if err := holder.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer holder.Unlock()

	other := newBuilder(t, cfg)
	if _, err := other.Run(context.Background(), build.RunOptions{}); !errors.Is(err, build.ErrBuildLocked) {
		t.Fatalf("expected ErrBuildLocked, got %v", err)
	}
	if _, err := other.Clean(context.Background(), true); !errors.Is(err, build.ErrBuildLocked) {
		t.Fatalf("expected ErrBuildLocked from Clean, got %v", err)
	}

	if _, err := holder.Run(context.Background(), build.RunOptions{}); err != nil {
		t.Fatalf("holder Run while locked: %v", err)
	}
	holder.Unlock()
	if _, err := other.Run(context.Background(), build.RunOptions{}); err != nil {
		t.Fatalf("Run after unlock: %v", err)
	}
}

func TestRunCancelledRecordsRemainingSources(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	testsupport.WriteSource(t, cfg, "a.coffee", "a()\n")
	testsupport.WriteSource(t, cfg, "b.coffee", "b()\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := newBuilder(t, cfg).Run(ctx, build.RunOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Ledger.Len() != 2 || result.Summary.Failed != 2 {
		t.Fatalf("summary = %+v", result.Summary)
	}
	if got := testsupport.CompilerInvocations(t, cfg); len(got) != 0 {
		t.Fatalf("compiler invoked after cancellation: %v", got)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	cfg.History.KeepRuns = 2
	testsupport.WriteSource(t, cfg, "app.coffee", "app()\n")
	testsupport.WriteSource(t, cfg, "bad.coffee", "if\n")
	store := testsupport.MustOpenHistory(t, cfg)
	builder := newBuilder(t, cfg, build.WithHistory(store))
	ctx := context.Background()

	var last *build.Result
	for range 3 {
		result, err := builder.Run(ctx, build.RunOptions{Trigger: history.TriggerWatch})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		last = result
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected history pruned to 2 runs, got %d", len(runs))
	}
	if runs[0].ID != last.RunID || runs[0].Trigger != history.TriggerWatch {
		t.Fatalf("latest run = %+v", runs[0])
	}
	if runs[0].Summary != last.Summary {
		t.Fatalf("stored summary = %+v, want %+v", runs[0].Summary, last.Summary)
	}
	outcomes, err := store.Outcomes(ctx, last.RunID)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 2 || outcomes[1].Error != "syntax error line 3" {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}

func TestDebugInfoReflectsRunOptions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	builder := newBuilder(t, cfg)

	info := builder.DebugInfo(build.RunOptions{})
	if !info.CheckTimestamps || info.Compress {
		t.Fatalf("default debug info = %+v", info)
	}
	if info.SourceRoot != cfg.Paths.SourceDir || info.OutputRoot != cfg.Paths.OutputDir {
		t.Fatalf("roots = %s, %s", info.SourceRoot, info.OutputRoot)
	}

	info = builder.DebugInfo(build.RunOptions{Force: true, Compress: true})
	if info.CheckTimestamps || !info.Compress {
		t.Fatalf("overridden debug info = %+v", info)
	}
}
