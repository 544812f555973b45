package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"kettle/internal/build"
	"kettle/internal/config"
	"kettle/internal/ledger"
)

// buildReport is the JSON shape of a compile run.
type buildReport struct {
	RunID    string            `json:"run_id"`
	Summary  ledger.Summary    `json:"summary"`
	Outcomes []ledger.Outcome  `json:"outcomes"`
	Errors   map[string]string `json:"errors,omitempty"`
	Removed  []string          `json:"removed,omitempty"`
	Debug    *build.DebugInfo  `json:"debug,omitempty"`
}

func newBuildReport(result *build.Result, debug *build.DebugInfo) buildReport {
	report := buildReport{
		RunID:    result.RunID,
		Summary:  result.Summary,
		Outcomes: result.Ledger.Results(),
		Removed:  result.Removed,
		Debug:    debug,
	}
	if report.Outcomes == nil {
		report.Outcomes = []ledger.Outcome{}
	}
	if errs := result.Ledger.Errors(); len(errs) > 0 {
		report.Errors = errs
	}
	return report
}

func writeBuildReport(out io.Writer, cfg *config.Config, result *build.Result, colorize bool) {
	if len(result.Removed) > 0 {
		fmt.Fprintf(out, "Removed %d compiled %s\n", len(result.Removed), plural(len(result.Removed), "output", "outputs"))
	}
	outcomes := result.Ledger.Results()
	if len(outcomes) == 0 {
		fmt.Fprintf(out, "No %s sources found in %s\n", cfg.Compiler.SourceExt, cfg.Paths.SourceDir)
		return
	}
	fmt.Fprintln(out, renderOutcomeTable(cfg.Paths.SourceDir, cfg.Paths.OutputDir, outcomes, colorize))

	if failures := result.Ledger.Failures(); len(failures) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Errors", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, outcome := range failures {
			fmt.Fprintf(out, "%s%s: %s\n", statusIndent, relativeTo(cfg.Paths.SourceDir, outcome.Input), outcome.Error)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, summaryLine(result.Summary, result.FinishedAt.Sub(result.StartedAt)))
}

func renderOutcomeTable(sourceRoot, outputRoot string, outcomes []ledger.Outcome, colorize bool) string {
	rows := make([][]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		label, kind := outcomeStatus(outcome)
		rows = append(rows, []string{
			relativeTo(sourceRoot, outcome.Input),
			relativeTo(outputRoot, outcome.Output),
			formatElapsed(outcome),
			outputSize(outcome),
			paint(label, kind, colorize),
		})
	}
	return renderTable(
		[]string{"Source", "Output", "Time", "Size", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func summaryLine(summary ledger.Summary, elapsed time.Duration) string {
	return fmt.Sprintf("%d compiled, %d up to date, %d failed (%d %s in %s)",
		summary.Compiled,
		summary.Skipped,
		summary.Failed,
		summary.Total,
		plural(summary.Total, "file", "files"),
		elapsed.Round(time.Millisecond),
	)
}

func formatElapsed(outcome ledger.Outcome) string {
	if outcome.Skipped {
		return "-"
	}
	return fmt.Sprintf("%.1f ms", outcome.ElapsedMs)
}

func outputSize(outcome ledger.Outcome) string {
	if outcome.Failed() || outcome.Output == "" {
		return "-"
	}
	info, err := os.Stat(outcome.Output)
	if err != nil {
		return "-"
	}
	return humanize.Bytes(uint64(info.Size()))
}

func relativeTo(root, path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func writeDebugInfo(out io.Writer, info build.DebugInfo) {
	rows := [][]string{
		{"Check timestamps", yesNo(info.CheckTimestamps)},
		{"Compress", yesNo(info.Compress)},
		{"Source root", info.SourceRoot},
		{"Output root", info.OutputRoot},
		{"Compiler", strings.TrimSpace(info.Compiler + " " + strings.Join(info.CompilerArgs, " "))},
		{"Extensions", info.SourceExt + " -> " + info.OutputExt},
		{"Exclude prefixes", strings.Join(info.ExcludePrefixes, ", ")},
		{"Follow links", yesNo(info.FollowLinks)},
		{"Timeout", info.Timeout},
		{"Lock", info.LockPath},
	}
	if info.HistoryPath != "" {
		rows = append(rows, []string{"History", info.HistoryPath})
	}
	fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, rows, nil))
}
