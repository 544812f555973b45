package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"kettle/internal/discovery"
	"kettle/internal/history"
	"kettle/internal/logging"
	"kettle/internal/preflight"
)

type statusReport struct {
	ConfigPath string             `json:"config_path"`
	Checks     []preflight.Result `json:"checks"`
	Sources    int                `json:"sources"`
	Outputs    int                `json:"outputs"`
	LastRun    *history.Run       `json:"last_run,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show readiness checks and build tree state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			report := statusReport{
				ConfigPath: ctx.configPath,
				Checks:     preflight.RunAll(cmd.Context(), cfg),
			}
			sources, err := discovery.Find(cfg.Paths.SourceDir, cfg.Compiler.SourceExt, cfg.Build.ExcludePrefixes, cfg.Build.FollowLinks)
			if err != nil {
				logger.Warn("source discovery failed", logging.Error(err))
			}
			report.Sources = len(sources)
			outputs, err := discovery.FindCompiledOutputs(cfg.Paths.OutputDir, cfg.Compiler.OutputExt)
			if err != nil {
				logger.Warn("output scan failed", logging.Error(err))
			}
			report.Outputs = len(outputs)

			store, err := ctx.openHistory()
			if err != nil {
				logger.Warn("run history unavailable", logging.Error(err))
			} else if store != nil {
				defer store.Close()
				runs, err := store.ListRuns(cmd.Context(), 1)
				if err != nil {
					logger.Warn("read run history failed", logging.Error(err))
				} else if len(runs) > 0 {
					report.LastRun = &runs[0]
				}
			}

			if jsonOut {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Config: %s\n\n", report.ConfigPath)

			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range report.Checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Tree", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Sources", statusInfo, fmt.Sprintf("%d %s files", report.Sources, cfg.Compiler.SourceExt), colorize))
			fmt.Fprintln(out, renderStatusLine("Outputs", statusInfo, fmt.Sprintf("%d compiled %s files", report.Outputs, cfg.Compiler.OutputExt), colorize))

			if run := report.LastRun; run != nil {
				kind := statusOK
				if run.Failed() {
					kind = statusWarn
				}
				message := fmt.Sprintf("%s %s, %d/%d failed (%s)",
					shortID(run.ID),
					humanize.Time(run.StartedAt),
					run.Summary.Failed,
					run.Summary.Total,
					run.Duration().Round(time.Millisecond),
				)
				fmt.Fprintln(out, renderStatusLine("Last run", kind, message, colorize))
			}
			return nil
		},
	}

	addJSONFlag(cmd, &jsonOut)
	return cmd
}
