package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"kettle/internal/history"
	"kettle/internal/ledger"
)

const shortIDLength = 8

type runDetail struct {
	Run      history.Run      `json:"run"`
	Outcomes []ledger.Outcome `json:"outcomes"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent build runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("run history is disabled (set history.enabled = true)")
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				if runs == nil {
					runs = []history.Run{}
				}
				return writeJSON(cmd, runs)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					humanize.Time(run.StartedAt),
					string(run.Trigger),
					strconv.Itoa(run.Summary.Total),
					strconv.Itoa(run.Summary.Compiled),
					strconv.Itoa(run.Summary.Skipped),
					paintCount(run.Summary.Failed, colorize),
					run.Duration().Round(time.Millisecond).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Started", "Trigger", "Files", "Compiled", "Up To Date", "Failed", "Duration"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	addJSONFlag(cmd, &jsonOut)
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the per-file outcomes of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("run history is disabled (set history.enabled = true)")
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			outcomes, err := store.Outcomes(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if jsonOut {
				if outcomes == nil {
					outcomes = []ledger.Outcome{}
				}
				return writeJSON(cmd, runDetail{Run: run, Outcomes: outcomes})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			rows := [][]string{
				{"ID", run.ID},
				{"Trigger", string(run.Trigger)},
				{"Started", fmt.Sprintf("%s (%s)", run.StartedAt.Local().Format(time.DateTime), humanize.Time(run.StartedAt))},
				{"Duration", run.Duration().Round(time.Millisecond).String()},
				{"Source root", run.SourceRoot},
				{"Output root", run.OutputRoot},
				{"Check timestamps", yesNo(run.CheckTimestamps)},
				{"Compress", yesNo(run.Compress)},
				{"Clean", yesNo(run.Clean)},
			}
			if len(run.Filters) > 0 {
				rows = append(rows, []string{"Filters", strings.Join(run.Filters, " ")})
			}
			if run.Error != "" {
				rows = append(rows, []string{"Error", run.Error})
			}
			fmt.Fprintln(out, renderTable([]string{"Run", ""}, rows, nil))

			if len(outcomes) > 0 {
				fmt.Fprintln(out, renderOutcomeTable(run.SourceRoot, run.OutputRoot, outcomes, colorize))
			}
			fmt.Fprintln(out, summaryLine(run.Summary, run.Duration()))
			return nil
		},
	}

	addJSONFlag(cmd, &jsonOut)
	return cmd
}

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

func paintCount(count int, colorize bool) string {
	value := strconv.Itoa(count)
	if count == 0 {
		return value
	}
	return paint(value, statusError, colorize)
}
