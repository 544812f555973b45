package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kettle/internal/build"
	"kettle/internal/history"
	"kettle/internal/logging"
	"kettle/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var compress bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Compile sources and recompile whenever they change",
		Long: `Run an initial build, then watch the source directory and rebuild after
changes settle. Builds run one at a time; changes made during a build are
picked up by the next one. Press Ctrl+C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			builder, logger, closeFn, err := ctx.newBuilder(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			// The lock spans every rebuild in the session.
			if err := builder.Lock(); err != nil {
				return err
			}
			defer builder.Unlock()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			opts := build.RunOptions{Compress: compress, Trigger: history.TriggerWatch}

			rebuild := func(runCtx context.Context) error {
				result, err := builder.Run(runCtx, opts)
				if result != nil && runCtx.Err() == nil {
					writeBuildReport(out, cfg, result, colorize)
				}
				return err
			}

			if err := rebuild(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("initial build failed", logging.Error(err))
			}

			watcher, err := watch.New(watch.Config{
				Root:      cfg.Paths.SourceDir,
				Extension: cfg.Compiler.SourceExt,
				Ignore:    cfg.Watch.Ignore,
				Debounce:  cfg.WatchDebounce(),
				Logger:    logger,
				OnChange: func(runCtx context.Context, changed []string) error {
					fmt.Fprintf(out, "\nChanged: %s\n", strings.Join(changed, ", "))
					return rebuild(runCtx)
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Watching %s for %s changes\n", cfg.Paths.SourceDir, cfg.Compiler.SourceExt)
			return watcher.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&compress, "compress", false, "Minify compiled output")
	return cmd
}
