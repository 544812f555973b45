package main

import (
	"github.com/spf13/cobra"

	"kettle/internal/build"
	"kettle/internal/history"
)

func newCompileCommand(ctx *commandContext) *cobra.Command {
	var (
		clean    bool
		compress bool
		debug    bool
		force    bool
		strict   bool
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "compile [pattern...]",
		Short: "Compile stale sources into the output tree",
		Long: `Compile every source under the source directory whose output is missing
or older than the source. Patterns restrict the run to matching sources,
relative to the source directory (doublestar globs, e.g. "lib/**").`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			builder, _, closeFn, err := ctx.newBuilder(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			opts := build.RunOptions{
				Clean:    clean,
				Filters:  args,
				Force:    force,
				Compress: compress,
				Trigger:  history.TriggerCompile,
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var debugInfo *build.DebugInfo
			if debug {
				info := builder.DebugInfo(opts)
				debugInfo = &info
				if !jsonOut {
					writeDebugInfo(out, info)
				}
			}

			result, runErr := builder.Run(cmd.Context(), opts)
			if result == nil {
				return runErr
			}
			if jsonOut {
				if err := writeJSON(cmd, newBuildReport(result, debugInfo)); err != nil {
					return err
				}
			} else {
				writeBuildReport(out, cfg, result, colorize)
			}
			if runErr != nil {
				return runErr
			}
			if strict || cfg.Build.Strict {
				return result.Err()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", false, "Remove compiled outputs before compiling")
	cmd.Flags().BoolVar(&compress, "compress", false, "Minify compiled output")
	cmd.Flags().BoolVar(&debug, "debug", false, "Print the effective build settings")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Recompile every source regardless of timestamps")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any source fails to compile")
	addJSONFlag(cmd, &jsonOut)
	return cmd
}
