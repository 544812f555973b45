package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type cleanReport struct {
	DryRun  bool     `json:"dry_run"`
	Outputs []string `json:"outputs"`
}

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove compiled outputs from the output tree",
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

			outputs, err := builder.Clean(cmd.Context(), dryRun)
			if jsonOut {
				if outputs == nil {
					outputs = []string{}
				}
				if encErr := writeJSON(cmd, cleanReport{DryRun: dryRun, Outputs: outputs}); encErr != nil {
					return encErr
				}
				return err
			}

			out := cmd.OutOrStdout()
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			for _, output := range outputs {
				fmt.Fprintf(out, "%s%s\n", statusIndent, relativeTo(cfg.Paths.OutputDir, output))
			}
			fmt.Fprintf(out, "%s %d compiled %s\n", verb, len(outputs), plural(len(outputs), "output", "outputs"))
			return err
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "List outputs without removing them")
	addJSONFlag(cmd, &jsonOut)
	return cmd
}
