package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"call-evaluator-go/internal/config"
	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/pipeline"
	"call-evaluator-go/internal/types"
)

// recordOnly satisfies the persister without touching the workbook.
type recordOnly struct{}

func (recordOnly) Persist(context.Context, types.Job, *types.EvaluationRecord) (types.Location, error) {
	return types.Location{}, nil
}

func newEvaluateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <file-or-url>",
		Short: "Evaluate one recording locally and print the result",
		Long:  "Runs fetch, normalize and analyze in-process using the service environment (.env). Nothing is written to the workbook.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// the local file named on the command line is the only local source allowed
			if src := args[0]; !strings.Contains(src, "://") || strings.HasPrefix(strings.ToLower(src), "file://") {
				abs, err := filepath.Abs(strings.TrimPrefix(src, "file://"))
				if err != nil {
					return err
				}
				cfg.LocalSourceDir = filepath.Dir(abs)
			}
			log := logger.NewWithOutput(cmd.ErrOrStderr())
			runner := pipeline.FromConfig(cfg, recordOnly{}, log)

			job := types.Job{
				ID:          "local",
				Owner:       "local",
				SourceRef:   args[0],
				DisplayName: filepath.Base(args[0]),
			}
			rec, err := runner.Run(cmd.Context(), job)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", job.DisplayName, err)
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
}
