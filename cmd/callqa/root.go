package main

import (
	"os"

	"github.com/spf13/cobra"

	"call-evaluator-go/internal/httpapi"
)

type commandContext struct {
	server *string
	owner  *string
}

func (c *commandContext) client() *httpapi.Client {
	return httpapi.NewClient(*c.server)
}

func newRootCommand() *cobra.Command {
	serverFlag := envOr("CALLQA_SERVER", "http://localhost:8080")
	ownerFlag := os.Getenv("CALLQA_OWNER")
	ctx := &commandContext{server: &serverFlag, owner: &ownerFlag}

	rootCmd := &cobra.Command{
		Use:           "callqa",
		Short:         "Sales call evaluation client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", serverFlag, "Base URL of the evaluation service")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", ownerFlag, "Owner whose queue is addressed")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newDecideCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newInboxCommand(ctx))
	rootCmd.AddCommand(newReportCommand(ctx))
	rootCmd.AddCommand(newEvaluateCommand())

	return rootCmd
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
