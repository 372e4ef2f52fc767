package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"call-evaluator-go/internal/httpapi"
	"call-evaluator-go/internal/types"
)

func (c *commandContext) requireOwner() (string, error) {
	if *c.owner == "" {
		return "", errors.New("--owner is required (or set CALLQA_OWNER)")
	}
	return *c.owner, nil
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var name, submitter string
	cmd := &cobra.Command{
		Use:   "submit <source-url>",
		Short: "Queue a call recording for evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.requireOwner()
			if err != nil {
				return err
			}
			sub, err := ctx.client().Submit(cmd.Context(), httpapi.SubmitRequest{
				Owner:       owner,
				SourceURL:   args[0],
				DisplayName: name,
				Submitter:   submitter,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sub.Queued {
				fmt.Fprintf(out, "Queued %s as %s (%d ahead)\n", sub.Job.DisplayName, sub.Job.ID, sub.Ahead)
			} else {
				fmt.Fprintf(out, "Started %s as %s\n", sub.Job.DisplayName, sub.Job.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the file name of the URL)")
	cmd.Flags().StringVar(&submitter, "submitter", "", "Submitter name used when the manager is not identified")
	return cmd
}

func newDecideCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "decide <job-id> <overwrite|skip>",
		Short: "Answer an overwrite prompt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.requireOwner()
			if err != nil {
				return err
			}
			choice := types.Choice(args[1])
			if !choice.Valid() {
				return fmt.Errorf("choice must be overwrite or skip, got %q", args[1])
			}
			err = ctx.client().Decide(cmd.Context(), owner, args[0], choice)
			var se *httpapi.StatusError
			if errors.As(err, &se) && se.Code == http.StatusConflict {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is no longer waiting for a decision\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Decision %s applied to %s\n", choice, args[0])
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the owner's queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.requireOwner()
			if err != nil {
				return err
			}
			snap, err := ctx.client().Snapshot(cmd.Context(), owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, snap)
			}
			fmt.Fprintf(out, "Owner:   %s\nState:   %s\n", snap.Owner, snap.State)
			if snap.Current != nil {
				fmt.Fprintf(out, "Current: %s (%s)\n", snap.Current.DisplayName, snap.Current.ID)
			}
			if snap.Suspended != nil {
				fmt.Fprintf(out, "Waiting: overwrite %s at %s? job %s\n",
					snap.Suspended.Job.DisplayName, snap.Suspended.Existing, snap.Suspended.Job.ID)
			}
			fmt.Fprintf(out, "Pending: %d\n", len(snap.Pending))
			for i, job := range snap.Pending {
				fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, job.DisplayName, job.ID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func newInboxCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show notifications and open overwrite prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.requireOwner()
			if err != nil {
				return err
			}
			ib, err := ctx.client().Inbox(cmd.Context(), owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, ib)
			}
			for _, p := range ib.Prompts {
				fmt.Fprintf(out, "PROMPT  %s already stored at %s; callqa decide %s overwrite|skip\n",
					p.Job.DisplayName, p.Existing, p.Job.ID)
			}
			for _, ev := range ib.Events {
				fmt.Fprintf(out, "%s  %-21s %s%s\n", ev.At.Format("15:04:05"), ev.Kind, ev.Job.DisplayName, eventDetail(ev))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func eventDetail(ev types.Event) string {
	switch {
	case ev.Error != "":
		return ": " + ev.Error
	case ev.Kind == types.EventQueued:
		return fmt.Sprintf(" (%d ahead)", ev.Position)
	case ev.Record != nil:
		return fmt.Sprintf(" total=%d manager=%s", ev.Record.TotalScore, ev.Record.ManagerName)
	}
	return ""
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the aggregated evaluation report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := ctx.client().Report(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
