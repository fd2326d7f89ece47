package commands

import (
	"encoding/json"
	"fmt"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/spf13/cobra"
)

func newJobsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Args:  cobra.NoArgs,
		Short: "Inspect and control jobs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <job-id>",
			Args:  cobra.ExactArgs(1),
			Short: "Print one job",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				c, err := opts.container(ctx)
				if err != nil {
					return err
				}
				defer c.Close(ctx)

				job, err := c.JobManager.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s: %w", args[0], custom_errors.ErrJobNotFound)
				}
				return printJSON(cmd, job)
			},
		},
		&cobra.Command{
			Use:   "list <project-id>",
			Args:  cobra.ExactArgs(1),
			Short: "Print the jobs of a project, newest first",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				c, err := opts.container(ctx)
				if err != nil {
					return err
				}
				defer c.Close(ctx)

				jobs, err := c.JobManager.ListJobs(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, jobs)
			},
		},
		&cobra.Command{
			Use:   "cancel <job-id>",
			Args:  cobra.ExactArgs(1),
			Short: "Cancel one job",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				c, err := opts.container(ctx)
				if err != nil {
					return err
				}
				defer c.Close(ctx)
				return c.JobManager.Cancel(ctx, args[0])
			},
		},
		&cobra.Command{
			Use:   "stop-project <project-id>",
			Args:  cobra.ExactArgs(1),
			Short: "Cancel every unfinished job of a project and stop its running work",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				c, err := opts.container(ctx)
				if err != nil {
					return err
				}
				defer c.Close(ctx)
				return c.JobManager.StopProject(ctx, args[0])
			},
		},
	)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
