package commands

import (
	"context"

	"github.com/RezaEskandarii/genjob/app"
	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	handlers   *config.JobHandler
}

// NewRootCmd creates the root command. handlers are the job types the
// worker command can execute.
func NewRootCmd(handlers *config.JobHandler) *cobra.Command {
	opts := &rootOptions{handlers: handlers}

	rootCmd := &cobra.Command{
		Use:           "genjob",
		Short:         "Job control plane for generative media pipelines",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml, json or toml); GENJOB_* env vars override it")

	rootCmd.AddCommand(
		newMigrateCommand(opts),
		newWorkerCommand(opts),
		newJobsCommand(opts),
	)
	return rootCmd
}

func (o *rootOptions) container(ctx context.Context) (*app.Container, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return app.NewContainer(ctx, cfg, app.WithJobHandler(o.handlers))
}
