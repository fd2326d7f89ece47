package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	var (
		migrate bool
		noHTTP  bool
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Args:  cobra.NoArgs,
		Short: "Run jobs from the dispatch queue, reap stale jobs and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close(context.WithoutCancel(ctx))

			if migrate {
				if err := c.Migrate(ctx); err != nil {
					return err
				}
			}
			c.StartBackground()

			reaper := c.NewReaper()
			reaper.Start(ctx)
			defer reaper.Stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return c.NewRunner().Run(gctx)
			})
			if !noHTTP {
				g.Go(func() error {
					return c.NewHTTPServer().ListenAndServe(gctx, c.Config.HTTPAddr)
				})
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before starting")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "do not start the HTTP API")
	return cmd
}
