package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infrahq/custody/internal/server"
)

func newServerCmd(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Receive notifications and callbacks from the custodian API",
		Long: `Receive notifications and callbacks from the custodian API.

Received states are written to the object cache. Configure a redis cache that
is shared with the commands that wait with --callback.`,
		Args: NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// notifications are fetched with the key, callbacks need none
			conn, err := cli.newConnector(ctx, false)
			if err != nil {
				return err
			}

			opts := cli.options.Server
			srv, err := server.New(server.Options{
				Addr: server.ListenerOptions{
					HTTP:    opts.Addr,
					Metrics: opts.MetricsAddr,
				},
				PruneInterval: opts.PruneInterval,
			}, conn, nil)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			return runServer(ctx, srv)
		},
	}

	cmd.Flags().String("server-addr", "", "Address to receive notifications and callbacks on (default \":8080\")")
	cmd.Flags().String("server-metrics-addr", "", "Address to serve metrics on (default \":9090\")")
	cmd.Flags().Duration("server-prune-interval", 0, "How often finished requests are forgotten (default 1m)")
	return cmd
}

// shim for testing
var runServer = func(ctx context.Context, srv *server.Server) error {
	return srv.Run(ctx)
}
