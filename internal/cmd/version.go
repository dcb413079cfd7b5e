package cmd

import (
	"github.com/spf13/cobra"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/internal"
)

func newVersionCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the custody version",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.Output("custody %s", internal.FullVersion())
			return nil
		},
	}
}

func newPingCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the custodian API can be reached",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, false)
			if err != nil {
				return err
			}

			if err := conn.Ping(ctx); err != nil {
				return err
			}

			url := cli.options.API.URL
			if url == "" {
				url = api.DefaultURL
			}
			cli.Output("%s is reachable", url)
			return nil
		},
	}
}
