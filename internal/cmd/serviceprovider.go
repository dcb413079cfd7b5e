package cmd

import (
	"fmt"
	"strconv"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/infrahq/custody/custody"
)

func newServiceProviderCmd(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serviceprovider",
		Aliases: []string{"sp"},
		Short:   "Manage the service provider of the api key",
	}

	cmd.AddCommand(
		newServiceProviderCreateCmd(cli),
		newServiceProviderGetCmd(cli),
		newServiceProviderValidateDomainCmd(cli))
	return cmd
}

func newServiceProviderCreateCmd(cli *CLI) *cobra.Command {
	var opts custody.ServiceProviderOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new service provider",
		Long: `Register a new service provider. The api key of the new service provider is
only shown once, store it before running other commands.`,
		Args: NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, false)
			if err != nil {
				return err
			}

			sp, err := custody.CreateServiceProvider(ctx, conn, opts)
			if err != nil {
				return err
			}

			cli.Output("Created service provider %s (%s)", sp.Name(), sp.ID())
			if key := sp.APIKey(); key != "" {
				cli.Output("")
				cli.Output("  Api key: %s", termenv.String(key).Bold().String())
				fmt.Fprintln(cli.Stderr, "  This key will not be shown again.")
			}
			if sp.DomainChallenge() != "" {
				cli.Output("")
				cli.Output("  Serve %q at %s", sp.DomainChallenge(), sp.DomainChallengeURL())
				cli.Output("  then run: custody serviceprovider validate-domain %s", sp.ID())
			}
			if nonce := sp.NonceFormatted(); nonce != "" {
				cli.Output("  Confirm in the app that the code is %s", termenv.String(nonce).Bold().String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Name shown in the app")
	cmd.Flags().StringVar(&opts.URL, "url", "", "URL of the service, its domain is validated")
	cmd.Flags().StringVar(&opts.CallbackURL, "callback-url", "", "URL that receives callbacks, see custody server")
	cmd.Flags().StringVar(&opts.Template, "template", "", "App template of the service provider")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newServiceProviderGetCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "get UUID",
		Short: "Show a service provider",
		Args:  ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			sp := custody.NewServiceProvider(conn, args[0])
			if err := sp.Fetch(ctx, true); err != nil {
				return err
			}

			type row struct {
				ID        string `header:"ID"`
				Name      string `header:"NAME"`
				State     string `header:"STATE"`
				Domain    bool   `header:"DOMAIN VALIDATED"`
				Assets    string `header:"ASSETS"`
				Admin     string `header:"ADMIN ASSET"`
				Callbacks string `header:"CALLBACK URL"`
			}

			cli.Table([]row{{
				ID:        sp.ID(),
				Name:      sp.Name(),
				State:     sp.State().String(),
				Domain:    sp.DomainValidated(),
				Assets:    strconv.Itoa(sp.AssetCount()),
				Admin:     sp.AdminAsset().ID(),
				Callbacks: sp.CallbackURL(),
			}})
			return nil
		},
	}
}

func newServiceProviderValidateDomainCmd(cli *CLI) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "validate-domain UUID",
		Short: "Validate the domain of a service provider",
		Args:  ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			sp := custody.NewServiceProvider(conn, args[0])
			if err := sp.Fetch(ctx, true); err != nil {
				return err
			}

			ok, err := sp.ValidateDomain(ctx, force)
			if err != nil {
				return err
			}
			if !ok {
				return Error{
					Cause:      "domain could not be validated",
					Suggestion: fmt.Sprintf("Check that %s serves %q.", sp.DomainChallengeURL(), sp.DomainChallenge()),
				}
			}

			cli.Output("Domain of %s is validated", sp.Name())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Validate again when the domain was validated before")
	return cmd
}

func newIdentificationCmd(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identification",
		Short: "Register new assets",
	}

	cmd.AddCommand(
		newIdentificationCreateCmd(cli),
		newIdentificationGetCmd(cli))
	return cmd
}

func newIdentificationCreateCmd(cli *CLI) *cobra.Command {
	var qrOut string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start the registration of a new asset",
		Long: `Start the registration of a new asset. The user scans the QR code, or opens
the app link, and the app creates a key pair. Once the identification is
consumed, "custody identification get" shows the new asset.`,
		Args: NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			ident, err := custody.NewServiceProvider(conn, "").CreateIdentification(ctx)
			if err != nil {
				return err
			}

			cli.Output("Created identification %s", ident.ID())
			cli.Output("  App link: %s", ident.AppAPI())
			if nonce := ident.NonceFormatted(); nonce != "" {
				cli.Output("  Confirm in the app that the code is %s", termenv.String(nonce).Bold().String())
			}

			if qrOut != "" {
				png, err := ident.QRCodePNG()
				if err != nil {
					return err
				}
				if err := cli.writeOutput(qrOut, png); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&qrOut, "qr-out", "", "Write the QR code as a PNG image to this file")
	return cmd
}

func newIdentificationGetCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "get UUID",
		Short: "Show an identification",
		Args:  ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			ident := custody.NewIdentification(conn, args[0])
			if err := ident.Fetch(ctx, true); err != nil {
				return err
			}

			type row struct {
				ID    string `header:"ID"`
				State string `header:"STATE"`
				Asset string `header:"ASSET"`
			}

			asset := "-"
			if a := ident.Asset(); a != nil {
				asset = a.ID()
			}

			cli.Table([]row{{ID: ident.ID(), State: ident.State().String(), Asset: asset}})
			return nil
		},
	}
}
