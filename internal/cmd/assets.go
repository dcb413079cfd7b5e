package cmd

import (
	"encoding/base64"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/infrahq/custody/custody"
)

func newAssetCmd(cli *CLI) *cobra.Command {
	var publicKey bool

	cmd := &cobra.Command{
		Use:   "asset UUID",
		Short: "Show an asset",
		Args:  ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			asset := custody.NewAsset(conn, args[0])
			if err := asset.Fetch(ctx, true); err != nil {
				return err
			}

			if publicKey {
				_, err := cli.Stdout.Write(asset.PublicKey())
				return err
			}

			type row struct {
				ID    string `header:"ID"`
				Name  string `header:"NAME"`
				State string `header:"STATE"`
				Bits  string `header:"KEY SIZE"`
			}

			// a number column would be shortened, as in 2.4K
			bits := "-"
			if key, err := asset.Cipher(ctx); err == nil {
				bits = strconv.Itoa(key.Size() * 8)
			}

			cli.Table([]row{{
				ID:    asset.ID(),
				Name:  asset.Name(),
				State: asset.State().String(),
				Bits:  bits,
			}})
			return nil
		},
	}

	cmd.Flags().BoolVar(&publicKey, "public-key", false, "Print the PEM encoded public key")
	return cmd
}

func newEncryptCmd(cli *CLI) *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "encrypt ASSET",
		Short: "Encrypt data for an asset",
		Long: `Encrypt data with the public key of an asset. Only the owner of the asset can
decrypt it, see "custody decrypt". The ciphertext is written as base64.`,
		Example: `$ echo -n "the secret" | custody encrypt 1b4e28ba-2fa1-11d2-883f-0016d3cca427 > secret.b64`,
		Args:    ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			plaintext, err := cli.readInput(input)
			if err != nil {
				return err
			}

			ciphertext, err := custody.NewAsset(conn, args[0]).Encrypt(ctx, plaintext)
			if err != nil {
				return err
			}
			return cli.writeOutput(output, []byte(base64.StdEncoding.EncodeToString(ciphertext)+"\n"))
		},
	}

	cmd.Flags().StringVar(&input, "in", "-", "File to encrypt, - reads standard input")
	cmd.Flags().StringVar(&output, "out", "-", "Write the base64 ciphertext to this file")
	return cmd
}
