package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/infrahq/custody/custody"
	"github.com/infrahq/custody/pki"
)

func newCSRCmd(cli *CLI) *cobra.Command {
	var (
		wait    waitOptions
		subject map[string]string
		format  pki.Format
		output  string
		resume  string
	)

	cmd := &cobra.Command{
		Use:   "csr ASSET",
		Short: "Create a certificate signing request for the key of an asset",
		Long: `Create a PKCS#10 certificate signing request for the public key of an asset.
The request is signed by the device once the owner approves, and the signature
is verified before the request is written.`,
		Example: `$ custody csr 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --subject CN=alice,O=Example --out alice.csr

# Write the request once the sign request made earlier was approved
$ custody csr 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --subject CN=alice,O=Example --resume 6fa459ea-ee8a-3ca4-894e-db77e160355e`,
		Args: ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := pki.ParseDistinguishedName(subject)
			if err != nil {
				return Error{Cause: "invalid subject", OriginalError: err, Suggestion: "Use attributes such as CN, O, OU, C, L, ST or emailAddress."}
			}

			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			csr := custody.NewAsset(conn, args[0]).NewCSR(name)

			var sign *custody.SignRequest
			if resume != "" {
				sign, err = csr.ResumeSign(ctx, resume)
				if err != nil {
					return err
				}
				if err := sign.Fetch(ctx); err != nil {
					return err
				}
			} else {
				sign, err = csr.RequestSign(ctx, wait.Notify)
				if err != nil {
					return err
				}
				printSubmitted(cli, sign.Request)
			}

			if err := wait.await(ctx, sign.Request); err != nil {
				if errors.Is(err, errNotAnswered) {
					return nil
				}
				return err
			}

			der, err := csr.Signed(ctx, format)
			if err != nil {
				return err
			}
			return cli.writeOutput(output, der)
		},
	}

	cmd.Flags().StringToStringVar(&subject, "subject", nil, "Subject of the request, for example CN=alice,O=Example")
	cmd.Flags().Var(&format, "format", "Output format [pem|der]")
	cmd.Flags().StringVarP(&output, "out", "o", "-", "Write the request to this file")
	cmd.Flags().StringVar(&resume, "resume", "", "UUID of the sign request made earlier for the same subject")
	addWaitFlags(cmd.Flags(), &wait, 5*time.Minute)
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
