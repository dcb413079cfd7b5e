package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/custody"
	"github.com/infrahq/custody/pki"
)

type waitOptions struct {
	Notify       bool
	Wait         time.Duration
	PollInterval time.Duration
	// Callback waits for the state to arrive in the shared cache instead of
	// polling the API.
	Callback bool
}

func addWaitFlags(flags *pflag.FlagSet, opts *waitOptions, defaultWait time.Duration) {
	flags.BoolVar(&opts.Notify, "notify", true, "Send a push message to the device")
	flags.DurationVar(&opts.Wait, "wait", defaultWait, "Wait this long for the request to be answered, 0 returns right away")
	flags.DurationVar(&opts.PollInterval, "poll-interval", 2*time.Second, "Time between checks for an answer")
	flags.BoolVar(&opts.Callback, "callback", false, "Wait for a callback in the shared cache instead of polling the API")
}

// printSubmitted shows the request id and the nonce the user has to find on
// the device.
func printSubmitted(cli *CLI, r *custody.Request) {
	fmt.Fprintf(cli.Stderr, "Created %s request %s\n", r.Kind(), r.ID())
	if nonce := r.NonceFormatted(); nonce != "" {
		fmt.Fprintf(cli.Stderr, "  Confirm on the device that the code is %s\n", termenv.String(nonce).Bold().String())
	}
}

// await waits until r is answered. It returns nil when r was accepted.
func (o waitOptions) await(ctx context.Context, r *custody.Request) error {
	if o.Wait > 0 && !r.IsTerminal() {
		ctx, cancel := context.WithTimeout(ctx, o.Wait)
		defer cancel()

		var err error
		if o.Callback {
			err = r.WaitForCallback(ctx, o.PollInterval)
		} else {
			err = r.DebugPollForResponse(ctx, o.PollInterval)
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return Error{
				Cause:      fmt.Sprintf("%s request %s was not answered within %s", r.Kind(), r.ID(), exactDuration(o.Wait)),
				Suggestion: "Run the command again with --resume to keep waiting.",
			}
		}
		if err != nil {
			return err
		}
	}

	if !r.IsAccepted() {
		if r.IsTerminal() {
			return requestError(r)
		}
		return errNotAnswered
	}
	return nil
}

// errNotAnswered is returned when the command did not wait for an answer.
var errNotAnswered = errors.New("request has not been answered")

func newSignCmd(cli *CLI) *cobra.Command {
	var (
		wait        waitOptions
		input       string
		output      string
		resourceURI string
		resume      string
	)

	cmd := &cobra.Command{
		Use:   "sign ASSET",
		Short: "Sign data with an asset",
		Long: `Sign data with an asset. The device signs the SHA-256 digest of the data,
and the signature is verified against the public key of the asset before it is
written as base64.`,
		Example: `# Sign a file, and wait for the owner of the asset to approve
$ custody sign 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --in contract.pdf

# Keep waiting for a request made earlier
$ custody sign 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --in contract.pdf --resume 6fa459ea-ee8a-3ca4-894e-db77e160355e`,
		Args: ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			data, err := cli.readInput(input)
			if err != nil {
				return err
			}

			asset := custody.NewAsset(conn, args[0])

			var sign *custody.SignRequest
			if resume != "" {
				sign = asset.ResumeSign(resume, data, resourceURI)
				if err := sign.Fetch(ctx); err != nil {
					return err
				}
			} else {
				sign, err = asset.Sign(ctx, data, resourceURI, wait.Notify)
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

			signature, err := sign.Signature(ctx)
			if err != nil {
				return err
			}
			return cli.writeOutput(output, []byte(base64.StdEncoding.EncodeToString(signature)+"\n"))
		},
	}

	cmd.Flags().StringVar(&input, "in", "-", "File to sign, - reads standard input")
	cmd.Flags().StringVar(&output, "out", "-", "Write the base64 signature to this file")
	cmd.Flags().StringVar(&resourceURI, "resource-uri", "", "URI of the signed document, shown on the device")
	cmd.Flags().StringVar(&resume, "resume", "", "UUID of a sign request made earlier for the same data")
	addWaitFlags(cmd.Flags(), &wait, 5*time.Minute)
	return cmd
}

func newAuthenticateCmd(cli *CLI) *cobra.Command {
	var wait waitOptions

	cmd := &cobra.Command{
		Use:   "authenticate ASSET",
		Short: "Ask the owner of an asset to approve a login",
		Args:  ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			auth, err := custody.NewAsset(conn, args[0]).Authenticate(ctx, nil, wait.Notify)
			if err != nil {
				return err
			}
			printSubmitted(cli, auth.Request)

			if err := wait.await(ctx, auth.Request); err != nil {
				if errors.Is(err, errNotAnswered) {
					return nil
				}
				return err
			}

			if err := auth.Verify(ctx); err != nil {
				return err
			}
			cli.Output("Authenticated with asset %s", args[0])
			return nil
		},
	}

	addWaitFlags(cmd.Flags(), &wait, 5*time.Minute)
	return cmd
}

func newDecryptCmd(cli *CLI) *cobra.Command {
	var (
		wait      waitOptions
		input     string
		output    string
		keyLength int
	)

	cmd := &cobra.Command{
		Use:   "decrypt ASSET",
		Short: "Decrypt data that was encrypted for an asset",
		Long: `Decrypt base64 data that was encrypted with the public key of an asset, see
"custody encrypt". The device returns the plaintext encrypted with a transport
key that only this command holds, so the command has to wait for the answer.`,
		Args: ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait.Wait <= 0 {
				return Error{Cause: "--wait must be greater than 0", Suggestion: "A decrypt request can not be resumed later."}
			}

			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			encoded, err := cli.readInput(input)
			if err != nil {
				return err
			}
			ciphertext, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(encoded)))
			if err != nil {
				return fmt.Errorf("input is not base64: %w", err)
			}

			decrypt, err := custody.NewAsset(conn, args[0]).Decrypt(ctx, ciphertext, wait.Notify, custody.WithKeyLength(keyLength))
			if err != nil {
				return err
			}
			defer decrypt.Close()
			printSubmitted(cli, decrypt.Request)

			if err := wait.await(ctx, decrypt.Request); err != nil {
				return err
			}

			plaintext, err := decrypt.PlainText()
			if err != nil {
				return err
			}
			return cli.writeOutput(output, plaintext)
		},
	}

	cmd.Flags().StringVar(&input, "in", "-", "File with the base64 ciphertext, - reads standard input")
	cmd.Flags().StringVar(&output, "out", "-", "Write the plaintext to this file")
	cmd.Flags().IntVar(&keyLength, "key-length", pki.DefaultTransportKeyBits, "Length of the transport key in bits [128, 256]")
	addWaitFlags(cmd.Flags(), &wait, 5*time.Minute)
	return cmd
}

func newRequestCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:     "request KIND UUID",
		Short:   "Show the state of a request",
		Example: `$ custody request sign 6fa459ea-ee8a-3ca4-894e-db77e160355e`,
		Args:    ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := api.ParseKind(args[0])
			if err != nil {
				return err
			}
			if !kind.IsAssetRequest() {
				return Error{Cause: fmt.Sprintf("%s is not a request", kind), Suggestion: "Use one of authenticate, sign or decrypt."}
			}

			ctx := cmd.Context()
			conn, err := cli.newConnector(ctx, true)
			if err != nil {
				return err
			}

			obj, err := conn.Fetch(ctx, kind, args[1], true)
			if err != nil {
				return err
			}

			type row struct {
				ID      string `header:"ID"`
				Kind    string `header:"KIND"`
				Asset   string `header:"ASSET"`
				State   string `header:"STATE"`
				Status  string `header:"STATUS"`
				Updated string `header:"UPDATED"`
			}

			// a submitted request is at least created
			state := custody.State(obj.StatusCode)
			if state == custody.StatePrepared {
				state = custody.StateCreated
			}

			cli.Table([]row{{
				ID:      obj.UUID,
				Kind:    obj.Kind.String(),
				Asset:   obj.AssetUUID,
				State:   state.String(),
				Status:  obj.StatusText,
				Updated: humanTime(obj.UpdatedAt, "-"),
			}})
			return nil
		},
	}
}
