package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/stark-signer/internal/client"
	"github.com/ILLUVRSE/stark-signer/internal/felt"
	"github.com/ILLUVRSE/stark-signer/internal/models"
	"github.com/ILLUVRSE/stark-signer/internal/signing"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	url     string
	apiKey  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "stark-signer-cli",
		Short: "Talk to a stark-signer service",
		Long: `stark-signer-cli calls a running stark-signer over HTTP.

The service URL comes from --url or STARK_SIGNER_URL and the API key from
--api-key or API_KEY. Responses are printed as JSON.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.url == "" {
				flags.url = os.Getenv("STARK_SIGNER_URL")
			}
			if flags.url == "" {
				flags.url = "http://localhost:3000"
			}
			if flags.apiKey == "" {
				flags.apiKey = os.Getenv("API_KEY")
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.url, "url", "", "Signer base URL (or STARK_SIGNER_URL, default http://localhost:3000)")
	rootCmd.PersistentFlags().StringVar(&flags.apiKey, "api-key", "", "API key (or API_KEY env var)")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 5*time.Second, "Per-request timeout")

	rootCmd.AddCommand(
		newSignCmd(flags),
		newVerifyCmd(flags),
		newSelfCmd(flags),
		newHealthCmd(flags),
		newDeriveCmd(),
	)
	return rootCmd
}

func (f *globalFlags) client() (*client.Client, error) {
	return client.New(client.Config{BaseURL: f.url, APIKey: f.apiKey, Timeout: f.timeout})
}

func newSignCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sign <hash>",
		Short: "Sign a hex field element",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			resp, err := c.Sign(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newVerifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <hash> <r> <s>",
		Short: "Check a signature against the service's key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			resp, err := c.Verify(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newSelfCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "self",
		Short: "Print the service's public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			resp, err := c.Self(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the liveness endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			resp, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

// newDeriveCmd computes a public key locally, without contacting a service.
func newDeriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive",
		Short: "Derive the public key for STARKNET_PRIVATE_KEY locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := os.Getenv("STARKNET_PRIVATE_KEY")
			if raw == "" {
				return fmt.Errorf("STARKNET_PRIVATE_KEY is not set")
			}
			priv, err := felt.Decode(raw)
			if err != nil {
				return fmt.Errorf("invalid value for env var STARKNET_PRIVATE_KEY: %w", err)
			}
			pub, err := signing.NewStarkCurve().PublicKey(priv)
			if err != nil {
				return err
			}
			resp, err := models.NewSelfSignerResponse(pub)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
