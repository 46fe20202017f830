package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/authress/pkg/slogx"
)

var tokenReveal bool

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().BoolVar(&tokenReveal, "reveal", false, "Print the full credential instead of a masked one")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the authorization value the SDK would send",
	Long: `Print the authorization value the SDK would send. In bearer mode this
performs the identity exchange.

Examples:
  # Show which mode is active and a masked credential
  authress-token token

  # Print the raw bearer token, e.g. for curl
  authress-token token --reveal
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, logger, err := newClient()
		if err != nil {
			return err
		}

		value, err := client.Login().GetAuthorizationValue(cmd.Context())
		if err != nil {
			return describe(err)
		}
		logger.Debug("authorization value resolved", "mode", client.Login().Mode())

		if tokenReveal {
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "mode: %s\nvalue: %s\n", client.Login().Mode(), slogx.MaskSecret(value))
		return nil
	},
}
