package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/authress/pkg/authress"
)

var (
	checkUser       string
	checkResource   string
	checkPermission string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkUser, "user", "", "User ID to check (required)")
	checkCmd.Flags().StringVar(&checkResource, "resource", "", "Resource URI (required)")
	checkCmd.Flags().StringVar(&checkPermission, "permission", "", "Permission, e.g. documents:read (required)")

	_ = checkCmd.MarkFlagRequired("user")
	_ = checkCmd.MarkFlagRequired("resource")
	_ = checkCmd.MarkFlagRequired("permission")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a user holds a permission on a resource",
	Long: `Check whether a user holds a permission on a resource. Exits 0 when the
user is authorized and 1 otherwise.

Examples:
  authress-token check --user user-1 --resource documents/42 --permission documents:read
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		err = client.AuthorizeUser(cmd.Context(), checkUser, checkResource, checkPermission)
		switch {
		case err == nil:
			fmt.Fprintf(cmd.OutOrStdout(), "authorized: %s may %s on %s\n", checkUser, checkPermission, checkResource)
			return nil
		case errors.Is(err, authress.ErrNotAuthorized):
			fmt.Fprintf(cmd.OutOrStdout(), "denied: %s may not %s on %s\n", checkUser, checkPermission, checkResource)
			return err
		default:
			return describe(err)
		}
	},
}
