package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		defer done()

		c.Logout(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "Signed out of %s\n", c.Origin())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
