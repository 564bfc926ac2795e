package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/tokenkeeper/session"
)

var whoamiJSON bool

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Resolve the stored session and print the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		defer done()

		if err := c.Bootstrap(cmd.Context()); err != nil {
			return err
		}
		id := c.Session().Identity()
		if c.Session().State() != session.Authenticated || id == nil {
			return fmt.Errorf("%w at %s", errSignedOut, c.Origin())
		}

		out := cmd.OutOrStdout()
		if whoamiJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(id)
		}
		fmt.Fprintf(out, "%s <%s> role=%s id=%d\n", id.Username, id.Email, id.Role, id.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	whoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "Print the identity as JSON")
}
