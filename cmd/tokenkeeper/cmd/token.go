package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	tokenSkew time.Duration
	tokenShow bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the current access token's expiry, refreshing it if due",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		defer done()

		tok, err := c.TokenSource(cmd.Context(), tokenSkew).Token()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if tok.Expiry.IsZero() {
			fmt.Fprintln(out, "expires: unknown (opaque token)")
		} else {
			fmt.Fprintf(out, "expires: %s (in %s)\n", tok.Expiry.Format(time.RFC3339), time.Until(tok.Expiry).Round(time.Second))
		}
		if tokenShow {
			fmt.Fprintln(out, tok.AccessToken)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenSkew, "skew", time.Minute, "Refresh when the token expires within this window")
	tokenCmd.Flags().BoolVar(&tokenShow, "show", false, "Also print the access token")
}
