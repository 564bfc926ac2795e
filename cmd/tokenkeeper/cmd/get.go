package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmcleod/tokenkeeper/authapi"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Send an authenticated GET and print the response body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		defer done()

		resp, err := c.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%w: %w", authapi.ErrNetwork, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			var e authapi.ErrorResponse
			_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&e)
			return authapi.NewResponseError(args[0], resp.StatusCode, e.Message)
		}
		_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
		return err
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
