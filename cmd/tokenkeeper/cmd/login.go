package cmd

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the issued tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(cmd.InOrStdin())
		var err error
		if loginUsername == "" {
			if loginUsername, err = promptLine(in, cmd.ErrOrStderr(), "Username"); err != nil {
				return err
			}
		}
		if loginPassword == "" {
			if loginPassword, err = promptLine(in, cmd.ErrOrStderr(), "Password"); err != nil {
				return err
			}
		}

		c, done, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		defer done()

		id, err := c.Login(cmd.Context(), loginUsername, loginPassword)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in to %s as %s (%s)\n", c.Origin(), id.Username, id.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username (prompted when empty)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (prompted when empty)")
}
