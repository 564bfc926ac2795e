package cmd

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	registerUsername string
	registerEmail    string
	registerPassword string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(cmd.InOrStdin())
		fields := []struct {
			label string
			value *string
		}{
			{"Username", &registerUsername},
			{"Email", &registerEmail},
			{"Password", &registerPassword},
		}
		for _, f := range fields {
			if *f.value != "" {
				continue
			}
			v, err := promptLine(in, cmd.ErrOrStderr(), f.label)
			if err != nil {
				return err
			}
			*f.value = v
		}

		c, done, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		defer done()

		id, err := c.Register(cmd.Context(), registerUsername, registerEmail, registerPassword)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (id %d) at %s\n", id.Username, id.ID, c.Origin())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().StringVarP(&registerUsername, "username", "u", "", "Username (prompted when empty)")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Email (prompted when empty)")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "Password (prompted when empty)")
}
