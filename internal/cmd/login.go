package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wirechat/wirechat/internal/secrets"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the session",
	Long: `Log in with the account email and password and save the resulting
session to disk. Later commands reuse the saved session, so the
password is only needed again when the session expires.

The password is read from the system secret store when one was saved
with "wirechat credentials set", and prompted otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if email == "" {
			return fmt.Errorf("the --email flag is required to log in")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Login(cmd.Context(), email, lookupPassword(cmd, email)); err != nil {
			return err
		}
		path := resolveSessionPath()
		if err := c.SaveSession(path); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %d, session saved to %s\n",
			c.Session().UserID, path)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session on the server and forget it locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		if err := c.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the stored account password",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the account password in the system secret store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if email == "" {
			return fmt.Errorf("the --email flag is required")
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", email)
		password := readLine(cmd)
		if password == "" {
			return fmt.Errorf("no password given")
		}
		if err := secrets.SetPassword(email, password); err != nil {
			if errors.Is(err, secrets.ErrNotSupported) {
				return fmt.Errorf("no secret store available on this platform")
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Password stored.")
		return nil
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored account password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if email == "" {
			return fmt.Errorf("the --email flag is required")
		}
		err := secrets.DeletePassword(email)
		if err != nil && !errors.Is(err, secrets.ErrNotFound) {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Password removed.")
		return nil
	},
}

func init() {
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(credentialsCmd)
}
