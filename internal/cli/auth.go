package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peakplatform/peak-go/internal/config"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored platform credential",
		Long:  "Store and remove the Peak API key kept in your OS keychain.",
	}
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save an API key to the OS keychain",
		Example: `  # Save a key passed by flag
  peak auth login --token YOUR_API_KEY

  # Read the key from the API_KEY environment variable
  peak auth login`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token = strings.TrimSpace(token)
			if token == "" {
				token = strings.TrimSpace(os.Getenv(config.EnvAPIKey))
			}
			if token == "" {
				return fmt.Errorf("no API key: pass --token or set %s", config.EnvAPIKey)
			}
			if err := config.SaveCredential(token); err != nil {
				return fmt.Errorf("failed to save credential: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Credential saved.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "API key to store")
	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a credential is stored",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if _, err := config.LoadCredential(); err != nil {
				if errors.Is(err, config.ErrNotLoggedIn) {
					_, _ = fmt.Fprintln(out, "Not logged in.")
					return nil
				}
				return err
			}
			_, _ = fmt.Fprintln(out, "Logged in.")
			return nil
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.DeleteCredential(); err != nil {
				return fmt.Errorf("failed to remove credential: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Credential removed.")
			return nil
		},
	}
}
