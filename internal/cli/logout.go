package cli

import (
	"fmt"

	"github.com/loanworks/backend/internal/cli/api"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if hasSession {
			// Best effort: a token the server already dropped still logs
			// out locally.
			var resp api.Response[map[string]string]
			if err := apiClient.Post("/auth/logout", nil, &resp); err != nil && !api.IsStatus(err, 401) {
				return fmt.Errorf("revoking session: %w", err)
			}
		}

		if err := sessionStore.Clear(); err != nil {
			return fmt.Errorf("clearing session state: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
