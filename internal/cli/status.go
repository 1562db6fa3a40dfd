package cli

import (
	"fmt"
	"time"

	"github.com/loanworks/backend/internal/cli/api"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSession(); err != nil {
			return err
		}

		// Honor the local expiry mirror before bothering the server.
		if !time.Now().Before(session.ExpiresAt()) {
			if err := sessionStore.Clear(); err != nil {
				return fmt.Errorf("clearing session state: %w", err)
			}
			fmt.Println("Session expired, logged out.")
			return nil
		}

		var resp api.Response[api.MeData]
		if err := apiClient.Get("/auth/me", nil, &resp); err != nil {
			if api.IsStatus(err, 401) {
				_ = sessionStore.Clear()
				fmt.Println("Session is no longer valid, logged out.")
				return nil
			}
			return fmt.Errorf("fetching session: %w", err)
		}

		me := resp.Data
		fmt.Printf("Logged in as %s %s (%s)\n", me.User.FirstName, me.User.LastName, me.User.Email)
		fmt.Printf("Role:       %s\n", me.Role)
		fmt.Printf("2FA:        %v\n", me.TwoFAComplete)
		fmt.Printf("Expires at: %s (in %s)\n",
			me.ExpiresAt.Local().Format(time.RFC1123),
			time.Until(me.ExpiresAt).Round(time.Second))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
