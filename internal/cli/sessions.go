package cli

import (
	"fmt"
	"time"

	"github.com/loanworks/backend/internal/cli/api"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List your active sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSession(); err != nil {
			return err
		}

		var resp api.Response[[]api.SessionInfo]
		if err := apiClient.Get("/auth/sessions", nil, &resp); err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}

		if len(resp.Data) == 0 {
			fmt.Println("No active sessions.")
			return nil
		}

		for _, s := range resp.Data {
			marker := " "
			if s.Current {
				marker = "*"
			}
			fmt.Printf("%s %s  %s  expires %s  %s\n",
				marker, s.ID, s.IPAddress,
				s.ExpiresAt.Local().Format(time.RFC1123),
				s.UserAgent)
		}
		return nil
	},
}

var sessionsRevokeCmd = &cobra.Command{
	Use:   "revoke <session-id>",
	Short: "Revoke one of your sessions by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSession(); err != nil {
			return err
		}

		var resp api.Response[map[string]string]
		if err := apiClient.Delete("/auth/sessions/"+args[0], &resp); err != nil {
			if api.IsStatus(err, 404) {
				return fmt.Errorf("session not found")
			}
			return fmt.Errorf("revoking session: %w", err)
		}

		fmt.Println("Session revoked.")
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsRevokeCmd)
	rootCmd.AddCommand(sessionsCmd)
}
