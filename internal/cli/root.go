package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/loanworks/backend/internal/cli/api"
	"github.com/loanworks/backend/pkg/autologout"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://localhost:8080"

var (
	flagServerURL string

	apiClient    *api.Client
	sessionStore *autologout.FileStore
	session      autologout.State
	hasSession   bool
)

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "LoanWorks auth CLI — log in and manage your sessions",
	Long: `authctl talks to a LoanWorks server to log in, inspect the current
session, and revoke sessions from the terminal.

Get started:
  authctl login --email you@example.com   Log in (prompts for password)
  authctl status                          Show the current session
  authctl sessions                        List active sessions
  authctl logout                          End the current session`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, err := statePath()
		if err != nil {
			return fmt.Errorf("resolving state path: %w", err)
		}
		sessionStore = autologout.NewFileStore(path)

		session, hasSession, err = sessionStore.Load()
		if err != nil {
			return fmt.Errorf("loading session state: %w", err)
		}

		serverURL := flagServerURL
		if serverURL == "" {
			serverURL = os.Getenv("LOANWORKS_SERVER")
		}
		if serverURL == "" {
			serverURL = defaultServerURL
		}

		token := ""
		if hasSession {
			token = session.Token
		}
		apiClient = api.NewClient(serverURL, token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Override server URL (default: $LOANWORKS_SERVER or http://localhost:8080)")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func statePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "loanworks", "session.toml"), nil
}

// requireSession returns an error when no session state is stored.
func requireSession() error {
	if !hasSession {
		return fmt.Errorf("not logged in — run \"authctl login\" first")
	}
	return nil
}
