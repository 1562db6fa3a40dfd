package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/loanworks/backend/internal/cli/api"
	"github.com/loanworks/backend/pkg/autologout"
	"github.com/spf13/cobra"
)

var (
	flagEmail    string
	flagPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with your LoanWorks server",
	Long: `Log in with email and password. When the account has two-factor
authentication enabled, you are prompted for an authenticator code or a
backup code before the session is issued.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&flagEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&flagPassword, "password", "", "Account password (prompted when omitted)")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	email := flagEmail
	if email == "" {
		var err error
		email, err = prompt(reader, "Email: ")
		if err != nil {
			return err
		}
	}

	password := flagPassword
	if password == "" {
		var err error
		password, err = prompt(reader, "Password: ")
		if err != nil {
			return err
		}
	}

	var resp api.Response[api.LoginData]
	err := apiClient.Post("/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		if api.IsStatus(err, 401) {
			return fmt.Errorf("invalid email or password")
		}
		if api.IsStatus(err, 429) {
			return fmt.Errorf("too many failed attempts, try again later")
		}
		return fmt.Errorf("logging in: %w", err)
	}

	data := resp.Data
	if data.MFARequired {
		data, err = completeSecondFactor(reader, data.PendingToken)
		if err != nil {
			return err
		}
	}

	state := autologout.State{
		Token:      data.Token,
		IssuedAt:   data.IssuedAt,
		TTLSeconds: int64(data.ExpiresAt.Sub(data.IssuedAt) / time.Second),
	}
	if err := sessionStore.Save(state); err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}

	fmt.Printf("Logged in as %s %s (%s)\n", data.User.FirstName, data.User.LastName, data.User.Email)
	fmt.Printf("Session expires at %s\n", data.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func completeSecondFactor(reader *bufio.Reader, pendingToken string) (api.LoginData, error) {
	for {
		code, err := prompt(reader, "Authenticator or backup code: ")
		if err != nil {
			return api.LoginData{}, err
		}

		var resp api.Response[api.LoginData]
		err = apiClient.Post("/auth/login/2fa", map[string]string{
			"pendingToken": pendingToken,
			"code":         code,
		}, &resp)
		if err == nil {
			return resp.Data, nil
		}

		// A wrong code keeps the pending grant alive, so let the user retry.
		if api.IsStatus(err, 401) {
			fmt.Println("Code rejected, try again.")
			continue
		}
		if api.IsStatus(err, 429) {
			return api.LoginData{}, fmt.Errorf("too many failed attempts, try again later")
		}
		return api.LoginData{}, fmt.Errorf("verifying code: %w", err)
	}
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
