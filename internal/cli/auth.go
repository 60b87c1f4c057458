package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/formsheet/server/internal/apiclient"
	"github.com/spf13/cobra"
)

var (
	flagUsername      string
	flagPassword      string
	flagPasswordStdin bool
	flagToken         string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with your Formsheet server",
	Long: `Authenticate with a username and password, or store an existing token.

  formsheet login -u ana                   Prompts for the password
  echo "$PW" | formsheet login -u ana --password-stdin
  formsheet login --token eyJhbGciOi...`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ClearConfig(); err != nil {
			return fmt.Errorf("clearing config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		var resp apiclient.Response[apiclient.Session]
		if err := apiClient.Get("/auth/verify", nil, &resp); err != nil {
			return authError("fetching user", err)
		}
		if resp.Data.User == nil {
			return errors.New("server returned no user")
		}

		if flagJSON {
			printJSON(cmd.OutOrStdout(), resp.Data)
			return nil
		}
		printUser(cmd.OutOrStdout(), *resp.Data.User, resp.Data.Permissions)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&flagUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVar(&flagPassword, "password", "", "Password (prefer --password-stdin)")
	loginCmd.Flags().BoolVar(&flagPasswordStdin, "password-stdin", false, "Read the password from stdin")
	loginCmd.Flags().StringVar(&flagToken, "token", "", "Existing bearer token")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if flagToken != "" {
		return loginWithToken(cmd, flagToken)
	}
	return loginWithPassword(cmd)
}

func loginWithToken(cmd *cobra.Command, token string) error {
	client := apiclient.NewClient(cfg.ServerURL, token)
	var resp apiclient.Response[apiclient.Session]
	if err := client.Get("/auth/verify", nil, &resp); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 401 {
			return errors.New("invalid token, server returned 401")
		}
		return fmt.Errorf("validating token: %w", err)
	}

	cfg.Token = token
	if resp.Data.User != nil {
		cfg.Username = resp.Data.User.Username
	}
	if err := SaveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", cfg.Username)
	return nil
}

func loginWithPassword(cmd *cobra.Command) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	username := strings.TrimSpace(flagUsername)
	if username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := readLine(in)
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		username = line
	}

	password := flagPassword
	if password == "" {
		if !flagPasswordStdin {
			fmt.Fprint(out, "Password: ")
		}
		line, err := readLine(in)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = line
	}
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}

	client := apiclient.NewClient(cfg.ServerURL, "")
	var resp apiclient.Response[apiclient.Session]
	err := client.Post("/auth/login", map[string]string{"username": username, "password": password}, &resp)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 401 {
			return errors.New(apiErr.Message)
		}
		return fmt.Errorf("logging in: %w", err)
	}

	cfg.Token = resp.Data.Token
	cfg.Username = username
	if err := SaveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if !flagPasswordStdin && flagPassword == "" {
		fmt.Fprintln(out)
	}
	role := ""
	if resp.Data.User != nil {
		role = resp.Data.User.Role
	}
	fmt.Fprintf(out, "Logged in as %s (%s)\n", username, role)
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
