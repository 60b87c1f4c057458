package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/formsheet/server/internal/apiclient"
	"github.com/spf13/cobra"
)

var (
	flagJSON      bool
	flagServerURL string

	cfg       *Config
	apiClient *apiclient.Client
)

var rootCmd = &cobra.Command{
	Use:   "formsheet",
	Short: "Formsheet CLI: fill forms and run reports from the terminal",
	Long: `Formsheet CLI talks to a Formsheet server: submit forms, run reports
and keep an eye on spreadsheet exports.

Get started:
  formsheet login -u admin          Authenticate with username and password
  formsheet forms ls                List the forms you can fill
  formsheet forms submit <id> --set kupac="Firma d.o.o."
  formsheet reports run <id>        Run a report template`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if flagServerURL != "" {
			cfg.ServerURL = flagServerURL
		}
		apiClient = apiclient.NewClient(cfg.ServerURL, cfg.Token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Override server URL (default: from config or http://localhost:8080)")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// requireAuth returns an error if no token is configured.
func requireAuth() error {
	if cfg == nil || !cfg.HasToken() {
		return errors.New(`not authenticated, run "formsheet login" first`)
	}
	return nil
}

// authError rewrites an expired-session 401 into a login hint.
func authError(action string, err error) error {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Status == 401 {
		return fmt.Errorf("%s: session expired or invalid, run \"formsheet login\" again", action)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// parseAssignments turns repeated name=value flags into a map.
func parseAssignments(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected name=value", pair)
		}
		values[name] = value
	}
	return values, nil
}
