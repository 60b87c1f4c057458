package cli

import (
	"github.com/formsheet/server/internal/apiclient"
	"github.com/spf13/cobra"
)

// Version is the CLI version, injected at build time:
//
//	go build -ldflags "-X github.com/formsheet/server/internal/cli.Version=1.2.3" ./cmd/formsheet
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI and server version",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp apiclient.Response[apiclient.VersionInfo]
		serverErr := apiClient.Get("/version", nil, &resp)

		var serverInfo *apiclient.VersionInfo
		if serverErr == nil {
			serverInfo = &resp.Data
		}

		if flagJSON {
			type jsonOut struct {
				CLIVersion    string `json:"cliVersion"`
				ServerVersion string `json:"serverVersion,omitempty"`
				APIVersion    string `json:"apiVersion,omitempty"`
				ServerError   string `json:"serverError,omitempty"`
			}
			out := jsonOut{CLIVersion: Version}
			if serverInfo != nil {
				out.ServerVersion = serverInfo.Version
				out.APIVersion = serverInfo.APIVersion
			} else {
				out.ServerError = serverErr.Error()
			}
			printJSON(cmd.OutOrStdout(), out)
			return nil
		}

		printVersion(cmd.OutOrStdout(), Version, serverInfo)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
