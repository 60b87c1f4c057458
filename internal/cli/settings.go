package cli

import (
	"errors"
	"strings"

	"github.com/formsheet/server/internal/apiclient"
	"github.com/spf13/cobra"
)

var (
	flagAppName       string
	flagExportSheet   string
	flagImportSheet   string
	flagTheme         string
	flagPrimaryColor  string
	flagLogoLocations []string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show application settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp apiclient.Response[apiclient.AppSettings]
		if err := apiClient.Get("/app-settings", nil, &resp); err != nil {
			return authError("fetching settings", err)
		}

		if flagJSON {
			printJSON(cmd.OutOrStdout(), resp.Data)
			return nil
		}
		printSettings(cmd.OutOrStdout(), resp.Data)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update application settings (admin)",
	Long: `Update application settings. Only the flags you pass are changed.

  formsheet settings set --export-sheet Unosi --theme dark`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		flags := cmd.Flags()
		if flags.Changed("app-name") {
			updates["appName"] = flagAppName
		}
		if flags.Changed("export-sheet") {
			updates["exportSheetName"] = flagExportSheet
		}
		if flags.Changed("import-sheet") {
			updates["importSheetName"] = flagImportSheet
		}
		if flags.Changed("theme") {
			updates["theme"] = strings.ToLower(flagTheme)
		}
		if flags.Changed("primary-color") {
			updates["primaryColor"] = flagPrimaryColor
		}
		if flags.Changed("logo-location") {
			updates["logoLocations"] = flagLogoLocations
		}
		if len(updates) == 0 {
			return errors.New("nothing to update, pass at least one flag")
		}

		var resp apiclient.Response[apiclient.AppSettings]
		if err := apiClient.Put("/app-settings", updates, &resp); err != nil {
			return authError("updating settings", err)
		}

		if flagJSON {
			printJSON(cmd.OutOrStdout(), resp.Data)
			return nil
		}
		printSettings(cmd.OutOrStdout(), resp.Data)
		return nil
	},
}

func init() {
	settingsSetCmd.Flags().StringVar(&flagAppName, "app-name", "", "Application name")
	settingsSetCmd.Flags().StringVar(&flagExportSheet, "export-sheet", "", "Default sheet tab for form exports")
	settingsSetCmd.Flags().StringVar(&flagImportSheet, "import-sheet", "", "Default sheet tab for reports")
	settingsSetCmd.Flags().StringVar(&flagTheme, "theme", "", "Theme: light or dark")
	settingsSetCmd.Flags().StringVar(&flagPrimaryColor, "primary-color", "", "Primary color, e.g. #2563eb")
	settingsSetCmd.Flags().StringSliceVar(&flagLogoLocations, "logo-location", nil, "Logo locations: header, login, forms")
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
