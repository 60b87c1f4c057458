package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/formsheet/server/internal/apiclient"
	"github.com/spf13/cobra"
)

var (
	flagStatus string
	flagFormID string
	flagPage   int
	flagLimit  int
)

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "Inspect and retry spreadsheet export jobs (admin)",
}

var exportsListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List export jobs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		params := url.Values{}
		if flagStatus != "" {
			params.Set("status", flagStatus)
		}
		if flagFormID != "" {
			params.Set("formId", flagFormID)
		}
		if flagPage > 0 {
			params.Set("page", strconv.Itoa(flagPage))
		}
		if flagLimit > 0 {
			params.Set("limit", strconv.Itoa(flagLimit))
		}

		var resp apiclient.Response[[]apiclient.ExportJob]
		if err := apiClient.Get("/export-jobs", params, &resp); err != nil {
			return authError("listing export jobs", err)
		}

		if flagJSON {
			printJSON(cmd.OutOrStdout(), resp.Data)
			return nil
		}
		printExportJobs(cmd.OutOrStdout(), resp.Data)
		if p := resp.Pagination; p != nil && p.TotalPages > 1 {
			fmt.Fprintf(cmd.OutOrStdout(), "\nPage %d of %d (%d jobs)\n", p.Page, p.TotalPages, p.Total)
		}
		return nil
	},
}

var exportsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Queue a pending or failed export job again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		var resp apiclient.Response[apiclient.ExportJob]
		if err := apiClient.Post("/export-jobs/"+url.PathEscape(args[0])+"/retry", nil, &resp); err != nil {
			return authError("retrying export job", err)
		}

		if flagJSON {
			printJSON(cmd.OutOrStdout(), resp.Data)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Export job %s queued (%s)\n", resp.Data.ID, resp.Data.Status)
		return nil
	},
}

func init() {
	exportsListCmd.Flags().StringVar(&flagStatus, "status", "", "Filter by status: pending, processing, exported, failed")
	exportsListCmd.Flags().StringVar(&flagFormID, "form", "", "Filter by form id")
	exportsListCmd.Flags().IntVar(&flagPage, "page", 0, "Page number")
	exportsListCmd.Flags().IntVar(&flagLimit, "limit", 0, "Jobs per page")
	exportsCmd.AddCommand(exportsListCmd, exportsRetryCmd)
	rootCmd.AddCommand(exportsCmd)
}
