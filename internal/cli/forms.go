package cli

import (
	"net/url"

	"github.com/formsheet/server/internal/apiclient"
	"github.com/spf13/cobra"
)

var flagSet []string

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "List, inspect and submit forms",
}

var formsListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List the forms visible to you",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		var resp apiclient.Response[[]apiclient.Form]
		if err := apiClient.Get("/forms", nil, &resp); err != nil {
			return authError("listing forms", err)
		}

		if flagJSON {
			printJSON(cmd.OutOrStdout(), resp.Data)
			return nil
		}
		printForms(cmd.OutOrStdout(), resp.Data)
		return nil
	},
}

var formsGetCmd = &cobra.Command{
	Use:   "get <form-id>",
	Short: "Show a form and its fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		var resp apiclient.Response[apiclient.Form]
		if err := apiClient.Get("/forms/"+url.PathEscape(args[0]), nil, &resp); err != nil {
			return authError("fetching form", err)
		}

		if flagJSON {
			printJSON(cmd.OutOrStdout(), resp.Data)
			return nil
		}
		printFormDetail(cmd.OutOrStdout(), resp.Data)
		return nil
	},
}

var formsSubmitCmd = &cobra.Command{
	Use:   "submit <form-id>",
	Short: "Submit values to a form",
	Long: `Submit a form. Each --set assigns one field by name; fields left out
start from the form's initial values (defaults, dates and times).

  formsheet forms submit 550e8400-... --set kupac="Firma d.o.o." --set kolicina=4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		assigned, err := parseAssignments(flagSet)
		if err != nil {
			return err
		}

		formID := args[0]
		var initial apiclient.Response[map[string]interface{}]
		if err := apiClient.Get("/forms/"+url.PathEscape(formID)+"/initial-values", nil, &initial); err != nil {
			return authError("fetching initial values", err)
		}

		values := initial.Data
		if values == nil {
			values = make(map[string]interface{}, len(assigned))
		}
		for name, value := range assigned {
			values[name] = value
		}

		var resp apiclient.Response[apiclient.SubmitResult]
		err = apiClient.Post("/submit-form", apiclient.SubmitRequest{FormID: formID, Values: values}, &resp)
		if err != nil {
			return authError("submitting form", err)
		}

		if flagJSON {
			printJSON(cmd.OutOrStdout(), resp.Data)
			return nil
		}
		printSubmitResult(cmd.OutOrStdout(), resp.Data)
		return nil
	},
}

func init() {
	formsSubmitCmd.Flags().StringArrayVar(&flagSet, "set", nil, "Field value as name=value (repeatable)")
	formsCmd.AddCommand(formsListCmd, formsGetCmd, formsSubmitCmd)
	rootCmd.AddCommand(formsCmd)
}
