package cmd

import (
	"github.com/spf13/cobra"

	"gmab/internal/dispatch"
)

var listOpts dispatch.ListOptions

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List gmab instances",
	Long:  `List the instances gmab created on one or every configured provider, with the time each has left.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDispatcher(cmd)
		if err != nil {
			return err
		}
		_, err = d.List(cmd.Context(), listOpts)
		return err
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listOpts.Provider, "provider", "p", "", "Only list this provider")
	listCmd.Flags().StringVarP(&listOpts.Format, "output", "o", dispatch.FormatTable, "Output format: table, json or yaml")
}
