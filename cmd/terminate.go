package cmd

import (
	"github.com/spf13/cobra"

	"gmab/internal/dispatch"
)

var (
	terminateProvider string
	terminateYes      bool
)

// terminateCmd represents the terminate command
var terminateCmd = &cobra.Command{
	Use:   "terminate <id|label>... | all | expired",
	Short: "Terminate instances",
	Long: `Terminate up to 5 instances by ID or label, every instance ('all') or
every instance past its lifetime ('expired'). Asks for confirmation unless -y.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDispatcher(cmd)
		if err != nil {
			return err
		}
		_, err = d.Terminate(cmd.Context(), dispatch.TerminateOptions{
			Targets:  args,
			Provider: terminateProvider,
			Yes:      terminateYes,
		})
		return err
	},
}

func init() {
	rootCmd.AddCommand(terminateCmd)

	terminateCmd.Flags().StringVarP(&terminateProvider, "provider", "p", "", "Only consider instances of this provider")
	terminateCmd.Flags().BoolVarP(&terminateYes, "yes", "y", false, "Skip the confirmation prompt")
}
