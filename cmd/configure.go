package cmd

import (
	"github.com/spf13/cobra"

	"gmab/internal/config"
	"gmab/internal/configure"
	"gmab/internal/prompt"
)

var (
	configureProvider string
	configurePrint    bool
)

// configureCmd represents the configure command
var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set up general settings and provider credentials",
	Long: `Interactively write config.json and providers.json. Current values are
offered as defaults and secrets are kept when left blank. With --print the
files are shown with secrets masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir(configDir)
		if err != nil {
			return err
		}
		if configurePrint {
			return configure.Print(dir, cmd.OutOrStdout())
		}

		cfg, err := config.LoadOrEmpty(dir)
		if err != nil {
			return err
		}
		p := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
		return configure.New(cfg, p, cmd.OutOrStdout()).Run(configureProvider)
	},
}

func init() {
	rootCmd.AddCommand(configureCmd)

	configureCmd.Flags().StringVarP(&configureProvider, "provider", "p", configure.TargetAll, "Provider to configure, or 'all'")
	configureCmd.Flags().BoolVar(&configurePrint, "print", false, "Print the current configuration with secrets masked")
}
