package cmd

import (
	"github.com/spf13/cobra"

	"gmab/internal/dispatch"
)

var (
	spawnOpts     dispatch.SpawnOptions
	spawnLifetime int
)

// spawnCmd represents the spawn command
var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Create a new instance",
	Long: `Create an instance on the default (or the given) provider. Region, image
and type fall back to the provider's configured defaults.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDispatcher(cmd)
		if err != nil {
			return err
		}
		opts := spawnOpts
		if cmd.Flags().Changed("lifetime-minutes") {
			opts.LifetimeMinutes = &spawnLifetime
		}
		_, err = d.Spawn(cmd.Context(), opts)
		return err
	},
}

func init() {
	rootCmd.AddCommand(spawnCmd)

	spawnCmd.Flags().StringVarP(&spawnOpts.Provider, "provider", "p", "", "Cloud provider (default from config.json)")
	spawnCmd.Flags().StringVarP(&spawnOpts.Region, "region", "r", "", "Region or zone")
	spawnCmd.Flags().StringVarP(&spawnOpts.Image, "image", "i", "", "Image")
	spawnCmd.Flags().StringVar(&spawnOpts.Type, "type", "", "Instance type")
	spawnCmd.Flags().IntVarP(&spawnLifetime, "lifetime-minutes", "t", 0, "Lifetime in minutes (default from config.json)")
}
