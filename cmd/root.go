package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gmab/internal/config"
	"gmab/internal/dispatch"
	"gmab/internal/errdefs"
	"gmab/internal/logging"
	"gmab/internal/prompt"
	"gmab/internal/provisioning"
)

var (
	configDir string
	debug     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gmab",
	Short: "Give Me A Box: short-lived VMs on any cloud",
	Long: `gmab spawns, lists and terminates short-lived virtual machines across
Linode, Hetzner, AWS, DigitalOcean, GCP and Yandex Cloud. Every instance carries
a lifetime; expired instances are flagged by list and swept by 'terminate expired'.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logging.SetDebug()
		}
	},
}

func init() {
	rootCmd.SetVersionTemplate("gmab {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default $"+config.EnvConfigDir+" or the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log debug output to stderr")
}

// Execute runs the command line and exits with status 1 on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provisioning.Version = Version

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Logger().Debug("command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errdefs.Hint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		stop()
		_ = logging.Sync()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	dir, err := config.Dir(configDir)
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

// newDispatcher wires the configured providers for spawn, list and terminate
func newDispatcher(cmd *cobra.Command) (*dispatch.Dispatcher, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logging.Logger().Debug("loaded configuration",
		zap.String("dir", cfg.Dir),
		zap.Strings("providers", cfg.ProviderNames()))

	registry := provisioning.NewRegistry(cfg, provisioning.DefaultFactories())
	confirm := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
	return dispatch.New(cfg, registry, confirm, cmd.OutOrStdout(), cmd.ErrOrStderr()), nil
}
