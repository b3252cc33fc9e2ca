package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tgravescs/dynexec/internal/config"
)

const customConfigLocation string = "config"

// RootCmd mirrors the teacher scheduler's cobra wiring: a persistent
// --config flag plus a single run subcommand.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "allocator",
		SilenceUsage: true,
		Short:        "Dynamic executor allocation controller",
	}
	root.PersistentFlags().StringSlice(
		customConfigLocation,
		[]string{},
		"Fully qualified path to an additional configuration file (repeat the flag or comma-separate paths for more than one)")
	if err := viper.BindPFlag(customConfigLocation, root.PersistentFlags().Lookup(customConfigLocation)); err != nil {
		panic(err)
	}

	root.AddCommand(runCmd())
	return root
}

func loadConfig() (config.Configuration, error) {
	var cfg config.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(customConfigLocation)
	config.LoadConfig(&cfg, "./config/allocator", userSpecifiedConfigs)

	if err := cfg.Validate(); err != nil {
		config.LogValidationErrors(err)
		return cfg, err
	}
	return cfg, nil
}
