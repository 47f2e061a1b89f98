package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/crossing/internal/config"
	"github.com/Iron-Ham/crossing/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "crossing",
	Short: "Cooperative scheduling for fleets at a signal-free intersection",
	Long: `Crossing schedules vehicle fleets through a four-way intersection without
traffic lights. Each fleet leader searches for a low-delay passing order,
the leaders agree on one assignment over a shared bus, and every vehicle
then follows its zone-entry deadlines.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/crossing/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level (debug, info, warn, error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CROSSING")
	// Replace dots with underscores for nested keys in env vars
	// e.g., CROSSING_SCHEDULER_ITERATIONS for scheduler.iterations
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger builds the logger described by cfg.Logging.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
}
