package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/crossing/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify crossing configuration",
	Long: `View or modify crossing configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  crossing config set scheduler.iterations 500
  crossing config set consensus.phase_timeout_rounds 50
  crossing config set logging.level debug

The value is validated together with the rest of the configuration
before the file is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/crossing/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	// Values such as -2 are arguments, not shorthand flags
	configSetCmd.Flags().SetInterspersed(false)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// settingKinds maps every settable key to the kind of value it holds.
var settingKinds = map[string]string{
	"geometry.zone_size":             "float",
	"scheduler.safety_gap":           "float",
	"scheduler.alpha":                "float",
	"scheduler.iterations":           "int",
	"scheduler.step_weight":          "float",
	"scheduler.seed":                 "uint",
	"consensus.lane_count":           "int",
	"consensus.discovery_rounds":     "int",
	"consensus.phase_timeout_rounds": "int",
	"kinematics.fleet_length":        "int",
	"kinematics.max_speed":           "float",
	"kinematics.max_acceleration":    "float",
	"kinematics.min_acceleration":    "float",
	"kinematics.delta_t":             "float",
	"kinematics.finish_radius":       "float",
	"episode.max_rounds":             "int",
	"logging.enabled":                "bool",
	"logging.level":                  "string",
	"logging.dir":                    "string",
}

// parseSetting converts value to the kind registered for key.
func parseSetting(key, value string) (any, error) {
	kind, ok := settingKinds[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'crossing config show' to see valid keys", key)
	}

	switch kind {
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected a number", key)
		}
		return f, nil
	case "int":
		i, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return i, nil
	case "uint":
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected a non-negative integer", key)
		}
		return u, nil
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseSetting(key, args[1])
	if err != nil {
		return err
	}

	// Validate on a copy so a rejected value never reaches the global config
	candidate := viper.New()
	if err := candidate.MergeConfigMap(viper.AllSettings()); err != nil {
		return fmt.Errorf("failed to copy configuration: %w", err)
	}
	candidate.Set(key, typedValue)
	if _, err := config.LoadFrom(candidate); err != nil {
		return err
	}
	viper.Set(key, typedValue)

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write to config file
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'crossing config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# crossing configuration

# Intersection layout
geometry:
  # Half the side of a conflict zone in metres (zones are 2*zone_size wide)
  zone_size: 2

# Passing-order search
scheduler:
  # Minimum time in seconds between two vehicles entering the same zone
  safety_gap: 1.0
  # Weight a leader puts on its own fleet's delay
  alpha: 1.2
  # MCTS iterations per proposal
  iterations: 200
  # Weight of the per-step delay term in a node's cost
  step_weight: 5
  # Seed for expansion tie-breaks
  seed: 1

# Leader agreement protocol
consensus:
  # Approach lanes at the intersection
  lane_count: 4
  # Minimum rounds spent discovering other fleets
  discovery_rounds: 3
  # Fail a leader stuck in one phase for this many rounds (0 disables)
  phase_timeout_rounds: 0

# Point-mass vehicle limits
kinematics:
  fleet_length: 5
  max_speed: 16
  max_acceleration: 3
  min_acceleration: -3
  # Simulated seconds per round
  delta_t: 0.1
  # Distance to the exit point that counts as crossed
  finish_radius: 2

episode:
  # Give up on an episode after this many rounds
  max_rounds: 2000

logging:
  enabled: true
  # debug, info, warn or error
  level: info
  # Directory for episode.log; empty logs to stderr
  dir: ""
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to tune the scheduler and the protocol.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: CROSSING_* (e.g., CROSSING_SCHEDULER_ITERATIONS)")

	return nil
}
