package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete crossing configuration
type Config struct {
	Geometry   GeometryConfig   `mapstructure:"geometry" yaml:"geometry"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
	Consensus  ConsensusConfig  `mapstructure:"consensus" yaml:"consensus"`
	Kinematics KinematicsConfig `mapstructure:"kinematics" yaml:"kinematics"`
	Episode    EpisodeConfig    `mapstructure:"episode" yaml:"episode"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// GeometryConfig describes the intersection.
type GeometryConfig struct {
	// ZoneSize is half the side length of a conflict zone (default: 2, giving 4x4 zones)
	ZoneSize float64 `mapstructure:"zone_size" yaml:"zone_size"`
}

// SchedulerConfig controls the tree search and the simulator it drives.
type SchedulerConfig struct {
	// SafetyGap is the minimum time between two vehicles entering the same zone (default: 1.0)
	SafetyGap float64 `mapstructure:"safety_gap" yaml:"safety_gap"`
	// Alpha weights the proposing fleet's own delay during its search (default: 1.2)
	Alpha float64 `mapstructure:"alpha" yaml:"alpha"`
	// Iterations is the fixed search budget per proposal (default: 200)
	Iterations int `mapstructure:"iterations" yaml:"iterations"`
	// StepWeight scales the per-step delay term of a node's cost (default: 5)
	StepWeight float64 `mapstructure:"step_weight" yaml:"step_weight"`
	// Seed seeds the expansion tie-break source (default: 1)
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// ConsensusConfig controls the fleet leaders' agreement protocol.
type ConsensusConfig struct {
	// LaneCount is the number of approach lanes at the intersection (default: 4)
	LaneCount int `mapstructure:"lane_count" yaml:"lane_count"`
	// DiscoveryRounds is the minimum number of rounds spent forming the schedule group (default: 3)
	DiscoveryRounds int `mapstructure:"discovery_rounds" yaml:"discovery_rounds"`
	// PhaseTimeoutRounds fails a leader stuck in one phase for longer (0 = disabled)
	PhaseTimeoutRounds int `mapstructure:"phase_timeout_rounds" yaml:"phase_timeout_rounds"`
}

// KinematicsConfig holds the point-mass vehicle limits.
type KinematicsConfig struct {
	// FleetLength is the maximum number of vehicles per fleet (default: 5)
	FleetLength int `mapstructure:"fleet_length" yaml:"fleet_length"`
	// MaxSpeed in m/s (default: 16)
	MaxSpeed float64 `mapstructure:"max_speed" yaml:"max_speed"`
	// MaxAcceleration in m/s^2 (default: 3)
	MaxAcceleration float64 `mapstructure:"max_acceleration" yaml:"max_acceleration"`
	// MinAcceleration in m/s^2, i.e. the braking limit (default: -3)
	MinAcceleration float64 `mapstructure:"min_acceleration" yaml:"min_acceleration"`
	// DeltaT is the simulated time per round in seconds (default: 0.1)
	DeltaT float64 `mapstructure:"delta_t" yaml:"delta_t"`
	// FinishRadius is the distance to the exit point that counts as crossed (default: 2)
	FinishRadius float64 `mapstructure:"finish_radius" yaml:"finish_radius"`
}

// EpisodeConfig bounds a single intersection episode.
type EpisodeConfig struct {
	// MaxRounds stops an episode that has not finished (default: 2000)
	MaxRounds int `mapstructure:"max_rounds" yaml:"max_rounds"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether episode logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory for episode.log; empty logs to stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Geometry: GeometryConfig{
			ZoneSize: 2,
		},
		Scheduler: SchedulerConfig{
			SafetyGap:  1.0,
			Alpha:      1.2,
			Iterations: 200,
			StepWeight: 5,
			Seed:       1,
		},
		Consensus: ConsensusConfig{
			LaneCount:          4,
			DiscoveryRounds:    3,
			PhaseTimeoutRounds: 0, // no evidence for a sensible value, disabled by default
		},
		Kinematics: KinematicsConfig{
			FleetLength:     5,
			MaxSpeed:        16,
			MaxAcceleration: 3,
			MinAcceleration: -3,
			DeltaT:          0.1,
			FinishRadius:    2,
		},
		Episode: EpisodeConfig{
			MaxRounds: 2000,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
	}
}

// Tick returns the simulated duration of one round.
func (c *KinematicsConfig) Tick() time.Duration {
	return time.Duration(c.DeltaT * float64(time.Second))
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("geometry.zone_size", defaults.Geometry.ZoneSize)

	viper.SetDefault("scheduler.safety_gap", defaults.Scheduler.SafetyGap)
	viper.SetDefault("scheduler.alpha", defaults.Scheduler.Alpha)
	viper.SetDefault("scheduler.iterations", defaults.Scheduler.Iterations)
	viper.SetDefault("scheduler.step_weight", defaults.Scheduler.StepWeight)
	viper.SetDefault("scheduler.seed", defaults.Scheduler.Seed)

	viper.SetDefault("consensus.lane_count", defaults.Consensus.LaneCount)
	viper.SetDefault("consensus.discovery_rounds", defaults.Consensus.DiscoveryRounds)
	viper.SetDefault("consensus.phase_timeout_rounds", defaults.Consensus.PhaseTimeoutRounds)

	viper.SetDefault("kinematics.fleet_length", defaults.Kinematics.FleetLength)
	viper.SetDefault("kinematics.max_speed", defaults.Kinematics.MaxSpeed)
	viper.SetDefault("kinematics.max_acceleration", defaults.Kinematics.MaxAcceleration)
	viper.SetDefault("kinematics.min_acceleration", defaults.Kinematics.MinAcceleration)
	viper.SetDefault("kinematics.delta_t", defaults.Kinematics.DeltaT)
	viper.SetDefault("kinematics.finish_radius", defaults.Kinematics.FinishRadius)

	viper.SetDefault("episode.max_rounds", defaults.Episode.MaxRounds)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "crossing")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crossing"
	}
	return filepath.Join(home, ".config", "crossing")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
