package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}
	if cfg.Geometry.ZoneSize != 2 {
		t.Errorf("Geometry.ZoneSize = %v, want 2", cfg.Geometry.ZoneSize)
	}
	if cfg.Scheduler.SafetyGap != 1.0 {
		t.Errorf("Scheduler.SafetyGap = %v, want 1.0", cfg.Scheduler.SafetyGap)
	}
	if cfg.Scheduler.Alpha != 1.2 {
		t.Errorf("Scheduler.Alpha = %v, want 1.2", cfg.Scheduler.Alpha)
	}
	if cfg.Scheduler.Iterations != 200 {
		t.Errorf("Scheduler.Iterations = %d, want 200", cfg.Scheduler.Iterations)
	}
	if cfg.Consensus.LaneCount != 4 {
		t.Errorf("Consensus.LaneCount = %d, want 4", cfg.Consensus.LaneCount)
	}
	if cfg.Consensus.PhaseTimeoutRounds != 0 {
		t.Errorf("Consensus.PhaseTimeoutRounds = %d, want 0 (disabled)", cfg.Consensus.PhaseTimeoutRounds)
	}
	if cfg.Kinematics.FleetLength != 5 {
		t.Errorf("Kinematics.FleetLength = %d, want 5", cfg.Kinematics.FleetLength)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() should validate, got %v", ValidationErrors(errs))
	}
}

func TestKinematicsConfig_Tick(t *testing.T) {
	k := KinematicsConfig{DeltaT: 0.1}
	if got := k.Tick(); got != 100*time.Millisecond {
		t.Errorf("Tick() = %v, want 100ms", got)
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	v := viper.New()
	for key, value := range defaultsMap() {
		v.SetDefault(key, value)
	}

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Scheduler.Seed != 1 {
		t.Errorf("Scheduler.Seed = %d, want 1", cfg.Scheduler.Seed)
	}
	if cfg.Kinematics.MinAcceleration != -3 {
		t.Errorf("Kinematics.MinAcceleration = %v, want -3", cfg.Kinematics.MinAcceleration)
	}
}

func TestLoadFrom_Override(t *testing.T) {
	v := viper.New()
	for key, value := range defaultsMap() {
		v.SetDefault(key, value)
	}
	v.Set("scheduler.iterations", 50)
	v.Set("scheduler.safety_gap", 0.5)

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Scheduler.Iterations != 50 {
		t.Errorf("Scheduler.Iterations = %d, want 50", cfg.Scheduler.Iterations)
	}
	if cfg.Scheduler.SafetyGap != 0.5 {
		t.Errorf("Scheduler.SafetyGap = %v, want 0.5", cfg.Scheduler.SafetyGap)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	v := viper.New()
	for key, value := range defaultsMap() {
		v.SetDefault(key, value)
	}
	v.Set("geometry.zone_size", 0)
	v.Set("logging.level", "verbose")

	_, err := LoadFrom(v)
	if err == nil {
		t.Fatal("expected validation error")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 2 {
		t.Errorf("expected 2 validation errors, got %d: %v", len(verrs), verrs)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative safety gap", func(c *Config) { c.Scheduler.SafetyGap = -1 }, "scheduler.safety_gap"},
		{"zero alpha", func(c *Config) { c.Scheduler.Alpha = 0 }, "scheduler.alpha"},
		{"negative iterations", func(c *Config) { c.Scheduler.Iterations = -1 }, "scheduler.iterations"},
		{"too many lanes", func(c *Config) { c.Consensus.LaneCount = 5 }, "consensus.lane_count"},
		{"no discovery", func(c *Config) { c.Consensus.DiscoveryRounds = 0 }, "consensus.discovery_rounds"},
		{"negative timeout", func(c *Config) { c.Consensus.PhaseTimeoutRounds = -2 }, "consensus.phase_timeout_rounds"},
		{"empty fleets", func(c *Config) { c.Kinematics.FleetLength = 0 }, "kinematics.fleet_length"},
		{"positive braking", func(c *Config) { c.Kinematics.MinAcceleration = 1 }, "kinematics.min_acceleration"},
		{"zero tick", func(c *Config) { c.Kinematics.DeltaT = 0 }, "kinematics.delta_t"},
		{"no rounds", func(c *Config) { c.Episode.MaxRounds = 0 }, "episode.max_rounds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
			}
			if errs[0].Field != tt.field {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	single := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
	if single.Error() != "a: bad (got: 1)" {
		t.Errorf("single Error() = %q", single.Error())
	}

	multi := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	if !strings.HasPrefix(multi.Error(), "2 validation errors:") {
		t.Errorf("multi Error() = %q", multi.Error())
	}
}

func TestConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := ConfigDir(); got != "/tmp/xdg/crossing" {
		t.Errorf("ConfigDir() = %q, want /tmp/xdg/crossing", got)
	}
	if got := ConfigFile(); got != "/tmp/xdg/crossing/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

// defaultsMap mirrors SetDefaults for an isolated viper instance.
func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"geometry.zone_size":             d.Geometry.ZoneSize,
		"scheduler.safety_gap":           d.Scheduler.SafetyGap,
		"scheduler.alpha":                d.Scheduler.Alpha,
		"scheduler.iterations":           d.Scheduler.Iterations,
		"scheduler.step_weight":          d.Scheduler.StepWeight,
		"scheduler.seed":                 d.Scheduler.Seed,
		"consensus.lane_count":           d.Consensus.LaneCount,
		"consensus.discovery_rounds":     d.Consensus.DiscoveryRounds,
		"consensus.phase_timeout_rounds": d.Consensus.PhaseTimeoutRounds,
		"kinematics.fleet_length":        d.Kinematics.FleetLength,
		"kinematics.max_speed":           d.Kinematics.MaxSpeed,
		"kinematics.max_acceleration":    d.Kinematics.MaxAcceleration,
		"kinematics.min_acceleration":    d.Kinematics.MinAcceleration,
		"kinematics.delta_t":             d.Kinematics.DeltaT,
		"kinematics.finish_radius":       d.Kinematics.FinishRadius,
		"episode.max_rounds":             d.Episode.MaxRounds,
		"logging.enabled":                d.Logging.Enabled,
		"logging.level":                  d.Logging.Level,
		"logging.dir":                    d.Logging.Dir,
	}
}
