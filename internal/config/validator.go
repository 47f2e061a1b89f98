package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scheduler.safety_gap")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateGeometry()...)
	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateConsensus()...)
	errors = append(errors, c.validateKinematics()...)
	errors = append(errors, c.validateEpisode()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func positive(field string, v float64) []ValidationError {
	if v > 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
}

func (c *Config) validateGeometry() []ValidationError {
	return positive("geometry.zone_size", c.Geometry.ZoneSize)
}

func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	if c.Scheduler.SafetyGap < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.safety_gap",
			Value:   c.Scheduler.SafetyGap,
			Message: "must be non-negative",
		})
	}
	errors = append(errors, positive("scheduler.alpha", c.Scheduler.Alpha)...)
	if c.Scheduler.Iterations < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.iterations",
			Value:   c.Scheduler.Iterations,
			Message: "must be non-negative",
		})
	}
	if c.Scheduler.StepWeight < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.step_weight",
			Value:   c.Scheduler.StepWeight,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateConsensus() []ValidationError {
	var errors []ValidationError

	if c.Consensus.LaneCount < 1 || c.Consensus.LaneCount > 4 {
		errors = append(errors, ValidationError{
			Field:   "consensus.lane_count",
			Value:   c.Consensus.LaneCount,
			Message: "must be between 1 and 4",
		})
	}
	if c.Consensus.DiscoveryRounds < 1 {
		errors = append(errors, ValidationError{
			Field:   "consensus.discovery_rounds",
			Value:   c.Consensus.DiscoveryRounds,
			Message: "must be at least 1",
		})
	}
	if c.Consensus.PhaseTimeoutRounds < 0 {
		errors = append(errors, ValidationError{
			Field:   "consensus.phase_timeout_rounds",
			Value:   c.Consensus.PhaseTimeoutRounds,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}

	return errors
}

func (c *Config) validateKinematics() []ValidationError {
	var errors []ValidationError

	if c.Kinematics.FleetLength < 1 {
		errors = append(errors, ValidationError{
			Field:   "kinematics.fleet_length",
			Value:   c.Kinematics.FleetLength,
			Message: "must be at least 1",
		})
	}
	errors = append(errors, positive("kinematics.max_speed", c.Kinematics.MaxSpeed)...)
	errors = append(errors, positive("kinematics.max_acceleration", c.Kinematics.MaxAcceleration)...)
	if c.Kinematics.MinAcceleration >= 0 {
		errors = append(errors, ValidationError{
			Field:   "kinematics.min_acceleration",
			Value:   c.Kinematics.MinAcceleration,
			Message: "must be negative",
		})
	}
	errors = append(errors, positive("kinematics.delta_t", c.Kinematics.DeltaT)...)
	errors = append(errors, positive("kinematics.finish_radius", c.Kinematics.FinishRadius)...)

	return errors
}

func (c *Config) validateEpisode() []ValidationError {
	if c.Episode.MaxRounds >= 1 {
		return nil
	}
	return []ValidationError{{
		Field:   "episode.max_rounds",
		Value:   c.Episode.MaxRounds,
		Message: "must be at least 1",
	}}
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
