// Package scenario loads the fleets and initial vehicle states of an
// intersection episode from a text or YAML file.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

// Scenario is the starting point of an episode.
type Scenario struct {
	Fleets []vehicle.Fleet
	States map[vehicle.ID]vehicle.State
}

// Vehicles returns every vehicle ID in ascending order.
func (s *Scenario) Vehicles() []vehicle.ID {
	ids := make([]vehicle.ID, 0, len(s.States))
	for id := range s.States {
		ids = append(ids, id)
	}
	vehicle.SortIDs(ids)
	return ids
}

// Fleet returns the fleet with key k.
func (s *Scenario) Fleet(k vehicle.FleetKey) (vehicle.Fleet, bool) {
	for _, f := range s.Fleets {
		if f.Key() == k {
			return f, true
		}
	}
	return vehicle.Fleet{}, false
}

// Validate checks that lanes and destinations form a path through the
// intersection, fleet keys are unique, every fleet has vehicles 0..size-1
// with positive speed, and no fleet is longer than maxFleetLength (0 means
// unbounded).
func (s *Scenario) Validate(maxFleetLength int) error {
	if len(s.Fleets) == 0 {
		return invalid("scenario has no fleets")
	}
	seen := make(map[vehicle.FleetKey]bool, len(s.Fleets))
	total := 0
	for _, f := range s.Fleets {
		if _, err := geometry.ConflictZonePath(f.Lane, f.DestLane); err != nil {
			return fmt.Errorf("fleet %v: %w", f.Key(), err)
		}
		if f.Fleet < 0 {
			return invalid(fmt.Sprintf("fleet %v: negative fleet id", f.Key()))
		}
		if seen[f.Key()] {
			return invalid(fmt.Sprintf("fleet %v listed twice", f.Key()))
		}
		seen[f.Key()] = true
		if f.Size <= 0 {
			return invalid(fmt.Sprintf("fleet %v: size must be positive", f.Key()))
		}
		if maxFleetLength > 0 && f.Size > maxFleetLength {
			return invalid(fmt.Sprintf("fleet %v: %d vehicles exceeds the limit of %d", f.Key(), f.Size, maxFleetLength))
		}
		for _, id := range f.Members() {
			st, ok := s.States[id]
			if !ok {
				return invalid(fmt.Sprintf("vehicle %v missing", id))
			}
			if st.DestLane != f.DestLane {
				return invalid(fmt.Sprintf("vehicle %v: destination %d differs from its fleet's %d", id, st.DestLane, f.DestLane))
			}
			if st.Speed() <= 0 {
				return fmt.Errorf("vehicle %v: %w", id, errors.ErrNonPositiveSpeed)
			}
		}
		total += f.Size
	}
	if total != len(s.States) {
		return invalid(fmt.Sprintf("%d vehicle states for %d fleet members", len(s.States), total))
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%s: %w", msg, errors.ErrInvalidInput)
}

// Load reads a scenario from path, choosing the YAML parser for .yaml and
// .yml files and the text parser otherwise. The result is validated.
func Load(path string, maxFleetLength int) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var sc *Scenario
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		sc, err = ParseYAML(f)
	default:
		sc, err = ParseText(f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := sc.Validate(maxFleetLength); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return sc, nil
}

func (s *Scenario) add(f vehicle.Fleet, vid int, st vehicle.State) error {
	id := f.Key().Member(vid)
	if _, dup := s.States[id]; dup {
		return invalid(fmt.Sprintf("vehicle %v listed twice", id))
	}
	st.DestLane = f.DestLane
	s.States[id] = st
	return nil
}

func (s *Scenario) sortFleets() {
	slices.SortFunc(s.Fleets, vehicle.CompareFleets)
}
