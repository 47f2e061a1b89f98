// Package vehicle defines vehicle and fleet identities, the kinematic
// snapshot vehicles broadcast, and a store holding the newest snapshot
// per vehicle.
package vehicle

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Iron-Ham/crossing/internal/geometry"
)

// ID identifies a vehicle for the duration of an episode.
type ID struct {
	Lane    int
	Fleet   int
	Vehicle int
}

// String renders the ID as "lane/fleet/vehicle".
func (id ID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Lane, id.Fleet, id.Vehicle)
}

// FleetKey returns the fleet the vehicle belongs to.
func (id ID) FleetKey() FleetKey {
	return FleetKey{Lane: id.Lane, Fleet: id.Fleet}
}

// IsLeader reports whether the vehicle leads its fleet.
func (id ID) IsLeader() bool {
	return id.Vehicle == 0
}

// Predecessor returns the vehicle directly ahead in the same fleet.
// The result is only meaningful when !IsLeader().
func (id ID) Predecessor() ID {
	return ID{Lane: id.Lane, Fleet: id.Fleet, Vehicle: id.Vehicle - 1}
}

// Compare orders IDs by lane, then fleet, then vehicle.
func Compare(a, b ID) int {
	if c := cmp.Compare(a.Lane, b.Lane); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Fleet, b.Fleet); c != 0 {
		return c
	}
	return cmp.Compare(a.Vehicle, b.Vehicle)
}

// SortIDs sorts ids in place in Compare order.
func SortIDs(ids []ID) {
	slices.SortFunc(ids, Compare)
}

// FleetKey identifies a fleet by its lane and fleet number.
type FleetKey struct {
	Lane  int
	Fleet int
}

// String renders the key as "lane/fleet".
func (k FleetKey) String() string {
	return fmt.Sprintf("%d/%d", k.Lane, k.Fleet)
}

// Member returns the ID of vehicle v of the fleet.
func (k FleetKey) Member(v int) ID {
	return ID{Lane: k.Lane, Fleet: k.Fleet, Vehicle: v}
}

// CompareFleetKeys orders keys by lane, then fleet.
func CompareFleetKeys(a, b FleetKey) int {
	if c := cmp.Compare(a.Lane, b.Lane); c != 0 {
		return c
	}
	return cmp.Compare(a.Fleet, b.Fleet)
}

// Fleet describes a participating fleet as advertised in schedule groups.
type Fleet struct {
	Lane     int
	DestLane int
	Fleet    int
	Size     int
}

// Key returns the fleet's key.
func (f Fleet) Key() FleetKey {
	return FleetKey{Lane: f.Lane, Fleet: f.Fleet}
}

// Members returns the IDs of the fleet's vehicles, leader first.
func (f Fleet) Members() []ID {
	ids := make([]ID, f.Size)
	for v := range ids {
		ids[v] = f.Key().Member(v)
	}
	return ids
}

// CompareFleets orders fleets by lane, fleet, destination and size.
func CompareFleets(a, b Fleet) int {
	if c := CompareFleetKeys(a.Key(), b.Key()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DestLane, b.DestLane); c != 0 {
		return c
	}
	return cmp.Compare(a.Size, b.Size)
}

// State is a vehicle's kinematic snapshot.
type State struct {
	Location     geometry.Vec2
	Velocity     geometry.Vec2
	Acceleration geometry.Vec2
	DestLane     int
	Finished     bool
}

// Speed returns the magnitude of the velocity.
func (s State) Speed() float64 {
	return s.Velocity.Len()
}

// DistanceToCentre returns the distance from the intersection centre.
func (s State) DistanceToCentre() float64 {
	return s.Location.Len()
}
