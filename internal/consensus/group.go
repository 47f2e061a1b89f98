package consensus

import (
	"slices"

	"github.com/Iron-Ham/crossing/internal/vehicle"
)

// Group is a grow-only set of participating fleets. The zero value is an
// empty group. Groups are values: Union returns a new group.
type Group struct {
	fleets map[vehicle.Fleet]struct{}
}

// NewGroup returns a group holding fleets.
func NewGroup(fleets ...vehicle.Fleet) Group {
	g := Group{fleets: make(map[vehicle.Fleet]struct{}, len(fleets))}
	for _, f := range fleets {
		g.fleets[f] = struct{}{}
	}
	return g
}

// Len returns the number of fleets.
func (g Group) Len() int {
	return len(g.fleets)
}

// Contains reports whether f is in g.
func (g Group) Contains(f vehicle.Fleet) bool {
	_, ok := g.fleets[f]
	return ok
}

// Union returns the set union of g and o.
func (g Group) Union(o Group) Group {
	u := Group{fleets: make(map[vehicle.Fleet]struct{}, len(g.fleets)+len(o.fleets))}
	for f := range g.fleets {
		u.fleets[f] = struct{}{}
	}
	for f := range o.fleets {
		u.fleets[f] = struct{}{}
	}
	return u
}

// Equal reports whether g and o hold the same fleets.
func (g Group) Equal(o Group) bool {
	if len(g.fleets) != len(o.fleets) {
		return false
	}
	for f := range g.fleets {
		if _, ok := o.fleets[f]; !ok {
			return false
		}
	}
	return true
}

// Fleets returns the fleets in ascending order.
func (g Group) Fleets() []vehicle.Fleet {
	out := make([]vehicle.Fleet, 0, len(g.fleets))
	for f := range g.fleets {
		out = append(out, f)
	}
	slices.SortFunc(out, vehicle.CompareFleets)
	return out
}

// Keys returns the distinct fleet keys in ascending order.
func (g Group) Keys() []vehicle.FleetKey {
	var keys []vehicle.FleetKey
	for _, f := range g.Fleets() {
		if k := f.Key(); len(keys) == 0 || keys[len(keys)-1] != k {
			keys = append(keys, k)
		}
	}
	return keys
}

// Lanes returns the distinct lanes with at least one fleet, ascending.
func (g Group) Lanes() []int {
	var lanes []int
	for _, f := range g.Fleets() {
		if len(lanes) == 0 || lanes[len(lanes)-1] != f.Lane {
			lanes = append(lanes, f.Lane)
		}
	}
	return lanes
}

// Vehicles returns every vehicle implied by the group, ascending.
func (g Group) Vehicles() []vehicle.ID {
	var ids []vehicle.ID
	for _, f := range g.Fleets() {
		ids = append(ids, f.Members()...)
	}
	vehicle.SortIDs(ids)
	return slices.Compact(ids)
}
