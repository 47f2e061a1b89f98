// Package schedule turns passing orders into proposals: per-vehicle zone
// entry deadlines indexed by global zone. It also scores proposals from one
// fleet's point of view and checks that a proposal spaces the entries into
// every zone at least a safety gap apart.
package schedule

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/simulator"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

// Unused marks a zone the vehicle does not cross.
const Unused = simulator.Unused

// tolerance absorbs float rounding in occupancy checks.
const tolerance = 1e-9

// Deadlines holds a vehicle's zone entry times by global zone index.
type Deadlines = simulator.Slots

// Proposal maps each scheduled vehicle to its deadlines.
type Proposal map[vehicle.ID]Deadlines

// Keys returns the proposal's vehicles in ascending order.
func (p Proposal) Keys() []vehicle.ID {
	ids := make([]vehicle.ID, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	vehicle.SortIDs(ids)
	return ids
}

// Equal reports whether p and o hold identical deadlines.
func (p Proposal) Equal(o Proposal) bool {
	if len(p) != len(o) {
		return false
	}
	for id, d := range p {
		if od, ok := o[id]; !ok || od != d {
			return false
		}
	}
	return true
}

// Project simulates order once more and places each vehicle's entry times
// at their global zone slots.
func Project(order []vehicle.ID, states map[vehicle.ID]vehicle.State, opts simulator.Options) (Proposal, error) {
	res, err := simulator.Simulate(order, states, opts)
	if err != nil {
		return nil, err
	}
	p := make(Proposal, len(order))
	for i, id := range order {
		p[id] = res.Entries[i]
	}
	return p, nil
}

// Path returns the zones with a deadline, in entry order.
func Path(d Deadlines) []int {
	var zones []int
	for z, t := range d {
		if t != Unused {
			zones = append(zones, z)
		}
	}
	slices.SortStableFunc(zones, func(a, b int) int { return cmp.Compare(d[a], d[b]) })
	return zones
}

// Exit returns the time a vehicle at speed leaves its last zone.
func Exit(d Deadlines, speed float64, layout geometry.Layout) float64 {
	last := math.Inf(-1)
	for _, t := range d {
		if t != Unused && t > last {
			last = t
		}
	}
	if math.IsInf(last, -1) {
		return last
	}
	return last + layout.CrossingTime(speed)
}

// Score rates p from the point of view of the vehicles in own: the negated
// mean of their delays against the zero-conflict arrival time. A proposal
// that leaves out one of own's vehicles scores -Inf; an empty own scores 0.
func Score(p Proposal, own []vehicle.ID, states map[vehicle.ID]vehicle.State, layout geometry.Layout) float64 {
	if len(own) == 0 {
		return 0
	}

	var sum float64
	for _, id := range own {
		d, ok := p[id]
		if !ok {
			return math.Inf(-1)
		}
		st, ok := states[id]
		if !ok || st.Speed() <= 0 {
			return math.Inf(-1)
		}
		path, err := geometry.ConflictZonePath(id.Lane, st.DestLane)
		if err != nil {
			return math.Inf(-1)
		}
		speed := st.Speed()
		sum += Exit(d, speed, layout) - layout.MinArrivalTime(st.Location, speed, path)
	}
	return -sum / float64(len(own))
}

// Verify checks that each vehicle's deadlines do not decrease along its
// path and that, in every zone, occupants sorted by entry time are at least
// gap apart. Only entry times are compared: a slow occupant may still be
// inside the zone when the next one enters.
func Verify(p Proposal, states map[vehicle.ID]vehicle.State, gap float64) error {
	type occupant struct {
		id    vehicle.ID
		entry float64
	}
	var zones [geometry.NumZones][]occupant

	for _, id := range p.Keys() {
		d := p[id]
		if st, ok := states[id]; ok {
			path, err := geometry.ConflictZonePath(id.Lane, st.DestLane)
			if err != nil {
				return err
			}
			for k := 1; k < len(path); k++ {
				if d[path[k]]+tolerance < d[path[k-1]] {
					return errors.NewInfeasibleError(
						fmt.Sprintf("zone %d entered before zone %d", path[k], path[k-1]), nil).
						WithVehicle(id.String())
				}
			}
		}
		for z, t := range d {
			if t != Unused {
				zones[z] = append(zones[z], occupant{id: id, entry: t})
			}
		}
	}

	for z, occ := range zones {
		slices.SortStableFunc(occ, func(a, b occupant) int { return cmp.Compare(a.entry, b.entry) })
		for i := 1; i < len(occ); i++ {
			if occ[i].entry-occ[i-1].entry+tolerance < gap {
				return errors.NewInfeasibleError(
					fmt.Sprintf("zone %d: %v enters %.3fs after %v", z, occ[i].id,
						occ[i].entry-occ[i-1].entry, occ[i-1].id), nil).
					WithVehicle(occ[i].id.String())
			}
		}
	}
	return nil
}

// Order recovers a passing order from p: vehicles sorted by their first
// deadline, ties by ID.
func Order(p Proposal) []vehicle.ID {
	ids := p.Keys()
	first := func(id vehicle.ID) float64 {
		path := Path(p[id])
		if len(path) == 0 {
			return math.Inf(1)
		}
		return p[id][path[0]]
	}
	slices.SortStableFunc(ids, func(a, b vehicle.ID) int {
		return cmp.Compare(first(a), first(b))
	})
	return ids
}
