// Package simulator evaluates a passing order: it places every vehicle's
// conflict-zone entries in turn, honouring each vehicle's own sequencing and
// a shared safety gap between occupants, and reports the weighted total
// delay against the zero-conflict baseline.
package simulator

import (
	"fmt"

	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

// Unused marks a zone slot a vehicle does not cross.
const Unused = -1.0

// Slots holds one entry time per global zone index.
type Slots [geometry.NumZones]float64

// EmptySlots returns a row with every slot Unused.
func EmptySlots() Slots {
	return Slots{Unused, Unused, Unused, Unused}
}

// Options configures a simulation.
type Options struct {
	Layout    geometry.Layout
	SafetyGap float64
	// Alpha scales the delay of vehicles belonging to Self.
	Alpha float64
	Self  vehicle.FleetKey
}

// DefaultOptions returns the default layout with a 1 s gap and alpha 1.2.
func DefaultOptions() Options {
	return Options{
		Layout:    geometry.DefaultLayout(),
		SafetyGap: 1.0,
		Alpha:     1.2,
		Self:      vehicle.FleetKey{Lane: -1, Fleet: -1},
	}
}

// Result is the outcome of simulating one order. Entries, Exits and Delays
// are indexed like the simulated order.
type Result struct {
	TotalDelay float64
	Entries    []Slots
	Exits      []float64
	// Delays are unweighted per-vehicle delays.
	Delays []float64
}

// Simulate places the vehicles of order in sequence. For every zone z_k on a
// vehicle's path the entry time is the largest of its free-flow time, its
// entry into the previous zone plus one crossing time, and the previous
// occupant's entry into z_k plus the safety gap and one crossing time. When
// the occupant bound is the binding one, the vehicle's entry into the
// preceding zone is pushed back to the occupant's entry plus the gap so the
// vehicle waits upstream rather than inside the previous zone.
//
// A vehicle without a state is infeasible; a vehicle with no path or a
// non-positive speed is a precondition violation.
func Simulate(order []vehicle.ID, states map[vehicle.ID]vehicle.State, opts Options) (Result, error) {
	res := Result{
		Entries: make([]Slots, len(order)),
		Exits:   make([]float64, len(order)),
		Delays:  make([]float64, len(order)),
	}

	var last [geometry.NumZones]float64
	var occupied [geometry.NumZones]bool

	for i, id := range order {
		st, ok := states[id]
		if !ok {
			return Result{}, errors.NewInfeasibleError("simulate order", errors.ErrMissingState).
				WithVehicle(id.String())
		}
		speed := st.Speed()
		if speed <= 0 {
			return Result{}, errors.NewPreconditionError(
				fmt.Sprintf("speed %g", speed), errors.ErrNonPositiveSpeed).WithVehicle(id.String())
		}
		path, err := geometry.ConflictZonePath(id.Lane, st.DestLane)
		if err != nil {
			var pe *errors.PreconditionError
			if errors.As(err, &pe) {
				return Result{}, pe.WithVehicle(id.String())
			}
			return Result{}, err
		}

		cross := opts.Layout.CrossingTime(speed)
		row := EmptySlots()
		for k, z := range path {
			entry := opts.Layout.FreeFlowTime(st.Location, speed, path, k)
			if k > 0 {
				entry = max(entry, row[path[k-1]]+cross)
			}
			if occupied[z] {
				if floor := last[z] + opts.SafetyGap + cross; floor > entry {
					entry = floor
					if k > 0 {
						prev := path[k-1]
						row[prev] = max(row[prev], last[z]+opts.SafetyGap)
					}
				}
			}
			row[z] = entry
		}

		for _, z := range path {
			last[z] = row[z]
			occupied[z] = true
		}

		exit := row[path[len(path)-1]] + cross
		delay := exit - opts.Layout.MinArrivalTime(st.Location, speed, path)

		weight := 1.0
		if id.FleetKey() == opts.Self {
			weight = opts.Alpha
		}

		res.Entries[i] = row
		res.Exits[i] = exit
		res.Delays[i] = delay
		res.TotalDelay += weight * delay
	}

	return res, nil
}

// TotalDelay is Simulate reduced to its delay.
func TotalDelay(order []vehicle.ID, states map[vehicle.ID]vehicle.State, opts Options) (float64, error) {
	res, err := Simulate(order, states, opts)
	if err != nil {
		return 0, err
	}
	return res.TotalDelay, nil
}
