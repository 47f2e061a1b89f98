package simulator

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

var (
	westbound  = vehicle.ID{Lane: 0, Fleet: 0, Vehicle: 0}
	southbound = vehicle.ID{Lane: 1, Fleet: 0, Vehicle: 0}
)

// crossingPair returns two vehicles ten metres from their first zone at
// 2 m/s: one westbound going straight (zones 0,1) and one southbound going
// straight (zones 1,2). They share zone 1.
func crossingPair() map[vehicle.ID]vehicle.State {
	return map[vehicle.ID]vehicle.State{
		westbound: {
			Location: geometry.Vec2{X: 14, Y: 2},
			Velocity: geometry.Vec2{X: -2},
			DestLane: 2,
		},
		southbound: {
			Location: geometry.Vec2{X: -2, Y: 14},
			Velocity: geometry.Vec2{Y: -2},
			DestLane: 3,
		},
	}
}

func TestSimulate_SingleVehicle(t *testing.T) {
	states := crossingPair()
	res, err := Simulate([]vehicle.ID{westbound}, states, DefaultOptions())
	if err != nil {
		t.Fatalf("Simulate() error: %v", err)
	}

	want := Slots{5, 7, Unused, Unused}
	if res.Entries[0] != want {
		t.Errorf("Entries[0] = %v, want %v", res.Entries[0], want)
	}
	if res.Exits[0] != 9 {
		t.Errorf("Exits[0] = %v, want 9", res.Exits[0])
	}
	if res.TotalDelay != 0 {
		t.Errorf("TotalDelay = %v, want 0 for an unobstructed vehicle", res.TotalDelay)
	}
}

func TestSimulate_SharedZone(t *testing.T) {
	tests := []struct {
		name      string
		order     []vehicle.ID
		want      []Slots
		wantDelay float64
	}{
		{
			name:  "westbound first",
			order: []vehicle.ID{westbound, southbound},
			want: []Slots{
				{5, 7, Unused, Unused},
				{Unused, 10, 12, Unused},
			},
			wantDelay: 5,
		},
		{
			name:  "southbound first pushes back the preceding leg",
			order: []vehicle.ID{southbound, westbound},
			want: []Slots{
				{Unused, 5, 7, Unused},
				{6, 8, Unused, Unused},
			},
			wantDelay: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Simulate(tt.order, crossingPair(), DefaultOptions())
			if err != nil {
				t.Fatalf("Simulate() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, res.Entries); diff != "" {
				t.Errorf("Entries mismatch (-want +got):\n%s", diff)
			}
			if res.TotalDelay != tt.wantDelay {
				t.Errorf("TotalDelay = %v, want %v", res.TotalDelay, tt.wantDelay)
			}
		})
	}
}

func TestSimulate_SecondEntersAfterFirstExitsPlusGap(t *testing.T) {
	opts := DefaultOptions()
	res, err := Simulate([]vehicle.ID{westbound, southbound}, crossingPair(), opts)
	if err != nil {
		t.Fatalf("Simulate() error: %v", err)
	}
	firstExit := res.Entries[0][1] + opts.Layout.CrossingTime(2)
	if res.Entries[1][1] < firstExit+opts.SafetyGap {
		t.Errorf("second entry %v, want >= %v", res.Entries[1][1], firstExit+opts.SafetyGap)
	}
}

func TestSimulate_AlphaWeightsOwnFleet(t *testing.T) {
	opts := DefaultOptions()
	opts.Self = westbound.FleetKey()

	res, err := Simulate([]vehicle.ID{southbound, westbound}, crossingPair(), opts)
	if err != nil {
		t.Fatalf("Simulate() error: %v", err)
	}
	if math.Abs(res.TotalDelay-1.2) > 1e-12 {
		t.Errorf("TotalDelay = %v, want 1.2", res.TotalDelay)
	}
	if res.Delays[1] != 1 {
		t.Errorf("Delays[1] = %v, want unweighted 1", res.Delays[1])
	}
}

func TestSimulate_Errors(t *testing.T) {
	t.Run("missing state", func(t *testing.T) {
		_, err := Simulate([]vehicle.ID{{Lane: 3, Fleet: 9}}, crossingPair(), DefaultOptions())
		if !errors.Is(err, errors.ErrMissingState) {
			t.Errorf("expected ErrMissingState, got %v", err)
		}
		if !errors.Is(err, errors.ErrNoProposal) {
			t.Error("missing state should read as no proposal")
		}
		var ie *errors.InfeasibleError
		if !errors.As(err, &ie) || ie.Vehicle != "3/9/0" {
			t.Errorf("expected InfeasibleError for 3/9/0, got %v", err)
		}
	})

	t.Run("stopped vehicle", func(t *testing.T) {
		states := crossingPair()
		st := states[westbound]
		st.Velocity = geometry.Vec2{}
		states[westbound] = st

		_, err := Simulate([]vehicle.ID{westbound}, states, DefaultOptions())
		if !errors.Is(err, errors.ErrNonPositiveSpeed) {
			t.Errorf("expected ErrNonPositiveSpeed, got %v", err)
		}
		if !errors.IsFatal(err) {
			t.Error("precondition violations are fatal")
		}
	})

	t.Run("destination equals lane", func(t *testing.T) {
		states := crossingPair()
		st := states[westbound]
		st.DestLane = 0
		states[westbound] = st

		_, err := Simulate([]vehicle.ID{westbound}, states, DefaultOptions())
		if !errors.Is(err, errors.ErrEmptyPath) {
			t.Errorf("expected ErrEmptyPath, got %v", err)
		}
		var pe *errors.PreconditionError
		if !errors.As(err, &pe) || pe.Vehicle != "0/0/0" {
			t.Errorf("expected vehicle context on %v", err)
		}
	})
}

func TestSimulate_EmptyOrder(t *testing.T) {
	res, err := Simulate(nil, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("Simulate() error: %v", err)
	}
	if res.TotalDelay != 0 || len(res.Entries) != 0 {
		t.Errorf("empty order should yield an empty result, got %+v", res)
	}
}

// TestSimulate_Invariants checks random orders over random traffic: entry
// times never decrease along a vehicle's path, and consecutive occupants of
// a zone are at least one safety gap apart.
func TestSimulate_Invariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	opts := DefaultOptions()

	for trial := 0; trial < 200; trial++ {
		states := make(map[vehicle.ID]vehicle.State)
		var order []vehicle.ID
		for lane := 0; lane < geometry.NumZones; lane++ {
			dest := (lane + 1 + rng.IntN(3)) % geometry.NumZones
			for v := 0; v < 1+rng.IntN(3); v++ {
				id := vehicle.ID{Lane: lane, Vehicle: v}
				states[id] = vehicle.State{
					Location: geometry.Vec2{X: rng.Float64()*60 - 30, Y: rng.Float64()*60 - 30},
					Velocity: geometry.Vec2{X: 0.5 + rng.Float64()*10},
					DestLane: dest,
				}
				order = append(order, id)
			}
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		res, err := Simulate(order, states, opts)
		if err != nil {
			t.Fatalf("trial %d: Simulate() error: %v", trial, err)
		}

		lastEntry := [geometry.NumZones]float64{}
		seen := [geometry.NumZones]bool{}
		for i, id := range order {
			path, _ := geometry.ConflictZonePath(id.Lane, states[id].DestLane)
			for k := 1; k < len(path); k++ {
				if res.Entries[i][path[k]] < res.Entries[i][path[k-1]] {
					t.Fatalf("trial %d: vehicle %v entries decrease along path: %v", trial, id, res.Entries[i])
				}
			}
			for _, z := range path {
				if seen[z] && res.Entries[i][z]-lastEntry[z] < opts.SafetyGap {
					t.Fatalf("trial %d: zone %d occupants %v and %v closer than gap",
						trial, z, lastEntry[z], res.Entries[i][z])
				}
				lastEntry[z] = res.Entries[i][z]
				seen[z] = true
			}
			if res.Delays[i] < -1e-9 {
				t.Fatalf("trial %d: negative delay %v for %v", trial, res.Delays[i], id)
			}
		}
	}
}
