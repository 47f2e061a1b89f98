package schedule

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/simulator"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

var (
	westbound  = vehicle.ID{Lane: 0, Fleet: 0, Vehicle: 0}
	southbound = vehicle.ID{Lane: 1, Fleet: 0, Vehicle: 0}
)

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

func TestProject(t *testing.T) {
	p, err := Project([]vehicle.ID{westbound, southbound}, crossingPair(), simulator.DefaultOptions())
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}

	want := Proposal{
		westbound:  {5, 7, Unused, Unused},
		southbound: {Unused, 10, 12, Unused},
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("Project mismatch (-want +got):\n%s", diff)
	}
}

func TestProject_SecondEntersAfterFirstExitsPlusGap(t *testing.T) {
	opts := simulator.DefaultOptions()
	p, err := Project([]vehicle.ID{southbound, westbound}, crossingPair(), opts)
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}

	// Zone 1 is shared; southbound goes first.
	firstExit := p[southbound][1] + opts.Layout.CrossingTime(2)
	if p[westbound][1] < firstExit+opts.SafetyGap {
		t.Errorf("westbound enters zone 1 at %v, want >= %v", p[westbound][1], firstExit+opts.SafetyGap)
	}
}

func TestProject_MissingState(t *testing.T) {
	_, err := Project([]vehicle.ID{{Lane: 2}}, crossingPair(), simulator.DefaultOptions())
	if !errors.Is(err, errors.ErrNoProposal) {
		t.Errorf("expected ErrNoProposal, got %v", err)
	}
}

func TestExit(t *testing.T) {
	layout := geometry.DefaultLayout()
	if got := Exit(Deadlines{Unused, 10, 12, Unused}, 2, layout); got != 14 {
		t.Errorf("Exit = %v, want 14", got)
	}
	if got := Exit(Deadlines{Unused, Unused, Unused, Unused}, 2, layout); !math.IsInf(got, -1) {
		t.Errorf("Exit of empty deadlines = %v, want -Inf", got)
	}
}

func TestPath(t *testing.T) {
	// A left turn from lane 3 crosses 3, 0, 1.
	got := Path(Deadlines{4, 5.5, Unused, 2})
	if diff := cmp.Diff([]int{3, 0, 1}, got); diff != "" {
		t.Errorf("Path mismatch (-want +got):\n%s", diff)
	}
}

func TestScore(t *testing.T) {
	states := crossingPair()
	layout := geometry.DefaultLayout()
	p := Proposal{
		westbound:  {5, 7, Unused, Unused},
		southbound: {Unused, 10, 12, Unused},
	}

	tests := []struct {
		name string
		own  []vehicle.ID
		want float64
	}{
		{"unobstructed fleet", []vehicle.ID{westbound}, 0},
		{"yielding fleet", []vehicle.ID{southbound}, -5},
		{"both", []vehicle.ID{westbound, southbound}, -2.5},
		{"no vehicles", nil, 0},
		{"vehicle missing from proposal", []vehicle.ID{{Lane: 3}}, math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(p, tt.own, states, layout); got != tt.want {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	states := crossingPair()

	t.Run("projected proposal passes", func(t *testing.T) {
		for _, order := range [][]vehicle.ID{{westbound, southbound}, {southbound, westbound}} {
			p, err := Project(order, states, simulator.DefaultOptions())
			if err != nil {
				t.Fatalf("Project() error: %v", err)
			}
			if err := Verify(p, states, 1.0); err != nil {
				t.Errorf("Verify(%v) error: %v", order, err)
			}
		}
	})

	t.Run("entries gap apart pass while the occupant is still inside", func(t *testing.T) {
		// westbound needs 2s to cross zone 1 and leaves it at 9
		p := Proposal{
			westbound:  {5, 7, Unused, Unused},
			southbound: {Unused, 8, 10, Unused},
		}
		if err := Verify(p, states, 1.0); err != nil {
			t.Errorf("Verify() error: %v", err)
		}
	})

	t.Run("entries closer than the gap fail", func(t *testing.T) {
		p := Proposal{
			westbound:  {5, 7, Unused, Unused},
			southbound: {Unused, 7.5, 9.5, Unused},
		}
		err := Verify(p, states, 1.0)
		var ie *errors.InfeasibleError
		if !errors.As(err, &ie) {
			t.Fatalf("expected InfeasibleError, got %v", err)
		}
		if ie.Vehicle != southbound.String() {
			t.Errorf("Vehicle = %q, want %q", ie.Vehicle, southbound.String())
		}
	})

	t.Run("decreasing path fails", func(t *testing.T) {
		p := Proposal{westbound: {7, 5, Unused, Unused}}
		if err := Verify(p, states, 1.0); err == nil {
			t.Error("expected an error for a vehicle entering zone 1 before zone 0")
		}
	})
}

func TestOrder(t *testing.T) {
	p := Proposal{
		westbound:  {6, 8, Unused, Unused},
		southbound: {Unused, 5, 7, Unused},
	}
	if diff := cmp.Diff([]vehicle.ID{southbound, westbound}, Order(p)); diff != "" {
		t.Errorf("Order mismatch (-want +got):\n%s", diff)
	}
}

func TestProposal_KeysAndEqual(t *testing.T) {
	p := Proposal{
		{Lane: 3, Fleet: 1}: {},
		{Lane: 0, Fleet: 2}: {},
		{Lane: 0, Fleet: 1}: {},
	}
	want := []vehicle.ID{{Lane: 0, Fleet: 1}, {Lane: 0, Fleet: 2}, {Lane: 3, Fleet: 1}}
	if diff := cmp.Diff(want, p.Keys()); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}

	q := Proposal{{Lane: 3, Fleet: 1}: {}, {Lane: 0, Fleet: 2}: {}, {Lane: 0, Fleet: 1}: {}}
	if !p.Equal(q) {
		t.Error("identical proposals should be equal")
	}
	q[vehicle.ID{Lane: 0, Fleet: 1}] = Deadlines{1}
	if p.Equal(q) {
		t.Error("proposals with different deadlines should differ")
	}
}
