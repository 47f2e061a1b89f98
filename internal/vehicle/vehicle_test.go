package vehicle

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/crossing/internal/geometry"
)

func TestSortIDs(t *testing.T) {
	ids := []ID{{1, 0, 2}, {0, 1, 0}, {1, 0, 0}, {0, 0, 3}}
	SortIDs(ids)

	want := []ID{{0, 0, 3}, {0, 1, 0}, {1, 0, 0}, {1, 0, 2}}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("SortIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestID_Helpers(t *testing.T) {
	id := ID{Lane: 2, Fleet: 1, Vehicle: 3}

	if id.String() != "2/1/3" {
		t.Errorf("String() = %q", id.String())
	}
	if id.IsLeader() {
		t.Error("vehicle 3 is not a leader")
	}
	if id.Predecessor() != (ID{2, 1, 2}) {
		t.Errorf("Predecessor() = %v", id.Predecessor())
	}
	if id.FleetKey() != (FleetKey{2, 1}) {
		t.Errorf("FleetKey() = %v", id.FleetKey())
	}
}

func TestFleet_Members(t *testing.T) {
	f := Fleet{Lane: 1, DestLane: 3, Fleet: 0, Size: 3}
	want := []ID{{1, 0, 0}, {1, 0, 1}, {1, 0, 2}}
	if diff := cmp.Diff(want, f.Members()); diff != "" {
		t.Errorf("Members mismatch (-want +got):\n%s", diff)
	}
}

func TestCompareFleets(t *testing.T) {
	a := Fleet{Lane: 0, DestLane: 2, Fleet: 1, Size: 2}
	b := Fleet{Lane: 0, DestLane: 3, Fleet: 1, Size: 2}
	if CompareFleets(a, b) >= 0 {
		t.Error("destination should break lane/fleet ties")
	}
	if CompareFleets(a, a) != 0 {
		t.Error("a fleet compares equal to itself")
	}
}

func TestState_Speed(t *testing.T) {
	s := State{Location: geometry.Vec2{X: 6, Y: 8}, Velocity: geometry.Vec2{X: -3, Y: 4}}
	if s.Speed() != 5 {
		t.Errorf("Speed() = %v, want 5", s.Speed())
	}
	if s.DistanceToCentre() != 10 {
		t.Errorf("DistanceToCentre() = %v, want 10", s.DistanceToCentre())
	}
}

func TestStore(t *testing.T) {
	s := NewStore()
	id := ID{0, 0, 0}

	if s.Known(id) {
		t.Fatal("empty store should not know any vehicle")
	}

	s.Put(id, State{Location: geometry.Vec2{X: 10}})
	s.Put(id, State{Location: geometry.Vec2{X: 8}})

	st, ok := s.Get(id)
	if !ok || st.Location.X != 8 {
		t.Errorf("Get() = %v, %v; want newest snapshot", st, ok)
	}

	s.Put(id, State{Finished: true})
	if _, ok := s.Get(id); ok {
		t.Error("finished vehicles should not keep a snapshot")
	}
	if !s.Finished(id) || !s.Known(id) {
		t.Error("finished vehicle should be known and finished")
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore()
	s.Put(ID{0, 0, 0}, State{DestLane: 2})
	s.Put(ID{0, 0, 1}, State{DestLane: 2})
	s.Put(ID{1, 0, 0}, State{DestLane: 3})

	snap := s.Snapshot([]ID{{0, 0, 0}, {1, 0, 0}, {3, 3, 3}})
	if len(snap) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(snap))
	}
	if _, ok := snap[ID{0, 0, 1}]; ok {
		t.Error("Snapshot should be restricted to the requested ids")
	}

	// Mutating the snapshot must not affect the store.
	snap[ID{0, 0, 0}] = State{DestLane: 9}
	if st, _ := s.Get(ID{0, 0, 0}); st.DestLane != 2 {
		t.Error("Snapshot must return a copy")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for v := 0; v < 8; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			id := ID{Lane: v % 4, Fleet: 0, Vehicle: v}
			for i := 0; i < 100; i++ {
				s.Put(id, State{Location: geometry.Vec2{X: float64(i)}})
				_, _ = s.Get(id)
			}
		}(v)
	}
	wg.Wait()

	if s.Len() != 8 {
		t.Errorf("Len() = %d, want 8", s.Len())
	}
}
