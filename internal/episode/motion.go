package episode

import (
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/schedule"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

// waypoint is a position a vehicle must reach at time t after adoption.
type waypoint struct {
	t float64
	p geometry.Vec2
}

// span is the interval during which a vehicle occupies a zone.
type span struct {
	zone        int
	enter, exit float64
}

// motion is a point-mass schedule follower. It holds its approach position
// until it adopts deadlines, then drives at constant speed between the entry
// points of its zones so each is reached exactly at its deadline, and on to
// the exit point of its destination lane.
type motion struct {
	start  vehicle.State
	layout geometry.Layout

	waypoints []waypoint
	spans     []span
}

func newMotion(start vehicle.State, layout geometry.Layout) *motion {
	return &motion{start: start, layout: layout}
}

// adopted reports whether adopt has been called.
func (m *motion) adopted() bool {
	return m.waypoints != nil
}

// adopt plans the route through the zones of d.
func (m *motion) adopt(d schedule.Deadlines) {
	exit := schedule.Exit(d, m.start.Speed(), m.layout)

	m.waypoints = []waypoint{{t: 0, p: m.start.Location}}
	m.spans = nil
	path := schedule.Path(d)
	for k, z := range path {
		m.waypoints = append(m.waypoints, waypoint{t: d[z], p: m.layout.EntryPoint(z, k == 0)})
		leave := exit
		if k+1 < len(path) {
			leave = d[path[k+1]]
		}
		m.spans = append(m.spans, span{zone: z, enter: d[z], exit: leave})
	}
	m.waypoints = append(m.waypoints, waypoint{t: exit, p: m.layout.ExitPoint(m.start.DestLane)})
}

// exitTime returns the planned time the vehicle leaves its last zone.
func (m *motion) exitTime() float64 {
	if !m.adopted() {
		return 0
	}
	return m.waypoints[len(m.waypoints)-1].t
}

// at returns the kinematic state t seconds after adoption. Before adoption
// the vehicle reports its start position with its cruise velocity so
// leaders can plan from it.
func (m *motion) at(t float64) vehicle.State {
	st := m.start
	if !m.adopted() {
		return st
	}
	st.Acceleration = geometry.Vec2{}

	if t <= 0 {
		return st
	}
	for i := 1; i < len(m.waypoints); i++ {
		a, b := m.waypoints[i-1], m.waypoints[i]
		if t > b.t || b.t <= a.t {
			continue
		}
		dt := b.t - a.t
		st.Velocity = b.p.Sub(a.p).Scale(1 / dt)
		st.Location = a.p.Add(st.Velocity.Scale(t - a.t))
		return st
	}

	// Past the last waypoint the vehicle keeps the velocity of its final leg.
	last := m.waypoints[len(m.waypoints)-1]
	st.Location = last.p
	if n := len(m.waypoints); n >= 2 && last.t > m.waypoints[n-2].t {
		st.Velocity = last.p.Sub(m.waypoints[n-2].p).Scale(1 / (last.t - m.waypoints[n-2].t))
	}
	return st
}

// zoneAt returns the zone occupied t seconds after adoption, or -1.
func (m *motion) zoneAt(t float64) int {
	for _, s := range m.spans {
		if t >= s.enter && t < s.exit {
			return s.zone
		}
	}
	return -1
}
