// Package geometry models the four-way intersection: the four conflict
// zones, which zones a lane/destination pair crosses, and free-flow timing.
//
// Zones are indexed counter-clockwise starting at the north-east quadrant:
//
//	    1 | 0
//	   ---+---
//	    2 | 3
//
// Traffic keeps right. Lane 0 approaches from the east, lane 1 from the
// north, lane 2 from the west and lane 3 from the south; every lane first
// enters the zone with its own index. A path of one zone is a right turn,
// two zones go straight and three zones turn left.
package geometry

import (
	"fmt"
	"math"

	"github.com/Iron-Ham/crossing/internal/errors"
)

// NumZones is the number of conflict zones and of approach lanes.
const NumZones = 4

// Vec2 is a 2D vector in metres (positions) or metres per second.
type Vec2 struct {
	X, Y float64
}

// Len returns the Euclidean length of v.
func (v Vec2) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Scale returns v scaled by k.
func (v Vec2) Scale(k float64) Vec2 {
	return Vec2{X: v.X * k, Y: v.Y * k}
}

// Dist returns the Euclidean distance between v and o.
func (v Vec2) Dist(o Vec2) float64 {
	return v.Sub(o).Len()
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Centre returns the rectangle's centre point.
func (r Rect) Centre() Vec2 {
	return Vec2{X: (r.MinX + r.MaxX) / 2, Y: (r.MinY + r.MaxY) / 2}
}

// North returns the midpoint of the top edge.
func (r Rect) North() Vec2 { return Vec2{X: (r.MinX + r.MaxX) / 2, Y: r.MaxY} }

// South returns the midpoint of the bottom edge.
func (r Rect) South() Vec2 { return Vec2{X: (r.MinX + r.MaxX) / 2, Y: r.MinY} }

// East returns the midpoint of the right edge.
func (r Rect) East() Vec2 { return Vec2{X: r.MaxX, Y: (r.MinY + r.MaxY) / 2} }

// West returns the midpoint of the left edge.
func (r Rect) West() Vec2 { return Vec2{X: r.MinX, Y: (r.MinY + r.MaxY) / 2} }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// Layout describes the intersection's four square conflict zones.
// ZoneSize is half a zone's side, so each zone is 2*ZoneSize wide and all
// four meet at the origin.
type Layout struct {
	ZoneSize float64
}

// DefaultLayout returns the 4x4-metre zone layout.
func DefaultLayout() Layout {
	return Layout{ZoneSize: 2}
}

// Width returns the side length of a zone.
func (l Layout) Width() float64 {
	return 2 * l.ZoneSize
}

// Zone returns the rectangle of zone i (taken modulo 4).
func (l Layout) Zone(i int) Rect {
	w := l.Width()
	switch mod4(i) {
	case 0:
		return Rect{MinX: 0, MinY: 0, MaxX: w, MaxY: w}
	case 1:
		return Rect{MinX: -w, MinY: 0, MaxX: 0, MaxY: w}
	case 2:
		return Rect{MinX: -w, MinY: -w, MaxX: 0, MaxY: 0}
	default:
		return Rect{MinX: 0, MinY: -w, MaxX: w, MaxY: 0}
	}
}

// Zones returns all four zone rectangles in index order.
func (l Layout) Zones() [NumZones]Rect {
	var zs [NumZones]Rect
	for i := range zs {
		zs[i] = l.Zone(i)
	}
	return zs
}

// EntryPoint returns the boundary midpoint through which a vehicle enters
// zone, depending on whether the zone is the first one on its path.
func (l Layout) EntryPoint(zone int, first bool) Vec2 {
	r := l.Zone(zone)
	switch mod4(zone) {
	case 0:
		if first {
			return r.East()
		}
		return r.South()
	case 1:
		if first {
			return r.North()
		}
		return r.East()
	case 2:
		if first {
			return r.West()
		}
		return r.North()
	default:
		if first {
			return r.South()
		}
		return r.West()
	}
}

// ExitPoint returns the point just past the intersection on the outbound
// side of destination lane dest.
func (l Layout) ExitPoint(dest int) Vec2 {
	w := l.Width()
	h := l.ZoneSize
	switch mod4(dest) {
	case 0:
		return Vec2{X: w, Y: -h}
	case 1:
		return Vec2{X: h, Y: w}
	case 2:
		return Vec2{X: -w, Y: h}
	default:
		return Vec2{X: -h, Y: -w}
	}
}

// Finished reports whether location is within radius of the exit point of
// destination lane dest.
func (l Layout) Finished(location Vec2, dest int, radius float64) bool {
	return location.Dist(l.ExitPoint(dest)) <= radius
}

// ValidLane reports whether lane is one of the four approach lanes.
func ValidLane(lane int) bool {
	return lane >= 0 && lane < NumZones
}

// ConflictZonePath returns the zones crossed from lane to dest in travel
// order: (dest-lane) mod 4 consecutive zones starting at lane.
func ConflictZonePath(lane, dest int) ([]int, error) {
	if !ValidLane(lane) || !ValidLane(dest) {
		return nil, errors.NewPreconditionError(
			fmt.Sprintf("lane %d to destination %d", lane, dest), errors.ErrInvalidLane)
	}
	n := mod4(dest - lane)
	if n == 0 {
		return nil, errors.NewPreconditionError(
			fmt.Sprintf("lane %d to destination %d", lane, dest), errors.ErrEmptyPath)
	}
	path := make([]int, n)
	for i := range path {
		path[i] = mod4(lane + i)
	}
	return path, nil
}

// FreeFlowTime returns the time for a vehicle at location travelling at
// speed to reach the entry boundary of path[position] with no conflicts.
func (l Layout) FreeFlowTime(location Vec2, speed float64, path []int, position int) float64 {
	entry := l.EntryPoint(path[position], position == 0)
	return location.Dist(entry) / speed
}

// CrossingTime returns the time to traverse one zone at speed.
func (l Layout) CrossingTime(speed float64) float64 {
	return l.Width() / speed
}

// MinArrivalTime returns the zero-conflict time at which a vehicle clears
// its whole path: the free-flow time to its first zone plus one crossing
// time per zone.
func (l Layout) MinArrivalTime(location Vec2, speed float64, path []int) float64 {
	return l.FreeFlowTime(location, speed, path, 0) + float64(len(path))*l.CrossingTime(speed)
}

// ArrivalTime returns the time to cover distance starting at speed with
// constant acceleration: the earliest positive root of
// accel/2*t^2 + speed*t - distance.
// It returns +Inf if the distance is never covered.
func ArrivalTime(distance, speed, accel float64) float64 {
	if distance <= 0 {
		return 0
	}
	if accel == 0 {
		if speed <= 0 {
			return math.Inf(1)
		}
		return distance / speed
	}
	a := accel / 2
	disc := speed*speed + 4*a*distance
	if disc < 0 {
		// Braking vehicle stops short of the distance.
		return math.Inf(1)
	}
	// For a > 0 this is the only positive root; for a < 0 the earlier one.
	root := (-speed + math.Sqrt(disc)) / (2 * a)
	if root < 0 {
		return math.Inf(1)
	}
	return root
}

func mod4(i int) int {
	return ((i % NumZones) + NumZones) % NumZones
}
