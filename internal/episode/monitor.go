package episode

import (
	"sync"

	"github.com/Iron-Ham/crossing/internal/bus"
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/logging"
	"github.com/Iron-Ham/crossing/internal/vehicle"
	"github.com/Iron-Ham/crossing/internal/wire"
)

// Conflict records two vehicles reported inside one zone at the same time.
type Conflict struct {
	Zone     int
	Occupant vehicle.ID
	Entrant  vehicle.ID
}

// monitor watches zone occupancy broadcasts and records every entry into a
// zone that is still occupied by another vehicle.
type monitor struct {
	tr  bus.Transport
	log *logging.Logger
	sub string

	mu        sync.Mutex
	occupants [geometry.NumZones]map[vehicle.ID]bool
	conflicts []Conflict
	entries   int
}

func newMonitor(tr bus.Transport, log *logging.Logger) *monitor {
	m := &monitor{tr: tr, log: log}
	for z := range m.occupants {
		m.occupants[z] = make(map[vehicle.ID]bool)
	}
	m.sub = tr.Subscribe(wire.KindZone+"/*", m.onZone)
	return m
}

func (m *monitor) close() {
	m.tr.Unsubscribe(m.sub)
}

func (m *monitor) onZone(msg bus.Message) {
	z, err := wire.DecodeZone(msg.Topic, msg.Payload)
	if err != nil {
		m.log.Warn("dropping malformed zone status", "topic", msg.Topic, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	occ := m.occupants[z.Zone]
	if !z.Occupied {
		delete(occ, z.ID)
		return
	}
	m.entries++
	for other := range occ {
		if other != z.ID {
			m.conflicts = append(m.conflicts, Conflict{Zone: z.Zone, Occupant: other, Entrant: z.ID})
			m.log.Warn("zone conflict", "zone", z.Zone, "occupant", other.String(), "entrant", z.ID.String())
		}
	}
	occ[z.ID] = true
}

// results returns the recorded conflicts and the number of zone entries.
func (m *monitor) results() ([]Conflict, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Conflict(nil), m.conflicts...), m.entries
}
