package consensus

import (
	"sync"

	"github.com/Iron-Ham/crossing/internal/bus"
	"github.com/Iron-Ham/crossing/internal/logging"
	"github.com/Iron-Ham/crossing/internal/metrics"
	"github.com/Iron-Ham/crossing/internal/schedule"
	"github.com/Iron-Ham/crossing/internal/vehicle"
	"github.com/Iron-Ham/crossing/internal/wire"
)

// Follower listens for its fleet leader's final assignment and adopts the
// first one that carries deadlines for it. Leaders follow themselves too.
type Follower struct {
	id      vehicle.ID
	tr      bus.Transport
	log     *logging.Logger
	metrics *metrics.Recorder
	sub     string

	mu      sync.Mutex
	final   schedule.Proposal
	adopted chan struct{}
}

// NewFollower subscribes vehicle id to its fleet's final topic on tr.
func NewFollower(id vehicle.ID, tr bus.Transport, opts ...Option) *Follower {
	o := buildOptions(opts)
	f := &Follower{
		id:      id,
		tr:      tr,
		log:     o.logger.WithFleet(id.Lane, id.Fleet).WithVehicle(id.Vehicle),
		metrics: o.metrics,
		adopted: make(chan struct{}),
	}
	f.sub = tr.Subscribe(wire.FinalTopic(id.FleetKey()), f.onFinal)
	return f
}

// Close unsubscribes the follower.
func (f *Follower) Close() {
	f.tr.Unsubscribe(f.sub)
}

// Adopted is closed once a final assignment has been adopted.
func (f *Follower) Adopted() <-chan struct{} {
	return f.adopted
}

// Final returns the adopted assignment.
func (f *Follower) Final() (schedule.Proposal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.final, f.final != nil
}

// Deadlines returns the vehicle's own deadlines from the adopted assignment.
func (f *Follower) Deadlines() (schedule.Deadlines, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.final[f.id]
	return d, ok
}

func (f *Follower) onFinal(m bus.Message) {
	p, err := wire.DecodeFinal(m.Topic, m.Payload)
	if err != nil {
		f.metrics.RecordDropped(wire.KindFinal)
		f.log.Warn("dropping malformed final assignment", "topic", m.Topic, "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.final != nil {
		return
	}
	if _, ok := p[f.id]; !ok {
		f.log.Debug("final assignment has no deadlines for this vehicle", "entries", len(p))
		return
	}
	f.final = p
	close(f.adopted)
	f.log.Info("final assignment adopted", "path", schedule.Path(p[f.id]))
}
