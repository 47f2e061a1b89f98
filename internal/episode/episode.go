// Package episode runs one intersection episode: every vehicle of a
// scenario gets its own goroutine, the vehicles advance in barrier rounds,
// fleet leaders agree on a final assignment over the bus and every vehicle
// then follows its deadlines through the intersection.
package episode

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/crossing/internal/barrier"
	"github.com/Iron-Ham/crossing/internal/bus"
	"github.com/Iron-Ham/crossing/internal/config"
	"github.com/Iron-Ham/crossing/internal/consensus"
	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/logging"
	"github.com/Iron-Ham/crossing/internal/mcts"
	"github.com/Iron-Ham/crossing/internal/metrics"
	"github.com/Iron-Ham/crossing/internal/scenario"
	"github.com/Iron-Ham/crossing/internal/schedule"
	"github.com/Iron-Ham/crossing/internal/simulator"
	"github.com/Iron-Ham/crossing/internal/vehicle"
	"github.com/Iron-Ham/crossing/internal/wire"
)

// Config configures a Runner.
type Config struct {
	Layout    geometry.Layout
	Consensus consensus.Config
	// DeltaT is the simulated time per round, in seconds.
	DeltaT       float64
	FinishRadius float64
	MaxRounds    int

	MaxSpeed        float64
	MaxAcceleration float64
	MinAcceleration float64
}

// DefaultConfig mirrors config.Default.
func DefaultConfig() Config {
	return FromConfig(config.Default())
}

// FromConfig builds a runner configuration from the loaded settings.
func FromConfig(c *config.Config) Config {
	layout := geometry.Layout{ZoneSize: c.Geometry.ZoneSize}
	return Config{
		Layout: layout,
		Consensus: consensus.Config{
			Scheduler: mcts.Config{
				Sim: simulator.Options{
					Layout:    layout,
					SafetyGap: c.Scheduler.SafetyGap,
					Alpha:     c.Scheduler.Alpha,
					Self:      vehicle.FleetKey{Lane: -1, Fleet: -1},
				},
				StepWeight: c.Scheduler.StepWeight,
				Seed:       c.Scheduler.Seed,
			},
			Iterations:         c.Scheduler.Iterations,
			LaneCount:          c.Consensus.LaneCount,
			DiscoveryRounds:    c.Consensus.DiscoveryRounds,
			PhaseTimeoutRounds: c.Consensus.PhaseTimeoutRounds,
			MaxFleetLength:     c.Kinematics.FleetLength,
		},
		DeltaT:          c.Kinematics.DeltaT,
		FinishRadius:    c.Kinematics.FinishRadius,
		MaxRounds:       c.Episode.MaxRounds,
		MaxSpeed:        c.Kinematics.MaxSpeed,
		MaxAcceleration: c.Kinematics.MaxAcceleration,
		MinAcceleration: c.Kinematics.MinAcceleration,
	}
}

// Result summarizes a completed episode.
type Result struct {
	EpisodeID string
	// Rounds is the round in which the last vehicle finished.
	Rounds int
	// AgreedRound is the first round in which every leader was done.
	AgreedRound int
	Finished    map[vehicle.ID]int
	Winner      vehicle.FleetKey
	Totals      map[vehicle.FleetKey]float64
	Final       schedule.Proposal
	Conflicts   []Conflict
	ZoneEntries int
	// Dropped counts malformed messages discarded by the leaders.
	Dropped int
}

// Runner runs episodes.
type Runner struct {
	cfg     Config
	tr      bus.Transport
	logger  *logging.Logger
	metrics *metrics.Recorder
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithTransport runs episodes over tr instead of a fresh in-process bus.
func WithTransport(tr bus.Transport) Option {
	return func(r *Runner) {
		r.tr = tr
	}
}

// New creates a Runner.
func New(cfg Config, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run plays sc until every vehicle has crossed. It fails if a leader fails,
// ctx is canceled or the round limit is reached.
func (r *Runner) Run(ctx context.Context, sc *scenario.Scenario) (*Result, error) {
	if err := r.checkLimits(sc); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := r.logger.WithEpisode(id)
	tr := r.tr
	if tr == nil {
		tr = bus.New(log)
	}

	ids := sc.Vehicles()
	ep := &run{
		cfg:      r.cfg,
		tr:       tr,
		log:      log,
		metrics:  r.metrics,
		barrier:  barrier.New(len(ids)),
		finished: make(map[vehicle.ID]int, len(ids)),
	}
	ep.monitor = newMonitor(tr, log)
	defer ep.monitor.close()

	// Subscribe everyone before the first round so no broadcast is missed.
	units := make([]*unit, len(ids))
	for slot, vid := range ids {
		fleet, _ := sc.Fleet(vid.FleetKey())
		units[slot] = ep.newUnit(slot, vid, fleet, sc.States[vid])
	}
	defer func() {
		for _, u := range units {
			u.close()
		}
	}()

	log.Info("episode started", "fleets", len(sc.Fleets), "vehicles", len(ids))

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, u := range units {
		p.Go(u.run)
	}
	if err := p.Wait(); err != nil {
		log.Error("episode failed", "error", err)
		return nil, err
	}

	res := ep.result(id, units)
	log.Info("episode complete",
		"rounds", res.Rounds,
		"winner", res.Winner.String(),
		"conflicts", len(res.Conflicts),
	)
	return res, nil
}

// checkLimits rejects initial states outside the kinematic limits.
func (r *Runner) checkLimits(sc *scenario.Scenario) error {
	for _, id := range sc.Vehicles() {
		st := sc.States[id]
		if r.cfg.MaxSpeed > 0 && st.Speed() > r.cfg.MaxSpeed {
			return fmt.Errorf("vehicle %v: speed %.2f exceeds %.2f: %w", id, st.Speed(), r.cfg.MaxSpeed, errors.ErrInvalidInput)
		}
		for _, a := range []float64{st.Acceleration.X, st.Acceleration.Y} {
			if a > r.cfg.MaxAcceleration || a < r.cfg.MinAcceleration {
				return fmt.Errorf("vehicle %v: acceleration %.2f outside [%.2f, %.2f]: %w",
					id, a, r.cfg.MinAcceleration, r.cfg.MaxAcceleration, errors.ErrInvalidInput)
			}
		}
	}
	return nil
}

// run is the shared state of one episode.
type run struct {
	cfg     Config
	tr      bus.Transport
	log     *logging.Logger
	metrics *metrics.Recorder
	barrier *barrier.Barrier
	monitor *monitor

	completed atomic.Int64

	mu       sync.Mutex
	finished map[vehicle.ID]int
	agreed   int
	leaders  []*consensus.Leader
}

func (ep *run) newUnit(slot int, id vehicle.ID, fleet vehicle.Fleet, st vehicle.State) *unit {
	log := ep.log.WithFleet(id.Lane, id.Fleet).WithVehicle(id.Vehicle)
	u := &unit{
		ep:       ep,
		slot:     slot,
		id:       id,
		log:      log,
		motion:   newMotion(st, ep.cfg.Layout),
		zone:     -1,
		follower: consensus.NewFollower(id, ep.tr, consensus.WithLogger(log), consensus.WithMetrics(ep.metrics)),
	}
	if id.IsLeader() {
		u.leader = consensus.NewLeader(fleet, ep.tr, nil, ep.cfg.Consensus,
			consensus.WithLogger(ep.log), consensus.WithMetrics(ep.metrics))
		ep.mu.Lock()
		ep.leaders = append(ep.leaders, u.leader)
		ep.mu.Unlock()
	}
	return u
}

// roundDone counts round once, whichever vehicle gets past the barrier first.
func (ep *run) roundDone(round int) {
	if ep.completed.CompareAndSwap(int64(round-1), int64(round)) {
		ep.metrics.RecordRound()
	}
}

func (ep *run) markFinished(id vehicle.ID, round int) {
	ep.mu.Lock()
	ep.finished[id] = round
	ep.mu.Unlock()
	ep.metrics.RecordFinished()
}

// markAgreed records the first round in which every leader was done.
func (ep *run) markAgreed(round int) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.agreed > 0 {
		return
	}
	for _, l := range ep.leaders {
		if l.Phase() != consensus.PhaseDone {
			return
		}
	}
	ep.agreed = round
}

func (ep *run) result(id string, units []*unit) *Result {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	res := &Result{
		EpisodeID:   id,
		AgreedRound: ep.agreed,
		Finished:    make(map[vehicle.ID]int, len(ep.finished)),
	}
	for vid, round := range ep.finished {
		res.Finished[vid] = round
		res.Rounds = max(res.Rounds, round)
	}
	for _, l := range ep.leaders {
		res.Dropped += l.Dropped()
		if r, ok := l.Result(); ok && res.Final == nil {
			res.Winner, res.Totals, res.Final = r.Winner, r.Totals, r.Final
		}
	}
	res.Conflicts, res.ZoneEntries = ep.monitor.results()
	return res
}

// unit is one vehicle's goroutine state.
type unit struct {
	ep   *run
	slot int
	id   vehicle.ID
	log  *logging.Logger

	leader   *consensus.Leader
	follower *consensus.Follower
	motion   *motion

	adoptRound int
	zone       int
}

func (u *unit) close() {
	u.follower.Close()
	if u.leader != nil {
		u.leader.Close()
	}
}

// run drives the vehicle round by round until it has crossed.
func (u *unit) run(ctx context.Context) error {
	defer u.ep.barrier.Leave(u.slot)
	cfg := u.ep.cfg

	for round := 1; ; round++ {
		if round > cfg.MaxRounds {
			return fmt.Errorf("vehicle %v still driving after %d rounds: %w", u.id, cfg.MaxRounds, errors.ErrRoundLimit)
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(errors.ErrCanceled, err)
		}

		st := u.motion.at(u.elapsed(round))
		u.ep.tr.Publish(wire.StateTopic(u.id), wire.EncodeState(u.id, st))

		if u.leader != nil {
			phase, err := u.leader.Step(ctx, round)
			if err != nil {
				return err
			}
			if phase == consensus.PhaseDone {
				u.ep.markAgreed(round)
			}
		}

		if u.step(round) {
			return nil
		}

		u.ep.barrier.Arrive(u.slot, int64(round))
		if err := u.ep.barrier.Wait(ctx, int64(round)); err != nil {
			return err
		}
		u.ep.roundDone(round)
	}
}

// elapsed returns the seconds since adoption at round.
func (u *unit) elapsed(round int) float64 {
	if !u.motion.adopted() {
		return 0
	}
	return float64(round-u.adoptRound) * u.ep.cfg.DeltaT
}

// step adopts the final assignment once it arrives, reports zone changes
// and detects crossing. It returns true once the vehicle has finished.
func (u *unit) step(round int) bool {
	if !u.motion.adopted() {
		d, ok := u.follower.Deadlines()
		if !ok {
			return false
		}
		u.motion.adopt(d)
		u.adoptRound = round
		u.log.Debug("following deadlines", "round", round, "exit_time", u.motion.exitTime())
	}

	t := u.elapsed(round)
	u.setZone(u.motion.zoneAt(t))

	st := u.motion.at(t)
	if t < u.motion.exitTime() && !u.ep.cfg.Layout.Finished(st.Location, st.DestLane, u.ep.cfg.FinishRadius) {
		return false
	}

	u.setZone(-1)
	st.Finished = true
	u.ep.tr.Publish(wire.StateTopic(u.id), wire.EncodeState(u.id, st))
	u.ep.markFinished(u.id, round)
	u.log.Info("vehicle crossed", "round", round, "time", math.Round(t*1000)/1000)
	return true
}

func (u *unit) setZone(z int) {
	if z == u.zone {
		return
	}
	if u.zone >= 0 {
		u.ep.tr.Publish(wire.ZoneTopic(u.zone), wire.EncodeZone(wire.ZoneStatus{ID: u.id, Zone: u.zone}))
	}
	if z >= 0 {
		u.ep.tr.Publish(wire.ZoneTopic(z), wire.EncodeZone(wire.ZoneStatus{ID: u.id, Zone: z, Occupied: true}))
	}
	u.zone = z
}
