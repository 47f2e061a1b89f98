package consensus

import (
	"context"
	"fmt"
	"sync"

	"github.com/Iron-Ham/crossing/internal/bus"
	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/logging"
	"github.com/Iron-Ham/crossing/internal/mcts"
	"github.com/Iron-Ham/crossing/internal/metrics"
	"github.com/Iron-Ham/crossing/internal/schedule"
	"github.com/Iron-Ham/crossing/internal/vehicle"
	"github.com/Iron-Ham/crossing/internal/wire"
)

// Config configures a Leader.
type Config struct {
	Scheduler  mcts.Config
	Iterations int
	// LaneCount is the number of approach lanes; once that many lanes agree
	// the group is complete without waiting for DiscoveryRounds.
	LaneCount int
	// DiscoveryRounds is the minimum number of rounds spent forming the
	// group, so fleets that start broadcasting late are still heard.
	DiscoveryRounds int
	// PhaseTimeoutRounds fails the leader after that many rounds in one
	// phase. Zero disables the timeout.
	PhaseTimeoutRounds int
	// MaxFleetLength rejects schedule groups announcing a larger fleet.
	// Zero disables the check.
	MaxFleetLength int
}

// DefaultConfig returns 200 MCTS iterations, four lanes, three discovery
// rounds, fleets of at most five vehicles and no phase timeout.
func DefaultConfig() Config {
	return Config{
		Scheduler:       mcts.DefaultConfig(),
		Iterations:      200,
		LaneCount:       4,
		DiscoveryRounds: 3,
		MaxFleetLength:  5,
	}
}

// Option configures optional collaborators of a Leader or Follower.
type Option func(*options)

type options struct {
	logger  *logging.Logger
	metrics *metrics.Recorder
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Leader runs the consensus protocol for one fleet. Inbound messages are
// merged by bus handlers; Step advances the state machine once per round.
// Outbound messages are published after the leader's lock is released so
// the leader can receive its own broadcasts.
type Leader struct {
	self  vehicle.Fleet
	tr    bus.Transport
	store *vehicle.Store
	cfg   Config
	opts  options
	log   *logging.Logger
	subs  []string

	mu         sync.Mutex
	phase      Phase
	phaseSince int
	start      int
	group      Group
	frozen     bool
	agreed     map[int]bool
	proposals  map[vehicle.FleetKey]schedule.Proposal
	scores     map[vehicle.FleetKey]wire.Scores
	own        schedule.Proposal
	ownIDs     []vehicle.ID
	snapshot   map[vehicle.ID]vehicle.State
	ownScores  wire.Scores
	final      schedule.Proposal
	result     Result
	err        error
	dropped    int
	finalReady chan struct{}
}

// Result describes a selected final assignment.
type Result struct {
	Winner vehicle.FleetKey
	// Totals is each proposal's score summed over all senders.
	Totals map[vehicle.FleetKey]float64
	Final  schedule.Proposal
}

// NewLeader creates a leader for fleet self and subscribes it to schedule
// groups, proposals, scores and vehicle states on tr. States are recorded
// in store; a nil store gets a private one.
func NewLeader(self vehicle.Fleet, tr bus.Transport, store *vehicle.Store, cfg Config, opts ...Option) *Leader {
	if store == nil {
		store = vehicle.NewStore()
	}
	o := buildOptions(opts)
	l := &Leader{
		self:       self,
		tr:         tr,
		store:      store,
		cfg:        cfg,
		opts:       o,
		log:        o.logger.WithFleet(self.Lane, self.Fleet),
		start:      -1,
		group:      NewGroup(self),
		agreed:     map[int]bool{self.Lane: true},
		proposals:  make(map[vehicle.FleetKey]schedule.Proposal),
		scores:     make(map[vehicle.FleetKey]wire.Scores),
		finalReady: make(chan struct{}),
	}

	l.subs = append(l.subs,
		tr.Subscribe(wire.KindMap+"/*", l.onMap),
		tr.Subscribe(wire.KindProposal+"/*/*", l.onProposal),
		tr.Subscribe(wire.KindScore+"/*/*", l.onScores),
		tr.Subscribe(wire.KindState+"/**", l.onState),
	)
	o.metrics.RecordPhase(PhaseGroupForming.String())
	return l
}

// Close unsubscribes the leader from the transport.
func (l *Leader) Close() {
	for _, id := range l.subs {
		l.tr.Unsubscribe(id)
	}
	l.subs = nil
}

// Fleet returns the leader's own fleet.
func (l *Leader) Fleet() vehicle.Fleet {
	return l.self
}

// Phase returns the current phase.
func (l *Leader) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Err returns the failure that moved the leader to PhaseFailed, if any.
func (l *Leader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Group returns the leader's current schedule group.
func (l *Leader) Group() Group {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.group
}

// Proposal returns the leader's own proposal once computed.
func (l *Leader) Proposal() (schedule.Proposal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.own, l.own != nil
}

// Final returns the adopted final assignment once selected.
func (l *Leader) Final() (schedule.Proposal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.final, l.final != nil
}

// Result returns the selection outcome once the leader is done.
func (l *Leader) Result() (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result, l.final != nil
}

// Done is closed once a final assignment is adopted.
func (l *Leader) Done() <-chan struct{} {
	return l.finalReady
}

// Dropped returns the number of malformed messages discarded.
func (l *Leader) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Step advances the protocol for round. It re-broadcasts everything the
// leader has produced so far and moves through as many phases as the
// messages already received allow. A returned error means the leader is in
// PhaseFailed.
func (l *Leader) Step(ctx context.Context, round int) (Phase, error) {
	l.mu.Lock()
	l.advance(ctx, round)
	outbox := l.outbox()
	phase, err := l.phase, l.err
	l.mu.Unlock()

	for _, m := range outbox {
		l.tr.Publish(m.Topic, m.Payload)
	}
	return phase, err
}

// advance must be called with l.mu held.
func (l *Leader) advance(ctx context.Context, round int) {
	if l.start < 0 {
		l.start = round
		l.phaseSince = round
	}

	for !l.phase.Terminal() {
		before := l.phase
		switch l.phase {
		case PhaseGroupForming:
			if l.formed(round) {
				l.frozen = true
				l.log.Info("schedule group agreed", "fleets", l.group.Len(), "lanes", l.group.Lanes())
				l.enter(PhaseCollectStates, round)
			}
		case PhaseCollectStates:
			if l.statesCollected() {
				l.enter(PhaseCollectProposals, round)
				if err := l.propose(ctx); err != nil {
					l.fail(round, err)
				}
			}
		case PhaseCollectProposals:
			if l.proposalsCollected() {
				l.scoreProposals()
				l.enter(PhaseCollectScores, round)
			}
		case PhaseCollectScores:
			if l.scoresCollected() {
				l.selectFinal()
				l.enter(PhaseDone, round)
			}
		}
		if l.phase == before {
			break
		}
	}

	if !l.phase.Terminal() && l.cfg.PhaseTimeoutRounds > 0 && round-l.phaseSince > l.cfg.PhaseTimeoutRounds {
		l.fail(round, errors.NewConsensusError(
			fmt.Sprintf("no progress for %d rounds", round-l.phaseSince), errors.ErrPhaseTimeout).
			WithPhase(l.phase.String()).
			WithFleet(l.self.Lane, l.self.Fleet))
	}
}

func (l *Leader) enter(p Phase, round int) {
	l.log.Debug("phase change", "from", l.phase.String(), "to", p.String(), "round", round)
	l.phase = p
	l.phaseSince = round
	l.opts.metrics.RecordPhase(p.String())
}

func (l *Leader) fail(round int, err error) {
	l.log.Error("consensus failed", "phase", l.phase.String(), "round", round, "error", err)
	l.err = err
	l.enter(PhaseFailed, round)
}

// formed reports whether every lane in the group has echoed it back and
// the discovery window has passed, or every lane of the intersection has.
func (l *Leader) formed(round int) bool {
	lanes := l.group.Lanes()
	for _, lane := range lanes {
		if !l.agreed[lane] {
			return false
		}
	}
	if l.cfg.LaneCount > 0 && len(lanes) >= l.cfg.LaneCount {
		return true
	}
	return round-l.start >= l.cfg.DiscoveryRounds
}

func (l *Leader) statesCollected() bool {
	for _, id := range l.group.Vehicles() {
		if !l.store.Known(id) {
			return false
		}
	}
	return true
}

// propose computes the leader's own proposal over the group's unfinished
// vehicles, weighting its own fleet by the scheduler's alpha.
func (l *Leader) propose(ctx context.Context) error {
	l.snapshot = l.store.Snapshot(l.group.Vehicles())
	l.ownIDs = nil
	for _, id := range l.self.Members() {
		if _, ok := l.snapshot[id]; ok {
			l.ownIDs = append(l.ownIDs, id)
		}
	}

	cfg := l.cfg.Scheduler
	cfg.Sim.Self = l.self.Key()
	sched := mcts.New(l.snapshot, cfg, mcts.WithLogger(l.log), mcts.WithMetrics(l.opts.metrics))
	order, err := sched.Search(ctx, l.cfg.Iterations)
	if err != nil {
		return errors.NewInfeasibleError("compute proposal", err).WithVehicle(l.self.Key().Member(0).String())
	}
	p, err := schedule.Project(order, l.snapshot, cfg.Sim)
	if err != nil {
		return errors.NewInfeasibleError("project proposal", err).WithVehicle(l.self.Key().Member(0).String())
	}

	l.own = p
	l.proposals[l.self.Key()] = p
	l.opts.metrics.RecordProposal()
	l.log.Info("proposal computed", "vehicles", len(p), "order", fmt.Sprint(order))
	return nil
}

func (l *Leader) proposalsCollected() bool {
	for _, k := range l.group.Keys() {
		if _, ok := l.proposals[k]; !ok {
			return false
		}
	}
	return true
}

// scoreProposals rates every group proposal from the own fleet's view.
func (l *Leader) scoreProposals() {
	layout := l.cfg.Scheduler.Sim.Layout
	l.ownScores = make(wire.Scores)
	for _, k := range l.group.Keys() {
		l.ownScores[k] = schedule.Score(l.proposals[k], l.ownIDs, l.snapshot, layout)
	}
	l.scores[l.self.Key()] = l.ownScores
}

func (l *Leader) scoresCollected() bool {
	keys := l.group.Keys()
	for _, sender := range keys {
		s, ok := l.scores[sender]
		if !ok {
			return false
		}
		for _, k := range keys {
			if _, ok := s[k]; !ok {
				return false
			}
		}
	}
	return true
}

func (l *Leader) selectFinal() {
	keys := l.group.Keys()
	winner, totals := SelectWinner(keys, l.scores)
	l.final = l.proposals[winner]
	if l.final == nil {
		l.final = make(schedule.Proposal)
	}
	l.result = Result{Winner: winner, Totals: totals, Final: l.final}
	close(l.finalReady)
	l.log.Info("final assignment selected", "winner", winner.String(), "score", totals[winner])
}

// SelectWinner sums every proposal's score over all senders and returns
// the best proposer. Ties go to the lowest fleet key; keys must be sorted
// ascending.
func SelectWinner(keys []vehicle.FleetKey, scores map[vehicle.FleetKey]wire.Scores) (vehicle.FleetKey, map[vehicle.FleetKey]float64) {
	totals := make(map[vehicle.FleetKey]float64, len(keys))
	for _, k := range keys {
		for _, sender := range keys {
			totals[k] += scores[sender][k]
		}
	}

	var winner vehicle.FleetKey
	found := false
	for _, k := range keys {
		if !found || totals[k] > totals[winner] {
			winner, found = k, true
		}
	}
	return winner, totals
}

// outbox returns this round's broadcasts. Must be called with l.mu held.
func (l *Leader) outbox() []bus.Message {
	key := l.self.Key()
	out := []bus.Message{{
		Topic:   wire.MapTopic(l.self.Lane),
		Payload: wire.EncodeMap(l.self.Lane, l.group.Fleets()),
	}}
	if l.own != nil {
		out = append(out, bus.Message{Topic: wire.ProposalTopic(key), Payload: wire.EncodeProposal(key, l.own)})
	}
	if l.ownScores != nil {
		out = append(out, bus.Message{Topic: wire.ScoreTopic(key), Payload: wire.EncodeScores(key, l.ownScores)})
	}
	if l.final != nil {
		out = append(out, bus.Message{Topic: wire.FinalTopic(key), Payload: wire.EncodeFinal(l.final)})
	}
	return out
}

// --- Inbound handlers ---

func (l *Leader) drop(m bus.Message, err error) {
	l.opts.metrics.RecordDropped(wire.Kind(m.Topic))
	l.log.Warn("dropping malformed message", "topic", m.Topic, "error", err)
	l.mu.Lock()
	l.dropped++
	l.mu.Unlock()
}

func (l *Leader) onMap(m bus.Message) {
	lane, fleets, err := wire.DecodeMap(m.Topic, m.Payload)
	if err != nil {
		l.drop(m, err)
		return
	}
	if err := l.checkFleets(fleets); err != nil {
		l.drop(m, errors.NewMalformedMessageError("schedule group", err).WithTopic(m.Topic))
		return
	}
	peer := NewGroup(fleets...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if peer.Equal(l.group) {
		l.agreed[lane] = true
		return
	}
	if l.frozen {
		l.log.Debug("ignoring schedule group after agreement", "lane", lane, "fleets", peer.Len())
		return
	}
	merged := l.group.Union(peer)
	if merged.Equal(l.group) {
		return
	}
	l.group = merged
	l.agreed = map[int]bool{l.self.Lane: true}
	l.log.Debug("schedule group grew", "from_lane", lane, "fleets", merged.Len())
}

func (l *Leader) checkFleets(fleets []vehicle.Fleet) error {
	if l.cfg.MaxFleetLength <= 0 {
		return nil
	}
	for _, f := range fleets {
		if f.Size > l.cfg.MaxFleetLength {
			return fmt.Errorf("fleet %s has %d vehicles, limit is %d", f.Key(), f.Size, l.cfg.MaxFleetLength)
		}
	}
	return nil
}

func (l *Leader) onProposal(m bus.Message) {
	sender, p, err := wire.DecodeProposal(m.Topic, m.Payload)
	if err != nil {
		l.drop(m, err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.proposals[sender]; !ok {
		l.proposals[sender] = p
	} else if !l.proposals[sender].Equal(p) {
		l.log.Warn("ignoring changed proposal", "sender", sender.String())
	}
}

func (l *Leader) onScores(m bus.Message) {
	sender, s, err := wire.DecodeScores(m.Topic, m.Payload)
	if err != nil {
		l.drop(m, err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.scores[sender]; !ok {
		l.scores[sender] = s
	}
}

func (l *Leader) onState(m bus.Message) {
	id, st, err := wire.DecodeState(m.Topic, m.Payload)
	if err != nil {
		l.drop(m, err)
		return
	}
	l.store.Put(id, st)
}
