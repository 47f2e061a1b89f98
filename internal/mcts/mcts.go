// Package mcts searches for a low-delay passing order with Monte Carlo tree
// search. Nodes live in an arena and reference each other by index; the tree
// is built for one Search and then discarded.
//
// Each iteration selects a frontier node by UCB1, expands it into one child
// per vehicle allowed to go next, evaluates one unvisited child with the
// simulator, and writes the child's score into every node on the path back
// to the root. Scores are negated costs, so higher is better throughout.
package mcts

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/logging"
	"github.com/Iron-Ham/crossing/internal/metrics"
	"github.com/Iron-Ham/crossing/internal/simulator"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

// Order is a duplicate-free passing order.
type Order []vehicle.ID

// Contains reports whether id is in o.
func (o Order) Contains(id vehicle.ID) bool {
	return slices.Contains(o, id)
}

// Config configures a Scheduler.
type Config struct {
	Sim simulator.Options
	// StepWeight scales the per-vehicle delay of the evaluated prefix.
	StepWeight float64
	Seed       uint64
}

// DefaultConfig returns the default simulator options, a step weight of 5
// and seed 1.
func DefaultConfig() Config {
	return Config{
		Sim:        simulator.DefaultOptions(),
		StepWeight: 5,
		Seed:       1,
	}
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

// WithLogger sets the logger used for search summaries.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the recorder for iteration and simulation counts.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

const noParent = -1

type node struct {
	order    Order
	parent   int
	children []int
	visits   int
	score    float64

	totalDelay     float64
	bestTotalDelay float64
}

// Scheduler runs MCTS over the passing orders of a fixed set of vehicles.
// A Scheduler is not safe for concurrent use.
type Scheduler struct {
	cfg      Config
	states   map[vehicle.ID]vehicle.State
	vehicles []vehicle.ID
	members  map[vehicle.ID]bool
	nodes    []node
	rng      *rand.Rand

	simulations int

	logger  *logging.Logger
	metrics *metrics.Recorder
}

// New creates a Scheduler over every vehicle in states. The states map is
// copied.
func New(states map[vehicle.ID]vehicle.State, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:     cfg,
		states:  make(map[vehicle.ID]vehicle.State, len(states)),
		members: make(map[vehicle.ID]bool, len(states)),
		nodes:   []node{{parent: noParent}},
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		logger:  logging.NopLogger(),
	}
	for id, st := range states {
		s.states[id] = st
		s.members[id] = true
		s.vehicles = append(s.vehicles, id)
	}
	vehicle.SortIDs(s.vehicles)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs budget iterations and returns the best order found. The
// order is complete whenever budget > 0; a budget of 0 returns an empty
// order. Search checks ctx between iterations.
func (s *Scheduler) Search(ctx context.Context, budget int) (Order, error) {
	start := time.Now()

	for i := 0; i < budget; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(errors.ErrCanceled, err)
		}
		if err := s.iterate(); err != nil {
			return nil, err
		}
	}

	order := s.extract()

	elapsed := time.Since(start)
	s.metrics.RecordSearch(budget, s.simulations, elapsed)
	s.logger.Debug("search complete",
		"iterations", budget,
		"nodes", len(s.nodes),
		"simulations", s.simulations,
		"order_len", len(order),
		"duration_ms", elapsed.Milliseconds(),
	)
	return order, nil
}

func (s *Scheduler) iterate() error {
	leaf, err := s.selectNode()
	if err != nil {
		return err
	}
	target := s.expand(leaf)
	score, err := s.evaluate(target)
	if err != nil {
		return err
	}
	s.backpropagate(target, score)
	return nil
}

// selectNode descends from the root while every child of the current node
// has been visited, following the highest UCB1 value.
func (s *Scheduler) selectNode() (int, error) {
	cur := 0
	for {
		children := s.nodes[cur].children
		if len(children) == 0 || !s.allVisited(children) {
			return cur, nil
		}

		best, bestValue := -1, 0.0
		for _, c := range children {
			v, err := s.ucb(c)
			if err != nil {
				return 0, err
			}
			if best == -1 || v > bestValue {
				best, bestValue = c, v
			}
		}
		cur = best
	}
}

func (s *Scheduler) allVisited(children []int) bool {
	for _, c := range children {
		if s.nodes[c].visits == 0 {
			return false
		}
	}
	return true
}

// ucb returns score + sqrt(ln(parent visits) / visits) for node i.
func (s *Scheduler) ucb(i int) (float64, error) {
	n := &s.nodes[i]
	if n.visits == 0 {
		return 0, errors.NewPreconditionError("ucb", errors.ErrUnvisitedNode)
	}
	parentVisits := float64(s.nodes[n.parent].visits)
	return n.score + math.Sqrt(math.Log(parentVisits)/float64(n.visits)), nil
}

// expand creates the children of a childless node and returns one
// unvisited child at random. A node nobody can follow is returned as is.
func (s *Scheduler) expand(i int) int {
	if len(s.nodes[i].children) == 0 {
		parentOrder := s.nodes[i].order
		for _, id := range s.eligible(parentOrder) {
			order := make(Order, len(parentOrder), len(parentOrder)+1)
			copy(order, parentOrder)
			order = append(order, id)

			s.nodes = append(s.nodes, node{order: order, parent: i})
			s.nodes[i].children = append(s.nodes[i].children, len(s.nodes)-1)
		}
	}

	var unvisited []int
	for _, c := range s.nodes[i].children {
		if s.nodes[c].visits == 0 {
			unvisited = append(unvisited, c)
		}
	}
	if len(unvisited) == 0 {
		return i
	}
	return unvisited[s.rng.IntN(len(unvisited))]
}

// eligible returns, in ID order, the vehicles that may follow order: fleet
// leaders, vehicles whose predecessor is already placed, and vehicles whose
// predecessor is not being scheduled at all.
func (s *Scheduler) eligible(order Order) []vehicle.ID {
	placed := make(map[vehicle.ID]bool, len(order))
	for _, id := range order {
		placed[id] = true
	}

	var out []vehicle.ID
	for _, id := range s.vehicles {
		if placed[id] {
			continue
		}
		if id.IsLeader() || placed[id.Predecessor()] || !s.members[id.Predecessor()] {
			out = append(out, id)
		}
	}
	return out
}

// evaluate scores node i: the delay of the greedy completion of its order
// plus StepWeight times the mean delay of the order itself, negated.
func (s *Scheduler) evaluate(i int) (float64, error) {
	order := s.nodes[i].order

	total, err := s.simulate(order)
	if err != nil {
		return 0, err
	}
	best, err := s.simulate(s.greedyCompletion(order))
	if err != nil {
		return 0, err
	}

	s.nodes[i].totalDelay = total
	s.nodes[i].bestTotalDelay = best

	cost := best
	if len(order) > 0 {
		cost += s.cfg.StepWeight * total / float64(len(order))
	}
	return -cost, nil
}

func (s *Scheduler) simulate(order Order) (float64, error) {
	s.simulations++
	return simulator.TotalDelay(order, s.states, s.cfg.Sim)
}

// greedyCompletion appends every unplaced vehicle to order, closest to the
// intersection centre first.
func (s *Scheduler) greedyCompletion(order Order) Order {
	rest := make([]vehicle.ID, 0, len(s.vehicles)-len(order))
	for _, id := range s.vehicles {
		if !order.Contains(id) {
			rest = append(rest, id)
		}
	}
	slices.SortStableFunc(rest, s.byDistance)

	out := make(Order, 0, len(s.vehicles))
	out = append(out, order...)
	return append(out, rest...)
}

func (s *Scheduler) byDistance(a, b vehicle.ID) int {
	if c := cmp.Compare(s.states[a].DistanceToCentre(), s.states[b].DistanceToCentre()); c != 0 {
		return c
	}
	return vehicle.Compare(a, b)
}

// backpropagate walks from node i to the root, counting a visit and
// overwriting the score of every node on the way.
func (s *Scheduler) backpropagate(i int, score float64) {
	for cur := i; cur != noParent; cur = s.nodes[cur].parent {
		s.nodes[cur].visits++
		s.nodes[cur].score = score
	}
}

// extract follows the highest-scoring visited child from the root. If the
// reached order is incomplete it is finished greedily, keeping each fleet's
// vehicles in sequence.
func (s *Scheduler) extract() Order {
	if s.nodes[0].visits == 0 {
		return Order{}
	}

	cur := 0
	for {
		best := -1
		for _, c := range s.nodes[cur].children {
			if s.nodes[c].visits == 0 {
				continue
			}
			if best == -1 || s.nodes[c].score > s.nodes[best].score {
				best = c
			}
		}
		if best == -1 {
			break
		}
		cur = best
	}

	order := slices.Clone(s.nodes[cur].order)
	for len(order) < len(s.vehicles) {
		next := s.eligible(order)
		order = append(order, slices.MinFunc(next, s.byDistance))
	}
	return order
}

// Nodes returns the number of nodes in the tree.
func (s *Scheduler) Nodes() int {
	return len(s.nodes)
}

// Simulations returns the number of simulator runs so far.
func (s *Scheduler) Simulations() int {
	return s.simulations
}

// Schedule runs a one-off search over states.
func Schedule(ctx context.Context, states map[vehicle.ID]vehicle.State, cfg Config, budget int, opts ...Option) (Order, error) {
	return New(states, cfg, opts...).Search(ctx, budget)
}
