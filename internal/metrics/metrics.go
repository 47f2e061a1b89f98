// Package metrics records scheduler and consensus activity as Prometheus
// metrics. Each Recorder owns its registry so episodes and tests never share
// collectors. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "crossing"

// --- Subsystems ---
const (
	SchedulerSubsystem = "scheduler"
	ConsensusSubsystem = "consensus"
	EpisodeSubsystem   = "episode"
)

// SearchDurationBuckets covers MCTS runs from 100us to 10s.
var SearchDurationBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Recorder holds the collectors of one episode.
type Recorder struct {
	registry *prometheus.Registry

	searchIterations prometheus.Counter
	simulations      prometheus.Counter
	searchDuration   prometheus.Histogram
	phaseEntered     *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	proposals        prometheus.Counter
	rounds           prometheus.Counter
	vehiclesFinished prometheus.Counter
}

// New creates a Recorder with all collectors registered on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		searchIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: SchedulerSubsystem,
			Name:      "iterations_total",
			Help:      "Number of MCTS iterations run.",
		}),
		simulations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: SchedulerSubsystem,
			Name:      "simulations_total",
			Help:      "Number of passing-order simulations run by the scheduler.",
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: SchedulerSubsystem,
			Name:      "search_duration_seconds",
			Help:      "Wall-clock duration of one MCTS search.",
			Buckets:   SearchDurationBuckets,
		}),
		phaseEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: ConsensusSubsystem,
			Name:      "phase_entered_total",
			Help:      "Number of times a leader entered a consensus phase.",
		}, []string{"phase"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: ConsensusSubsystem,
			Name:      "messages_dropped_total",
			Help:      "Number of malformed inbound messages discarded, by topic kind.",
		}, []string{"kind"}),
		proposals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: ConsensusSubsystem,
			Name:      "proposals_computed_total",
			Help:      "Number of proposals computed by leaders.",
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: EpisodeSubsystem,
			Name:      "rounds_total",
			Help:      "Number of barrier rounds completed by the slowest vehicle.",
		}),
		vehiclesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: EpisodeSubsystem,
			Name:      "vehicles_finished_total",
			Help:      "Number of vehicles that cleared the intersection.",
		}),
	}

	r.registry.MustRegister(
		r.searchIterations,
		r.simulations,
		r.searchDuration,
		r.phaseEntered,
		r.messagesDropped,
		r.proposals,
		r.rounds,
		r.vehiclesFinished,
	)
	return r
}

// Registry returns the registry backing r.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves r's metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordSearch records one completed MCTS search.
func (r *Recorder) RecordSearch(iterations, simulations int, d time.Duration) {
	if r == nil {
		return
	}
	r.searchIterations.Add(float64(iterations))
	r.simulations.Add(float64(simulations))
	r.searchDuration.Observe(d.Seconds())
}

// RecordPhase records a leader entering phase.
func (r *Recorder) RecordPhase(phase string) {
	if r == nil {
		return
	}
	r.phaseEntered.WithLabelValues(phase).Inc()
}

// RecordDropped records a discarded malformed message of the given topic kind.
func (r *Recorder) RecordDropped(kind string) {
	if r == nil {
		return
	}
	r.messagesDropped.WithLabelValues(kind).Inc()
}

// RecordProposal records a computed proposal.
func (r *Recorder) RecordProposal() {
	if r == nil {
		return
	}
	r.proposals.Inc()
}

// RecordRound records a completed barrier round.
func (r *Recorder) RecordRound() {
	if r == nil {
		return
	}
	r.rounds.Inc()
}

// RecordFinished records a vehicle clearing the intersection.
func (r *Recorder) RecordFinished() {
	if r == nil {
		return
	}
	r.vehiclesFinished.Inc()
}

// Sample is one flattened metric value.
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

// Samples gathers r's counters and histogram counts as flat samples sorted
// by name then labels. Histograms contribute their observation count.
func (r *Recorder) Samples() ([]Sample, error) {
	if r == nil {
		return nil, nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			s := Sample{Name: mf.GetName(), Labels: labelString(m.GetLabel())}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				s.Value = m.GetCounter().GetValue()
			case dto.MetricType_HISTOGRAM:
				s.Name += "_count"
				s.Value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Labels < out[j].Labels
	})
	return out, nil
}

func labelString(pairs []*dto.LabelPair) string {
	s := ""
	for i, p := range pairs {
		if i > 0 {
			s += ","
		}
		s += p.GetName() + "=" + p.GetValue()
	}
	return s
}
