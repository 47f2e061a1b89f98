package consensus

// Phase is a leader's position in the consensus protocol.
type Phase int

const (
	// PhaseGroupForming exchanges schedule groups until every lane agrees.
	PhaseGroupForming Phase = iota
	// PhaseCollectStates waits for a state from every vehicle of the group.
	PhaseCollectStates
	// PhaseCollectProposals computes the own proposal and waits for all others.
	PhaseCollectProposals
	// PhaseCollectScores scores every proposal and waits for all score vectors.
	PhaseCollectScores
	// PhaseDone means a final assignment was selected and adopted.
	PhaseDone
	// PhaseFailed means the leader gave up; Err explains why.
	PhaseFailed
)

// String returns the protocol name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseGroupForming:
		return "SCHEDULE_GROUP_FORMING"
	case PhaseCollectStates:
		return "COLLECT_STATES"
	case PhaseCollectProposals:
		return "COLLECT_PROPOSALS"
	case PhaseCollectScores:
		return "COLLECT_SCORES"
	case PhaseDone:
		return "DONE"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the leader will not advance further.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}
