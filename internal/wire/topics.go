package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

// Topic kinds.
const (
	KindState    = "state"
	KindMap      = "map"
	KindProposal = "proposal"
	KindScore    = "score"
	KindFinal    = "final"
	KindZone     = "zone"
)

// StateTopic returns "state/{lane}/{fleet}/{vehicle}".
func StateTopic(id vehicle.ID) string {
	return fmt.Sprintf("%s/%d/%d/%d", KindState, id.Lane, id.Fleet, id.Vehicle)
}

// MapTopic returns "map/{lane}".
func MapTopic(lane int) string {
	return fmt.Sprintf("%s/%d", KindMap, lane)
}

// ProposalTopic returns "proposal/{lane}/{fleet}".
func ProposalTopic(k vehicle.FleetKey) string {
	return fmt.Sprintf("%s/%d/%d", KindProposal, k.Lane, k.Fleet)
}

// ScoreTopic returns "score/{lane}/{fleet}".
func ScoreTopic(k vehicle.FleetKey) string {
	return fmt.Sprintf("%s/%d/%d", KindScore, k.Lane, k.Fleet)
}

// FinalTopic returns "final/{lane}/{fleet}".
func FinalTopic(k vehicle.FleetKey) string {
	return fmt.Sprintf("%s/%d/%d", KindFinal, k.Lane, k.Fleet)
}

// ZoneTopic returns "zone/{zone}".
func ZoneTopic(zone int) string {
	return fmt.Sprintf("%s/%d", KindZone, zone)
}

// Topic is a parsed topic. Segments a kind does not carry are -1.
type Topic struct {
	Kind    string
	Lane    int
	Fleet   int
	Vehicle int
}

// FleetKey returns the topic's lane and fleet.
func (t Topic) FleetKey() vehicle.FleetKey {
	return vehicle.FleetKey{Lane: t.Lane, Fleet: t.Fleet}
}

// ID returns the topic's vehicle identity.
func (t Topic) ID() vehicle.ID {
	return vehicle.ID{Lane: t.Lane, Fleet: t.Fleet, Vehicle: t.Vehicle}
}

// segments is the number of numeric segments after the kind.
var segments = map[string]int{
	KindState:    3,
	KindMap:      1,
	KindProposal: 2,
	KindScore:    2,
	KindFinal:    2,
	KindZone:     1,
}

// ParseTopic splits a concrete topic into its kind and numeric segments.
// For zone topics the zone index is returned in Lane.
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")
	n, ok := segments[parts[0]]
	if !ok {
		return Topic{}, errors.NewMalformedMessageError("unknown topic kind", nil).WithTopic(topic)
	}
	if len(parts) != n+1 {
		return Topic{}, errors.NewMalformedMessageError(
			fmt.Sprintf("expected %d topic segments, got %d", n, len(parts)-1), nil).WithTopic(topic)
	}

	t := Topic{Kind: parts[0], Lane: -1, Fleet: -1, Vehicle: -1}
	fields := []*int{&t.Lane, &t.Fleet, &t.Vehicle}
	for i, seg := range parts[1:] {
		v, err := strconv.Atoi(seg)
		if err != nil || v < 0 {
			return Topic{}, errors.NewMalformedMessageError(
				fmt.Sprintf("invalid topic segment %q", seg), nil).WithTopic(topic)
		}
		*fields[i] = v
	}
	if !geometry.ValidLane(t.Lane) {
		return Topic{}, errors.NewMalformedMessageError(
			fmt.Sprintf("lane %d out of range", t.Lane), nil).WithTopic(topic)
	}
	return t, nil
}

// Kind returns the kind prefix of topic without validating the rest.
func Kind(topic string) string {
	kind, _, _ := strings.Cut(topic, "/")
	return kind
}
