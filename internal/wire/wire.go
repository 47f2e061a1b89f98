// Package wire encodes and decodes the payloads exchanged between vehicles.
//
// Every payload starts with a schema version, "v1|", followed by the body
// of its topic kind:
//
//	state/{l}/{f}/{v}  l,f,v,x,y,vx,vy,ax,ay,dest,finished
//	map/{l}            l:l,dest,f,size;...;
//	proposal/{l}/{f}   l,f:l,f,v,d0,d1,d2,d3;...;
//	score/{l}/{f}      l,f:l,f,score;...;
//	final/{l}/{f}      l,f,v,d0,d1,d2,d3;...;
//	zone/{z}           l,f,v,z,occupied|free
//
// Floats use the shortest representation that round-trips, and list
// entries are written in ascending key order, so equal values always
// encode to equal bytes. Decoders reject anything else with a
// MalformedMessageError, including a sender prefix that disagrees with the
// topic.
package wire

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/schedule"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

// Version is the payload schema version written by this package.
const Version = "v1"

const versionSep = "|"

// Scores maps a proposer's fleet to the score one sender gave it.
type Scores map[vehicle.FleetKey]float64

// Keys returns the scored fleets in ascending order.
func (s Scores) Keys() []vehicle.FleetKey {
	keys := make([]vehicle.FleetKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sortFleetKeys(keys)
	return keys
}

// ZoneStatus reports a vehicle entering or leaving a conflict zone.
type ZoneStatus struct {
	ID       vehicle.ID
	Zone     int
	Occupied bool
}

// --- Encoders ---

// EncodeState encodes a state broadcast.
func EncodeState(id vehicle.ID, st vehicle.State) []byte {
	finished := 0
	if st.Finished {
		finished = 1
	}
	return frame(join(",",
		itoa(id.Lane), itoa(id.Fleet), itoa(id.Vehicle),
		ftoa(st.Location.X), ftoa(st.Location.Y),
		ftoa(st.Velocity.X), ftoa(st.Velocity.Y),
		ftoa(st.Acceleration.X), ftoa(st.Acceleration.Y),
		itoa(st.DestLane), itoa(finished),
	))
}

// EncodeMap encodes a leader's schedule group.
func EncodeMap(lane int, fleets []vehicle.Fleet) []byte {
	var b strings.Builder
	b.WriteString(itoa(lane))
	b.WriteString(":")
	for _, f := range sortedFleets(fleets) {
		b.WriteString(join(",", itoa(f.Lane), itoa(f.DestLane), itoa(f.Fleet), itoa(f.Size)))
		b.WriteString(";")
	}
	return frame(b.String())
}

// EncodeProposal encodes a proposal tagged with its proposer.
func EncodeProposal(sender vehicle.FleetKey, p schedule.Proposal) []byte {
	return frame(fleetPrefix(sender) + deadlineList(p))
}

// EncodeScores encodes one sender's scores for every proposal.
func EncodeScores(sender vehicle.FleetKey, scores Scores) []byte {
	var b strings.Builder
	b.WriteString(fleetPrefix(sender))
	for _, k := range scores.Keys() {
		b.WriteString(join(",", itoa(k.Lane), itoa(k.Fleet), ftoa(scores[k])))
		b.WriteString(";")
	}
	return frame(b.String())
}

// EncodeFinal encodes a final assignment.
func EncodeFinal(p schedule.Proposal) []byte {
	return frame(deadlineList(p))
}

// EncodeZone encodes a zone occupancy change.
func EncodeZone(z ZoneStatus) []byte {
	status := "free"
	if z.Occupied {
		status = "occupied"
	}
	return frame(join(",", itoa(z.ID.Lane), itoa(z.ID.Fleet), itoa(z.ID.Vehicle), itoa(z.Zone), status))
}

func fleetPrefix(k vehicle.FleetKey) string {
	return itoa(k.Lane) + "," + itoa(k.Fleet) + ":"
}

func deadlineList(p schedule.Proposal) string {
	var b strings.Builder
	for _, id := range p.Keys() {
		d := p[id]
		b.WriteString(join(",",
			itoa(id.Lane), itoa(id.Fleet), itoa(id.Vehicle),
			ftoa(d[0]), ftoa(d[1]), ftoa(d[2]), ftoa(d[3]),
		))
		b.WriteString(";")
	}
	return b.String()
}

func sortedFleets(fleets []vehicle.Fleet) []vehicle.Fleet {
	out := slices.Clone(fleets)
	slices.SortFunc(out, vehicle.CompareFleets)
	return out
}

func sortFleetKeys(keys []vehicle.FleetKey) {
	slices.SortFunc(keys, vehicle.CompareFleetKeys)
}

func frame(body string) []byte {
	return []byte(Version + versionSep + body)
}

func join(sep string, parts ...string) string {
	return strings.Join(parts, sep)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// --- Decoders ---

// DecodeState decodes a state broadcast received on topic.
func DecodeState(topic string, payload []byte) (vehicle.ID, vehicle.State, error) {
	d, t, err := open(topic, payload, KindState)
	if err != nil {
		return vehicle.ID{}, vehicle.State{}, err
	}
	f := d.fields(d.body, ",", 11)

	id := vehicle.ID{Lane: d.lane(f, 0), Fleet: d.nonNegative(f, 1), Vehicle: d.nonNegative(f, 2)}
	st := vehicle.State{
		Location:     geometry.Vec2{X: d.number(f, 3), Y: d.number(f, 4)},
		Velocity:     geometry.Vec2{X: d.number(f, 5), Y: d.number(f, 6)},
		Acceleration: geometry.Vec2{X: d.number(f, 7), Y: d.number(f, 8)},
		DestLane:     d.lane(f, 9),
	}
	switch d.field(f, 10) {
	case "0":
	case "1":
		st.Finished = true
	default:
		d.fail("finished flag must be 0 or 1")
	}
	if d.err == nil && id != t.ID() {
		d.fail(fmt.Sprintf("payload vehicle %v does not match topic", id))
	}
	if d.err != nil {
		return vehicle.ID{}, vehicle.State{}, d.err
	}
	return id, st, nil
}

// DecodeMap decodes a schedule group received on topic.
func DecodeMap(topic string, payload []byte) (int, []vehicle.Fleet, error) {
	d, t, err := open(topic, payload, KindMap)
	if err != nil {
		return 0, nil, err
	}
	head, rest, ok := strings.Cut(d.body, ":")
	if !ok {
		return 0, nil, d.failed("missing sender lane")
	}
	lane := d.lane([]string{head}, 0)
	if d.err == nil && lane != t.Lane {
		d.fail(fmt.Sprintf("sender lane %d does not match topic", lane))
	}

	var fleets []vehicle.Fleet
	for _, entry := range d.entries(rest) {
		f := d.fields(entry, ",", 4)
		fleets = append(fleets, vehicle.Fleet{
			Lane:     d.lane(f, 0),
			DestLane: d.lane(f, 1),
			Fleet:    d.nonNegative(f, 2),
			Size:     d.positive(f, 3),
		})
	}
	if d.err != nil {
		return 0, nil, d.err
	}
	return lane, fleets, nil
}

// DecodeProposal decodes a proposal received on topic.
func DecodeProposal(topic string, payload []byte) (vehicle.FleetKey, schedule.Proposal, error) {
	d, t, err := open(topic, payload, KindProposal)
	if err != nil {
		return vehicle.FleetKey{}, nil, err
	}
	sender, rest := d.sender(t)
	p := d.deadlines(rest)
	if d.err != nil {
		return vehicle.FleetKey{}, nil, d.err
	}
	return sender, p, nil
}

// DecodeScores decodes a score vector received on topic.
func DecodeScores(topic string, payload []byte) (vehicle.FleetKey, Scores, error) {
	d, t, err := open(topic, payload, KindScore)
	if err != nil {
		return vehicle.FleetKey{}, nil, err
	}
	sender, rest := d.sender(t)

	scores := make(Scores)
	for _, entry := range d.entries(rest) {
		f := d.fields(entry, ",", 3)
		k := vehicle.FleetKey{Lane: d.lane(f, 0), Fleet: d.nonNegative(f, 1)}
		score := d.number(f, 2)
		if _, dup := scores[k]; dup && d.err == nil {
			d.fail(fmt.Sprintf("duplicate score for %v", k))
		}
		scores[k] = score
	}
	if d.err != nil {
		return vehicle.FleetKey{}, nil, d.err
	}
	return sender, scores, nil
}

// DecodeFinal decodes a final assignment received on topic.
func DecodeFinal(topic string, payload []byte) (schedule.Proposal, error) {
	d, _, err := open(topic, payload, KindFinal)
	if err != nil {
		return nil, err
	}
	p := d.deadlines(d.body)
	if d.err != nil {
		return nil, d.err
	}
	return p, nil
}

// DecodeZone decodes a zone occupancy change received on topic.
func DecodeZone(topic string, payload []byte) (ZoneStatus, error) {
	d, t, err := open(topic, payload, KindZone)
	if err != nil {
		return ZoneStatus{}, err
	}
	f := d.fields(d.body, ",", 5)
	z := ZoneStatus{
		ID:   vehicle.ID{Lane: d.lane(f, 0), Fleet: d.nonNegative(f, 1), Vehicle: d.nonNegative(f, 2)},
		Zone: d.lane(f, 3),
	}
	switch d.field(f, 4) {
	case "occupied":
		z.Occupied = true
	case "free":
	default:
		d.fail("zone status must be occupied or free")
	}
	if d.err == nil && z.Zone != t.Lane {
		d.fail(fmt.Sprintf("zone %d does not match topic", z.Zone))
	}
	if d.err != nil {
		return ZoneStatus{}, d.err
	}
	return z, nil
}

// decoder accumulates the first validation failure so field accessors can
// be chained without checking each one.
type decoder struct {
	topic string
	body  string
	err   error
}

func open(topic string, payload []byte, kind string) (*decoder, Topic, error) {
	t, err := ParseTopic(topic)
	if err != nil {
		return nil, Topic{}, err
	}
	if t.Kind != kind {
		return nil, Topic{}, errors.NewMalformedMessageError(
			fmt.Sprintf("expected %s topic", kind), nil).WithTopic(topic)
	}

	version, body, ok := strings.Cut(string(payload), versionSep)
	if !ok {
		return nil, Topic{}, errors.NewMalformedMessageError("missing schema version", nil).WithTopic(topic)
	}
	if version != Version {
		return nil, Topic{}, errors.NewMalformedMessageError(
			fmt.Sprintf("schema version %q", version), errors.ErrUnsupportedVersion).WithTopic(topic)
	}
	return &decoder{topic: topic, body: body}, t, nil
}

func (d *decoder) fail(msg string) {
	if d.err == nil {
		d.err = errors.NewMalformedMessageError(msg, nil).WithTopic(d.topic)
	}
}

func (d *decoder) failed(msg string) error {
	d.fail(msg)
	return d.err
}

// fields splits s and checks its arity. On failure it returns n empty
// fields so accessors stay in range.
func (d *decoder) fields(s, sep string, n int) []string {
	f := strings.Split(s, sep)
	if len(f) != n {
		d.fail(fmt.Sprintf("expected %d fields, got %d", n, len(f)))
		return make([]string, n)
	}
	return f
}

// entries splits a ";"-terminated list.
func (d *decoder) entries(s string) []string {
	if s == "" {
		return nil
	}
	if !strings.HasSuffix(s, ";") {
		d.fail("list must end with ';'")
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, ";"), ";")
}

func (d *decoder) field(f []string, i int) string {
	return f[i]
}

func (d *decoder) integer(f []string, i int) int {
	v, err := strconv.Atoi(f[i])
	if err != nil {
		d.fail(fmt.Sprintf("field %d: %q is not an integer", i, f[i]))
	}
	return v
}

func (d *decoder) nonNegative(f []string, i int) int {
	v := d.integer(f, i)
	if v < 0 {
		d.fail(fmt.Sprintf("field %d: %d is negative", i, v))
	}
	return v
}

func (d *decoder) positive(f []string, i int) int {
	v := d.integer(f, i)
	if v <= 0 {
		d.fail(fmt.Sprintf("field %d: %d is not positive", i, v))
	}
	return v
}

func (d *decoder) lane(f []string, i int) int {
	v := d.integer(f, i)
	if !geometry.ValidLane(v) {
		d.fail(fmt.Sprintf("field %d: lane %d out of range", i, v))
	}
	return v
}

func (d *decoder) number(f []string, i int) float64 {
	v, err := strconv.ParseFloat(f[i], 64)
	if err != nil || math.IsNaN(v) {
		d.fail(fmt.Sprintf("field %d: %q is not a number", i, f[i]))
	}
	return v
}

// sender parses the "lane,fleet:" prefix and checks it against the topic.
func (d *decoder) sender(t Topic) (vehicle.FleetKey, string) {
	head, rest, ok := strings.Cut(d.body, ":")
	if !ok {
		d.fail("missing sender")
		return vehicle.FleetKey{}, ""
	}
	f := d.fields(head, ",", 2)
	k := vehicle.FleetKey{Lane: d.lane(f, 0), Fleet: d.nonNegative(f, 1)}
	if d.err == nil && k != t.FleetKey() {
		d.fail(fmt.Sprintf("sender %v does not match topic", k))
	}
	return k, rest
}

func (d *decoder) deadlines(s string) schedule.Proposal {
	p := make(schedule.Proposal)
	for _, entry := range d.entries(s) {
		f := d.fields(entry, ",", 7)
		id := vehicle.ID{Lane: d.lane(f, 0), Fleet: d.nonNegative(f, 1), Vehicle: d.nonNegative(f, 2)}
		var dl schedule.Deadlines
		for z := range dl {
			dl[z] = d.number(f, 3+z)
			if math.IsInf(dl[z], 0) {
				d.fail(fmt.Sprintf("deadline %d of %v is infinite", z, id))
			}
		}
		if _, dup := p[id]; dup {
			d.fail(fmt.Sprintf("duplicate deadlines for %v", id))
		}
		p[id] = dl
	}
	return p
}
