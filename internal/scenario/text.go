package scenario

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

// ParseText reads the line-oriented scenario format:
//
//	<fleets> [<vehicles>]
//	<lane> <dest> <fleet> <size>
//	<vid> <x> <y> <vx> <vy> <ax> <ay>     (size lines)
//	...
//
// Blank lines and lines starting with '#' are skipped. The optional
// vehicle total in the header is checked when present.
func ParseText(r io.Reader) (*Scenario, error) {
	p := &textParser{sc: bufio.NewScanner(r)}

	head, err := p.next(1, 2)
	if err != nil {
		return nil, err
	}
	fleets, err := p.ints(head)
	if err != nil {
		return nil, err
	}
	if fleets[0] < 0 {
		return nil, p.errorf("negative fleet count")
	}

	s := &Scenario{States: make(map[vehicle.ID]vehicle.State)}
	for range fleets[0] {
		f, err := p.fleet()
		if err != nil {
			return nil, err
		}
		s.Fleets = append(s.Fleets, f)
		for range f.Size {
			vid, st, err := p.vehicle()
			if err != nil {
				return nil, err
			}
			if err := s.add(f, vid, st); err != nil {
				return nil, p.wrap(err)
			}
		}
	}

	if len(fleets) == 2 && fleets[1] != len(s.States) {
		return nil, fmt.Errorf("header announces %d vehicles, found %d", fleets[1], len(s.States))
	}
	if extra, err := p.next(0, 1<<10); err == nil && len(extra) > 0 {
		return nil, p.errorf("unexpected trailing input %q", strings.Join(extra, " "))
	}
	s.sortFleets()
	return s, nil
}

type textParser struct {
	sc   *bufio.Scanner
	line int
}

func (p *textParser) errorf(format string, args ...any) error {
	return invalid(fmt.Sprintf("line %d: %s", p.line, fmt.Sprintf(format, args...)))
}

func (p *textParser) wrap(err error) error {
	return fmt.Errorf("line %d: %w", p.line, err)
}

// next returns the fields of the next non-blank, non-comment line and
// checks their count lies in [lo, hi]. At EOF it returns io.ErrUnexpectedEOF.
func (p *textParser) next(lo, hi int) ([]string, error) {
	for p.sc.Scan() {
		p.line++
		text := strings.TrimSpace(p.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		f := strings.Fields(text)
		if len(f) < lo || len(f) > hi {
			return nil, p.errorf("expected %d fields, got %d", lo, len(f))
		}
		return f, nil
	}
	if err := p.sc.Err(); err != nil {
		return nil, err
	}
	return nil, p.wrap(io.ErrUnexpectedEOF)
}

func (p *textParser) ints(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, s := range fields {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, p.errorf("field %d: %q is not an integer", i+1, s)
		}
		out[i] = v
	}
	return out, nil
}

func (p *textParser) fleet() (vehicle.Fleet, error) {
	f, err := p.next(4, 4)
	if err != nil {
		return vehicle.Fleet{}, err
	}
	v, err := p.ints(f)
	if err != nil {
		return vehicle.Fleet{}, err
	}
	return vehicle.Fleet{Lane: v[0], DestLane: v[1], Fleet: v[2], Size: v[3]}, nil
}

func (p *textParser) vehicle() (int, vehicle.State, error) {
	f, err := p.next(7, 7)
	if err != nil {
		return 0, vehicle.State{}, err
	}
	vid, err := strconv.Atoi(f[0])
	if err != nil {
		return 0, vehicle.State{}, p.errorf("vehicle id %q is not an integer", f[0])
	}
	var nums [6]float64
	for i := range nums {
		nums[i], err = strconv.ParseFloat(f[i+1], 64)
		if err != nil {
			return 0, vehicle.State{}, p.errorf("field %d: %q is not a number", i+2, f[i+1])
		}
	}
	return vid, vehicle.State{
		Location:     geometry.Vec2{X: nums[0], Y: nums[1]},
		Velocity:     geometry.Vec2{X: nums[2], Y: nums[3]},
		Acceleration: geometry.Vec2{X: nums[4], Y: nums[5]},
	}, nil
}
