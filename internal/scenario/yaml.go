package scenario

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

// Document is the YAML form of a scenario:
//
//	fleets:
//	  - lane: 0
//	    dest: 2
//	    fleet: 0
//	    vehicles:
//	      - id: 0
//	        location: [14, 2]
//	        velocity: [-2, 0]
type Document struct {
	Fleets []FleetDoc `yaml:"fleets"`
}

// FleetDoc describes one fleet. Its size is the number of vehicles listed.
type FleetDoc struct {
	Lane     int          `yaml:"lane"`
	Dest     int          `yaml:"dest"`
	Fleet    int          `yaml:"fleet"`
	Vehicles []VehicleDoc `yaml:"vehicles"`
}

// VehicleDoc is one vehicle's initial kinematics.
type VehicleDoc struct {
	ID           int        `yaml:"id"`
	Location     [2]float64 `yaml:"location"`
	Velocity     [2]float64 `yaml:"velocity"`
	Acceleration [2]float64 `yaml:"acceleration,omitempty"`
}

// ParseYAML decodes a Document. Unknown keys are rejected.
func ParseYAML(r io.Reader) (*Scenario, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, invalid("empty scenario document")
		}
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return doc.Scenario()
}

// Scenario converts the document.
func (d Document) Scenario() (*Scenario, error) {
	s := &Scenario{States: make(map[vehicle.ID]vehicle.State)}
	for _, fd := range d.Fleets {
		f := vehicle.Fleet{Lane: fd.Lane, DestLane: fd.Dest, Fleet: fd.Fleet, Size: len(fd.Vehicles)}
		s.Fleets = append(s.Fleets, f)
		for _, vd := range fd.Vehicles {
			st := vehicle.State{
				Location:     geometry.Vec2{X: vd.Location[0], Y: vd.Location[1]},
				Velocity:     geometry.Vec2{X: vd.Velocity[0], Y: vd.Velocity[1]},
				Acceleration: geometry.Vec2{X: vd.Acceleration[0], Y: vd.Acceleration[1]},
			}
			if err := s.add(f, vd.ID, st); err != nil {
				return nil, err
			}
		}
	}
	s.sortFleets()
	return s, nil
}

// Document converts s back to its YAML form.
func (s *Scenario) Document() Document {
	var d Document
	for _, f := range s.Fleets {
		fd := FleetDoc{Lane: f.Lane, Dest: f.DestLane, Fleet: f.Fleet}
		for _, id := range f.Members() {
			st, ok := s.States[id]
			if !ok {
				continue
			}
			fd.Vehicles = append(fd.Vehicles, VehicleDoc{
				ID:           id.Vehicle,
				Location:     [2]float64{st.Location.X, st.Location.Y},
				Velocity:     [2]float64{st.Velocity.X, st.Velocity.Y},
				Acceleration: [2]float64{st.Acceleration.X, st.Acceleration.Y},
			})
		}
		d.Fleets = append(d.Fleets, fd)
	}
	return d
}

// WriteYAML encodes s as a Document.
func (s *Scenario) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s.Document()); err != nil {
		return err
	}
	return enc.Close()
}
