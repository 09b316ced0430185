package environment

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Vehicle is a sensing vehicle in the simulation. A vehicle follows a
// fixed trajectory and can sense a fixed subset of the information
// catalog, chosen at construction. Vehicles are read-only during an
// environment step.
type Vehicle struct {
	number                  int
	trajectory              *Trajectory
	informationCanBeSensed  []int
	sensedInformationNumber int
}

// NewVehicle creates and returns a new Vehicle. The vehicle can sense
// sensedInformationNumber information types drawn without replacement
// from the informationNumber types in the catalog.
func NewVehicle(number int, trajectory *Trajectory, informationNumber,
	sensedInformationNumber int, seed uint64) (*Vehicle, error) {
	if sensedInformationNumber > informationNumber {
		return nil, fmt.Errorf("newvehicle: cannot sense %v types from a "+
			"catalog of %v", sensedInformationNumber, informationNumber)
	}
	if trajectory == nil {
		return nil, fmt.Errorf("newvehicle: nil trajectory")
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(informationNumber)
	canBeSensed := make([]int, sensedInformationNumber)
	copy(canBeSensed, perm[:sensedInformationNumber])

	return &Vehicle{
		number:                  number,
		trajectory:              trajectory,
		informationCanBeSensed:  canBeSensed,
		sensedInformationNumber: sensedInformationNumber,
	}, nil
}

// Number returns the vehicle's identity
func (v *Vehicle) Number() int {
	return v.number
}

// Trajectory returns the vehicle's trajectory
func (v *Vehicle) Trajectory() *Trajectory {
	return v.trajectory
}

// SensedInformationNumber returns the number of information slots the
// vehicle has
func (v *Vehicle) SensedInformationNumber() int {
	return v.sensedInformationNumber
}

// InformationCanBeSensed returns the information type held in each of
// the vehicle's information slots
func (v *Vehicle) InformationCanBeSensed() []int {
	return v.informationCanBeSensed
}

// SensedTypes returns, per information slot, the information type
// sensed in that slot under the given sensing bitmask, or -1 for slots
// that are not sensed.
func (v *Vehicle) SensedTypes(sensed []int) ([]int, error) {
	if len(sensed) != v.sensedInformationNumber {
		return nil, fmt.Errorf("sensedtypes: invalid bitmask length "+
			"\n\twant(%v)\n\thave(%v)", v.sensedInformationNumber, len(sensed))
	}

	types := make([]int, v.sensedInformationNumber)
	for i := range sensed {
		if sensed[i] == 1 {
			types[i] = v.informationCanBeSensed[i]
		} else {
			types[i] = -1
		}
	}
	return types, nil
}

// Edge is the edge node that vehicles upload sensed information to. It
// sits at a fixed location and owns the uplink bandwidth it allocates
// across vehicles.
type Edge struct {
	number        int
	location      Location
	bandwidth     float64 // total uplink bandwidth in MHz
	vehicleNumber int
}

// NewEdge creates and returns a new Edge
func NewEdge(number int, location Location, bandwidth float64,
	vehicleNumber int) (*Edge, error) {
	if bandwidth <= 0 {
		return nil, fmt.Errorf("newedge: bandwidth must be > 0")
	}
	return &Edge{
		number:        number,
		location:      location,
		bandwidth:     bandwidth,
		vehicleNumber: vehicleNumber,
	}, nil
}

// Number returns the edge's identity
func (e *Edge) Number() int {
	return e.number
}

// Location returns the edge's fixed location
func (e *Edge) Location() Location {
	return e.location
}

// Bandwidth returns the total uplink bandwidth of the edge in MHz
func (e *Edge) Bandwidth() float64 {
	return e.bandwidth
}

// VehicleNumber returns the number of vehicles served by the edge
func (e *Edge) VehicleNumber() int {
	return e.vehicleNumber
}
