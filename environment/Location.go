package environment

import (
	"fmt"
	"math"
)

// Location is a planar position in meters, measured from the bottom-left
// corner of the map bounding box. Raw GPS trajectories are projected into
// this frame before the environment ever sees them.
type Location struct {
	X float64
	Y float64
}

// Distance returns the Euclidean distance in meters between two locations
func (l Location) Distance(other Location) float64 {
	return math.Hypot(l.X-other.X, l.Y-other.Y)
}

// Trajectory maps time to vehicle locations. Locations are indexed by
// whole seconds from the episode start; queries between samples return
// the location at the floor of the query time, and queries past the end
// of the trajectory return the last known location.
type Trajectory struct {
	locations []Location
}

// NewTrajectory creates and returns a new Trajectory from a sequence of
// per-second locations
func NewTrajectory(locations []Location) (*Trajectory, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("newtrajectory: empty trajectory")
	}
	return &Trajectory{locations: locations}, nil
}

// LocationAt returns the vehicle's location at time t seconds
func (tr *Trajectory) LocationAt(t float64) Location {
	index := int(math.Floor(t))
	if index < 0 {
		index = 0
	}
	if index >= len(tr.locations) {
		index = len(tr.locations) - 1
	}
	return tr.locations[index]
}

// Duration returns the number of seconds covered by the trajectory
func (tr *Trajectory) Duration() int {
	return len(tr.locations)
}
