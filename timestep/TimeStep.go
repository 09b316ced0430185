// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/neardws/aovrl/utils/matutils"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in the vehicular network
// environment. Observation is the edge observation; VehicleObservations
// holds one row per vehicle. Reward is a vector of reward channels, the
// last of which is the training reward.
type TimeStep struct {
	stepType            StepType
	Reward              []float64
	Discount            float64
	Observation         mat.Vector
	VehicleObservations *mat.Dense
	Number              int
}

func New(t StepType, r []float64, d float64, o mat.Vector,
	vo *mat.Dense, n int) TimeStep {
	return TimeStep{t, r, d, o, vo, n}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.stepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.stepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.stepType == Last
}

// TrainReward returns the last reward channel, which is the channel the
// learner consumes.
func (t *TimeStep) TrainReward() float64 {
	if len(t.Reward) == 0 {
		return 0
	}
	return t.Reward[len(t.Reward)-1]
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %v  |  Discount: %.2f  |  " +
		"Observation:  %v  |  Step Number:  %v"

	return fmt.Sprintf(str, t.stepType, t.Reward, t.Discount,
		matutils.Format(t.Observation), t.Number)
}
