package mad3pg

import (
	"fmt"

	"github.com/neardws/aovrl/expreplay"
	ts "github.com/neardws/aovrl/timestep"
	"github.com/neardws/aovrl/tracking"
)

// Agent combines the replay buffer, the learner, and the rollout
// actor into one online agent: transitions observed from the
// environment feed the buffer, each Update runs one learner step once
// the buffer is warm, and the actor's weights follow the learner's
// online networks.
type Agent struct {
	conf Config
	dims Dimensions

	buffer  *expreplay.Buffer
	learner *D3PGLearner
	actor   *FeedForwardActor

	prevStep ts.TimeStep
}

// NewAgent returns a new online MAD3PG agent. The reward vector of
// every observed timestep must carry one channel per vehicle plus the
// final global training channel.
func NewAgent(conf Config, dims Dimensions, replicator Replicator,
	counter *tracking.Counter, logger *tracking.Logger, checkpointer,
	snapshotter tracking.Saver) (*Agent, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("newagent: %v", err)
	}
	if err := dims.Validate(); err != nil {
		return nil, fmt.Errorf("newagent: %v", err)
	}

	rewardSize := dims.VehicleNumber + 1
	buffer, err := expreplay.New(conf.MinReplayCapacity,
		conf.MaxReplayCapacity, conf.BatchSize, dims.VehicleNumber,
		dims.VehicleObservationSize, dims.EdgeObservationSize,
		dims.JointActionSize(), rewardSize, conf.Seed)
	if err != nil {
		return nil, fmt.Errorf("newagent: %v", err)
	}

	learner, err := NewD3PGLearner(conf, dims, buffer, replicator, counter,
		logger, checkpointer, snapshotter)
	if err != nil {
		return nil, fmt.Errorf("newagent: %v", err)
	}

	actor, err := NewFeedForwardActor(learner, conf.ExplorationSigma,
		conf.Seed+1)
	if err != nil {
		return nil, fmt.Errorf("newagent: %v", err)
	}
	if err := actor.UpdateVariables(); err != nil {
		return nil, fmt.Errorf("newagent: %v", err)
	}

	return &Agent{
		conf:    conf,
		dims:    dims,
		buffer:  buffer,
		learner: learner,
		actor:   actor,
	}, nil
}

// Learner returns the agent's learner
func (a *Agent) Learner() *D3PGLearner {
	return a.learner
}

// ObserveFirst records the first timestep of an episode
func (a *Agent) ObserveFirst(step ts.TimeStep) {
	a.prevStep = step
}

// SelectActions returns the joint action for the current timestep
func (a *Agent) SelectActions(step ts.TimeStep) ([]float64, error) {
	return a.actor.SelectActions(step)
}

// Observe adds the transition from the previously observed timestep
// to next under the given joint action to the replay buffer
func (a *Agent) Observe(action []float64, next ts.TimeStep) error {
	reward := make([]float64, len(next.Reward))
	copy(reward, next.Reward)

	err := a.buffer.Add(expreplay.Transition{
		VehicleObservations:     a.prevStep.VehicleObservations,
		VehicleNextObservations: next.VehicleObservations,
		EdgeObservation:         a.prevStep.Observation,
		EdgeNextObservation:     next.Observation,
		JointAction:             action,
		Reward:                  reward,
		Discount:                next.Discount,
	})
	if err != nil {
		return fmt.Errorf("observe: %v", err)
	}

	a.prevStep = next
	return nil
}

// Update runs one learner step and refreshes the actor's weights. It
// is a no-op while the replay buffer is below its minimum capacity.
func (a *Agent) Update() error {
	err := a.learner.Step()
	if expreplay.IsInsufficientSamples(err) || expreplay.IsEmptyBuffer(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update: %v", err)
	}
	return a.actor.UpdateVariables()
}
