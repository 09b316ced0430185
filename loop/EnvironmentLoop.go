// Package loop implements the training and evaluation loops driving
// an agent through the vehicular network environment
package loop

import (
	"fmt"
	"time"

	"github.com/neardws/aovrl/environment"
	ts "github.com/neardws/aovrl/timestep"
	"github.com/neardws/aovrl/tracking"
	"github.com/neardws/aovrl/utils/fileutils"
)

// EvaluatorLabel marks the evaluation loop variant. Only this variant
// persists environment snapshots.
const EvaluatorLabel = "evaluator_loop"

// TrainLabel marks the training loop variant
const TrainLabel = "train_loop"

// snapshotInterval is the number of environment steps between
// snapshot writes in the evaluator loop
const snapshotInterval = 15000

// Agent is the surface an EnvironmentLoop drives
type Agent interface {
	// ObserveFirst records the first timestep of an episode
	ObserveFirst(ts.TimeStep)

	// SelectActions returns the joint action for a timestep
	SelectActions(ts.TimeStep) ([]float64, error)

	// Observe records the transition to the given next timestep
	Observe(action []float64, next ts.TimeStep) error

	// Update advances the agent's learning by one step
	Update() error
}

// EnvironmentLoop drives repeated observe, act, step, update cycles
// between an environment and an agent, accumulating episode metrics.
// An in-flight step always runs to completion; a stop request takes
// effect at the next step boundary.
type EnvironmentLoop struct {
	env     *environment.VehicularNetworkEnv
	agent   Agent
	counter *tracking.Counter
	logger  *tracking.Logger
	label   string

	// snapshotName generates the snapshot file path; nil disables
	// snapshots regardless of label
	snapshotName func() string

	steps int
}

// New returns a new EnvironmentLoop with the given label. Snapshots
// are written under runDir every 15000 steps when the label is
// EvaluatorLabel; an empty runDir disables them.
func New(env *environment.VehicularNetworkEnv, agent Agent,
	counter *tracking.Counter, logger *tracking.Logger, label,
	runDir string) (*EnvironmentLoop, error) {
	if env == nil || agent == nil {
		return nil, fmt.Errorf("new: no environment or agent")
	}
	if counter == nil || logger == nil {
		return nil, fmt.Errorf("new: no counter or logger")
	}

	l := &EnvironmentLoop{
		env:     env,
		agent:   agent,
		counter: counter,
		logger:  logger,
		label:   label,
	}
	if runDir != "" {
		l.snapshotName = fileutils.TimestampedFilename(runDir,
			"environment", ".bin")
	}
	return l, nil
}

// Steps returns the total number of environment steps taken
func (l *EnvironmentLoop) Steps() int {
	return l.steps
}

// Run drives the loop for at most numSteps environment steps. A value
// received on stop ends the run at the next step boundary; a nil stop
// channel never stops early.
func (l *EnvironmentLoop) Run(numSteps int, stop <-chan struct{}) error {
	for l.steps < numSteps {
		stopped, err := l.runEpisode(numSteps, stop)
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}
		if stopped {
			return nil
		}
	}
	return nil
}

// runEpisode runs one episode, or less if the step budget or a stop
// request intervenes
func (l *EnvironmentLoop) runEpisode(maxSteps int,
	stop <-chan struct{}) (bool, error) {
	start := time.Now()

	step := l.env.Reset()
	l.agent.ObserveFirst(step)

	var (
		episodeSteps  int
		episodeReturn float64
		stopped       bool

		aov              float64
		cost             float64
		timeliness       float64
		consistency      float64
		redundancy       float64
		sensingCost      float64
		transmissionCost float64
	)

	for !step.Last() && l.steps < maxSteps && !stopped {
		action, err := l.agent.SelectActions(step)
		if err != nil {
			return false, err
		}

		next, result, err := l.env.Step(action)
		if err != nil {
			return false, err
		}

		if err := l.agent.Observe(action, next); err != nil {
			return false, err
		}
		if err := l.agent.Update(); err != nil {
			return false, err
		}

		step = next
		episodeSteps++
		l.steps++
		episodeReturn += next.TrainReward()

		aov += result.AverageAoV
		cost += result.AverageCost
		timeliness += result.AverageTimeliness
		consistency += result.AverageConsistency
		redundancy += result.AverageRedundancy
		sensingCost += result.AverageSensingCost
		transmissionCost += result.AverageTransmissionCost

		if l.snapshotName != nil && l.label == EvaluatorLabel &&
			l.steps%snapshotInterval == 0 {
			err := fileutils.SaveGob(l.snapshotName(), l.env.Snapshot())
			if err != nil {
				return false, err
			}
		}

		select {
		case <-stop:
			stopped = true
		default:
		}
	}

	elapsed := time.Since(start).Seconds()
	counts := l.counter.Increment(map[string]float64{
		"episodes": 1,
		"steps":    float64(episodeSteps),
		"walltime": elapsed,
	})

	record := map[string]float64{
		"episode_length":            float64(episodeSteps),
		"episode_return":            episodeReturn,
		"steps_per_second":          float64(episodeSteps) / elapsed,
		"average_age_of_view":       mean(aov, episodeSteps),
		"average_cost":              mean(cost, episodeSteps),
		"average_timeliness":        mean(timeliness, episodeSteps),
		"average_consistency":       mean(consistency, episodeSteps),
		"average_redundancy":        mean(redundancy, episodeSteps),
		"average_sensing_cost":      mean(sensingCost, episodeSteps),
		"average_transmission_cost": mean(transmissionCost, episodeSteps),
	}
	for key, value := range counts {
		record[key] = value
	}
	l.logger.Write(record)

	return stopped, nil
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
