package mad3pg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neardws/aovrl/tracking"
)

func newTestAgent(t *testing.T) (*Agent, *tracking.Counter) {
	t.Helper()
	conf := testLearnerConfig(t)
	conf.ExplorationSigma = 0.1
	dims := testDimensions()

	counter := tracking.NewCounter()
	agent, err := NewAgent(conf, dims, NewSingleReplica(), counter,
		quietLogger(), nil, nil)
	require.NoError(t, err)
	return agent, counter
}

func TestAgentUpdateIsNoOpWhileWarmingUp(t *testing.T) {
	agent, counter := newTestAgent(t)

	// An empty buffer and a buffer below its minimum capacity both
	// skip the learner step without failing
	require.NoError(t, agent.Update())

	dims := testDimensions()
	step := testTimeStep(dims)
	agent.ObserveFirst(step)
	action, err := agent.SelectActions(step)
	require.NoError(t, err)
	require.NoError(t, agent.Observe(action, testTimeStep(dims)))

	require.NoError(t, agent.Update())
	assert.Equal(t, 0, agent.Learner().Steps())
	assert.Empty(t, counter.Counts())
}

func TestAgentLearnsOnceBufferIsWarm(t *testing.T) {
	agent, counter := newTestAgent(t)
	dims := testDimensions()

	step := testTimeStep(dims)
	agent.ObserveFirst(step)
	for i := 0; i < 3; i++ {
		action, err := agent.SelectActions(step)
		require.NoError(t, err)
		next := testTimeStep(dims)
		require.NoError(t, agent.Observe(action, next))
		require.NoError(t, agent.Update())
	}

	assert.Greater(t, agent.Learner().Steps(), 0)
	assert.Greater(t, counter.Counts()["learner_steps"], 0.0)
}

func TestAgentObserveRejectsWrongShapes(t *testing.T) {
	agent, _ := newTestAgent(t)
	dims := testDimensions()

	step := testTimeStep(dims)
	agent.ObserveFirst(step)

	err := agent.Observe(make([]float64, 3), testTimeStep(dims))
	assert.Error(t, err)
}
