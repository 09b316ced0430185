package loop

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neardws/aovrl/environment"
	ts "github.com/neardws/aovrl/timestep"
	"github.com/neardws/aovrl/tracking"
)

// idleAgent drives the loop with all-zero joint actions and counts the
// calls it receives
type idleAgent struct {
	actionSize int

	observedFirst int
	observed      int
	updated       int
}

func (a *idleAgent) ObserveFirst(ts.TimeStep) {
	a.observedFirst++
}

func (a *idleAgent) SelectActions(ts.TimeStep) ([]float64, error) {
	return make([]float64, a.actionSize), nil
}

func (a *idleAgent) Observe(action []float64, next ts.TimeStep) error {
	a.observed++
	return nil
}

func (a *idleAgent) Update() error {
	a.updated++
	return nil
}

func testEnv(t *testing.T) *environment.VehicularNetworkEnv {
	t.Helper()
	env, err := environment.NewVehicularNetworkEnv(environment.Config{
		VehicleNumber:           2,
		SensedInformationNumber: 3,

		InformationNumber:    10,
		MaxInformationNumber: 4,
		ViewNumber:           5,
		ApplicationNumber:    5,
		ViewsPerApplication:  1,

		DataSizeLowBound:       100,
		DataSizeUpBound:        1000,
		UpdateIntervalLowBound: 1,
		UpdateIntervalUpBound:  5,

		MeanServiceTimeLowBound: 0.01,
		MeanServiceTimeUpBound:  0.02,

		WhiteGaussianNoise:            -90,
		MeanChannelFadingGain:         2.0,
		SecondMomentChannelFadingGain: 0.4,
		PathLossExponent:              3,

		EdgeBandwidth: 3,
		EdgeLocationX: 500,
		EdgeLocationY: 500,
		MapWidth:      1000,

		EpisodeLength: 3,

		Seed:         42,
		VehicleSeeds: []uint64{1, 2},
		ViewSeeds:    []uint64{1, 2, 3, 4, 5},
	})
	require.NoError(t, err)
	return env
}

func quietLogger(label string) *tracking.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return tracking.NewLogger(log, label)
}

func TestNewValidation(t *testing.T) {
	env := testEnv(t)
	agent := &idleAgent{actionSize: env.Config().JointActionSize()}
	counter := tracking.NewCounter()

	_, err := New(nil, agent, counter, quietLogger(TrainLabel), TrainLabel,
		"")
	assert.Error(t, err)

	_, err = New(env, nil, counter, quietLogger(TrainLabel), TrainLabel, "")
	assert.Error(t, err)

	_, err = New(env, agent, nil, quietLogger(TrainLabel), TrainLabel, "")
	assert.Error(t, err)
}

func TestRunStopsAtStepBudget(t *testing.T) {
	env := testEnv(t)
	agent := &idleAgent{actionSize: env.Config().JointActionSize()}
	counter := tracking.NewCounter()

	loop, err := New(env, agent, counter, quietLogger(TrainLabel),
		TrainLabel, "")
	require.NoError(t, err)

	// 7 steps over 3-step episodes: two full episodes and a partial
	// third
	require.NoError(t, loop.Run(7, nil))
	assert.Equal(t, 7, loop.Steps())
	assert.Equal(t, 3, agent.observedFirst)
	assert.Equal(t, 7, agent.observed)
	assert.Equal(t, 7, agent.updated)

	counts := counter.Counts()
	assert.Equal(t, 3.0, counts["episodes"])
	assert.Equal(t, 7.0, counts["steps"])
}

func TestRunHonorsStopRequest(t *testing.T) {
	env := testEnv(t)
	agent := &idleAgent{actionSize: env.Config().JointActionSize()}
	counter := tracking.NewCounter()

	loop, err := New(env, agent, counter, quietLogger(TrainLabel),
		TrainLabel, "")
	require.NoError(t, err)

	stop := make(chan struct{})
	close(stop)

	// The in-flight step completes, then the stop takes effect
	require.NoError(t, loop.Run(100, stop))
	assert.Equal(t, 1, loop.Steps())
}

func TestRunResumesAcrossCalls(t *testing.T) {
	env := testEnv(t)
	agent := &idleAgent{actionSize: env.Config().JointActionSize()}
	counter := tracking.NewCounter()

	loop, err := New(env, agent, counter, quietLogger(TrainLabel),
		TrainLabel, "")
	require.NoError(t, err)

	require.NoError(t, loop.Run(3, nil))
	assert.Equal(t, 3, loop.Steps())

	// The step budget is cumulative over the loop's lifetime
	require.NoError(t, loop.Run(5, nil))
	assert.Equal(t, 5, loop.Steps())
}
