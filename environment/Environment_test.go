package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
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

		// Keep the priority queue stable for any decodable action:
		// 3 slots at the 5 Hz frequency cap with E[S] = 0.02 leave
		// the workload at 0.3
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
	}
}

func TestEnvironmentReset(t *testing.T) {
	env, err := NewVehicularNetworkEnv(testConfig())
	require.NoError(t, err)

	step := env.Reset()
	assert.True(t, step.First())
	assert.Equal(t, 0, step.Number)
	assert.Equal(t, 1.0, step.Discount)
	assert.Len(t, step.Reward, 3)

	conf := env.Config()
	assert.Equal(t, conf.EdgeObservationSize(), step.Observation.Len())
	rows, cols := step.VehicleObservations.Dims()
	assert.Equal(t, conf.VehicleNumber, rows)
	assert.Equal(t, conf.VehicleObservationSize(), cols)

	// Observations are normalized
	for i := 0; i < step.Observation.Len(); i++ {
		assert.GreaterOrEqual(t, step.Observation.AtVec(i), 0.0)
		assert.LessOrEqual(t, step.Observation.AtVec(i), 1.0)
	}
}

func TestEnvironmentStepIdleAction(t *testing.T) {
	env, err := NewVehicularNetworkEnv(testConfig())
	require.NoError(t, err)
	env.Reset()

	// An all-zero action senses nothing: every view is stale
	action := make([]float64, env.Config().JointActionSize())
	step, result, err := env.Step(action)
	require.NoError(t, err)

	assert.True(t, step.Mid())
	assert.Equal(t, 1, step.Number)
	assert.Equal(t, 10.0, result.AverageAoV)
	assert.Equal(t, 0.0, result.AverageCost)
	assert.Equal(t, 0.0, result.AverageRedundancy)

	// Reward channels are -(AoV + cost) for every agent
	for _, reward := range step.Reward {
		assert.InDelta(t, -10.0, reward, 1e-12)
	}
	assert.InDelta(t, -10.0, step.TrainReward(), 1e-12)
}

func TestEnvironmentStepSensingAction(t *testing.T) {
	env, err := NewVehicularNetworkEnv(testConfig())
	require.NoError(t, err)
	env.Reset()

	// A uniform mid-range action senses every slot on both vehicles
	action := make([]float64, env.Config().JointActionSize())
	for i := range action {
		action[i] = 0.6
	}

	step, result, err := env.Step(action)
	require.NoError(t, err)
	assert.True(t, step.Mid())

	// Something was delivered, so the view age beats the stale penalty
	// and sensing costs accrue
	assert.Less(t, result.AverageAoV, 10.0)
	assert.Greater(t, result.AverageAoV, 0.0)
	assert.Greater(t, result.AverageSensingCost, 0.0)
	assert.Greater(t, result.AverageTransmissionCost, 0.0)
	assert.Less(t, step.TrainReward(), 0.0)
}

func TestEnvironmentEpisodeTermination(t *testing.T) {
	env, err := NewVehicularNetworkEnv(testConfig())
	require.NoError(t, err)

	action := make([]float64, env.Config().JointActionSize())
	step := env.Reset()
	for i := 0; i < env.Config().EpisodeLength; i++ {
		step, _, err = env.Step(action)
		require.NoError(t, err)
	}

	assert.True(t, step.Last())
	assert.Equal(t, 0.0, step.Discount)
	assert.Equal(t, env.Config().EpisodeLength, step.Number)
}

func TestDecodedEdgeActionNeverExceedsBandwidth(t *testing.T) {
	env, err := NewVehicularNetworkEnv(testConfig())
	require.NoError(t, err)
	env.Reset()

	// Fractions whose normalized sum is prone to rounding one ulp over
	// the full bandwidth
	outputs := [][]float64{
		{1, 1},
		{0.1, 0.2},
		{1.0 / 3.0, 2.0 / 3.0},
		{0.7, 0.1},
	}
	for _, flat := range outputs {
		action := env.decodeEdgeAction(flat)
		assert.NoError(t, action.Validate(env.Edge()))

		total := 0.0
		for _, b := range action.BandwidthAllocation {
			total += b
		}
		assert.LessOrEqual(t, total, env.Edge().Bandwidth())
	}
}

func TestEnvironmentStepRejectsWrongActionLength(t *testing.T) {
	env, err := NewVehicularNetworkEnv(testConfig())
	require.NoError(t, err)
	env.Reset()

	_, _, err = env.Step(make([]float64, 3))
	assert.Error(t, err)
}

func TestEnvironmentSnapshot(t *testing.T) {
	env, err := NewVehicularNetworkEnv(testConfig())
	require.NoError(t, err)
	env.Reset()

	snapshot := env.Snapshot()
	assert.Equal(t, 0, snapshot.Time)
	assert.Equal(t, 1, snapshot.Episode)
	require.Len(t, snapshot.InformationAges, 10)

	// Reset marks every type stale
	for _, age := range snapshot.InformationAges {
		assert.Equal(t, 10.0, age)
	}

	action := make([]float64, env.Config().JointActionSize())
	_, _, err = env.Step(action)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Snapshot().Time)

	// Snapshots copy state instead of aliasing it
	snapshot.InformationAges[0] = -1
	assert.Equal(t, 10.0, env.Snapshot().InformationAges[0])
}
