package expreplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const (
	testVehicles        = 2
	testVehicleObsSize  = 3
	testEdgeObsSize     = 4
	testJointActionSize = 5
	testRewardSize      = 3
)

// fill returns a transition whose every field is the given constant, so
// sampled rows can be traced back to the transition they came from
func fill(value float64) Transition {
	vehicleObs := make([]float64, testVehicles*testVehicleObsSize)
	edgeObs := make([]float64, testEdgeObsSize)
	jointAction := make([]float64, testJointActionSize)
	reward := make([]float64, testRewardSize)
	for _, slice := range [][]float64{vehicleObs, edgeObs, jointAction,
		reward} {
		for i := range slice {
			slice[i] = value
		}
	}

	next := make([]float64, len(vehicleObs))
	copy(next, vehicleObs)
	edgeNext := make([]float64, len(edgeObs))
	copy(edgeNext, edgeObs)

	return Transition{
		VehicleObservations: mat.NewDense(testVehicles, testVehicleObsSize,
			vehicleObs),
		VehicleNextObservations: mat.NewDense(testVehicles,
			testVehicleObsSize, next),
		EdgeObservation:     mat.NewVecDense(testEdgeObsSize, edgeObs),
		EdgeNextObservation: mat.NewVecDense(testEdgeObsSize, edgeNext),
		JointAction:         jointAction,
		Reward:              reward,
		Discount:            value,
	}
}

func newTestBuffer(t *testing.T, minCapacity, maxCapacity,
	batchSize int) *Buffer {
	t.Helper()
	buffer, err := New(minCapacity, maxCapacity, batchSize, testVehicles,
		testVehicleObsSize, testEdgeObsSize, testJointActionSize,
		testRewardSize, 42)
	require.NoError(t, err)
	return buffer
}

func TestNewBufferValidation(t *testing.T) {
	_, err := New(0, 10, 1, testVehicles, testVehicleObsSize,
		testEdgeObsSize, testJointActionSize, testRewardSize, 42)
	assert.Error(t, err)

	_, err = New(10, 5, 1, testVehicles, testVehicleObsSize,
		testEdgeObsSize, testJointActionSize, testRewardSize, 42)
	assert.Error(t, err)

	_, err = New(1, 10, 11, testVehicles, testVehicleObsSize,
		testEdgeObsSize, testJointActionSize, testRewardSize, 42)
	assert.Error(t, err)
}

func TestBufferCapacity(t *testing.T) {
	buffer := newTestBuffer(t, 1, 3, 1)
	assert.Equal(t, 0, buffer.Capacity())
	assert.Equal(t, 3, buffer.MaxCapacity())
	assert.Equal(t, 1, buffer.MinCapacity())

	for i := 1; i <= 5; i++ {
		require.NoError(t, buffer.Add(fill(float64(i))))
		if i < 3 {
			assert.Equal(t, i, buffer.Capacity())
		} else {
			// Old transitions are overwritten, not accumulated
			assert.Equal(t, 3, buffer.Capacity())
		}
	}
}

func TestBufferAddRejectsWrongShapes(t *testing.T) {
	buffer := newTestBuffer(t, 1, 3, 1)

	badVehicleObs := fill(1)
	badVehicleObs.VehicleObservations = mat.NewDense(testVehicles,
		testVehicleObsSize+1, nil)
	assert.Error(t, buffer.Add(badVehicleObs))

	badEdgeObs := fill(1)
	badEdgeObs.EdgeObservation = mat.NewVecDense(testEdgeObsSize+1, nil)
	assert.Error(t, buffer.Add(badEdgeObs))

	badAction := fill(1)
	badAction.JointAction = make([]float64, testJointActionSize-1)
	assert.Error(t, buffer.Add(badAction))

	badReward := fill(1)
	badReward.Reward = make([]float64, testRewardSize+1)
	assert.Error(t, buffer.Add(badReward))

	assert.Equal(t, 0, buffer.Capacity())
}

func TestBufferSampleErrors(t *testing.T) {
	buffer := newTestBuffer(t, 2, 10, 1)

	_, err := buffer.Sample()
	require.Error(t, err)
	assert.True(t, IsEmptyBuffer(err))

	require.NoError(t, buffer.Add(fill(1)))
	_, err = buffer.Sample()
	require.Error(t, err)
	assert.True(t, IsInsufficientSamples(err))

	require.NoError(t, buffer.Add(fill(2)))
	_, err = buffer.Sample()
	assert.NoError(t, err)
}

func TestBufferSampleLayout(t *testing.T) {
	buffer := newTestBuffer(t, 1, 10, 4)
	require.NoError(t, buffer.Add(fill(7)))

	// With a single stored transition every sampled row must be it
	batch, err := buffer.Sample()
	require.NoError(t, err)
	require.Equal(t, 4, batch.BatchSize)

	vehicleObsLen := testVehicles * testVehicleObsSize
	require.Len(t, batch.VehicleObservations, 4*vehicleObsLen)
	require.Len(t, batch.VehicleNextObservations, 4*vehicleObsLen)
	require.Len(t, batch.EdgeObservations, 4*testEdgeObsSize)
	require.Len(t, batch.EdgeNextObservations, 4*testEdgeObsSize)
	require.Len(t, batch.JointActions, 4*testJointActionSize)
	require.Len(t, batch.Rewards, 4*testRewardSize)
	require.Len(t, batch.Discounts, 4)

	for _, cache := range [][]float64{batch.VehicleObservations,
		batch.VehicleNextObservations, batch.EdgeObservations,
		batch.EdgeNextObservations, batch.JointActions, batch.Rewards,
		batch.Discounts} {
		for _, v := range cache {
			assert.Equal(t, 7.0, v)
		}
	}
}

func TestBufferOverwritesOldest(t *testing.T) {
	buffer := newTestBuffer(t, 1, 2, 2)
	require.NoError(t, buffer.Add(fill(1)))
	require.NoError(t, buffer.Add(fill(2)))
	require.NoError(t, buffer.Add(fill(3))) // overwrites fill(1)

	for i := 0; i < 20; i++ {
		batch, err := buffer.Sample()
		require.NoError(t, err)
		for _, discount := range batch.Discounts {
			assert.NotEqual(t, 1.0, discount)
		}
	}
}
