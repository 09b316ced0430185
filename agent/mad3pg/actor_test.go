package mad3pg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	ts "github.com/neardws/aovrl/timestep"
)

func testTimeStep(dims Dimensions) ts.TimeStep {
	vehicleObs := mat.NewDense(dims.VehicleNumber,
		dims.VehicleObservationSize, nil)
	for i := 0; i < dims.VehicleNumber; i++ {
		for j := 0; j < dims.VehicleObservationSize; j++ {
			vehicleObs.Set(i, j, 0.5)
		}
	}
	edgeObs := mat.NewVecDense(dims.EdgeObservationSize, nil)
	for i := 0; i < dims.EdgeObservationSize; i++ {
		edgeObs.SetVec(i, 0.5)
	}

	reward := make([]float64, dims.VehicleNumber+1)
	return ts.New(ts.First, reward, 1, edgeObs, vehicleObs, 0)
}

func TestActorSelectActions(t *testing.T) {
	learner, _ := newTestLearner(t, 0)
	actor, err := NewFeedForwardActor(learner, 0, 14)
	require.NoError(t, err)
	require.NoError(t, actor.UpdateVariables())

	dims := testDimensions()
	joint, err := actor.SelectActions(testTimeStep(dims))
	require.NoError(t, err)
	require.Len(t, joint, dims.JointActionSize())

	// Policies emit sigmoid actions
	for _, a := range joint {
		assert.GreaterOrEqual(t, a, 0.0)
		assert.LessOrEqual(t, a, 1.0)
	}
}

func TestActorSelectActionsIsDeterministicWithoutNoise(t *testing.T) {
	learner, _ := newTestLearner(t, 0)
	actor, err := NewFeedForwardActor(learner, 0, 14)
	require.NoError(t, err)

	step := testTimeStep(testDimensions())
	first, err := actor.SelectActions(step)
	require.NoError(t, err)
	second, err := actor.SelectActions(step)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestActorNoiseStaysInActionRange(t *testing.T) {
	learner, _ := newTestLearner(t, 0)
	actor, err := NewFeedForwardActor(learner, 0.5, 14)
	require.NoError(t, err)

	step := testTimeStep(testDimensions())
	for i := 0; i < 10; i++ {
		joint, err := actor.SelectActions(step)
		require.NoError(t, err)
		for _, a := range joint {
			assert.GreaterOrEqual(t, a, 0.0)
			assert.LessOrEqual(t, a, 1.0)
		}
	}
}

func TestActorRejectsWrongObservationShapes(t *testing.T) {
	learner, _ := newTestLearner(t, 0)
	actor, err := NewFeedForwardActor(learner, 0, 14)
	require.NoError(t, err)

	dims := testDimensions()
	badVehicles := testTimeStep(dims)
	badVehicles.VehicleObservations = mat.NewDense(dims.VehicleNumber+1,
		dims.VehicleObservationSize, nil)
	_, err = actor.SelectActions(badVehicles)
	assert.Error(t, err)

	badEdge := testTimeStep(dims)
	badEdge.Observation = mat.NewVecDense(dims.EdgeObservationSize+1, nil)
	_, err = actor.SelectActions(badEdge)
	assert.Error(t, err)
}

func TestNewFeedForwardActorValidation(t *testing.T) {
	_, err := NewFeedForwardActor(nil, 0, 14)
	assert.Error(t, err)

	learner, _ := newTestLearner(t, 0)
	_, err = NewFeedForwardActor(learner, -1, 14)
	assert.Error(t, err)
}
