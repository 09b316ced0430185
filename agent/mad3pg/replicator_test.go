package mad3pg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func denseOf(values ...float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(len(values)),
		tensor.WithBacking(values))
}

func TestReduceMeanGradsSingleReplica(t *testing.T) {
	replicator := NewSingleReplica()

	grads := []*tensor.Dense{denseOf(1, 2, 3), nil, denseOf(-4)}
	reduced, err := replicator.ReduceMeanGrads([][]*tensor.Dense{grads})
	require.NoError(t, err)
	require.Len(t, reduced, 3)

	assert.Equal(t, []float64{1, 2, 3}, reduced[0].Data().([]float64))
	assert.Nil(t, reduced[1])
	assert.Equal(t, []float64{-4}, reduced[2].Data().([]float64))
}

func TestReduceMeanGradsAverages(t *testing.T) {
	replicas := [][]*tensor.Dense{
		{denseOf(1, 2), denseOf(10)},
		{denseOf(3, 6), denseOf(-10)},
	}

	reduced, err := reduceMeanGrads(replicas)
	require.NoError(t, err)
	require.Len(t, reduced, 2)
	assert.InDeltaSlice(t, []float64{2, 4}, reduced[0].Data().([]float64),
		1e-12)
	assert.InDeltaSlice(t, []float64{0}, reduced[1].Data().([]float64),
		1e-12)
}

func TestReduceMeanGradsNilPropagates(t *testing.T) {
	// A parameter with no gradient on one replica has no gradient at
	// all
	replicas := [][]*tensor.Dense{
		{denseOf(1, 2), nil},
		{nil, denseOf(5)},
	}

	reduced, err := reduceMeanGrads(replicas)
	require.NoError(t, err)
	assert.Nil(t, reduced[0])
	assert.Nil(t, reduced[1])
}

func TestReduceMeanGradsMisaligned(t *testing.T) {
	replicas := [][]*tensor.Dense{
		{denseOf(1), denseOf(2)},
		{denseOf(1)},
	}
	_, err := reduceMeanGrads(replicas)
	assert.Error(t, err)

	_, err = reduceMeanGrads(nil)
	assert.Error(t, err)
}

func TestReduceMeanGradsLeavesReplicasIntact(t *testing.T) {
	first := denseOf(2, 4)
	second := denseOf(4, 8)
	_, err := reduceMeanGrads([][]*tensor.Dense{{first}, {second}})
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 4}, first.Data().([]float64))
	assert.Equal(t, []float64{4, 8}, second.Data().([]float64))
}

func TestClipByGlobalNormUnderLimit(t *testing.T) {
	grads := []*tensor.Dense{denseOf(3), nil, denseOf(4)}
	require.NoError(t, clipByGlobalNorm(grads, 10))

	// Norm 5 is under the limit, the gradients are untouched
	assert.Equal(t, []float64{3}, grads[0].Data().([]float64))
	assert.Equal(t, []float64{4}, grads[2].Data().([]float64))
}

func TestClipByGlobalNormRescales(t *testing.T) {
	grads := []*tensor.Dense{denseOf(3), nil, denseOf(4)}
	require.NoError(t, clipByGlobalNorm(grads, 1))

	// The joint norm is rescaled to the limit in place
	var sumSquares float64
	for _, grad := range grads {
		if grad == nil {
			continue
		}
		for _, v := range grad.Data().([]float64) {
			sumSquares += v * v
		}
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-12)
	assert.InDelta(t, 0.6, grads[0].Data().([]float64)[0], 1e-12)
	assert.InDelta(t, 0.8, grads[2].Data().([]float64)[0], 1e-12)
}

func TestClipByGlobalNormRejectsNonPositiveLimit(t *testing.T) {
	assert.Error(t, clipByGlobalNorm(nil, 0))
	assert.Error(t, clipByGlobalNorm(nil, -1))
}
