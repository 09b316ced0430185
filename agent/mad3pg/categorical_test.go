package mad3pg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestSupport(t *testing.T) {
	z := support(-10, 10, 5)
	assert.InDeltaSlice(t, []float64{-10, -5, 0, 5, 10}, z, 1e-12)

	z = support(-150, 150, 51)
	assert.Len(t, z, 51)
	assert.Equal(t, -150.0, z[0])
	assert.Equal(t, 150.0, z[50])
}

func TestProjectDistributionIdentity(t *testing.T) {
	z := support(-10, 10, 5)

	// With zero reward and discount one, the backup maps every atom
	// onto itself
	probs := []float64{0.1, 0.2, 0.4, 0.2, 0.1}
	projected, err := projectDistribution(z, probs, []float64{0},
		[]float64{1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, probs, projected, 1e-12)
}

func TestProjectDistributionShiftsMass(t *testing.T) {
	z := support(-10, 10, 5)

	// A reward of 2.5 moves each atom halfway toward its upper
	// neighbour, splitting its mass evenly between the two
	probs := []float64{0, 0, 1, 0, 0}
	projected, err := projectDistribution(z, probs, []float64{2.5},
		[]float64{1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0.5, 0.5, 0}, projected, 1e-12)
}

func TestProjectDistributionClampsToSupport(t *testing.T) {
	z := support(-10, 10, 5)

	// A backup past either end of the support collapses onto the
	// boundary atom
	probs := []float64{0.25, 0.25, 0.25, 0.25, 0}
	projected, err := projectDistribution(z, probs, []float64{1000},
		[]float64{1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0, 1}, projected, 1e-12)

	projected, err = projectDistribution(z, probs, []float64{-1000},
		[]float64{1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0, 0, 0, 0}, projected, 1e-12)
}

func TestProjectDistributionConservesMass(t *testing.T) {
	z := support(-150, 150, 51)
	atoms := len(z)

	batchSize := 3
	probs := make([]float64, batchSize*atoms)
	for b := 0; b < batchSize; b++ {
		for j := 0; j < atoms; j++ {
			probs[b*atoms+j] = 1.0 / float64(atoms)
		}
	}

	rewards := []float64{-37.2, 0.4, 12.9}
	discounts := []float64{0.996, 0, 0.5}
	projected, err := projectDistribution(z, probs, rewards, discounts)
	require.NoError(t, err)

	for b := 0; b < batchSize; b++ {
		row := projected[b*atoms : (b+1)*atoms]
		assert.InDelta(t, 1.0, floats.Sum(row), 1e-9)
		for _, p := range row {
			assert.GreaterOrEqual(t, p, 0.0)
		}
	}

	// A zero discount concentrates row 1 entirely on the reward
	assert.InDelta(t, 0.4, floats.Dot(z, projected[atoms:2*atoms]), 1e-9)
}

func TestProjectDistributionShapeErrors(t *testing.T) {
	z := support(-10, 10, 5)

	_, err := projectDistribution(z, []float64{1, 0}, []float64{0},
		[]float64{1})
	assert.Error(t, err)

	_, err = projectDistribution(z, []float64{0, 0, 1, 0, 0}, []float64{0},
		[]float64{1, 1})
	assert.Error(t, err)
}

func TestMeanValues(t *testing.T) {
	z := support(-10, 10, 5)

	probs := []float64{
		0, 0, 1, 0, 0,
		0.5, 0, 0, 0, 0.5,
		0, 0, 0, 0, 1,
	}
	means := meanValues(z, probs)
	assert.InDeltaSlice(t, []float64{0, 0, 10}, means, 1e-12)
}
