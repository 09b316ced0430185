package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

func newTestNet(t *testing.T, batch int) NeuralNet {
	t.Helper()
	g := G.NewGraph()
	net, err := NewMultiHeadMLP(4, batch, 3, g, []int{8, 8},
		[]bool{true, true}, G.GlorotU(1.0), []*Activation{ReLU(), ReLU()})
	require.NoError(t, err)
	return net
}

func TestNewMultiHeadMLPShape(t *testing.T) {
	net := newTestNet(t, 5)

	assert.Equal(t, 5, net.BatchSize())
	assert.Equal(t, 4, net.Features())
	assert.Equal(t, 3, net.Outputs())

	// Two hidden layers plus the auto-added output layer, each with a
	// weight matrix and a bias
	assert.Len(t, net.Learnables(), 6)

	prediction := net.Prediction()
	require.NotNil(t, prediction)
	assert.Equal(t, []int{5, 3}, []int(prediction.Shape()))
}

func TestNewMultiHeadMLPValidation(t *testing.T) {
	g := G.NewGraph()

	// One activation per layer
	_, err := NewMultiHeadMLP(4, 5, 3, g, []int{8, 8}, []bool{true, true},
		G.GlorotU(1.0), []*Activation{ReLU()})
	assert.Error(t, err)

	// One bias flag per layer
	_, err = NewMultiHeadMLP(4, 5, 3, G.NewGraph(), []int{8, 8},
		[]bool{true}, G.GlorotU(1.0), []*Activation{ReLU(), ReLU()})
	assert.Error(t, err)
}

func TestNewMultiHeadMLPFromInputsWithoutFinalLayer(t *testing.T) {
	g := G.NewGraph()
	input := G.NewMatrix(g, G.Float64, G.WithShape(2, 4),
		G.WithName("in"), G.WithInit(G.Zeroes()))

	// The last hidden layer is the output layer, so its size must
	// match the claimed outputs
	_, err := NewMultiHeadMLPFromInputs([]*G.Node{input}, 3, g, []int{8, 5},
		[]bool{true, true}, G.GlorotU(1.0),
		[]*Activation{ReLU(), Sigmoid()}, "", "", false)
	assert.Error(t, err)

	net, err := NewMultiHeadMLPFromInputs([]*G.Node{input}, 3, g,
		[]int{8, 3}, []bool{true, true}, G.GlorotU(1.0),
		[]*Activation{ReLU(), Sigmoid()}, "", "", false)
	require.NoError(t, err)
	assert.Equal(t, 3, net.Outputs())
	assert.Len(t, net.Learnables(), 4)
}

func TestCloneWithBatchKeepsWeights(t *testing.T) {
	net := newTestNet(t, 5)
	clone, err := net.CloneWithBatch(2)
	require.NoError(t, err)

	assert.Equal(t, 2, clone.BatchSize())
	assert.Equal(t, net.Features(), clone.Features())
	assert.Equal(t, net.Outputs(), clone.Outputs())

	weights := net.Learnables()
	cloned := clone.Learnables()
	require.Equal(t, len(weights), len(cloned))
	for i := range weights {
		assert.Equal(t, weights[i].Value().Data(), cloned[i].Value().Data())
	}
}

func TestSetCopiesWeights(t *testing.T) {
	net := newTestNet(t, 5)
	other := newTestNet(t, 5)

	// Separately initialized networks should not agree
	assert.NotEqual(t, net.Learnables()[0].Value().Data(),
		other.Learnables()[0].Value().Data())

	require.NoError(t, other.Set(net))
	for i := range net.Learnables() {
		assert.Equal(t, net.Learnables()[i].Value().Data(),
			other.Learnables()[i].Value().Data())
	}
}

func TestSetDoesNotAliasWeights(t *testing.T) {
	net := newTestNet(t, 5)
	other := newTestNet(t, 5)
	require.NoError(t, other.Set(net))

	// Mutating the source afterwards must not leak into the copy
	data := net.Learnables()[0].Value().Data().([]float64)
	before := other.Learnables()[0].Value().Data().([]float64)[0]
	data[0] += 100
	assert.Equal(t, before,
		other.Learnables()[0].Value().Data().([]float64)[0])
}
