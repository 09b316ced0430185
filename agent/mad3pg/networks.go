package mad3pg

import (
	"fmt"

	"github.com/neardws/aovrl/network"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// reluActivations returns n ReLU activations
func reluActivations(n int) []*network.Activation {
	activations := make([]*network.Activation, n)
	for i := range activations {
		activations[i] = network.ReLU()
	}
	return activations
}

// allBiases returns n true bias flags
func allBiases(n int) []bool {
	biases := make([]bool, n)
	for i := range biases {
		biases[i] = true
	}
	return biases
}

// newObservationNet returns an MLP embedding raw observations into
// embedding features, reading its input from the given node
func newObservationNet(input *G.Node, g *G.ExprGraph, hidden []int,
	embedding int, init G.InitWFn, prefix string) (network.NeuralNet,
	error) {
	net, err := network.NewMultiHeadMLPFromInputs([]*G.Node{input},
		embedding, g, hidden, allBiases(len(hidden)), init,
		reluActivations(len(hidden)), prefix, "Obs", true)
	if err != nil {
		return nil, fmt.Errorf("newobservationnet: %v", err)
	}
	return net, nil
}

// newPolicyNet returns a deterministic policy MLP reading from the
// given observation embedding node. The final layer is a sigmoid so
// every action component lies in [0, 1].
func newPolicyNet(input *G.Node, g *G.ExprGraph, hidden []int,
	actionDim int, init G.InitWFn, prefix string) (network.NeuralNet,
	error) {
	sizes := append(append([]int{}, hidden...), actionDim)
	activations := append(reluActivations(len(hidden)), network.Sigmoid())

	net, err := network.NewMultiHeadMLPFromInputs([]*G.Node{input},
		actionDim, g, sizes, allBiases(len(sizes)), init, activations,
		prefix, "Policy", false)
	if err != nil {
		return nil, fmt.Errorf("newpolicynet: %v", err)
	}
	return net, nil
}

// newCriticNet returns a categorical critic MLP over atoms logits,
// reading the observation embedding and the joint action from the
// given nodes
func newCriticNet(embedding, jointAction *G.Node, g *G.ExprGraph,
	hidden []int, atoms int, init G.InitWFn, prefix string) (
	network.NeuralNet, error) {
	net, err := network.NewMultiHeadMLPFromInputs(
		[]*G.Node{embedding, jointAction}, atoms, g, hidden,
		allBiases(len(hidden)), init, reluActivations(len(hidden)), prefix,
		"Critic", true)
	if err != nil {
		return nil, fmt.Errorf("newcriticnet: %v", err)
	}
	return net, nil
}

// inputMatrix adds a named zero-initialized input node of the given
// shape to g
func inputMatrix(g *G.ExprGraph, rows, cols int, name string) *G.Node {
	return G.NewMatrix(g, tensor.Float64, G.WithShape(rows, cols),
		G.WithName(name), G.WithInit(G.Zeroes()))
}
