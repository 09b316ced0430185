// Package network implements feed forward neural networks on Gorgonia
// computational graphs
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a feed forward neural network. A NeuralNet is bound to
// a single computational graph and a fixed input batch size. Clones
// share weights by value copy only, never by reference, so a cloned
// network can live on a separate graph and be run by a separate VM.
type NeuralNet interface {
	// Graph returns the computational graph the network is built on
	Graph() *G.ExprGraph

	// Clone clones the network onto a new graph with the same batch
	// size
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network onto a new graph with a new
	// input batch size
	CloneWithBatch(int) (NeuralNet, error)

	// CloneWithInputTo clones the network onto graph, reading its
	// input from the given nodes. Multiple input nodes are
	// concatenated along axis before the first layer.
	CloneWithInputTo(axis int, inputs []*G.Node,
		graph *G.ExprGraph) (NeuralNet, error)

	// BatchSize returns the number of rows in the network's input
	BatchSize() int

	// Features returns the number of input features per row
	Features() int

	// Outputs returns the number of output values per row
	Outputs() int

	// SetInput sets the value of the network's input node. It is
	// legal only on networks constructed with their own input node,
	// not on clones reading from external nodes.
	SetInput([]float64) error

	// Set copies the weights of another network into this one
	Set(NeuralNet) error

	// Polyak sets this network's weights to a Polyak average between
	// its weights and another network's weights
	Polyak(NeuralNet, float64) error

	// Learnables returns the learnable nodes of the network
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad

	// Output returns the value of the network's output after the last
	// VM run
	Output() G.Value

	// Prediction returns the graph node holding the network's output
	Prediction() *G.Node
}
