// Package network implements feed-forward neural networks on Gorgonia
// computational graphs. Networks in this package are function
// approximators for actors and critics: they map batches of
// observation vectors to batches of predictions.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network on a Gorgonia graph. The
// network owns an input node on its graph; SetInput fills that node
// before the graph is run, and Output holds the batch of predictions
// afterwards.
type NeuralNet interface {
	// Graph returns the computational graph the network is built on
	Graph() *G.ExprGraph

	// Clone clones the network onto a fresh graph, copying its weights
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network onto a fresh graph with a new
	// input batch size, copying its weights
	CloneWithBatch(batch int) (NeuralNet, error)

	// BatchSize returns the number of rows in the network's input
	BatchSize() int

	// Features returns the number of input features per batch row
	Features() int

	// Outputs returns the number of predictions per batch row
	Outputs() int

	// SetInput sets the value of the input node before running the
	// graph. The input is row-major with BatchSize() rows of
	// Features() columns.
	SetInput(input []float64) error

	// Set copies the weights of another network of identical
	// architecture into this one
	Set(source NeuralNet) error

	// Learnables returns the weight nodes of the network
	Learnables() G.Nodes

	// Model returns the weight nodes paired with their gradients, in
	// the form Gorgonia solvers expect
	Model() []G.ValueGrad

	// Prediction returns the graph node holding the network output, for
	// building loss functions on top of the network
	Prediction() *G.Node

	// Output returns the value of the prediction node after the last
	// graph run
	Output() G.Value
}

// Layer implements a single layer of a NeuralNet.
type Layer interface {
	fwd(*G.Node) (*G.Node, error)
	CloneTo(g *G.ExprGraph) Layer

	Weights() *G.Node
	Bias() *G.Node
	Activation() *Activation
}
