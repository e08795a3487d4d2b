// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package skiprnn

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/nn"
)

const (
	numLSTMGates = 4
	numGRUGates  = 3
)

// Weights of one layer of a Skip RNN cell, all following the nn.Linear convention (y = x·Wᵗ + b).
//
// With numGates = 4 for the LSTM (input, forget, cell, output) or 3 for the GRU (reset, update, new):
//
//   - InputsW: [numGates*hiddenSize, featuresSize], where featuresSize is the input size of the layer:
//     the input features for the first layer, hiddenSize for the other layers.
//   - RecurrentW: [numGates*hiddenSize, hiddenSize].
//   - InputsB, RecurrentB: optional (can be nil), [numGates*hiddenSize].
//   - UpdateW: [1, hiddenSize], projects the candidate (cell state for LSTM, hidden state for GRU)
//     to the update probability logit. Only used in the last layer, it can be nil in the others.
//   - UpdateB: optional (can be nil), [1].
type Weights struct {
	InputsW, RecurrentW *Node
	InputsB, RecurrentB *Node
	UpdateW, UpdateB    *Node
}

// layerWeights returns the weights for the given layer, creating them in the context if needed.
func (c *Config) layerWeights(g *Graph, layerIdx, featuresSize, numGates int, dtype dtypes.DType) *Weights {
	if c.userWeights {
		return c.weights[layerIdx]
	}
	if c.ctx == nil {
		exceptions.Panicf("skiprnn: Config created without a context requires weights given with WithWeights")
	}
	ctx := c.ctx.In(LayerScope(layerIdx))
	gatesSize := numGates * c.hiddenSize
	w := &Weights{
		InputsW:    ctx.VariableWithShape("inputsW", shapes.Make(dtype, gatesSize, featuresSize)).ValueGraph(g),
		RecurrentW: ctx.VariableWithShape("recurrentW", shapes.Make(dtype, gatesSize, c.hiddenSize)).ValueGraph(g),
	}
	if c.useBias {
		w.InputsB = ctx.VariableWithShape("inputsB", shapes.Make(dtype, gatesSize)).ValueGraph(g)
		w.RecurrentB = ctx.VariableWithShape("recurrentB", shapes.Make(dtype, gatesSize)).ValueGraph(g)
	}
	if layerIdx == c.numLayers-1 {
		w.UpdateW = ctx.VariableWithShape("updateW", shapes.Make(dtype, 1, c.hiddenSize)).ValueGraph(g)
		if c.useBias {
			w.UpdateB = ctx.VariableWithShape("updateB", shapes.Make(dtype, 1)).ValueGraph(g)
		}
	}
	return w
}

// updateProbability returns the candidate update probability, shaped [batchSize, 1], from the
// candidate state of the last layer.
func updateProbability(candidate *Node, w *Weights) *Node {
	if w.UpdateW == nil {
		exceptions.Panicf("skiprnn: the last layer weights must include UpdateW")
	}
	return Sigmoid(nn.Linear(candidate, w.UpdateW, w.UpdateB))
}
