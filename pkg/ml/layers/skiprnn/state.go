// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package skiprnn

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
)

// UpdateState holds the update probability data carried across timesteps.
// Both values are shaped [batchSize, 1] and are within [0, 1].
type UpdateState struct {
	// Prob is the update probability computed in the last step the gate fired.
	Prob *Node

	// CumProb is the accumulated update probability since the gate last fired.
	CumProb *Node
}

// LSTMState is the state of one layer of a Skip-LSTM.
//
// Update is only set for the last layer (or the only layer), since the update gate is shared
// by all layers of a stack. It is nil for the other layers.
type LSTMState struct {
	Cell, Hidden *Node
	Update       *UpdateState
}

// GRUState is the state of one layer of a Skip-GRU. See LSTMState about the Update field.
type GRUState struct {
	Hidden *Node
	Update *UpdateState
}

// Output of one step of a Skip RNN.
type Output struct {
	// Hidden is the new hidden state of the (last) layer, shaped [batchSize, hiddenSize].
	Hidden *Node

	// Gate is the binary update gate used in the step, shaped [batchSize, 1]: 1 where the
	// state was updated, 0 where it was carried unchanged.
	Gate *Node
}

// InitialUpdateState returns the conventional initial update state: Prob = 1 and CumProb = 0,
// which makes the gate fire on the first step.
func InitialUpdateState(g *Graph, dtype dtypes.DType, batchSize int) *UpdateState {
	shape := shapes.Make(dtype, batchSize, 1)
	return &UpdateState{
		Prob:    Ones(g, shape),
		CumProb: Zeros(g, shape),
	}
}

// InitialLSTMStates returns zero cell and hidden states for numLayers layers, with the last one
// holding InitialUpdateState.
func InitialLSTMStates(g *Graph, dtype dtypes.DType, batchSize, hiddenSize, numLayers int) []LSTMState {
	checkNumLayers(numLayers)
	shape := shapes.Make(dtype, batchSize, hiddenSize)
	states := make([]LSTMState, numLayers)
	for ii := range states {
		states[ii].Cell = Zeros(g, shape)
		states[ii].Hidden = Zeros(g, shape)
	}
	states[numLayers-1].Update = InitialUpdateState(g, dtype, batchSize)
	return states
}

// InitialGRUStates returns zero hidden states for numLayers layers, with the last one
// holding InitialUpdateState.
func InitialGRUStates(g *Graph, dtype dtypes.DType, batchSize, hiddenSize, numLayers int) []GRUState {
	checkNumLayers(numLayers)
	shape := shapes.Make(dtype, batchSize, hiddenSize)
	states := make([]GRUState, numLayers)
	for ii := range states {
		states[ii].Hidden = Zeros(g, shape)
	}
	states[numLayers-1].Update = InitialUpdateState(g, dtype, batchSize)
	return states
}

func checkNumLayers(numLayers int) {
	if numLayers < 1 {
		exceptions.Panicf("skiprnn: numLayers must be >= 1, got %d", numLayers)
	}
}
