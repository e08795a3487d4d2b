// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package skiprnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"
)

// gruCandidate computes the (ungated) GRU candidate hidden state for one layer.
//
// Notice the "update" gate here is the GRU's own gate, not the Skip RNN update gate.
func (c *Config) gruCandidate(layerIdx int, x *Node, prev GRUState, w *Weights) *Node {
	fromInput, fromHidden := gateProjections(x, prev.Hidden, w, numGRUGates)
	resetGate := c.normalize(layerIdx, "reset", Add(fromInput[0], fromHidden[0]))
	updateGate := c.normalize(layerIdx, "update", Add(fromInput[1], fromHidden[1]))
	resetGate = Sigmoid(resetGate)
	updateGate = Sigmoid(updateGate)
	newGate := activations.Apply(c.activation, Add(fromInput[2], Mul(resetGate, fromHidden[2])))
	return Add(newGate, Mul(updateGate, Sub(prev.Hidden, newGate)))
}

// SkipGRU executes one step of a single layer Skip-GRU cell.
//
// x is shaped [batchSize, featuresSize], and state must have its Update set (see InitialGRUStates).
// It returns the output (new hidden state and binary update gate) and the new state.
//
// It panics with ErrInvalidConfiguration if the Config has more than one layer: use MultiSkipGRU
// instead.
func (c *Config) SkipGRU(x *Node, state GRUState) (Output, GRUState) {
	c.checkLayers("SkipGRU", 1)
	if state.Update == nil {
		panic(errors.Wrap(ErrInvalidConfiguration, "SkipGRU: state.Update is nil"))
	}
	c.logBuild("SkipGRU", x)
	w := c.layerWeights(x.Graph(), 0, x.Shape().Dim(-1), numGRUGates, x.DType())
	hiddenTilde := c.gruCandidate(0, x, state, w)
	probTilde := updateProbability(hiddenTilde, w)
	gate, cumProbNext := AdvanceUpdateGate(state.Update.Prob, state.Update.CumProb)

	newState := GRUState{
		Hidden: applyGate(gate, hiddenTilde, state.Hidden),
		Update: gatedUpdateState(gate, probTilde, state.Update, cumProbNext),
	}
	return Output{Hidden: newState.Hidden, Gate: gate}, newState
}

// MultiSkipGRU executes one step of a stack of Skip-GRU layers, sharing one update gate computed
// from the candidate hidden state of the last layer. See MultiSkipLSTM for details.
func (c *Config) MultiSkipGRU(x *Node, states []GRUState) (Output, []GRUState) {
	c.checkLayers("MultiSkipGRU", len(states))
	last := states[len(states)-1]
	if last.Update == nil {
		panic(errors.Wrap(ErrInvalidConfiguration, "MultiSkipGRU: the last layer state must have Update set"))
	}
	c.logBuild("MultiSkipGRU", x)
	g := x.Graph()

	hiddenTildes := make([]*Node, len(states))
	layerInput := x
	var w *Weights
	for layerIdx, state := range states {
		w = c.layerWeights(g, layerIdx, layerInput.Shape().Dim(-1), numGRUGates, x.DType())
		hiddenTildes[layerIdx] = c.gruCandidate(layerIdx, layerInput, state, w)
		layerInput = hiddenTildes[layerIdx]
	}

	probTilde := updateProbability(hiddenTildes[len(states)-1], w)
	gate, cumProbNext := AdvanceUpdateGate(last.Update.Prob, last.Update.CumProb)

	newStates := make([]GRUState, len(states))
	for layerIdx, state := range states {
		newStates[layerIdx].Hidden = applyGate(gate, hiddenTildes[layerIdx], state.Hidden)
	}
	newStates[len(states)-1].Update = gatedUpdateState(gate, probTilde, last.Update, cumProbNext)
	return Output{Hidden: newStates[len(states)-1].Hidden, Gate: gate}, newStates
}
