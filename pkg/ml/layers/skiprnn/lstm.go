// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package skiprnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"
)

// lstmCandidate computes the (ungated) LSTM candidate cell and hidden states for one layer.
func (c *Config) lstmCandidate(layerIdx int, x *Node, prev LSTMState, w *Weights) (cellTilde, hiddenTilde *Node) {
	gates := preactivations(x, prev.Hidden, w, numLSTMGates)
	for ii, group := range []string{"input", "forget", "cell", "output"} {
		gates[ii] = c.normalize(layerIdx, group, gates[ii])
	}
	inputGate := Sigmoid(gates[0])
	forgetGate := Sigmoid(gates[1])
	cellGate := activations.Apply(c.activation, gates[2])
	outputGate := Sigmoid(gates[3])

	cellTilde = Add(Mul(forgetGate, prev.Cell), Mul(inputGate, cellGate))
	hiddenTilde = Mul(outputGate, activations.Apply(c.activation, cellTilde))
	return
}

// SkipLSTM executes one step of a single layer Skip-LSTM cell.
//
// x is shaped [batchSize, featuresSize], and state must have its Update set (see InitialLSTMStates).
// It returns the output (new hidden state and binary update gate) and the new state.
//
// It panics with ErrInvalidConfiguration if the Config has more than one layer: use MultiSkipLSTM
// instead.
func (c *Config) SkipLSTM(x *Node, state LSTMState) (Output, LSTMState) {
	c.checkLayers("SkipLSTM", 1)
	if state.Update == nil {
		panic(errors.Wrap(ErrInvalidConfiguration, "SkipLSTM: state.Update is nil"))
	}
	c.logBuild("SkipLSTM", x)
	w := c.layerWeights(x.Graph(), 0, x.Shape().Dim(-1), numLSTMGates, x.DType())
	cellTilde, hiddenTilde := c.lstmCandidate(0, x, state, w)
	probTilde := updateProbability(cellTilde, w)
	gate, cumProbNext := AdvanceUpdateGate(state.Update.Prob, state.Update.CumProb)

	newState := LSTMState{
		Cell:   applyGate(gate, cellTilde, state.Cell),
		Hidden: applyGate(gate, hiddenTilde, state.Hidden),
		Update: gatedUpdateState(gate, probTilde, state.Update, cumProbNext),
	}
	return Output{Hidden: newState.Hidden, Gate: gate}, newState
}

// MultiSkipLSTM executes one step of a stack of Skip-LSTM layers, sharing one update gate.
//
// The input of each layer is the candidate hidden state of the previous one. The update probability
// is computed from the candidate cell state of the last layer, and the resulting gate is applied to
// all layers: an example either updates all layers or none.
//
// states must have one entry per layer (see NumLayers), and only the last one holds an Update.
// It panics with ErrInvalidConfiguration otherwise.
func (c *Config) MultiSkipLSTM(x *Node, states []LSTMState) (Output, []LSTMState) {
	c.checkLayers("MultiSkipLSTM", len(states))
	last := states[len(states)-1]
	if last.Update == nil {
		panic(errors.Wrap(ErrInvalidConfiguration, "MultiSkipLSTM: the last layer state must have Update set"))
	}
	c.logBuild("MultiSkipLSTM", x)
	g := x.Graph()

	cellTildes := make([]*Node, len(states))
	hiddenTildes := make([]*Node, len(states))
	layerInput := x
	var w *Weights
	for layerIdx, state := range states {
		w = c.layerWeights(g, layerIdx, layerInput.Shape().Dim(-1), numLSTMGates, x.DType())
		cellTildes[layerIdx], hiddenTildes[layerIdx] = c.lstmCandidate(layerIdx, layerInput, state, w)
		layerInput = hiddenTildes[layerIdx]
	}

	// w holds the last layer weights.
	probTilde := updateProbability(cellTildes[len(states)-1], w)
	gate, cumProbNext := AdvanceUpdateGate(last.Update.Prob, last.Update.CumProb)

	newStates := make([]LSTMState, len(states))
	for layerIdx, state := range states {
		newStates[layerIdx] = LSTMState{
			Cell:   applyGate(gate, cellTildes[layerIdx], state.Cell),
			Hidden: applyGate(gate, hiddenTildes[layerIdx], state.Hidden),
		}
	}
	newStates[len(states)-1].Update = gatedUpdateState(gate, probTilde, last.Update, cumProbNext)
	return Output{Hidden: newStates[len(states)-1].Hidden, Gate: gate}, newStates
}
