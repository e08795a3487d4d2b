// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package skiprnn

import (
	"math"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/stretchr/testify/require"
)

// testLayer holds deterministic weights for one layer, both as Go values (for the reference
// implementation below) and convertible to graph constants.
type testLayer struct {
	inputsW, recurrentW [][]float32
	inputsB, recurrentB []float32
	updateW             [][]float32
	updateB             []float32
}

func makeMatrix(rows, cols int, seed float64) [][]float32 {
	m := make([][]float32, rows)
	for ii := range m {
		m[ii] = makeVector(cols, seed+float64(ii*cols)*0.37)
	}
	return m
}

func makeVector(size int, seed float64) []float32 {
	v := make([]float32, size)
	for ii := range v {
		v[ii] = float32(0.5 * math.Sin(seed+float64(ii)*0.37))
	}
	return v
}

func newTestLayer(numGates, featuresSize, hiddenSize int, seed float64) testLayer {
	return testLayer{
		inputsW:    makeMatrix(numGates*hiddenSize, featuresSize, seed),
		recurrentW: makeMatrix(numGates*hiddenSize, hiddenSize, seed+1),
		inputsB:    makeVector(numGates*hiddenSize, seed+2),
		recurrentB: makeVector(numGates*hiddenSize, seed+3),
		updateW:    makeMatrix(1, hiddenSize, seed+4),
		updateB:    makeVector(1, seed+5),
	}
}

// zeroTestLayer has all weights and biases set to 0, so every gate pre-activation is 0.
func zeroTestLayer(numGates, featuresSize, hiddenSize int) testLayer {
	return testLayer{
		inputsW:    make2D(numGates*hiddenSize, featuresSize),
		recurrentW: make2D(numGates*hiddenSize, hiddenSize),
		inputsB:    make([]float32, numGates*hiddenSize),
		recurrentB: make([]float32, numGates*hiddenSize),
		updateW:    make2D(1, hiddenSize),
		updateB:    make([]float32, 1),
	}
}

func make2D(rows, cols int) [][]float32 {
	m := make([][]float32, rows)
	for ii := range m {
		m[ii] = make([]float32, cols)
	}
	return m
}

func (l testLayer) weights(g *Graph) *Weights {
	return &Weights{
		InputsW:    Const(g, l.inputsW),
		RecurrentW: Const(g, l.recurrentW),
		InputsB:    Const(g, l.inputsB),
		RecurrentB: Const(g, l.recurrentB),
		UpdateW:    Const(g, l.updateW),
		UpdateB:    Const(g, l.updateB),
	}
}

// Reference implementation, one example at a time, in float64.

func refLinear(x []float64, w [][]float32, b []float32) []float64 {
	y := make([]float64, len(w))
	for jj, row := range w {
		y[jj] = float64(b[jj])
		for ii, v := range row {
			y[jj] += x[ii] * float64(v)
		}
	}
	return y
}

func refSigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func refLSTMCandidate(l testLayer, x, prevCell, prevHidden []float64) (cell, hidden []float64) {
	hiddenSize := len(prevCell)
	fromInput := refLinear(x, l.inputsW, l.inputsB)
	fromHidden := refLinear(prevHidden, l.recurrentW, l.recurrentB)
	gate := func(group, idx int) float64 {
		return fromInput[group*hiddenSize+idx] + fromHidden[group*hiddenSize+idx]
	}
	cell = make([]float64, hiddenSize)
	hidden = make([]float64, hiddenSize)
	for ii := range hiddenSize {
		in := refSigmoid(gate(0, ii))
		forget := refSigmoid(gate(1, ii))
		candidate := math.Tanh(gate(2, ii))
		out := refSigmoid(gate(3, ii))
		cell[ii] = forget*prevCell[ii] + in*candidate
		hidden[ii] = out * math.Tanh(cell[ii])
	}
	return
}

func refGRUCandidate(l testLayer, x, prevHidden []float64) []float64 {
	hiddenSize := len(prevHidden)
	fromInput := refLinear(x, l.inputsW, l.inputsB)
	fromHidden := refLinear(prevHidden, l.recurrentW, l.recurrentB)
	hidden := make([]float64, hiddenSize)
	for ii := range hiddenSize {
		reset := refSigmoid(fromInput[ii] + fromHidden[ii])
		update := refSigmoid(fromInput[hiddenSize+ii] + fromHidden[hiddenSize+ii])
		newGate := math.Tanh(fromInput[2*hiddenSize+ii] + reset*fromHidden[2*hiddenSize+ii])
		hidden[ii] = newGate + update*(prevHidden[ii]-newGate)
	}
	return hidden
}

func refUpdateProb(l testLayer, candidate []float64) float64 {
	return refSigmoid(refLinear(candidate, l.updateW, l.updateB)[0])
}

func toFloat64(x []float32) []float64 {
	y := make([]float64, len(x))
	for ii, v := range x {
		y[ii] = float64(v)
	}
	return y
}

func requireRowInDelta(t *testing.T, want []float64, got []float32, delta float64, msgAndArgs ...any) {
	t.Helper()
	require.Len(t, got, len(want), msgAndArgs...)
	for ii := range want {
		require.InDelta(t, want[ii], float64(got[ii]), delta, msgAndArgs...)
	}
}
