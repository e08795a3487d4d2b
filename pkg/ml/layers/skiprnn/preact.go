// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package skiprnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/nn"
)

// gateProjections returns the affine projections of the layer input and of the previous hidden
// state, each split in numGates groups along the feature axis, shaped [batchSize, hiddenSize].
func gateProjections(x, prevHidden *Node, w *Weights, numGates int) (fromInput, fromHidden []*Node) {
	fromInput = Split(nn.Linear(x, w.InputsW, w.InputsB), -1, numGates)
	fromHidden = Split(nn.Linear(prevHidden, w.RecurrentW, w.RecurrentB), -1, numGates)
	return
}

// preactivations returns x·InputsWᵗ + InputsB + prevHidden·RecurrentWᵗ + RecurrentB, split in
// numGates groups.
func preactivations(x, prevHidden *Node, w *Weights, numGates int) []*Node {
	fromInput, fromHidden := gateProjections(x, prevHidden, w, numGates)
	gates := make([]*Node, numGates)
	for ii := range gates {
		gates[ii] = Add(fromInput[ii], fromHidden[ii])
	}
	return gates
}
