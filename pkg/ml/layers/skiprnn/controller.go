// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package skiprnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
)

// RoundHalfToEven rounds x element-wise to the nearest integer, with ties (exactly .5) rounded to
// the nearest even integer: so 0.5 -> 0, 1.5 -> 2 and 2.5 -> 2.
//
// It is built from Floor and comparisons, so the result doesn't depend on the rounding mode
// implemented by the backend. It has no gradient.
func RoundHalfToEven(x *Node) *Node {
	x = StopGradient(x)
	floor := Floor(x)
	diff := Sub(x, floor)
	half := ConstAs(x, 0.5)
	floorIsOdd := Equal(Abs(Mod(floor, ConstAs(x, 2))), ConstAs(x, 1))
	roundUp := LogicalOr(
		GreaterThan(diff, half),
		LogicalAnd(Equal(diff, half), floorIsOdd))
	return Where(roundUp, OnePlus(floor), floor)
}

// StraightThroughRound returns RoundHalfToEven(x), but with a "straight-through" gradient: during
// back-propagation it behaves as the identity, so the gradient with respect to x passes unchanged.
//
// The forward value is exactly the rounded value: x - StopGradient(x) is 0 for finite x.
func StraightThroughRound(x *Node) *Node {
	rounded := StopGradient(RoundHalfToEven(x))
	return Add(rounded, Sub(x, StopGradient(x)))
}

// AdvanceUpdateGate implements the update gate controller shared by all Skip RNN cells.
//
// Given the update probability and the cumulative update probability from the previous step
// (both shaped [batchSize, 1], with values in [0, 1]), it returns:
//
//   - gate: binary (0 or 1) per example, StraightThroughRound(cum), where
//     cum = cumProb + min(prob, 1 - cumProb).
//   - cumProbNext: 0 where the gate fired, cum otherwise.
func AdvanceUpdateGate(prob, cumProb *Node) (gate, cumProbNext *Node) {
	cum := Add(cumProb, Min(prob, OneMinus(cumProb)))
	gate = StraightThroughRound(cum)
	cumProbNext = Mul(OneMinus(gate), cum)
	return
}

// applyGate returns gate*candidate + (1-gate)*previous. The gate is shaped [batchSize, 1] and is
// broadcast over the features.
//
// For a gate of 0 the result is exactly previous (for finite candidates), and for 1 exactly candidate.
// Gradients reach the gate through the blend.
func applyGate(gate, candidate, previous *Node) *Node {
	return Add(Mul(gate, candidate), Mul(OneMinus(gate), previous))
}

// gatedUpdateState returns the new UpdateState after a step with the given gate.
func gatedUpdateState(gate, probCandidate *Node, prev *UpdateState, cumProbNext *Node) *UpdateState {
	return &UpdateState{
		Prob:    applyGate(gate, probCandidate, prev.Prob),
		CumProb: applyGate(gate, ZerosLike(cumProbNext), cumProbNext),
	}
}
