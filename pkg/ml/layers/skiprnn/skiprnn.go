// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package skiprnn implements the per-step computation of "Skip RNN" cells [1]: LSTM and GRU cells
// augmented with a learned, per-example binary decision of whether to update the recurrent state
// at a given timestep.
//
// Each step computes the usual LSTM (or GRU) candidate state, plus a candidate "update probability"
// from it. The update probability carried from the previous step is accumulated into a "cumulative
// update probability", which is rounded (half-to-even) into a binary update gate. If the gate is 0
// for an example, its whole state is carried unchanged to the next step. If it is 1, the candidate
// state is adopted and the cumulative probability restarts from 0.
//
// The rounding exposes a straight-through gradient (see StraightThroughRound), so the update
// probability projection remains trainable.
//
// Multi-layer stacks (Config.MultiSkipLSTM and Config.MultiSkipGRU) compute one shared gate from the
// last layer, and apply it to all layers.
//
// Each step is instantiated as its own graph nodes, the caller is responsible for looping over the
// sequence and threading the returned state into the next call. Notice that "skipping" is done by
// masking: every candidate is always computed.
//
// Example, a 2-layer Skip-LSTM over a sequence x shaped [batchSize, seqLen, featuresSize]:
//
//	cell := skiprnn.New(ctx.In("skip_lstm"), hiddenSize).NumLayers(2)
//	states := skiprnn.InitialLSTMStates(g, dtype, batchSize, hiddenSize, 2)
//	for t := range seqLen {
//		xT := Squeeze(SliceAxis(x, 1, AxisElem(t)), 1)
//		var out skiprnn.Output
//		out, states = cell.MultiSkipLSTM(xT, states)
//		...
//	}
//
// [1] "Skip RNN: Learning to Skip State Updates in Recurrent Neural Networks", Víctor Campos, Brendan Jou,
// Xavier Giró-i-Nieto, Jordi Torres, Shih-Fu Chang, https://arxiv.org/abs/1708.06834
package skiprnn

import (
	"fmt"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// ParamNumLayers is the context hyperparameter with the default number of stacked layers.
	// The default is 1.
	ParamNumLayers = "skiprnn_num_layers"

	// ParamActivation is the context hyperparameter with the activation used for the cell candidate
	// (and, for LSTMs, the cell state). See activations.TypeValues for valid values.
	// The default is "tanh".
	ParamActivation = "skiprnn_activation"

	// ParamNormalization is the context hyperparameter with the normalization applied to the gate
	// pre-activations, before their nonlinearity. Valid values are those in layers.KnownNormalizers.
	// The default is "none".
	ParamNormalization = "skiprnn_normalization"

	// ParamUseBias is the context hyperparameter that defines whether biases are used for the
	// affine maps created from the context. The default is true.
	ParamUseBias = "skiprnn_use_bias"
)

// ErrInvalidConfiguration is raised (panic) when the number of layers of a Config doesn't match the
// number of states (or weights) given, or when the state lacks the update probability data.
var ErrInvalidConfiguration = errors.New("skiprnn: invalid configuration")

// NormalizerFn normalizes one group of gate pre-activations, shaped [batchSize, hiddenSize].
// The context is already scoped uniquely for the layer and group being normalized.
type NormalizerFn func(ctx *context.Context, x *Node) *Node

// Config holds the configuration of a Skip RNN cell (or stack of cells).
// Create it with New, configure it, and then call one of the step methods for each timestep.
type Config struct {
	ctx        *context.Context
	hiddenSize int
	numLayers  int
	activation activations.Type
	useBias    bool

	normalization string
	normalizer    NormalizerFn

	// weights given by the user, or created on demand from the context (one per layer).
	weights     []*Weights
	userWeights bool
}

// New creates a configuration for a Skip RNN cell with the given hidden state size.
//
// Weights are created as variables in ctx (under the scopes "layer_<k>"), unless they are given
// with Config.WithWeights, in which case ctx can be nil.
//
// Variables are reused across calls, so the same Config (or a Config with the same context scope)
// can be called once per timestep.
func New(ctx *context.Context, hiddenSize int) *Config {
	if hiddenSize <= 0 {
		exceptions.Panicf("skiprnn: hiddenSize must be > 0, got %d", hiddenSize)
	}
	c := &Config{
		hiddenSize:    hiddenSize,
		numLayers:     1,
		activation:    activations.TypeTanh,
		useBias:       true,
		normalization: "none",
	}
	if ctx != nil {
		c.ctx = ctx.Checked(false)
		c.NumLayers(context.GetParamOr(ctx, ParamNumLayers, 1))
		c.activation = activations.FromName(context.GetParamOr(ctx, ParamActivation, "tanh"))
		c.useBias = context.GetParamOr(ctx, ParamUseBias, true)
		c.Normalization(context.GetParamOr(ctx, ParamNormalization, "none"))
	}
	return c
}

// NumLayers configures the number of stacked layers. The default is 1, or the value of
// the hyperparameter ParamNumLayers.
//
// Config.SkipLSTM and Config.SkipGRU require 1 layer.
func (c *Config) NumLayers(numLayers int) *Config {
	checkNumLayers(numLayers)
	c.numLayers = numLayers
	return c
}

// HiddenSize of the cell state.
func (c *Config) HiddenSize() int { return c.hiddenSize }

// Activation sets the activation used for the candidate values (and, for the LSTM, on the cell
// state when computing the hidden state). The default is tanh.
func (c *Config) Activation(activation activations.Type) *Config {
	c.activation = activation
	return c
}

// UseBias configures whether biases are created for the affine maps. Only relevant
// if weights are created from the context. The default is true.
func (c *Config) UseBias(useBias bool) *Config {
	c.useBias = useBias
	return c
}

// Normalization selects by name one of the layers.KnownNormalizers to apply to each group of gate
// pre-activations: for the LSTM the input, forget, cell and output groups; for the GRU the reset and
// update groups. "none" (or "") disables it, and it is the default.
//
// Normalization variables (if any) are created in the context, so it requires a non-nil context.
func (c *Config) Normalization(normalization string) *Config {
	if normalization == "" || normalization == "none" {
		c.normalization = "none"
		c.normalizer = nil
		return c
	}
	fn, found := layers.KnownNormalizers[normalization]
	if !found {
		exceptions.Panicf("skiprnn: unknown normalization %q given: valid values are %v",
			normalization, xslices.SortedKeys(layers.KnownNormalizers))
	}
	c.normalization = normalization
	c.normalizer = fn
	return c
}

// NormalizeWith sets a custom normalization function for the gate pre-activations, see NormalizerFn.
// If set to nil, normalization is disabled.
func (c *Config) NormalizeWith(normalizer NormalizerFn) *Config {
	c.normalizer = normalizer
	c.normalization = "custom"
	if normalizer == nil {
		c.normalization = "none"
	}
	return c
}

// WithWeights sets the weights to use, one per layer. It also sets the number of layers.
// See Weights for the expected shapes.
func (c *Config) WithWeights(weights ...*Weights) *Config {
	if len(weights) == 0 {
		exceptions.Panicf("skiprnn: WithWeights requires at least one layer of weights")
	}
	c.weights = weights
	c.userWeights = true
	c.numLayers = len(weights)
	return c
}

// checkLayers panics with ErrInvalidConfiguration if numStates doesn't match the configuration.
func (c *Config) checkLayers(method string, numStates int) {
	if numStates != c.numLayers {
		panic(errors.Wrapf(ErrInvalidConfiguration, "%s: got %d layer(s) of state, but configured with %d layer(s)",
			method, numStates, c.numLayers))
	}
	if c.userWeights && len(c.weights) != c.numLayers {
		panic(errors.Wrapf(ErrInvalidConfiguration, "%s: got %d layer(s) of weights, but configured with %d layer(s)",
			method, len(c.weights), c.numLayers))
	}
}

// normalize applies the configured normalization (if any) to the given group of pre-activations.
func (c *Config) normalize(layerIdx int, group string, x *Node) *Node {
	if c.normalizer == nil {
		return x
	}
	if c.ctx == nil {
		exceptions.Panicf("skiprnn: normalization %q requires a context, but Config was created with a nil one",
			c.normalization)
	}
	return c.normalizer(c.ctx.In(LayerScope(layerIdx)).In("norm_"+group), x)
}

// LayerScope returns the name of the context sub-scope holding the variables of the given layer.
func LayerScope(layerIdx int) string {
	return fmt.Sprintf("layer_%d", layerIdx)
}

func (c *Config) logBuild(method string, x *Node) {
	if klog.V(1).Enabled() {
		klog.Infof("skiprnn.%s: x.shape=%s, hiddenSize=%d, numLayers=%d, activation=%s, normalization=%s",
			method, x.Shape(), c.hiddenSize, c.numLayers, c.activation, c.normalization)
	}
}
