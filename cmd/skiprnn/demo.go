// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/janpfeifer/must"
	"github.com/skiprnn/skiprnn/pkg/ml/layers/skiprnn"
	"k8s.io/klog/v2"
)

// modelScope is the context scope of the Skip RNN variables.
const modelScope = "skiprnn"

type demoConfig struct {
	cell                            string
	numLayers, hiddenSize, features int
	batchSize, seqLen               int
	activation                      activations.Type
	norm                            string
	updateBias                      float32
	seed                            int64
	withGrad                        bool
}

type demoReport struct {
	cfg         demoConfig
	updateRates []float32 // Fraction of the examples updated, per timestep.
	gradNorm    float32

	numVariables, numParams int
	numBytes                uint64
}

// runDemo creates the Skip RNN variables with random values, and runs it over a random sequence.
func runDemo(backend backends.Backend, cfg demoConfig) *demoReport {
	ctx := context.New()
	ctx.RngStateFromSeed(cfg.seed)
	ctx.SetParams(map[string]any{
		skiprnn.ParamNumLayers:     cfg.numLayers,
		skiprnn.ParamNormalization: cfg.norm,
	})

	// The update probability bias is created here with its initial value, and reused by the cell.
	lastLayerCtx := ctx.In(modelScope).In(skiprnn.LayerScope(cfg.numLayers - 1))
	lastLayerCtx.VariableWithValue("updateB", []float32{cfg.updateBias})

	exec := must.M1(context.NewExec(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		x := ctx.RandomNormal(g, shapes.Make(dtypes.Float32, cfg.batchSize, cfg.seqLen, cfg.features))
		cell := skiprnn.New(ctx.In(modelScope), cfg.hiddenSize).Activation(cfg.activation)
		gates, lastHidden := cfg.unroll(cell, x)

		// gates are shaped [batchSize, 1]: concatenated and averaged over the batch, they give the
		// update rate per timestep.
		outputs := []*Node{ReduceMean(Concatenate(gates, -1), 0)}
		if cfg.withGrad {
			updateW := ctx.GetVariableByScopeAndName(lastLayerCtx.Scope(), "updateW")
			grad := Gradient(ReduceAllSum(lastHidden), updateW.ValueGraph(g))[0]
			outputs = append(outputs, Sqrt(ReduceAllSum(Mul(grad, grad))))
		}
		return outputs
	}))
	outputs := exec.MustExec()

	report := &demoReport{
		cfg:         cfg,
		updateRates: outputs[0].Value().([]float32),
	}
	if cfg.withGrad {
		report.gradNorm = outputs[1].Value().(float32)
	}
	ctx.In(modelScope).EnumerateVariablesInScope(func(v *context.Variable) {
		klog.V(1).Infof("variable %s: %s", v.ScopeAndName(), v.Shape())
		report.numVariables++
		report.numParams += v.Shape().Size()
		report.numBytes += uint64(v.Shape().Memory())
	})
	return report
}

// unroll runs the cell over the sequence x, shaped [batchSize, seqLen, features], starting from the
// initial states. It returns the update gates of every step and the last hidden state.
func (cfg demoConfig) unroll(cell *skiprnn.Config, x *Node) (gates []*Node, lastHidden *Node) {
	g := x.Graph()
	gates = make([]*Node, cfg.seqLen)
	var (
		lstmStates []skiprnn.LSTMState
		gruStates  []skiprnn.GRUState
	)
	if cfg.cell == "lstm" {
		lstmStates = skiprnn.InitialLSTMStates(g, x.DType(), cfg.batchSize, cfg.hiddenSize, cfg.numLayers)
	} else {
		gruStates = skiprnn.InitialGRUStates(g, x.DType(), cfg.batchSize, cfg.hiddenSize, cfg.numLayers)
	}
	for t := range cfg.seqLen {
		xT := Squeeze(SliceAxis(x, 1, AxisElem(t)), 1)
		var out skiprnn.Output
		switch {
		case cfg.cell == "lstm" && cfg.numLayers == 1:
			out, lstmStates[0] = cell.SkipLSTM(xT, lstmStates[0])
		case cfg.cell == "lstm":
			out, lstmStates = cell.MultiSkipLSTM(xT, lstmStates)
		case cfg.numLayers == 1:
			out, gruStates[0] = cell.SkipGRU(xT, gruStates[0])
		default:
			out, gruStates = cell.MultiSkipGRU(xT, gruStates)
		}
		gates[t] = out.Gate
		lastHidden = out.Hidden
	}
	return
}

func (r *demoReport) print() {
	var totalUpdates float64
	for _, rate := range r.updateRates {
		totalUpdates += float64(rate)
	}
	skipped := 1 - totalUpdates/float64(len(r.updateRates))

	fmt.Println(titleStyle.Render("Skip RNN"))
	summary := newPlainTable(lipgloss.Right, lipgloss.Left)
	summary.Row("cell", fmt.Sprintf("skip-%s", r.cfg.cell))
	summary.Row("layers", humanize.Comma(int64(r.cfg.numLayers)))
	summary.Row("hidden size", humanize.Comma(int64(r.cfg.hiddenSize)))
	summary.Row("activation", r.cfg.activation.String())
	summary.Row("normalization", r.cfg.norm)
	summary.Row("# variables", humanize.Comma(int64(r.numVariables)))
	summary.Row("# parameters", humanize.Comma(int64(r.numParams)))
	summary.Row("# bytes", humanize.Bytes(r.numBytes))
	summary.Row("skipped updates", fmt.Sprintf("%.1f%%", 100*skipped))
	if r.cfg.withGrad {
		summary.Row("|∂h/∂updateW|", fmt.Sprintf("%.4g", r.gradNorm))
	}
	fmt.Println(summary.Render())

	fmt.Println(titleStyle.Render("Updates per timestep"))
	steps := newHighlightTable(lipgloss.Right)
	steps.Table.Headers("Step", "Updated", "Skipped")
	for t, rate := range r.updateRates {
		steps.Row(rate == 0, humanize.Comma(int64(t)),
			fmt.Sprintf("%.1f%%", 100*rate), fmt.Sprintf("%.1f%%", 100*(1-rate)))
	}
	fmt.Println(steps.Table.Render())
}
