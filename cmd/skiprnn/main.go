// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// skiprnn runs a randomly initialized Skip RNN (LSTM or GRU) over a random input sequence, and
// reports how often the state was updated at each timestep.
//
// Example:
//
//	$ go run ./cmd/skiprnn -cell=gru -layers=2 -seq=30 -update_bias=-1 -grad
package main

import (
	"flag"
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagCell       = flag.String("cell", "lstm", "Type of Skip RNN cell: \"lstm\" or \"gru\".")
	flagLayers     = flag.Int("layers", 1, "Number of stacked layers, sharing one update gate.")
	flagHidden     = flag.Int("hidden", 16, "Size of the hidden state.")
	flagFeatures   = flag.Int("features", 8, "Number of features of the random input sequence.")
	flagBatch      = flag.Int("batch", 32, "Number of examples in the batch.")
	flagSeq        = flag.Int("seq", 20, "Length of the random input sequence.")
	flagActivation = flag.String("activation", "tanh", "Activation of the candidate values, see activations.TypeValues.")
	flagNorm       = flag.String("norm", "none", fmt.Sprintf(
		"Normalization of the gate pre-activations, one of %v.", xslices.SortedKeys(layers.KnownNormalizers)))
	flagUpdateBias = flag.Float64("update_bias", 0,
		"Initial bias of the update probability projection: negative values make the cell skip more often.")
	flagBackend = flag.String("backend", "", "Backend configuration, e.g. \"go\" or \"xla:cpu\". "+
		"If empty, it uses $GOMLX_BACKEND or the default backend.")
	flagSeed = flag.Int64("seed", 42, "Seed for the random weights and inputs.")
	flagGrad = flag.Bool("grad", false,
		"Also report the norm of the gradient of the last hidden state with respect to the update probability weights.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagCell != "lstm" && *flagCell != "gru" {
		klog.Fatalf("Invalid -cell=%q: it must be \"lstm\" or \"gru\"", *flagCell)
	}
	if *flagLayers < 1 || *flagHidden < 1 || *flagFeatures < 1 || *flagBatch < 1 || *flagSeq < 1 {
		klog.Fatalf("-layers, -hidden, -features, -batch and -seq must all be >= 1")
	}
	if *flagBackend != "" {
		backends.DefaultConfig = *flagBackend
	}

	var report *demoReport
	err := exceptions.TryCatch[error](func() {
		cfg := demoConfig{
			cell:       *flagCell,
			numLayers:  *flagLayers,
			hiddenSize: *flagHidden,
			features:   *flagFeatures,
			batchSize:  *flagBatch,
			seqLen:     *flagSeq,
			activation: activations.FromName(*flagActivation),
			norm:       *flagNorm,
			updateBias: float32(*flagUpdateBias),
			seed:       *flagSeed,
			withGrad:   *flagGrad,
		}
		backend := backends.MustNew()
		klog.V(1).Infof("Backend %q: %s", backend.Name(), backend.Description())
		report = runDemo(backend, cfg)
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
	report.print()
}
