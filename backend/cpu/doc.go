// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - In-place AddScaled and Scale on gonum BLAS (axpy, scal)
//   - Float32 and Float64 support
//   - Chunked parallel elementwise kernels for large tensors
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/fedoptim/backend/cpu"
//	    "github.com/born-ml/fedoptim/nn"
//	    "github.com/born-ml/fedoptim/optim"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    model := nn.NewLinear(8, backend)
//	    opt, err := optim.NewPerAvg(model.Parameters(), optim.Config{LR: 0.01}, backend)
//	}
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each tensor operation
// is isolated and does not share mutable state; in-place operations
// must not be run concurrently on the same destination.
package cpu
