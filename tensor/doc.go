// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensor types consumed by the federated optimizers.
//
// # Overview
//
// This package provides:
//   - Generic type-safe tensors (Tensor[T, B])
//   - RawTensor for counterpart sequences and optimizer state
//   - Device tags (CPU, CUDA, ...) with explicit transfer via RawTensor.To
//   - Backend, the compute interface implemented by backend/cpu
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/fedoptim/tensor"
//	    "github.com/born-ml/fedoptim/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    w := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	    g := tensor.Full[float32](tensor.Shape{2, 3}, 0.5, backend)
//	    w.AddScaled(g, -0.1)
//	}
//
// # Shapes
//
// Operations require operands of identical shape and data type. There is no
// broadcasting; mismatched operands are a programming error.
//
// # Devices
//
// Data always lives in host memory. A tensor's Device is a placement tag
// that optimizers honor when they move reference tensors next to the
// parameters being updated.
package tensor
