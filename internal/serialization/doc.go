// Package serialization reads and writes tensor dictionaries in the
// SafeTensors format.
//
// It persists optimizer state (Adam moments, SGD velocities), SCAFFOLD
// control variates and model checkpoints between rounds or process
// restarts.
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON, tensor name -> {dtype, shape, data_offsets}]
//	  [Tensor data: raw little-endian bytes, tensors sorted by name]
//
// The optional "__metadata__" header entry carries string metadata. Write
// stores a SHA-256 checksum of the data section there and Read verifies
// it when present.
//
// Example usage:
//
//	if err := serialization.WriteFile("state.safetensors", opt.StateDict(), nil); err != nil {
//	    return err
//	}
//
//	f, err := serialization.ReadFile("state.safetensors", tensor.CPU)
//	if err != nil {
//	    return err
//	}
//	err = opt.LoadStateDict(f.Tensors)
package serialization
