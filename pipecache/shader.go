// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipecache

import (
	"encoding/binary"
	"fmt"
	"io/fs"

	"github.com/gogpu/naga"
	"github.com/gogpu/rg"
	"github.com/gogpu/wgpu/hal"
)

// shaderKey identifies a WGSL source. Inline sources are keyed by their
// text, file sources by their name.
type shaderKey struct {
	name string
	wgsl string
}

func keyOf(src *rg.ShaderSource) (shaderKey, bool) {
	switch {
	case src.WGSL != "":
		return shaderKey{wgsl: src.WGSL}, true
	case len(src.SPIRV) > 0:
		return shaderKey{}, false
	default:
		return shaderKey{name: src.Name}, true
	}
}

// compileWGSL compiles WGSL source to SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShaderCompile, err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("%w: SPIR-V length %d is not a multiple of 4", ErrShaderCompile, len(spirvBytes))
	}

	// SPIR-V is a stream of little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

// resolveSource returns the WGSL text for key, reading named shaders
// from fsys.
func resolveSource(fsys fs.FS, key shaderKey) (string, error) {
	if key.wgsl != "" {
		return key.wgsl, nil
	}
	if key.name == "" {
		return "", fmt.Errorf("%w: shader has no name, WGSL or SPIR-V", ErrShaderNotFound)
	}
	if fsys == nil {
		return "", fmt.Errorf("%w: %q (no shader filesystem configured)", ErrShaderNotFound, key.name)
	}
	data, err := fs.ReadFile(fsys, key.name)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrShaderNotFound, key.name, err)
	}
	return string(data), nil
}

// buildShader compiles key and returns its SPIR-V words.
func buildShader(fsys fs.FS, key shaderKey) ([]uint32, error) {
	source, err := resolveSource(fsys, key)
	if err != nil {
		return nil, err
	}
	words, err := compileWGSL(source)
	if err != nil {
		if key.name != "" {
			return nil, fmt.Errorf("shader %q: %w", key.name, err)
		}
		return nil, err
	}
	return words, nil
}

func createShaderModule(device Device, label string, code []uint32) (hal.ShaderModule, error) {
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: code,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module %q: %w", label, err)
	}
	return module, nil
}

func entryPoint(src *rg.ShaderSource, fallback string) string {
	if src.EntryPoint != "" {
		return src.EntryPoint
	}
	return fallback
}
