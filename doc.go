// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rg is a frame graph for renderers built on the gogpu wgpu HAL.
//
// # Overview
//
// Passes declare the resources they read, write or rasterize. From those
// declarations the graph derives when each resource is last used, which
// usage bits it must be created with, and which barriers must be recorded
// between passes. Passes run in the order they were added; the graph
// never reorders them.
//
// # Quick Start
//
//	g := rg.NewRenderGraph()
//
//	lit := rg.Create(g, rg.NewImageDesc2D(gputypes.TextureFormatRGBA16Float, 1920, 1080))
//	err := g.Pass("light", func(pb *rg.PassBuilder) error {
//		out := rg.Write(pb, &lit, rg.AccessComputeShaderWrite)
//		pb.Render(func(api *rg.PassAPI) error {
//			img, err := api.Resources().Image(out)
//			...
//		})
//		return nil
//	})
//
//	swapchain := g.GetSwapChain()
//	g.Pass("present", func(pb *rg.PassBuilder) error {
//		rg.Read(pb, lit, rg.AccessFragmentShaderReadSampledImageOrUniformTexelBuffer)
//		rg.Raster(pb, &swapchain, rg.AccessColorAttachmentWrite)
//		return nil
//	})
//
//	compiled, err := g.Compile(pipelineCache)
//	exec, err := compiled.BeginExecute(params, transientCache, constants)
//	err = exec.RecordMainCb(mainEncoder)
//	// submit, then acquire the swapchain image
//	retired, err := exec.RecordPresentationCb(presentEncoder, swapchainImage)
//	retired.ReleaseResources(transientCache)
//
// # Frame Lifecycle
//
// A frame goes through four stages:
//   - RenderGraph: resources and passes are declared
//   - CompiledRenderGraph: lifetimes and usage are known, pipelines registered
//   - ExecutingRenderGraph: resources are materialized and commands recorded
//   - RetiredRenderGraph: final access types can be queried, resources released
//
// Recording is split in two. RecordMainCb stops before the first pass that
// writes the swapchain image, so the bulk of the frame can be submitted
// before the swapchain acquire blocks. RecordPresentationCb records the rest.
//
// # Temporal Resources
//
// History buffers live in a TemporalRenderGraphState. Each frame wraps it in
// a TemporalRenderGraph, requests resources by key with GetOrCreateTemporal,
// exports them with ExportTemporal and, once the frame has executed, returns
// them to the state with RetireTemporal.
//
// # Errors
//
// Failures are reported as *Error values whose Kind matches one of the
// package sentinels (ErrAccessTypeMismatch, ErrTemporalStateViolation, ...)
// under errors.Is.
//
// # Logging
//
// rg is silent by default. Call SetLogger to route its diagnostics to a
// slog.Logger.
package rg

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
