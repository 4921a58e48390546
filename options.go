// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"slices"

	"github.com/gogpu/gputypes"
)

// Option configures a RenderGraph during creation.
//
// Example:
//
//	g := rg.NewRenderGraph(
//		rg.WithConfig(cfg),
//		rg.WithPredefinedLayout(rg.FrameConstantsSetIndex, frameConstantsEntries),
//	)
type Option func(*graphOptions)

type graphOptions struct {
	config     Config
	predefined DescriptorSetLayouts
	debugHook  *GraphDebugHook
}

func defaultGraphOptions() graphOptions {
	return graphOptions{config: DefaultConfig()}
}

// WithConfig replaces the default configuration. A non-empty
// Config.DebugHook.Pass installs a debug hook unless WithDebugHook is
// also given.
func WithConfig(cfg Config) Option {
	return func(o *graphOptions) {
		o.config = cfg
	}
}

// WithPredefinedLayout declares a descriptor set layout shared by every
// pipeline registered on the graph. Pipelines that use the set index get
// their entries replaced with these.
func WithPredefinedLayout(set uint32, entries []gputypes.BindGroupLayoutEntry) Option {
	return func(o *graphOptions) {
		if o.predefined == nil {
			o.predefined = make(DescriptorSetLayouts)
		}
		o.predefined[set] = slices.Clone(entries)
	}
}

// WithDebugHook installs a debug hook that copies the output of one pass.
func WithDebugHook(hook GraphDebugHook) Option {
	return func(o *graphOptions) {
		o.debugHook = &hook
	}
}
