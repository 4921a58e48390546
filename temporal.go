// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gogpu/gputypes"
)

// TemporalResourceKey names a resource that persists across frames.
type TemporalResourceKey string

// Usage given to temporal resources whose descriptor carries none.
const (
	DefaultTemporalImageUsage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding |
		gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	DefaultTemporalBufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
)

type temporalState uint8

const (
	temporalInert temporalState = iota
	temporalImported
	temporalExported
)

func (s temporalState) String() string {
	switch s {
	case temporalImported:
		return "imported"
	case temporalExported:
		return "exported"
	default:
		return "inert"
	}
}

type temporalResource struct {
	state    temporalState
	resource Resource
	desc     ResourceDesc

	// access is the last known access type while inert, and the access
	// at import time otherwise.
	access AccessType

	// handle is the graph handle while imported or exported.
	handle RawHandle
}

// DefaultTemporalFramesInFlight is the number of retired frames a
// replaced temporal resource outlives before it is destroyed.
const DefaultTemporalFramesInFlight = 2

// staleResource is a temporal resource replaced on resize. Frames
// submitted before the replacement may still read it.
type staleResource struct {
	device   Device
	resource Resource
	retires  int
}

// TemporalRenderGraphState owns the temporal resources between frames.
type TemporalRenderGraphState struct {
	resources      map[TemporalResourceKey]*temporalResource
	stale          []staleResource
	framesInFlight int
}

// NewTemporalRenderGraphState returns an empty state.
func NewTemporalRenderGraphState() *TemporalRenderGraphState {
	return &TemporalRenderGraphState{
		resources:      make(map[TemporalResourceKey]*temporalResource),
		framesInFlight: DefaultTemporalFramesInFlight,
	}
}

// SetFramesInFlight sets how many RetireTemporal calls a replaced
// resource waits for before it is destroyed. Callers that wait for each
// frame's fence before starting the next may use 1.
func (s *TemporalRenderGraphState) SetFramesInFlight(n int) {
	s.framesInFlight = max(n, 1)
}

// PendingDestroys returns the number of replaced resources not yet
// destroyed.
func (s *TemporalRenderGraphState) PendingDestroys() int { return len(s.stale) }

// collectStale counts one retired frame and destroys the replaced
// resources no frame in flight can still use.
func (s *TemporalRenderGraphState) collectStale() {
	kept := s.stale[:0]
	for _, st := range s.stale {
		st.retires++
		if st.retires >= s.framesInFlight {
			destroyResource(st.device, st.resource)
			continue
		}
		kept = append(kept, st)
	}
	clear(s.stale[len(kept):])
	s.stale = kept
}

// Keys returns the known keys in sorted order.
func (s *TemporalRenderGraphState) Keys() []TemporalResourceKey {
	return slices.Sorted(maps.Keys(s.resources))
}

// Resource returns the resource behind key and its last known access
// type. It reports false for unknown keys.
func (s *TemporalRenderGraphState) Resource(key TemporalResourceKey) (Resource, AccessType, bool) {
	e, ok := s.resources[key]
	if !ok {
		return nil, AccessNothing, false
	}
	return e.resource, e.access, true
}

// Abandon returns every entry taken by a dropped frame to the inert state
// it was in before the frame imported it.
func (s *TemporalRenderGraphState) Abandon() {
	n := 0
	for key, e := range s.resources {
		if e.state == temporalInert {
			continue
		}
		Logger().Warn("rg: temporal resource rolled back", "key", key, "state", e.state)
		e.state = temporalInert
		e.handle = RawHandle{}
		n++
	}
	if n > 0 {
		Logger().Warn("rg: frame abandoned", "temporal_resources", n)
	}
}

// Destroy releases all temporal resources the state created, including
// replaced ones still waiting for destruction. The state is empty
// afterwards.
func (s *TemporalRenderGraphState) Destroy(device Device) {
	for key, e := range s.resources {
		destroyResource(device, e.resource)
		delete(s.resources, key)
	}
	for _, st := range s.stale {
		destroyResource(device, st.resource)
	}
	s.stale = nil
}

// TemporalRenderGraph is a RenderGraph that can import temporal resources.
type TemporalRenderGraph struct {
	rg     *RenderGraph
	device Device
	state  *TemporalRenderGraphState
}

// NewTemporalRenderGraph starts a frame over state. device creates
// temporal resources on first request.
func NewTemporalRenderGraph(state *TemporalRenderGraphState, device Device, opts ...Option) *TemporalRenderGraph {
	return &TemporalRenderGraph{rg: NewRenderGraph(opts...), device: device, state: state}
}

// Graph returns the underlying graph for pass construction.
func (t *TemporalRenderGraph) Graph() *RenderGraph { return t.rg }

// Abandon drops the frame, returning its temporal resources to the inert
// state they had before the frame.
func (t *TemporalRenderGraph) Abandon() *TemporalRenderGraphState {
	t.rg = nil
	t.state.Abandon()
	return t.state
}

// GetOrCreateTemporal imports the temporal resource named key into the
// frame's graph, creating it on first use. A second request for the same
// key in one frame fails with ErrTemporalStateViolation. When desc
// differs from the stored descriptor the resource is recreated; the old
// one is destroyed once the frames that may use it have retired.
func GetOrCreateTemporal[D ResourceDesc](t *TemporalRenderGraph, key TemporalResourceKey, desc D) (Handle[D], error) {
	if t.rg == nil {
		return Handle[D]{}, newError(KindTemporalStateViolation, "", "temporal graph already exported")
	}
	e, ok := t.state.resources[key]
	if ok {
		if e.state != temporalInert {
			return Handle[D]{}, newError(KindTemporalStateViolation, "", "temporal resource %q already taken (%s)", key, e.state)
		}
		if e.resource.Kind() != desc.ResourceKind() {
			return Handle[D]{}, newError(KindResourceTypeMismatch, "", "temporal resource %q is a %s, requested a %s",
				key, e.resource.Kind(), desc.ResourceKind())
		}
		if normalizedDesc(e.desc) != normalizedDesc(desc) {
			res, err := t.create(key, desc)
			if err != nil {
				return Handle[D]{}, err
			}
			Logger().Info("rg: temporal resource recreated", "key", key)
			t.state.stale = append(t.state.stale, staleResource{device: t.device, resource: e.resource})
			e.resource, e.desc, e.access = res, desc, AccessNothing
		}
	} else {
		res, err := t.create(key, desc)
		if err != nil {
			return Handle[D]{}, err
		}
		Logger().Info("rg: temporal resource created", "key", key)
		e = &temporalResource{resource: res, desc: desc, access: AccessNothing}
		t.state.resources[key] = e
	}

	e.handle = t.rg.importResource(e.resource, e.access)
	e.state = temporalImported
	return Handle[D]{raw: e.handle, desc: desc}, nil
}

// normalizedDesc fills image defaults so equivalent descriptors compare
// equal.
func normalizedDesc(d ResourceDesc) ResourceDesc {
	if img, ok := d.(ImageDesc); ok {
		return img.Normalized()
	}
	return d
}

func (t *TemporalRenderGraph) create(key TemporalResourceKey, desc ResourceDesc) (Resource, error) {
	label := "temporal:" + string(key)
	switch d := desc.(type) {
	case ImageDesc:
		usage := d.Usage
		if usage == 0 {
			usage = DefaultTemporalImageUsage
		}
		return CreateImage(t.device, d, usage, label)
	case BufferDesc:
		usage := d.Usage
		if usage == 0 {
			usage = DefaultTemporalBufferUsage
		}
		return CreateBuffer(t.device, d, usage, label)
	default:
		return nil, newError(KindResourceTypeMismatch, "", "temporal resource %q: cannot create a %s", key, desc.ResourceKind())
	}
}

func destroyResource(device Device, r Resource) {
	switch r := r.(type) {
	case *Image:
		r.Destroy(device)
	case *Buffer:
		r.Destroy(device)
	}
}

// ExportedTemporalRenderGraphState is the temporal state while its graph
// executes. RetireTemporal closes the frame.
type ExportedTemporalRenderGraphState struct {
	state *TemporalRenderGraphState
}

// ExportTemporal exports every imported temporal resource and hands back
// the graph. t must not be used afterwards.
func (t *TemporalRenderGraph) ExportTemporal() (*RenderGraph, *ExportedTemporalRenderGraphState) {
	g := t.rg
	for _, key := range t.state.Keys() {
		e := t.state.resources[key]
		if e.state != temporalImported {
			continue
		}
		// Imported by this graph, so export cannot fail.
		_ = g.export(e.handle, AccessNothing)
		e.state = temporalExported
	}
	t.rg = nil
	return g, &ExportedTemporalRenderGraphState{state: t.state}
}

// Abandon drops the frame; see TemporalRenderGraphState.Abandon.
func (x *ExportedTemporalRenderGraphState) Abandon() *TemporalRenderGraphState {
	x.state.Abandon()
	return x.state
}

// RetireTemporal reads the final access type of every exported temporal
// resource from retired and returns them to the inert state.
func (x *ExportedTemporalRenderGraphState) RetireTemporal(retired *RetiredRenderGraph) (*TemporalRenderGraphState, error) {
	keys := x.state.Keys()
	for _, key := range keys {
		if x.state.resources[key].state == temporalImported {
			return nil, newError(KindTemporalStateViolation, "", "temporal resource %q retired while imported", key)
		}
	}
	for _, key := range keys {
		e := x.state.resources[key]
		if e.state == temporalExported {
			res, access, err := retired.exportedResource(e.handle)
			if err != nil {
				return nil, fmt.Errorf("retire temporal resource %q: %w", key, err)
			}
			e.resource = res
			e.access = access
			e.state = temporalInert
			e.handle = RawHandle{}
		}
	}
	x.state.collectStale()
	return x.state, nil
}
