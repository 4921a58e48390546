// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import "fmt"

// RawHandle names one version of a graph resource. ID is the resource's
// slot in the graph and never changes; Version is bumped by every write,
// so a handle taken before a write never compares equal to one after it.
type RawHandle struct {
	ID      uint32
	Version uint32
}

func (h RawHandle) next() RawHandle {
	return RawHandle{ID: h.ID, Version: h.Version + 1}
}

func (h RawHandle) String() string {
	return fmt.Sprintf("#%d.v%d", h.ID, h.Version)
}

// Handle is a typed reference to a graph resource. It carries the
// descriptor so callers can query extent and format without a lookup.
type Handle[D ResourceDesc] struct {
	raw  RawHandle
	desc D
}

// Raw returns the untyped handle.
func (h Handle[D]) Raw() RawHandle { return h.raw }

// Desc returns the resource descriptor.
func (h Handle[D]) Desc() D { return h.desc }

// ExportedHandle names a resource whose final state can be queried on the
// RetiredRenderGraph after execution.
type ExportedHandle[D ResourceDesc] struct {
	raw  RawHandle
	desc D
}

// Raw returns the untyped handle.
func (h ExportedHandle[D]) Raw() RawHandle { return h.raw }

// Desc returns the resource descriptor.
func (h ExportedHandle[D]) Desc() D { return h.desc }

// ViewKind tells how a pass sees a resource through a Ref.
type ViewKind uint8

const (
	// ViewSrv is a read-only shader view.
	ViewSrv ViewKind = iota
	// ViewUav is a read-write storage view.
	ViewUav
	// ViewRt is a render target or raster attachment.
	ViewRt
)

// ViewType is implemented by the view marker types Srv, Uav and Rt.
type ViewType interface {
	ViewKind() ViewKind
}

// Srv marks a read-only shader view.
type Srv struct{}

// Uav marks a read-write storage view.
type Uav struct{}

// Rt marks a render target view.
type Rt struct{}

func (Srv) ViewKind() ViewKind { return ViewSrv }
func (Uav) ViewKind() ViewKind { return ViewUav }
func (Rt) ViewKind() ViewKind  { return ViewRt }

// Ref is the only way a pass callback can reach a resource. It is produced
// by Read, Write, WriteNoSync, Raster and RasterRead.
type Ref[D ResourceDesc, V ViewType] struct {
	raw  RawHandle
	desc D
}

// Raw returns the untyped handle, at the version the pass sees.
func (r Ref[D, V]) Raw() RawHandle { return r.raw }

// Desc returns the resource descriptor.
func (r Ref[D, V]) Desc() D { return r.desc }

// ViewKind returns the view kind of the reference.
func (r Ref[D, V]) ViewKind() ViewKind {
	var v V
	return v.ViewKind()
}
