// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

var histDesc = NewImageDesc2D(gputypes.TextureFormatRGBA16Float, 64, 64)

// runTemporalFrame builds a frame over state with build, executes it and
// retires it.
func runTemporalFrame(t *testing.T, state *TemporalRenderGraphState, dev Device, build func(tg *TemporalRenderGraph)) *TemporalRenderGraphState {
	t.Helper()
	tg := NewTemporalRenderGraph(state, dev)
	build(tg)
	g, exported := tg.ExportTemporal()
	retired, _, _ := executeGraph(t, g, ExecutionParams{Device: dev}, nil, nil)
	next, err := exported.RetireTemporal(retired)
	if err != nil {
		t.Fatalf("RetireTemporal: %v", err)
	}
	return next
}

func TestTemporalCreateOnFirstUse(t *testing.T) {
	dev := newCountingDevice(t)
	state := NewTemporalRenderGraphState()

	state = runTemporalFrame(t, state, dev, func(tg *TemporalRenderGraph) {
		h, err := GetOrCreateTemporal(tg, "hist", histDesc)
		if err != nil {
			t.Fatal(err)
		}
		if h.Desc() != histDesc {
			t.Errorf("handle desc = %+v", h.Desc())
		}
	})

	res, access, ok := state.Resource("hist")
	if !ok || res.Kind() != KindImage || access != AccessNothing {
		t.Fatalf("Resource(hist) = %v, %v, %v", res, access, ok)
	}
	if img := res.(*Image); img.Usage != DefaultTemporalImageUsage {
		t.Errorf("temporal image usage = %v, want default", img.Usage)
	}
	if dev.textures != 1 {
		t.Errorf("textures created = %d, want 1", dev.textures)
	}
}

func TestTemporalTwiceInOneFrame(t *testing.T) {
	dev := newCountingDevice(t)
	tg := NewTemporalRenderGraph(NewTemporalRenderGraphState(), dev)

	if _, err := GetOrCreateTemporal(tg, "hist", histDesc); err != nil {
		t.Fatal(err)
	}
	_, err := GetOrCreateTemporal(tg, "hist", histDesc)
	if !errors.Is(err, ErrTemporalStateViolation) {
		t.Errorf("second request = %v, want ErrTemporalStateViolation", err)
	}
}

func TestTemporalRoundTripUntouched(t *testing.T) {
	dev := newCountingDevice(t)
	state := NewTemporalRenderGraphState()

	// First frame writes both so they leave in a non-trivial state.
	state = runTemporalFrame(t, state, dev, func(tg *TemporalRenderGraph) {
		img, _ := GetOrCreateTemporal(tg, "img", histDesc)
		buf, _ := GetOrCreateTemporal(tg, "buf", NewBufferDesc(256, 0))
		_ = tg.Graph().Pass("w", func(pb *PassBuilder) error {
			Write(pb, &img, AccessComputeShaderWrite)
			Write(pb, &buf, AccessComputeShaderWrite)
			return nil
		})
	})

	type snapshot struct {
		res    Resource
		access AccessType
	}
	before := map[TemporalResourceKey]snapshot{}
	for _, k := range state.Keys() {
		r, a, _ := state.Resource(k)
		before[k] = snapshot{r, a}
	}
	if before["img"].access != AccessComputeShaderWrite {
		t.Fatalf("img access after write = %v", before["img"].access)
	}

	// Second frame imports and exports without touching anything.
	state = runTemporalFrame(t, state, dev, func(tg *TemporalRenderGraph) {
		if _, err := GetOrCreateTemporal(tg, "img", histDesc); err != nil {
			t.Fatal(err)
		}
		if _, err := GetOrCreateTemporal(tg, "buf", NewBufferDesc(256, 0)); err != nil {
			t.Fatal(err)
		}
	})

	for _, k := range state.Keys() {
		r, a, _ := state.Resource(k)
		if r != before[k].res || a != before[k].access {
			t.Errorf("%s: got (%v, %v), want (%v, %v)", k, r, a, before[k].res, before[k].access)
		}
	}
	if dev.textures != 1 || dev.buffers != 1 {
		t.Errorf("round trip must not recreate resources: %d textures, %d buffers", dev.textures, dev.buffers)
	}
}

func TestTemporalKeyNotRequestedStaysInert(t *testing.T) {
	dev := newCountingDevice(t)
	state := runTemporalFrame(t, NewTemporalRenderGraphState(), dev, func(tg *TemporalRenderGraph) {
		_, _ = GetOrCreateTemporal(tg, "a", histDesc)
	})
	state = runTemporalFrame(t, state, dev, func(*TemporalRenderGraph) {})

	if _, _, ok := state.Resource("a"); !ok {
		t.Error("unrequested key should survive the frame")
	}
	tg := NewTemporalRenderGraph(state, dev)
	if _, err := GetOrCreateTemporal(tg, "a", histDesc); err != nil {
		t.Errorf("inert key should be importable: %v", err)
	}
}

func TestTemporalRetireWhileImported(t *testing.T) {
	dev := newCountingDevice(t)
	state := NewTemporalRenderGraphState()
	tg := NewTemporalRenderGraph(state, dev)
	_, _ = GetOrCreateTemporal(tg, "hist", histDesc)

	// Retire a frame that never exported the entry.
	exported := &ExportedTemporalRenderGraphState{state: state}
	if _, err := exported.RetireTemporal(&RetiredRenderGraph{}); !errors.Is(err, ErrTemporalStateViolation) {
		t.Errorf("RetireTemporal() = %v, want ErrTemporalStateViolation", err)
	}
	if state.resources["hist"].state != temporalImported {
		t.Error("failed retire must not change state")
	}
}

func TestTemporalAfterExport(t *testing.T) {
	dev := newCountingDevice(t)
	tg := NewTemporalRenderGraph(NewTemporalRenderGraphState(), dev)
	tg.ExportTemporal()

	if _, err := GetOrCreateTemporal(tg, "late", histDesc); !errors.Is(err, ErrTemporalStateViolation) {
		t.Errorf("request after export = %v, want ErrTemporalStateViolation", err)
	}
}

func TestTemporalAbandonRollsBack(t *testing.T) {
	dev := newCountingDevice(t)
	state := runTemporalFrame(t, NewTemporalRenderGraphState(), dev, func(tg *TemporalRenderGraph) {
		h, _ := GetOrCreateTemporal(tg, "hist", histDesc)
		_ = tg.Graph().Pass("w", func(pb *PassBuilder) error {
			Write(pb, &h, AccessComputeShaderWrite)
			return nil
		})
	})

	// A frame that fails after export is dropped.
	tg := NewTemporalRenderGraph(state, dev)
	h, _ := GetOrCreateTemporal(tg, "hist", histDesc)
	_ = tg.Graph().Pass("w", func(pb *PassBuilder) error {
		Read(pb, h, AccessFragmentShaderReadSampledImageOrUniformTexelBuffer)
		return nil
	})
	_, exported := tg.ExportTemporal()
	state = exported.Abandon()

	_, access, _ := state.Resource("hist")
	if access != AccessComputeShaderWrite {
		t.Errorf("access after abandon = %v, want the pre-frame ComputeShaderWrite", access)
	}
	tg = NewTemporalRenderGraph(state, dev)
	if _, err := GetOrCreateTemporal(tg, "hist", histDesc); err != nil {
		t.Errorf("abandoned entry should be importable again: %v", err)
	}
}

func TestTemporalResizeRecreates(t *testing.T) {
	dev := newCountingDevice(t)
	state := runTemporalFrame(t, NewTemporalRenderGraphState(), dev, func(tg *TemporalRenderGraph) {
		_, _ = GetOrCreateTemporal(tg, "hist", histDesc)
	})
	old, _, _ := state.Resource("hist")

	bigger := histDesc
	bigger.Extent = [3]uint32{128, 128, 1}
	state = runTemporalFrame(t, state, dev, func(tg *TemporalRenderGraph) {
		h, err := GetOrCreateTemporal(tg, "hist", bigger)
		if err != nil {
			t.Fatal(err)
		}
		if h.Desc().Extent[0] != 128 {
			t.Errorf("handle extent = %v", h.Desc().Extent)
		}
	})

	res, access, _ := state.Resource("hist")
	if res == old || res.(*Image).Desc.Extent[0] != 128 || access != AccessNothing {
		t.Errorf("resized resource = %v, access %v", res, access)
	}
	// The previous frame may still read the old image.
	if dev.textures != 2 || dev.destroyedTex != 0 || state.PendingDestroys() != 1 {
		t.Errorf("after resize: created %d destroyed %d pending %d, want 2/0/1",
			dev.textures, dev.destroyedTex, state.PendingDestroys())
	}

	state = runTemporalFrame(t, state, dev, func(tg *TemporalRenderGraph) {
		_, _ = GetOrCreateTemporal(tg, "hist", bigger)
	})
	if dev.destroyedTex != 1 || state.PendingDestroys() != 0 {
		t.Errorf("two frames later: destroyed %d pending %d, want 1/0", dev.destroyedTex, state.PendingDestroys())
	}
}

func TestTemporalResizeFramesInFlight(t *testing.T) {
	bigger := histDesc
	bigger.Extent = [3]uint32{128, 128, 1}

	tests := []struct {
		frames        int
		wantDestroyed []int // after each frame following the first
	}{
		{1, []int{1, 1}},
		{2, []int{0, 1}},
		{3, []int{0, 0}},
	}
	for _, tt := range tests {
		dev := newCountingDevice(t)
		state := NewTemporalRenderGraphState()
		state.SetFramesInFlight(tt.frames)
		state = runTemporalFrame(t, state, dev, func(tg *TemporalRenderGraph) {
			_, _ = GetOrCreateTemporal(tg, "hist", histDesc)
		})
		for i, want := range tt.wantDestroyed {
			state = runTemporalFrame(t, state, dev, func(tg *TemporalRenderGraph) {
				_, _ = GetOrCreateTemporal(tg, "hist", bigger)
			})
			if dev.destroyedTex != want {
				t.Errorf("frames in flight %d, frame %d: destroyed %d, want %d", tt.frames, i+1, dev.destroyedTex, want)
			}
		}
	}
}

func TestTemporalEquivalentDescKeepsResource(t *testing.T) {
	dev := newCountingDevice(t)
	state := runTemporalFrame(t, NewTemporalRenderGraphState(), dev, func(tg *TemporalRenderGraph) {
		_, _ = GetOrCreateTemporal(tg, "hist", histDesc)
	})

	// Zero counts normalize to the same image.
	sparse := ImageDesc{Type: ImageType2D, Format: histDesc.Format, Extent: [3]uint32{64, 64, 0}}
	state = runTemporalFrame(t, state, dev, func(tg *TemporalRenderGraph) {
		if _, err := GetOrCreateTemporal(tg, "hist", sparse); err != nil {
			t.Fatal(err)
		}
	})
	if dev.textures != 1 || state.PendingDestroys() != 0 {
		t.Errorf("equivalent descriptor: created %d textures, pending %d", dev.textures, state.PendingDestroys())
	}
}

func TestTemporalDestroyReleasesReplaced(t *testing.T) {
	dev := newCountingDevice(t)
	state := runTemporalFrame(t, NewTemporalRenderGraphState(), dev, func(tg *TemporalRenderGraph) {
		_, _ = GetOrCreateTemporal(tg, "hist", histDesc)
	})
	state = runTemporalFrame(t, state, dev, func(tg *TemporalRenderGraph) {
		_, _ = GetOrCreateTemporal(tg, "hist", histDesc.HalfRes())
	})
	state.Destroy(dev)
	if dev.destroyedTex != 2 || state.PendingDestroys() != 0 {
		t.Errorf("Destroy: destroyed %d pending %d, want 2/0", dev.destroyedTex, state.PendingDestroys())
	}
}

func TestTemporalKindMismatch(t *testing.T) {
	dev := newCountingDevice(t)
	state := runTemporalFrame(t, NewTemporalRenderGraphState(), dev, func(tg *TemporalRenderGraph) {
		_, _ = GetOrCreateTemporal(tg, "x", histDesc)
	})
	tg := NewTemporalRenderGraph(state, dev)
	if _, err := GetOrCreateTemporal(tg, "x", NewBufferDesc(16, 0)); !errors.Is(err, ErrResourceTypeMismatch) {
		t.Errorf("kind change = %v, want ErrResourceTypeMismatch", err)
	}
	if _, err := GetOrCreateTemporal(tg, "rt", RayTracingAccelerationDesc{}); !errors.Is(err, ErrResourceTypeMismatch) {
		t.Errorf("acceleration create = %v, want ErrResourceTypeMismatch", err)
	}
}

func TestTemporalDestroy(t *testing.T) {
	dev := newCountingDevice(t)
	state := runTemporalFrame(t, NewTemporalRenderGraphState(), dev, func(tg *TemporalRenderGraph) {
		_, _ = GetOrCreateTemporal(tg, "a", histDesc)
		_, _ = GetOrCreateTemporal(tg, "b", NewBufferDesc(8, 0))
	})
	state.Destroy(dev)

	if len(state.Keys()) != 0 || dev.destroyedTex != 1 || dev.destroyedBufs != 1 {
		t.Errorf("after Destroy: keys %v, destroyed %d textures %d buffers", state.Keys(), dev.destroyedTex, dev.destroyedBufs)
	}
}
