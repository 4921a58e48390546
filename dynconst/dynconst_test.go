// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package dynconst

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rg"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

func newBuffer(t *testing.T, opts ...Option) *Buffer {
	t.Helper()
	dev, queue := createNoopDevice(t)
	b, err := New(dev, queue, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(b.Destroy)
	return b
}

func TestPushOffsetsAreAligned(t *testing.T) {
	b := newBuffer(t, WithFrameSize(1024))

	tests := []struct {
		size int
		want uint32
	}{
		{16, 0},
		{4, 256},
		{256, 512},
		{1, 768},
	}
	for _, tt := range tests {
		got, err := b.Push(make([]byte, tt.size))
		if err != nil {
			t.Fatalf("Push(%d): %v", tt.size, err)
		}
		if got != tt.want {
			t.Errorf("Push(%d) offset = %d, want %d", tt.size, got, tt.want)
		}
	}
	if b.Used() != 769 {
		t.Errorf("Used = %d, want 769", b.Used())
	}
}

func TestPushOutOfSpace(t *testing.T) {
	b := newBuffer(t, WithFrameSize(512))

	if _, err := b.Push(make([]byte, 300)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Push(make([]byte, 257)); !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("err = %v, want ErrOutOfSpace", err)
	}
	// A failed push leaves the frame untouched.
	if off, err := b.Push(make([]byte, 256)); err != nil || off != 256 {
		t.Errorf("Push after failure = %d, %v; want 256", off, err)
	}
}

func TestAdvanceFrameRotatesRegions(t *testing.T) {
	b := newBuffer(t, WithFrameSize(300), WithFramesInFlight(3))
	if b.FrameSize() != 512 {
		t.Fatalf("FrameSize = %d, want 512", b.FrameSize())
	}

	var bases []uint32
	for range 4 {
		off, err := b.Push([]byte{1, 2, 3, 4})
		if err != nil {
			t.Fatal(err)
		}
		bases = append(bases, off)
		if err := b.AdvanceFrame(); err != nil {
			t.Fatal(err)
		}
	}
	want := []uint32{0, 512, 1024, 0}
	for i := range want {
		if bases[i] != want[i] {
			t.Errorf("frame %d base = %d, want %d", i, bases[i], want[i])
		}
	}
	if b.Used() != 0 || b.Frame() != 1 {
		t.Errorf("after rotation used=%d frame=%d", b.Used(), b.Frame())
	}
}

func TestStagingPadsWithZeros(t *testing.T) {
	b := newBuffer(t, WithFrameSize(1024))

	if _, err := b.Push([]byte{0xAA, 0xBB}); err != nil {
		t.Fatal(err)
	}
	if _, err := PushValue(b, uint32(0x11223344)); err != nil {
		t.Fatal(err)
	}
	if len(b.staging) != 260 {
		t.Fatalf("staging len = %d, want 260", len(b.staging))
	}
	if !bytes.Equal(b.staging[:2], []byte{0xAA, 0xBB}) {
		t.Errorf("first push = %x", b.staging[:2])
	}
	for i, v := range b.staging[2:256] {
		if v != 0 {
			t.Fatalf("padding byte %d = %#x", i+2, v)
		}
	}
	if !bytes.Equal(b.staging[256:], []byte{0x44, 0x33, 0x22, 0x11}) {
		t.Errorf("PushValue bytes = %x", b.staging[256:])
	}

	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if b.flushed != b.used {
		t.Errorf("flushed = %d, used = %d", b.flushed, b.used)
	}
}

func TestPushValueRejectsVariableSize(t *testing.T) {
	b := newBuffer(t)
	if _, err := PushValue(b, []int{1, 2}); err == nil {
		t.Error("PushValue of a slice of int should fail")
	}
}

func TestNewRejectsBadLayout(t *testing.T) {
	dev, queue := createNoopDevice(t)
	if _, err := New(dev, queue, WithFramesInFlight(0)); err == nil {
		t.Error("zero frames accepted")
	}
	if _, err := New(dev, queue, WithFrameSize(0)); err == nil {
		t.Error("zero frame size accepted")
	}
}

func TestDestroy(t *testing.T) {
	dev, queue := createNoopDevice(t)
	b, err := New(dev, queue)
	if err != nil {
		t.Fatal(err)
	}
	if b.Buffer() == nil {
		t.Fatal("no device buffer")
	}
	b.Destroy()
	b.Destroy()
	if b.Buffer() != nil {
		t.Error("Buffer after Destroy is not nil")
	}
	if _, err := b.Push([]byte{1}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Push after Destroy = %v", err)
	}
}

// failingQueue fails uploads while fail is set.
type failingQueue struct {
	hal.Queue
	fail   bool
	writes int
}

var errUpload = errors.New("upload failed")

func (q *failingQueue) WriteBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	if q.fail {
		return errUpload
	}
	q.writes++
	return q.Queue.WriteBuffer(buf, offset, data)
}

func TestFlushFailureIsReportedAndRetried(t *testing.T) {
	dev, queue := createNoopDevice(t)
	q := &failingQueue{Queue: queue, fail: true}
	b, err := New(dev, q, WithFrameSize(1024))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Destroy)

	if _, err := b.Push([]byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(); !errors.Is(err, errUpload) {
		t.Fatalf("Flush = %v, want %v", err, errUpload)
	}
	if b.flushed != 0 {
		t.Errorf("failed upload marked %d bytes as flushed", b.flushed)
	}
	if err := b.AdvanceFrame(); !errors.Is(err, errUpload) {
		t.Fatalf("AdvanceFrame = %v, want %v", err, errUpload)
	}
	if b.Frame() != 0 || b.Used() == 0 {
		t.Errorf("failed AdvanceFrame moved on: frame=%d used=%d", b.Frame(), b.Used())
	}

	q.fail = false
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if q.writes != 1 || b.flushed != b.used {
		t.Errorf("retry: writes=%d flushed=%d used=%d", q.writes, b.flushed, b.used)
	}
}

func TestDiscardDropsFrame(t *testing.T) {
	dev, queue := createNoopDevice(t)
	q := &failingQueue{Queue: queue}
	b, err := New(dev, q, WithFrameSize(1024), WithFramesInFlight(2))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Destroy)

	if _, err := b.Push([]byte{1}); err != nil {
		t.Fatal(err)
	}
	b.Discard()
	if q.writes != 0 {
		t.Errorf("Discard uploaded %d times", q.writes)
	}
	if b.Frame() != 1 || b.Used() != 0 {
		t.Errorf("after Discard frame=%d used=%d, want 1/0", b.Frame(), b.Used())
	}
}

func TestFlushAfterDestroy(t *testing.T) {
	b := newBuffer(t)
	b.Destroy()
	if err := b.Flush(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Flush after Destroy = %v", err)
	}
}

type nopEncoder struct{}

func (nopEncoder) TransitionTextures([]hal.TextureBarrier) {}
func (nopEncoder) TransitionBuffers([]hal.BufferBarrier)   {}

func TestPassPushesThroughPassAPI(t *testing.T) {
	dev, queue := createNoopDevice(t)
	b, err := New(dev, queue, WithFrameSize(4096))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	g := rg.NewRenderGraph()
	out := rg.Create(g, rg.NewBufferDesc(64, 0))
	var offsets []uint32
	for _, name := range []string{"a", "b"} {
		err := g.Pass(name, func(pb *rg.PassBuilder) error {
			rg.Write(pb, &out, rg.AccessComputeShaderWrite)
			pb.Render(func(api *rg.PassAPI) error {
				off, err := PushValue(api.DynamicConstants().(*Buffer), [4]float32{1, 2, 3, 4})
				offsets = append(offsets, off)
				return err
			})
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	compiled, err := g.Compile(nil)
	if err != nil {
		t.Fatal(err)
	}
	exec, err := compiled.BeginExecute(rg.ExecutionParams{Device: dev}, nil, b)
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.RecordMainCb(nopEncoder{}); err != nil {
		t.Fatal(err)
	}
	retired, err := exec.RecordPresentationCb(nopEncoder{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	retired.ReleaseResources(nil)

	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != Alignment {
		t.Errorf("offsets = %v, want [0 %d]", offsets, Alignment)
	}
}
