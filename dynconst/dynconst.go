// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package dynconst provides a per-frame ring buffer for small constant
// data that passes bind with a dynamic uniform offset.
//
// The buffer is split into one region per frame in flight. Push appends
// to the current frame's region at a 256-byte aligned offset; Flush
// uploads everything pushed since the last flush in one queue write; and
// AdvanceFrame moves to the next region, which the GPU is done with by
// the time it comes round again.
package dynconst

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rg"
	"github.com/gogpu/wgpu/hal"
)

// Alignment is the offset alignment of every push. It satisfies the
// minUniformBufferOffsetAlignment limit of all supported backends.
const Alignment = 256

const (
	defaultFrameSize      = 1 << 20
	defaultFramesInFlight = 2
)

// Errors.
var (
	// ErrOutOfSpace is returned when a push does not fit in the frame.
	ErrOutOfSpace = errors.New("dynconst: frame region exhausted")

	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("dynconst: buffer destroyed")
)

// Option configures a Buffer.
type Option func(*options)

type options struct {
	frameSize      uint64
	framesInFlight int
	label          string
}

// WithFrameSize sets the bytes available per frame, rounded up to
// Alignment.
func WithFrameSize(size uint64) Option {
	return func(o *options) {
		o.frameSize = size
	}
}

// WithFramesInFlight sets the number of frame regions.
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		o.framesInFlight = n
	}
}

// WithLabel sets the debug label of the device buffer.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// Buffer implements rg.DynamicConstants. It is not safe for concurrent
// use; graph recording is single-threaded.
type Buffer struct {
	device rg.Device
	queue  hal.Queue
	buf    *rg.Buffer

	frameSize uint64
	frames    int
	frame     int

	// staging mirrors the current frame region. used is the write head,
	// flushed the part already uploaded.
	staging []byte
	used    uint64
	flushed uint64
}

var _ rg.DynamicConstants = (*Buffer)(nil)

// New creates the ring buffer on device. Data is uploaded through queue.
func New(device rg.Device, queue hal.Queue, opts ...Option) (*Buffer, error) {
	o := options{
		frameSize:      defaultFrameSize,
		framesInFlight: defaultFramesInFlight,
		label:          "rg_dynamic_constants",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.frameSize == 0 || o.framesInFlight <= 0 {
		return nil, fmt.Errorf("dynconst: invalid layout: %d bytes x %d frames", o.frameSize, o.framesInFlight)
	}
	frameSize := alignUp(o.frameSize)
	if frameSize*uint64(o.framesInFlight) > 1<<32 {
		return nil, fmt.Errorf("dynconst: %d bytes x %d frames exceeds 32-bit offsets", frameSize, o.framesInFlight)
	}

	desc := rg.NewBufferDesc(frameSize*uint64(o.framesInFlight),
		gputypes.BufferUsageUniform|gputypes.BufferUsageStorage)
	desc.Location = rg.MemoryCPUToGPU
	buf, err := rg.CreateBuffer(device, desc, 0, o.label)
	if err != nil {
		return nil, fmt.Errorf("dynconst: %w", err)
	}

	return &Buffer{
		device:    device,
		queue:     queue,
		buf:       buf,
		frameSize: frameSize,
		frames:    o.framesInFlight,
		staging:   make([]byte, 0, frameSize),
	}, nil
}

func alignUp(n uint64) uint64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// Push copies data into the current frame and returns its offset in the
// device buffer.
func (b *Buffer) Push(data []byte) (uint32, error) {
	if b.buf == nil {
		return 0, ErrDestroyed
	}
	start := alignUp(b.used)
	end := start + uint64(len(data))
	if end > b.frameSize {
		return 0, fmt.Errorf("%w: %d bytes at %d, frame holds %d", ErrOutOfSpace, len(data), start, b.frameSize)
	}

	// Zero the alignment padding so uploads are deterministic.
	b.staging = b.staging[:end]
	clear(b.staging[b.used:start])
	copy(b.staging[start:], data)
	b.used = end

	return uint32(b.frameBase() + start), nil
}

// PushValue encodes v in little-endian order with encoding/binary and
// pushes it. v must be a fixed-size value.
func PushValue[T any](b *Buffer, v T) (uint32, error) {
	data, err := binary.Append(nil, binary.LittleEndian, v)
	if err != nil {
		return 0, fmt.Errorf("dynconst: encode %T: %w", v, err)
	}
	return b.Push(data)
}

// Buffer returns the device buffer pushes land in.
func (b *Buffer) Buffer() hal.Buffer {
	if b.buf == nil {
		return nil
	}
	return b.buf.Raw
}

// Flush uploads the data pushed since the last flush. Call it before the
// frame's command buffers are submitted. On failure nothing is marked as
// uploaded, so a later Flush retries the same range.
func (b *Buffer) Flush() error {
	if b.buf == nil {
		return ErrDestroyed
	}
	if b.flushed == b.used {
		return nil
	}
	if err := b.queue.WriteBuffer(b.buf.Raw, b.frameBase()+b.flushed, b.staging[b.flushed:b.used]); err != nil {
		return fmt.Errorf("dynconst: upload frame %d: %w", b.frame, err)
	}
	rg.Logger().Debug("dynconst: flushed", "frame", b.frame, "bytes", b.used-b.flushed)
	b.flushed = b.used
	return nil
}

// AdvanceFrame flushes pending data and moves to the next frame region.
// It stays on the current region when the flush fails.
func (b *Buffer) AdvanceFrame() error {
	if err := b.Flush(); err != nil {
		return err
	}
	b.rotate()
	return nil
}

// Discard drops the data pushed in the current frame without uploading it
// and moves to the next frame region. Use it for frames that are never
// submitted.
func (b *Buffer) Discard() {
	if b.used > 0 {
		rg.Logger().Debug("dynconst: discarded", "frame", b.frame, "bytes", b.used)
	}
	b.rotate()
}

func (b *Buffer) rotate() {
	b.frame = (b.frame + 1) % b.frames
	b.staging = b.staging[:0]
	b.used = 0
	b.flushed = 0
}

// Used returns the bytes consumed in the current frame, padding included.
func (b *Buffer) Used() uint64 { return b.used }

// FrameSize returns the bytes available per frame.
func (b *Buffer) FrameSize() uint64 { return b.frameSize }

// Frame returns the index of the current frame region.
func (b *Buffer) Frame() int { return b.frame }

func (b *Buffer) frameBase() uint64 {
	return uint64(b.frame) * b.frameSize
}

// Destroy releases the device buffer.
func (b *Buffer) Destroy() {
	if b.buf == nil {
		return
	}
	b.buf.Destroy(b.device)
	b.buf = nil
}
