// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package profiler

import (
	"testing"
	"time"
)

// fakeClock advances by step on every reading.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func TestScopesAreRecordedPerFrame(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0), step: time.Millisecond}
	p := New(WithClock(clock.now))

	// Every clock reading advances 1ms: frame start at 1ms, gbuffer
	// 2ms..3ms, lighting 4ms..5ms, frame end at 6ms.
	p.BeginFrame()
	end := p.BeginScope("gbuffer")
	end()
	end()
	p.BeginScope("lighting")()
	f := p.EndFrame()

	if len(f.Scopes) != 2 {
		t.Fatalf("scopes = %+v, want 2", f.Scopes)
	}
	want := []Scope{
		{Name: "gbuffer", Start: time.Millisecond, Duration: time.Millisecond},
		{Name: "lighting", Start: 3 * time.Millisecond, Duration: time.Millisecond},
	}
	for i, s := range f.Scopes {
		if s != want[i] {
			t.Errorf("scope %d = %+v, want %+v", i, s, want[i])
		}
	}
	if f.Total != 5*time.Millisecond {
		t.Errorf("Total = %v, want 5ms", f.Total)
	}
}

func TestScopesOutsideFrameAreDropped(t *testing.T) {
	p := New()
	p.BeginScope("stray")()
	f := p.EndFrame()
	if len(f.Scopes) != 0 || f.Total != 0 {
		t.Errorf("frame = %+v, want empty", f)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	p := New(WithHistory(3))
	for range 5 {
		p.BeginFrame()
		p.EndFrame()
	}
	frames := p.Frames()
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if frames[0].Index != 2 || frames[2].Index != 4 {
		t.Errorf("retained indices %d..%d, want 2..4", frames[0].Index, frames[2].Index)
	}

	p.Reset()
	if len(p.Frames()) != 0 {
		t.Error("Reset kept frames")
	}
}

func TestStats(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := New(WithClock(clock.now))

	durations := []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 6 * time.Millisecond}
	for _, d := range durations {
		p.BeginFrame()
		clock.step = d
		p.BeginScope("taa")()
		clock.step = time.Millisecond
		p.BeginScope("tonemap")()
		clock.step = 0
		p.EndFrame()
	}

	stats := p.Stats()
	if len(stats) != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	taa := stats[0]
	if taa.Name != "taa" || taa.Count != 3 || taa.Mean != 4*time.Millisecond ||
		taa.Min != 2*time.Millisecond || taa.Max != 6*time.Millisecond {
		t.Errorf("taa stats = %+v", taa)
	}
	if stats[1].Name != "tonemap" || stats[1].Mean != time.Millisecond {
		t.Errorf("tonemap stats = %+v", stats[1])
	}
}
