// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package profiler records how long each render graph pass takes to
// record on the CPU and keeps per-scope statistics over recent frames.
package profiler

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/rg"
)

const defaultHistory = 64

// Scope is one timed pass.
type Scope struct {
	Name     string
	Start    time.Duration // offset from the frame start
	Duration time.Duration
}

// Frame holds the scopes recorded in one frame, in completion order.
type Frame struct {
	Index  uint64
	Scopes []Scope
	Total  time.Duration
}

// ScopeStats aggregates one scope name over the retained frames.
type ScopeStats struct {
	Name  string
	Count int
	Mean  time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithHistory sets how many finished frames are retained.
func WithHistory(frames int) Option {
	return func(p *Profiler) {
		if frames > 0 {
			p.history = frames
		}
	}
}

// WithClock replaces time.Now. Tests use it for deterministic durations.
func WithClock(now func() time.Time) Option {
	return func(p *Profiler) {
		p.now = now
	}
}

// Profiler implements rg.Profiler. Scopes opened outside BeginFrame and
// EndFrame are timed but not retained.
//
// Thread safety: Profiler is safe for concurrent use.
type Profiler struct {
	mu      sync.Mutex
	now     func() time.Time
	history int

	frameIndex uint64
	frameStart time.Time
	inFrame    bool
	current    []Scope
	frames     []Frame
}

var _ rg.Profiler = (*Profiler)(nil)

// New creates a profiler.
func New(opts ...Option) *Profiler {
	p := &Profiler{now: time.Now, history: defaultHistory}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BeginFrame starts collecting scopes for a new frame.
func (p *Profiler) BeginFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameStart = p.now()
	p.inFrame = true
	p.current = nil
}

// BeginScope starts timing name. The returned function ends the scope;
// calling it more than once has no further effect.
func (p *Profiler) BeginScope(name string) func() {
	start := p.now()
	var once sync.Once
	return func() {
		once.Do(func() {
			end := p.now()
			p.mu.Lock()
			defer p.mu.Unlock()
			if !p.inFrame {
				return
			}
			p.current = append(p.current, Scope{
				Name:     name,
				Start:    start.Sub(p.frameStart),
				Duration: end.Sub(start),
			})
		})
	}
}

// EndFrame finishes the frame and returns it. The oldest frame is
// dropped once the history is full.
func (p *Profiler) EndFrame() Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := Frame{Index: p.frameIndex, Scopes: p.current}
	if p.inFrame {
		f.Total = p.now().Sub(p.frameStart)
	}
	p.frameIndex++
	p.inFrame = false
	p.current = nil

	if len(p.frames) == p.history {
		p.frames = slices.Delete(p.frames, 0, 1)
	}
	p.frames = append(p.frames, f)

	for _, s := range f.Scopes {
		rg.Logger().Debug("profiler: scope", "frame", f.Index, "name", s.Name, "duration", s.Duration)
	}
	return f
}

// Frames returns the retained frames, oldest first.
func (p *Profiler) Frames() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.frames)
}

// Stats aggregates every scope name over the retained frames, sorted by
// descending mean duration.
func (p *Profiler) Stats() []ScopeStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	byName := make(map[string]*ScopeStats)
	totals := make(map[string]time.Duration)
	for _, f := range p.frames {
		for _, s := range f.Scopes {
			st, ok := byName[s.Name]
			if !ok {
				st = &ScopeStats{Name: s.Name, Min: s.Duration, Max: s.Duration}
				byName[s.Name] = st
			}
			st.Count++
			st.Min = min(st.Min, s.Duration)
			st.Max = max(st.Max, s.Duration)
			totals[s.Name] += s.Duration
		}
	}

	out := make([]ScopeStats, 0, len(byName))
	for name, st := range byName {
		st.Mean = totals[name] / time.Duration(st.Count)
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b ScopeStats) int {
		if c := cmp.Compare(b.Mean, a.Mean); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// Reset drops all retained frames.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}
