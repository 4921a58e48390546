// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pool

import (
	"slices"
	"sync"
)

// Pool is a keyed multi-value pool with LRU eviction.
type Pool[K comparable, V any] struct {
	mu        sync.Mutex
	entries   map[K][]entry[V]
	count     int
	softLimit int
	tick      int64 // Monotonic put counter
	onEvict   func(K, V)

	hits, misses, evictions uint64
}

type entry[V any] struct {
	value V
	atime int64
}

// New creates a pool holding at most softLimit values. A softLimit of 0
// means unlimited. onEvict, if non-nil, receives every evicted value.
func New[K comparable, V any](softLimit int, onEvict func(K, V)) *Pool[K, V] {
	return &Pool[K, V]{
		entries:   make(map[K][]entry[V]),
		softLimit: softLimit,
		onEvict:   onEvict,
	}
}

// Take removes and returns the most recently parked value for key.
func (p *Pool[K, V]) Take(key K) (V, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.entries[key]
	if len(list) == 0 {
		p.misses++
		var zero V
		return zero, false
	}
	last := list[len(list)-1]
	if len(list) == 1 {
		delete(p.entries, key)
	} else {
		p.entries[key] = list[:len(list)-1]
	}
	p.count--
	p.hits++
	return last.value, true
}

// Put parks value under key.
func (p *Pool[K, V]) Put(key K, value V) {
	p.mu.Lock()
	p.tick++
	p.entries[key] = append(p.entries[key], entry[V]{value: value, atime: p.tick})
	p.count++

	var evicted []evictedEntry[K, V]
	if p.softLimit > 0 && p.count > p.softLimit {
		evicted = p.evictOldest()
	}
	p.mu.Unlock()

	// Callbacks run unlocked so they may touch the pool.
	if p.onEvict != nil {
		for _, e := range evicted {
			p.onEvict(e.key, e.value)
		}
	}
}

type evictedEntry[K comparable, V any] struct {
	key   K
	value V
	atime int64
}

// evictOldest removes the oldest entries until the pool is at 3/4 of its
// soft limit. Caller must hold p.mu.
func (p *Pool[K, V]) evictOldest() []evictedEntry[K, V] {
	target := max(p.softLimit*3/4, 1)
	toEvict := p.count - target
	if toEvict <= 0 {
		return nil
	}

	all := make([]evictedEntry[K, V], 0, p.count)
	for key, list := range p.entries {
		for _, e := range list {
			all = append(all, evictedEntry[K, V]{key: key, value: e.value, atime: e.atime})
		}
	}
	slices.SortFunc(all, func(a, b evictedEntry[K, V]) int {
		switch {
		case a.atime < b.atime:
			return -1
		case a.atime > b.atime:
			return 1
		}
		return 0
	})
	victims := all[:toEvict]

	for _, v := range victims {
		list := p.entries[v.key]
		list = slices.DeleteFunc(list, func(e entry[V]) bool { return e.atime == v.atime })
		if len(list) == 0 {
			delete(p.entries, v.key)
		} else {
			p.entries[v.key] = list
		}
	}
	p.count -= len(victims)
	p.evictions += uint64(len(victims))
	return victims
}

// Drain empties the pool, passing every value to fn.
func (p *Pool[K, V]) Drain(fn func(K, V)) {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[K][]entry[V])
	p.count = 0
	p.mu.Unlock()

	if fn == nil {
		return
	}
	for key, list := range entries {
		for _, e := range list {
			fn(key, e.value)
		}
	}
}

// Len returns the number of parked values.
func (p *Pool[K, V]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Capacity returns the soft limit.
func (p *Pool[K, V]) Capacity() int {
	return p.softLimit
}

// Stats returns pool statistics.
func (p *Pool[K, V]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Len:       p.count,
		Keys:      len(p.entries),
		Capacity:  p.softLimit,
		Hits:      p.hits,
		Misses:    p.misses,
		Evictions: p.evictions,
	}
	if total := p.hits + p.misses; total > 0 {
		s.HitRate = float64(p.hits) / float64(total)
	}
	return s
}

// Stats contains pool statistics.
type Stats struct {
	// Len is the number of parked values.
	Len int
	// Keys is the number of distinct keys with parked values.
	Keys int
	// Capacity is the soft limit.
	Capacity int
	// Hits and Misses count Take calls that found or did not find a value.
	Hits   uint64
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0 when there were no calls.
	HitRate float64
	// Evictions is the number of values evicted.
	Evictions uint64
}
