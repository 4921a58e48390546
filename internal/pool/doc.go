// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pool provides a keyed object pool with a soft size limit.
//
// Several values may be parked under one key. Take hands out the most
// recently parked value for a key; Put parks a value and, when the pool
// holds more than its soft limit, evicts the least recently parked values
// through the eviction callback.
//
//	p := pool.New[desc, *Image](64, func(_ desc, img *Image) { img.Destroy(dev) })
//	p.Put(d, img)
//	img, ok := p.Take(d)
//
// # Thread Safety
//
// Pool is safe for concurrent use and must not be copied after creation.
package pool
