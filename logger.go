// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called while a frame is being recorded elsewhere.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger for rg and its sub-packages.
// By default rg produces no log output. Pass nil to restore that.
//
// Log levels used by rg:
//   - [slog.LevelDebug]: resource materialization, barriers, pass recording
//   - [slog.LevelInfo]: pipeline compilation, temporal resource creation
//   - [slog.LevelWarn]: transient cache evictions, abandoned frames
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Sub-packages (transient, pipecache,
// dynconst) call this so one SetLogger call configures all of them.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
