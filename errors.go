// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a render graph failure.
type ErrorKind uint8

const (
	// KindAccessTypeMismatch: a Read/Write/Raster call received an access
	// type outside the class that call accepts.
	KindAccessTypeMismatch ErrorKind = iota + 1

	// KindResourceTypeMismatch: a registry lookup expected one resource kind
	// (image, buffer, acceleration structure) and found another.
	KindResourceTypeMismatch

	// KindTemporalStateViolation: a temporal resource was requested twice in
	// one frame, or the temporal state was retired while still imported.
	KindTemporalStateViolation

	// KindPendingResourceMisuse: the swapchain placeholder was touched
	// outside the presentation segment.
	KindPendingResourceMisuse

	// KindInvalidHandle: a handle does not name a resource the operation
	// can act on.
	KindInvalidHandle

	// KindResourceOverlap: a pass declared overlapping accesses to the same
	// resource while aliasing validation is enabled.
	KindResourceOverlap

	// KindRenderFnAlreadySet: Render was called more than once on a pass.
	KindRenderFnAlreadySet
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindAccessTypeMismatch:
		return "access type mismatch"
	case KindResourceTypeMismatch:
		return "resource type mismatch"
	case KindTemporalStateViolation:
		return "temporal state violation"
	case KindPendingResourceMisuse:
		return "pending resource misuse"
	case KindInvalidHandle:
		return "invalid handle"
	case KindResourceOverlap:
		return "resource overlap"
	case KindRenderFnAlreadySet:
		return "render function already set"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// Sentinel errors, one per kind. Match with errors.Is.
var (
	ErrAccessTypeMismatch     = &Error{Kind: KindAccessTypeMismatch}
	ErrResourceTypeMismatch   = &Error{Kind: KindResourceTypeMismatch}
	ErrTemporalStateViolation = &Error{Kind: KindTemporalStateViolation}
	ErrPendingResourceMisuse  = &Error{Kind: KindPendingResourceMisuse}
	ErrInvalidHandle          = &Error{Kind: KindInvalidHandle}
	ErrResourceOverlap        = &Error{Kind: KindResourceOverlap}
	ErrRenderFnAlreadySet     = &Error{Kind: KindRenderFnAlreadySet}
)

// ErrGraphFinished is returned when a PassBuilder is used after Finish.
var ErrGraphFinished = errors.New("rg: pass builder already finished")

// Error is the error type returned by graph construction, execution and
// temporal state operations.
type Error struct {
	Kind ErrorKind

	// Pass is the name of the pass being built or recorded, if any.
	Pass string

	// Detail is a human-readable description of the failure.
	Detail string

	// Err is an optional underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := "rg: " + e.Kind.String()
	if e.Pass != "" {
		msg += fmt.Sprintf(" in pass %q", e.Pass)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. This lets the
// package sentinels match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Pass == "" && t.Detail == "" && t.Err == nil
}

func newError(kind ErrorKind, pass, format string, args ...any) *Error {
	return &Error{Kind: kind, Pass: pass, Detail: fmt.Sprintf(format, args...)}
}
