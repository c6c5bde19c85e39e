// Package errs defines the closed set of first-class error kinds used
// across the registry, scheduler and persistence layers.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies the kind of a failure: one of the seven first-class
// error kinds, or Cycle for a strict-acyclic connect. The set is closed:
// every failure surfaced across a control-plane operation carries one of
// these.
type Code string

const (
	// NotFound is returned for an unknown instance, type, port or
	// workspace name.
	NotFound Code = "NotFound"
	// TypeMismatch is returned when connection endpoints have
	// incompatible port types.
	TypeMismatch Code = "TypeMismatch"
	// PortBusy is returned when a target input already has an edge.
	PortBusy Code = "PortBusy"
	// Validation is returned for an out-of-range/options property value
	// or a malformed request.
	Validation Code = "Validation"
	// LoadFailed is returned when a workspace file is absent or
	// corrupted.
	LoadFailed Code = "LoadFailed"
	// ReloadFailed is returned when a hot-reload source could not be
	// parsed or lacks a process implementation.
	ReloadFailed Code = "ReloadFailed"
	// NodeRuntime is returned when a node's process or action callback
	// raised (panicked or returned an error).
	NodeRuntime Code = "NodeRuntime"
	// Cycle is returned only when the caller requested strict
	// acyclicity and the connection would introduce a cycle.
	Cycle Code = "Cycle"
)

// Error is the structured, code-bearing error returned by every core
// operation. It wraps an optional cause and carries enough context
// (the offending node, if any) for an error frame per spec ch.7.
type Error struct {
	Code    Code
	Message string
	Node    string // offending instance ID, empty if not node-specific
	Cause   error
}

func (e *Error) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: %s (node %s)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match two *Error values by code alone, e.g.
// errors.Is(err, errs.New(errs.NotFound, "")). A non-*Error target never
// matches; use HasCode to test a bare Code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// New builds an *Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error with the given code, wrapping cause.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ForNode attaches a node ID to an existing *Error, returning a copy.
func ForNode(err *Error, nodeID string) *Error {
	cp := *err
	cp.Node = nodeID
	return &cp
}

// HasCode reports whether err (or something it wraps) carries code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
