package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotSupported is matched by DialectCapabilityError via errors.Is.
var ErrNotSupported = errors.New("not supported by dialect")

// ParseError reports malformed expression DSL text.
type ParseError struct {
	Dataset  string
	Column   string
	Pos      int    // byte offset into the input
	Fragment string // offending fragment
	Message  string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse error")
	if e.Dataset != "" {
		fmt.Fprintf(&b, " in %s", e.Dataset)
		if e.Column != "" {
			fmt.Fprintf(&b, ".%s", e.Column)
		}
	}
	fmt.Fprintf(&b, " at offset %d: %s", e.Pos, e.Message)
	if e.Fragment != "" {
		fmt.Fprintf(&b, " (near %q)", e.Fragment)
	}
	return b.String()
}

// LineageIncompleteError reports that no natural/business key could be resolved.
type LineageIncompleteError struct {
	Dataset string
	Column  string
	Reason  string
}

func (e *LineageIncompleteError) Error() string {
	target := e.Dataset
	if e.Column != "" {
		target += "." + e.Column
	}
	return fmt.Sprintf("lineage incomplete for %s: %s", target, e.Reason)
}

// DialectCapabilityError reports a feature requested on a dialect lacking it.
type DialectCapabilityError struct {
	Dialect    string
	Capability string
	Dataset    string
}

func (e *DialectCapabilityError) Error() string {
	if e.Dataset != "" {
		return fmt.Sprintf("dialect %q does not support %s (dataset %s)", e.Dialect, e.Capability, e.Dataset)
	}
	return fmt.Sprintf("dialect %q does not support %s", e.Dialect, e.Capability)
}

// Is lets errors.Is(err, ErrNotSupported) match capability errors.
func (e *DialectCapabilityError) Is(target error) bool {
	return target == ErrNotSupported
}

// DriftKind classifies a blocking schema drift.
type DriftKind string

// Drift kind constants.
const (
	DriftNarrowing      DriftKind = "narrowing"
	DriftIncompatible   DriftKind = "incompatible"
	DriftRenameConflict DriftKind = "rename_conflict"
)

// TypeDriftBlockingError reports a schema change that cannot be applied safely.
type TypeDriftBlockingError struct {
	Dataset  string
	Column   string
	Kind     DriftKind
	Declared string
	Physical string
}

func (e *TypeDriftBlockingError) Error() string {
	switch e.Kind {
	case DriftRenameConflict:
		if e.Column != "" {
			return fmt.Sprintf("schema drift blocked for %s.%s: both %q and former name %q exist physically; resolve manually",
				e.Dataset, e.Column, e.Declared, e.Physical)
		}
		return fmt.Sprintf("schema drift blocked for %s: both %q and former name %q exist physically; resolve manually",
			e.Dataset, e.Declared, e.Physical)
	default:
		return fmt.Sprintf("schema drift blocked for %s.%s: %s change from physical %s to declared %s",
			e.Dataset, e.Column, e.Kind, e.Physical, e.Declared)
	}
}

// ExecutionError reports a failure while running rendered SQL.
type ExecutionError struct {
	Dataset string
	Phase   string
	Attempt int
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of %s failed (phase %s, attempt %d): %v", e.Dataset, e.Phase, e.Attempt, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError reports that every allowed attempt of a step failed.
type RetryExhaustedError struct {
	Dataset  string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted for %s after %d attempts: %v", e.Dataset, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// CycleError reports a cycle in the dataset dependency graph.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// IsBlocking reports whether err must stop a dataset before any rendering or execution.
func IsBlocking(err error) bool {
	var (
		pe *ParseError
		le *LineageIncompleteError
		ce *DialectCapabilityError
		de *TypeDriftBlockingError
	)
	return errors.As(err, &pe) || errors.As(err, &le) || errors.As(err, &ce) || errors.As(err, &de)
}
