// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package coreerr defines the error taxonomy shared by every component of
// the pipeline core: a closed set of error codes plus a typed wrapper that
// carries the operation and underlying cause.
package coreerr

import (
	"errors"
	"fmt"
)

// Code enumerates the error variants of the core. These are the causes
// listed in spec.md §7 — a closed sum, not an open hierarchy.
type Code string

const (
	// CodeConfig marks an invalid configuration parameter, fatal at build time.
	CodeConfig Code = "config"
	// CodeCorruption marks on-disk corruption: bad magic, CRC mismatch, or a record-id gap.
	CodeCorruption Code = "corruption"
	// CodeInvalidIndex marks a negative index used where an unsigned one is required.
	CodeInvalidIndex Code = "invalid_index"
	// CodeLeafConflict marks a Kind conflict at a path's terminal position under the Reject strategy.
	CodeLeafConflict Code = "leaf_conflict"
	// CodeInnerConflict marks a Kind conflict at an intermediate path position under the Reject strategy.
	CodeInnerConflict Code = "inner_conflict"
	// CodeMergeIncompatible marks a metric add/subtract across shapes that cannot align.
	CodeMergeIncompatible Code = "merge_incompatible"
	// CodeSerializationOverflow marks a record larger than the configured max_record_size.
	CodeSerializationOverflow Code = "serialization_overflow"
)

// Error wraps an underlying cause with a stable code and the operation that
// produced it, so callers can branch with errors.Is/errors.As and structured
// logs can key a monotonic counter by Code.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Code, so callers can
// write errors.Is(err, coreerr.New(coreerr.CodeCorruption, "", nil)) or more
// idiomatically errors.Is(err, coreerr.Corruption).
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Code == e.Code
	}
	return false
}

// New builds an *Error for op with the given code, optionally wrapping cause.
func New(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// Sentinel values usable directly with errors.Is.
var (
	Config                = &Error{Code: CodeConfig}
	Corruption             = &Error{Code: CodeCorruption}
	InvalidIndex           = &Error{Code: CodeInvalidIndex}
	LeafConflict           = &Error{Code: CodeLeafConflict}
	InnerConflict          = &Error{Code: CodeInnerConflict}
	MergeIncompatible      = &Error{Code: CodeMergeIncompatible}
	SerializationOverflow  = &Error{Code: CodeSerializationOverflow}
)
