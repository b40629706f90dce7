// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package obslog is the structured logger shared by every core component.
// It defaults to a no-op logger, the way the rest of the pipeline expects to
// run silently until a host process wires in its own zap.Logger.
package obslog

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// SetLogger replaces the package-wide logger. Passing nil restores the no-op
// logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// L returns the current logger, scoped with name so every component's lines
// are attributable (e.g. obslog.L("diskbuf")).
func L(name string) *zap.Logger {
	return current.Load().Named(name)
}

// ErrorCode is the zap.Field every corruption/overflow/config log line
// carries, keyed the same way the paired counter in internal/telemetry is,
// so a log line and a counter increment always correlate (spec.md §7:
// "structured logs with a stable error_code and monotonic counters").
func ErrorCode(code string) zap.Field {
	return zap.String("error_code", code)
}
