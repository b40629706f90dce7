// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package diskbuf

import (
	"time"

	"github.com/vectordotdev/vector-core/internal/telemetry"
)

type config struct {
	maxBufferSize   uint64
	maxDataFileSize uint64
	maxRecordSize   uint64
	writeBufferSize int
	flushInterval   time.Duration
	fs              Filesystem
	sink            telemetry.Sink
}

func defaultConfig() config {
	return config{
		maxBufferSize:   ^uint64(0),
		maxDataFileSize: DefaultMaxDataFileSize,
		maxRecordSize:   DefaultMaxRecordSize,
		writeBufferSize: DefaultWriteBufferSize,
		flushInterval:   DefaultFlushInterval,
		fs:              nil,
		sink:            telemetry.Noop,
	}
}

// Option configures Open, in the functional-options idiom used throughout
// the pack's contrib/*/option.go files (e.g. ddtrace/tracer.StartOption).
type Option func(*config)

// WithMaxBufferSize sets the user-visible on-disk cap. Defaults to
// effectively unlimited.
func WithMaxBufferSize(n uint64) Option { return func(c *config) { c.maxBufferSize = n } }

// WithMaxDataFileSize sets the per-file target size. Defaults to 128MiB.
func WithMaxDataFileSize(n uint64) Option { return func(c *config) { c.maxDataFileSize = n } }

// WithMaxRecordSize sets the hard per-record cap. Defaults to
// DefaultMaxRecordSize.
func WithMaxRecordSize(n uint64) Option { return func(c *config) { c.maxRecordSize = n } }

// WithWriteBufferSize sets the writer's in-memory coalescing buffer.
// Defaults to 256KiB.
func WithWriteBufferSize(n int) Option { return func(c *config) { c.writeBufferSize = n } }

// WithFlushInterval sets how often the writer flushes and fsyncs. Defaults
// to 500ms.
func WithFlushInterval(d time.Duration) Option { return func(c *config) { c.flushInterval = d } }

// WithFilesystem overrides the Filesystem implementation. Defaults to
// NewOSFilesystem(); tests pass NewMemFilesystem().
func WithFilesystem(fs Filesystem) Option { return func(c *config) { c.fs = fs } }

// WithSink wires a telemetry.Sink for corruption/backpressure/overflow
// counters. Defaults to telemetry.Noop.
func WithSink(sink telemetry.Sink) Option { return func(c *config) { c.sink = sink } }
