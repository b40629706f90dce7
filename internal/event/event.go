// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package event is the C6 event envelope: Log, Metric, and Trace variants,
// each carrying its own eventmeta.Metadata.
package event

import (
	"fmt"

	"github.com/vectordotdev/vector-core/internal/eventmeta"
	"github.com/vectordotdev/vector-core/internal/metric"
	"github.com/vectordotdev/vector-core/internal/value"
)

// Kind discriminates the Event variants.
type Kind int

const (
	LogKind Kind = iota
	MetricKind
	TraceKind
)

func (k Kind) String() string {
	switch k {
	case LogKind:
		return "log"
	case MetricKind:
		return "metric"
	case TraceKind:
		return "trace"
	default:
		return "unknown"
	}
}

// Log is a structured log record: an arbitrary Value plus metadata.
type Log struct {
	Value    value.Value
	Metadata eventmeta.Metadata
}

// Trace is a span/trace record: an open field map plus metadata. Unlike
// Log, a Trace's top-level shape is always an object (spec.md §3:
// "Trace{fields: map, metadata}").
type Trace struct {
	Fields   *value.Object
	Metadata eventmeta.Metadata
}

// Event is the tagged union of Log, Metric, and Trace. The zero Event is
// invalid; construct via NewLog/NewMetric/NewTrace.
type Event struct {
	kind   Kind
	log    *Log
	metric *metric.Metric
	trace  *Trace
}

func NewLog(v value.Value) Event {
	return Event{kind: LogKind, log: &Log{Value: v, Metadata: eventmeta.New("log")}}
}

func NewLogWithMetadata(v value.Value, md eventmeta.Metadata) Event {
	return Event{kind: LogKind, log: &Log{Value: v, Metadata: md}}
}

func NewMetric(m metric.Metric) Event {
	return Event{kind: MetricKind, metric: &m}
}

func NewTrace(fields *value.Object, md eventmeta.Metadata) Event {
	return Event{kind: TraceKind, trace: &Trace{Fields: fields, Metadata: md}}
}

func (e Event) Kind() Kind { return e.kind }

func (e Event) mustBe(k Kind) {
	if e.kind != k {
		panic(fmt.Sprintf("event: value is %s, not %s", e.kind, k))
	}
}

func (e Event) AsLog() *Log {
	e.mustBe(LogKind)
	return e.log
}

func (e Event) AsMetric() *metric.Metric {
	e.mustBe(MetricKind)
	return e.metric
}

func (e Event) AsTrace() *Trace {
	e.mustBe(TraceKind)
	return e.trace
}

// Metadata returns the metadata of whichever variant e holds.
func (e Event) Metadata() eventmeta.Metadata {
	switch e.kind {
	case LogKind:
		return e.log.Metadata
	case MetricKind:
		return e.metric.Metadata
	case TraceKind:
		return e.trace.Metadata
	default:
		return eventmeta.Metadata{}
	}
}

// WithMetadata returns a copy of e with its variant's metadata replaced.
func (e Event) WithMetadata(md eventmeta.Metadata) Event {
	switch e.kind {
	case LogKind:
		l := *e.log
		l.Metadata = md
		e.log = &l
	case MetricKind:
		m := *e.metric
		m.Metadata = md
		e.metric = &m
	case TraceKind:
		tr := *e.trace
		tr.Metadata = md
		e.trace = &tr
	}
	return e
}

// EstimatedJSONSize approximates the wire footprint used by the batcher's
// size-limit accounting (spec.md §4.3 "size_limit" applies in bytes). A
// cheap structural estimate is used rather than a real encode, since the
// batcher only needs a monotonic, roughly-proportional measure.
func (e Event) EstimatedJSONSize() int {
	switch e.kind {
	case LogKind:
		return value.EstimatedJSONSize(e.log.Value)
	case MetricKind:
		return 64 // fixed-ish overhead; metric payloads are small relative to logs.
	case TraceKind:
		size := 16
		for _, k := range e.trace.Fields.Keys() {
			v, _ := e.trace.Fields.Get(k)
			size += len(k) + value.EstimatedJSONSize(v)
		}
		return size
	default:
		return 0
	}
}
