// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package metric

import (
	"time"

	"github.com/vectordotdev/vector-core/internal/eventmeta"
)

// MetricKind distinguishes whether Value is a delta since the last report
// (Incremental) or a point-in-time reading (Absolute).
type MetricKind int

const (
	Incremental MetricKind = iota
	Absolute
)

// Time is the optional timestamp/interval pair a metric carries.
type Time struct {
	Timestamp  *time.Time
	IntervalMs *uint32
}

// Metric is the C5 metric event: a named, tagged series with a typed value
// and its own metadata, independent of whether it travels wrapped in an
// Event (C6).
type Metric struct {
	Series   Series
	Kind     MetricKind
	Value    MetricValue
	Time     Time
	Metadata eventmeta.Metadata
}

// New returns an Incremental metric with freshly stamped metadata.
func New(series Series, value MetricValue) Metric {
	return Metric{Series: series, Kind: Incremental, Value: value, Metadata: eventmeta.New("metric")}
}

func (m Metric) WithKind(k MetricKind) Metric {
	m.Kind = k
	return m
}

func (m Metric) WithTimestamp(t time.Time) Metric {
	m.Time.Timestamp = &t
	return m
}

func (m Metric) WithInterval(d time.Duration) Metric {
	ms := uint32(d.Milliseconds())
	m.Time.IntervalMs = &ms
	return m
}

// Add merges other's value into m's, keeping m's series/kind/metadata. It
// reports false when the values are incompatible (see value.go's Add).
func (m Metric) Add(other Metric) (Metric, bool) {
	merged, ok := Add(m.Value, other.Value)
	if !ok {
		return Metric{}, false
	}
	m.Value = merged
	m.Metadata = m.Metadata.MergeFinalizers(other.Metadata)
	return m, true
}

// Subtract computes m's value minus other's, keeping m's series/kind.
func (m Metric) Subtract(other Metric) (Metric, bool) {
	diff, ok := Subtract(m.Value, other.Value)
	if !ok {
		return Metric{}, false
	}
	m.Value = diff
	return m, true
}
