// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package metric

import (
	"fmt"

	"github.com/vectordotdev/vector-core/internal/ddsketch"
)

// ValueKind discriminates the MetricValue variants of spec.md §3.
type ValueKind int

const (
	KindCounter ValueKind = iota
	KindGauge
	KindSet
	KindDistribution
	KindAggregatedHistogram
	KindAggregatedSummary
	KindSketch
)

func (k ValueKind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindSet:
		return "set"
	case KindDistribution:
		return "distribution"
	case KindAggregatedHistogram:
		return "aggregated_histogram"
	case KindAggregatedSummary:
		return "aggregated_summary"
	case KindSketch:
		return "sketch"
	default:
		return "unknown"
	}
}

// StatisticKind distinguishes how Distribution samples should be summarized
// downstream.
type StatisticKind int

const (
	Histogram StatisticKind = iota
	Summary
)

// Sample is one (value, weight) observation in a Distribution.
type Sample struct {
	Value float64
	Rate  uint32
}

// Bucket is one upper-bound/count pair in an AggregatedHistogram.
type Bucket struct {
	UpperLimit float64
	Count      uint64
}

// Quantile is one quantile/value pair in an AggregatedSummary.
type Quantile struct {
	Quantile float64
	Value    float64
}

// MetricValue is the tagged union of spec.md §3's MetricValue variants. The
// zero value is invalid; construct via the Value* functions below.
type MetricValue struct {
	kind ValueKind

	scalar float64 // Counter, Gauge

	set SortedSet

	samples   []Sample // Distribution
	statistic StatisticKind

	buckets   []Bucket // AggregatedHistogram
	histCount uint64
	histSum   float64

	quantiles []Quantile // AggregatedSummary
	sumCount  uint64
	sumSum    float64

	sketch *ddsketch.Sketch
}

func (v MetricValue) Kind() ValueKind { return v.kind }

func CounterValue(value float64) MetricValue {
	return MetricValue{kind: KindCounter, scalar: value}
}

func GaugeValue(value float64) MetricValue {
	return MetricValue{kind: KindGauge, scalar: value}
}

func SetValue(items []string) MetricValue {
	return MetricValue{kind: KindSet, set: NewSortedSet(items)}
}

func DistributionValue(samples []Sample, statistic StatisticKind) MetricValue {
	cp := make([]Sample, len(samples))
	copy(cp, samples)
	return MetricValue{kind: KindDistribution, samples: cp, statistic: statistic}
}

func AggregatedHistogramValue(buckets []Bucket, count uint64, sum float64) MetricValue {
	cp := make([]Bucket, len(buckets))
	copy(cp, buckets)
	return MetricValue{kind: KindAggregatedHistogram, buckets: cp, histCount: count, histSum: sum}
}

func AggregatedSummaryValue(quantiles []Quantile, count uint64, sum float64) MetricValue {
	cp := make([]Quantile, len(quantiles))
	copy(cp, quantiles)
	return MetricValue{kind: KindAggregatedSummary, quantiles: cp, sumCount: count, sumSum: sum}
}

func SketchValue(s *ddsketch.Sketch) MetricValue {
	return MetricValue{kind: KindSketch, sketch: s}
}

func (v MetricValue) mustBe(k ValueKind) {
	if v.kind != k {
		panic(fmt.Sprintf("metric: value is %s, not %s", v.kind, k))
	}
}

func (v MetricValue) AsCounter() float64 {
	v.mustBe(KindCounter)
	return v.scalar
}

func (v MetricValue) AsGauge() float64 {
	v.mustBe(KindGauge)
	return v.scalar
}

func (v MetricValue) AsSet() SortedSet {
	v.mustBe(KindSet)
	return v.set
}

func (v MetricValue) AsDistribution() ([]Sample, StatisticKind) {
	v.mustBe(KindDistribution)
	return v.samples, v.statistic
}

func (v MetricValue) AsAggregatedHistogram() ([]Bucket, uint64, float64) {
	v.mustBe(KindAggregatedHistogram)
	return v.buckets, v.histCount, v.histSum
}

func (v MetricValue) AsAggregatedSummary() ([]Quantile, uint64, float64) {
	v.mustBe(KindAggregatedSummary)
	return v.quantiles, v.sumCount, v.sumSum
}

func (v MetricValue) AsSketch() *ddsketch.Sketch {
	v.mustBe(KindSketch)
	return v.sketch
}

// Zero resets v in place to the identity value for its kind (spec has no
// direct Zero contract, but the reducer's "sum" merge strategy needs a
// starting point per kind; grounded in original_source's MetricValue::zero).
func (v MetricValue) Zero() MetricValue {
	switch v.kind {
	case KindCounter, KindGauge:
		return MetricValue{kind: v.kind, scalar: 0}
	case KindSet:
		return MetricValue{kind: KindSet}
	case KindDistribution:
		return MetricValue{kind: KindDistribution, statistic: v.statistic}
	case KindAggregatedHistogram:
		zeroed := make([]Bucket, len(v.buckets))
		for i, b := range v.buckets {
			zeroed[i] = Bucket{UpperLimit: b.UpperLimit}
		}
		return MetricValue{kind: KindAggregatedHistogram, buckets: zeroed}
	case KindAggregatedSummary:
		zeroed := make([]Quantile, len(v.quantiles))
		for i, q := range v.quantiles {
			zeroed[i] = Quantile{Quantile: q.Quantile}
		}
		return MetricValue{kind: KindAggregatedSummary, quantiles: zeroed}
	case KindSketch:
		return MetricValue{kind: KindSketch, sketch: ddsketch.New()}
	}
	return v
}

// Add merges other into v, returning the merged value and false if the
// variants are incompatible (different kind, or same kind but with
// defining characteristics that differ — e.g. histograms with different
// bucket layouts). Mirrors original_source's MetricValue::add bool
// contract rather than returning an error, since "can't merge these two"
// is an expected, common outcome the caller must branch on either way.
func Add(a, b MetricValue) (MetricValue, bool) {
	if a.kind != b.kind {
		return MetricValue{}, false
	}
	switch a.kind {
	case KindCounter, KindGauge:
		return MetricValue{kind: a.kind, scalar: a.scalar + b.scalar}, true

	case KindSet:
		return MetricValue{kind: KindSet, set: a.set.Union(b.set)}, true

	case KindDistribution:
		if a.statistic != b.statistic {
			return MetricValue{}, false
		}
		merged := make([]Sample, 0, len(a.samples)+len(b.samples))
		merged = append(merged, a.samples...)
		merged = append(merged, b.samples...)
		return MetricValue{kind: KindDistribution, samples: merged, statistic: a.statistic}, true

	case KindAggregatedHistogram:
		if !bucketsAligned(a.buckets, b.buckets) {
			return MetricValue{}, false
		}
		merged := make([]Bucket, len(a.buckets))
		for i := range a.buckets {
			merged[i] = Bucket{UpperLimit: a.buckets[i].UpperLimit, Count: a.buckets[i].Count + b.buckets[i].Count}
		}
		return MetricValue{kind: KindAggregatedHistogram, buckets: merged, histCount: a.histCount + b.histCount, histSum: a.histSum + b.histSum}, true

	case KindAggregatedSummary:
		if !quantilesAligned(a.quantiles, b.quantiles) {
			return MetricValue{}, false
		}
		// Summaries are pre-aggregated snapshots; a merge keeps a's
		// quantile values (they are not additive) but sums count/sum.
		merged := make([]Quantile, len(a.quantiles))
		copy(merged, a.quantiles)
		return MetricValue{kind: KindAggregatedSummary, quantiles: merged, sumCount: a.sumCount + b.sumCount, sumSum: a.sumSum + b.sumSum}, true

	case KindSketch:
		// Clone a's sketch so the caller's original is untouched, matching
		// the value semantics every other branch has.
		clone := a.sketch.Clone()
		if err := clone.Merge(b.sketch); err != nil {
			return MetricValue{}, false
		}
		return MetricValue{kind: KindSketch, sketch: clone}, true
	}
	return MetricValue{}, false
}

// ErrCounterReset is returned by Subtract when a Counter's value decreased,
// which is treated as a process restart rather than a valid delta
// (spec.md §3: "counter subtract requires monotonicity and returns
// 'reset' otherwise").
var ErrCounterReset = fmt.Errorf("metric: counter value decreased, treating as reset")

// Subtract computes a - b, returning false if the variants are
// incompatible or the subtraction is undefined for this pair (a
// non-monotonic counter, non-unique distribution samples, misaligned
// histogram buckets).
func Subtract(a, b MetricValue) (MetricValue, bool) {
	if a.kind != b.kind {
		return MetricValue{}, false
	}
	switch a.kind {
	case KindCounter:
		if a.scalar < b.scalar {
			return MetricValue{}, false
		}
		return MetricValue{kind: KindCounter, scalar: a.scalar - b.scalar}, true

	case KindGauge:
		return MetricValue{kind: KindGauge, scalar: a.scalar - b.scalar}, true

	case KindSet:
		return MetricValue{kind: KindSet, set: a.set.Difference(b.set)}, true

	case KindDistribution:
		if a.statistic != b.statistic || !samplesUnique(a.samples) || !samplesUnique(b.samples) {
			return MetricValue{}, false
		}
		bSet := make(map[Sample]struct{}, len(b.samples))
		for _, s := range b.samples {
			bSet[s] = struct{}{}
		}
		out := make([]Sample, 0, len(a.samples))
		for _, s := range a.samples {
			if _, ok := bSet[s]; !ok {
				out = append(out, s)
			}
		}
		return MetricValue{kind: KindDistribution, samples: out, statistic: a.statistic}, true

	case KindAggregatedHistogram:
		if a.histCount < b.histCount || !bucketsAligned(a.buckets, b.buckets) {
			return MetricValue{}, false
		}
		out := make([]Bucket, len(a.buckets))
		for i := range a.buckets {
			out[i] = Bucket{UpperLimit: a.buckets[i].UpperLimit, Count: a.buckets[i].Count - b.buckets[i].Count}
		}
		return MetricValue{kind: KindAggregatedHistogram, buckets: out, histCount: a.histCount - b.histCount, histSum: a.histSum - b.histSum}, true

	case KindAggregatedSummary:
		if a.sumCount < b.sumCount || !quantilesAligned(a.quantiles, b.quantiles) {
			return MetricValue{}, false
		}
		out := make([]Quantile, len(a.quantiles))
		copy(out, a.quantiles)
		return MetricValue{kind: KindAggregatedSummary, quantiles: out, sumCount: a.sumCount - b.sumCount, sumSum: a.sumSum - b.sumSum}, true

	case KindSketch:
		// Sketches are not invertible; subtraction is never defined.
		return MetricValue{}, false
	}
	return MetricValue{}, false
}

func bucketsAligned(a, b []Bucket) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].UpperLimit != b[i].UpperLimit {
			return false
		}
	}
	return true
}

func quantilesAligned(a, b []Quantile) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Quantile != b[i].Quantile {
			return false
		}
	}
	return true
}

func samplesUnique(samples []Sample) bool {
	seen := make(map[Sample]struct{}, len(samples))
	for _, s := range samples {
		if _, ok := seen[s]; ok {
			return false
		}
		seen[s] = struct{}{}
	}
	return true
}
