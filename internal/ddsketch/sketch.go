// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package ddsketch is the C4 relative-error quantile sketch. It is a thin
// domain wrapper around the real github.com/DataDog/sketches-go/ddsketch
// library (the same one pkg/trace/stats and the datastreams processor use),
// adding Vector's own (keys, counts) int16/uint16 bin-map wire format on
// top of the library's protobuf-oriented one.
package ddsketch

import (
	"fmt"
	"math"

	ddsk "github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/mapping"
	"github.com/DataDog/sketches-go/ddsketch/pb/sketchpb"
	"github.com/DataDog/sketches-go/ddsketch/store"
	"google.golang.org/protobuf/proto"
)

// DefaultAlpha is the default relative accuracy, chosen to match the
// Datadog Agent's own sketches (spec.md §3: "default α ≈ 0.00775").
const DefaultAlpha = 0.00775

var defaultMapping, _ = mapping.NewLogarithmicMapping(DefaultAlpha)

// Sketch is a mergeable, serializable relative-error quantile sketch.
type Sketch struct {
	inner *ddsk.DDSketch
}

// New returns an empty Sketch at the default relative accuracy.
func New() *Sketch {
	return &Sketch{inner: ddsk.NewDDSketch(defaultMapping, store.DenseStoreConstructor(), store.DenseStoreConstructor())}
}

// Insert adds one occurrence of v. O(1).
func (s *Sketch) Insert(v float64) error {
	return s.inner.Add(v)
}

// InsertN adds n occurrences of v. O(1).
func (s *Sketch) InsertN(v float64, n float64) error {
	return s.inner.AddWithCount(v, n)
}

// Quantile returns the q-quantile (q in [0,1]), or false if the sketch is
// empty.
func (s *Sketch) Quantile(q float64) (float64, bool) {
	if s.Count() == 0 {
		return 0, false
	}
	v, err := s.inner.GetValueAtQuantile(q)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Count returns the total number of inserted values.
func (s *Sketch) Count() uint64 {
	return uint64(s.inner.GetCount())
}

// Sum, Min, Max, Avg return the unset sentinel (0, false) for an empty
// sketch, per spec.md §3's "empty sketch has ... all aggregates unset".
func (s *Sketch) Sum() (float64, bool) {
	if s.Count() == 0 {
		return 0, false
	}
	return s.inner.GetSum(), true
}

func (s *Sketch) Min() (float64, bool) {
	v, err := s.inner.GetMinValue()
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s *Sketch) Max() (float64, bool) {
	v, err := s.inner.GetMaxValue()
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s *Sketch) Avg() (float64, bool) {
	sum, ok := s.Sum()
	if !ok {
		return 0, false
	}
	return sum / float64(s.Count()), true
}

// Merge merges other into s in place (spec.md §4.2: sums bin counts
// key-wise, propagates count/sum/min/max/avg).
func (s *Sketch) Merge(other *Sketch) error {
	return s.inner.MergeWith(other.inner)
}

// Clone returns an independent copy of s; mutating the result never
// affects s.
func (s *Sketch) Clone() *Sketch {
	return &Sketch{inner: s.inner.Copy()}
}

// ToProtoBytes serializes s via the upstream library's own protobuf
// message (sketchpb.DDSketch), used by the APM-stats aggregator's
// StatsPayload wire format rather than Vector's (keys, counts) format.
func (s *Sketch) ToProtoBytes() ([]byte, error) {
	return proto.Marshal(s.inner.ToProto())
}

// FromProtoBytes reconstructs a Sketch from bytes produced by ToProtoBytes.
func FromProtoBytes(b []byte) (*Sketch, error) {
	var msg sketchpb.DDSketch
	if err := proto.Unmarshal(b, &msg); err != nil {
		return nil, err
	}
	inner, err := ddsk.FromProto(&msg)
	if err != nil {
		return nil, err
	}
	return &Sketch{inner: inner}, nil
}

// BinMap emits Vector's on-wire (keys, counts) representation: keys sorted
// ascending, counts aligned, each clamped to uint16 with saturation
// (spec.md §4.2: "Bin counts are clamped to u16::MAX on overflow").
func (s *Sketch) BinMap() ([]int16, []uint16) {
	type kv struct {
		key   int16
		count uint16
	}
	var bins []kv
	s.inner.ForEach(func(value, count float64) bool {
		idx := s.inner.IndexMapping.Index(value)
		bins = append(bins, kv{key: clampInt16(idx), count: clampUint16(count)})
		return false
	})
	// Merge duplicate keys that collapsed under int16 clamping.
	merged := make(map[int16]uint16, len(bins))
	for _, b := range bins {
		c := merged[b.key]
		sum := uint32(c) + uint32(b.count)
		if sum > math.MaxUint16 {
			sum = math.MaxUint16
		}
		merged[b.key] = uint16(sum)
	}
	keys := make([]int16, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sortInt16(keys)
	counts := make([]uint16, len(keys))
	for i, k := range keys {
		counts[i] = merged[k]
	}
	return keys, counts
}

// FromRaw reconstructs a Sketch from the wire representation. It fails iff
// len(keys) != len(counts) (spec.md §4.2).
func FromRaw(count uint64, minV, maxV, sumV, avgV float64, keys []int16, counts []uint16) (*Sketch, error) {
	if len(keys) != len(counts) {
		return nil, fmt.Errorf("ddsketch: keys/counts length mismatch: %d vs %d", len(keys), len(counts))
	}
	s := New()
	for i, k := range keys {
		v := defaultMapping.Value(int(k))
		if err := s.InsertN(v, float64(counts[i])); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func sortInt16(s []int16) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func clampInt16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func clampUint16(v float64) uint16 {
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	if v < 0 {
		return 0
	}
	return uint16(v)
}
