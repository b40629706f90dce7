// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package reduce

import (
	"strings"

	"github.com/vectordotdev/vector-core/internal/value"
)

// MergeStrategy names how a field accumulates across the events folded
// into one reduced event (spec.md §4.4).
type MergeStrategy int

const (
	// StrategyRetain keeps the most recently seen value, same as the
	// default applied to fields with no configured strategy.
	StrategyRetain MergeStrategy = iota
	// StrategyDiscard keeps the first value seen and ignores the rest.
	StrategyDiscard
	StrategySum
	StrategyMin
	StrategyMax
	StrategyArray
	StrategyConcat
	StrategyFlatUnique
)

// merger accumulates a single field's value across a reduce group.
type merger interface {
	add(v value.Value)
	value() value.Value
}

func newMerger(v value.Value, strategy MergeStrategy, hasStrategy bool) merger {
	if !hasStrategy {
		return &retainMerger{v: v}
	}
	switch strategy {
	case StrategyDiscard:
		return &discardMerger{v: v}
	case StrategySum:
		return &sumMerger{v: v}
	case StrategyMin:
		return &extremeMerger{v: v, keepMin: true}
	case StrategyMax:
		return &extremeMerger{v: v, keepMin: false}
	case StrategyArray:
		return &arrayMerger{items: []value.Value{v}}
	case StrategyConcat:
		return newConcatMerger(v)
	case StrategyFlatUnique:
		return newFlatUniqueMerger(v)
	default:
		return &retainMerger{v: v}
	}
}

type retainMerger struct{ v value.Value }

func (m *retainMerger) add(v value.Value)   { m.v = v }
func (m *retainMerger) value() value.Value { return m.v }

type discardMerger struct{ v value.Value }

func (m *discardMerger) add(value.Value)    {}
func (m *discardMerger) value() value.Value { return m.v }

// asFloat reports v's numeric value, treating non-numeric values as absent
// rather than erroring: a misconfigured sum/min/max field just stops
// accumulating instead of poisoning the whole reduce group.
func asFloat(v value.Value) (float64, bool) {
	switch v.Kind() {
	case value.KindInteger:
		return float64(v.AsInteger()), true
	case value.KindFloat:
		return v.AsFloat().Float64(), true
	default:
		return 0, false
	}
}

type sumMerger struct{ v value.Value }

func (m *sumMerger) add(v value.Value) {
	cur, ok1 := asFloat(m.v)
	next, ok2 := asFloat(v)
	if !ok1 || !ok2 {
		return
	}
	if m.v.Kind() == value.KindInteger && v.Kind() == value.KindInteger {
		m.v = value.Integer(v.AsInteger() + m.v.AsInteger())
		return
	}
	m.v = value.FloatValue(value.MustFloat(cur + next))
}
func (m *sumMerger) value() value.Value { return m.v }

type extremeMerger struct {
	v       value.Value
	keepMin bool
}

func (m *extremeMerger) add(v value.Value) {
	cur, ok1 := asFloat(m.v)
	next, ok2 := asFloat(v)
	if !ok1 || !ok2 {
		return
	}
	if (m.keepMin && next < cur) || (!m.keepMin && next > cur) {
		m.v = v
	}
}
func (m *extremeMerger) value() value.Value { return m.v }

type arrayMerger struct{ items []value.Value }

func (m *arrayMerger) add(v value.Value)   { m.items = append(m.items, v) }
func (m *arrayMerger) value() value.Value { return value.Array(m.items) }

// concatMerger joins string fields with a space, or concatenates array
// fields element-wise, per spec.md §4.4's "string concatenation with
// separator space, or array concatenation".
type concatMerger struct {
	isArray bool
	strs    []string
	items   []value.Value
}

func newConcatMerger(v value.Value) *concatMerger {
	m := &concatMerger{isArray: v.Kind() == value.KindArray}
	m.append(v)
	return m
}

func (m *concatMerger) append(v value.Value) {
	if m.isArray && v.Kind() == value.KindArray {
		m.items = append(m.items, v.AsArray()...)
		return
	}
	if v.Kind() == value.KindBytes {
		m.strs = append(m.strs, string(v.AsBytes()))
	}
}

func (m *concatMerger) add(v value.Value) { m.append(v) }

func (m *concatMerger) value() value.Value {
	if m.isArray {
		return value.Array(m.items)
	}
	out := ""
	for i, s := range m.strs {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return value.BytesString(out)
}

// flatUniqueMerger flattens array values (scalars count as one-element
// arrays) and keeps only the first occurrence of each distinct value.
type flatUniqueMerger struct {
	seen  map[string]struct{}
	items []value.Value
}

func newFlatUniqueMerger(v value.Value) *flatUniqueMerger {
	m := &flatUniqueMerger{seen: make(map[string]struct{})}
	m.add(v)
	return m
}

func (m *flatUniqueMerger) add(v value.Value) {
	items := []value.Value{v}
	if v.Kind() == value.KindArray {
		items = v.AsArray()
	}
	for _, item := range items {
		var b strings.Builder
		writeCanonical(&b, item)
		key := b.String()
		if _, ok := m.seen[key]; ok {
			continue
		}
		m.seen[key] = struct{}{}
		m.items = append(m.items, item)
	}
}

func (m *flatUniqueMerger) value() value.Value { return value.Array(m.items) }
