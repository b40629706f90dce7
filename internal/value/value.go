// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package value implements the tagged-union runtime value model (C1):
// every event field, at any depth, is one of these variants.
package value

import (
	"fmt"
	"math"
	"time"
)

// Kind is the discriminant of a Value. Named VariantKind to avoid colliding
// with the separate static-description type in package kind.
type VariantKind int

const (
	KindNull VariantKind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindBytes
	KindTimestamp
	KindRegex
	KindArray
	KindObject
)

func (k VariantKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBytes:
		return "bytes"
	case KindTimestamp:
		return "timestamp"
	case KindRegex:
		return "regex"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Float wraps a float64 and forbids NaN, so Value equality and hashing stay
// total (spec.md §3: "Floats are wrapped to forbid NaN").
type Float struct {
	f float64
}

// NewFloat constructs a Float, returning an error if v is NaN.
func NewFloat(v float64) (Float, error) {
	if math.IsNaN(v) {
		return Float{}, fmt.Errorf("value: NaN is not a representable float")
	}
	return Float{f: v}, nil
}

// MustFloat panics if v is NaN; for call sites that already know v is finite
// or infinite but never NaN (e.g. literal construction in tests).
func MustFloat(v float64) Float {
	f, err := NewFloat(v)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Float) Float64() float64 { return f.f }

// Value is the tagged union described in spec.md §3. Only one of the typed
// fields is meaningful, selected by Kind.
type Value struct {
	kind VariantKind

	boolean   bool
	integer   int64
	float     Float
	bytes     []byte
	timestamp time.Time
	regex     string
	array     []Value
	object    *Object
}

// Object is an ordered string-keyed map, preserving insertion order for
// deterministic serialization (spec.md §3).
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns an empty, ordered Object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set inserts or overwrites key, preserving first-insertion order.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value at key and whether it is present.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Delete removes key, preserving the order of the rest.
func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order. The caller must not mutate it.
func (o *Object) Keys() []string { return o.keys }

// Len returns the number of entries.
func (o *Object) Len() int { return len(o.keys) }

// Clone returns a deep-enough copy (keys/value slots are copied; nested
// Values are copied by value, which is safe since Value itself is an
// immutable-by-convention tagged union over copy-on-write slices/maps).
func (o *Object) Clone() *Object {
	c := &Object{
		keys:   append([]string(nil), o.keys...),
		values: make(map[string]Value, len(o.values)),
	}
	for k, v := range o.values {
		c.values[k] = v
	}
	return c
}

// Constructors.

func Null() Value                     { return Value{kind: KindNull} }
func Boolean(b bool) Value            { return Value{kind: KindBoolean, boolean: b} }
func Integer(i int64) Value           { return Value{kind: KindInteger, integer: i} }
func FloatValue(f Float) Value        { return Value{kind: KindFloat, float: f} }
func Bytes(b []byte) Value            { return Value{kind: KindBytes, bytes: b} }
func BytesString(s string) Value      { return Value{kind: KindBytes, bytes: []byte(s)} }
func Timestamp(t time.Time) Value     { return Value{kind: KindTimestamp, timestamp: t.UTC()} }
func Regex(pattern string) Value      { return Value{kind: KindRegex, regex: pattern} }
func Array(items []Value) Value       { return Value{kind: KindArray, array: items} }
func ObjectValue(o *Object) Value     { return Value{kind: KindObject, object: o} }

// Accessors. Each panics if called against the wrong Kind, matching the
// "typed union" contract: callers must check Kind() first.

func (v Value) Kind() VariantKind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBoolean() bool {
	v.mustBe(KindBoolean)
	return v.boolean
}

func (v Value) AsInteger() int64 {
	v.mustBe(KindInteger)
	return v.integer
}

func (v Value) AsFloat() Float {
	v.mustBe(KindFloat)
	return v.float
}

func (v Value) AsBytes() []byte {
	v.mustBe(KindBytes)
	return v.bytes
}

func (v Value) AsTimestamp() time.Time {
	v.mustBe(KindTimestamp)
	return v.timestamp
}

func (v Value) AsRegex() string {
	v.mustBe(KindRegex)
	return v.regex
}

func (v Value) AsArray() []Value {
	v.mustBe(KindArray)
	return v.array
}

func (v Value) AsObject() *Object {
	v.mustBe(KindObject)
	return v.object
}

func (v Value) mustBe(k VariantKind) {
	if v.kind != k {
		panic(fmt.Sprintf("value: expected %s, got %s", k, v.kind))
	}
}

// EstimatedJSONSize gives a cheap, monotonic approximation of v's
// JSON-encoded footprint, for callers (the batcher's size_limit accounting)
// that need a fast proportional measure rather than an exact encode.
func EstimatedJSONSize(v Value) int {
	switch v.kind {
	case KindNull:
		return 4
	case KindBoolean:
		return 5
	case KindInteger:
		return 20
	case KindFloat:
		return 24
	case KindBytes:
		return len(v.bytes) + 2
	case KindTimestamp:
		return 32
	case KindRegex:
		return len(v.regex) + 2
	case KindArray:
		size := 2
		for _, item := range v.array {
			size += EstimatedJSONSize(item) + 1
		}
		return size
	case KindObject:
		size := 2
		for _, k := range v.object.Keys() {
			item, _ := v.object.Get(k)
			size += len(k) + 3 + EstimatedJSONSize(item)
		}
		return size
	default:
		return 0
	}
}

// Equal reports deep structural equality.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBoolean:
		return a.boolean == b.boolean
	case KindInteger:
		return a.integer == b.integer
	case KindFloat:
		return a.float.f == b.float.f
	case KindBytes:
		return string(a.bytes) == string(b.bytes)
	case KindTimestamp:
		return a.timestamp.Equal(b.timestamp)
	case KindRegex:
		return a.regex == b.regex
	case KindArray:
		if len(a.array) != len(b.array) {
			return false
		}
		for i := range a.array {
			if !Equal(a.array[i], b.array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.object.Len() != b.object.Len() {
			return false
		}
		for _, k := range a.object.Keys() {
			av, _ := a.object.Get(k)
			bv, ok := b.object.Get(k)
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
