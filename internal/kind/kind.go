// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package kind implements the compile-time type-state engine (C3): a
// set-valued description of the scalar variants, object shape and array
// shape a Value may take at a given position, plus the TypeDef pairing a
// Kind with fallibility.
//
// Recursive types (spec.md §9) are represented with a plain self-referencing
// *Kind rather than an interned table — Go's GC makes a cyclic pointer graph
// safe to keep around, and traversal guards against infinite descent by
// checking for exact pointer identity against the original Unknown.
package kind

import "fmt"

// Scalar is a bit in the scalar bitset.
type Scalar uint8

const (
	Bytes Scalar = 1 << iota
	Integer
	FloatScalar
	Boolean
	Timestamp
	Regex
	Null
)

const allScalars = Bytes | Integer | FloatScalar | Boolean | Timestamp | Regex | Null

// ObjectShape describes the known/unknown layout of an object-shaped Kind.
type ObjectShape struct {
	// Known maps field name to the Kind known to exist there.
	Known map[string]Kind
	// Unknown, if non-nil, is the Kind of any key absent from Known. If nil,
	// Known is exhaustive (no other keys may exist).
	Unknown *Kind
}

// ArrayShape describes the known/unknown layout of an array-shaped Kind.
type ArrayShape struct {
	Known   map[int]Kind
	Unknown *Kind
}

// Kind is the set-valued static description from spec.md §3. The zero value
// is invalid (the forbidden empty Kind); always construct via the
// constructors below.
type Kind struct {
	scalars Scalar
	object  *ObjectShape
	array   *ArrayShape
}

// ErrEmptyKind is returned where an operation would otherwise produce the
// forbidden "no value is valid" Kind.
var ErrEmptyKind = fmt.Errorf("kind: empty kind is not representable")

// Scalars returns the scalar variant bitset.
func (k Kind) Scalars() Scalar { return k.scalars }

// HasScalar reports whether s is one of the possible scalar variants.
func (k Kind) HasScalar(s Scalar) bool { return k.scalars&s != 0 }

// Object returns the object shape, or nil if this Kind cannot be an object.
func (k Kind) Object() *ObjectShape { return k.object }

// Array returns the array shape, or nil if this Kind cannot be an array.
func (k Kind) Array() *ArrayShape { return k.array }

// IsEmpty reports whether k represents no possible value, which is never a
// valid, constructible Kind but is useful as a sentinel mid-computation.
func (k Kind) IsEmpty() bool {
	return k.scalars == 0 && k.object == nil && k.array == nil
}

// variantCount returns how many of {scalar-set non-empty, object, array} are
// populated; used by find_at_path to decide whether presence is uncertain.
func (k Kind) variantCount() int {
	n := 0
	if k.scalars != 0 {
		n++
	}
	if k.object != nil {
		n++
	}
	if k.array != nil {
		n++
	}
	return n
}

// IsExactScalar reports whether k is exactly one scalar variant with no
// object/array shape possible.
func (k Kind) IsExactScalar(s Scalar) bool {
	return k.scalars == s && k.object == nil && k.array == nil
}

// Any returns the universal Kind: every scalar, plus an open object and
// open array shape. Used as the "unknown" default.
func Any() Kind {
	return Kind{
		scalars: allScalars,
		object:  &ObjectShape{Known: map[string]Kind{}, Unknown: boxAny()},
		array:   &ArrayShape{Known: map[int]Kind{}, Unknown: boxAny()},
	}
}

func boxAny() *Kind {
	k := Any()
	return &k
}

// NullKind is the Kind containing only null.
func NullKind() Kind { return Kind{scalars: Null} }

// NewScalar returns a Kind consisting exactly of the given scalar bitset.
// Panics if s is zero (would be the empty Kind).
func NewScalar(s Scalar) Kind {
	if s == 0 {
		panic(ErrEmptyKind)
	}
	return Kind{scalars: s}
}

// NewObject returns a Kind that is exactly the given object shape (no
// scalar, no array possibility).
func NewObject(shape ObjectShape) Kind {
	return Kind{object: &shape}
}

// NewArray returns a Kind that is exactly the given array shape.
func NewArray(shape ArrayShape) Kind {
	return Kind{array: &shape}
}

// OrNull adds the null scalar to k's possible variants (spec.md §3).
func (k Kind) OrNull() Kind {
	k.scalars |= Null
	return k
}

// Or is the lattice union: the value may be anything either operand allows.
func Or(a, b Kind) Kind {
	out := Kind{scalars: a.scalars | b.scalars}
	out.object = orObject(a.object, b.object)
	out.array = orArray(a.array, b.array)
	return out
}

func orObject(a, b *ObjectShape) *ObjectShape {
	if a == nil {
		return cloneObjectShape(b)
	}
	if b == nil {
		return cloneObjectShape(a)
	}
	known := make(map[string]Kind)
	for k, v := range a.Known {
		if bv, ok := b.Known[k]; ok {
			known[k] = Or(v, bv)
		} else if b.Unknown != nil {
			known[k] = Or(v, *b.Unknown)
		} else {
			known[k] = v
		}
	}
	for k, v := range b.Known {
		if _, ok := a.Known[k]; ok {
			continue
		}
		if a.Unknown != nil {
			known[k] = Or(v, *a.Unknown)
		} else {
			known[k] = v
		}
	}
	var unk *Kind
	switch {
	case a.Unknown != nil && b.Unknown != nil:
		u := Or(*a.Unknown, *b.Unknown)
		unk = &u
	case a.Unknown != nil:
		unk = a.Unknown
	case b.Unknown != nil:
		unk = b.Unknown
	}
	return &ObjectShape{Known: known, Unknown: unk}
}

func orArray(a, b *ArrayShape) *ArrayShape {
	if a == nil {
		return cloneArrayShape(b)
	}
	if b == nil {
		return cloneArrayShape(a)
	}
	known := make(map[int]Kind)
	for i, v := range a.Known {
		if bv, ok := b.Known[i]; ok {
			known[i] = Or(v, bv)
		} else if b.Unknown != nil {
			known[i] = Or(v, *b.Unknown)
		} else {
			known[i] = v
		}
	}
	for i, v := range b.Known {
		if _, ok := a.Known[i]; ok {
			continue
		}
		if a.Unknown != nil {
			known[i] = Or(v, *a.Unknown)
		} else {
			known[i] = v
		}
	}
	var unk *Kind
	switch {
	case a.Unknown != nil && b.Unknown != nil:
		u := Or(*a.Unknown, *b.Unknown)
		unk = &u
	case a.Unknown != nil:
		unk = a.Unknown
	case b.Unknown != nil:
		unk = b.Unknown
	}
	return &ArrayShape{Known: known, Unknown: unk}
}

func cloneObjectShape(s *ObjectShape) *ObjectShape {
	if s == nil {
		return nil
	}
	known := make(map[string]Kind, len(s.Known))
	for k, v := range s.Known {
		known[k] = v
	}
	var unk *Kind
	if s.Unknown != nil {
		u := *s.Unknown
		unk = &u
	}
	return &ObjectShape{Known: known, Unknown: unk}
}

func cloneArrayShape(s *ArrayShape) *ArrayShape {
	if s == nil {
		return nil
	}
	known := make(map[int]Kind, len(s.Known))
	for k, v := range s.Known {
		known[k] = v
	}
	var unk *Kind
	if s.Unknown != nil {
		u := *s.Unknown
		unk = &u
	}
	return &ArrayShape{Known: known, Unknown: unk}
}

// And is the lattice intersection: only values both operands allow.
func And(a, b Kind) Kind {
	out := Kind{scalars: a.scalars & b.scalars}
	if a.object != nil && b.object != nil {
		known := make(map[string]Kind)
		for k, v := range a.object.Known {
			if bv, ok := b.object.Known[k]; ok {
				known[k] = And(v, bv)
			}
		}
		var unk *Kind
		if a.object.Unknown != nil && b.object.Unknown != nil {
			u := And(*a.object.Unknown, *b.object.Unknown)
			unk = &u
		}
		out.object = &ObjectShape{Known: known, Unknown: unk}
	}
	if a.array != nil && b.array != nil {
		known := make(map[int]Kind)
		for i, v := range a.array.Known {
			if bv, ok := b.array.Known[i]; ok {
				known[i] = And(v, bv)
			}
		}
		var unk *Kind
		if a.array.Unknown != nil && b.array.Unknown != nil {
			u := And(*a.array.Unknown, *b.array.Unknown)
			unk = &u
		}
		out.array = &ArrayShape{Known: known, Unknown: unk}
	}
	return out
}

// Sub is the lattice subtraction: variants of a that are not also in b.
// Object/array shapes are only removed wholesale (if b fully allows them);
// this mirrors the coarse subtraction the original Rust engine performs.
func Sub(a, b Kind) Kind {
	out := Kind{scalars: a.scalars &^ b.scalars}
	out.object = a.object
	out.array = a.array
	if b.object != nil && a.object != nil && isUniversalObject(b.object) {
		out.object = nil
	}
	if b.array != nil && a.array != nil && isUniversalArray(b.array) {
		out.array = nil
	}
	return out
}

func isUniversalObject(s *ObjectShape) bool {
	return len(s.Known) == 0 && s.Unknown != nil
}

func isUniversalArray(s *ArrayShape) bool {
	return len(s.Known) == 0 && s.Unknown != nil
}

// TypeDef pairs a Kind with fallibility (spec.md §4.1): whether the
// expression that produced it may error at runtime. Fallibility is sticky
// under composition — see And/Or below.
type TypeDef struct {
	Fallible bool
	Kind     Kind
}

// Or combines two alternative TypeDefs (e.g. an if/else): the Kind unions,
// fallibility is sticky (either branch can fail).
func (t TypeDef) Or(o TypeDef) TypeDef {
	return TypeDef{Fallible: t.Fallible || o.Fallible, Kind: Or(t.Kind, o.Kind)}
}

// Infallible marks a TypeDef as definitely not failing.
func (t TypeDef) Infallible() TypeDef {
	t.Fallible = false
	return t
}

// MakeFallible marks a TypeDef as possibly failing.
func (t TypeDef) MakeFallible() TypeDef {
	t.Fallible = true
	return t
}
