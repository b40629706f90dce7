// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kind

import "github.com/vectordotdev/vector-core/internal/path"

// FindAtPath traverses path within k (spec.md §4.1). If any intermediate
// Kind is ambiguous (more than one scalar variant possible, or both object
// and array shapes possible), the final result is unioned with null because
// presence at runtime is uncertain.
func FindAtPath(k Kind, p path.Path) (Kind, bool) {
	if p.IsRoot() {
		return k, true
	}

	uncertain := false
	cur := k
	segs := p.Segments()
	for i, seg := range segs {
		if isAmbiguous(cur) {
			uncertain = true
		}
		next, ok := stepField(cur, seg)
		if !ok {
			return Kind{}, false
		}
		// Recursive-type guard: if descending into "unknown" lands on a Kind
		// identical in shape to the one we started from, stop here rather
		// than looping forever (spec.md §4.1 and §9).
		if isSelfRecursive(cur, next) {
			if uncertain {
				next = next.OrNull()
			}
			return next, true
		}
		cur = next
		if i == len(segs)-1 && uncertain {
			cur = cur.OrNull()
		}
	}
	return cur, true
}

func isAmbiguous(k Kind) bool {
	scalarCount := 0
	for s := Scalar(1); s <= Null; s <<= 1 {
		if k.scalars&s != 0 {
			scalarCount++
		}
	}
	if scalarCount > 1 {
		return true
	}
	if k.object != nil && k.array != nil {
		return true
	}
	return false
}

// isSelfRecursive detects the case where `unknown` points back at a Kind of
// the same overall shape as the one being traversed (a recursive type),
// using the conservative check: next has the universal-any shape and so
// does cur's relevant collection's unknown.
func isSelfRecursive(cur, next Kind) bool {
	if cur.object != nil && cur.object.Unknown != nil {
		if sameKind(*cur.object.Unknown, next) && isAny(next) {
			return true
		}
	}
	if cur.array != nil && cur.array.Unknown != nil {
		if sameKind(*cur.array.Unknown, next) && isAny(next) {
			return true
		}
	}
	return false
}

func isAny(k Kind) bool {
	return k.scalars == allScalars && k.object != nil && k.array != nil &&
		len(k.object.Known) == 0 && k.object.Unknown != nil &&
		len(k.array.Known) == 0 && k.array.Unknown != nil
}

func sameKind(a, b Kind) bool {
	return a.scalars == b.scalars && (a.object == nil) == (b.object == nil) && (a.array == nil) == (b.array == nil)
}

// stepField applies one path segment to k.
func stepField(k Kind, seg path.Segment) (Kind, bool) {
	switch seg.Kind() {
	case path.SegmentField:
		if k.object == nil {
			return Kind{}, false
		}
		if v, ok := k.object.Known[seg.Field_()]; ok {
			return v, true
		}
		if k.object.Unknown != nil {
			return *k.object.Unknown, true
		}
		return Kind{}, false
	case path.SegmentIndex:
		if seg.IsNegativeIndex() {
			return Kind{}, false
		}
		if k.array == nil {
			return Kind{}, false
		}
		if v, ok := k.array.Known[seg.Index_()]; ok {
			return v, true
		}
		if k.array.Unknown != nil {
			return *k.array.Unknown, true
		}
		return Kind{}, false
	case path.SegmentCoalesce:
		if k.object == nil {
			return Kind{}, false
		}
		for _, name := range seg.Coalesce_() {
			if v, ok := k.object.Known[name]; ok {
				return v, true
			}
		}
		if k.object.Unknown != nil {
			return *k.object.Unknown, true
		}
		return Kind{}, false
	default:
		return Kind{}, false
	}
}

// NestAtPath wraps kind inside objects/arrays matching path, right-to-left
// (spec.md §4.1). A Coalesce segment nests under its last named field — a
// deterministic tie-break, documented here and in DESIGN.md.
func NestAtPath(k Kind, p path.Path) Kind {
	segs := p.Segments()
	cur := k
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		switch seg.Kind() {
		case path.SegmentField:
			cur = NewObject(ObjectShape{Known: map[string]Kind{seg.Field_(): cur}})
		case path.SegmentCoalesce:
			names := seg.Coalesce_()
			last := names[len(names)-1]
			cur = NewObject(ObjectShape{Known: map[string]Kind{last: cur}})
		case path.SegmentIndex:
			if seg.IsNegativeIndex() {
				cur = NewArray(ArrayShape{Known: map[int]Kind{}, Unknown: boxAny()})
				continue
			}
			cur = NewArray(ArrayShape{Known: map[int]Kind{seg.Index_(): cur}})
		}
	}
	return cur
}

// RemoveAtPath removes the Kind at path, shifting known array indices above
// a removed array element down by one to preserve the contiguous-prefix
// invariant projections rely on. Panics if path is root, matching the
// original's contract that callers use a dedicated into_object/into_array
// operation instead.
func RemoveAtPath(k Kind, p path.Path) (Kind, bool) {
	if p.IsRoot() {
		panic("kind: RemoveAtPath called with root path")
	}
	return removeAt(k, p.Segments())
}

func removeAt(k Kind, segs []path.Segment) (Kind, bool) {
	seg := segs[0]
	rest := segs[1:]

	switch seg.Kind() {
	case path.SegmentField:
		if k.object == nil {
			return Kind{}, false
		}
		shape := cloneObjectShape(k.object)
		if len(rest) == 0 {
			if _, ok := shape.Known[seg.Field_()]; !ok {
				return k, true
			}
			delete(shape.Known, seg.Field_())
			k.object = shape
			return k, true
		}
		child, ok := shape.Known[seg.Field_()]
		if !ok {
			return k, true
		}
		newChild, ok := removeAt(child, rest)
		if !ok {
			return Kind{}, false
		}
		shape.Known[seg.Field_()] = newChild
		k.object = shape
		return k, true

	case path.SegmentIndex:
		if seg.IsNegativeIndex() {
			return Kind{}, false
		}
		if k.array == nil {
			return Kind{}, false
		}
		shape := cloneArrayShape(k.array)
		idx := seg.Index_()
		if len(rest) == 0 {
			if _, ok := shape.Known[idx]; !ok {
				return k, true
			}
			delete(shape.Known, idx)
			shape.Known = shiftDown(shape.Known, idx)
			k.array = shape
			return k, true
		}
		child, ok := shape.Known[idx]
		if !ok {
			return k, true
		}
		newChild, ok := removeAt(child, rest)
		if !ok {
			return Kind{}, false
		}
		shape.Known[idx] = newChild
		k.array = shape
		return k, true

	case path.SegmentCoalesce:
		if k.object == nil {
			return Kind{}, false
		}
		shape := cloneObjectShape(k.object)
		for _, name := range seg.Coalesce_() {
			if _, ok := shape.Known[name]; ok {
				if len(rest) == 0 {
					delete(shape.Known, name)
				} else {
					child := shape.Known[name]
					newChild, ok := removeAt(child, rest)
					if !ok {
						return Kind{}, false
					}
					shape.Known[name] = newChild
				}
				k.object = shape
				return k, true
			}
		}
		return k, true
	}
	return Kind{}, false
}

// shiftDown moves every known index greater than removedIdx down by one.
func shiftDown(known map[int]Kind, removedIdx int) map[int]Kind {
	out := make(map[int]Kind, len(known))
	for idx, v := range known {
		if idx > removedIdx {
			out[idx-1] = v
		} else {
			out[idx] = v
		}
	}
	return out
}
