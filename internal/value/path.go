// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package value

import "github.com/vectordotdev/vector-core/internal/path"

// Get walks p against v, returning the Value found and whether the full
// path resolved. A Coalesce segment tries each name in turn and commits to
// the first present field, matching the VRL "??" semantics path.Coalesce
// models structurally.
func Get(v Value, p path.Path) (Value, bool) {
	seg, ok := p.Head()
	if !ok {
		return v, true
	}
	switch seg.Kind() {
	case path.SegmentField:
		if v.Kind() != KindObject {
			return Value{}, false
		}
		child, ok := v.AsObject().Get(seg.Field_())
		if !ok {
			return Value{}, false
		}
		return Get(child, p.Tail())

	case path.SegmentCoalesce:
		if v.Kind() != KindObject {
			return Value{}, false
		}
		for _, name := range seg.Coalesce_() {
			if child, ok := v.AsObject().Get(name); ok {
				return Get(child, p.Tail())
			}
		}
		return Value{}, false

	case path.SegmentIndex:
		if v.Kind() != KindArray {
			return Value{}, false
		}
		arr := v.AsArray()
		i := seg.Index_()
		if i < 0 {
			i += len(arr)
		}
		if i < 0 || i >= len(arr) {
			return Value{}, false
		}
		return Get(arr[i], p.Tail())

	default:
		return Value{}, false
	}
}

// Set walks p against v, creating intermediate Objects as needed, and
// returns the updated root. Index segments require the addressed array to
// already exist (sparse array creation is not supported, matching
// spec.md's VRL-assignment subset).
func Set(v Value, p path.Path, newValue Value) Value {
	seg, ok := p.Head()
	if !ok {
		return newValue
	}
	switch seg.Kind() {
	case path.SegmentField, path.SegmentCoalesce:
		name := seg.Field_()
		if seg.Kind() == path.SegmentCoalesce {
			names := seg.Coalesce_()
			name = names[len(names)-1]
			if v.Kind() == KindObject {
				for _, n := range names {
					if _, ok := v.AsObject().Get(n); ok {
						name = n
						break
					}
				}
			}
		}
		var obj *Object
		if v.Kind() == KindObject {
			obj = v.AsObject().Clone()
		} else {
			obj = NewObject()
		}
		child, _ := obj.Get(name)
		obj.Set(name, Set(child, p.Tail(), newValue))
		return ObjectValue(obj)

	case path.SegmentIndex:
		if v.Kind() != KindArray {
			return v
		}
		arr := append([]Value(nil), v.AsArray()...)
		i := seg.Index_()
		if i < 0 {
			i += len(arr)
		}
		if i < 0 || i >= len(arr) {
			return v
		}
		arr[i] = Set(arr[i], p.Tail(), newValue)
		return Array(arr)

	default:
		return v
	}
}
