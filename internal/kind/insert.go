// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kind

import (
	"github.com/vectordotdev/vector-core/internal/coreerr"
	"github.com/vectordotdev/vector-core/internal/path"
)

// ConflictStrategy selects what happens when an insert collides with an
// existing Kind, at either an intermediate ("inner") or terminal ("leaf")
// path position (spec.md §4.1).
type ConflictStrategy int

const (
	ConflictMerge ConflictStrategy = iota
	ConflictReplace
	ConflictReject
)

// InsertStrategy is the (inner_conflict, leaf_conflict) pair from spec.md
// §4.1. Shallow controls whether ConflictMerge recurses into nested
// object/array Kinds or merges only the top level.
type InsertStrategy struct {
	Inner   ConflictStrategy
	Leaf    ConflictStrategy
	Shallow bool
}

// InsertAtPath inserts newKind at path within k, applying strategy at
// conflicts. Negative indices always yield coreerr.InvalidIndex.
func InsertAtPath(k Kind, p path.Path, newKind Kind, strategy InsertStrategy) (Kind, error) {
	if p.IsRoot() {
		return mergeOrReplace(k, newKind, strategy.Leaf, strategy.Shallow, true)
	}
	return insertAt(k, p.Segments(), newKind, strategy, true)
}

func insertAt(k Kind, segs []path.Segment, newKind Kind, strategy InsertStrategy, exists bool) (Kind, error) {
	seg := segs[0]
	rest := segs[1:]
	leaf := len(rest) == 0

	switch seg.Kind() {
	case path.SegmentField:
		shape := k.object
		if shape == nil {
			shape = &ObjectShape{Known: map[string]Kind{}}
		} else {
			shape = cloneObjectShape(shape)
		}
		existing, had := shape.Known[seg.Field_()]

		if leaf {
			merged, err := mergeOrReplace(existing, newKind, strategy.Leaf, strategy.Shallow, had)
			if err != nil {
				return Kind{}, err
			}
			shape.Known[seg.Field_()] = merged
			k.object = shape
			return k, nil
		}

		childBase := existing
		if !had {
			// No existing value at this position: the inner conflict
			// strategy still governs whether we may materialize it.
			if strategy.Inner == ConflictReject {
				return Kind{}, coreerr.New(coreerr.CodeInnerConflict, "kind.InsertAtPath", nil)
			}
			childBase = Any()
		} else if childBase.object == nil && (rest[0].Kind() == path.SegmentField || rest[0].Kind() == path.SegmentCoalesce) {
			// Shape mismatch: path expects an object, Kind is something else.
			switch strategy.Inner {
			case ConflictReject:
				return Kind{}, coreerr.New(coreerr.CodeInnerConflict, "kind.InsertAtPath", nil)
			case ConflictReplace:
				childBase = Any()
			case ConflictMerge:
				childBase = Or(childBase, Any())
			}
		} else if childBase.array == nil && rest[0].Kind() == path.SegmentIndex && !rest[0].IsNegativeIndex() {
			switch strategy.Inner {
			case ConflictReject:
				return Kind{}, coreerr.New(coreerr.CodeInnerConflict, "kind.InsertAtPath", nil)
			case ConflictReplace:
				childBase = Any()
			case ConflictMerge:
				childBase = Or(childBase, Any())
			}
		}

		child, err := insertAt(childBase, rest, newKind, strategy, had)
		if err != nil {
			return Kind{}, err
		}
		shape.Known[seg.Field_()] = child
		k.object = shape
		return k, nil

	case path.SegmentCoalesce:
		// Nest under the last named field, matching NestAtPath's tie-break.
		names := seg.Coalesce_()
		last := names[len(names)-1]
		return insertAt(k, append([]path.Segment{path.Field(last)}, rest...), newKind, strategy, exists)

	case path.SegmentIndex:
		if seg.IsNegativeIndex() {
			return Kind{}, coreerr.New(coreerr.CodeInvalidIndex, "kind.InsertAtPath", nil)
		}
		idx := seg.Index_()
		shape := k.array
		if shape == nil {
			shape = &ArrayShape{Known: map[int]Kind{}}
		} else {
			shape = cloneArrayShape(shape)
		}
		existing, had := shape.Known[idx]

		if leaf {
			merged, err := mergeOrReplace(existing, newKind, strategy.Leaf, strategy.Shallow, had)
			if err != nil {
				return Kind{}, err
			}
			shape.Known[idx] = merged
			k.array = shape
			return k, nil
		}

		childBase := existing
		if !had {
			if strategy.Inner == ConflictReject {
				return Kind{}, coreerr.New(coreerr.CodeInnerConflict, "kind.InsertAtPath", nil)
			}
			childBase = Any()
		}
		child, err := insertAt(childBase, rest, newKind, strategy, had)
		if err != nil {
			return Kind{}, err
		}
		shape.Known[idx] = child
		k.array = shape
		return k, nil
	}
	return Kind{}, coreerr.New(coreerr.CodeConfig, "kind.InsertAtPath", nil)
}

func mergeOrReplace(existing, newKind Kind, strategy ConflictStrategy, shallow, hadExisting bool) (Kind, error) {
	if !hadExisting {
		return newKind, nil
	}
	switch strategy {
	case ConflictReplace:
		return newKind, nil
	case ConflictReject:
		return Kind{}, coreerr.New(coreerr.CodeLeafConflict, "kind.InsertAtPath", nil)
	default: // ConflictMerge
		return mergeKindsOpt(existing, newKind, shallow), nil
	}
}

// mergeKindsOpt implements spec.md §4.1's merge semantics: union the scalar
// bitset; union known maps key-wise, recursively unless shallow; when
// merging two arrays, the second array's known indices are shifted by
// max(first.keys)+1 so positional information from both sides survives.

func mergeKindsOpt(a, b Kind, shallow bool) Kind {
	out := Kind{scalars: a.scalars | b.scalars}

	switch {
	case a.object != nil && b.object != nil:
		known := make(map[string]Kind, len(a.object.Known)+len(b.object.Known))
		for k, v := range a.object.Known {
			known[k] = v
		}
		for k, v := range b.object.Known {
			if av, ok := known[k]; ok && !shallow {
				known[k] = mergeKindsOpt(av, v, shallow)
			} else {
				known[k] = v
			}
		}
		var unk *Kind
		if a.object.Unknown != nil {
			unk = a.object.Unknown
		}
		if b.object.Unknown != nil {
			if unk != nil {
				u := Or(*unk, *b.object.Unknown)
				unk = &u
			} else {
				unk = b.object.Unknown
			}
		}
		out.object = &ObjectShape{Known: known, Unknown: unk}
	case a.object != nil:
		out.object = cloneObjectShape(a.object)
	case b.object != nil:
		out.object = cloneObjectShape(b.object)
	}

	switch {
	case a.array != nil && b.array != nil:
		offset := 0
		for idx := range a.array.Known {
			if idx+1 > offset {
				offset = idx + 1
			}
		}
		known := make(map[int]Kind, len(a.array.Known)+len(b.array.Known))
		for idx, v := range a.array.Known {
			known[idx] = v
		}
		for idx, v := range b.array.Known {
			known[idx+offset] = v
		}
		var unk *Kind
		if a.array.Unknown != nil {
			unk = a.array.Unknown
		}
		if b.array.Unknown != nil {
			if unk != nil {
				u := Or(*unk, *b.array.Unknown)
				unk = &u
			} else {
				unk = b.array.Unknown
			}
		}
		out.array = &ArrayShape{Known: known, Unknown: unk}
	case a.array != nil:
		out.array = cloneArrayShape(a.array)
	case b.array != nil:
		out.array = cloneArrayShape(b.array)
	}

	return out
}
