// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package path implements structural addresses into Values and Kinds (C2):
// a finite sequence of Field/Index/Coalesce segments.
package path

import "strings"

// SegmentKind discriminates a Segment.
type SegmentKind int

const (
	SegmentField SegmentKind = iota
	SegmentIndex
	SegmentCoalesce
)

// Segment is one step of a Path.
type Segment struct {
	kind     SegmentKind
	field    string
	index    int
	coalesce []string
}

func Field(name string) Segment { return Segment{kind: SegmentField, field: name} }
func Index(i int) Segment       { return Segment{kind: SegmentIndex, index: i} }
func Coalesce(names ...string) Segment {
	return Segment{kind: SegmentCoalesce, coalesce: append([]string(nil), names...)}
}

func (s Segment) Kind() SegmentKind { return s.kind }
func (s Segment) Field_() string    { return s.field }
func (s Segment) Index_() int       { return s.index }
func (s Segment) Coalesce_() []string {
	return s.coalesce
}

// IsNegativeIndex reports whether this is an Index segment with a negative value.
func (s Segment) IsNegativeIndex() bool {
	return s.kind == SegmentIndex && s.index < 0
}

// Path is a finite sequence of segments. The empty Path is the root.
type Path struct {
	segments []Segment
}

// New builds a Path from segments.
func New(segments ...Segment) Path {
	return Path{segments: append([]Segment(nil), segments...)}
}

// Root is the empty path.
func Root() Path { return Path{} }

func (p Path) IsRoot() bool { return len(p.segments) == 0 }

func (p Path) Segments() []Segment { return p.segments }

func (p Path) Len() int { return len(p.segments) }

// Head returns the first segment and whether the path is non-empty.
func (p Path) Head() (Segment, bool) {
	if len(p.segments) == 0 {
		return Segment{}, false
	}
	return p.segments[0], true
}

// Tail returns the path with the first segment removed.
func (p Path) Tail() Path {
	if len(p.segments) == 0 {
		return p
	}
	return Path{segments: p.segments[1:]}
}

// Last returns the final segment and whether the path is non-empty.
func (p Path) Last() (Segment, bool) {
	if len(p.segments) == 0 {
		return Segment{}, false
	}
	return p.segments[len(p.segments)-1], true
}

// Append returns a new Path with seg appended.
func (p Path) Append(seg Segment) Path {
	out := make([]Segment, len(p.segments)+1)
	copy(out, p.segments)
	out[len(p.segments)] = seg
	return Path{segments: out}
}

// String renders a human-readable, VRL-like path (".foo[2].bar"), used in
// error messages and tests, not for parsing.
func (p Path) String() string {
	var b strings.Builder
	for _, s := range p.segments {
		switch s.kind {
		case SegmentField:
			b.WriteByte('.')
			b.WriteString(s.field)
		case SegmentIndex:
			b.WriteByte('[')
			if s.index < 0 {
				b.WriteByte('-')
			}
			b.WriteString(itoa(abs(s.index)))
			b.WriteByte(']')
		case SegmentCoalesce:
			b.WriteByte('.')
			b.WriteByte('(')
			b.WriteString(strings.Join(s.coalesce, "|"))
			b.WriteByte(')')
		}
	}
	if b.Len() == 0 {
		return "."
	}
	return b.String()
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
