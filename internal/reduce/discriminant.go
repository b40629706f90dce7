// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package reduce

import (
	"strconv"
	"strings"
	"time"

	"github.com/vectordotdev/vector-core/internal/value"
)

// discriminant computes the group-by key for v: a tuple of the values found
// at each configured group_by path, encoded as a single comparable string
// so it can key a Go map (value.Value itself holds slices and a pointer and
// so is not comparable). A missing path is encoded distinctly from a
// present-but-null one, matching the tuple's "Option<Value>" per-slot shape.
func (r *Reducer) discriminant(v value.Value) string {
	if len(r.cfg.GroupBy) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.cfg.GroupBy {
		found, ok := value.Get(v, p)
		b.WriteByte('|')
		if !ok {
			b.WriteByte('A')
			continue
		}
		b.WriteByte('V')
		writeCanonical(&b, found)
	}
	return b.String()
}

// writeCanonical appends a length-prefixed, unambiguous encoding of v to b.
func writeCanonical(b *strings.Builder, v value.Value) {
	switch v.Kind() {
	case value.KindNull:
		b.WriteByte('N')
	case value.KindBoolean:
		if v.AsBoolean() {
			b.WriteString("B1")
		} else {
			b.WriteString("B0")
		}
	case value.KindInteger:
		b.WriteByte('I')
		b.WriteString(strconv.FormatInt(v.AsInteger(), 10))
	case value.KindFloat:
		b.WriteByte('F')
		b.WriteString(strconv.FormatFloat(v.AsFloat().Float64(), 'g', -1, 64))
	case value.KindBytes:
		writeLengthPrefixed(b, 'S', v.AsBytes())
	case value.KindRegex:
		writeLengthPrefixed(b, 'R', []byte(v.AsRegex()))
	case value.KindTimestamp:
		b.WriteByte('T')
		b.WriteString(v.AsTimestamp().UTC().Format(time.RFC3339Nano))
	case value.KindArray:
		b.WriteByte('[')
		for _, item := range v.AsArray() {
			writeCanonical(b, item)
			b.WriteByte(',')
		}
		b.WriteByte(']')
	case value.KindObject:
		b.WriteByte('{')
		keys := append([]string(nil), v.AsObject().Keys()...)
		for _, k := range sortedStrings(keys) {
			child, _ := v.AsObject().Get(k)
			writeLengthPrefixed(b, 'K', []byte(k))
			writeCanonical(b, child)
			b.WriteByte(',')
		}
		b.WriteByte('}')
	default:
		b.WriteByte('?')
	}
}

func writeLengthPrefixed(b *strings.Builder, tag byte, data []byte) {
	b.WriteByte(tag)
	b.WriteString(strconv.Itoa(len(data)))
	b.WriteByte(':')
	b.Write(data)
}

// sortedStrings returns a sorted copy of ss, used to make object-key
// encoding order-independent (Object preserves insertion order, but the
// discriminant must treat two objects with the same keys/values as equal
// regardless of insertion order).
func sortedStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
