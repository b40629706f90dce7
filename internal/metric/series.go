// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package metric is the C5 metric model: series identity, tag multiset, and
// the MetricValue variants with their merge algebra, grounded in
// original_source's lib/vector-core/src/event/metric/value.rs and wired to
// the real github.com/DataDog/sketches-go sketch for the Sketch variant.
package metric

import "sort"

// TagSet is a multiset of optional string values per key (spec.md §3: "Tag
// multiset preserves both 'single value' and 'all values' views for
// forward/backward wire compatibility"). The zero TagSet is empty and
// ready to use.
type TagSet struct {
	keys   []string
	single map[string]*string
	all    map[string][]*string
}

func (t TagSet) cloneMaps() (map[string]*string, map[string][]*string, []string) {
	single := make(map[string]*string, len(t.single))
	for k, v := range t.single {
		single[k] = v
	}
	all := make(map[string][]*string, len(t.all))
	for k, v := range t.all {
		cp := make([]*string, len(v))
		copy(cp, v)
		all[k] = cp
	}
	keys := make([]string, len(t.keys))
	copy(keys, t.keys)
	return single, all, keys
}

// Insert adds value under key, becoming the new "single" representative for
// that key while the previous values remain in the "all" view.
func (t TagSet) Insert(key string, value *string) TagSet {
	single, all, keys := t.cloneMaps()
	if _, had := single[key]; !had {
		keys = append(keys, key)
	}
	single[key] = value
	all[key] = append(all[key], value)
	return TagSet{keys: keys, single: single, all: all}
}

// Replace sets key's single value and resets its multiset to just that one
// value, discarding prior values entirely (unlike Insert).
func (t TagSet) Replace(key string, value *string) TagSet {
	single, all, keys := t.cloneMaps()
	if _, had := single[key]; !had {
		keys = append(keys, key)
	}
	single[key] = value
	all[key] = []*string{value}
	return TagSet{keys: keys, single: single, all: all}
}

// Remove deletes key entirely from both views.
func (t TagSet) Remove(key string) TagSet {
	single, all, keys := t.cloneMaps()
	delete(single, key)
	delete(all, key)
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	return TagSet{keys: keys, single: single, all: all}
}

// Get returns the single representative value for key.
func (t TagSet) Get(key string) (*string, bool) {
	v, ok := t.single[key]
	return v, ok
}

// GetAll returns every value ever inserted under key, in insertion order.
func (t TagSet) GetAll(key string) []*string {
	return t.all[key]
}

// Keys returns tag keys in insertion order.
func (t TagSet) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of distinct keys.
func (t TagSet) Len() int { return len(t.keys) }

// Series identifies a metric stream independent of its value or time.
type Series struct {
	Name      string
	Namespace string
	Tags      TagSet
}

// NewSeries returns a Series with no namespace and no tags.
func NewSeries(name string) Series {
	return Series{Name: name}
}

func (s Series) WithNamespace(ns string) Series {
	s.Namespace = ns
	return s
}

func (s Series) WithTags(t TagSet) Series {
	s.Tags = t
	return s
}

// SortedSet is a deduplicated, lexicographically sorted string set, backing
// MetricValue's Set variant (spec.md §3: "Set{sorted set<str>}").
type SortedSet []string

// NewSortedSet dedupes and sorts items.
func NewSortedSet(items []string) SortedSet {
	seen := make(map[string]struct{}, len(items))
	out := make(SortedSet, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// Union returns the sorted union of a and b.
func (a SortedSet) Union(b SortedSet) SortedSet {
	return NewSortedSet(append(append([]string{}, a...), b...))
}

// Difference returns elements of a not present in b.
func (a SortedSet) Difference(b SortedSet) SortedSet {
	exclude := make(map[string]struct{}, len(b))
	for _, it := range b {
		exclude[it] = struct{}{}
	}
	out := make(SortedSet, 0, len(a))
	for _, it := range a {
		if _, ok := exclude[it]; !ok {
			out = append(out, it)
		}
	}
	return out
}
