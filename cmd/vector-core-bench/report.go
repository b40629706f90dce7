// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package main

import (
	"fmt"
	"time"
)

// report is the common shape every subcommand prints: how much work went
// in, how long it took, and the derived rate.
type report struct {
	label    string
	count    int
	elapsed  time.Duration
	extra    map[string]any
	extraOrd []string
}

func newReport(label string) *report {
	return &report{label: label, extra: make(map[string]any)}
}

func (r *report) set(key string, value any) {
	if _, ok := r.extra[key]; !ok {
		r.extraOrd = append(r.extraOrd, key)
	}
	r.extra[key] = value
}

func (r *report) print() {
	rate := float64(0)
	if r.elapsed > 0 {
		rate = float64(r.count) / r.elapsed.Seconds()
	}
	fmt.Printf("%s: %d items in %s (%.1f/s)\n", r.label, r.count, r.elapsed, rate)
	for _, k := range r.extraOrd {
		fmt.Printf("  %s: %v\n", k, r.extra[k])
	}
}
