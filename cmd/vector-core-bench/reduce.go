// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vectordotdev/vector-core/internal/event"
	"github.com/vectordotdev/vector-core/internal/path"
	"github.com/vectordotdev/vector-core/internal/reduce"
	"github.com/vectordotdev/vector-core/internal/value"
)

func newReduceCmd() *cobra.Command {
	var (
		events      int
		groups      int
		runLength   int
		expireAfter time.Duration
		flushPeriod time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reduce",
		Short: "Drive synthetic log events through the C8 reducer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReduceBench(cmd.Context(), reduceBenchOptions{
				events:      events,
				groups:      groups,
				runLength:   runLength,
				expireAfter: expireAfter,
				flushPeriod: flushPeriod,
			})
		},
	}

	cmd.Flags().IntVar(&events, "events", 100_000, "number of synthetic events to generate")
	cmd.Flags().IntVar(&groups, "groups", 16, "number of distinct group-by discriminants in flight at once")
	cmd.Flags().IntVar(&runLength, "run-length", 10, "consecutive events per discriminant before rotating to the next group")
	cmd.Flags().DurationVar(&expireAfter, "expire-after", time.Second, "max time a group stays open with no activity")
	cmd.Flags().DurationVar(&flushPeriod, "flush-period", 250*time.Millisecond, "how often expired groups are checked")

	return cmd
}

type reduceBenchOptions struct {
	events      int
	groups      int
	runLength   int
	expireAfter time.Duration
	flushPeriod time.Duration
}

var groupIDField = path.New(path.Field("group_id"))

func runReduceBench(ctx context.Context, opts reduceBenchOptions) error {
	r, err := reduce.New(reduce.Config{
		GroupBy:     []path.Path{groupIDField},
		ExpireAfter: opts.expireAfter,
		FlushPeriod: opts.flushPeriod,
	})
	if err != nil {
		return err
	}

	in := make(chan event.Event)
	go func() {
		defer close(in)
		for i := 0; i < opts.events; i++ {
			group := (i / opts.runLength) % opts.groups
			obj := value.NewObject()
			obj.Set("group_id", value.Integer(int64(group)))
			obj.Set("count", value.Integer(1))
			select {
			case in <- event.NewLog(value.ObjectValue(obj)):
			case <-ctx.Done():
				return
			}
		}
	}()

	start := time.Now()
	var reduced int
	for range r.Run(ctx, in) {
		reduced++
	}
	elapsed := time.Since(start)

	rpt := newReport("reduce")
	rpt.count = opts.events
	rpt.elapsed = elapsed
	rpt.set("reduced events emitted", reduced)
	if reduced > 0 {
		rpt.set("avg fold factor", fmt.Sprintf("%.1fx", float64(opts.events)/float64(reduced)))
	}
	rpt.print()
	return nil
}
