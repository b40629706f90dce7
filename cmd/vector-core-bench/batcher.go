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

	"github.com/vectordotdev/vector-core/internal/batcher"
	"github.com/vectordotdev/vector-core/internal/event"
	"github.com/vectordotdev/vector-core/internal/path"
	"github.com/vectordotdev/vector-core/internal/value"
)

func newBatcherCmd() *cobra.Command {
	var (
		events    int
		keys      int
		sizeLimit int
		itemLimit int
		timeout   time.Duration
		payload   int
	)

	cmd := &cobra.Command{
		Use:   "batcher",
		Short: "Drive synthetic log events through the C7 partitioned batcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatcherBench(cmd.Context(), batcherBenchOptions{
				events:    events,
				keys:      keys,
				sizeLimit: sizeLimit,
				itemLimit: itemLimit,
				timeout:   timeout,
				payload:   payload,
			})
		},
	}

	cmd.Flags().IntVar(&events, "events", 100_000, "number of synthetic events to generate")
	cmd.Flags().IntVar(&keys, "keys", 64, "number of distinct partition keys")
	cmd.Flags().IntVar(&sizeLimit, "size-limit", 64*1024, "batch byte size limit, 0 for unbounded")
	cmd.Flags().IntVar(&itemLimit, "item-limit", 500, "batch item count limit, 0 for unbounded")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "per-key inactivity timeout")
	cmd.Flags().IntVar(&payload, "payload-bytes", 256, "approximate size of each event's message field")

	return cmd
}

type batcherBenchOptions struct {
	events    int
	keys      int
	sizeLimit int
	itemLimit int
	timeout   time.Duration
	payload   int
}

var hostField = path.New(path.Field("host"))

func syntheticLog(key string, payloadBytes int) event.Event {
	obj := value.NewObject()
	obj.Set("host", value.BytesString(key))
	obj.Set("message", value.Bytes(make([]byte, payloadBytes)))
	return event.NewLog(value.ObjectValue(obj))
}

func runBatcherBench(ctx context.Context, opts batcherBenchOptions) error {
	cfg := batcher.Config{SizeLimit: opts.sizeLimit, ItemLimit: opts.itemLimit, Timeout: opts.timeout}

	partition := func(e event.Event) string {
		v, ok := value.Get(e.AsLog().Value, hostField)
		if !ok {
			return ""
		}
		return string(v.AsBytes())
	}
	sizeOf := func(e event.Event) int { return e.EstimatedJSONSize() }

	b := batcher.New[event.Event, string](cfg, partition, sizeOf)

	in := make(chan event.Event)
	go func() {
		defer close(in)
		for i := 0; i < opts.events; i++ {
			key := fmt.Sprintf("host-%d", i%opts.keys)
			select {
			case in <- syntheticLog(key, opts.payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	start := time.Now()
	var batches, items int
	for out := range b.Run(ctx, in) {
		batches++
		items += len(out.Items)
	}
	elapsed := time.Since(start)

	r := newReport("batcher")
	r.count = opts.events
	r.elapsed = elapsed
	r.set("batches emitted", batches)
	r.set("items re-emitted", items)
	if batches > 0 {
		r.set("avg batch size", float64(items)/float64(batches))
	}
	r.print()
	return nil
}
