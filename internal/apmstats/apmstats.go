// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package apmstats implements the C9 APM-stats aggregator: spans are
// folded into fixed-width time buckets keyed by a closed aggregation key,
// and each bucket is emitted exactly once as a StatsPayload once wall
// clock has advanced past its end plus a grace window (spec.md §4.5). The
// mutex-guarded bucket map plus flush-ticker goroutine is grounded
// directly on the DataDog Agent's ClientStatsAggregator
// (pkg/trace/stats/client_stats_aggregator.go): a locked `add` method
// folds into `buckets map[int64]*bucket`, and a separate ticker goroutine
// calls `flush`, deleting each bucket from the map as it is emitted so a
// bucket is flushed exactly once.
package apmstats

import (
	"context"
	"sync"
	"time"

	"github.com/vectordotdev/vector-core/internal/ddsketch"
	"github.com/vectordotdev/vector-core/internal/obslog"
	"github.com/vectordotdev/vector-core/internal/telemetry"
)

// DefaultBucketDuration is the APM-stats bucket width (spec.md §4.5: 10s).
const DefaultBucketDuration = 10 * time.Second

// AggregationKey is the closed tuple spans are grouped by. It is a plain
// comparable struct (unlike the reducer's open-ended discriminant), so it
// is used directly as a Go map key with no canonical encoding needed.
type AggregationKey struct {
	Service    string
	Name       string
	Resource   string
	HTTPStatus uint32
	Type       string
	DBType     string
	Synthetics bool
}

// Span is one span observation fed to the aggregator.
type Span struct {
	Key      AggregationKey
	Start    time.Time
	Duration time.Duration
	TopLevel bool
	Error    bool
}

type counts struct {
	hits         uint64
	topLevelHits uint64
	errors       uint64
	duration     uint64
	ok           *ddsketch.Sketch
	err          *ddsketch.Sketch
}

// StatsGroup is one aggregation key's counters within an emitted bucket.
type StatsGroup struct {
	Key          AggregationKey
	Hits         uint64
	TopLevelHits uint64
	Errors       uint64
	Duration     uint64
	OKSketch     *ddsketch.Sketch
	ErrSketch    *ddsketch.Sketch
}

// StatsPayload is one bucket's emission: every aggregation key observed
// within [BucketStart, BucketStart+BucketDuration).
type StatsPayload struct {
	BucketStart    time.Time
	BucketDuration time.Duration
	Groups         []StatsGroup
}

type bucket struct {
	start time.Time
	stats map[AggregationKey]*counts
}

func (b *bucket) toPayload(bucketDuration time.Duration) StatsPayload {
	groups := make([]StatsGroup, 0, len(b.stats))
	for key, c := range b.stats {
		groups = append(groups, StatsGroup{
			Key:          key,
			Hits:         c.hits,
			TopLevelHits: c.topLevelHits,
			Errors:       c.errors,
			Duration:     c.duration,
			OKSketch:     c.ok,
			ErrSketch:    c.err,
		})
	}
	return StatsPayload{BucketStart: b.start, BucketDuration: bucketDuration, Groups: groups}
}

// Config configures an Aggregator. Zero-value fields take the documented
// defaults.
type Config struct {
	BucketDuration time.Duration
	// Grace is how long past a bucket's end wall-clock must advance
	// before that bucket is eligible for flush, absorbing spans that
	// arrive slightly out of order.
	Grace time.Duration
	// CheckInterval is how often the flush loop checks for buckets past
	// their grace window. Defaults to the smaller of BucketDuration and
	// one second.
	CheckInterval time.Duration
	Sink          telemetry.Sink
}

func (c *Config) setDefaults() {
	if c.BucketDuration <= 0 {
		c.BucketDuration = DefaultBucketDuration
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = c.BucketDuration
		if c.CheckInterval > time.Second {
			c.CheckInterval = time.Second
		}
	}
	if c.Sink == nil {
		c.Sink = telemetry.Noop
	}
}

// Aggregator folds spans into time buckets and emits StatsPayloads.
type Aggregator struct {
	cfg Config

	mu       sync.Mutex
	buckets  map[int64]*bucket
	oldestTs time.Time

	out  chan StatsPayload
	exit chan struct{}
	done chan struct{}
}

// New returns an Aggregator ready to accept spans via Add. Run must be
// called to drive flushing and populate the Out channel.
func New(cfg Config) *Aggregator {
	cfg.setDefaults()
	return &Aggregator{
		cfg:     cfg,
		buckets: make(map[int64]*bucket),
		out:     make(chan StatsPayload, 8),
		exit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Out returns the channel StatsPayloads are emitted on. It is closed once
// Run returns.
func (a *Aggregator) Out() <-chan StatsPayload { return a.out }

// Add folds one span into its bucket. Safe for concurrent use by many
// producer goroutines; the bucket map itself is single-owner under a
// mutex, matching the teacher's own locked add().
func (a *Aggregator) Add(s Span) {
	bucketStart := s.Start.Truncate(a.cfg.BucketDuration)

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.oldestTs.IsZero() && bucketStart.Before(a.oldestTs) {
		// The bucket this span belongs to has already flushed. Rather
		// than silently drop it (spec.md §7: never drop without a
		// counter increment), fold it into the oldest still-open
		// bucket and count it as late.
		a.cfg.Sink.Count("apmstats.late_span", 1, nil)
		bucketStart = a.oldestTs
	}

	ts := bucketStart.Unix()
	b, ok := a.buckets[ts]
	if !ok {
		b = &bucket{start: bucketStart, stats: make(map[AggregationKey]*counts)}
		a.buckets[ts] = b
	}

	c, ok := b.stats[s.Key]
	if !ok {
		c = &counts{}
		b.stats[s.Key] = c
	}

	c.hits++
	if s.TopLevel {
		c.topLevelHits++
	}
	c.duration += uint64(s.Duration)
	if s.Error {
		c.errors++
		if c.err == nil {
			c.err = ddsketch.New()
		}
		_ = c.err.Insert(float64(s.Duration))
	} else {
		if c.ok == nil {
			c.ok = ddsketch.New()
		}
		_ = c.ok.Insert(float64(s.Duration))
	}
}

// Run drives the flush loop until ctx is cancelled or Stop is called,
// then performs a final forced flush of every remaining bucket (spec.md
// §4.5: "OR on graceful shutdown") and closes Out.
func (a *Aggregator) Run(ctx context.Context) {
	defer close(a.done)
	defer close(a.out)

	ticker := time.NewTicker(a.cfg.CheckInterval)
	defer ticker.Stop()

	log := obslog.L("apmstats")

	for {
		select {
		case <-ctx.Done():
			a.flush(true)
			return
		case <-a.exit:
			a.flush(true)
			return
		case <-ticker.C:
			a.flush(false)
			log.Debug("apmstats flush tick")
		}
	}
}

// FlushNow forces an immediate flush of every open bucket regardless of
// its grace window. It does not require Run to be active, which makes it
// useful for tests and for callers that want a synchronous drain.
func (a *Aggregator) FlushNow() {
	a.flush(true)
}

// Stop requests a final flush and waits for Run to return.
func (a *Aggregator) Stop() {
	close(a.exit)
	<-a.done
}

// flush emits every bucket whose grace window has elapsed (or, if force,
// every remaining bucket), removing each from the map so it is never
// emitted twice.
func (a *Aggregator) flush(force bool) {
	now := time.Now()

	a.mu.Lock()
	var ready []int64
	for ts, b := range a.buckets {
		if force || now.Sub(b.start) >= a.cfg.BucketDuration+a.cfg.Grace {
			ready = append(ready, ts)
		}
	}
	payloads := make([]StatsPayload, 0, len(ready))
	for _, ts := range ready {
		b := a.buckets[ts]
		delete(a.buckets, ts)
		if b.start.After(a.oldestTs) {
			a.oldestTs = b.start.Add(a.cfg.BucketDuration)
		}
		payloads = append(payloads, b.toPayload(a.cfg.BucketDuration))
	}
	a.mu.Unlock()

	for _, p := range payloads {
		select {
		case a.out <- p:
		case <-time.After(5 * time.Second):
			a.cfg.Sink.Count("apmstats.payload_dropped", 1, nil)
		}
	}
}
