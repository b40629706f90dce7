// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package batcher implements the C7 partitioned batcher: a single-task
// stream transformer that folds an input sequence into sized, time-bounded,
// per-key batches (spec.md §4.3). The single-select-loop-over-one-goroutine
// shape is grounded in the DataDog Agent stats Concentrator's Run loop
// (ticker + exit channel select); unlike the Concentrator's fixed-interval
// bucket flush, each key here has its own inactivity deadline, so a
// min-heap plus one reusable timer stands in for the Concentrator's single
// ticker.
package batcher

import (
	"container/heap"
	"context"
	"time"
)

// Partitioner assigns an input item to a batch key.
type Partitioner[T any, K comparable] func(item T) K

// SizeOf estimates an item's contribution to a batch's byte size limit.
type SizeOf[T any] func(item T) int

// Config bounds a single key's open batch. A zero limit means "no limit".
type Config struct {
	SizeLimit int
	ItemLimit int
	Timeout   time.Duration
}

// Output is one emitted batch, along with the key it was collected under.
type Output[T any, K comparable] struct {
	Key   K
	Items []T
}

type openBatch[T any] struct {
	items     []T
	sizeBytes int
}

// Batcher partitions an input sequence into per-key batches per the
// emission rules of spec.md §4.3.
type Batcher[T any, K comparable] struct {
	cfg       Config
	partition Partitioner[T, K]
	sizeOf    SizeOf[T]
}

// New returns a Batcher using cfg's limits, partition to assign keys, and
// sizeOf to estimate each item's byte contribution.
func New[T any, K comparable](cfg Config, partition Partitioner[T, K], sizeOf SizeOf[T]) *Batcher[T, K] {
	return &Batcher[T, K]{cfg: cfg, partition: partition, sizeOf: sizeOf}
}

// Run consumes in until it closes or ctx is cancelled, emitting batches on
// the returned channel, which is closed once every open batch has been
// flushed (or, on context cancellation, abandoned — spec.md §4.3: "dropping
// the output stream drops all in-flight batches"). It is single-task
// cooperative: item insertion, timer bookkeeping, and emission all happen
// on one goroutine, so the Batcher's own state needs no synchronization.
func (b *Batcher[T, K]) Run(ctx context.Context, in <-chan T) <-chan Output[T, K] {
	out := make(chan Output[T, K])

	go func() {
		defer close(out)

		open := make(map[K]*openBatch[T])
		wheel := newTimerWheel[K]()

		// send returns false if the context was cancelled while waiting to
		// send, signalling the caller to abandon remaining work.
		send := func(o Output[T, K]) bool {
			select {
			case out <- o:
				return true
			case <-ctx.Done():
				return false
			}
		}

		flushAll := func() {
			// Arbitrary order, per spec.md §4.3 rule 3.
			for key, batch := range open {
				delete(open, key)
				wheel.cancel(key)
				if len(batch.items) == 0 {
					continue
				}
				if !send(Output[T, K]{Key: key, Items: batch.items}) {
					return
				}
			}
		}

		for {
			var timerC <-chan time.Time
			if d, ok := wheel.nextDeadline(); ok {
				timerC = time.After(time.Until(d))
			}

			select {
			case <-ctx.Done():
				return

			case item, ok := <-in:
				if !ok {
					flushAll()
					return
				}
				for _, ready := range b.insert(open, wheel, item) {
					if !send(ready) {
						return
					}
				}

			case <-timerC:
				// The wheel may report nothing due even though deadlines
				// remain (a key's timer was re-armed after this wakeup was
				// scheduled); fired() filters those out rather than the
				// driver treating an empty result as "no deadlines exist".
				for _, key := range wheel.fired(time.Now()) {
					batch, ok := open[key]
					delete(open, key)
					if !ok || len(batch.items) == 0 {
						continue
					}
					if !send(Output[T, K]{Key: key, Items: batch.items}) {
						return
					}
				}
			}
		}
	}()

	return out
}

// insert applies one item's arrival per spec.md §4.3's emission rules,
// returning zero, one, or two batches now ready to emit (a superseded
// batch closed to make room, and/or the new batch if the item filled it
// exactly).
func (b *Batcher[T, K]) insert(open map[K]*openBatch[T], wheel *timerWheel[K], item T) []Output[T, K] {
	key := b.partition(item)
	size := b.sizeOf(item)

	batch, had := open[key]
	if !had {
		batch = &openBatch[T]{}
		open[key] = batch
	}

	var ready []Output[T, K]

	exceedsLimit := len(batch.items) > 0 &&
		((b.cfg.SizeLimit > 0 && batch.sizeBytes+size > b.cfg.SizeLimit) ||
			(b.cfg.ItemLimit > 0 && len(batch.items)+1 > b.cfg.ItemLimit))
	if exceedsLimit {
		// Rule 1b: close and emit the existing batch first, then start a
		// fresh one containing the new item.
		ready = append(ready, Output[T, K]{Key: key, Items: batch.items})
		wheel.cancel(key)
		batch = &openBatch[T]{}
		open[key] = batch
	}

	batch.items = append(batch.items, item)
	batch.sizeBytes += size

	filledExactly := (b.cfg.ItemLimit > 0 && len(batch.items) == b.cfg.ItemLimit) ||
		(b.cfg.SizeLimit > 0 && batch.sizeBytes >= b.cfg.SizeLimit)
	switch {
	case filledExactly:
		// Rule 1c: the item fills the batch exactly — close immediately.
		ready = append(ready, Output[T, K]{Key: key, Items: batch.items})
		delete(open, key)
		wheel.cancel(key)
	case b.cfg.Timeout > 0:
		wheel.arm(key, time.Now().Add(b.cfg.Timeout))
	}

	return ready
}

// timerWheel is a min-heap of per-key deadlines. It intentionally mirrors
// the "may return spurious empty results while still holding future
// deadlines" contract spec.md §4.3 calls out: fired() only pops entries
// that are both due AND still the key's current (not superseded or
// cancelled) deadline.
type timerWheel[K comparable] struct {
	items   wheelHeap[K]
	current map[K]int64 // key -> sequence number of its live deadline
	seq     int64
}

type wheelEntry[K comparable] struct {
	at  time.Time
	key K
	seq int64
}

type wheelHeap[K comparable] []wheelEntry[K]

func (h wheelHeap[K]) Len() int            { return len(h) }
func (h wheelHeap[K]) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h wheelHeap[K]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *wheelHeap[K]) Push(x interface{}) { *h = append(*h, x.(wheelEntry[K])) }
func (h *wheelHeap[K]) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func newTimerWheel[K comparable]() *timerWheel[K] {
	return &timerWheel[K]{current: make(map[K]int64)}
}

func (w *timerWheel[K]) arm(key K, at time.Time) {
	w.seq++
	w.current[key] = w.seq
	heap.Push(&w.items, wheelEntry[K]{at: at, key: key, seq: w.seq})
}

func (w *timerWheel[K]) cancel(key K) {
	delete(w.current, key)
}

func (w *timerWheel[K]) nextDeadline() (time.Time, bool) {
	for w.items.Len() > 0 {
		top := w.items[0]
		if cur, ok := w.current[top.key]; !ok || cur != top.seq {
			heap.Pop(&w.items) // stale entry, superseded or cancelled
			continue
		}
		return top.at, true
	}
	return time.Time{}, false
}

// fired pops and returns every key whose live deadline is <= now.
func (w *timerWheel[K]) fired(now time.Time) []K {
	var out []K
	for w.items.Len() > 0 {
		top := w.items[0]
		cur, ok := w.current[top.key]
		if !ok || cur != top.seq {
			heap.Pop(&w.items)
			continue
		}
		if top.at.After(now) {
			break
		}
		heap.Pop(&w.items)
		delete(w.current, top.key)
		out = append(out, top.key)
	}
	return out
}
