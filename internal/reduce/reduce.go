// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package reduce implements the C8 reducer: it merges consecutive log
// events sharing a group-by discriminant into a single event, per the
// state machine of spec.md §4.4. The single-goroutine, channel-driven shape
// mirrors internal/batcher's Run, which in turn is grounded in the DataDog
// Agent stats Concentrator's select loop.
package reduce

import (
	"context"
	"fmt"
	"time"

	"github.com/vectordotdev/vector-core/internal/event"
	"github.com/vectordotdev/vector-core/internal/eventmeta"
	"github.com/vectordotdev/vector-core/internal/path"
	"github.com/vectordotdev/vector-core/internal/value"
)

// Condition is a boolean predicate over an event, used for starts_when and
// ends_when. No VRL evaluator lives in this module, so callers supply their
// own compiled predicate, the same way internal/batcher takes a
// Partitioner/SizeOf function rather than baking in a particular scheme.
type Condition func(e event.Event) bool

// Config holds a Reducer's static configuration.
type Config struct {
	GroupBy         []path.Path
	MergeStrategies map[string]MergeStrategy
	StartsWhen      Condition
	EndsWhen        Condition
	ExpireAfter     time.Duration
	FlushPeriod     time.Duration
	// MaxEvents is optional: nil means uncapped. A configured value must
	// be at least 1.
	MaxEvents *int
}

// Reducer merges consecutive log events sharing a discriminant.
type Reducer struct {
	cfg Config
}

// New validates cfg and returns a Reducer.
func New(cfg Config) (*Reducer, error) {
	if cfg.StartsWhen != nil && cfg.EndsWhen != nil {
		return nil, fmt.Errorf("reduce: only one of starts_when and ends_when may be set")
	}
	if cfg.MaxEvents != nil && *cfg.MaxEvents < 1 {
		return nil, fmt.Errorf("reduce: max_events must be at least 1")
	}
	return &Reducer{cfg: cfg}, nil
}

type reduceState struct {
	events     int
	fields     map[string]merger
	fieldOrder []string
	metadata   eventmeta.Metadata
	staleSince time.Time
}

func newReduceState() *reduceState {
	return &reduceState{fields: make(map[string]merger), staleSince: time.Now()}
}

func (s *reduceState) addEvent(log event.Log, strategies map[string]MergeStrategy) {
	if s.events == 0 {
		s.metadata = log.Metadata
	} else {
		s.metadata = mergeMetadata(s.metadata, log.Metadata)
	}

	if log.Value.Kind() == value.KindObject {
		obj := log.Value.AsObject()
		for _, k := range obj.Keys() {
			v, _ := obj.Get(k)
			strategy, hasStrategy := strategies[k]
			if m, ok := s.fields[k]; ok {
				m.add(v)
				continue
			}
			s.fields[k] = newMerger(v, strategy, hasStrategy)
			s.fieldOrder = append(s.fieldOrder, k)
		}
	}

	s.events++
	s.staleSince = time.Now()
}

func (s *reduceState) flush() event.Event {
	obj := value.NewObject()
	for _, k := range s.fieldOrder {
		obj.Set(k, s.fields[k].value())
	}
	return event.NewLogWithMetadata(value.ObjectValue(obj), s.metadata)
}

// mergeMetadata unions finalizers (so an ack of the reduced event
// propagates to every merged original, per spec.md §4.7) and otherwise
// lets incoming's descriptive fields win, matching the "later events
// overwrite earlier ones" rule applied to metadata.
func mergeMetadata(base, incoming eventmeta.Metadata) eventmeta.Metadata {
	merged := base.MergeFinalizers(incoming)
	if id := incoming.SourceID(); id != "" {
		merged = merged.WithSourceID(id)
	}
	if id := incoming.UpstreamID(); id != "" {
		merged = merged.WithUpstreamID(id)
	}
	if sd := incoming.SchemaDefinition(); sd != nil {
		merged = merged.WithSchemaDefinition(*sd)
	}
	if do := incoming.DatadogOrigin(); do != nil {
		merged = merged.WithDatadogOrigin(*do)
	}
	return merged
}

// Run consumes in until it closes or ctx is cancelled, emitting reduced
// events on the returned channel. Non-log events pass through untouched,
// since reduce only groups structured log fields.
func (r *Reducer) Run(ctx context.Context, in <-chan event.Event) <-chan event.Event {
	out := make(chan event.Event)

	go func() {
		defer close(out)

		states := make(map[string]*reduceState)

		send := func(e event.Event) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		flushAll := func() {
			for k, s := range states {
				delete(states, k)
				if !send(s.flush()) {
					return
				}
			}
		}

		var ticker *time.Ticker
		if r.cfg.FlushPeriod > 0 {
			ticker = time.NewTicker(r.cfg.FlushPeriod)
			defer ticker.Stop()
		}

		for {
			var tickC <-chan time.Time
			if ticker != nil {
				tickC = ticker.C
			}

			select {
			case <-ctx.Done():
				return

			case e, ok := <-in:
				if !ok {
					flushAll()
					return
				}
				for _, ready := range r.transformOne(states, e) {
					if !send(ready) {
						return
					}
				}

			case <-tickC:
				for _, ready := range r.sweepExpired(states) {
					if !send(ready) {
						return
					}
				}
			}
		}
	}()

	return out
}

// transformOne applies spec.md §4.4's state machine to one incoming event,
// returning zero or one reduced events now ready to emit.
func (r *Reducer) transformOne(states map[string]*reduceState, e event.Event) []event.Event {
	if e.Kind() != event.LogKind {
		return []event.Event{e}
	}

	startsHere := r.cfg.StartsWhen != nil && r.cfg.StartsWhen(e)
	endsHere := r.cfg.EndsWhen != nil && r.cfg.EndsWhen(e)

	log := *e.AsLog()
	disc := r.discriminant(log.Value)

	if r.cfg.MaxEvents != nil {
		switch {
		case *r.cfg.MaxEvents == 1:
			endsHere = true
		default:
			if st, ok := states[disc]; ok && st.events+1 == *r.cfg.MaxEvents {
				endsHere = true
			}
		}
	}

	switch {
	case startsHere:
		var out []event.Event
		if st, ok := states[disc]; ok {
			delete(states, disc)
			out = append(out, st.flush())
		}
		r.pushOrNew(states, disc, log)
		return out

	case endsHere:
		st, ok := states[disc]
		if ok {
			delete(states, disc)
		} else {
			st = newReduceState()
		}
		st.addEvent(log, r.cfg.MergeStrategies)
		return []event.Event{st.flush()}

	default:
		r.pushOrNew(states, disc, log)
		return nil
	}
}

func (r *Reducer) pushOrNew(states map[string]*reduceState, disc string, log event.Log) {
	st, ok := states[disc]
	if !ok {
		st = newReduceState()
		states[disc] = st
	}
	st.addEvent(log, r.cfg.MergeStrategies)
}

// sweepExpired flushes every group idle for at least ExpireAfter. A group
// flushed this way may be emitted before one that started earlier but is
// still receiving events, per spec.md §4.4's ordering note.
func (r *Reducer) sweepExpired(states map[string]*reduceState) []event.Event {
	if r.cfg.ExpireAfter <= 0 {
		return nil
	}
	now := time.Now()
	var stale []string
	for k, st := range states {
		if now.Sub(st.staleSince) >= r.cfg.ExpireAfter {
			stale = append(stale, k)
		}
	}
	out := make([]event.Event, 0, len(stale))
	for _, k := range stale {
		st := states[k]
		delete(states, k)
		out = append(out, st.flush())
	}
	return out
}
