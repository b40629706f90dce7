// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package eventmeta is the metadata envelope shared by every event variant
// (C6): finalizer handles, schema, provenance, and the bits the Datadog
// sinks need to round-trip origin information. It is its own package
// because both internal/metric and internal/event need the identical type
// without importing one another.
package eventmeta

import (
	"github.com/google/uuid"

	"github.com/vectordotdev/vector-core/internal/ack"
	"github.com/vectordotdev/vector-core/internal/kind"
)

// DatadogOrigin carries the product/category/service triple Datadog sinks
// attach to metrics so the backend can attribute them, grounded in
// original_source's DatadogMetricOriginMetadata.
type DatadogOrigin struct {
	Product  uint32
	Category uint32
	Service  uint32
}

// Metadata is carried by every Log, Metric, and Trace event.
type Metadata struct {
	finalizer ack.Handle

	schemaDefinition *kind.TypeDef
	sourceID         string
	sourceType       string
	upstreamID       string
	secrets          map[string]string
	datadogOrigin    *DatadogOrigin
	sourceEventID    uuid.UUID
}

// New returns Metadata for a freshly ingested event, stamping a new
// source-event UUID.
func New(sourceType string) Metadata {
	return Metadata{sourceType: sourceType, sourceEventID: uuid.New()}
}

func (m Metadata) Finalizer() ack.Handle { return m.finalizer }

// WithFinalizer attaches a finalizer handle, replacing any existing one.
func (m Metadata) WithFinalizer(h ack.Handle) Metadata {
	m.finalizer = h
	return m
}

// MergeFinalizers unions this metadata's finalizer with other's, per
// spec.md §4.7 ("transforms that merge events union them").
func (m Metadata) MergeFinalizers(other Metadata) Metadata {
	m.finalizer = ack.Union(m.finalizer, other.finalizer)
	return m
}

// SplitFinalizer clones the finalizer handle for use by a second event
// produced by splitting this one, per spec.md §4.7.
func (m Metadata) SplitFinalizer() ack.Handle {
	return m.finalizer.Clone()
}

func (m Metadata) SchemaDefinition() *kind.TypeDef { return m.schemaDefinition }

func (m Metadata) WithSchemaDefinition(t kind.TypeDef) Metadata {
	m.schemaDefinition = &t
	return m
}

func (m Metadata) SourceID() string { return m.sourceID }

func (m Metadata) WithSourceID(id string) Metadata {
	m.sourceID = id
	return m
}

func (m Metadata) SourceType() string { return m.sourceType }

func (m Metadata) UpstreamID() string { return m.upstreamID }

func (m Metadata) WithUpstreamID(id string) Metadata {
	m.upstreamID = id
	return m
}

func (m Metadata) Secret(key string) (string, bool) {
	v, ok := m.secrets[key]
	return v, ok
}

// WithSecret attaches a secret value under key, copying the underlying map
// so sibling Metadata values sharing the old map are unaffected.
func (m Metadata) WithSecret(key, value string) Metadata {
	next := make(map[string]string, len(m.secrets)+1)
	for k, v := range m.secrets {
		next[k] = v
	}
	next[key] = value
	m.secrets = next
	return m
}

func (m Metadata) DatadogOrigin() *DatadogOrigin { return m.datadogOrigin }

func (m Metadata) WithDatadogOrigin(o DatadogOrigin) Metadata {
	m.datadogOrigin = &o
	return m
}

func (m Metadata) SourceEventID() uuid.UUID { return m.sourceEventID }
