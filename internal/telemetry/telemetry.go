// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package telemetry fans the core's runtime counters out to both a statsd
// client (github.com/DataDog/datadog-go/v5/statsd) and a Prometheus
// registry, mirroring pkg/trace/stats.Concentrator's statsd.ClientInterface
// field while also serving operators who scrape Prometheus instead.
package telemetry

import (
	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the narrow counter/gauge surface every core component depends on.
// A component never imports statsd or prometheus directly; it takes a Sink.
type Sink interface {
	Count(name string, value int64, tags []string)
	Gauge(name string, value float64, tags []string)
}

// Multi fans calls out to a statsd.ClientInterface and a Prometheus
// *CounterVec/*GaugeVec registry. Either half may be nil.
type Multi struct {
	Statsd statsd.ClientInterface

	reg      prometheus.Registerer
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

// NewMulti builds a Sink that writes to statsd (if non-nil) and registers
// itself under the given Prometheus registerer (if non-nil) lazily, one
// CounterVec/GaugeVec per metric name keyed by a "tags" label.
func NewMulti(client statsd.ClientInterface, reg prometheus.Registerer) *Multi {
	return &Multi{
		Statsd:   client,
		reg:      reg,
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

func (m *Multi) Count(name string, value int64, tags []string) {
	if m.Statsd != nil {
		_ = m.Statsd.Count(name, value, tags, 1)
	}
	if m.reg != nil {
		cv := m.counterVec(name)
		cv.WithLabelValues(labelValue(tags)).Add(float64(value))
	}
}

func (m *Multi) Gauge(name string, value float64, tags []string) {
	if m.Statsd != nil {
		_ = m.Statsd.Gauge(name, value, tags, 1)
	}
	if m.reg != nil {
		gv := m.gaugeVec(name)
		gv.WithLabelValues(labelValue(tags)).Set(value)
	}
}

func (m *Multi) counterVec(name string) *prometheus.CounterVec {
	if cv, ok := m.counters[name]; ok {
		return cv
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: sanitize(name),
		Help: "vector-core counter " + name,
	}, []string{"tags"})
	m.reg.MustRegister(cv)
	m.counters[name] = cv
	return cv
}

func (m *Multi) gaugeVec(name string) *prometheus.GaugeVec {
	if gv, ok := m.gauges[name]; ok {
		return gv
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: sanitize(name),
		Help: "vector-core gauge " + name,
	}, []string{"tags"})
	m.reg.MustRegister(gv)
	m.gauges[name] = gv
	return gv
}

func labelValue(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}

func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// Noop is a Sink that discards everything, used as the default.
var Noop Sink = noopSink{}

type noopSink struct{}

func (noopSink) Count(string, int64, []string) {}
func (noopSink) Gauge(string, float64, []string) {}
