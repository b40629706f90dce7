// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package apmstats

import (
	"fmt"
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/vectordotdev/vector-core/internal/ddsketch"
)

// MarshalMsg encodes p as a msgpack map, in the hand-written
// tinylib/msgp idiom used by internal/metric's wire.go. Per-group
// DDSketches are embedded as their upstream protobuf encoding
// (ddsketch.Sketch.ToProtoBytes), matching the DOMAIN STACK's pairing of
// protobuf for sketch payloads with msgpack for the envelope around them.
func (p StatsPayload) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendMapHeader(b, 3)
	o = msgp.AppendString(o, "bucket_start_unix_nanos")
	o = msgp.AppendInt64(o, p.BucketStart.UnixNano())
	o = msgp.AppendString(o, "bucket_duration_ns")
	o = msgp.AppendInt64(o, int64(p.BucketDuration))
	o = msgp.AppendString(o, "groups")
	o = msgp.AppendArrayHeader(o, uint32(len(p.Groups)))
	for _, g := range p.Groups {
		var err error
		o, err = g.marshalMsg(o)
		if err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (g StatsGroup) marshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendMapHeader(b, 11)
	o = msgp.AppendString(o, "service")
	o = msgp.AppendString(o, g.Key.Service)
	o = msgp.AppendString(o, "name")
	o = msgp.AppendString(o, g.Key.Name)
	o = msgp.AppendString(o, "resource")
	o = msgp.AppendString(o, g.Key.Resource)
	o = msgp.AppendString(o, "http_status")
	o = msgp.AppendUint32(o, g.Key.HTTPStatus)
	o = msgp.AppendString(o, "type")
	o = msgp.AppendString(o, g.Key.Type)
	o = msgp.AppendString(o, "db_type")
	o = msgp.AppendString(o, g.Key.DBType)
	o = msgp.AppendString(o, "synthetics")
	o = msgp.AppendBool(o, g.Key.Synthetics)
	o = msgp.AppendString(o, "hits")
	o = msgp.AppendUint64(o, g.Hits)
	o = msgp.AppendString(o, "top_level_hits")
	o = msgp.AppendUint64(o, g.TopLevelHits)
	o = msgp.AppendString(o, "errors")
	o = msgp.AppendUint64(o, g.Errors)
	o = msgp.AppendString(o, "duration")
	o = msgp.AppendUint64(o, g.Duration)

	okBytes, err := sketchProtoBytes(g.OKSketch)
	if err != nil {
		return nil, fmt.Errorf("apmstats: marshal ok sketch: %w", err)
	}
	errBytes, err := sketchProtoBytes(g.ErrSketch)
	if err != nil {
		return nil, fmt.Errorf("apmstats: marshal err sketch: %w", err)
	}
	o = msgp.AppendMapHeader(o, 2)
	o = msgp.AppendString(o, "ok_sketch")
	o = msgp.AppendBytes(o, okBytes)
	o = msgp.AppendString(o, "err_sketch")
	o = msgp.AppendBytes(o, errBytes)
	return o, nil
}

func sketchProtoBytes(s *ddsketch.Sketch) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return s.ToProtoBytes()
}

// UnmarshalMsg decodes bytes produced by MarshalMsg.
func (p *StatsPayload) UnmarshalMsg(b []byte) ([]byte, error) {
	n, o, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		var key string
		key, o, err = msgp.ReadStringBytes(o)
		if err != nil {
			return nil, err
		}
		switch key {
		case "bucket_start_unix_nanos":
			var nanos int64
			nanos, o, err = msgp.ReadInt64Bytes(o)
			if err != nil {
				return nil, err
			}
			p.BucketStart = time.Unix(0, nanos).UTC()
		case "bucket_duration_ns":
			var d int64
			d, o, err = msgp.ReadInt64Bytes(o)
			if err != nil {
				return nil, err
			}
			p.BucketDuration = time.Duration(d)
		case "groups":
			var gn uint32
			gn, o, err = msgp.ReadArrayHeaderBytes(o)
			if err != nil {
				return nil, err
			}
			p.Groups = make([]StatsGroup, gn)
			for i := range p.Groups {
				o, err = p.Groups[i].unmarshalMsg(o)
				if err != nil {
					return nil, err
				}
			}
		default:
			o, err = msgp.Skip(o)
			if err != nil {
				return nil, err
			}
		}
	}
	return o, nil
}

func (g *StatsGroup) unmarshalMsg(b []byte) ([]byte, error) {
	n, o, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		var key string
		key, o, err = msgp.ReadStringBytes(o)
		if err != nil {
			return nil, err
		}
		switch key {
		case "service":
			g.Key.Service, o, err = msgp.ReadStringBytes(o)
		case "name":
			g.Key.Name, o, err = msgp.ReadStringBytes(o)
		case "resource":
			g.Key.Resource, o, err = msgp.ReadStringBytes(o)
		case "http_status":
			g.Key.HTTPStatus, o, err = msgp.ReadUint32Bytes(o)
		case "type":
			g.Key.Type, o, err = msgp.ReadStringBytes(o)
		case "db_type":
			g.Key.DBType, o, err = msgp.ReadStringBytes(o)
		case "synthetics":
			g.Key.Synthetics, o, err = msgp.ReadBoolBytes(o)
		case "hits":
			g.Hits, o, err = msgp.ReadUint64Bytes(o)
		case "top_level_hits":
			g.TopLevelHits, o, err = msgp.ReadUint64Bytes(o)
		case "errors":
			g.Errors, o, err = msgp.ReadUint64Bytes(o)
		case "duration":
			g.Duration, o, err = msgp.ReadUint64Bytes(o)
		case "ok_sketch":
			var raw []byte
			raw, o, err = msgp.ReadBytesBytes(o, nil)
			if err == nil && len(raw) > 0 {
				g.OKSketch, err = ddsketch.FromProtoBytes(raw)
			}
		case "err_sketch":
			var raw []byte
			raw, o, err = msgp.ReadBytesBytes(o, nil)
			if err == nil && len(raw) > 0 {
				g.ErrSketch, err = ddsketch.FromProtoBytes(raw)
			}
		default:
			o, err = msgp.Skip(o)
		}
		if err != nil {
			return nil, err
		}
	}
	return o, nil
}
