// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package metric

import (
	"fmt"
	"math"

	"github.com/tinylib/msgp/msgp"

	"github.com/vectordotdev/vector-core/internal/ddsketch"
)

// appendFloat writes f as a msgpack float, except for the three special
// values that must survive a JSON-compatible round trip as strings
// (spec.md §6: "Special floats are encoded as strings 'inf', '-inf',
// 'NaN'").
func appendFloat(b []byte, f float64) []byte {
	switch {
	case math.IsInf(f, 1):
		return msgp.AppendString(b, "inf")
	case math.IsInf(f, -1):
		return msgp.AppendString(b, "-inf")
	case math.IsNaN(f):
		return msgp.AppendString(b, "NaN")
	default:
		return msgp.AppendFloat64(b, f)
	}
}

func readFloat(b []byte) (float64, []byte, error) {
	if msgp.NextType(b) == msgp.StrType {
		s, o, err := msgp.ReadStringBytes(b)
		if err != nil {
			return 0, b, err
		}
		switch s {
		case "inf":
			return math.Inf(1), o, nil
		case "-inf":
			return math.Inf(-1), o, nil
		case "NaN":
			return math.NaN(), o, nil
		default:
			return 0, b, fmt.Errorf("metric: unrecognized float string %q", s)
		}
	}
	return msgp.ReadFloat64Bytes(b)
}

// MarshalMsg implements msgp.Marshaler, encoding the wire tagged-enum form
// of spec.md §6: a map with a "type" discriminant plus the fields that
// variant carries.
func (v MetricValue) MarshalMsg(b []byte) ([]byte, error) {
	switch v.kind {
	case KindCounter:
		o := msgp.AppendMapHeader(b, 2)
		o = msgp.AppendString(o, "type")
		o = msgp.AppendString(o, "counter")
		o = msgp.AppendString(o, "value")
		o = appendFloat(o, v.scalar)
		return o, nil

	case KindGauge:
		o := msgp.AppendMapHeader(b, 2)
		o = msgp.AppendString(o, "type")
		o = msgp.AppendString(o, "gauge")
		o = msgp.AppendString(o, "value")
		o = appendFloat(o, v.scalar)
		return o, nil

	case KindSet:
		o := msgp.AppendMapHeader(b, 2)
		o = msgp.AppendString(o, "type")
		o = msgp.AppendString(o, "set")
		o = msgp.AppendString(o, "values")
		o = msgp.AppendArrayHeader(o, uint32(len(v.set)))
		for _, item := range v.set {
			o = msgp.AppendString(o, item)
		}
		return o, nil

	case KindDistribution:
		o := msgp.AppendMapHeader(b, 3)
		o = msgp.AppendString(o, "type")
		o = msgp.AppendString(o, "distribution")
		o = msgp.AppendString(o, "statistic")
		if v.statistic == Summary {
			o = msgp.AppendString(o, "summary")
		} else {
			o = msgp.AppendString(o, "histogram")
		}
		o = msgp.AppendString(o, "samples")
		o = msgp.AppendArrayHeader(o, uint32(len(v.samples)))
		for _, s := range v.samples {
			o = msgp.AppendArrayHeader(o, 2)
			o = appendFloat(o, s.Value)
			o = msgp.AppendUint32(o, s.Rate)
		}
		return o, nil

	case KindAggregatedHistogram:
		o := msgp.AppendMapHeader(b, 4)
		o = msgp.AppendString(o, "type")
		o = msgp.AppendString(o, "aggregated_histogram")
		o = msgp.AppendString(o, "buckets")
		o = msgp.AppendArrayHeader(o, uint32(len(v.buckets)))
		for _, bk := range v.buckets {
			o = msgp.AppendArrayHeader(o, 2)
			o = appendFloat(o, bk.UpperLimit)
			o = msgp.AppendUint64(o, bk.Count)
		}
		o = msgp.AppendString(o, "count")
		o = msgp.AppendUint64(o, v.histCount)
		o = msgp.AppendString(o, "sum")
		o = appendFloat(o, v.histSum)
		return o, nil

	case KindAggregatedSummary:
		o := msgp.AppendMapHeader(b, 4)
		o = msgp.AppendString(o, "type")
		o = msgp.AppendString(o, "aggregated_summary")
		o = msgp.AppendString(o, "quantiles")
		o = msgp.AppendArrayHeader(o, uint32(len(v.quantiles)))
		for _, q := range v.quantiles {
			o = msgp.AppendArrayHeader(o, 2)
			o = appendFloat(o, q.Quantile)
			o = appendFloat(o, q.Value)
		}
		o = msgp.AppendString(o, "count")
		o = msgp.AppendUint64(o, v.sumCount)
		o = msgp.AppendString(o, "sum")
		o = appendFloat(o, v.sumSum)
		return o, nil

	case KindSketch:
		count, min, maxV, sum, avg := sketchAggregates(v.sketch)
		keys, counts := v.sketch.BinMap()
		o := msgp.AppendMapHeader(b, 7)
		o = msgp.AppendString(o, "type")
		o = msgp.AppendString(o, "sketch")
		o = msgp.AppendString(o, "count")
		o = msgp.AppendUint64(o, count)
		o = msgp.AppendString(o, "min")
		o = appendFloat(o, min)
		o = msgp.AppendString(o, "max")
		o = appendFloat(o, maxV)
		o = msgp.AppendString(o, "sum")
		o = appendFloat(o, sum)
		o = msgp.AppendString(o, "avg")
		o = appendFloat(o, avg)
		o = msgp.AppendString(o, "k")
		o = msgp.AppendArrayHeader(o, uint32(len(keys)))
		for _, k := range keys {
			o = msgp.AppendInt32(o, int32(k))
		}
		o = msgp.AppendString(o, "n")
		o = msgp.AppendArrayHeader(o, uint32(len(counts)))
		for _, c := range counts {
			o = msgp.AppendUint32(o, uint32(c))
		}
		return o, nil
	}
	return nil, fmt.Errorf("metric: cannot marshal value of unknown kind %d", v.kind)
}

func sketchAggregates(s *ddsketch.Sketch) (count uint64, min, maxV, sum, avg float64) {
	count = s.Count()
	if v, ok := s.Min(); ok {
		min = v
	}
	if v, ok := s.Max(); ok {
		maxV = v
	}
	if v, ok := s.Sum(); ok {
		sum = v
	}
	if v, ok := s.Avg(); ok {
		avg = v
	}
	return
}

// UnmarshalMsg implements msgp.Unmarshaler for the wire form MarshalMsg
// produces. Each variant's fields are read in the fixed order that variant
// always writes them in, the same way tinylib/msgp's generated decoders
// switch on the field name and read a statically known type per case.
func (v *MetricValue) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, o, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	var typ string
	var scalar float64
	var statistic StatisticKind
	var setItems []string
	var samples []Sample
	var buckets []Bucket
	var quantiles []Quantile
	var count uint64
	var sum, min, maxV, avg float64
	var keys []int16
	var counts []uint16

	for i := uint32(0); i < sz; i++ {
		var key string
		key, o, err = msgp.ReadStringBytes(o)
		if err != nil {
			return b, err
		}
		switch key {
		case "type":
			typ, o, err = msgp.ReadStringBytes(o)
		case "value":
			scalar, o, err = readFloat(o)
		case "statistic":
			var s string
			s, o, err = msgp.ReadStringBytes(o)
			if s == "summary" {
				statistic = Summary
			} else {
				statistic = Histogram
			}
		case "values":
			var n uint32
			n, o, err = msgp.ReadArrayHeaderBytes(o)
			setItems = make([]string, n)
			for i := uint32(0); err == nil && i < n; i++ {
				setItems[i], o, err = msgp.ReadStringBytes(o)
			}
		case "samples":
			var n uint32
			n, o, err = msgp.ReadArrayHeaderBytes(o)
			samples = make([]Sample, n)
			for i := uint32(0); err == nil && i < n; i++ {
				var pairSz uint32
				pairSz, o, err = msgp.ReadArrayHeaderBytes(o)
				if err == nil && pairSz != 2 {
					err = fmt.Errorf("metric: malformed sample pair")
				}
				if err != nil {
					break
				}
				samples[i].Value, o, err = readFloat(o)
				if err != nil {
					break
				}
				samples[i].Rate, o, err = msgp.ReadUint32Bytes(o)
			}
		case "buckets":
			var n uint32
			n, o, err = msgp.ReadArrayHeaderBytes(o)
			buckets = make([]Bucket, n)
			for i := uint32(0); err == nil && i < n; i++ {
				var pairSz uint32
				pairSz, o, err = msgp.ReadArrayHeaderBytes(o)
				if err == nil && pairSz != 2 {
					err = fmt.Errorf("metric: malformed bucket pair")
				}
				if err != nil {
					break
				}
				buckets[i].UpperLimit, o, err = readFloat(o)
				if err != nil {
					break
				}
				buckets[i].Count, o, err = msgp.ReadUint64Bytes(o)
			}
		case "quantiles":
			var n uint32
			n, o, err = msgp.ReadArrayHeaderBytes(o)
			quantiles = make([]Quantile, n)
			for i := uint32(0); err == nil && i < n; i++ {
				var pairSz uint32
				pairSz, o, err = msgp.ReadArrayHeaderBytes(o)
				if err == nil && pairSz != 2 {
					err = fmt.Errorf("metric: malformed quantile pair")
				}
				if err != nil {
					break
				}
				quantiles[i].Quantile, o, err = readFloat(o)
				if err != nil {
					break
				}
				quantiles[i].Value, o, err = readFloat(o)
			}
		case "count":
			count, o, err = msgp.ReadUint64Bytes(o)
		case "sum":
			sum, o, err = readFloat(o)
		case "min":
			min, o, err = readFloat(o)
		case "max":
			maxV, o, err = readFloat(o)
		case "avg":
			avg, o, err = readFloat(o)
		case "k":
			var n uint32
			n, o, err = msgp.ReadArrayHeaderBytes(o)
			keys = make([]int16, n)
			for i := uint32(0); err == nil && i < n; i++ {
				var iv int32
				iv, o, err = msgp.ReadInt32Bytes(o)
				keys[i] = int16(iv)
			}
		case "n":
			var n uint32
			n, o, err = msgp.ReadArrayHeaderBytes(o)
			counts = make([]uint16, n)
			for i := uint32(0); err == nil && i < n; i++ {
				var uv uint32
				uv, o, err = msgp.ReadUint32Bytes(o)
				counts[i] = uint16(uv)
			}
		default:
			o, err = msgp.Skip(o)
		}
		if err != nil {
			return b, err
		}
	}

	switch typ {
	case "counter":
		*v = CounterValue(scalar)
	case "gauge":
		*v = GaugeValue(scalar)
	case "set":
		*v = SetValue(setItems)
	case "distribution":
		*v = DistributionValue(samples, statistic)
	case "aggregated_histogram":
		*v = AggregatedHistogramValue(buckets, count, sum)
	case "aggregated_summary":
		*v = AggregatedSummaryValue(quantiles, count, sum)
	case "sketch":
		s, err := ddsketch.FromRaw(count, min, maxV, sum, avg, keys, counts)
		if err != nil {
			return b, err
		}
		*v = SketchValue(s)
	default:
		return b, fmt.Errorf("metric: unrecognized wire type %q", typ)
	}
	return o, nil
}
