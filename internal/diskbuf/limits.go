// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package diskbuf implements the C10 disk buffer v2: a directory-per-buffer,
// ledger-plus-append-only-data-files log with crash recovery and FIFO,
// at-least-once handoff to a reader via the C11 ack fabric. The file
// layout, record framing, and size-limit arithmetic are grounded directly
// on a line-by-line read of
// lib/vector-buffers/src/variants/disk_v2/common.rs, the one disk_v2 source
// file retained in the retrieval pack; record framing and protocol details
// absent from that file follow spec.md §4.6 directly.
package diskbuf

import (
	"math"
	"time"

	"github.com/vectordotdev/vector-core/internal/coreerr"
)

// DefaultMaxDataFileSize matches the original's 128MiB default.
const DefaultMaxDataFileSize uint64 = 128 * 1024 * 1024

// DefaultMaxRecordSize: "we allow records to be as large as a data file."
const DefaultMaxRecordSize uint64 = DefaultMaxDataFileSize

// DefaultFlushInterval is how often the writer flushes and fsyncs.
const DefaultFlushInterval = 500 * time.Millisecond

// DefaultWriteBufferSize aligns with typical cloud-provider I/O sizing.
const DefaultWriteBufferSize = 256 * 1024

// MaxFileID is the largest representable file id; ids wrap mod 2^16.
const MaxFileID uint16 = math.MaxUint16

// RecordHeaderLen is the fixed, big-endian on-disk record header size:
// magic(4) + crc32c(4) + record_id(8) + payload_len(4) + flags(1) + reserved(3).
const RecordHeaderLen = 24

const serializerAlignment = 16

// MaxAlignableAmount bounds align16's input to avoid silent overflow.
const MaxAlignableAmount = math.MaxInt64 - serializerAlignment

// MinimumMaxRecordSize is the smallest max_record_size that can frame a
// non-empty payload: align16(header + 1 byte).
var MinimumMaxRecordSize = uint64(align16(RecordHeaderLen + 1))

// LedgerMagic and LedgerVersion identify the fixed-length ledger file.
const (
	LedgerMagic   uint32 = 0x4C454447 // "LEDG"
	LedgerVersion uint32 = 1
)

// LedgerLen is the exact byte length of the ledger file (§6): magic(4) +
// version(4) + writer_next_file_id(2) + pad(2) + writer_next_record_id(8) +
// reader_current_file_id(2) + pad(2) + reader_last_read_record_id(8) +
// total_bytes(8) + crc32c(4) + pad(4).
const LedgerLen = 48

// align16 rounds amount up to the next multiple of 16, matching the
// original's overaligned record serializer so on-disk size accounting is
// exact. Panics if amount exceeds MaxAlignableAmount, mirroring the
// original's debug_assert (there is no "valid but wrong" return here: an
// amount this large means a caller already miscalculated upstream).
func align16(amount int) int {
	if amount > MaxAlignableAmount {
		panic("diskbuf: amount exceeds MaxAlignableAmount")
	}
	return ((amount + serializerAlignment - 1) / serializerAlignment) * serializerAlignment
}

func maximumDataFileSize() uint64 {
	return (math.MaxUint64 - LedgerLen) / 2
}

func minimumBufferSize(maxDataFileSize uint64) uint64 {
	return maxDataFileSize*2 + LedgerLen
}

// Limits holds the validated, resolved size configuration for a buffer,
// separated from Config so Writer/Reader can take it without the
// filesystem/telemetry fields.
type Limits struct {
	MaxBufferSize   uint64
	MaxDataFileSize uint64
	MaxRecordSize   uint64
	WriteBufferSize int
}

// resolve validates raw, user-facing limits and applies the internal
// max_buffer_size reduction by one max_data_file_size (spec.md §4.6.3: "so
// the writer can always make progress when the reader frees one full
// file").
func resolveLimits(maxBufferSize, maxDataFileSize, maxRecordSize uint64, writeBufferSize int) (Limits, error) {
	if maxDataFileSize == 0 {
		return Limits{}, coreerr.New(coreerr.Config, "diskbuf.max_data_file_size", errInvalid("cannot be zero"))
	}
	if mech := maximumDataFileSize(); maxDataFileSize > mech {
		return Limits{}, coreerr.New(coreerr.Config, "diskbuf.max_data_file_size", errInvalid("exceeds the mechanical limit"))
	}
	if maxRecordSize <= MinimumMaxRecordSize {
		return Limits{}, coreerr.New(coreerr.Config, "diskbuf.max_record_size", errInvalid("must be greater than MinimumMaxRecordSize"))
	}
	if maxRecordSize > maxDataFileSize {
		return Limits{}, coreerr.New(coreerr.Config, "diskbuf.max_record_size", errInvalid("must be less than or equal to max_data_file_size"))
	}
	minBuf := minimumBufferSize(maxDataFileSize)
	if maxBufferSize < minBuf {
		return Limits{}, coreerr.New(coreerr.Config, "diskbuf.max_buffer_size", errInvalid("must be at least 2*max_data_file_size + LedgerLen"))
	}
	if writeBufferSize <= 0 {
		return Limits{}, coreerr.New(coreerr.Config, "diskbuf.write_buffer_size", errInvalid("cannot be zero"))
	}

	return Limits{
		MaxBufferSize:   maxBufferSize - maxDataFileSize,
		MaxDataFileSize: maxDataFileSize,
		MaxRecordSize:   maxRecordSize,
		WriteBufferSize: writeBufferSize,
	}, nil
}

type invalidParam string

func (e invalidParam) Error() string { return string(e) }

func errInvalid(reason string) error { return invalidParam(reason) }
