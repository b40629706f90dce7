// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package diskbuf

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"path/filepath"
	"sync"

	"go.uber.org/atomic"

	"github.com/vectordotdev/vector-core/internal/coreerr"
)

const ledgerFileName = "buffer.ledger"

// ledger is the single source of truth for writer/reader position,
// persisted as a fixed-length little-endian record (spec.md §6). Hot
// counters are go.uber.org/atomic values so Writer.Write's record-id
// assignment never takes the persistence lock; Persist only locks for the
// encode-and-flush-to-disk step, matching dd-trace-go's own
// atomic-counter-plus-periodic-persist idiom.
type ledger struct {
	writerNextFileID       atomic.Uint32 // stored 0..65535
	writerNextRecordID     atomic.Uint64
	readerCurrentFileID    atomic.Uint32 // stored 0..65535
	readerLastReadRecordID atomic.Uint64
	totalBytes             atomic.Int64

	mu   sync.Mutex
	fs   Filesystem
	path string
}

func openLedger(fs Filesystem, dir string) (*ledger, error) {
	path := filepath.Join(dir, ledgerFileName)
	l := &ledger{fs: fs, path: path}

	if !fs.Exists(path) {
		// writerNextFileID=1 establishes the invariant the writer relies on
		// throughout its lifetime: writerNextFileID == (file currently being
		// written to) + 1. File 0 is the first file the writer opens.
		l.writerNextFileID.Store(1)
		l.writerNextRecordID.Store(1)
		if err := l.persistLocked(); err != nil {
			return nil, err
		}
		return l, nil
	}

	f, err := fs.OpenReadable(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, LedgerLen)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, coreerr.New(coreerr.Corruption, "diskbuf.ledger.read", err)
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	version := binary.LittleEndian.Uint32(buf[4:8])
	if magic != LedgerMagic || version != LedgerVersion {
		return nil, coreerr.New(coreerr.Corruption, "diskbuf.ledger.header", errInvalid("bad ledger magic or version"))
	}
	if crc32.Checksum(buf[:40], castagnoliTable) != binary.LittleEndian.Uint32(buf[40:44]) {
		return nil, coreerr.New(coreerr.Corruption, "diskbuf.ledger.crc", errInvalid("ledger crc32c mismatch"))
	}

	l.writerNextFileID.Store(uint32(binary.LittleEndian.Uint16(buf[8:10])))
	l.writerNextRecordID.Store(binary.LittleEndian.Uint64(buf[12:20]))
	l.readerCurrentFileID.Store(uint32(binary.LittleEndian.Uint16(buf[20:22])))
	l.readerLastReadRecordID.Store(binary.LittleEndian.Uint64(buf[24:32]))
	l.totalBytes.Store(int64(binary.LittleEndian.Uint64(buf[32:40])))
	return l, nil
}

// encode produces the exact §6 layout:
// magic u32 | version u32
// writer_next_file_id u16 | pad u16 | writer_next_record_id u64
// reader_current_file_id u16 | pad u16 | reader_last_read_record_id u64
// total_bytes u64
// crc32c_over_preceding u32 | pad u32
func (l *ledger) encode() []byte {
	buf := make([]byte, LedgerLen)
	binary.LittleEndian.PutUint32(buf[0:4], LedgerMagic)
	binary.LittleEndian.PutUint32(buf[4:8], LedgerVersion)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(l.writerNextFileID.Load()))
	binary.LittleEndian.PutUint64(buf[12:20], l.writerNextRecordID.Load())
	binary.LittleEndian.PutUint16(buf[20:22], uint16(l.readerCurrentFileID.Load()))
	binary.LittleEndian.PutUint64(buf[24:32], l.readerLastReadRecordID.Load())
	binary.LittleEndian.PutUint64(buf[32:40], uint64(l.totalBytes.Load()))
	binary.LittleEndian.PutUint32(buf[40:44], crc32.Checksum(buf[:40], castagnoliTable))
	return buf
}

// persist rewrites the ledger file in full and fsyncs it, per the writer
// protocol's "update ledger writer fields; persist on the flush tick".
func (l *ledger) persist() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.persistLocked()
}

func (l *ledger) persistLocked() error {
	f, err := l.fs.OpenTruncate(l.path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(l.encode()); err != nil {
		return err
	}
	return f.Sync()
}
