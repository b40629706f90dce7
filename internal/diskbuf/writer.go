// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package diskbuf

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/vectordotdev/vector-core/internal/coreerr"
)

func dataFileName(id uint16) string {
	return fmt.Sprintf("buffer-data-%05d.dat", id)
}

func dataFilePath(dir string, id uint16) string {
	return filepath.Join(dir, dataFileName(id))
}

// writer implements spec.md §4.6.4. Only one writer exists per buffer; its
// state (current file, in-memory write buffer, next_record_id) is owned
// entirely by the goroutine calling Write/Flush, guarded by mu only because
// Flush is also invoked from the background flush-interval ticker goroutine
// started in buffer.go's Run.
type writer struct {
	dir    string
	cfg    *config
	ledger *ledger

	writerFreed *notifier // broadcast when the reader deletes a file
	readerWoken *notifier // broadcast when the writer flushes
	existingIDs func() map[uint16]bool

	mu                 sync.Mutex
	currentFileID      uint16
	file               File
	pending            []byte // unflushed bytes for the current file
	bytesInCurrentFile uint64
}

func newWriter(dir string, cfg *config, l *ledger, writerFreed, readerWoken *notifier, existingIDs func() map[uint16]bool) *writer {
	// writerNextFileID is always currentFileID+1 by the invariant openLedger
	// and the roll path in Write both maintain, including across the
	// uint16 wraparound at file id 65535.
	return &writer{
		dir:           dir,
		cfg:           cfg,
		ledger:        l,
		writerFreed:   writerFreed,
		readerWoken:   readerWoken,
		existingIDs:   existingIDs,
		currentFileID: uint16(l.writerNextFileID.Load() - 1),
	}
}

// liveFileID reports the file id the writer is currently appending to, for
// the reader to compare against when deciding whether EOF means "wait" or
// "advance".
func (w *writer) liveFileID() uint16 { return uint16(w.ledger.writerNextFileID.Load() - 1) }

// open opens (or re-opens after a crash) the current writer file for append.
func (w *writer) open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.openLocked()
}

func (w *writer) openLocked() error {
	f, err := w.cfg.fs.OpenAppend(dataFilePath(w.dir, w.currentFileID))
	if err != nil {
		return err
	}
	w.file = f
	return nil
}

// Write frames payload, rolling files and applying backpressure as needed,
// then appends it to the in-memory write buffer. It blocks (honoring ctx)
// only while backpressured.
func (w *writer) Write(ctx context.Context, payload []byte) (uint64, error) {
	framed := framedLen(len(payload))
	if uint64(framed) > w.cfg.maxRecordSize {
		w.cfg.sink.Count("diskbuf.record_rejected_too_large", 1, nil)
		return 0, coreerr.New(coreerr.SerializationOverflow, "diskbuf.write", errInvalid("record exceeds max_record_size"))
	}

	w.mu.Lock()
	for w.bytesInCurrentFile+uint64(framed) > w.cfg.maxDataFileSize {
		// Rolling: flush and close the current file, then try to open the
		// next one.
		if err := w.flushLocked(); err != nil {
			w.mu.Unlock()
			return 0, err
		}
		if w.file != nil {
			_ = w.file.Close()
			w.file = nil
		}
		nextID := w.currentFileID + 1 // wraps mod 2^16 via uint16 overflow
		if w.existingIDs()[nextID] {
			// The reader hasn't deleted that file id yet; backpressure.
			wait := w.writerFreed.wait()
			w.mu.Unlock()
			w.cfg.sink.Count("diskbuf.writer_backpressure", 1, nil)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-wait:
			}
			w.mu.Lock()
			continue
		}
		w.currentFileID = nextID
		w.bytesInCurrentFile = 0
		if err := w.openLocked(); err != nil {
			w.mu.Unlock()
			return 0, err
		}
		w.ledger.writerNextFileID.Store(uint32(w.currentFileID) + 1)
		// Persist the roll itself, not just record data: crash recovery
		// identifies the live file as writer_next_file_id - 1 straight off
		// disk, so that pointer must be durable at roll time, independent
		// of the flush-interval cadence that governs record durability.
		if err := w.ledger.persist(); err != nil {
			w.mu.Unlock()
			return 0, err
		}
	}

	if uint64(w.ledger.totalBytes.Load())+uint64(framed) > w.cfg.maxBufferSize {
		wait := w.writerFreed.wait()
		w.mu.Unlock()
		w.cfg.sink.Count("diskbuf.writer_backpressure", 1, nil)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-wait:
		}
		return w.Write(ctx, payload)
	}

	id := w.ledger.writerNextRecordID.Load()
	buf := encodeRecord(id, payload, 0)
	w.pending = append(w.pending, buf...)
	w.bytesInCurrentFile += uint64(len(buf))
	w.ledger.writerNextRecordID.Add(1)
	w.ledger.totalBytes.Add(int64(len(buf)))

	flushNow := len(w.pending) >= w.cfg.writeBufferSize
	if flushNow {
		if err := w.flushLocked(); err != nil {
			w.mu.Unlock()
			return 0, err
		}
	}
	w.mu.Unlock()
	return id, nil
}

// Checkpoint writes a zero-payload, flag-marked record, used to close a
// file out at a clean record boundary without real data (SPEC_FULL.md
// SUPPLEMENTED FEATURES: the original's checkpoint-record flag bit).
func (w *writer) Checkpoint(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	id := w.ledger.writerNextRecordID.Load()
	buf := encodeRecord(id, nil, RecordFlagCheckpoint)
	w.pending = append(w.pending, buf...)
	w.bytesInCurrentFile += uint64(len(buf))
	w.ledger.writerNextRecordID.Add(1)
	w.ledger.totalBytes.Add(int64(len(buf)))
	err := w.flushLocked()
	w.mu.Unlock()
	return id, err
}

// Flush writes any pending bytes to the OS and fsyncs, then persists the
// ledger and wakes any suspended reader. Called by Write when the
// in-memory buffer fills, and periodically by the flush-interval ticker.
func (w *writer) Flush() error {
	w.mu.Lock()
	err := w.flushLocked()
	w.mu.Unlock()
	if err != nil {
		return err
	}
	if err := w.ledger.persist(); err != nil {
		return err
	}
	w.readerWoken.broadcast()
	return nil
}

func (w *writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	if w.file == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}
	if _, err := w.file.Write(w.pending); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.pending = w.pending[:0]
	return nil
}

func (w *writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
