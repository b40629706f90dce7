// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package diskbuf

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/vectordotdev/vector-core/internal/ack"
	"github.com/vectordotdev/vector-core/internal/coreerr"
	"github.com/vectordotdev/vector-core/internal/obslog"
)

// readState names the original's "buffered reader state machine" (carried
// in from SPEC_FULL.md's SUPPLEMENTED FEATURES) so a partial read caused by
// a crash mid-write can be told apart from a corrupt record at the call
// site, even though both currently resolve to the same EOF handling here.
type readState int

const (
	stateIdle readState = iota
	stateReadingHeader
	stateReadingPayload
	stateYielding
)

type readOutcome int

const (
	outcomeYield readOutcome = iota
	outcomeSkip
	outcomeEOF
	outcomeCorrupt
)

// Record is one payload handed to the consumer, carrying the C11 finalizer
// handle the consumer reports delivery status on.
type Record struct {
	ID      uint64
	Payload []byte
	Ack     ack.Handle
}

// reader implements spec.md §4.6.5. Exactly one reader exists per buffer.
type reader struct {
	dir    string
	cfg    *config
	ledger *ledger

	writerFreed *notifier
	readerWoken *notifier
	liveFileID  func() uint16

	watermark *ack.Watermark

	mu               sync.Mutex
	state            readState
	currentFileID    uint16
	file             File
	lastReadRecordID uint64
	sealedMax        map[uint16]uint64 // file id -> highest record id it contains, once fully scanned
}

func newReader(dir string, cfg *config, l *ledger, writerFreed, readerWoken *notifier, liveFileID func() uint16) *reader {
	lastRead := l.readerLastReadRecordID.Load()
	return &reader{
		dir:              dir,
		cfg:              cfg,
		ledger:           l,
		writerFreed:      writerFreed,
		readerWoken:      readerWoken,
		liveFileID:       liveFileID,
		currentFileID:    uint16(l.readerCurrentFileID.Load()),
		lastReadRecordID: lastRead,
		watermark:        ack.NewWatermark(lastRead + 1),
		sealedMax:        make(map[uint16]uint64),
	}
}

// Next blocks (honoring ctx) until a record is available, a file rolls,
// corruption forces a skip to the next file, or ctx is cancelled.
func (r *reader) Next(ctx context.Context) (Record, error) {
	for {
		r.mu.Lock()
		if r.file == nil {
			if err := r.openCurrentLocked(); err != nil {
				if errors.Is(err, errFileNotYetCreated) {
					wait := r.readerWoken.wait()
					r.mu.Unlock()
					select {
					case <-ctx.Done():
						return Record{}, ctx.Err()
					case <-wait:
					}
					continue
				}
				r.mu.Unlock()
				return Record{}, err
			}
		}

		header, payload, outcome, err := r.readOneLocked()
		switch outcome {
		case outcomeEOF:
			if r.currentFileID == r.liveFileID() {
				wait := r.readerWoken.wait()
				r.mu.Unlock()
				select {
				case <-ctx.Done():
					return Record{}, ctx.Err()
				case <-wait:
				}
				continue
			}
			r.sealAndAdvanceLocked()
			r.mu.Unlock()
			continue

		case outcomeCorrupt:
			r.cfg.sink.Count("diskbuf.corruption", 1, nil)
			obslog.L("diskbuf").Error("record corruption, advancing to next file",
				obslog.ErrorCode(string(coreerr.CodeCorruption)))
			r.sealAndAdvanceLocked()
			r.mu.Unlock()
			continue

		case outcomeSkip:
			r.mu.Unlock()
			continue
		}

		if err != nil {
			r.mu.Unlock()
			return Record{}, err
		}

		id := header.recordID
		rec := Record{
			ID:      id,
			Payload: payload,
			Ack:     ack.New(func(status ack.BatchStatus) { r.finalize(id, status) }),
		}
		r.mu.Unlock()
		return rec, nil
	}
}

func (r *reader) openCurrentLocked() error {
	f, err := r.cfg.fs.OpenReadable(dataFilePath(r.dir, r.currentFileID))
	if err != nil {
		if r.cfg.fs.Exists(dataFilePath(r.dir, r.currentFileID)) {
			return err
		}
		// The file doesn't exist yet; the writer hasn't created it. Report
		// EOF-equivalent by leaving r.file nil and letting the caller's
		// live-file wait path handle it, unless this isn't the live file
		// (corruption: a gap in the expected file-id sequence).
		if r.currentFileID != r.liveFileID() {
			return coreerr.New(coreerr.Corruption, "diskbuf.reader.open", errInvalid("expected data file missing"))
		}
		return errFileNotYetCreated
	}
	r.file = f
	r.state = stateIdle
	return nil
}

var errFileNotYetCreated = errors.New("diskbuf: data file not yet created")

// readOneLocked reads and validates exactly one record from the current
// file, advancing lastReadRecordID on success.
func (r *reader) readOneLocked() (recordHeader, []byte, readOutcome, error) {
	if r.file == nil {
		return recordHeader{}, nil, outcomeEOF, nil
	}

	r.state = stateReadingHeader
	hbuf := make([]byte, RecordHeaderLen)
	if _, err := io.ReadFull(r.file, hbuf); err != nil {
		return recordHeader{}, nil, outcomeEOF, nil
	}
	header := decodeRecordHeader(hbuf)
	if header.magic != RecordMagic {
		return recordHeader{}, nil, outcomeCorrupt, coreerr.New(coreerr.Corruption, "diskbuf.reader.magic", errInvalid("bad record magic"))
	}

	r.state = stateReadingPayload
	total := int(header.payloadLen) + paddingLen(header.payloadLen)
	pbuf := make([]byte, total)
	if _, err := io.ReadFull(r.file, pbuf); err != nil {
		return recordHeader{}, nil, outcomeEOF, nil
	}
	payload := pbuf[:header.payloadLen]
	if err := header.verifyPayload(payload); err != nil {
		return recordHeader{}, nil, outcomeCorrupt, err
	}

	r.state = stateYielding
	if header.recordID <= r.lastReadRecordID {
		return header, nil, outcomeSkip, nil // duplicate: idempotent resumption
	}
	if header.recordID != r.lastReadRecordID+1 {
		return recordHeader{}, nil, outcomeCorrupt, coreerr.New(coreerr.Corruption, "diskbuf.reader.gap", errInvalid("record id gap"))
	}
	r.lastReadRecordID = header.recordID
	r.ledger.readerLastReadRecordID.Store(header.recordID)

	if header.flags&RecordFlagCheckpoint != 0 {
		return header, nil, outcomeSkip, nil
	}
	return header, payload, outcomeYield, nil
}

// sealAndAdvanceLocked records the current file's highest record id (now
// immutable, since the reader just finished scanning it) and moves the
// in-memory read cursor to the next file id. This never deletes a file;
// deletion only happens once every record it holds has been acked, via
// finalize/trySealAndDelete.
func (r *reader) sealAndAdvanceLocked() {
	r.sealedMax[r.currentFileID] = r.lastReadRecordID
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
	r.currentFileID++
	r.state = stateIdle
}

func (r *reader) finalize(id uint64, status ack.BatchStatus) {
	switch status {
	case ack.Errored:
		return // left pending; the event will be redelivered
	case ack.Rejected:
		r.cfg.sink.Count("diskbuf.record_rejected", 1, nil)
	}
	if r.watermark.Ack(id) {
		r.trySealAndDelete()
	}
}

// trySealAndDelete deletes every file, in order starting from the ledger's
// reader_current_file_id, whose last record has been fully acked.
func (r *reader) trySealAndDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := uint16(r.ledger.readerCurrentFileID.Load())
		maxID, known := r.sealedMax[id]
		if !known {
			return
		}
		if r.watermark.LastContiguous() < maxID {
			return
		}
		path := dataFilePath(r.dir, id)
		size, sizeErr := r.cfg.fs.Size(path)
		if err := r.cfg.fs.Delete(path); err != nil {
			obslog.L("diskbuf").Error("failed to delete fully-acked data file")
			return
		}
		delete(r.sealedMax, id)
		r.ledger.readerCurrentFileID.Store(uint32(id) + 1)
		if sizeErr == nil {
			r.ledger.totalBytes.Sub(size)
		}
		if err := r.ledger.persist(); err != nil {
			obslog.L("diskbuf").Error("failed to persist ledger after file deletion")
		}
		r.writerFreed.broadcast()
	}
}

func (r *reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
