// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package diskbuf

import (
	"context"
	"io"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vectordotdev/vector-core/internal/obslog"
)

var dataFileNameRe = regexp.MustCompile(`^buffer-data-(\d{5})\.dat$`)

// openGroup deduplicates concurrent Open calls against the same directory
// within this process, so two callers racing to open the same buffer run
// crash recovery exactly once rather than stepping on each other's ledger
// rewrite.
var openGroup singleflight.Group

// Buffer is the top-level C10 disk buffer (spec.md §4.6): a directory-backed,
// crash-safe FIFO with a single writer and a single reader, handed off
// through the C11 ack fabric.
type Buffer struct {
	dir    string
	cfg    *config
	ledger *ledger
	writer *writer
	reader *reader

	cancel context.CancelFunc
	group  *errgroup.Group
	closed sync.Once
	err    error
}

// Open opens, or creates, a buffer rooted at dataDir, running crash recovery
// first if a ledger is already present.
func Open(dataDir string, opts ...Option) (*Buffer, error) {
	v, err, _ := openGroup.Do(dataDir, func() (interface{}, error) {
		return open(dataDir, opts...)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Buffer), nil
}

func open(dataDir string, opts ...Option) (*Buffer, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	if c.fs == nil {
		c.fs = NewOSFilesystem()
	}

	limits, err := resolveLimits(c.maxBufferSize, c.maxDataFileSize, c.maxRecordSize, c.writeBufferSize)
	if err != nil {
		return nil, err
	}
	c.maxBufferSize = limits.MaxBufferSize
	c.maxDataFileSize = limits.MaxDataFileSize
	c.maxRecordSize = limits.MaxRecordSize
	c.writeBufferSize = limits.WriteBufferSize

	if err := c.fs.MkdirAll(dataDir); err != nil {
		return nil, err
	}

	l, err := openLedger(c.fs, dataDir)
	if err != nil {
		return nil, err
	}

	if err := recoverLive(dataDir, &c, l); err != nil {
		return nil, err
	}
	if err := recomputeTotalBytes(c.fs, dataDir, l); err != nil {
		return nil, err
	}
	if err := l.persist(); err != nil {
		return nil, err
	}

	writerFreed := newNotifier()
	readerWoken := newNotifier()

	existingIDs := func() map[uint16]bool {
		ids, _ := listDataFileIDs(c.fs, dataDir)
		set := make(map[uint16]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		return set
	}

	w := newWriter(dataDir, &c, l, writerFreed, readerWoken, existingIDs)
	if err := w.open(); err != nil {
		return nil, err
	}
	r := newReader(dataDir, &c, l, writerFreed, readerWoken, w.liveFileID)

	b := &Buffer{dir: dataDir, cfg: &c, ledger: l, writer: w, reader: r}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.flushLoop(gctx) })
	b.cancel = cancel
	b.group = g

	return b, nil
}

// Write appends payload to the buffer, blocking (honoring ctx) under
// backpressure. It returns the assigned record id.
func (b *Buffer) Write(ctx context.Context, payload []byte) (uint64, error) {
	return b.writer.Write(ctx, payload)
}

// Checkpoint writes a zero-payload marker record and flushes immediately.
func (b *Buffer) Checkpoint(ctx context.Context) (uint64, error) {
	return b.writer.Checkpoint(ctx)
}

// Read blocks (honoring ctx) until the next record is available.
func (b *Buffer) Read(ctx context.Context) (Record, error) {
	return b.reader.Next(ctx)
}

// Close stops the background flush loop and closes the writer and reader.
// Safe to call more than once.
func (b *Buffer) Close() error {
	b.closed.Do(func() {
		b.cancel()
		_ = b.group.Wait()
		if err := b.writer.Close(); err != nil {
			b.err = err
		}
		if err := b.reader.Close(); err != nil && b.err == nil {
			b.err = err
		}
	})
	return b.err
}

// flushLoop periodically flushes the writer's in-memory buffer and persists
// the ledger, per spec.md §4.6.4's flush-interval behavior. It is the
// goroutine errgroup.Group coordinates against Buffer's lifetime.
func (b *Buffer) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.writer.Flush(); err != nil {
				obslog.L("diskbuf").Error("periodic flush failed", zap.Error(err))
			}
		}
	}
}

// listDataFileIDs returns every data file id present in dir, parsed from the
// buffer-data-%05d.dat naming convention, ascending.
func listDataFileIDs(fs Filesystem, dir string) ([]uint16, error) {
	names, err := fs.List(dir)
	if err != nil {
		return nil, err
	}
	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		m := dataFileNameRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		ids = append(ids, uint16(n))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// recoverLive implements spec.md §4.6.6 crash recovery: the only file that
// can hold a torn write is the one the writer was appending to when the
// process died, identified by the ledger's writer_next_file_id - 1. It is
// scanned from the start with the same header/CRC/ordering checks the
// reader uses; the file is truncated to the end of the last fully valid
// record, and writer_next_record_id is re-derived from it. Older, already
// rolled files are never touched: the writer only ever appends to the live
// file, so a prior file being present at all means it was already sealed.
func recoverLive(dir string, c *config, l *ledger) error {
	liveID := uint16(l.writerNextFileID.Load() - 1)
	path := dataFilePath(dir, liveID)
	if !c.fs.Exists(path) {
		return nil
	}

	f, err := c.fs.OpenReadable(path)
	if err != nil {
		return err
	}

	var validBytes int64
	var lastID uint64
	sawAny := false
	for {
		hbuf := make([]byte, RecordHeaderLen)
		if _, err := io.ReadFull(f, hbuf); err != nil {
			break
		}
		header := decodeRecordHeader(hbuf)
		if header.magic != RecordMagic {
			break
		}
		total := int(header.payloadLen) + paddingLen(header.payloadLen)
		pbuf := make([]byte, total)
		if _, err := io.ReadFull(f, pbuf); err != nil {
			break
		}
		if header.verifyPayload(pbuf[:header.payloadLen]) != nil {
			break
		}
		if sawAny && header.recordID != lastID+1 {
			break
		}
		lastID = header.recordID
		sawAny = true
		validBytes += int64(RecordHeaderLen + total)
	}
	_ = f.Close()

	wf, err := c.fs.OpenAppend(path)
	if err != nil {
		return err
	}
	defer wf.Close()
	if err := wf.Truncate(validBytes); err != nil {
		return err
	}

	if sawAny {
		l.writerNextRecordID.Store(lastID + 1)
		obslog.L("diskbuf").Info("crash recovery truncated live data file",
			zap.Uint16("file_id", liveID), zap.Uint64("last_valid_record_id", lastID))
	}
	return nil
}

// recomputeTotalBytes re-derives the ledger's total_bytes from what's
// actually on disk after recovery, rather than trusting whatever was last
// persisted before the crash.
func recomputeTotalBytes(fs Filesystem, dir string, l *ledger) error {
	ids, err := listDataFileIDs(fs, dir)
	if err != nil {
		return err
	}
	sum := int64(LedgerLen)
	for _, id := range ids {
		size, err := fs.Size(dataFilePath(dir, id))
		if err != nil {
			continue
		}
		sum += size
	}
	l.totalBytes.Store(sum)
	return nil
}
