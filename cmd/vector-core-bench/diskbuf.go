// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vectordotdev/vector-core/internal/ack"
	"github.com/vectordotdev/vector-core/internal/diskbuf"
)

func newDiskBufCmd() *cobra.Command {
	var (
		records         int
		recordBytes     int
		dir             string
		maxDataFileSize uint64
		maxBufferSize   uint64
		inMemory        bool
	)

	cmd := &cobra.Command{
		Use:   "diskbuf",
		Short: "Drive synthetic records through the C10 disk buffer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiskBufBench(cmd.Context(), diskBufBenchOptions{
				records:         records,
				recordBytes:     recordBytes,
				dir:             dir,
				maxDataFileSize: maxDataFileSize,
				maxBufferSize:   maxBufferSize,
				inMemory:        inMemory,
			})
		},
	}

	cmd.Flags().IntVar(&records, "records", 50_000, "number of synthetic records to write")
	cmd.Flags().IntVar(&recordBytes, "record-bytes", 1024, "size of each record's payload")
	cmd.Flags().StringVar(&dir, "dir", "", "on-disk directory to use (defaults to a temp directory); ignored with --in-memory")
	cmd.Flags().Uint64Var(&maxDataFileSize, "max-data-file-size", diskbuf.DefaultMaxDataFileSize, "per-file size target")
	cmd.Flags().Uint64Var(&maxBufferSize, "max-buffer-size", 0, "total on-disk cap, 0 for a size derived from max-data-file-size")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "use an in-memory filesystem instead of the real disk")

	return cmd
}

type diskBufBenchOptions struct {
	records         int
	recordBytes     int
	dir             string
	maxDataFileSize uint64
	maxBufferSize   uint64
	inMemory        bool
}

func runDiskBufBench(ctx context.Context, opts diskBufBenchOptions) error {
	if opts.maxBufferSize == 0 {
		opts.maxBufferSize = opts.maxDataFileSize*4 + diskbuf.LedgerLen
	}

	dbOpts := []diskbuf.Option{
		diskbuf.WithMaxDataFileSize(opts.maxDataFileSize),
		diskbuf.WithMaxBufferSize(opts.maxBufferSize),
	}

	dir := opts.dir
	if opts.inMemory {
		dbOpts = append(dbOpts, diskbuf.WithFilesystem(diskbuf.NewMemFilesystem()))
		if dir == "" {
			dir = "/bench"
		}
	} else {
		if dir == "" {
			tmp, err := os.MkdirTemp("", "vector-core-bench-diskbuf-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmp)
			dir = tmp
		}
	}

	buf, err := diskbuf.Open(dir, dbOpts...)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer buf.Close()

	payload := make([]byte, opts.recordBytes)

	writeStart := time.Now()
	for i := 0; i < opts.records; i++ {
		if _, err := buf.Write(ctx, payload); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	if err := buf.Checkpoint(ctx); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	writeElapsed := time.Since(writeStart)

	readStart := time.Now()
	var read int
	for read < opts.records {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rec, err := buf.Read(rctx)
		cancel()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		rec.Ack.Update(ack.Delivered)
		read++
	}
	readElapsed := time.Since(readStart)

	wr := newReport("diskbuf write")
	wr.count = opts.records
	wr.elapsed = writeElapsed
	wr.set("bytes written", opts.records*opts.recordBytes)
	wr.print()

	rr := newReport("diskbuf read")
	rr.count = read
	rr.elapsed = readElapsed
	rr.print()
	return nil
}
