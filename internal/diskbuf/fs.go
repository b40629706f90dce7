// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package diskbuf

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// File is what the writer/reader need from an open data or ledger file:
// read-write access plus an explicit durability point.
type File interface {
	io.ReadWriteCloser
	Sync() error
	Truncate(size int64) error
}

// Filesystem is the §9 "Filesystem abstraction": open_writable/open_readable/
// delete/list/rename, each fallible with normalized errors. Production uses
// afero.NewOsFs(); tests inject afero.NewMemMapFs() — this is the component
// SPEC_FULL.md's DOMAIN STACK table names as github.com/spf13/afero's home.
type Filesystem interface {
	// OpenAppend opens path for append, creating it (and its parent
	// directory) if it does not exist.
	OpenAppend(path string) (File, error)
	// OpenTruncate opens path for a full overwrite, creating it if it does
	// not exist. Used for ledger rewrites.
	OpenTruncate(path string) (File, error)
	OpenReadable(path string) (File, error)
	Delete(path string) error
	List(dir string) ([]string, error)
	Rename(src, dst string) error
	MkdirAll(dir string) error
	Exists(path string) bool
	Size(path string) (int64, error)
}

type aferoFS struct {
	fs afero.Fs
}

// NewOSFilesystem returns the production Filesystem, backed by the real OS.
func NewOSFilesystem() Filesystem { return &aferoFS{fs: afero.NewOsFs()} }

// NewMemFilesystem returns an in-memory Filesystem for tests, matching the
// original's "tests use an in-memory implementation" design note.
func NewMemFilesystem() Filesystem { return &aferoFS{fs: afero.NewMemMapFs()} }

func (a *aferoFS) OpenAppend(path string) (File, error) {
	if err := a.MkdirAll(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := a.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (a *aferoFS) OpenTruncate(path string) (File, error) {
	if err := a.MkdirAll(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := a.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (a *aferoFS) OpenReadable(path string) (File, error) {
	return a.fs.OpenFile(path, os.O_RDONLY, 0o644)
}

func (a *aferoFS) Delete(path string) error {
	err := a.fs.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (a *aferoFS) List(dir string) ([]string, error) {
	entries, err := afero.ReadDir(a.fs, dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (a *aferoFS) Rename(src, dst string) error { return a.fs.Rename(src, dst) }

func (a *aferoFS) MkdirAll(dir string) error { return a.fs.MkdirAll(dir, 0o755) }

func (a *aferoFS) Exists(path string) bool {
	ok, err := afero.Exists(a.fs, path)
	return err == nil && ok
}

func (a *aferoFS) Size(path string) (int64, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
