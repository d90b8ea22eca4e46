// SPDX-License-Identifier: MIT

// Package mapfile loads whole files into memory via a read-only mapping.
package mapfile

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// File is a read-only, whole-file memory mapping.
type File struct {
	f *os.File
	m mmap.MMap
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if fi.Size() == 0 {
		// mmap of an empty file fails; an empty buffer is equivalent.
		return &File{f: f}, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mapping %s", path)
	}
	return &File{f: f, m: m}, nil
}

// Bytes returns the mapped contents. The slice is valid until Close.
func (f *File) Bytes() []byte { return f.m }

func (f *File) Close() error {
	var err error
	if f.m != nil {
		err = f.m.Unmap()
		f.m = nil
	}
	if cerr := f.f.Close(); err == nil {
		err = cerr
	}
	return err
}
