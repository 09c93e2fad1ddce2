// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mappedstore wraps a memory-mapped file shared across
// processes (spec.md §4.7). LVC, ChartStore, and TapeReader all open
// their backing file through a Store rather than plain read/write
// calls. The teacher never memory-maps anything (its time-series cache
// lives entirely in heap-allocated ring buffers); this package is
// grounded instead on saferwall-pe's file.go, which opens a *os.File
// and hands it to mmap.Map for read-only structural parsing.
package mappedstore

import (
	"errors"
	"fmt"
	"os"
	"time"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// ErrInvalid describes an invalid or closed store. No Store method
// returns it: Slice reports an out-of-range window with its own error,
// and no method checks whether the store has been closed.
var ErrInvalid = errors.New("mappedstore: invalid or closed store")

// ErrTimedOut is returned by LockTimeout when the wait bound elapses
// before the lock is acquired (spec.md §4.8).
var ErrTimedOut = errors.New("mappedstore: semaphore wait timed out")

// Mode selects how the backing file is opened.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Store is a memory-mapped view of a file, open either read-only
// (LVC/ChartStore/TapeReader) or read-write (the tape writer, LVC
// publisher). Cross-process coordination is via an OS advisory lock
// (unix.Flock) per spec.md §4.8; the tape itself relies instead on its
// append-only discipline and never takes this lock.
type Store struct {
	f    *os.File
	data mmap.MMap
	mode Mode
}

// Open memory-maps path in the given mode. A ReadWrite store is created
// with size bytes if it does not already exist.
func Open(path string, mode Mode, size int64) (*Store, error) {
	flag := os.O_RDONLY
	mmapMode := mmap.RDONLY
	if mode == ReadWrite {
		flag = os.O_RDWR | os.O_CREATE
		mmapMode = mmap.RDWR
	}

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("mappedstore: open %s: %w", path, err)
	}

	if mode == ReadWrite {
		if st, err := f.Stat(); err == nil && st.Size() < size {
			if err := f.Truncate(size); err != nil {
				f.Close()
				return nil, fmt.Errorf("mappedstore: truncate %s: %w", path, err)
			}
		}
	}

	data, err := mmap.Map(f, mmapMode, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mappedstore: mmap %s: %w", path, err)
	}

	return &Store{f: f, data: data, mode: mode}, nil
}

// Bytes returns the mapped region in full. The returned slice aliases
// the mapping; writes to it (ReadWrite mode) are visible to other
// mappers of the same file once Flush or the OS decides to write back.
func (s *Store) Bytes() []byte { return s.data }

// Len returns the mapped region's length.
func (s *Store) Len() int { return len(s.data) }

// Stat returns the backing file's current os.FileInfo, letting callers
// (TapeReader) detect growth an external writer has appended past the
// current mapping.
func (s *Store) Stat() (os.FileInfo, error) { return s.f.Stat() }

// Slice returns a sliding window [off, off+size) onto the mapping,
// spec.md §4.7's Map(offset, size) operation.
func (s *Store) Slice(off, size int) ([]byte, error) {
	if off < 0 || size < 0 || off+size > len(s.data) {
		return nil, fmt.Errorf("mappedstore: slice [%d:%d) out of range (len %d)", off, off+size, len(s.data))
	}
	return s.data[off : off+size], nil
}

// Flush synchronizes the mapping's dirty pages back to the file
// (ReadWrite mode only).
func (s *Store) Flush() error {
	if s.mode != ReadWrite {
		return nil
	}
	return s.data.Flush()
}

// Close unmaps and closes the underlying file.
func (s *Store) Close() error {
	var errs []error
	if err := s.data.Unmap(); err != nil {
		errs = append(errs, err)
	}
	if err := s.f.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("mappedstore: close: %v", errs)
	}
	return nil
}

// Lock acquires the file's whole-file advisory lock, the spec's "OS
// semaphore" (§4.8) used to serialize LVC readers against the writer
// while a record slot is copied out. Go's standard library has no
// portable file-range lock primitive, so this is the one place this
// module reaches past stdlib into golang.org/x/sys/unix directly.
func (s *Store) Lock(exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	return unix.Flock(int(s.f.Fd()), how)
}

// Unlock releases a lock taken with Lock.
func (s *Store) Unlock() error {
	return unix.Flock(int(s.f.Fd()), unix.LOCK_UN)
}

// LockTimeout acquires the lock, polling with a short backoff, and
// returns ErrTimedOut if wait elapses first. A wait of 0 blocks
// indefinitely (spec.md §4.8's "default wait: infinite, overridable").
func (s *Store) LockTimeout(exclusive bool, wait time.Duration) error {
	if wait <= 0 {
		return s.Lock(exclusive)
	}

	how := unix.LOCK_SH | unix.LOCK_NB
	if exclusive {
		how = unix.LOCK_EX | unix.LOCK_NB
	}

	deadline := time.Now().Add(wait)
	for {
		err := unix.Flock(int(s.f.Fd()), how)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimedOut
		}
		time.Sleep(time.Millisecond)
	}
}
