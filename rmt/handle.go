// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"errors"
	"io"
	"sync"
)

// MaxHandles is the fixed capacity of a Table: at most this many
// sessions may be open at once against one table.
const MaxHandles = 4

// endpoint is one session's half-open pipe pair. Both fields are either
// both nil (free slot) or both non-nil (in use) - see Table's invariant.
type endpoint struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (e endpoint) open() bool {
	return e.r != nil || e.w != nil
}

// Table is a fixed-capacity registry of active rmt sessions, addressed
// by small integer handles. The zero Table is not usable; use NewTable.
//
// A Table is safe for concurrent Allocate/Release/endpoints calls on
// different handles. It does not serialize commands issued against one
// handle - that remains the caller's responsibility (see package doc).
type Table struct {
	mu       sync.Mutex
	slots    [MaxHandles]endpoint
	reserved [MaxHandles]bool
}

// NewTable returns an empty Table. Most callers use the package-level
// default table via Open/Close/etc.; NewTable exists for tests and for
// callers that want an isolated session namespace.
func NewTable() *Table {
	return &Table{}
}

// Allocate reserves the first free slot, in ascending order, so handle
// reuse is deterministic. The slot is marked reserved before Allocate
// returns, so a second Allocate call made before the matching install
// (or Release) cannot also claim it. It returns ErrTooManyOpen if every
// slot is in use or reserved.
func (t *Table) Allocate() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for h, e := range t.slots {
		if !t.reserved[h] && !e.open() {
			t.reserved[h] = true
			return h, nil
		}
	}
	return -1, ErrTooManyOpen
}

// install attaches r and w to handle h's slot and clears its
// reservation. h must have come from a prior Allocate that has not yet
// been released.
func (t *Table) install(h int, r io.ReadCloser, w io.WriteCloser) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[h] = endpoint{r: r, w: w}
	t.reserved[h] = false
}

// endpoints returns the read and write sides of handle h, or
// ErrProtocol if h is out of range or already released.
func (t *Table) endpoints(h int) (io.ReadCloser, io.WriteCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h < 0 || h >= MaxHandles || !t.slots[h].open() {
		return nil, nil, ErrProtocol
	}
	return t.slots[h].r, t.slots[h].w, nil
}

// Release closes both endpoints of h, if still open, frees the slot,
// and clears its reservation. It tolerates being called on an
// already-released, merely-reserved, or out-of-range handle, so a
// caller that allocated a handle but failed before install can still
// release it.
func (t *Table) Release(h int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h < 0 || h >= MaxHandles {
		return nil
	}
	e := t.slots[h]
	t.slots[h] = endpoint{}
	t.reserved[h] = false

	var rerr, werr error
	if e.r != nil {
		rerr = e.r.Close()
	}
	if e.w != nil {
		werr = e.w.Close()
	}
	return errors.Join(rerr, werr)
}
