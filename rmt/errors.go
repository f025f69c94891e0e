// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"errors"
	"fmt"
)

// Taxonomy of failures a caller can distinguish with errors.Is/errors.As.
//
// Configuration errors (bad filename, missing host) and resource
// exhaustion (a full handle table) are reported as one of the sentinels
// below. Transport and protocol errors - a dead pipe, a malformed status
// line, a length mismatch - always collapse to ErrProtocol, since the
// client has no way to tell them apart from the wire once the peer has
// gone quiet. Errors the remote reported about itself come back wrapped
// in a *PeerError so the caller can recover the errno.
var (
	// ErrTooManyOpen is returned by Open when the handle table has no
	// free slot.
	ErrTooManyOpen = errors.New("too many open files")

	// ErrNoSuchFile is returned by Open for a malformed or empty
	// [user@]host:file target.
	ErrNoSuchFile = errors.New("no such file or directory")

	// ErrProtocol marks any framing, desynchronization, or transport
	// I/O failure. A session that returns ErrProtocol is dead: every
	// further operation on the same handle also fails.
	ErrProtocol = errors.New("rmt protocol error")

	// ErrNotSupported is returned by Ioctl for any request other than
	// MTIOCTOP/MTIOCGET, before anything touches the wire.
	ErrNotSupported = errors.New("operation not supported")
)

// PeerError wraps an errno reported by the remote helper in an E or F
// reply. Fatal is true for F, which additionally tears the session
// down. There is no Message field: the wire format's error-message
// line is discarded, not decoded - see discardMessageLine.
type PeerError struct {
	Errno int
	Fatal bool
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("remote: errno %d", e.Errno)
}

// Is lets errors.Is(err, ErrProtocol) recognize a fatal PeerError, since
// a fatal reply tears the connection down the same way a framing error
// does.
func (e *PeerError) Is(target error) bool {
	return e.Fatal && target == ErrProtocol
}
