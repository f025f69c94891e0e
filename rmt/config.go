// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

// Config aggregates the configuration knobs a caller (typically an
// archive engine's adapter, see package adapter) supplies when opening
// a remote-tape connection.
type Config struct {
	// RemoteShell is the absolute path of the transport binary (e.g.
	// a remote-login client) used by the default "pipe" transport.
	// If empty, Open fails with ErrProtocol - there is no
	// build-time default, unlike RemoteCommand.
	RemoteShell string

	// RemoteCommand is the absolute path of the rmt helper to invoke
	// on the remote host. Defaults to DefaultRemoteCommand when
	// empty.
	RemoteCommand string

	// ForceLocal, when true, tells a caller (the adapter) to never
	// interpret a filename as [user@]host:file and never construct
	// a Client for it. The rmt package itself does not look at this
	// field - see the design notes' open question on force-local.
	ForceLocal bool

	// Transport selects the connection launcher: "pipe" (default,
	// fork the RemoteShell binary), "ssh" (build tag rmtssh), or
	// "vsock" (build tag rmtvsock).
	Transport string

	// Discover enables best-effort mDNS/DNS-SD resolution of hosts
	// ending in ".local" before dialing, via the ds package.
	Discover bool

	// Bias is added to every handle Open returns, so callers can
	// distinguish a remote handle from a locally-opened file
	// descriptor by numeric range.
	Bias int

	// BlockFactor is carried opaquely for the caller's own
	// block-factored buffering; the rmt package never reads it.
	BlockFactor int
}

// DefaultRemoteCommand is the remote helper path used when a Config
// leaves RemoteCommand empty.
const DefaultRemoteCommand = "/usr/sbin/rmt"
