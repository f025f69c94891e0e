// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rmt implements a client for the remote magnetic-tape (rmt)
// protocol: a line-oriented request/response protocol historically used
// by dump, restore, tar and cpio to drive a tape device on another host.
//
// A caller opens a remote-tape session with Open, which forks a
// remote-shell child (or dials an alternate transport), speaks the rmt
// wire protocol on its stdio, and hands back a small integer handle. The
// rest of the operations (Read, Write, Seek, Close, IoctlOp,
// IoctlGetStatus) forward one command per call and block for the reply.
//
// The client is single-threaded per handle: the protocol carries no
// request identifiers, so a correct caller serializes all commands on a
// given handle itself. The handle table is safe to allocate/release from
// multiple handles concurrently, but two goroutines driving the same
// handle at once is a usage error with undefined behavior.
package rmt
