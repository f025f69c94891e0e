// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"fmt"

	"github.com/google/uuid"
)

// Client is a builder for rmt sessions, bundling a Config with the
// handle table its sessions are registered in. The zero Client is not
// usable; use New.
type Client struct {
	table *Table
	cfg   Config

	// id correlates this Client's log lines across a session that may
	// span several dialed transports (pipe, ssh, vsock), since none of
	// them share a connection identifier of their own.
	id string
}

// New returns a Client with its own handle table and a default,
// pipe-transport Config.
func New() *Client {
	return &Client{table: NewTable(), cfg: Config{Transport: "pipe"}, id: uuid.NewString()}
}

// NewFromConfig returns a Client with its own handle table, configured
// from cfg directly rather than through the With* builder methods.
func NewFromConfig(cfg Config) *Client {
	if cfg.Transport == "" {
		cfg.Transport = "pipe"
	}
	return &Client{table: NewTable(), cfg: cfg, id: uuid.NewString()}
}

// ID returns the Client's session correlation id, suitable for
// tagging log lines from callers that manage several Clients at once.
func (c *Client) ID() string {
	return c.id
}

// WithRemoteShell sets the transport binary the "pipe" transport
// forks.
func (c *Client) WithRemoteShell(path string) *Client {
	c.cfg.RemoteShell = path
	return c
}

// WithRemoteCommand sets the rmt helper path invoked on the remote
// host, overriding DefaultRemoteCommand.
func (c *Client) WithRemoteCommand(path string) *Client {
	c.cfg.RemoteCommand = path
	return c
}

// WithTransport selects "pipe" (default), "ssh", or "vsock".
func (c *Client) WithTransport(name string) *Client {
	c.cfg.Transport = name
	return c
}

// WithDiscover enables best-effort mDNS/DNS-SD host resolution.
func (c *Client) WithDiscover(enabled bool) *Client {
	c.cfg.Discover = enabled
	return c
}

// WithBias sets the offset added to every handle this Client returns.
func (c *Client) WithBias(bias int) *Client {
	c.cfg.Bias = bias
	return c
}

// Config returns a copy of the Client's current configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Open resolves target as "[user@]host:file", dials the configured
// transport, and sends the O command with oflags. It returns a biased
// handle on success.
func (c *Client) Open(target string, oflags int) (int, error) {
	h, err := c.table.Allocate()
	if err != nil {
		return -1, err
	}

	user, host, file, err := parseTarget(target)
	if err != nil {
		c.table.Release(h)
		return -1, err
	}
	if c.cfg.Discover {
		resolved, err := ResolveHost(host)
		if err != nil {
			c.table.Release(h)
			return -1, err
		}
		host = resolved
	}

	transport := c.cfg.Transport
	if transport == "" {
		transport = "pipe"
	}
	dial, ok := transports[transport]
	if !ok {
		c.table.Release(h)
		return -1, fmt.Errorf("%w: unknown transport %q", ErrProtocol, transport)
	}

	r, w, err := dial(host, user, c.cfg)
	if err != nil {
		c.table.Release(h)
		return -1, err
	}
	c.table.install(h, r, w)

	if err := SendCommand(w, EncodeOpen(file, oflags)); err != nil {
		return -1, shutdown(c.table, h, err)
	}
	status, err := ReadStatus(r)
	if err != nil {
		return -1, shutdown(c.table, h, err)
	}
	if status.Kind == StatusError {
		return -1, shutdown(c.table, h, &PeerError{Errno: status.Errno, Fatal: status.Fatal})
	}

	return h + c.cfg.Bias, nil
}

func (c *Client) unbias(handle int) int {
	return handle - c.cfg.Bias
}

// Close sends the C command and releases handle, whatever the reply.
func (c *Client) Close(handle int) (int, error) {
	return closeOp(c.table, c.unbias(handle))
}

// Read requests up to len(buf) bytes and reads them into buf.
func (c *Client) Read(handle int, buf []byte) (int, error) {
	return readOp(c.table, c.unbias(handle), buf)
}

// Write sends buf and returns the byte count the remote acknowledged.
func (c *Client) Write(handle int, buf []byte) (int, error) {
	return writeOp(c.table, c.unbias(handle), buf)
}

// Seek sends the L command and returns the resulting offset.
func (c *Client) Seek(handle int, offset int64, whence Whence) (int64, error) {
	return seekOp(c.table, c.unbias(handle), offset, whence)
}

// IoctlRequest identifies which ioctl Ioctl is asked to perform, mirroring
// the "operation" argument rmt_ioctl switches on.
type IoctlRequest int

const (
	// MTIOCTOP requests a raw tape operation: arg must be a *MtOp.
	MTIOCTOP IoctlRequest = iota + 1
	// MTIOCGET requests the tape status structure: arg must be a *MtGet.
	MTIOCGET
)

// Ioctl dispatches a single raw tape ioctl, the way rmt_ioctl's switch on
// its operation argument does: MTIOCTOP and MTIOCGET are the only two
// requests handled, and arg must be the matching pointer type (*MtOp or
// *MtGet respectively). Any other request is rejected with
// ErrNotSupported without sending anything to the remote.
func (c *Client) Ioctl(handle int, request IoctlRequest, arg any) error {
	switch request {
	case MTIOCTOP:
		mop, ok := arg.(*MtOp)
		if !ok {
			return fmt.Errorf("%w: MTIOCTOP needs a *MtOp argument, got %T", ErrNotSupported, arg)
		}
		count, err := ioctlOp(c.table, c.unbias(handle), mop.Op, mop.Count)
		if err != nil {
			return err
		}
		mop.Count = count
		return nil
	case MTIOCGET:
		out, ok := arg.(*MtGet)
		if !ok {
			return fmt.Errorf("%w: MTIOCGET needs a *MtGet argument, got %T", ErrNotSupported, arg)
		}
		return ioctlGetStatusOp(c.table, c.unbias(handle), out)
	default:
		return ErrNotSupported
	}
}

// IoctlOp issues an MTIOCTOP-equivalent tape operation (rewind, skip
// file marks, and similar) and returns the remote's reported count.
func (c *Client) IoctlOp(handle int, op int32, count int64) (int64, error) {
	mop := &MtOp{Op: op, Count: count}
	if err := c.Ioctl(handle, MTIOCTOP, mop); err != nil {
		return -1, err
	}
	return mop.Count, nil
}

// IoctlGetStatus issues the MTIOCGET-equivalent status query and fills
// out with the decoded reply.
func (c *Client) IoctlGetStatus(handle int, out *MtGet) error {
	return c.Ioctl(handle, MTIOCGET, out)
}

var defaultClient = New()

// Open, Close, Read, Write, Seek, IoctlOp, IoctlGetStatus, and Ioctl
// mirror the Client methods of the same name against a package-level
// default Client, for callers that only ever need one session
// namespace.
func Open(target string, oflags int) (int, error)              { return defaultClient.Open(target, oflags) }
func Close(handle int) (int, error)                             { return defaultClient.Close(handle) }
func Read(handle int, buf []byte) (int, error)                  { return defaultClient.Read(handle, buf) }
func Write(handle int, buf []byte) (int, error)                 { return defaultClient.Write(handle, buf) }
func Seek(handle int, offset int64, whence Whence) (int64, error) {
	return defaultClient.Seek(handle, offset, whence)
}
func IoctlOp(handle int, op int32, count int64) (int64, error) {
	return defaultClient.IoctlOp(handle, op, count)
}
func IoctlGetStatus(handle int, out *MtGet) error {
	return defaultClient.IoctlGetStatus(handle, out)
}
func Ioctl(handle int, request IoctlRequest, arg any) error {
	return defaultClient.Ioctl(handle, request, arg)
}
