// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build rmtvsock

package rmt

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mdlayher/vsock"
)

func init() {
	registerTransport("vsock", dialVsock)
}

// vsockDefaultPort is used when host carries no port of its own.
const vsockDefaultPort = 17010

// dialVsock reaches a guest or host over AF_VSOCK instead of forking a
// shell or dialing ssh - useful when the peer is a virtual machine
// reachable only through its hypervisor's vsock device. host is the
// numeric context ID, optionally followed by ":port".
func dialVsock(host, _ string, cfg Config) (io.ReadCloser, io.WriteCloser, error) {
	cid, port, err := parseVsockHost(host)
	if err != nil {
		return nil, nil, err
	}

	conn, err := vsock.Dial(cid, port, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dialing vsock cid %d port %d: %v", ErrProtocol, cid, port, err)
	}
	// A vsock connection is one full-duplex fd; the handle table closes
	// the read and write endpoint separately, so only one of the two
	// wrappers is allowed to actually close it.
	return conn, vsockWriteCloser{conn}, nil
}

type vsockWriteCloser struct {
	io.ReadWriteCloser
}

func (vsockWriteCloser) Close() error { return nil }

func parseVsockHost(host string) (cid, port uint32, err error) {
	cidStr, portStr := host, ""
	for i := 0; i < len(host); i++ {
		if host[i] == ':' {
			cidStr, portStr = host[:i], host[i+1:]
			break
		}
	}

	c, err := strconv.ParseUint(cidStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid vsock context id %q: %v", ErrNoSuchFile, cidStr, err)
	}
	if portStr == "" {
		return uint32(c), vsockDefaultPort, nil
	}
	p, err := strconv.ParseUint(portStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid vsock port %q: %v", ErrNoSuchFile, portStr, err)
	}
	return uint32(c), uint32(p), nil
}
