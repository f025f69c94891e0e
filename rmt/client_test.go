// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"bufio"
	"errors"
	"io"
	"testing"
)

// registerMockTransport installs a "mock" transport whose dial simply
// hands back an in-process pipe pair driven by handler, so Client.Open
// and friends can be exercised without forking anything.
func registerMockTransport(t *testing.T, handler func(cmd *bufio.Reader, reply io.Writer)) {
	t.Helper()
	registerTransport("mock", func(host, user string, cfg Config) (io.ReadCloser, io.WriteCloser, error) {
		cmdR, cmdW := io.Pipe()
		replyR, replyW := io.Pipe()
		go func() {
			handler(bufio.NewReader(cmdR), replyW)
			replyW.Close()
		}()
		return replyR, cmdW, nil
	})
}

func TestClientOpenCloseRoundTrip(t *testing.T) {
	registerMockTransport(t, func(cmd *bufio.Reader, reply io.Writer) {
		open := readLine(t, cmd)
		if open != "Otapefile" {
			t.Errorf("remote got open command %q, want %q", open, "Otapefile")
		}
		readLine(t, cmd) // oflags line
		reply.Write([]byte("A0\n"))

		closeCmd := readLine(t, cmd)
		if closeCmd != "C" {
			t.Errorf("remote got %q, want %q", closeCmd, "C")
		}
		reply.Write([]byte("A0\n"))
	})

	c := New().WithTransport("mock")
	h, err := c.Open("tapehost:tapefile", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.Close(h); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestClientOpenBadTarget(t *testing.T) {
	c := New().WithTransport("mock")
	if _, err := c.Open("no-colon-here", 0); err == nil {
		t.Fatalf("Open on a target with no host:file portion should fail")
	}
}

func TestClientOpenUnknownTransport(t *testing.T) {
	c := New().WithTransport("carrier-pigeon")
	if _, err := c.Open("tapehost:tapefile", 0); err == nil {
		t.Fatalf("Open with an unregistered transport should fail")
	}
}

func TestClientOpenFailureReleasesHandle(t *testing.T) {
	c := New().WithTransport("carrier-pigeon")
	for i := 0; i < MaxHandles+1; i++ {
		if _, err := c.Open("tapehost:tapefile", 0); err == nil {
			t.Fatalf("Open with an unregistered transport should fail")
		}
	}
	// A table that leaked a reservation on every failed Open above would
	// be exhausted after MaxHandles attempts; confirm it isn't.
	registerMockTransport(t, func(cmd *bufio.Reader, reply io.Writer) {
		readLine(t, cmd)
		readLine(t, cmd)
		reply.Write([]byte("A0\n"))
	})
	if _, err := New().WithTransport("mock").Open("tapehost:tapefile", 0); err != nil {
		t.Fatalf("Open on a fresh client after repeated failures elsewhere: %v", err)
	}
	if _, err := c.table.Allocate(); err != nil {
		t.Fatalf("Allocate after %d failed Opens: %v, want a free slot", MaxHandles+1, err)
	}
}

func TestIoctlRejectsUnknownRequestWithoutTouchingWire(t *testing.T) {
	closed := make(chan struct{})
	registerMockTransport(t, func(cmd *bufio.Reader, reply io.Writer) {
		readLine(t, cmd)
		readLine(t, cmd)
		reply.Write([]byte("A0\n"))
		// No further reads before Close: an Ioctl call with an
		// unsupported request must never send anything here.
		<-closed
		closeCmd := readLine(t, cmd)
		if closeCmd != "C" {
			t.Errorf("remote got %q, want %q", closeCmd, "C")
		}
		reply.Write([]byte("A0\n"))
	})

	c := New().WithTransport("mock")
	h, err := c.Open("tapehost:tapefile", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const notARealRequest IoctlRequest = 99
	if err := c.Ioctl(h, notARealRequest, nil); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("Ioctl with an unsupported request: got %v, want ErrNotSupported", err)
	}
	close(closed)

	// The handle must still be usable: rejecting the request never
	// touched the wire or tore the session down.
	if _, err := c.Close(h); err != nil {
		t.Fatalf("Close after a rejected Ioctl: %v", err)
	}
}

func TestIoctlRejectsMismatchedArgumentType(t *testing.T) {
	c := New().WithTransport("carrier-pigeon")
	if err := c.Ioctl(0, MTIOCTOP, &MtGet{}); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("Ioctl(MTIOCTOP, *MtGet): got %v, want ErrNotSupported", err)
	}
	if err := c.Ioctl(0, MTIOCGET, &MtOp{}); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("Ioctl(MTIOCGET, *MtOp): got %v, want ErrNotSupported", err)
	}
}

func TestClientBiasAppliedToHandles(t *testing.T) {
	registerMockTransport(t, func(cmd *bufio.Reader, reply io.Writer) {
		readLine(t, cmd)
		readLine(t, cmd)
		reply.Write([]byte("A0\n"))
	})

	c := New().WithTransport("mock").WithBias(1000)
	h, err := c.Open("tapehost:tapefile", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if h < 1000 {
		t.Fatalf("Open with Bias=1000 returned handle %d", h)
	}
}
