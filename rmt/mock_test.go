// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"bufio"
	"io"
	"testing"
)

// mockSession wires a Table handle to an in-process "remote" goroutine
// so ops.go's command/status round trips can be exercised without a
// real subprocess or socket.
type mockSession struct {
	t      *testing.T
	table  *Table
	handle int

	// commands receives each line the client sent, without its
	// trailing newline, for handler to inspect.
	commands chan string
	toRemote *bufio.Reader
	fromTest *io.PipeWriter
}

// newMockSession installs a fresh handle on table and starts handler
// in a goroutine acting as the remote peer: it reads command lines off
// commandR and writes replies (and any payload) to replyW.
func newMockSession(t *testing.T, table *Table, handler func(commandR *bufio.Reader, replyW io.Writer)) int {
	t.Helper()

	cmdR, cmdW := io.Pipe()
	replyR, replyW := io.Pipe()

	h, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	table.install(h, replyR, cmdW)

	go func() {
		handler(bufio.NewReader(cmdR), replyW)
		replyW.Close()
	}()

	return h
}

// readLine reads one newline-terminated command line (without the
// newline) from r; it is the remote-side counterpart to readStatusLine.
func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("reading command line: %v", err)
	}
	return line[:len(line)-1]
}
