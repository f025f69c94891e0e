// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestEncodeOpen(t *testing.T) {
	got := string(EncodeOpen("/dev/nst0", 0))
	if !strings.HasPrefix(got, "O/dev/nst0\n0 O_RDONLY\n") {
		t.Fatalf("EncodeOpen(O_RDONLY) = %q", got)
	}

	got = string(EncodeOpen("/dev/nst0", unix.O_WRONLY|unix.O_CREAT))
	if !strings.Contains(got, "O_WRONLY") || !strings.Contains(got, "O_CREAT") {
		t.Fatalf("EncodeOpen(O_WRONLY|O_CREAT) = %q, missing a flag name", got)
	}
}

func TestEncodeIoctlGetNoNewline(t *testing.T) {
	if got := EncodeIoctlGet(); string(got) != "S" {
		t.Fatalf("EncodeIoctlGet() = %q, want %q", got, "S")
	}
}

func TestReadStatusSuccess(t *testing.T) {
	r := strings.NewReader("A42\n")
	status, err := ReadStatus(r)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if status.Kind != StatusSuccess || status.Count != 42 {
		t.Fatalf("ReadStatus = %+v, want Count=42", status)
	}
}

func TestReadStatusFatalShutsDownTaxonomy(t *testing.T) {
	r := strings.NewReader("F5 boom\n")
	status, err := ReadStatus(r)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if status.Kind != StatusError || !status.Fatal || status.Errno != 5 {
		t.Fatalf("ReadStatus = %+v, want a fatal error with errno 5", status)
	}
	pe := &PeerError{Errno: status.Errno, Fatal: status.Fatal}
	if !errors.Is(pe, ErrProtocol) {
		t.Fatalf("errors.Is(fatal PeerError, ErrProtocol) = false, want true")
	}
}

func TestReadStatusNonFatalNotProtocolError(t *testing.T) {
	status, err := ReadStatus(strings.NewReader("E13 denied\n"))
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	pe := &PeerError{Errno: status.Errno, Fatal: status.Fatal}
	if errors.Is(pe, ErrProtocol) {
		t.Fatalf("errors.Is(non-fatal PeerError, ErrProtocol) = true, want false")
	}
}

func TestReadStatusDesynchronized(t *testing.T) {
	if _, err := ReadStatus(strings.NewReader("Z1\n")); !errors.Is(err, ErrProtocol) {
		t.Fatalf("ReadStatus on unknown letter: got %v, want ErrProtocol", err)
	}
}

func TestReadStatusLineOverflow(t *testing.T) {
	long := strings.Repeat("9", commandBufferSize) + "\n"
	if _, err := ReadStatus(strings.NewReader("A" + long)); !errors.Is(err, ErrProtocol) {
		t.Fatalf("ReadStatus on oversized line: got %v, want ErrProtocol", err)
	}
}

func TestParseErrnoNormalizesToEIO(t *testing.T) {
	for _, rest := range []string{"0", "-3", "notanumber", ""} {
		if got := parseErrno(rest); got != int(unix.EIO) {
			t.Errorf("parseErrno(%q) = %d, want EIO", rest, got)
		}
	}
	if got := parseErrno("13"); got != 13 {
		t.Errorf("parseErrno(%q) = %d, want 13", "13", got)
	}
}

func TestReadOffsetStatusNegative(t *testing.T) {
	status, err := ReadOffsetStatus(strings.NewReader("A-1\n"))
	if err != nil {
		t.Fatalf("ReadOffsetStatus: %v", err)
	}
	if status.Count != -1 {
		t.Fatalf("ReadOffsetStatus = %+v, want Count=-1", status)
	}
}

func TestDiscardMessageLineConsumesThroughNewline(t *testing.T) {
	// The whole message line, newline included, is consumed, so the
	// reader is left at the start of the next line.
	r := strings.NewReader("hello\nworld\n")
	if err := discardMessageLine(r); err != nil {
		t.Fatalf("discardMessageLine: %v", err)
	}
	rest, _ := readStatusLine(r)
	if rest != "world" {
		t.Fatalf("after discardMessageLine, next line = %q, want %q", rest, "world")
	}
}

func TestWhenceFromStd(t *testing.T) {
	for std, want := range map[int]Whence{0: SeekSet, 1: SeekCur, 2: SeekEnd} {
		got, err := WhenceFromStd(std)
		if err != nil || got != want {
			t.Errorf("WhenceFromStd(%d) = (%v, %v), want (%v, nil)", std, got, err, want)
		}
	}
	if _, err := WhenceFromStd(99); !errors.Is(err, ErrProtocol) {
		t.Fatalf("WhenceFromStd(99): got %v, want ErrProtocol", err)
	}
}
