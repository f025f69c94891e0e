// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// commandBufferSize bounds how many bytes a status line may occupy,
// including its terminating newline.
const commandBufferSize = 64

// Whence selects the base an L (seek) command measures from.
type Whence int

// Protocol values for Whence, per the rmt wire format. They are encoded
// explicitly rather than passed through from io.Seeker's whence, even
// though the numbers currently coincide (see WhenceFromStd).
const (
	SeekSet Whence = 0
	SeekCur Whence = 1
	SeekEnd Whence = 2
)

// WhenceFromStd maps an io.Seeker-style whence (0,1,2 / os.SEEK_*) to
// the protocol's own Whence encoding. The two currently agree, but the
// conversion exists so that doesn't have to stay an accident.
func WhenceFromStd(whence int) (Whence, error) {
	switch whence {
	case io.SeekStart:
		return SeekSet, nil
	case io.SeekCurrent:
		return SeekCur, nil
	case io.SeekEnd:
		return SeekEnd, nil
	default:
		return 0, fmt.Errorf("%w: unknown whence %d", ErrProtocol, whence)
	}
}

// oflagNames lists the POSIX open-flag bits the codec renders
// symbolically. The numeric encoding is authoritative on the wire;
// these names are purely informational for a human (or a historical
// rmt server) reading the command line.
var oflagNames = []struct {
	bit  int
	name string
}{
	{unix.O_APPEND, "O_APPEND"},
	{unix.O_CREAT, "O_CREAT"},
	{unix.O_EXCL, "O_EXCL"},
	{unix.O_NOCTTY, "O_NOCTTY"},
	{unix.O_NONBLOCK, "O_NONBLOCK"},
	{unix.O_SYNC, "O_SYNC"},
	{unix.O_TRUNC, "O_TRUNC"},
}

// encodeOflagsSymbolic renders oflags as the access-mode bit first
// (exactly one of O_RDONLY/O_RDWR/O_WRONLY), then every other
// recognized bit present, joined by '|'.
func encodeOflagsSymbolic(oflags int) string {
	var parts []string
	switch oflags & unix.O_ACCMODE {
	case unix.O_RDONLY:
		parts = append(parts, "O_RDONLY")
	case unix.O_RDWR:
		parts = append(parts, "O_RDWR")
	case unix.O_WRONLY:
		parts = append(parts, "O_WRONLY")
	}
	for _, f := range oflagNames {
		if oflags&f.bit == f.bit && f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// EncodeOpen renders the O command: "O<file>\n<oflags> <symbolic>\n".
func EncodeOpen(file string, oflags int) []byte {
	return []byte(fmt.Sprintf("O%s\n%d %s\n", file, oflags, encodeOflagsSymbolic(oflags)))
}

// EncodeClose renders the C command.
func EncodeClose() []byte {
	return []byte("C\n")
}

// EncodeRead renders the R command requesting length bytes.
func EncodeRead(length int) []byte {
	return []byte(fmt.Sprintf("R%d\n", length))
}

// EncodeWrite renders the W command's header; the caller sends the
// payload separately over the transport.
func EncodeWrite(length int) []byte {
	return []byte(fmt.Sprintf("W%d\n", length))
}

// EncodeSeek renders the L command.
func EncodeSeek(whence Whence, offset int64) []byte {
	return []byte(fmt.Sprintf("L%d\n%d\n", whence, offset))
}

// EncodeIoctlOp renders the I command (MTIOCTOP-equivalent).
func EncodeIoctlOp(op int32, count int64) []byte {
	return []byte(fmt.Sprintf("I%d\n%d\n", op, count))
}

// EncodeIoctlGet renders the legacy S command. Deliberately no trailing
// newline - see spec's open question in the design notes; every other
// command is newline-terminated, S is not, and that is intentional.
func EncodeIoctlGet() []byte {
	return []byte("S")
}

// StatusKind distinguishes a successful (A) reply from an error (E/F)
// reply.
type StatusKind int

const (
	StatusSuccess StatusKind = iota
	StatusError
)

// Status is a parsed rmt status reply.
type Status struct {
	Kind StatusKind

	// Count holds the decoded value for a StatusSuccess reply, either
	// a byte count (ReadStatus) or a file offset (ReadOffsetStatus).
	Count int64

	// Errno holds the decoded value for a StatusError reply. Fatal is
	// true for an F reply, which additionally requires the session to
	// be torn down. There is no message field: the error-message line
	// following E/F is discarded, not decoded - see
	// discardMessageLine.
	Errno int
	Fatal bool
}

// readStatusLine reads bytes one at a time until a newline or until
// commandBufferSize bytes have been consumed without one. The newline
// itself is not included in the returned string.
func readStatusLine(r io.Reader) (string, error) {
	var buf []byte
	var b [1]byte
	for i := 0; ; i++ {
		if i == commandBufferSize {
			return "", fmt.Errorf("%w: status line exceeds %d bytes", ErrProtocol, commandBufferSize)
		}
		n, err := r.Read(b[:])
		if n != 1 || err != nil {
			return "", fmt.Errorf("%w: reading status line: %v", ErrProtocol, err)
		}
		if b[0] == '\n' {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
}

// discardMessageLine consumes the message line following an E or F
// reply: it reads and drops bytes up to and including the first
// newline, leaving the reader at the start of the next reply. Running
// out of input before that newline is not an error - there is simply
// nothing left to discard.
func discardMessageLine(r io.Reader) error {
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n == 1 && b[0] == '\n' {
			return nil
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading error message: %v", ErrProtocol, err)
		}
	}
}

// splitStatusLetter strips leading spaces and returns the status letter
// and the remainder of the line.
func splitStatusLetter(line string) (byte, string) {
	line = strings.TrimLeft(line, " ")
	if line == "" {
		return 0, ""
	}
	return line[0], line[1:]
}

// parseCount parses rest as a non-negative decimal count, as used by an
// A reply to R/C/I commands.
func parseCount(rest string) (int64, error) {
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: malformed count %q", ErrProtocol, rest)
	}
	return n, nil
}

// parseOffset parses rest as a signed decimal file offset, as used by
// an A reply to an L command.
func parseOffset(rest string) (int64, error) {
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed offset %q", ErrProtocol, rest)
	}
	return n, nil
}

// parseErrno parses rest as a decimal errno. A non-positive or
// unparseable value normalizes to EIO, matching "err <= 0 ? EIO : err".
func parseErrno(rest string) int {
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || n <= 0 {
		return int(unix.EIO)
	}
	return n
}

// readStatus reads one status reply, decoding the A form with
// parseSuccess. An E/F reply comes back as a StatusError Status with a
// nil error; callers turn it into a *PeerError.
func readStatus(r io.Reader, parseSuccess func(string) (int64, error)) (Status, error) {
	line, err := readStatusLine(r)
	if err != nil {
		return Status{}, err
	}

	letter, rest := splitStatusLetter(line)
	switch letter {
	case 'A':
		n, err := parseSuccess(rest)
		if err != nil {
			return Status{}, err
		}
		return Status{Kind: StatusSuccess, Count: n}, nil

	case 'E', 'F':
		errnoStr := rest
		errno := parseErrno(errnoStr)
		if err := discardMessageLine(r); err != nil {
			return Status{}, err
		}
		return Status{Kind: StatusError, Errno: errno, Fatal: letter == 'F'}, nil

	default:
		return Status{}, fmt.Errorf("%w: desynchronized reply %q", ErrProtocol, line)
	}
}

// ReadStatus reads a status reply whose success form is a byte count
// (used by Close, Read, Write, IoctlOp).
func ReadStatus(r io.Reader) (Status, error) {
	return readStatus(r, parseCount)
}

// ReadOffsetStatus reads a status reply whose success form is a signed
// file offset (used by Seek).
func ReadOffsetStatus(r io.Reader) (Status, error) {
	return readStatus(r, parseOffset)
}
