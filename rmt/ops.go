// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"encoding/binary"
	"fmt"
)

// peerFailure turns a StatusError reply into a *PeerError, shutting the
// handle down first when the reply was fatal (F). A non-fatal (E)
// reply leaves the session usable for further commands.
func peerFailure(t *Table, handle int, s Status) error {
	if s.Fatal {
		t.Release(handle)
	}
	return &PeerError{Errno: s.Errno, Fatal: s.Fatal}
}

// shutdown tears the session down after a framing or local I/O failure,
// preserving err.
func shutdown(t *Table, handle int, err error) error {
	t.Release(handle)
	return err
}

func closeOp(t *Table, handle int) (int, error) {
	r, w, err := t.endpoints(handle)
	if err != nil {
		return -1, err
	}

	sendErr := SendCommand(w, EncodeClose())
	if sendErr != nil {
		return -1, shutdown(t, handle, sendErr)
	}

	status, err := ReadStatus(r)
	if err != nil {
		return -1, shutdown(t, handle, err)
	}

	// Close always tears the handle down, success or not.
	t.Release(handle)
	if status.Kind == StatusError {
		return -1, &PeerError{Errno: status.Errno, Fatal: status.Fatal}
	}
	return int(status.Count), nil
}

func readOp(t *Table, handle int, buf []byte) (int, error) {
	r, w, err := t.endpoints(handle)
	if err != nil {
		return -1, err
	}

	if err := SendCommand(w, EncodeRead(len(buf))); err != nil {
		return -1, shutdown(t, handle, err)
	}

	status, err := ReadStatus(r)
	if err != nil {
		return -1, shutdown(t, handle, err)
	}
	if status.Kind == StatusError {
		return -1, peerFailure(t, handle, status)
	}
	if status.Count < 0 || status.Count > int64(len(buf)) {
		return -1, shutdown(t, handle, fmt.Errorf("%w: read status %d out of range [0,%d]", ErrProtocol, status.Count, len(buf)))
	}

	n := int(status.Count)
	if err := ReadPayload(r, buf[:n]); err != nil {
		return -1, shutdown(t, handle, err)
	}
	return n, nil
}

// writeOp never returns a negative count: on any failure - local send
// failure, a peer error reply, or a framing violation in the reply - it
// reports 0, since no bytes are known to have been acknowledged by the
// peer, rather than -1. A successful A0 reply also returns 0; callers
// distinguish the two purely by the accompanying error.
func writeOp(t *Table, handle int, buf []byte) (int, error) {
	r, w, err := t.endpoints(handle)
	if err != nil {
		return 0, err
	}

	if err := SendCommand(w, EncodeWrite(len(buf))); err != nil {
		return 0, shutdown(t, handle, err)
	}
	if err := SendCommand(w, buf); err != nil {
		return 0, shutdown(t, handle, err)
	}

	status, err := ReadStatus(r)
	if err != nil {
		return 0, shutdown(t, handle, err)
	}
	if status.Kind == StatusError {
		return 0, peerFailure(t, handle, status)
	}
	if status.Count < 0 || status.Count > int64(len(buf)) {
		return 0, shutdown(t, handle, fmt.Errorf("%w: write status %d out of range [0,%d]", ErrProtocol, status.Count, len(buf)))
	}
	return int(status.Count), nil
}

func seekOp(t *Table, handle int, offset int64, whence Whence) (int64, error) {
	r, w, err := t.endpoints(handle)
	if err != nil {
		return -1, err
	}

	if err := SendCommand(w, EncodeSeek(whence, offset)); err != nil {
		return -1, shutdown(t, handle, err)
	}

	status, err := ReadOffsetStatus(r)
	if err != nil {
		return -1, shutdown(t, handle, err)
	}
	if status.Kind == StatusError {
		return -1, peerFailure(t, handle, status)
	}
	return status.Count, nil
}

// MtOp mirrors the MTIOCTOP argument: an operation code (rewind, skip
// forward/back N file marks, and similar) plus a repeat count.
type MtOp struct {
	Op    int32
	Count int64
}

func ioctlOp(t *Table, handle int, op int32, count int64) (int64, error) {
	r, w, err := t.endpoints(handle)
	if err != nil {
		return -1, err
	}

	if err := SendCommand(w, EncodeIoctlOp(op, count)); err != nil {
		return -1, shutdown(t, handle, err)
	}

	status, err := ReadStatus(r)
	if err != nil {
		return -1, shutdown(t, handle, err)
	}
	if status.Kind == StatusError {
		return -1, peerFailure(t, handle, status)
	}
	return status.Count, nil
}

// MtGet mirrors the fields of the MTIOCGET status structure that a
// caller cares about: drive type, residual count, two device status
// registers, and the current file/block position on the tape.
type MtGet struct {
	Type   int64
	ResID  int64
	DsReg  int64
	GStat  int64
	ErReg  int64
	FileNo int32
	BlkNo  int32
}

// mtGetSize is the wire size of the marshaled MtGet structure: five
// 8-byte fields followed by two 4-byte fields.
const mtGetSize = 5*8 + 2*4

func (m *MtGet) marshal() []byte {
	buf := make([]byte, mtGetSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(m.Type))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.ResID))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.DsReg))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(m.GStat))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(m.ErReg))
	binary.LittleEndian.PutUint32(buf[40:44], uint32(m.FileNo))
	binary.LittleEndian.PutUint32(buf[44:48], uint32(m.BlkNo))
	return buf
}

func (m *MtGet) unmarshal(buf []byte) {
	m.Type = int64(binary.LittleEndian.Uint64(buf[0:8]))
	m.ResID = int64(binary.LittleEndian.Uint64(buf[8:16]))
	m.DsReg = int64(binary.LittleEndian.Uint64(buf[16:24]))
	m.GStat = int64(binary.LittleEndian.Uint64(buf[24:32]))
	m.ErReg = int64(binary.LittleEndian.Uint64(buf[32:40]))
	m.FileNo = int32(binary.LittleEndian.Uint32(buf[40:44]))
	m.BlkNo = int32(binary.LittleEndian.Uint32(buf[44:48]))
}

// swapIfNeeded flips every adjacent byte pair in buf when the leading
// 8-byte field, read as-is, looks implausibly large for a drive-type
// value (>= 256). That is the signature of a structure produced by a
// peer of the opposite byte order; swapping every pair undoes a
// whole-structure byte-order mismatch without knowing the peer's
// native layout.
func swapIfNeeded(buf []byte) {
	typeVal := int64(binary.LittleEndian.Uint64(buf[0:8]))
	if typeVal < 256 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = buf[i+1], buf[i]
	}
}

func ioctlGetStatusOp(t *Table, handle int, out *MtGet) error {
	r, w, err := t.endpoints(handle)
	if err != nil {
		return err
	}

	if err := SendCommand(w, EncodeIoctlGet()); err != nil {
		return shutdown(t, handle, err)
	}

	status, err := ReadStatus(r)
	if err != nil {
		return shutdown(t, handle, err)
	}
	if status.Kind == StatusError {
		return peerFailure(t, handle, status)
	}
	if status.Count != mtGetSize {
		return shutdown(t, handle, fmt.Errorf("%w: status structure size %d, want %d", ErrProtocol, status.Count, mtGetSize))
	}

	buf := make([]byte, mtGetSize)
	if err := ReadPayload(r, buf); err != nil {
		return shutdown(t, handle, err)
	}
	swapIfNeeded(buf)
	out.unmarshal(buf)
	return nil
}
