// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package adapter glues an rmt session, or a plain local file, to a
// six-callback archive interface: a reader, a writer, a seeker, an
// opener, a closer, and a destructor. It mirrors the open/read/write/
// seek/close/destroy split an archive engine's buffered I/O layer
// expects, switching the underlying implementation on whether the
// archive target turned out to be local or remote.
package adapter

import (
	"io"
	"os"
	"strings"

	"github.com/tapelink/rmt/rmt"
)

// IOStatus mirrors the three-way result a buffered-archive engine
// expects from every I/O callback.
type IOStatus int

const (
	StatusSuccess IOStatus = iota
	StatusEOF
	StatusFailure
)

// OpenMode selects the access mode an Opener/Closer pair is invoked
// with.
type OpenMode int

const (
	ModeRead OpenMode = 1 << iota
	ModeCreate
)

// Archive is the six-callback surface a buffered-archive engine drives.
// Reader/Writer/Seeker/Closer operate on an already-open archive;
// Opener establishes it. In the archives NewLocal and NewRemote build,
// Destroyer does nothing: only Closer releases what Opener opened.
type Archive struct {
	Reader    func(p []byte) (n int, status IOStatus, err error)
	Writer    func(p []byte) (n int, status IOStatus, err error)
	Seeker    func(offset int64) (IOStatus, error)
	Opener    func(mode OpenMode) (IOStatus, error)
	Closer    func(mode OpenMode) error
	Destroyer func() error
}

// Config collects the knobs NewAuto and NewRemote need to construct an
// rmt.Client, plus the ones a caller carries alongside an Archive for
// its own bookkeeping.
type Config struct {
	RemoteShell   string
	RemoteCommand string
	ForceLocal    bool
	Transport     string
	Discover      bool
	Bias          int
	BlockFactor   int
}

func (c Config) clientConfig() rmt.Config {
	return rmt.Config{
		RemoteShell:   c.RemoteShell,
		RemoteCommand: c.RemoteCommand,
		ForceLocal:    c.ForceLocal,
		Transport:     c.Transport,
		Discover:      c.Discover,
		Bias:          c.Bias,
		BlockFactor:   c.BlockFactor,
	}
}

// NewLocal builds an Archive over a plain local file, the Go analog of
// local_reader/local_writer/local_seek/local_open/local_close.
func NewLocal(filename string) *Archive {
	var f *os.File

	return &Archive{
		Reader: func(p []byte) (int, IOStatus, error) {
			n, err := f.Read(p)
			switch {
			case err == io.EOF:
				return n, StatusEOF, nil
			case err != nil:
				return n, StatusFailure, err
			default:
				return n, StatusSuccess, nil
			}
		},
		Writer: func(p []byte) (int, IOStatus, error) {
			n, err := f.Write(p)
			if err != nil {
				return n, StatusFailure, err
			}
			return n, StatusSuccess, nil
		},
		Seeker: func(offset int64) (IOStatus, error) {
			if _, err := f.Seek(offset, 0); err != nil {
				return StatusFailure, err
			}
			return StatusSuccess, nil
		},
		Opener: func(mode OpenMode) (IOStatus, error) {
			flags := os.O_RDONLY
			if mode&ModeRead == 0 {
				flags = os.O_RDWR
				if mode&ModeCreate != 0 {
					flags |= os.O_CREATE
				}
			}
			opened, err := os.OpenFile(filename, flags, 0o666)
			if err != nil {
				return StatusFailure, err
			}
			f = opened
			return StatusSuccess, nil
		},
		Closer: func(OpenMode) error {
			if f == nil {
				return nil
			}
			err := f.Close()
			f = nil
			return err
		},
		Destroyer: func() error { return nil },
	}
}

// NewRemote builds an Archive over an rmt.Client session, the Go
// analog of remote_reader/remote_writer/remote_seek/remote_open/
// remote_close.
func NewRemote(target string, cfg Config) *Archive {
	client := rmt.NewFromConfig(cfg.clientConfig())

	handle := -1

	return &Archive{
		Reader: func(p []byte) (int, IOStatus, error) {
			n, err := client.Read(handle, p)
			switch {
			case err != nil:
				return 0, StatusFailure, err
			case n == 0:
				return 0, StatusEOF, nil
			default:
				return n, StatusSuccess, nil
			}
		},
		Writer: func(p []byte) (int, IOStatus, error) {
			n, err := client.Write(handle, p)
			if err != nil || n == 0 {
				return n, StatusFailure, err
			}
			return n, StatusSuccess, nil
		},
		Seeker: func(offset int64) (IOStatus, error) {
			if _, err := client.Seek(handle, offset, rmt.SeekSet); err != nil {
				return StatusFailure, err
			}
			return StatusSuccess, nil
		},
		Opener: func(mode OpenMode) (IOStatus, error) {
			oflags := 0 // O_RDONLY
			if mode&ModeRead == 0 {
				oflags = 2 // O_RDWR
				if mode&ModeCreate != 0 {
					oflags |= 0o100 // O_CREAT, Linux value
				}
			}
			h, err := client.Open(target, oflags)
			if err != nil {
				return StatusFailure, err
			}
			handle = h
			return StatusSuccess, nil
		},
		Closer: func(OpenMode) error {
			if handle < 0 {
				return nil
			}
			_, err := client.Close(handle)
			handle = -1
			return err
		},
		Destroyer: func() error { return nil },
	}
}

// NewAuto picks NewLocal or NewRemote for filename the way a real
// archive engine's front end would: filename is local if cfg.ForceLocal
// is set or filename has no ':' before its first '/' (so a relative or
// absolute path is never mistaken for a host:file spec); otherwise it is
// remote. The returned bool reports which choice was made (true: remote).
func NewAuto(filename string, cfg Config) (*Archive, bool, error) {
	if cfg.ForceLocal || !looksRemote(filename) {
		return NewLocal(filename), false, nil
	}
	return NewRemote(filename, cfg), true, nil
}

func looksRemote(filename string) bool {
	slash := strings.IndexByte(filename, '/')
	colon := strings.IndexByte(filename, ':')
	if colon < 0 {
		return false
	}
	if slash >= 0 && slash < colon {
		return false
	}
	return true
}
