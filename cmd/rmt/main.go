// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rmt drives a remote-tape session from the shell: it opens a
// [user@]host:file target, runs a small script of read/write/seek/ioctl
// operations against it, and reports what the peer returned.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/tapelink/rmt/rmt"
)

var (
	remoteShell   = flag.String("rsh", os.Getenv("RMT_RSH"), "remote shell binary used by the pipe transport")
	remoteCommand = flag.String("rmtcmd", "", "path of the rmt helper on the remote host")
	transport     = flag.String("transport", "pipe", `connection transport: "pipe", "ssh", or "vsock"`)
	discover      = flag.Bool("discover", false, "resolve .local hosts via mDNS/DNS-SD before dialing")
	bias          = flag.Int("bias", 0, "offset added to every handle this run reports")
	debug         = flag.Bool("d", false, "enable verbose logging")

	oflags = flag.String("oflags", "rdonly", "open flags: one of rdonly, wronly, rdwr, optionally with +creat/+trunc/+append")
)

func usage() {
	var b bytes.Buffer
	flag.CommandLine.SetOutput(&b)
	flag.PrintDefaults()
	log.Fatalf("Usage: rmt [options] host:file op [op...]\nops: read:N  write:DATA  seek:OFFSET[:whence]  rewind  status\n%s", b.String())
}

func parseOflags(s string) (int, error) {
	parts := strings.Split(s, "+")
	var n int
	switch parts[0] {
	case "rdonly":
		n = 0
	case "wronly":
		n = 1
	case "rdwr":
		n = 2
	default:
		return 0, fmt.Errorf("unknown access mode %q", parts[0])
	}
	for _, p := range parts[1:] {
		switch p {
		case "creat":
			n |= 0o100
		case "trunc":
			n |= 0o1000
		case "append":
			n |= 0o2000
		default:
			return 0, fmt.Errorf("unknown open flag %q", p)
		}
	}
	return n, nil
}

func runOp(c *rmt.Client, handle int, op string) error {
	verb, arg, _ := strings.Cut(op, ":")
	switch verb {
	case "read":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		buf := make([]byte, n)
		got, err := c.Read(handle, buf)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("read %d bytes: %q\n", got, buf[:got])

	case "write":
		n, err := c.Write(handle, []byte(arg))
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		fmt.Printf("wrote %d bytes\n", n)

	case "seek":
		offsetStr, whenceStr, _ := strings.Cut(arg, ":")
		offset, err := strconv.ParseInt(offsetStr, 10, 64)
		if err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		whence := rmt.SeekSet
		switch whenceStr {
		case "", "set":
			whence = rmt.SeekSet
		case "cur":
			whence = rmt.SeekCur
		case "end":
			whence = rmt.SeekEnd
		default:
			return fmt.Errorf("seek: unknown whence %q", whenceStr)
		}
		pos, err := c.Seek(handle, offset, whence)
		if err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		fmt.Printf("now at offset %d\n", pos)

	case "rewind":
		n, err := c.IoctlOp(handle, 6, 1) // MTREW, Linux value
		if err != nil {
			return fmt.Errorf("rewind: %w", err)
		}
		fmt.Printf("rewind: %d\n", n)

	case "status":
		var mt rmt.MtGet
		if err := c.IoctlGetStatus(handle, &mt); err != nil {
			return fmt.Errorf("status: %w", err)
		}
		fmt.Printf("status: %+v\n", mt)

	default:
		return fmt.Errorf("unknown op %q", verb)
	}
	return nil
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		usage()
	}
	target, ops := args[0], args[1:]

	oflagsVal, err := parseOflags(*oflags)
	if err != nil {
		log.Fatalf("rmt: %v", err)
	}

	c := rmt.New().
		WithRemoteShell(*remoteShell).
		WithRemoteCommand(*remoteCommand).
		WithTransport(*transport).
		WithDiscover(*discover).
		WithBias(*bias)

	if *debug {
		log.Printf("rmt[%s]: opening %q", c.ID(), target)
	}
	handle, err := c.Open(target, oflagsVal)
	if err != nil {
		log.Fatalf("rmt: open %q: %v", target, err)
	}
	if *debug {
		log.Printf("rmt[%s]: opened %q as handle %d", c.ID(), target, handle)
	}

	exit := 0
	for _, op := range ops {
		if err := runOp(c, handle, op); err != nil {
			log.Printf("rmt[%s]: %v", c.ID(), err)
			exit = 1
			break
		}
	}

	if _, err := c.Close(handle); err != nil {
		log.Printf("rmt[%s]: close: %v", c.ID(), err)
		exit = 1
	}
	os.Exit(exit)
}
