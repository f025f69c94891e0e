// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build rmtssh

package rmt

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	config "github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

func init() {
	registerTransport("ssh", dialSSH)
}

// sshDefaultPort is the standard sshd port, used whenever neither the
// Config nor the user's ssh_config names one. This transport dials a
// real sshd, not a bespoke daemon, so 22 is the right default.
const sshDefaultPort = "22"

func sshHostName(host string) string {
	if h := config.Get(host, "HostName"); h != "" {
		return h
	}
	return host
}

func sshPort(host string) string {
	if p := config.Get(host, "Port"); p != "" {
		return p
	}
	return sshDefaultPort
}

func sshKeyFile(host string) string {
	kf := config.Get(host, "IdentityFile")
	if kf == "" {
		kf = filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
	}
	if strings.HasPrefix(kf, "~/") {
		kf = filepath.Join(os.Getenv("HOME"), kf[2:])
	}
	return kf
}

// parseSigner parses an ssh private key, prompting for a passphrase on
// the controlling terminal (without echoing it) when the key is
// encrypted and no passphrase was embedded.
func parseSigner(key []byte, keyFile string) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(key)
	if _, missing := err.(*ssh.PassphraseMissingError); !missing {
		return signer, err
	}

	fmt.Fprintf(os.Stderr, "Passphrase for %s: ", keyFile)
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return ssh.ParsePrivateKeyWithPassphrase(key, passphrase)
}

// dialSSH reaches host over ssh instead of forking a local remote-shell
// binary: a session's stdin/stdout pipes take the place of dialPipe's
// pipe(2) pair, authenticated with the user's ssh_config identity file
// the way client.Cmd.UserKeyConfig does.
func dialSSH(host, remoteUser string, cfg Config) (io.ReadCloser, io.WriteCloser, error) {
	keyFile := sshKeyFile(host)
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading ssh key %q: %v", ErrProtocol, keyFile, err)
	}
	signer, err := parseSigner(key, keyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parsing ssh key %q: %v", ErrProtocol, keyFile, err)
	}

	if remoteUser == "" {
		remoteUser = os.Getenv("USER")
	}
	clientConfig := &ssh.ClientConfig{
		User:            remoteUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	addr := net.JoinHostPort(sshHostName(host), sshPort(host))
	client, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dialing %s: %v", ErrProtocol, addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("%w: opening ssh session: %v", ErrProtocol, err)
	}

	remoteCommand := cfg.RemoteCommand
	if remoteCommand == "" {
		remoteCommand = DefaultRemoteCommand
	}

	w, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, nil, fmt.Errorf("%w: ssh stdin pipe: %v", ErrProtocol, err)
	}
	r, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, nil, fmt.Errorf("%w: ssh stdout pipe: %v", ErrProtocol, err)
	}

	if err := session.Start(remoteCommand); err != nil {
		session.Close()
		client.Close()
		return nil, nil, fmt.Errorf("%w: starting %s: %v", ErrProtocol, remoteCommand, err)
	}

	return sshReadCloser{r, session, client}, sshWriteCloser{w, session}, nil
}

// sshReadCloser closes the underlying session and client once the
// stdout pipe is closed, since an ssh.Session has no single handle
// that tears the whole connection down for us.
type sshReadCloser struct {
	io.Reader
	session *ssh.Session
	client  *ssh.Client
}

func (c sshReadCloser) Close() error {
	c.session.Close()
	return c.client.Close()
}

type sshWriteCloser struct {
	io.WriteCloser
	session *ssh.Session
}

func (c sshWriteCloser) Close() error {
	return c.WriteCloser.Close()
}
