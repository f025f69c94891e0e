// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"errors"
	"testing"
)

func TestParseTargetUserHostFile(t *testing.T) {
	user, host, file, err := parseTarget("alice@tapehost:/dev/nst0")
	if err != nil {
		t.Fatalf("parseTarget: %v", err)
	}
	if user != "alice" || host != "tapehost" || file != "/dev/nst0" {
		t.Fatalf("parseTarget = (%q, %q, %q)", user, host, file)
	}
}

func TestParseTargetNoUser(t *testing.T) {
	user, host, file, err := parseTarget("tapehost:/dev/nst0")
	if err != nil {
		t.Fatalf("parseTarget: %v", err)
	}
	if user != "" || host != "tapehost" || file != "/dev/nst0" {
		t.Fatalf("parseTarget = (%q, %q, %q)", user, host, file)
	}
}

func TestParseTargetNoColonIsNoSuchFile(t *testing.T) {
	if _, _, _, err := parseTarget("justahost"); !errors.Is(err, ErrNoSuchFile) {
		t.Fatalf("parseTarget with no ':': got %v, want ErrNoSuchFile", err)
	}
}

func TestParseTargetEmptyHostIsNoSuchFile(t *testing.T) {
	if _, _, _, err := parseTarget(":/dev/nst0"); !errors.Is(err, ErrNoSuchFile) {
		t.Fatalf("parseTarget with empty host: got %v, want ErrNoSuchFile", err)
	}
}

func TestParseTargetRejectsNewline(t *testing.T) {
	if _, _, _, err := parseTarget("host:file\nwith a newline"); !errors.Is(err, ErrNoSuchFile) {
		t.Fatalf("parseTarget with embedded newline: got %v, want ErrNoSuchFile", err)
	}
}

func TestParseTargetEmptyFileAllowed(t *testing.T) {
	_, _, file, err := parseTarget("tapehost:")
	if err != nil {
		t.Fatalf("parseTarget: %v", err)
	}
	if file != "" {
		t.Fatalf("parseTarget file = %q, want empty", file)
	}
}

func TestDropPrivilegeCredentialNoopWhenNotSetuid(t *testing.T) {
	cred, err := dropPrivilegeCredential()
	if err != nil {
		t.Fatalf("dropPrivilegeCredential: %v", err)
	}
	if cred != nil {
		t.Fatalf("dropPrivilegeCredential = %+v, want nil when uid == euid", cred)
	}
}
