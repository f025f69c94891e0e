// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rmt

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tapelink/rmt/ds"
)

// resolveTimeout bounds the forward-DNS lookup ResolveHost attempts;
// the mDNS/DNS-SD fallback runs under the ds package's own timeout.
const resolveTimeout = 2 * time.Second

// ResolveHost resolves host to a dialable address. Ordinary DNS names
// go through the standard resolver; if it can see host, ResolveHost
// returns host as-is. For a ".local" host the standard resolver cannot
// see, it browses mDNS/DNS-SD for an "_rmt._tcp" service via the ds
// package and returns the address of the first match; the service's
// name is not compared with host. A caller
// that asks for resolution and gets none back - the standard resolver
// failed on a non-".local" host, or both the standard resolver and the
// mDNS fallback failed on a ".local" one - gets ErrNoSuchFile, so Open
// aborts rather than dialing a host it never actually found.
func ResolveHost(host string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	if _, err := net.DefaultResolver.LookupHost(ctx, host); err == nil {
		return host, nil
	}
	if !strings.HasSuffix(host, ".local") {
		return "", fmt.Errorf("%w: no such host %q", ErrNoSuchFile, host)
	}

	addr, _, err := ds.Lookup(ds.Query{Type: "_rmt._tcp", Domain: "local"})
	if err != nil || addr == "" {
		return "", fmt.Errorf("%w: no such host %q", ErrNoSuchFile, host)
	}
	return addr, nil
}
