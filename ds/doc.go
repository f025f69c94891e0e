// Copyright 2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ds resolves a remote-tape host advertised over DNS-SD/mDNS.
//
// It covers only the lookup path: rmt never advertises its own presence
// (the remote helper is a foreign process started by the remote shell), it
// only needs to resolve a bare ".local" hostname to an address and port
// before dialing it.

package ds
