// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"fmt"
	"os"

	"github.com/vishvananda/netlink"
)

// addTapDevice creates and brings up a Linux TAP device named name,
// generalized from the teacher's addTunnel (cmd/gnbsim_netlink.go) from a
// TUN device carrying a simulated UE's IP traffic to a TAP device mirroring
// raw 6P frames: TAP instead of TUN because a capture tool wants L2
// framing, not an IP interface.
func addTapDevice(name string) (*netlink.Tuntap, *os.File, error) {
	tap := &netlink.Tuntap{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		Mode:      netlink.TUNTAP_MODE_TAP,
		Flags:     netlink.TUNTAP_DEFAULTS,
		Queues:    1,
	}

	if err := netlink.LinkAdd(tap); err != nil {
		return nil, nil, fmt.Errorf("failed to add tap device[%s]: %w", name, err)
	}
	if err := netlink.LinkSetUp(tap); err != nil {
		return nil, nil, fmt.Errorf("failed to up tap device[%s]: %w", name, err)
	}
	if len(tap.Fds) == 0 {
		return nil, nil, fmt.Errorf("tap device[%s]: no file descriptor returned", name)
	}
	return tap, tap.Fds[0], nil
}
