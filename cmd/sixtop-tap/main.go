// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Command sixtop-tap creates a Linux TAP device and mirrors every 6P frame
// a sixtop-sim node sends or receives onto it, purely for tcpdump/Wireshark
// style observation during development (SPEC_FULL.md §3.10). No
// IP/6LoWPAN semantics are implemented here -- this is a capture tap, not a
// network interface carrying real traffic, consistent with 6LoWPAN/IPHC
// being out of scope per spec.md §1.
package main

import (
	"encoding/binary"
	"flag"
	"log/slog"
	"net"
	"os"

	"github.com/vishvananda/netlink"
)

// etherTypeSixtopCapture is an unassigned experimental EtherType (IEEE
// 802 "Local Experimental Ethertype 1") used to wrap each mirrored 6P
// frame so generic Ethernet-capable tools can dissect the capture as raw
// frames without mistaking them for IP traffic.
const etherTypeSixtopCapture = 0x88b5

var captureSrcMAC = [6]byte{0x02, 0x36, 0x70, 0x00, 0x00, 0x01}
var captureDstMAC = [6]byte{0x02, 0x36, 0x70, 0x00, 0x00, 0xff}

func main() {
	ifaceName := flag.String("iface", "sixtop-tap0", "name of the TAP device to create")
	listenAddr := flag.String("listen", "127.0.0.1:9200", "UDP address sixtop-sim nodes mirror frames to")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	tap, fd, err := addTapDevice(*ifaceName)
	if err != nil {
		log.Error("failed to create tap device", "error", err)
		os.Exit(1)
	}
	defer netlink.LinkDel(tap)
	defer fd.Close()

	conn, err := net.ListenPacket("udp", *listenAddr)
	if err != nil {
		log.Error("failed to listen for mirrored frames", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	log.Info("sixtop-tap mirroring frames", "iface", *ifaceName, "listen", *listenAddr)

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			log.Error("read from mirror socket failed", "error", err)
			return
		}
		if _, err := fd.Write(wrapEthernet(buf[:n])); err != nil {
			log.Warn("writing captured frame to tap device failed", "error", err)
		}
	}
}

// wrapEthernet prepends a minimal 14-byte Ethernet header to body so the
// tap device emits something a packet capture tool recognizes as a
// distinct frame, rather than a raw byte stream.
func wrapEthernet(body []byte) []byte {
	frame := make([]byte, 14+len(body))
	copy(frame[0:6], captureDstMAC[:])
	copy(frame[6:12], captureSrcMAC[:])
	binary.BigEndian.PutUint16(frame[12:14], etherTypeSixtopCapture)
	copy(frame[14:], body)
	return frame
}
