// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ishidawataru/sctp"

	"sixtop/mac"
)

const dialTimeout = 5 * time.Second

// sixtopPPID is this demo's Payload Protocol Identifier stamped on every
// SCTP message, the 6P-over-SCTP analog of the teacher's NGAP PPID constant
// in gnbsim_sctp.go's newN2Conn.
const sixtopPPID = 0x3d000000

// sctpTransport is the out-of-scope 802.15.4e radio's stand-in for the demo
// harness: every SixtopCore.Radio.Send call becomes an SCTP datagram to the
// peer's association, and every inbound datagram becomes a NotifyReceive
// upcall, the same send/recv shape gnbsim_sctp.go uses for the NGAP
// association to the AMF.
type sctpTransport struct {
	log *slog.Logger

	mu    sync.RWMutex
	peers map[mac.Address]*sctp.SCTPConn

	deliver func(peer mac.Address, body []byte)

	// mirror, if set, receives a copy of every frame sent or received, for
	// cmd/sixtop-tap's development-time capture (SPEC_FULL.md §3.10). Never
	// set in production use; nil is a cheap no-op check on the hot path.
	mirror func(body []byte)
}

func newSCTPTransport(log *slog.Logger, deliver func(peer mac.Address, body []byte)) *sctpTransport {
	return &sctpTransport{log: log, peers: make(map[mac.Address]*sctp.SCTPConn), deliver: deliver}
}

// setMirror installs fn as the frame-capture hook. Not safe to call once
// the transport is already sending/receiving.
func (tr *sctpTransport) setMirror(fn func(body []byte)) {
	tr.mirror = fn
}

// listen accepts inbound associations on port and spawns a receive loop for
// each one. The peer's mac.Address is learned from its first frame's
// L2Source rather than from the association itself, since a demo peer may
// dial in from an ephemeral port.
func (tr *sctpTransport) listen(port int) error {
	addr := &sctp.SCTPAddr{Port: port}
	ln, err := sctp.ListenSCTP("sctp", addr)
	if err != nil {
		return fmt.Errorf("sixtop-sim: sctp listen on port %d: %w", port, err)
	}
	go func() {
		for {
			conn, err := ln.AcceptSCTP()
			if err != nil {
				tr.log.Error("sctp accept failed", "error", err)
				return
			}
			conn.SubscribeEvents(sctp.SCTP_EVENT_DATA_IO)
			go tr.recvLoop(conn)
		}
	}()
	return nil
}

// dial opens an outbound association to peer and registers it for Send,
// mirroring gnbsim_sctp.go's newN2Conn dial-with-timeout-via-goroutine
// pattern.
func (tr *sctpTransport) dial(peer mac.Address, host string, port int) error {
	ip, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return fmt.Errorf("sixtop-sim: resolving %s: %w", host, err)
	}
	raddr := &sctp.SCTPAddr{IPAddrs: []net.IPAddr{*ip}, Port: port}

	type result struct {
		conn *sctp.SCTPConn
		err  error
	}
	c := make(chan result, 1)
	go func() {
		conn, err := sctp.DialSCTP("sctp", nil, raddr)
		c <- result{conn, err}
	}()

	select {
	case r := <-c:
		if r.err != nil {
			return fmt.Errorf("sixtop-sim: dialing %v at %s:%d: %w", peer, host, port, r.err)
		}
		r.conn.SubscribeEvents(sctp.SCTP_EVENT_DATA_IO)
		tr.mu.Lock()
		tr.peers[peer] = r.conn
		tr.mu.Unlock()
		go tr.recvLoop(r.conn)
		return nil
	case <-time.After(dialTimeout):
		return fmt.Errorf("sixtop-sim: dial to %v at %s:%d timed out", peer, host, port)
	}
}

func (tr *sctpTransport) recvLoop(conn *sctp.SCTPConn) {
	info := &sctp.SndRcvInfo{Stream: 0, PPID: sixtopPPID}
	buf := make([]byte, mac.CellListMaxLen*0+256)
	for {
		n, _, err := conn.SCTPRead(buf)
		if err != nil {
			tr.log.Warn("sctp read failed, dropping association", "error", err)
			return
		}
		body := make([]byte, n)
		copy(body, buf[:n])
		if tr.mirror != nil {
			tr.mirror(body)
		}

		peer := tr.peerFor(conn)
		_ = info
		tr.deliver(peer, body)
	}
}

func (tr *sctpTransport) peerFor(conn *sctp.SCTPConn) mac.Address {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	for peer, c := range tr.peers {
		if c == conn {
			return peer
		}
	}
	return mac.Address{}
}

// Send implements mac.MAC. A broadcast destination (EB) fans out to every
// known association.
func (tr *sctpTransport) Send(pkt *mac.PacketEntry) error {
	if tr.mirror != nil {
		tr.mirror(pkt.Body)
	}
	if pkt.L2Dest.IsBroadcast() {
		tr.mu.RLock()
		defer tr.mu.RUnlock()
		var firstErr error
		for peer, conn := range tr.peers {
			if _, err := conn.SCTPWrite(pkt.Body, &sctp.SndRcvInfo{Stream: 0, PPID: sixtopPPID}); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("sixtop-sim: broadcast send to %v: %w", peer, err)
			}
		}
		return firstErr
	}

	tr.mu.RLock()
	conn, ok := tr.peers[pkt.L2Dest]
	tr.mu.RUnlock()
	if !ok {
		return fmt.Errorf("sixtop-sim: no association to %v", pkt.L2Dest)
	}
	if _, err := conn.SCTPWrite(pkt.Body, &sctp.SndRcvInfo{Stream: 0, PPID: sixtopPPID}); err != nil {
		return fmt.Errorf("sixtop-sim: send to %v: %w", pkt.L2Dest, err)
	}
	return nil
}
