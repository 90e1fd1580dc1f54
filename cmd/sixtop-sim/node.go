// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sixtop/core"
	"sixtop/mac"
	"sixtop/metrics"
	"sixtop/mgmt"
	"sixtop/schedule"
	"sixtop/sf"
)

// staticSync stands in for the out-of-scope RPL/join-state machine (spec
// §1 Non-goals): the demo harness has no routing layer, so EB emission's
// four gating preconditions (spec §4.8) are just always true.
type staticSync struct{}

func (staticSync) Synchronized() bool       { return true }
func (staticSync) SecurityConfigured() bool { return true }
func (staticSync) DAGRankSet() bool         { return true }
func (staticSync) DAOSent() bool            { return true }

// node bundles one sixtop-sim demo node's collaborators around a
// core.SixtopCore: the management scheduler, the SCTP transport standing
// in for the out-of-scope 802.15.4e radio, and the in-memory reference
// implementations of the MAC-side collaborators spec §1/§6 name as
// external.
type node struct {
	cfg   *NodeConfig
	log   *slog.Logger
	core  *core.SixtopCore
	sf    *sf.MSF
	mgmt  *mgmt.Scheduler
	trans *sctpTransport
	neigh *neighborTable
}

func newNode(cfg *NodeConfig, log *slog.Logger) (*node, error) {
	self, err := parseAddress(cfg.Self)
	if err != nil {
		return nil, fmt.Errorf("sixtop-sim: config \"self\": %w", err)
	}

	table := schedule.NewMemTable(cfg.SlotframeLength, cfg.SlotframeLength)
	iface := schedule.NewIface(table)
	neigh := newNeighborTable(log)
	pool := newBufferPool(64)
	timers := newRealTimers()
	rec := metrics.New()
	msf := sf.NewMSF(cfg.SFID, cfg.SlotframeLength, cfg.NumChannels, iface)

	n := &node{cfg: cfg, log: log, sf: msf, neigh: neigh}
	n.trans = newSCTPTransport(log, n.deliver)

	c := core.New(self, iface, neigh, pool, n.trans, timers, mac.NoSecurity{}, rec, cfg.SlotframeLength, cfg.NumChannels)
	c.RegisterSF(msf)
	n.core = c

	slotDuration := time.Duration(cfg.SlotDurationMS) * time.Millisecond
	n.mgmt = mgmt.New(c, staticSync{}, cfg.SlotframeLength, slotDuration)

	return n, nil
}

// deliver is the sctpTransport's upcall for an inbound association read:
// wrap the raw bytes in a PacketEntry and hand it to the transaction
// machine, reproducing the MAC's NotifyReceive contract (spec §6) over a
// transport that has no framing of its own beyond SCTP's own message
// boundaries.
func (n *node) deliver(peer mac.Address, body []byte) {
	n.neigh.markHeard(peer)
	pkt := mac.NewPacketEntry("sctp")
	pkt.L2Source = peer
	pkt.Body = body
	n.core.NotifyReceive(pkt)
}

// start brings up the node: listens for inbound associations, dials every
// configured peer, starts the EB/maintenance timers, and opens the control
// and metrics endpoints.
func (n *node) start() error {
	if n.cfg.TapMirrorAddr != "" {
		conn, err := net.Dial("udp", n.cfg.TapMirrorAddr)
		if err != nil {
			return fmt.Errorf("sixtop-sim: dialing tap mirror %s: %w", n.cfg.TapMirrorAddr, err)
		}
		n.trans.setMirror(func(body []byte) { conn.Write(body) })
	}

	if err := n.trans.listen(n.cfg.ListenPort); err != nil {
		return err
	}
	for _, p := range n.cfg.Peers {
		peer, err := parseAddress(p.Address)
		if err != nil {
			return fmt.Errorf("sixtop-sim: peer %q: %w", p.Address, err)
		}
		if err := n.trans.dial(peer, p.Host, p.Port); err != nil {
			return err
		}
	}

	n.mgmt.Start()

	if err := serveControl(n.cfg.ControlSocket, n); err != nil {
		return err
	}

	go n.serveMetrics()
	return nil
}

func (n *node) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.core.Metrics.Registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(n.cfg.MetricsAddr, mux); err != nil {
		n.log.Error("metrics server exited", "error", err)
	}
}
