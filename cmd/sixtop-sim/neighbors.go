// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"log/slog"
	"sync"

	"sixtop/mac"
)

type neighborState struct {
	seqnum       byte
	negotiatedTX bool
	missedKAs    int
	heard        bool
}

// neighborTable is the in-memory NeighborTable the demo harness runs
// against: per-link seqnum, KA target rotation, and a simple missed-KA
// liveness counter driven by the maintenance timer's aging tick.
type neighborTable struct {
	mu    sync.Mutex
	log   *slog.Logger
	state map[mac.Address]*neighborState
	order []mac.Address
	next  int
}

func newNeighborTable(log *slog.Logger) *neighborTable {
	return &neighborTable{log: log, state: make(map[mac.Address]*neighborState)}
}

func (t *neighborTable) ensure(peer mac.Address) *neighborState {
	s, ok := t.state[peer]
	if !ok {
		s = &neighborState{}
		t.state[peer] = s
		t.order = append(t.order, peer)
	}
	return s
}

// markNegotiated records a negotiated TX cell to peer, letting it
// participate in KA selection (spec §4.8: KA is skipped without a
// negotiated TX cell). The control handler calls it once an ADD request
// has been handed to the core, without waiting for the response.
func (t *neighborTable) markNegotiated(peer mac.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure(peer).negotiatedTX = true
}

func (t *neighborTable) Seqnum(peer mac.Address) byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ensure(peer).seqnum
}

func (t *neighborTable) SetSeqnum(peer mac.Address, seqnum byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure(peer).seqnum = seqnum
}

func (t *neighborTable) HasNegotiatedTXCellTo(peer mac.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[peer]
	return ok && s.negotiatedTX
}

// KANeighbor rotates round-robin over every known neighbor with a
// negotiated TX cell, as a minimal stand-in for a real priority policy.
func (t *neighborTable) KANeighbor(int) (mac.Address, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < len(t.order); i++ {
		idx := (t.next + i) % len(t.order)
		peer := t.order[idx]
		if t.state[peer].negotiatedTX {
			t.next = (idx + 1) % len(t.order)
			return peer, true
		}
	}
	return mac.Address{}, false
}

// Age implements the maintenance timer's tick-0 liveness sweep: every
// negotiated neighbor not heard from since the last sweep gets one missed-KA
// credit; three strikes drops it from KA rotation.
func (t *neighborTable) Age() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for peer, s := range t.state {
		if s.heard {
			s.heard = false
			s.missedKAs = 0
			continue
		}
		if !s.negotiatedTX {
			continue
		}
		s.missedKAs++
		if s.missedKAs >= 3 {
			s.negotiatedTX = false
			t.log.Warn("neighbor marked stale, dropping from KA rotation", "peer", peer)
		}
	}
}

// markHeard records that peer sent this node a frame, resetting its
// missed-KA count on the next aging sweep.
func (t *neighborTable) markHeard(peer mac.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure(peer).heard = true
}
