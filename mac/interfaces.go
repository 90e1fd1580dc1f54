// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package mac

import "time"

// MAC is the 802.15.4e TDMA slot engine, the out-of-scope collaborator named
// in spec §1/§6 that actually transmits a built PacketEntry. Implementations
// are expected to call back into sixtop's NotifySendDone once the frame is
// acked, retried out, or otherwise resolved.
type MAC interface {
	// Send hands pkt to the slot engine. The call itself only validates and
	// enqueues; completion is reported asynchronously via NotifySendDone.
	Send(pkt *PacketEntry) error
}

// BufferPool is the shared packet buffer pool named in spec §3/§5. Alloc
// fails with an error (surfaced to the caller as NoBuffer, spec §4.1) when
// the pool is exhausted.
type BufferPool interface {
	Alloc() (*PacketEntry, error)
	Free(pkt *PacketEntry)
}

// NeighborTable is the per-neighbor state named in spec §3 (NeighborStats):
// the 6P sequence number per link, the keep-alive neighbor selection policy,
// and the maintenance-timer aging sweep.
type NeighborTable interface {
	// Seqnum returns the stored 6P sequence number for peer (0..255).
	Seqnum(peer Address) byte
	// SetSeqnum stores a new sequence number for peer. Per spec invariant
	// I5, callers advance it by exactly one on a successfully completed
	// response, never on request send-done or timeout.
	SetSeqnum(peer Address, seqnum byte)
	// KANeighbor returns the neighbor to keep-alive this period, and
	// whether one was found (spec §4.8).
	KANeighbor(period int) (Address, bool)
	// HasNegotiatedTXCellTo reports whether a negotiated (non-auto) TX cell
	// to peer exists, gating both the auto-cell rule and KA emission.
	HasNegotiatedTXCellTo(peer Address) bool
	// Age runs the periodic neighbor-liveness aging sweep (spec §4.8,
	// maintenance timer tick 0).
	Age()
}

// TimerID identifies an armed timer, returned by Timers.Schedule.
type TimerID uint64

// Timers is the timer service spec §1 assumes rather than implements: an
// abstraction sixtop schedules response timeouts and periodic EB/maintenance
// ticks against.
type Timers interface {
	Schedule(d time.Duration, fn func()) TimerID
	Cancel(id TimerID)
}

// SecurityProvider is the external security module named in spec §1
// Non-goals: sixtop asks it for a security level and key index per packet,
// never performs key management itself.
type SecurityProvider interface {
	SecurityLevel() byte
	KeyIndex() byte
}

// NoSecurity is the zero-value SecurityProvider used when a deployment has
// not wired in a real security module yet (e.g. the cmd/sixtop-sim demo).
type NoSecurity struct{}

func (NoSecurity) SecurityLevel() byte { return 0 }
func (NoSecurity) KeyIndex() byte      { return 0 }
