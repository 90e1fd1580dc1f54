// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package core is the SixtopCore value named in spec §9's design note: the
// single explicitly-passed system object that replaces the source's
// process-wide global, bundling RequestOriginator (spec §4.6) and
// ResponseHandler (spec §4.7) around one fsm.TxnContext.
package core

import (
	"errors"
	"fmt"
	"log"
	"time"

	"sixtop/fsm"
	"sixtop/mac"
	"sixtop/metrics"
	"sixtop/schedule"
	"sixtop/sf"
)

// Six2SixTimeoutMS is SIX2SIX_TIMEOUT_MS: the response-wait timeout armed
// at every WAIT_*_REQ_SENDDONE -> WAIT_*_RESPONSE edge (spec §5).
const Six2SixTimeoutMS = 3000 * time.Millisecond

// MaxSixPResponse bounds concurrently-building inbound 6P responses (spec
// §4.7 step 1: "default 1").
const MaxSixPResponse = 1

// ErrFail is the E_FAIL outcome named in spec §4.6/§7: the only failure
// mode RequestOriginator surfaces to its caller.
var ErrFail = errors.New("core: E_FAIL")

// pendingMutation is the schedule mutation ResponseHandler computed while
// building an outbound response, applied only once that response's
// send-done confirms it left the node (spec §4.7: "schedule changes
// deferred to send-done"). MaxSixPResponse == 1 means at most one of these
// is ever outstanding. The 3-step anycast relay's own cell install does not
// go through here: handleAddRequestRelayResponse applies it as soon as step
// 3 arrives, not deferred to step 4's send-done.
type pendingMutation struct {
	command mac.Command
	peer    mac.Address
	opts    mac.CellOptions

	acceptedAdd mac.CellList
	acceptedDel mac.CellList
}

// relayContext remembers the original step-1 ADD request's SFID, sequence
// number, and metadata so the intermediate node's step-4 response (sent
// once step 3 arrives from the second receiver) echoes the initiator's own
// request rather than the step-2/step-3 exchange it ran with the second
// receiver.
type relayContext struct {
	sfid     byte
	seqnum   byte
	metadata uint16
}

// SixtopCore bundles every collaborator spec §1/§6 names as external, plus
// the single-slot transaction context, into one value (spec §9).
type SixtopCore struct {
	Self mac.Address

	Schedule  *schedule.Iface
	Neighbors mac.NeighborTable
	Pool      mac.BufferPool
	Radio     mac.MAC
	Timers    mac.Timers
	Security  mac.SecurityProvider
	Metrics   *metrics.Recorder

	SF           sf.Dispatch
	SFCandidates sf.CandidateLister

	Txn fsm.TxnContext

	// OnEBSendDone and OnKASendDone let an mgmt.Scheduler observe its own
	// enhanced-beacon/keep-alive sends completing, without core importing
	// mgmt.
	OnEBSendDone func(error)
	OnKASendDone func(error)

	frameLength uint16
	numChannels uint16

	outstandingRequest   *mac.PacketEntry
	outstandingResponses int
	pending              *pendingMutation
	relay                relayContext
}

// New builds a SixtopCore bound to its collaborators. security may be nil,
// in which case mac.NoSecurity{} is used (spec §1 Non-goals: key management
// is delegated entirely to an external module).
func New(self mac.Address, sched *schedule.Iface, neighbors mac.NeighborTable, pool mac.BufferPool, radio mac.MAC, timers mac.Timers, security mac.SecurityProvider, rec *metrics.Recorder, frameLength, numChannels uint16) *SixtopCore {
	if security == nil {
		security = mac.NoSecurity{}
	}
	return &SixtopCore{
		Self:        self,
		Schedule:    sched,
		Neighbors:   neighbors,
		Pool:        pool,
		Radio:       radio,
		Timers:      timers,
		Security:    security,
		Metrics:     rec,
		Txn:         fsm.TxnContext{State: fsm.StateIdle},
		frameLength: frameLength,
		numChannels: numChannels,
	}
}

// RegisterSF installs the active Scheduling Function's callbacks (spec §6:
// "register_sf_callbacks installs the active Scheduling Function"),
// picking up the MSF-only CandidateLister extension when d implements it.
func (c *SixtopCore) RegisterSF(d sf.Dispatch) {
	c.SF = d
	c.SFCandidates = nil
	if cl, ok := d.(sf.CandidateLister); ok {
		c.SFCandidates = cl
	}
}

// Send is the upstream application API (spec §6): stamps security
// attributes, performs the auto-cell bootstrap check, and hands the frame
// to the MAC. Not itself part of the 6P transaction machine.
func (c *SixtopCore) Send(msg mac.Message) error {
	if msg.Dest.IsNone() {
		return fmt.Errorf("core: Send: destination required")
	}
	if err := c.ensureAutoCell(msg.Dest); err != nil {
		log.Printf("core: auto-cell install to %v failed: %v", msg.Dest, err)
	}

	pkt, err := c.Pool.Alloc()
	if err != nil {
		return fmt.Errorf("core: Send: %w", err)
	}
	pkt.L2Dest = msg.Dest
	pkt.L2Source = c.Self
	pkt.SecurityLevel = c.Security.SecurityLevel()
	pkt.KeyIndex = c.Security.KeyIndex()
	pkt.Body = msg.Payload
	pkt.HandToMAC()
	return c.Radio.Send(pkt)
}

// ensureAutoCell implements spec §4.3's auto-cell rule: on a send to a
// long64 peer with no pre-existing negotiated TX cell and no pre-existing
// auto TX cell to it, install a bootstrap auto TX cell derived from peer's
// address. Broadcast and non-long64 destinations get no auto cell.
func (c *SixtopCore) ensureAutoCell(peer mac.Address) error {
	if peer.IsBroadcast() || peer.Kind != mac.AddressLong64 {
		return nil
	}
	if c.Neighbors.HasNegotiatedTXCellTo(peer) {
		return nil
	}
	if _, info, ok := c.Schedule.EnumerateFrom(0, peer, mac.OptTX); ok && info.Auto {
		return nil
	}

	slot, channel := schedule.AutoCellOffsets(peer.Long64, c.frameLength, c.numChannels)
	if err := c.Schedule.AddCell(slot, channel, mac.OptTX, peer, mac.NoAddress(), true); err != nil {
		return err
	}
	c.Metrics.RecordAutoCell()
	return nil
}

// advanceSeqnum implements invariant I5: the per-link seqnum advances by
// exactly one, wrapping mod 256, only on a successfully completed
// transaction.
func advanceSeqnum(nt mac.NeighborTable, peer mac.Address) {
	nt.SetSeqnum(peer, nt.Seqnum(peer)+1)
}

// flipDirection swaps TX for RX and vice versa, keeping any other bits
// (SHARED, anycast) as they are; options with both TX and RX set, or
// neither, are returned unchanged. A responder always stores a cell's link
// type relative to itself, the opposite of the direction the requester
// named (spec §4.7: "cell options with the TX<->RX flip normalized relative
// to the requester's view").
func flipDirection(opts mac.CellOptions) mac.CellOptions {
	switch {
	case opts.Has(mac.OptTX) && !opts.Has(mac.OptRX):
		return (opts &^ mac.OptTX) | mac.OptRX
	case opts.Has(mac.OptRX) && !opts.Has(mac.OptTX):
		return (opts &^ mac.OptRX) | mac.OptTX
	default:
		return opts
	}
}

// armTimeout schedules the SIX2SIX_TIMEOUT_MS response-wait timer and
// records its id on the transaction context.
func (c *SixtopCore) armTimeout() {
	id := c.Timers.Schedule(Six2SixTimeoutMS, c.onTimeout)
	c.Txn.ArmTimeout(id)
}

// cancelTimeout cancels the armed response-wait timer, if any.
func (c *SixtopCore) cancelTimeout() {
	if c.Txn.TimeoutArmed() {
		c.Timers.Cancel(c.Txn.TimeoutTimerID)
	}
	c.Txn.ClearTimeout()
}

// onTimeout is the response-wait timer's callback (spec §4.5): fires
// SIX2SIX_TIMEOUT_MS after a request or a 3-step relay left the node with
// no response back.
func (c *SixtopCore) onTimeout() {
	if !c.Txn.TimeoutArmed() {
		return
	}
	c.Txn.ClearTimeout()

	result, err := fsm.Apply(c.Txn.State, fsm.EventTimeout, mac.CmdNone)
	if err != nil {
		log.Printf("core: fsm: %v", err)
		return
	}
	if result.Has(fsm.ActionClearFallback) {
		c.applyClearFallback(c.Txn.NeighborFirst)
	}
	c.outstandingRequest = nil
	c.Txn.Reset()
}

// DropQueuedSixtopPackets discards any sixtop-authored packet this node is
// still holding -- a queued-but-unsent 6P request, a response whose
// schedule mutation hasn't yet applied -- and resets the transaction back
// to IDLE (spec §4.8: when the EB preconditions are not met, "drop all
// sixtop-authored packets from the queue and clear busy flags"). Callers
// outside core (mgmt's EB/KA busy flags) clear their own flags themselves.
func (c *SixtopCore) DropQueuedSixtopPackets() {
	if c.outstandingRequest != nil {
		c.Pool.Free(c.outstandingRequest)
		c.outstandingRequest = nil
	}
	c.pending = nil
	c.outstandingResponses = 0
	c.cancelTimeout()
	c.Txn.Reset()
}
