// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package core

import (
	"log"

	"sixtop/fsm"
	"sixtop/mac"
)

// NotifySendDone is the downstream completion API the MAC calls once pkt
// has either left the node or exhausted its retries (spec §6). Routing is
// by pkt.Kind so the 6P transaction machine and the management scheduler's
// EB/KA emission never need to know about each other.
func (c *SixtopCore) NotifySendDone(pkt *mac.PacketEntry, sendErr error) {
	switch pkt.Kind {
	case mac.KindSixtopRequest:
		c.notifyRequestSendDone(sendErr)
	case mac.KindSixtopResponse:
		c.notifyResponseSendDone(pkt, sendErr)
	case mac.KindEB:
		if c.OnEBSendDone != nil {
			c.OnEBSendDone(sendErr)
		}
	case mac.KindKA:
		if c.OnKASendDone != nil {
			c.OnKASendDone(sendErr)
		}
	}
}

// notifyRequestSendDone drives the WAIT_<OP>_REQ_SENDDONE -> * edge (spec
// §4.5), for both a normal outgoing request and the 3-step relay's step-2
// request (WAIT_ADDREQUEST accepts the same event; see the fsm transition
// table).
func (c *SixtopCore) notifyRequestSendDone(sendErr error) {
	ev := fsm.EventSendDoneOK
	if sendErr != nil {
		ev = fsm.EventSendDoneFail
	}

	result, err := fsm.Apply(c.Txn.State, ev, mac.CmdNone)
	if err != nil {
		log.Printf("core: fsm: %v", err)
		return
	}

	if result.Has(fsm.ActionArmTimeout) {
		c.armTimeout()
	}
	if result.Has(fsm.ActionClearFallback) {
		c.applyClearFallback(c.Txn.NeighborFirst)
	}

	c.Txn.State = result.Next
	if result.Next == fsm.StateIdle {
		c.outstandingRequest = nil
		c.Txn.Reset()
	}
}

// notifyResponseSendDone applies the schedule mutation ResponseHandler
// computed while building the response, now that send-done confirms it
// left the node (spec §4.7). pending is nil for LIST/COUNT (no mutation)
// and for the 3-step relay's step-4 response (whose mutation already
// applied when step 3 arrived, in handleAddRequestRelayResponse).
func (c *SixtopCore) notifyResponseSendDone(pkt *mac.PacketEntry, sendErr error) {
	c.outstandingResponses--

	pending := c.pending
	c.pending = nil
	if sendErr != nil || pending == nil {
		return
	}

	localOpts := flipDirection(pending.opts)
	advanceSeqnum(c.Neighbors, pending.peer)

	switch pending.command {
	case mac.CmdCLEAR:
		c.Schedule.RemoveAllTo(pending.peer)
	case mac.CmdADD:
		for _, cell := range pending.acceptedAdd.Active() {
			if err := c.Schedule.AddCell(cell.SlotOffset, cell.ChannelOffset, localOpts, pending.peer, mac.NoAddress(), false); err != nil {
				log.Printf("core: failed to install ADD cell to %v: %v", pending.peer, err)
			}
		}
	case mac.CmdDELETE:
		for _, cell := range pending.acceptedDel.Active() {
			if err := c.Schedule.RemoveCell(cell.SlotOffset, localOpts, pending.peer); err != nil {
				log.Printf("core: failed to remove DELETE cell to %v: %v", pending.peer, err)
			}
		}
	case mac.CmdRELOCATE:
		for _, cell := range pending.acceptedDel.Active() {
			if err := c.Schedule.RemoveCell(cell.SlotOffset, localOpts, pending.peer); err != nil {
				log.Printf("core: failed to remove RELOCATE source cell to %v: %v", pending.peer, err)
			}
		}
		for _, cell := range pending.acceptedAdd.Active() {
			if err := c.Schedule.AddCell(cell.SlotOffset, cell.ChannelOffset, localOpts, pending.peer, mac.NoAddress(), false); err != nil {
				log.Printf("core: failed to install RELOCATE cell to %v: %v", pending.peer, err)
			}
		}
	}

	if c.Metrics != nil {
		c.Metrics.SetScheduleFreeEntries(c.Schedule.NumFreeEntries())
	}
}
