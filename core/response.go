// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package core

import (
	"log"

	"sixtop/fsm"
	"sixtop/mac"
	"sixtop/schedule"
	"sixtop/sf"
	"sixtop/sixp"
)

// defaultCandidateCount is how many candidate cells an intermediate node
// asks the scheduling function for when relaying a 3-step anycast ADD
// (spec §4.5): the one-to-two shared TX cell this extension exists for
// needs exactly one.
const defaultCandidateCount = 1

// NotifyReceive is the MAC's upcall for an inbound frame (spec §6),
// dispatching to ResponseHandler's request or response half.
func (c *SixtopCore) NotifyReceive(pkt *mac.PacketEntry) {
	defer c.Pool.Free(pkt)

	frame, err := sixp.Parse(pkt)
	if err != nil {
		log.Printf("core: dropping malformed frame from %v: %v", pkt.L2Source, err)
		return
	}

	switch frame.Type {
	case sixp.TypeRequest:
		c.handleRequest(frame, pkt.L2Source)
	case sixp.TypeResponse:
		c.handleResponse(frame, pkt.L2Source)
	}
}

// handleRequest implements ResponseHandler's request half (spec §4.7).
func (c *SixtopCore) handleRequest(frame sixp.Frame, from mac.Address) {
	cmd := frame.Command()

	if c.outstandingResponses >= MaxSixPResponse {
		log.Printf("core: dropping %v request from %v: MAX6PRESPONSE reached", cmd, from)
		return
	}

	if rc := c.validateRequest(frame, cmd, from); rc != mac.RCSuccess {
		c.respond(from, cmd, rc, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	switch cmd {
	case mac.CmdADD:
		c.dispatchAdd(frame, from)
	case mac.CmdDELETE:
		c.dispatchDelete(frame, from)
	case mac.CmdRELOCATE:
		c.dispatchRelocate(frame, from)
	case mac.CmdCOUNT:
		c.dispatchCount(frame, from)
	case mac.CmdLIST:
		c.dispatchList(frame, from)
	case mac.CmdCLEAR:
		c.dispatchClear(frame, from)
	default:
		c.respond(from, cmd, mac.RCError, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
	}
}

// validateRequest runs the checks spec §4.7 lists in order, first failure
// wins: version, SFID, seqnum, state (with the ADD/3-step exception),
// metadata translation. CLEAR is exempt from the seqnum check (invariant
// I3, spec §3): it exists precisely to resync a desynced link, so a stale
// or mismatched seqnum must not block it.
func (c *SixtopCore) validateRequest(frame sixp.Frame, cmd mac.Command, from mac.Address) mac.ReturnCode {
	if frame.Version != sixp.IANA6topVersion {
		return mac.RCVersionErr
	}
	if c.SF == nil || frame.SFID != c.SF.GetSFID() {
		return mac.RCSFIDErr
	}
	if cmd != mac.CmdCLEAR && frame.Seqnum != c.Neighbors.Seqnum(from) {
		return mac.RCSeqNumErr
	}
	if !c.admitState(cmd, from) {
		return mac.RCReset
	}
	if c.SF.TranslateMetadata(frame.Metadata) != sf.MetadataFrameID {
		return mac.RCError
	}
	return mac.RCSuccess
}

// admitState is the state-entry gate spec §4.5 names: an inbound ADD
// request is accepted from IDLE unconditionally, or from WAIT_ADDREQUEST
// when the sender is the peer this node is already relaying for. Every
// other command requires IDLE.
func (c *SixtopCore) admitState(cmd mac.Command, from mac.Address) bool {
	if c.Txn.State == fsm.StateIdle {
		return true
	}
	return cmd == mac.CmdADD &&
		c.Txn.State == fsm.StateWaitAddRequest &&
		from.Equal(c.Txn.NeighborOngoing3Step)
}

// respond builds and sends one 6P response, tracking it against
// MAX6PRESPONSE until NotifySendDone reports it either delivered or failed.
func (c *SixtopCore) respond(to mac.Address, cmd mac.Command, rc mac.ReturnCode, sfid, seqnum byte, metadata uint16, cells mac.CellList, count uint16) {
	pkt, err := sixp.BuildResponse(c.Pool, sixp.ResponseParams{
		ReturnCode: rc,
		Command:    cmd,
		Cells:      cells,
		Count:      count,
		SFID:       sfid,
		Seqnum:     seqnum,
		Metadata:   metadata,
	})
	if err != nil {
		log.Printf("core: failed to build %v response to %v: %v", cmd, to, err)
		c.pending = nil
		return
	}
	pkt.L2Dest = to
	pkt.L2Source = c.Self
	pkt.SecurityLevel = c.Security.SecurityLevel()
	pkt.KeyIndex = c.Security.KeyIndex()
	pkt.HandToMAC()

	c.outstandingResponses++
	if err := c.Radio.Send(pkt); err != nil {
		log.Printf("core: failed to send %v response to %v: %v", cmd, to, err)
		c.outstandingResponses--
		c.pending = nil
		c.Pool.Free(pkt)
	}
}

func (c *SixtopCore) dispatchAdd(frame sixp.Frame, from mac.Address) {
	opts, cells, secondReceiver, err := sixp.DecodeADDBody(frame.Body)
	if err != nil {
		log.Printf("core: malformed ADD body from %v: %v", from, err)
		c.respond(from, mac.CmdADD, mac.RCError, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	if cells.ActiveCount() == 0 {
		c.dispatchAddRelay(frame, from, opts, secondReceiver)
		return
	}

	accepted, ok := schedule.AreAvailableToSchedule(c.Schedule, cells.ActiveCount(), cells)
	if !ok {
		c.respond(from, mac.CmdADD, mac.RCCellListErr, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	c.pending = &pendingMutation{command: mac.CmdADD, peer: from, opts: opts, acceptedAdd: accepted}
	c.respond(from, mac.CmdADD, mac.RCSuccess, frame.SFID, frame.Seqnum, frame.Metadata, accepted, 0)
}

// dispatchAddRelay handles step 1 (empty list) and relays step 2 toward
// secondReceiver (spec §4.5). Candidate selection failures and relay-send
// failures are answered immediately rather than left for the initiator to
// time out on, since nothing downstream of this node will ever produce a
// step 3/4 in either case.
func (c *SixtopCore) dispatchAddRelay(frame sixp.Frame, from mac.Address, opts mac.CellOptions, secondReceiver mac.Address) {
	if secondReceiver.IsNone() || c.SFCandidates == nil {
		c.respond(from, mac.CmdADD, mac.RCCellListErr, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}
	candidates, ok := c.SFCandidates.CandidateAddCellList(defaultCandidateCount)
	if !ok {
		c.respond(from, mac.CmdADD, mac.RCCellListErr, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	pkt, err := sixp.BuildRequest(c.Pool, sixp.RequestParams{
		Command:        mac.CmdADD,
		CellOptions:    opts | mac.OptPriority,
		AddList:        candidates,
		SFID:           frame.SFID,
		Seqnum:         c.Neighbors.Seqnum(secondReceiver),
		Metadata:       c.SF.GetMetadata(),
		SecondReceiver: from,
	})
	if err != nil {
		log.Printf("core: failed to build 3-step relay request to %v: %v", secondReceiver, err)
		c.respond(from, mac.CmdADD, mac.RCError, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}
	pkt.L2Dest = secondReceiver
	pkt.L2Source = c.Self
	pkt.SecurityLevel = c.Security.SecurityLevel()
	pkt.KeyIndex = c.Security.KeyIndex()
	pkt.HandToMAC()

	if err := c.Radio.Send(pkt); err != nil {
		log.Printf("core: failed to relay 3-step ADD to %v: %v", secondReceiver, err)
		c.Pool.Free(pkt)
		c.respond(from, mac.CmdADD, mac.RCError, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	c.outstandingResponses++
	c.relay = relayContext{sfid: frame.SFID, seqnum: frame.Seqnum, metadata: frame.Metadata}
	c.Txn = fsm.TxnContext{
		State:                fsm.StateWaitAddRequest,
		NeighborFirst:        from,
		NeighborSecond:       secondReceiver,
		NeighborOngoing3Step: from,
		CellOptions:          opts,
	}
	c.outstandingRequest = pkt
}

func (c *SixtopCore) dispatchDelete(frame sixp.Frame, from mac.Address) {
	opts, cells, _, err := sixp.DecodeCellsBody(frame.Body)
	if err != nil {
		log.Printf("core: malformed DELETE body from %v: %v", from, err)
		c.respond(from, mac.CmdDELETE, mac.RCError, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	linkType, _, _, _, err := schedule.Translate(flipDirection(opts))
	if err != nil {
		c.respond(from, mac.CmdDELETE, mac.RCError, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}
	accepted, ok := schedule.AreAvailableToRemove(c.Schedule, cells.ActiveCount(), cells, from, linkType)
	if !ok {
		c.respond(from, mac.CmdDELETE, mac.RCCellListErr, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	c.pending = &pendingMutation{command: mac.CmdDELETE, peer: from, opts: opts, acceptedDel: accepted}
	c.respond(from, mac.CmdDELETE, mac.RCSuccess, frame.SFID, frame.Seqnum, frame.Metadata, accepted, 0)
}

func (c *SixtopCore) dispatchRelocate(frame sixp.Frame, from mac.Address) {
	opts, delList, addList, err := sixp.DecodeRelocateBody(frame.Body)
	if err != nil {
		log.Printf("core: malformed RELOCATE body from %v: %v", from, err)
		c.respond(from, mac.CmdRELOCATE, mac.RCError, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	linkType, _, _, _, err := schedule.Translate(flipDirection(opts))
	if err != nil {
		c.respond(from, mac.CmdRELOCATE, mac.RCError, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}
	acceptedDel, ok := schedule.AreAvailableToRemove(c.Schedule, delList.ActiveCount(), delList, from, linkType)
	if !ok {
		c.respond(from, mac.CmdRELOCATE, mac.RCCellListErr, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}
	acceptedAdd, ok := schedule.AreAvailableToSchedule(c.Schedule, addList.ActiveCount(), addList)
	if !ok {
		c.respond(from, mac.CmdRELOCATE, mac.RCCellListErr, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	c.pending = &pendingMutation{command: mac.CmdRELOCATE, peer: from, opts: opts, acceptedDel: acceptedDel, acceptedAdd: acceptedAdd}
	// "echo add subset (schedule changes deferred to send-done)" (spec
	// §4.7): the delete side carries no wire feedback of its own.
	c.respond(from, mac.CmdRELOCATE, mac.RCSuccess, frame.SFID, frame.Seqnum, frame.Metadata, acceptedAdd, 0)
}

func (c *SixtopCore) dispatchCount(frame sixp.Frame, from mac.Address) {
	opts, err := sixp.DecodeCountBody(frame.Body)
	if err != nil {
		log.Printf("core: malformed COUNT body from %v: %v", from, err)
		c.respond(from, mac.CmdCOUNT, mac.RCError, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	var count uint16
	for slot, ok := uint16(0), true; ok; {
		var next uint16
		next, _, ok = c.Schedule.EnumerateFrom(slot, from, opts)
		if !ok {
			break
		}
		count++
		slot = next + 1
	}
	c.respond(from, mac.CmdCOUNT, mac.RCSuccess, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, count)
}

func (c *SixtopCore) dispatchList(frame sixp.Frame, from mac.Address) {
	opts, offset, max, err := sixp.DecodeListBody(frame.Body)
	if err != nil {
		log.Printf("core: malformed LIST body from %v: %v", from, err)
		c.respond(from, mac.CmdLIST, mac.RCError, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
		return
	}

	var matched mac.CellList
	rc := mac.RCEOL
	slot := offset
	for uint16(matched.Len()) < max {
		next, info, ok := c.Schedule.EnumerateFrom(slot, from, opts)
		if !ok {
			break
		}
		if err := matched.Add(mac.CellInfo{SlotOffset: next, ChannelOffset: info.ChannelOffset}); err != nil {
			break
		}
		slot = next + 1
	}
	if _, _, ok := c.Schedule.EnumerateFrom(slot, from, opts); ok {
		rc = mac.RCSuccess
	}

	c.respond(from, mac.CmdLIST, rc, frame.SFID, frame.Seqnum, frame.Metadata, matched, 0)
}

func (c *SixtopCore) dispatchClear(frame sixp.Frame, from mac.Address) {
	c.pending = &pendingMutation{command: mac.CmdCLEAR, peer: from}
	c.respond(from, mac.CmdCLEAR, mac.RCSuccess, frame.SFID, frame.Seqnum, frame.Metadata, mac.CellList{}, 0)
}

// handleAddRequestRelayResponse handles step 3 arriving at the intermediate
// node, installing its own half of the anycast pair and emitting step 4 to
// the initiator (spec §4.5).
func (c *SixtopCore) handleAddRequestRelayResponse(frame sixp.Frame, from mac.Address) {
	rc := frame.ReturnCode()
	cells, err := sixp.DecodeResponseCells(frame.Body)
	if err != nil {
		log.Printf("core: malformed 3-step ADD response from %v: %v", from, err)
		rc = mac.RCError
		cells = mac.CellList{}
	}

	if rc.OK() {
		localOpts := (flipDirection(c.Txn.CellOptions) &^ mac.OptPriority) | mac.OptAnycast
		for _, cell := range cells.Active() {
			if err := c.Schedule.AddCell(cell.SlotOffset, cell.ChannelOffset, localOpts, c.Txn.NeighborFirst, c.Txn.NeighborSecond, false); err != nil {
				log.Printf("core: failed to install 3-step ADD cell to %v/%v: %v", c.Txn.NeighborFirst, c.Txn.NeighborSecond, err)
			}
		}
		advanceSeqnum(c.Neighbors, from)
		if c.Metrics != nil {
			c.Metrics.SetScheduleFreeEntries(c.Schedule.NumFreeEntries())
		}
	}

	pkt, err := sixp.BuildResponse(c.Pool, sixp.ResponseParams{
		ReturnCode: rc,
		Command:    mac.CmdADD,
		Cells:      cells,
		SFID:       c.relay.sfid,
		Seqnum:     c.relay.seqnum,
		Metadata:   c.relay.metadata,
	})
	if err != nil {
		log.Printf("core: failed to build 3-step ADD step-4 response to %v: %v", c.Txn.NeighborFirst, err)
		c.outstandingResponses--
	} else {
		pkt.L2Dest = c.Txn.NeighborFirst
		pkt.L2Source = c.Self
		pkt.SecurityLevel = c.Security.SecurityLevel()
		pkt.KeyIndex = c.Security.KeyIndex()
		pkt.HandToMAC()
		if err := c.Radio.Send(pkt); err != nil {
			log.Printf("core: failed to send 3-step ADD step-4 response to %v: %v", c.Txn.NeighborFirst, err)
			c.outstandingResponses--
			c.Pool.Free(pkt)
		}
	}

	c.outstandingRequest = nil
	c.Txn.Reset()
}

// handleResponse implements ResponseHandler's response half (spec §4.7).
func (c *SixtopCore) handleResponse(frame sixp.Frame, from mac.Address) {
	if c.Txn.State == fsm.StateWaitAddRequest && !c.Txn.NeighborSecond.IsNone() && from.Equal(c.Txn.NeighborSecond) {
		c.handleAddRequestRelayResponse(frame, from)
		return
	}

	if c.Txn.State.Phase() != fsm.PhaseResponse || !from.Equal(c.Txn.NeighborFirst) {
		log.Printf("core: dropping unexpected response from %v in state %v", from, c.Txn.State)
		if c.outstandingRequest != nil && c.outstandingRequest.L2Dest.Equal(from) {
			c.outstandingRequest = nil
		}
		if rc := frame.ReturnCode(); rc == mac.RCSeqNumErr && c.SF != nil {
			c.SF.HandleRCError(rc, from)
		}
		return
	}

	cmd, _ := c.Txn.State.Command()
	rc := frame.ReturnCode()
	ev := fsm.EventResponseOtherRC
	if rc.OK() {
		ev = fsm.EventResponseSuccess
	}

	result, err := fsm.Apply(c.Txn.State, ev, mac.CmdNone)
	if err != nil {
		log.Printf("core: fsm: %v", err)
		return
	}

	if result.Has(fsm.ActionApplyChanges) {
		c.applyInitiatorChanges(cmd, frame, from)
		advanceSeqnum(c.Neighbors, from)
	}
	if result.Has(fsm.ActionInvokeRCError) && c.SF != nil {
		c.SF.HandleRCError(rc, from)
	}
	if result.Has(fsm.ActionCancelTimeout) {
		c.cancelTimeout()
	}
	if c.Metrics != nil {
		c.Metrics.RecordResult(rc)
	}

	c.outstandingRequest = nil
	c.Txn.Reset()
}

// applyInitiatorChanges installs or removes the cells a completed
// transaction negotiated, from the initiator's own (unflipped) point of
// view.
func (c *SixtopCore) applyInitiatorChanges(cmd mac.Command, frame sixp.Frame, from mac.Address) {
	switch cmd {
	case mac.CmdADD:
		cells, err := sixp.DecodeResponseCells(frame.Body)
		if err != nil {
			log.Printf("core: malformed ADD response from %v: %v", from, err)
			return
		}
		for _, cell := range cells.Active() {
			if err := c.Schedule.AddCell(cell.SlotOffset, cell.ChannelOffset, c.Txn.CellOptions, from, c.Txn.NeighborSecond, false); err != nil {
				log.Printf("core: failed to install negotiated ADD cell to %v: %v", from, err)
			}
		}
	case mac.CmdDELETE:
		cells, err := sixp.DecodeResponseCells(frame.Body)
		if err != nil {
			log.Printf("core: malformed DELETE response from %v: %v", from, err)
			return
		}
		for _, cell := range cells.Active() {
			if err := c.Schedule.RemoveCell(cell.SlotOffset, c.Txn.CellOptions, from); err != nil {
				log.Printf("core: failed to remove negotiated DELETE cell to %v: %v", from, err)
			}
		}
	case mac.CmdRELOCATE:
		// The delete side carries no echo (spec §4.7); a SUCCESS response
		// means the whole delete set was honored.
		for _, cell := range c.Txn.CellsToDelete.Active() {
			if err := c.Schedule.RemoveCell(cell.SlotOffset, c.Txn.CellOptions, from); err != nil {
				log.Printf("core: failed to remove negotiated RELOCATE source cell to %v: %v", from, err)
			}
		}
		cells, err := sixp.DecodeResponseCells(frame.Body)
		if err != nil {
			log.Printf("core: malformed RELOCATE response from %v: %v", from, err)
			return
		}
		for _, cell := range cells.Active() {
			if err := c.Schedule.AddCell(cell.SlotOffset, cell.ChannelOffset, c.Txn.CellOptions, from, mac.NoAddress(), false); err != nil {
				log.Printf("core: failed to install negotiated RELOCATE cell to %v: %v", from, err)
			}
		}
	case mac.CmdCLEAR:
		c.Schedule.RemoveAllTo(from)
	}
	if c.Metrics != nil {
		c.Metrics.SetScheduleFreeEntries(c.Schedule.NumFreeEntries())
	}
}

// applyClearFallback implements the CLEAR fallback rule (spec §4.5): remove
// every negotiated cell to peer locally and reset its per-link seqnum,
// unconditionally.
func (c *SixtopCore) applyClearFallback(peer mac.Address) {
	if peer.IsNone() {
		return
	}
	c.Schedule.RemoveAllTo(peer)
	c.Neighbors.SetSeqnum(peer, 0)
	if c.Metrics != nil {
		c.Metrics.SetScheduleFreeEntries(c.Schedule.NumFreeEntries())
	}
}
