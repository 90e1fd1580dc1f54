// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package core

import (
	"fmt"

	"sixtop/fsm"
	"sixtop/mac"
	"sixtop/sixp"
)

// RequestParams collects sixtop_request's arguments (spec §4.6).
type RequestParams struct {
	Command mac.Command

	// NeighborFirst is the primary peer; required.
	NeighborFirst mac.Address
	// NeighborSecond is the anycast pair's second receiver. Set together
	// with an empty AddList to drive the 3-step extension (spec §4.5).
	NeighborSecond mac.Address

	CellOptions mac.CellOptions
	AddList     mac.CellList
	DelList     mac.CellList

	SFID         byte
	ListOffset   uint16
	ListMaxCells uint16
}

// SixtopRequest is the RequestOriginator entry point (spec §4.6).
// Preconditions: Txn.State == IDLE, NeighborFirst != None. On failure
// (ErrFail) state remains IDLE and any allocated buffer is returned to the
// pool. On success exactly one 6P request is enqueued to the MAC and
// Txn.State moves to WAIT_<OP>_REQ_SENDDONE.
func (c *SixtopCore) SixtopRequest(p RequestParams) error {
	if c.Txn.State != fsm.StateIdle {
		return fmt.Errorf("%w: transaction already in progress (state %v)", ErrFail, c.Txn.State)
	}
	if p.NeighborFirst.IsNone() {
		return fmt.Errorf("%w: neighbor_first is required", ErrFail)
	}
	next, ok := fsm.ReqSendDoneState(p.Command)
	if !ok {
		return fmt.Errorf("%w: unknown command %v", ErrFail, p.Command)
	}

	seqnum := c.Neighbors.Seqnum(p.NeighborFirst)
	pkt, err := sixp.BuildRequest(c.Pool, sixp.RequestParams{
		Command:        p.Command,
		CellOptions:    p.CellOptions,
		AddList:        p.AddList,
		DelList:        p.DelList,
		SFID:           p.SFID,
		Seqnum:         seqnum,
		Metadata:       c.SF.GetMetadata(),
		ListOffset:     p.ListOffset,
		ListMaxCells:   p.ListMaxCells,
		SecondReceiver: p.NeighborSecond,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFail, err)
	}
	pkt.L2Dest = p.NeighborFirst
	pkt.L2Source = c.Self
	pkt.SecurityLevel = c.Security.SecurityLevel()
	pkt.KeyIndex = c.Security.KeyIndex()

	// "no same-peer 6P request already queued (if one exists, it is
	// removed and replaced)" (spec §4.6). Invariant P4 admits at most one
	// transaction system-wide, so any outstanding request is necessarily
	// the one being replaced.
	if c.outstandingRequest != nil {
		c.Pool.Free(c.outstandingRequest)
		c.outstandingRequest = nil
	}

	pkt.HandToMAC()
	if err := c.Radio.Send(pkt); err != nil {
		c.Pool.Free(pkt)
		return fmt.Errorf("%w: %v", ErrFail, err)
	}

	c.Txn = fsm.TxnContext{
		State:          next,
		NeighborFirst:  p.NeighborFirst,
		NeighborSecond: p.NeighborSecond,
		CellOptions:    p.CellOptions,
		CellsToDelete:  p.DelList,
	}
	if p.Command == mac.CmdADD && !p.NeighborSecond.IsNone() && p.AddList.ActiveCount() == 0 {
		// Arms the intermediate-relay case on the responder side (spec
		// §4.6): this node is the initiator, not the intermediate, but the
		// source text names this field set here regardless — it doubles
		// as a record of which peer is fronting the 3-step handshake for
		// diagnostics and HandleRCError routing.
		c.Txn.NeighborOngoing3Step = p.NeighborFirst
	}
	c.outstandingRequest = pkt
	c.Metrics.RecordStart()
	return nil
}
