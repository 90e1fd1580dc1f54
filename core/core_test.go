// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package core

import (
	"errors"
	"testing"
	"time"

	"sixtop/fsm"
	"sixtop/mac"
	"sixtop/metrics"
	"sixtop/schedule"
	"sixtop/sf"
	"sixtop/sixp"
)

// buildADDRequestForTest frames an inbound ADD request as if peer had sent
// it to c, for feeding straight into NotifyReceive. It stamps the seqnum c
// currently expects from peer unless seqnum is overridden.
func buildADDRequestForTest(c *SixtopCore, peer mac.Address, opts mac.CellOptions, cells mac.CellList) (*mac.PacketEntry, error) {
	return buildADDRequestWithSeqnumForTest(c, peer, opts, cells, c.Neighbors.Seqnum(peer))
}

func buildADDRequestWithSeqnumForTest(c *SixtopCore, peer mac.Address, opts mac.CellOptions, cells mac.CellList, seqnum byte) (*mac.PacketEntry, error) {
	pkt, err := sixp.BuildRequest(fakePool{}, sixp.RequestParams{
		Command:     mac.CmdADD,
		CellOptions: opts,
		AddList:     cells,
		SFID:        c.SF.GetSFID(),
		Seqnum:      seqnum,
		Metadata:    c.SF.GetMetadata(),
	})
	if err != nil {
		return nil, err
	}
	pkt.L2Source = peer
	pkt.L2Dest = c.Self
	return pkt, nil
}

type fakePool struct{}

func (fakePool) Alloc() (*mac.PacketEntry, error) { return mac.NewPacketEntry("test"), nil }
func (fakePool) Free(*mac.PacketEntry)            {}

// fakeRadio records every packet handed to Send so a test can inspect what
// core tried to transmit, without an actual 802.15.4e slot engine.
type fakeRadio struct {
	sent []*mac.PacketEntry
	err  error
}

func (r *fakeRadio) Send(pkt *mac.PacketEntry) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, pkt)
	return nil
}

func (r *fakeRadio) last() *mac.PacketEntry {
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

// fakeNeighbors is a minimal in-memory NeighborTable sufficient to exercise
// seqnum bookkeeping without the real aging/KA-selection policy.
type fakeNeighbors struct {
	seqnum     map[mac.Address]byte
	negotiated map[mac.Address]bool
}

func newFakeNeighbors() *fakeNeighbors {
	return &fakeNeighbors{seqnum: map[mac.Address]byte{}, negotiated: map[mac.Address]bool{}}
}

func (n *fakeNeighbors) Seqnum(peer mac.Address) byte            { return n.seqnum[peer] }
func (n *fakeNeighbors) SetSeqnum(peer mac.Address, s byte)      { n.seqnum[peer] = s }
func (n *fakeNeighbors) KANeighbor(int) (mac.Address, bool)      { return mac.NoAddress(), false }
func (n *fakeNeighbors) HasNegotiatedTXCellTo(peer mac.Address) bool {
	return n.negotiated[peer]
}
func (n *fakeNeighbors) Age() {}

// fakeTimers runs nothing automatically; tests fire callbacks manually via
// the returned TimerID's recorded function.
type fakeTimers struct {
	nextID  mac.TimerID
	pending map[mac.TimerID]func()
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{pending: map[mac.TimerID]func(){}}
}

func (t *fakeTimers) Schedule(_ time.Duration, fn func()) mac.TimerID {
	t.nextID++
	t.pending[t.nextID] = fn
	return t.nextID
}

func (t *fakeTimers) Cancel(id mac.TimerID) { delete(t.pending, id) }

func (t *fakeTimers) fire(id mac.TimerID) {
	if fn, ok := t.pending[id]; ok {
		fn()
	}
}

func newTestCore(radio *fakeRadio, neighbors *fakeNeighbors, timers *fakeTimers, sched *schedule.Iface) *SixtopCore {
	if sched == nil {
		sched = schedule.NewIface(schedule.NewMemTable(101, 32))
	}
	c := New(mac.Short16Address(1), sched, neighbors, fakePool{}, radio, timers, nil, metrics.New(), 101, 16)
	c.RegisterSF(sf.NewMSF(7, 99, 16, sched))
	return c
}

func TestSixtopRequestArmsReqSendDoneState(t *testing.T) {
	radio := &fakeRadio{}
	c := newTestCore(radio, newFakeNeighbors(), newFakeTimers(), nil)
	peer := mac.Short16Address(2)

	addList, _ := mac.NewCellList(mac.CellInfo{SlotOffset: 5, ChannelOffset: 1})
	err := c.SixtopRequest(RequestParams{Command: mac.CmdADD, NeighborFirst: peer, CellOptions: mac.OptTX, AddList: addList})
	if err != nil {
		t.Fatalf("SixtopRequest: %v", err)
	}
	if c.Txn.State != fsm.StateWaitAddReqSendDone {
		t.Errorf("state = %v, want WAIT_ADD_REQ_SENDDONE", c.Txn.State)
	}
	if len(radio.sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(radio.sent))
	}
}

func TestSixtopRequestRejectsWhenBusy(t *testing.T) {
	c := newTestCore(&fakeRadio{}, newFakeNeighbors(), newFakeTimers(), nil)
	c.Txn.State = fsm.StateWaitAddResponse

	err := c.SixtopRequest(RequestParams{Command: mac.CmdDELETE, NeighborFirst: mac.Short16Address(2)})
	if !errors.Is(err, ErrFail) {
		t.Errorf("err = %v, want ErrFail", err)
	}
}

func TestSendDoneOKArmsTimeoutAndAdvancesToResponse(t *testing.T) {
	radio := &fakeRadio{}
	timers := newFakeTimers()
	c := newTestCore(radio, newFakeNeighbors(), timers, nil)
	peer := mac.Short16Address(2)

	if err := c.SixtopRequest(RequestParams{Command: mac.CmdCOUNT, NeighborFirst: peer}); err != nil {
		t.Fatal(err)
	}
	c.NotifySendDone(radio.last(), nil)

	if c.Txn.State != fsm.StateWaitCountResponse {
		t.Errorf("state = %v, want WAIT_COUNT_RESPONSE", c.Txn.State)
	}
	if !c.Txn.TimeoutArmed() {
		t.Error("expected timeout armed after send-done-ok")
	}
}

func TestResponseTimeoutReturnsIdle(t *testing.T) {
	radio := &fakeRadio{}
	timers := newFakeTimers()
	c := newTestCore(radio, newFakeNeighbors(), timers, nil)
	peer := mac.Short16Address(2)

	if err := c.SixtopRequest(RequestParams{Command: mac.CmdLIST, NeighborFirst: peer, ListMaxCells: 4}); err != nil {
		t.Fatal(err)
	}
	c.NotifySendDone(radio.last(), nil)
	id := c.Txn.TimeoutTimerID
	timers.fire(id)

	if c.Txn.State != fsm.StateIdle {
		t.Errorf("state = %v, want IDLE", c.Txn.State)
	}
}

func TestClearSendDoneFailTriggersLocalFallback(t *testing.T) {
	neighbors := newFakeNeighbors()
	sched := schedule.NewIface(schedule.NewMemTable(101, 32))
	peer := mac.Short16Address(2)
	if err := sched.AddCell(3, 1, mac.OptTX, peer, mac.NoAddress(), false); err != nil {
		t.Fatal(err)
	}
	neighbors.SetSeqnum(peer, 9)

	radio := &fakeRadio{}
	c := newTestCore(radio, neighbors, newFakeTimers(), sched)
	if err := c.SixtopRequest(RequestParams{Command: mac.CmdCLEAR, NeighborFirst: peer}); err != nil {
		t.Fatal(err)
	}

	c.NotifySendDone(radio.last(), errors.New("radio down"))

	if c.Txn.State != fsm.StateIdle {
		t.Errorf("state = %v, want IDLE", c.Txn.State)
	}
	if neighbors.Seqnum(peer) != 0 {
		t.Errorf("seqnum = %d, want reset to 0", neighbors.Seqnum(peer))
	}
	if !sched.IsSlotFree(3) {
		t.Error("expected CLEAR fallback to free slot 3")
	}
}

func TestResponderAddSuccessDefersInstallToSendDone(t *testing.T) {
	neighbors := newFakeNeighbors()
	sched := schedule.NewIface(schedule.NewMemTable(101, 32))
	peer := mac.Short16Address(2)
	radio := &fakeRadio{}
	c := newTestCore(radio, neighbors, newFakeTimers(), sched)

	addList, _ := mac.NewCellList(mac.CellInfo{SlotOffset: 9, ChannelOffset: 2})
	pkt, err := buildADDRequestForTest(c, peer, mac.OptTX, addList)
	if err != nil {
		t.Fatal(err)
	}

	c.NotifyReceive(pkt)

	if sched.IsSlotFree(9) {
		t.Fatal("cell should not yet be installed before response send-done")
	}
	resp := radio.last()
	if resp == nil || resp.ReturnCode != mac.RCSuccess {
		t.Fatalf("response = %+v, want SUCCESS", resp)
	}

	c.NotifySendDone(resp, nil)

	info, ok := sched.GetSlotInfo(9)
	if !ok {
		t.Fatal("expected cell installed after response send-done")
	}
	if info.LinkType != schedule.LinkRX {
		t.Errorf("LinkType = %v, want RX (flipped from the requester's TX)", info.LinkType)
	}
	if neighbors.Seqnum(peer) != 1 {
		t.Errorf("seqnum = %d, want 1 after successful response send-done", neighbors.Seqnum(peer))
	}
}

func TestResponderRejectsSeqNumMismatch(t *testing.T) {
	neighbors := newFakeNeighbors()
	neighbors.SetSeqnum(mac.Short16Address(2), 5)
	radio := &fakeRadio{}
	c := newTestCore(radio, neighbors, newFakeTimers(), nil)

	addList, _ := mac.NewCellList(mac.CellInfo{SlotOffset: 1, ChannelOffset: 0})
	pkt, err := buildADDRequestWithSeqnumForTest(c, mac.Short16Address(2), mac.OptTX, addList, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Frame carries seqnum 0, mismatching the neighbor table's stored value
	// of 5.
	c.NotifyReceive(pkt)

	resp := radio.last()
	if resp == nil || resp.ReturnCode != mac.RCSeqNumErr {
		t.Fatalf("response = %+v, want SEQNUM_ERR", resp)
	}
}

func TestAdmitStateRejectsConcurrentRequest(t *testing.T) {
	c := newTestCore(&fakeRadio{}, newFakeNeighbors(), newFakeTimers(), nil)
	c.Txn.State = fsm.StateWaitDeleteResponse
	c.Txn.NeighborFirst = mac.Short16Address(2)

	if c.admitState(mac.CmdADD, mac.Short16Address(3)) {
		t.Error("admitState should reject a new request mid-transaction")
	}
}
