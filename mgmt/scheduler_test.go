// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package mgmt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sixtop/core"
	"sixtop/mac"
	"sixtop/metrics"
	"sixtop/schedule"
)

type fakePool struct{}

func (fakePool) Alloc() (*mac.PacketEntry, error) { return mac.NewPacketEntry("test"), nil }
func (fakePool) Free(*mac.PacketEntry)            {}

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

type fakeNeighbors struct {
	seqnum     map[mac.Address]byte
	negotiated map[mac.Address]bool
	kaTarget   mac.Address
	hasKA      bool
	aged       int
}

func newFakeNeighbors() *fakeNeighbors {
	return &fakeNeighbors{seqnum: map[mac.Address]byte{}, negotiated: map[mac.Address]bool{}}
}

func (n *fakeNeighbors) Seqnum(peer mac.Address) byte       { return n.seqnum[peer] }
func (n *fakeNeighbors) SetSeqnum(peer mac.Address, s byte) { n.seqnum[peer] = s }
func (n *fakeNeighbors) KANeighbor(int) (mac.Address, bool) { return n.kaTarget, n.hasKA }
func (n *fakeNeighbors) HasNegotiatedTXCellTo(peer mac.Address) bool {
	return n.negotiated[peer]
}
func (n *fakeNeighbors) Age() { n.aged++ }

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

type fakeSync struct {
	synchronized, security, rank, dao bool
}

func (s fakeSync) Synchronized() bool       { return s.synchronized }
func (s fakeSync) SecurityConfigured() bool { return s.security }
func (s fakeSync) DAGRankSet() bool         { return s.rank }
func (s fakeSync) DAOSent() bool            { return s.dao }

func allSynced() fakeSync { return fakeSync{true, true, true, true} }

func newTestCore(radio *fakeRadio, neighbors *fakeNeighbors, timers *fakeTimers) *core.SixtopCore {
	sched := schedule.NewIface(schedule.NewMemTable(101, 16))
	return core.New(mac.Short16Address(1), sched, neighbors, fakePool{}, radio, timers, nil, metrics.New(), 101, 16)
}

func TestEBTimerSkipsWhenPreconditionsUnmet(t *testing.T) {
	radio := &fakeRadio{}
	timers := newFakeTimers()
	c := newTestCore(radio, newFakeNeighbors(), timers)
	m := New(c, fakeSync{}, 101, time.Millisecond)
	m.EBPortion = 1

	m.Start()
	timers.fire(m.ebTimerID)

	assert.Empty(t, radio.sent, "EB must not send while preconditions are unmet")
}

func TestEBTimerSendsWhenDue(t *testing.T) {
	radio := &fakeRadio{}
	timers := newFakeTimers()
	c := newTestCore(radio, newFakeNeighbors(), timers)
	m := New(c, allSynced(), 101, time.Millisecond)
	m.EBPortion = 1

	m.Start()
	timers.fire(m.ebTimerID)

	require.Len(t, radio.sent, 1)
	assert.Equal(t, mac.KindEB, radio.last().Kind)
	assert.True(t, m.ebBusy)

	c.NotifySendDone(radio.last(), nil)
	assert.False(t, m.ebBusy)
}

func TestEBBusySuppressesReentrantSend(t *testing.T) {
	radio := &fakeRadio{}
	timers := newFakeTimers()
	c := newTestCore(radio, newFakeNeighbors(), timers)
	m := New(c, allSynced(), 101, time.Millisecond)
	m.EBPortion = 1
	m.ebBusy = true

	m.Start()
	timers.fire(m.ebTimerID)

	assert.Empty(t, radio.sent, "must not send a second EB while one is outstanding")
}

func TestMaintenanceTickZeroAgesNeighbors(t *testing.T) {
	neighbors := newFakeNeighbors()
	radio := &fakeRadio{}
	timers := newFakeTimers()
	c := newTestCore(radio, neighbors, timers)
	m := New(c, allSynced(), 101, time.Millisecond)

	m.Start()
	timers.fire(m.maintTimerID)

	assert.Equal(t, 1, neighbors.aged)
	assert.Empty(t, radio.sent)
	assert.Equal(t, 1, m.maintCounter)
}

func TestMaintenanceTickSendsKAWhenNegotiatedCellExists(t *testing.T) {
	peer := mac.Short16Address(2)
	neighbors := newFakeNeighbors()
	neighbors.kaTarget = peer
	neighbors.hasKA = true
	neighbors.negotiated[peer] = true
	radio := &fakeRadio{}
	timers := newFakeTimers()
	c := newTestCore(radio, neighbors, timers)
	m := New(c, allSynced(), 101, time.Millisecond)
	m.maintCounter = 1

	timers.pending[42] = m.onMaintenanceTimer
	timers.fire(42)

	require.Len(t, radio.sent, 1)
	assert.Equal(t, mac.KindKA, radio.last().Kind)
	assert.Equal(t, peer, radio.last().L2Dest)
	assert.True(t, m.kaBusy)

	c.NotifySendDone(radio.last(), nil)
	assert.False(t, m.kaBusy)
}

func TestMaintenanceTickSkipsKAWithoutNegotiatedCell(t *testing.T) {
	peer := mac.Short16Address(2)
	neighbors := newFakeNeighbors()
	neighbors.kaTarget = peer
	neighbors.hasKA = true
	radio := &fakeRadio{}
	timers := newFakeTimers()
	c := newTestCore(radio, neighbors, timers)
	m := New(c, allSynced(), 101, time.Millisecond)
	m.maintCounter = 1

	timers.pending[42] = m.onMaintenanceTimer
	timers.fire(42)

	assert.Empty(t, radio.sent, "must skip KA when no negotiated TX cell exists")
}

func TestKASendFailureClearsBusyFlag(t *testing.T) {
	peer := mac.Short16Address(2)
	neighbors := newFakeNeighbors()
	neighbors.kaTarget = peer
	neighbors.hasKA = true
	neighbors.negotiated[peer] = true
	radio := &fakeRadio{err: errors.New("radio down")}
	timers := newFakeTimers()
	c := newTestCore(radio, neighbors, timers)
	m := New(c, allSynced(), 101, time.Millisecond)

	m.sendKA(peer)

	assert.False(t, m.kaBusy)
}

func TestBuildEBPatchesSlotframeLength(t *testing.T) {
	eb := BuildEB(300)
	got := uint16(eb[EBSlotframeLenOffset]) | uint16(eb[EBSlotframeLenOffset+1])<<8
	assert.Equal(t, uint16(300), got)
}
