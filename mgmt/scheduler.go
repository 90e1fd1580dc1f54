// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package mgmt is MgmtScheduler (spec §4.8): the EB and maintenance periodic
// timers that run alongside the 6P transaction machine in core, driven by
// the same mac.Timers abstraction.
package mgmt

import (
	"log"
	"math/rand"
	"time"

	"sixtop/core"
	"sixtop/mac"
)

// EBPortionDefault is EB_PORTION: on average one in this many EB-timer fires
// actually attempts a send.
const EBPortionDefault = 10

// MaintenancePeriod is MAINTENANCE_PERIOD: the maintenance counter's
// modulus. Tick 0 ages neighbors; every other tick attempts a KA.
const MaintenancePeriod = 30

const (
	maintenanceIntervalBaseMS   = 872
	maintenanceIntervalJitterMS = 255
)

// SyncState reports the RPL/join-state preconditions EB emission gates on:
// synchronized, security configured, DAG rank assigned, DAO sent. The
// routing layer's own state machine is out of scope (spec §1 Non-goals);
// sixtop only ever needs their current truth value.
type SyncState interface {
	Synchronized() bool
	SecurityConfigured() bool
	DAGRankSet() bool
	DAOSent() bool
}

// Scheduler owns the EB and maintenance timers for one SixtopCore.
type Scheduler struct {
	Core            *core.SixtopCore
	Sync            SyncState
	SlotframeLength uint16
	SlotDuration    time.Duration
	EBPortion       int

	ebBusy       bool
	kaBusy       bool
	maintCounter int

	ebTimerID    mac.TimerID
	maintTimerID mac.TimerID
}

// New builds a Scheduler bound to c and installs its EB/KA send-done hooks.
func New(c *core.SixtopCore, sync SyncState, slotframeLength uint16, slotDuration time.Duration) *Scheduler {
	m := &Scheduler{
		Core:            c,
		Sync:            sync,
		SlotframeLength: slotframeLength,
		SlotDuration:    slotDuration,
		EBPortion:       EBPortionDefault,
	}
	c.OnEBSendDone = m.onEBSendDone
	c.OnKASendDone = m.onKASendDone
	return m
}

// Start arms both periodic timers. Call once after construction.
func (m *Scheduler) Start() {
	m.armEBTimer()
	m.armMaintenanceTimer()
}

func (m *Scheduler) armEBTimer() {
	d := time.Duration(m.SlotframeLength) * m.SlotDuration
	m.ebTimerID = m.Core.Timers.Schedule(d, m.onEBTimer)
}

// periodMaintenance picks a fresh jittered maintenance-timer interval,
// uniform in [872, 872+255] ms.
func periodMaintenance() time.Duration {
	ms := maintenanceIntervalBaseMS + rand.Intn(maintenanceIntervalJitterMS+1)
	return time.Duration(ms) * time.Millisecond
}

func (m *Scheduler) armMaintenanceTimer() {
	m.maintTimerID = m.Core.Timers.Schedule(periodMaintenance(), m.onMaintenanceTimer)
}

// onEBTimer fires every SLOTFRAME_LENGTH*SLOTDURATION (spec §4.8): with
// probability 1/EBPortion, and only once every sync/security/rank/DAO
// precondition holds, attempt an EB send. Otherwise every sixtop-authored
// packet still queued is dropped and both busy flags are cleared.
func (m *Scheduler) onEBTimer() {
	m.armEBTimer()

	if m.ebBusy {
		return
	}
	if m.EBPortion <= 0 || rand.Intn(m.EBPortion) != 0 {
		return
	}
	if m.Sync == nil || !m.Sync.Synchronized() || !m.Sync.SecurityConfigured() ||
		!m.Sync.DAGRankSet() || !m.Sync.DAOSent() {
		m.Core.DropQueuedSixtopPackets()
		m.ebBusy = false
		m.kaBusy = false
		return
	}
	m.sendEB()
}

func (m *Scheduler) sendEB() {
	pkt, err := m.Core.Pool.Alloc()
	if err != nil {
		log.Printf("mgmt: EB alloc failed: %v", err)
		return
	}
	pkt.Kind = mac.KindEB
	pkt.L2Dest = mac.BroadcastAddress()
	pkt.L2Source = m.Core.Self
	pkt.SecurityLevel = m.Core.Security.SecurityLevel()
	pkt.KeyIndex = m.Core.Security.KeyIndex()
	pkt.Body = BuildEB(m.SlotframeLength)
	pkt.HandToMAC()

	m.ebBusy = true
	if err := m.Core.Radio.Send(pkt); err != nil {
		log.Printf("mgmt: EB send failed: %v", err)
		m.ebBusy = false
		m.Core.Pool.Free(pkt)
	}
}

func (m *Scheduler) onEBSendDone(sendErr error) {
	m.ebBusy = false
	if sendErr == nil {
		m.Core.Metrics.RecordEB()
	}
}

// onMaintenanceTimer fires every periodMaintenance (spec §4.8): tick 0 ages
// neighbors, ticks 1..MaintenancePeriod-1 attempt a KA.
func (m *Scheduler) onMaintenanceTimer() {
	m.armMaintenanceTimer()

	if m.maintCounter == 0 {
		m.Core.Neighbors.Age()
	} else {
		m.maybeSendKA()
	}
	m.maintCounter = (m.maintCounter + 1) % MaintenancePeriod
}

func (m *Scheduler) maybeSendKA() {
	if m.kaBusy {
		return
	}
	peer, ok := m.Core.Neighbors.KANeighbor(m.maintCounter)
	if !ok || !m.Core.Neighbors.HasNegotiatedTXCellTo(peer) {
		return
	}
	m.sendKA(peer)
}

func (m *Scheduler) sendKA(peer mac.Address) {
	pkt, err := m.Core.Pool.Alloc()
	if err != nil {
		log.Printf("mgmt: KA alloc failed: %v", err)
		return
	}
	pkt.Kind = mac.KindKA
	pkt.L2Dest = peer
	pkt.L2Source = m.Core.Self
	pkt.SecurityLevel = m.Core.Security.SecurityLevel()
	pkt.KeyIndex = m.Core.Security.KeyIndex()
	pkt.HandToMAC()

	m.kaBusy = true
	if err := m.Core.Radio.Send(pkt); err != nil {
		log.Printf("mgmt: KA send to %v failed: %v", peer, err)
		m.kaBusy = false
		m.Core.Pool.Free(pkt)
	}
}

func (m *Scheduler) onKASendDone(sendErr error) {
	m.kaBusy = false
	if sendErr == nil {
		m.Core.Metrics.RecordKA()
	}
}
