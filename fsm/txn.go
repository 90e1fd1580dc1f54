// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package fsm

import "sixtop/mac"

// TxnContext is the per-node transaction context of spec §3: the system
// admits at most one outstanding 6P transaction at a time (spec §8 P4), so
// this is a single value, not a table keyed by peer.
type TxnContext struct {
	State State

	// NeighborFirst is the primary peer of the transaction.
	NeighborFirst mac.Address
	// NeighborSecond is the secondary peer for anycast; NoAddress() when
	// unused.
	NeighborSecond mac.Address
	// NeighborClear is saved for retry of CLEAR on link failure.
	NeighborClear mac.Address
	// NeighborOngoing3Step is set iff this node is the intermediate in a
	// 3-step anycast handshake.
	NeighborOngoing3Step mac.Address

	CellOptions   mac.CellOptions
	CellsToDelete mac.CellList

	TimeoutTimerID mac.TimerID
	timeoutArmed   bool
}

// Reset returns the context to IDLE, clearing every field invariant I1
// requires to be clear there.
func (t *TxnContext) Reset() {
	*t = TxnContext{State: StateIdle}
}

// ArmTimeout records an armed timer id.
func (t *TxnContext) ArmTimeout(id mac.TimerID) {
	t.TimeoutTimerID = id
	t.timeoutArmed = true
}

// TimeoutArmed reports whether a response timeout is currently armed.
func (t *TxnContext) TimeoutArmed() bool { return t.timeoutArmed }

// ClearTimeout marks the timeout as no longer armed (the caller is
// responsible for actually cancelling it via mac.Timers).
func (t *TxnContext) ClearTimeout() {
	t.timeoutArmed = false
	t.TimeoutTimerID = 0
}

// CheckIdleInvariant reports whether invariant I1 holds: in IDLE,
// NeighborSecond and NeighborOngoing3Step are None and the timeout is
// unarmed.
func (t *TxnContext) CheckIdleInvariant() bool {
	if t.State != StateIdle {
		return true
	}
	return t.NeighborSecond.IsNone() && t.NeighborOngoing3Step.IsNone() && !t.timeoutArmed
}
