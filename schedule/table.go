// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package schedule is the typed adapter to the external schedule table
// (spec §4.3): availability queries, cell add/remove, enumeration, and the
// auto-cell deterministic hash. The schedule table itself is an
// out-of-scope collaborator (spec §1); MemTable is an in-memory reference
// implementation sufficient for tests and the cmd/sixtop-sim demo.
package schedule

import (
	"fmt"
	"sync"

	"sixtop/mac"
)

// LinkType is the cell's negotiated direction (spec §4.3's translation
// table).
type LinkType byte

const (
	LinkTX LinkType = iota
	LinkRX
	LinkTXRX
)

func (t LinkType) String() string {
	switch t {
	case LinkTX:
		return "TX"
	case LinkRX:
		return "RX"
	case LinkTXRX:
		return "TXRX"
	default:
		return "?"
	}
}

// SlotInfo is what GetSlotInfo returns about one occupied slot.
type SlotInfo struct {
	ChannelOffset uint16
	LinkType      LinkType
	Shared        bool
	Anycast       bool
	Priority      byte
	Auto          bool
	Neighbor      mac.Address
	Neighbor2     mac.Address // second receiver of an anycast pair, if any
}

// Table is the schedule-table external collaborator's contract.
type Table interface {
	IsSlotFree(slotOffset uint16) bool
	AddSlot(slotOffset uint16, info SlotInfo) error
	RemoveSlot(slotOffset uint16, linkType LinkType, shared bool, neighbor mac.Address) error
	GetSlotInfo(slotOffset uint16) (SlotInfo, bool)
	// EnumerateFrom returns the next occupied slot at or after startOffset
	// on frame matching neighbor (if not None) and the TX/RX/anycast shape
	// implied by opts, or ok=false once exhausted.
	EnumerateFrom(startOffset uint16, neighbor mac.Address, opts mac.CellOptions) (slot uint16, info SlotInfo, ok bool)
	// RemoveAllTo removes every cell bound to neighbor, auto cells included,
	// and returns how many were removed (used by the CLEAR fallback, spec
	// §4.5).
	RemoveAllTo(neighbor mac.Address) int
	NumFreeEntries() uint16
	FrameLength() uint16
}

// ErrSlotOccupied is returned by AddSlot when the target slot is already in
// use.
var ErrSlotOccupied = fmt.Errorf("schedule: slot already occupied")

// ErrSlotNotFound is returned by RemoveSlot/GetSlotInfo for an unknown slot.
var ErrSlotNotFound = fmt.Errorf("schedule: slot not found")

// MemTable is an in-memory Table, modeled the way the teacher wraps a
// session's state in one struct with typed accessor methods (ngap.GNB,
// nas.UE) rather than exposing raw maps.
type MemTable struct {
	mu     sync.Mutex
	frame  uint16
	cap    uint16
	slots  map[uint16]SlotInfo
}

// NewMemTable builds an empty table for a slotframe of length frameLength
// with capacity total schedulable entries.
func NewMemTable(frameLength, capacity uint16) *MemTable {
	return &MemTable{
		frame: frameLength,
		cap:   capacity,
		slots: make(map[uint16]SlotInfo),
	}
}

func (m *MemTable) IsSlotFree(slotOffset uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, occupied := m.slots[slotOffset]
	return !occupied
}

func (m *MemTable) AddSlot(slotOffset uint16, info SlotInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, occupied := m.slots[slotOffset]; occupied {
		return ErrSlotOccupied
	}
	if uint16(len(m.slots)) >= m.cap {
		return fmt.Errorf("schedule: %w", ErrTableFull)
	}
	m.slots[slotOffset] = info
	return nil
}

func (m *MemTable) RemoveSlot(slotOffset uint16, linkType LinkType, shared bool, neighbor mac.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.slots[slotOffset]
	if !ok {
		return ErrSlotNotFound
	}
	if info.LinkType != linkType {
		return fmt.Errorf("schedule: link type mismatch: have %v, want %v", info.LinkType, linkType)
	}
	if !info.Neighbor.Equal(neighbor) && !info.Neighbor2.Equal(neighbor) {
		return fmt.Errorf("schedule: %w: slot %d not bound to %v", ErrSlotNotFound, slotOffset, neighbor)
	}
	delete(m.slots, slotOffset)
	return nil
}

func (m *MemTable) GetSlotInfo(slotOffset uint16) (SlotInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.slots[slotOffset]
	return info, ok
}

func (m *MemTable) EnumerateFrom(startOffset uint16, neighbor mac.Address, opts mac.CellOptions) (uint16, SlotInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wantLinkType, wantShared, wantAnycast, _, _ := Translate(opts)

	best := uint16(0)
	found := false
	var bestInfo SlotInfo
	for slot, info := range m.slots {
		if slot < startOffset {
			continue
		}
		if !neighbor.IsNone() && !info.Neighbor.Equal(neighbor) && !info.Neighbor2.Equal(neighbor) {
			continue
		}
		if opts != 0 && (info.LinkType != wantLinkType || info.Shared != wantShared || info.Anycast != wantAnycast) {
			continue
		}
		if !found || slot < best {
			best, bestInfo, found = slot, info, true
		}
	}
	return best, bestInfo, found
}

func (m *MemTable) RemoveAllTo(neighbor mac.Address) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for slot, info := range m.slots {
		if info.Neighbor.Equal(neighbor) || info.Neighbor2.Equal(neighbor) {
			delete(m.slots, slot)
			n++
		}
	}
	return n
}

func (m *MemTable) NumFreeEntries() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := uint16(len(m.slots))
	if used >= m.cap {
		return 0
	}
	return m.cap - used
}

func (m *MemTable) FrameLength() uint16 {
	return m.frame
}

// ErrTableFull is returned by AddSlot when the table has no free entries
// left (spec §4.7's BUSY condition).
var ErrTableFull = fmt.Errorf("schedule table full")
