// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package schedule

import (
	"testing"

	"sixtop/mac"
)

func TestTranslateMatchesSpecTable(t *testing.T) {
	cases := []struct {
		opts     mac.CellOptions
		wantType LinkType
		shared   bool
		anycast  bool
		priority byte
	}{
		{mac.OptTX, LinkTX, false, false, 0},
		{mac.OptRX, LinkRX, false, false, 0},
		{mac.OptTX | mac.OptRX | mac.OptShared, LinkTXRX, true, false, 0},
		{mac.OptTX | mac.OptAnycast, LinkTX, false, true, 0},
		{mac.OptRX | mac.OptAnycast, LinkRX, false, true, 0},
		{mac.OptTX | mac.OptAnycast | mac.OptPriority, LinkTX, false, true, 1},
		{mac.OptRX | mac.OptAnycast | mac.OptPriority, LinkRX, false, true, 1},
	}
	for _, c := range cases {
		lt, shared, anycast, prio, err := Translate(c.opts)
		if err != nil {
			t.Fatalf("Translate(%v) error: %v", c.opts, err)
		}
		if lt != c.wantType || shared != c.shared || anycast != c.anycast || prio != c.priority {
			t.Errorf("Translate(%v) = (%v,%v,%v,%d), want (%v,%v,%v,%d)",
				c.opts, lt, shared, anycast, prio, c.wantType, c.shared, c.anycast, c.priority)
		}
	}
}

func TestTranslateRejectsInvalidCombination(t *testing.T) {
	if _, _, _, _, err := Translate(mac.OptRX | mac.OptShared); err != mac.ErrInvalidCellOptions {
		t.Errorf("err = %v, want ErrInvalidCellOptions", err)
	}
}

func TestAddRemoveRoundTrip(t *testing.T) {
	tbl := NewMemTable(101, 10)
	iface := NewIface(tbl)
	peer := mac.Short16Address(1)

	if !iface.IsSlotFree(3) {
		t.Fatal("slot 3 should start free")
	}
	if err := iface.AddCell(3, 11, mac.OptTX, peer, mac.NoAddress(), false); err != nil {
		t.Fatalf("AddCell: %v", err)
	}
	if iface.IsSlotFree(3) {
		t.Error("slot 3 should be occupied after AddCell")
	}

	free := iface.NumFreeEntries()
	if err := iface.RemoveCell(3, mac.OptTX, peer); err != nil {
		t.Fatalf("RemoveCell: %v", err)
	}
	if iface.NumFreeEntries() != free+1 {
		t.Errorf("NumFreeEntries after remove = %d, want %d", iface.NumFreeEntries(), free+1)
	}
	if !iface.IsSlotFree(3) {
		t.Error("slot 3 should be free again")
	}
}

func TestAreAvailableToScheduleDropsOccupiedAndExcess(t *testing.T) {
	tbl := NewMemTable(101, 10)
	iface := NewIface(tbl)
	peer := mac.Short16Address(2)
	if err := iface.AddCell(5, 1, mac.OptRX, peer, mac.NoAddress(), false); err != nil {
		t.Fatal(err)
	}

	list, _ := mac.NewCellList(
		mac.CellInfo{SlotOffset: 5, ChannelOffset: 1}, // occupied -> dropped
		mac.CellInfo{SlotOffset: 6, ChannelOffset: 2}, // free -> kept
		mac.CellInfo{SlotOffset: 7, ChannelOffset: 3}, // free but beyond n=1 -> dropped
	)

	out, ok := AreAvailableToSchedule(iface, 1, list)
	if !ok {
		t.Fatal("expected at least one surviving cell")
	}
	active := out.Active()
	if len(active) != 1 || active[0].SlotOffset != 6 {
		t.Errorf("active cells = %+v, want only slot 6", active)
	}
}

func TestAreAvailableToScheduleFailsWhenNoneSurvive(t *testing.T) {
	tbl := NewMemTable(101, 10)
	iface := NewIface(tbl)
	peer := mac.Short16Address(2)
	if err := iface.AddCell(5, 1, mac.OptTX, peer, mac.NoAddress(), false); err != nil {
		t.Fatal(err)
	}
	list, _ := mac.NewCellList(mac.CellInfo{SlotOffset: 5, ChannelOffset: 1})
	if _, ok := AreAvailableToSchedule(iface, 1, list); ok {
		t.Error("expected failure when the only candidate cell is occupied")
	}
}

func TestAreAvailableToRemoveRequiresMatchingLinkType(t *testing.T) {
	tbl := NewMemTable(101, 10)
	iface := NewIface(tbl)
	peer := mac.Short16Address(3)
	if err := iface.AddCell(8, 2, mac.OptTX, peer, mac.NoAddress(), false); err != nil {
		t.Fatal(err)
	}
	list, _ := mac.NewCellList(mac.CellInfo{SlotOffset: 8, ChannelOffset: 2})

	if _, ok := AreAvailableToRemove(iface, 1, list, peer, LinkRX); ok {
		t.Error("expected failure: installed cell is TX, requested RX")
	}
	if out, ok := AreAvailableToRemove(iface, 1, list, peer, LinkTX); !ok || out.ActiveCount() != 1 {
		t.Errorf("expected success removing matching TX cell, got ok=%v out=%+v", ok, out)
	}
}

func TestAutoCellOffsetsDeterministic(t *testing.T) {
	peer := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	s1, c1 := AutoCellOffsets(peer, 101, 16)
	s2, c2 := AutoCellOffsets(peer, 101, 16)
	if s1 != s2 || c1 != c2 {
		t.Errorf("AutoCellOffsets not deterministic: (%d,%d) vs (%d,%d)", s1, c1, s2, c2)
	}
	if s1 >= 101 || c1 >= 16 {
		t.Errorf("AutoCellOffsets out of range: slot=%d channel=%d", s1, c1)
	}
}
