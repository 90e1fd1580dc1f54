// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package sf

import (
	"testing"

	"sixtop/mac"
	"sixtop/schedule"
)

func TestMSFTranslateMetadata(t *testing.T) {
	m := NewMSF(1, 99, 16, schedule.NewIface(schedule.NewMemTable(101, 10)))
	if kind := m.TranslateMetadata(99); kind != MetadataFrameID {
		t.Errorf("TranslateMetadata(99) = %v, want MetadataFrameID", kind)
	}
	if kind := m.TranslateMetadata(100); kind != MetadataUnknown {
		t.Errorf("TranslateMetadata(100) = %v, want MetadataUnknown", kind)
	}
}

func TestMSFCandidateAddCellListSkipsOccupied(t *testing.T) {
	tbl := schedule.NewMemTable(10, 16)
	iface := schedule.NewIface(tbl)
	peer := mac.Short16Address(1)
	if err := iface.AddCell(0, 0, mac.OptTX, peer, mac.NoAddress(), false); err != nil {
		t.Fatal(err)
	}

	m := NewMSF(1, 99, 16, iface)
	cells, ok := m.CandidateAddCellList(2)
	if !ok {
		t.Fatal("expected candidates")
	}
	for _, c := range cells.Active() {
		if c.SlotOffset == 0 {
			t.Errorf("candidate list should not include occupied slot 0: %+v", cells.Active())
		}
	}
}

func TestMSFCandidateAddCellListNoFreeSlots(t *testing.T) {
	tbl := schedule.NewMemTable(1, 1)
	iface := schedule.NewIface(tbl)
	if err := iface.AddCell(0, 0, mac.OptTX, mac.Short16Address(1), mac.NoAddress(), false); err != nil {
		t.Fatal(err)
	}
	m := NewMSF(1, 99, 16, iface)
	if _, ok := m.CandidateAddCellList(1); ok {
		t.Error("expected no candidates when the whole frame is occupied")
	}
}

func TestMSFHandleRCErrorInvokesHook(t *testing.T) {
	var gotCode mac.ReturnCode
	var gotPeer mac.Address
	m := NewMSF(1, 99, 16, schedule.NewIface(schedule.NewMemTable(101, 10)))
	m.OnRCError = func(code mac.ReturnCode, peer mac.Address) {
		gotCode, gotPeer = code, peer
	}
	m.HandleRCError(mac.RCSeqNumErr, mac.Short16Address(7))
	if gotCode != mac.RCSeqNumErr || !gotPeer.Equal(mac.Short16Address(7)) {
		t.Errorf("hook got (%v,%v)", gotCode, gotPeer)
	}
}
