// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package sixp

import (
	"testing"

	"sixtop/mac"
)

type fakePool struct{}

func (fakePool) Alloc() (*mac.PacketEntry, error) { return mac.NewPacketEntry("test"), nil }
func (fakePool) Free(*mac.PacketEntry)            {}

func compareCells(t *testing.T, got, want []mac.CellInfo) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("cell count = %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range got {
		if !got[i].Equal(want[i]) {
			t.Errorf("cell[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuildParseRoundTripADD(t *testing.T) {
	addList, err := mac.NewCellList(mac.CellInfo{SlotOffset: 3, ChannelOffset: 11})
	if err != nil {
		t.Fatal(err)
	}

	pkt, err := BuildRequest(fakePool{}, RequestParams{
		Command:     mac.CmdADD,
		CellOptions: mac.OptTX,
		AddList:     addList,
		SFID:        1,
		Seqnum:      7,
		Metadata:    42,
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}

	frame, err := Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if frame.Type != TypeRequest {
		t.Errorf("Type = %v, want REQUEST", frame.Type)
	}
	if frame.Command() != mac.CmdADD {
		t.Errorf("Command = %v, want ADD", frame.Command())
	}
	if frame.SFID != 1 || frame.Seqnum != 7 || frame.Metadata != 42 {
		t.Errorf("header fields = %+v", frame)
	}

	opts := mac.CellOptions(frame.Body[0])
	if opts != mac.OptTX {
		t.Errorf("cell options = %v, want TX", opts)
	}
	numCells := int(frame.Body[1])
	if numCells != 1 {
		t.Fatalf("num_cells = %d, want 1", numCells)
	}
	cl, err := DecodeCells(frame.Body[2:], numCells)
	if err != nil {
		t.Fatalf("DecodeCells: %v", err)
	}
	compareCells(t, cl.Active(), addList.Active())
}

func TestBuildParseRoundTripClear(t *testing.T) {
	pkt, err := BuildRequest(fakePool{}, RequestParams{
		Command:  mac.CmdCLEAR,
		SFID:     9,
		Seqnum:   200,
		Metadata: 5,
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	frame, err := Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if frame.Command() != mac.CmdCLEAR {
		t.Errorf("Command = %v, want CLEAR", frame.Command())
	}
	if len(frame.Body) != 0 {
		t.Errorf("CLEAR body = %v, want empty", frame.Body)
	}
}

func TestBuildParseRoundTripResponse(t *testing.T) {
	cells, _ := mac.NewCellList(
		mac.CellInfo{SlotOffset: 2, ChannelOffset: 4},
		mac.CellInfo{SlotOffset: 5, ChannelOffset: 7},
	)
	pkt, err := BuildResponse(fakePool{}, ResponseParams{
		ReturnCode: mac.RCEOL,
		Command:    mac.CmdLIST,
		Cells:      cells,
		SFID:       1,
		Seqnum:     3,
		Metadata:   42,
	})
	if err != nil {
		t.Fatalf("BuildResponse: %v", err)
	}
	frame, err := Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if frame.Type != TypeResponse {
		t.Errorf("Type = %v, want RESPONSE", frame.Type)
	}
	if frame.ReturnCode() != mac.RCEOL {
		t.Errorf("ReturnCode = %v, want EOL", frame.ReturnCode())
	}
	got, err := DecodeCells(frame.Body, len(frame.Body)/4)
	if err != nil {
		t.Fatalf("DecodeCells: %v", err)
	}
	compareCells(t, got.Active(), cells.Active())
}

func TestParseRejectsReservedType(t *testing.T) {
	pkt, err := BuildRequest(fakePool{}, RequestParams{Command: mac.CmdCOUNT, SFID: 1, Seqnum: 1})
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the version+type byte to encode the reserved type (3).
	pkt.Body[3] = (pkt.Body[3] & 0x0F) | (3 << 4)
	if _, err := Parse(pkt); err != ErrReservedType {
		t.Errorf("Parse() err = %v, want ErrReservedType", err)
	}
}

func TestParseRejectsWrongSubIE(t *testing.T) {
	pkt, err := BuildRequest(fakePool{}, RequestParams{Command: mac.CmdCOUNT, SFID: 1, Seqnum: 1})
	if err != nil {
		t.Fatal(err)
	}
	pkt.Body[2] = 0x00
	if _, err := Parse(pkt); err == nil {
		t.Error("Parse() = nil error, want rejection for wrong sub-IE id")
	}
}

func TestBuildParseRoundTripADDEmptyListCarriesSecondReceiver(t *testing.T) {
	n2 := mac.Long64Address([8]byte{1, 2, 3, 4, 5, 6, 7, 8})
	pkt, err := BuildRequest(fakePool{}, RequestParams{
		Command:        mac.CmdADD,
		CellOptions:    mac.OptTX | mac.OptAnycast,
		SecondReceiver: n2,
		SFID:           1,
		Seqnum:         1,
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	frame, err := Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts, cells, secondReceiver, err := DecodeADDBody(frame.Body)
	if err != nil {
		t.Fatalf("DecodeADDBody: %v", err)
	}
	if opts != mac.OptTX|mac.OptAnycast {
		t.Errorf("opts = %v, want TX|ANYCAST", opts)
	}
	if cells.ActiveCount() != 0 {
		t.Errorf("cells = %v, want empty", cells.Active())
	}
	if !secondReceiver.Equal(n2) {
		t.Errorf("secondReceiver = %v, want %v", secondReceiver, n2)
	}
}

func TestInvalidCellOptionsRejected(t *testing.T) {
	_, err := BuildRequest(fakePool{}, RequestParams{
		Command:     mac.CmdADD,
		CellOptions: mac.OptRX | mac.OptShared, // not in the allowed set
		SFID:        1,
	})
	if err != mac.ErrInvalidCellOptions {
		t.Errorf("err = %v, want ErrInvalidCellOptions", err)
	}
}
