// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package sixp

import (
	"fmt"

	"sixtop/mac"
)

// cellWireLen is the wire size of one cell entry: slot_off (2B LE) +
// chan_off (2B LE), per spec §6.
const cellWireLen = 4

// EncodeCells serializes the active cells of cl, LSB-first per offset, in
// the 4-bytes-per-cell wire layout shared by ADD/DELETE/RELOCATE bodies and
// LIST responses (spec §4.1/§6).
func EncodeCells(cl mac.CellList) []byte {
	active := cl.Active()
	out := make([]byte, 0, len(active)*cellWireLen)
	for _, c := range active {
		out = append(out,
			byte(c.SlotOffset), byte(c.SlotOffset>>8),
			byte(c.ChannelOffset), byte(c.ChannelOffset>>8),
		)
	}
	return out
}

// DecodeCells parses n cells (each cellWireLen bytes, LSB-first) from the
// front of data, per spec §6.
func DecodeCells(data []byte, n int) (mac.CellList, error) {
	if n > mac.CellListMaxLen {
		return mac.CellList{}, fmt.Errorf("sixp: cell count %d exceeds CellListMaxLen %d", n, mac.CellListMaxLen)
	}
	need := n * cellWireLen
	if len(data) < need {
		return mac.CellList{}, fmt.Errorf("sixp: short cell list: need %d bytes, have %d", need, len(data))
	}
	var cl mac.CellList
	for i := 0; i < n; i++ {
		off := i * cellWireLen
		slot := uint16(data[off]) | uint16(data[off+1])<<8
		ch := uint16(data[off+2]) | uint16(data[off+3])<<8
		if err := cl.Add(mac.CellInfo{SlotOffset: slot, ChannelOffset: ch}); err != nil {
			return mac.CellList{}, err
		}
	}
	return cl, nil
}
