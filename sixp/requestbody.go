// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package sixp

import (
	"encoding/binary"
	"fmt"

	"sixtop/mac"
)

// secondReceiverLen is the wire size of the second-receiver side channel:
// one kind byte (mac.AddressLong64, mac.AddressShort16, or 0 for "none")
// plus 8 address bytes (long64 in full, or short16 little-endian in the
// first two). The 3-step anycast ADD extension is explicitly non-standard
// (spec §1/§4.5), so there is no IETF-registered field for the intermediate
// node to learn the second receiver's identity; this implementation appends
// one after the cell list of the step-1/step-2 ADD request body.
const secondReceiverLen = 9

func encodeSecondReceiver(a mac.Address) []byte {
	out := make([]byte, secondReceiverLen)
	switch a.Kind {
	case mac.AddressLong64:
		out[0] = byte(mac.AddressLong64)
		copy(out[1:], a.Long64[:])
	case mac.AddressShort16:
		out[0] = byte(mac.AddressShort16)
		binary.LittleEndian.PutUint16(out[1:3], a.Short16)
	}
	return out
}

func decodeSecondReceiver(b []byte) mac.Address {
	if len(b) < secondReceiverLen {
		return mac.NoAddress()
	}
	switch b[0] {
	case byte(mac.AddressLong64):
		var v [8]byte
		copy(v[:], b[1:secondReceiverLen])
		return mac.Long64Address(v)
	case byte(mac.AddressShort16):
		return mac.Short16Address(binary.LittleEndian.Uint16(b[1:3]))
	default:
		return mac.NoAddress()
	}
}

// DecodeCellsBody decodes the cell_options|num_cells|cells layout shared by
// ADD/DELETE's request body (spec §4.1), returning whatever bytes follow
// the cell list.
func DecodeCellsBody(body []byte) (opts mac.CellOptions, cells mac.CellList, rest []byte, err error) {
	if len(body) < 2 {
		return 0, mac.CellList{}, nil, fmt.Errorf("%w: short cell-list body", ErrMalformed)
	}
	count := int(body[1])
	cells, err = DecodeCells(body[2:], count)
	if err != nil {
		return 0, mac.CellList{}, nil, err
	}
	return mac.CellOptions(body[0]), cells, body[2+count*cellWireLen:], nil
}

// DecodeADDBody decodes an ADD request body, including the optional
// trailing second-receiver side channel used by the 3-step anycast
// extension's step-1/step-2 requests.
func DecodeADDBody(body []byte) (opts mac.CellOptions, cells mac.CellList, secondReceiver mac.Address, err error) {
	opts, cells, rest, err := DecodeCellsBody(body)
	if err != nil {
		return 0, mac.CellList{}, mac.NoAddress(), err
	}
	return opts, cells, decodeSecondReceiver(rest), nil
}

// DecodeRelocateBody decodes RELOCATE's delete-list-then-add-list body
// (spec §4.1: "RELOCATE carries the delete list followed by the add
// list").
func DecodeRelocateBody(body []byte) (opts mac.CellOptions, delList, addList mac.CellList, err error) {
	opts, delList, rest, err := DecodeCellsBody(body)
	if err != nil {
		return 0, mac.CellList{}, mac.CellList{}, err
	}
	addList, err = DecodeCells(rest, len(rest)/cellWireLen)
	if err != nil {
		return 0, mac.CellList{}, mac.CellList{}, err
	}
	return opts, delList, addList, nil
}

// DecodeListBody decodes LIST's cell_options|reserved|offset|max body.
func DecodeListBody(body []byte) (opts mac.CellOptions, offset, max uint16, err error) {
	if len(body) < 6 {
		return 0, 0, 0, fmt.Errorf("%w: short LIST body", ErrMalformed)
	}
	return mac.CellOptions(body[0]), binary.LittleEndian.Uint16(body[2:4]), binary.LittleEndian.Uint16(body[4:6]), nil
}

// DecodeCountBody decodes COUNT's cell_options-only body.
func DecodeCountBody(body []byte) (mac.CellOptions, error) {
	if len(body) < 1 {
		return 0, fmt.Errorf("%w: short COUNT body", ErrMalformed)
	}
	return mac.CellOptions(body[0]), nil
}

// DecodeResponseCells decodes an ADD/DELETE/RELOCATE/LIST response body,
// which (unlike the request side) carries no explicit count: the cell
// count is implied by the body length (spec §4.1 encodeResponseBody).
func DecodeResponseCells(body []byte) (mac.CellList, error) {
	return DecodeCells(body, len(body)/cellWireLen)
}

// DecodeCountResponse decodes a COUNT response's 2-byte count.
func DecodeCountResponse(body []byte) (uint16, error) {
	if len(body) < 2 {
		return 0, fmt.Errorf("%w: short COUNT response", ErrMalformed)
	}
	return binary.LittleEndian.Uint16(body[:2]), nil
}
