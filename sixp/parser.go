// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package sixp

import (
	"fmt"

	"sixtop/mac"
)

// Parse validates the IE wrapper and 6P header of pkt's body and extracts
// the fields the caller needs, per spec §4.2's contract. The caller is
// expected to drop the packet silently (after logging) on error, per spec
// §4.2: "Rejections are logged and the packet is dropped silently."
func Parse(pkt *mac.PacketEntry) (Frame, error) {
	data := pkt.Body
	if len(data) < headerLen {
		return Frame{}, fmt.Errorf("%w: frame shorter than header (%d bytes)", ErrMalformed, len(data))
	}

	length, groupID, ieType := decodeIEHeader([2]byte{data[0], data[1]})
	if groupID != IANAIETFIEGroupID || ieType != IANAIETFIEType {
		return Frame{}, fmt.Errorf("%w: group_id=%#x type=%#x", ErrWrongIE, groupID, ieType)
	}
	if length != len(data)-2 {
		return Frame{}, fmt.Errorf("%w: IE length %d does not match body %d", ErrMalformed, length, len(data)-2)
	}

	if data[2] != IANA6topSubIEID {
		return Frame{}, fmt.Errorf("%w: sub-IE id %#x", ErrWrongIE, data[2])
	}

	vt := data[3]
	version := vt & 0x0F
	typ := PacketType((vt >> 4) & 0x03)
	if typ == typeReserved {
		return Frame{}, ErrReservedType
	}

	return Frame{
		Version:  version,
		Type:     typ,
		Code:     data[4],
		SFID:     data[5],
		Seqnum:   data[6],
		Metadata: uint16(data[7]) | uint16(data[8])<<8,
		Body:     data[headerLen:],
	}, nil
}

// decodeIEHeader is the inverse of encodeIEHeader.
func decodeIEHeader(b [2]byte) (length int, groupID, ieType byte) {
	h := uint16(b[0]) | uint16(b[1])<<8
	length = int(h & 0x7FF)
	groupID = byte((h >> 11) & 0x0F)
	ieType = byte((h >> 15) & 0x01)
	return
}
