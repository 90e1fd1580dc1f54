// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package sixp

import (
	"encoding/binary"
	"fmt"

	"sixtop/mac"
)

// RequestParams collects the fields PacketBuilder needs to frame one 6P
// request (spec §4.1).
type RequestParams struct {
	Command     mac.Command
	CellOptions mac.CellOptions

	// AddList holds the candidate/requested cells for ADD, and the
	// relocate-to cells for RELOCATE. Empty for a 3-step anycast ADD's
	// first hop.
	AddList mac.CellList
	// DelList holds the cells to remove for DELETE, and the
	// relocate-from cells for RELOCATE.
	DelList mac.CellList

	SFID     byte
	Seqnum   byte
	Metadata uint16

	ListOffset   uint16
	ListMaxCells uint16

	// SecondReceiver carries the 3-step anycast extension's side-channel
	// address (§4.5): n2's address on step 1's empty-list request, reused to
	// carry the initiator's address on step 2's candidate-list request.
	// Ignored unless CellOptions has OptAnycast set.
	SecondReceiver mac.Address
}

// BuildRequest frames a 6P request and allocates its buffer from pool, per
// spec §4.1's contract.
func BuildRequest(pool mac.BufferPool, p RequestParams) (*mac.PacketEntry, error) {
	if p.CellOptions != 0 && !p.CellOptions.Valid() {
		return nil, mac.ErrInvalidCellOptions
	}

	body, err := encodeRequestBody(p)
	if err != nil {
		return nil, err
	}

	pkt, err := buildFrame(pool, TypeRequest, byte(p.Command), p.SFID, p.Seqnum, p.Metadata, body, mac.KindSixtopRequest)
	if err != nil {
		return nil, err
	}
	pkt.Command = p.Command
	pkt.CellOptions = p.CellOptions
	pkt.FrameID = p.Metadata
	return pkt, nil
}

func encodeRequestBody(p RequestParams) ([]byte, error) {
	switch p.Command {
	case mac.CmdADD:
		body := []byte{byte(p.CellOptions), byte(p.AddList.ActiveCount())}
		body = append(body, EncodeCells(p.AddList)...)
		if p.CellOptions.Has(mac.OptAnycast) && !p.SecondReceiver.IsNone() {
			// Relay-context side channel for the 3-step extension: step 1
			// (empty list) carries the second receiver; step 2 (candidate
			// list) reuses the same trailer to carry the initiator's
			// address, since spec.md's 4-step handshake is explicitly
			// non-standard and defines no wire field for either.
			body = append(body, encodeSecondReceiver(p.SecondReceiver)...)
		}
		return body, nil
	case mac.CmdDELETE:
		body := []byte{byte(p.CellOptions), byte(p.DelList.ActiveCount())}
		return append(body, EncodeCells(p.DelList)...), nil
	case mac.CmdRELOCATE:
		body := []byte{byte(p.CellOptions), byte(p.DelList.ActiveCount())}
		body = append(body, EncodeCells(p.DelList)...)
		body = append(body, EncodeCells(p.AddList)...)
		return body, nil
	case mac.CmdCOUNT:
		return []byte{byte(p.CellOptions)}, nil
	case mac.CmdLIST:
		body := []byte{byte(p.CellOptions), 0}
		var off, max [2]byte
		binary.LittleEndian.PutUint16(off[:], p.ListOffset)
		binary.LittleEndian.PutUint16(max[:], p.ListMaxCells)
		body = append(body, off[:]...)
		body = append(body, max[:]...)
		return body, nil
	case mac.CmdCLEAR:
		return nil, nil
	default:
		return nil, fmt.Errorf("sixp: unknown command %v", p.Command)
	}
}

// ResponseParams collects the fields PacketBuilder needs to frame one 6P
// response (spec §4.1/§4.7). Command carries the request's command so the
// builder knows how to shape the body; it is not itself part of the wire
// response (the wire "code" field is ReturnCode).
type ResponseParams struct {
	ReturnCode mac.ReturnCode
	Command    mac.Command

	// Cells is the echoed accepted subset (ADD/DELETE/RELOCATE) or the
	// matched cells (LIST).
	Cells mac.CellList
	// Count is the COUNT response value.
	Count uint16

	SFID     byte
	Seqnum   byte
	Metadata uint16
}

// BuildResponse frames a 6P response and allocates its buffer from pool.
func BuildResponse(pool mac.BufferPool, p ResponseParams) (*mac.PacketEntry, error) {
	body := encodeResponseBody(p)
	pkt, err := buildFrame(pool, TypeResponse, byte(p.ReturnCode), p.SFID, p.Seqnum, p.Metadata, body, mac.KindSixtopResponse)
	if err != nil {
		return nil, err
	}
	pkt.ReturnCode = p.ReturnCode
	pkt.FrameID = p.Metadata
	return pkt, nil
}

func encodeResponseBody(p ResponseParams) []byte {
	switch p.Command {
	case mac.CmdADD, mac.CmdDELETE, mac.CmdRELOCATE, mac.CmdLIST:
		return EncodeCells(p.Cells)
	case mac.CmdCOUNT:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], p.Count)
		return b[:]
	default:
		return nil
	}
}

// buildFrame assembles the common IE wrapper + 6P header around body and
// allocates the backing PacketEntry. spec §4.1 describes prepending fields
// rightmost byte first; this Go implementation instead composes the whole
// frame front to back in one pass by appending.
func buildFrame(pool mac.BufferPool, typ PacketType, code, sfid, seqnum byte, metadata uint16, body []byte, kind mac.FrameKind) (*mac.PacketEntry, error) {
	pkt, err := pool.Alloc()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBuffer, err)
	}

	vt := (IANA6topVersion & 0x0F) | (byte(typ)&0x03)<<4

	frame := make([]byte, 2, headerLen+len(body))
	frame = append(frame, IANA6topSubIEID, vt, code, sfid, seqnum)
	frame = append(frame, byte(metadata), byte(metadata>>8))
	frame = append(frame, body...)

	ie := encodeIEHeader(len(frame) - 2)
	frame[0], frame[1] = ie[0], ie[1]

	if len(frame) > MaxFrameLen {
		pool.Free(pkt)
		return nil, ErrOverflow
	}

	pkt.Body = frame
	pkt.Kind = kind
	return pkt, nil
}

// encodeIEHeader packs the 2-byte IETF payload IE header: an 11-bit length,
// a 4-bit group ID, and a 1-bit payload-IE type flag (spec §4.1: "IETF IE
// header (2 bytes: len | group_id | ie_type)").
func encodeIEHeader(length int) [2]byte {
	h := uint16(length&0x7FF) | uint16(IANAIETFIEGroupID&0x0F)<<11 | uint16(IANAIETFIEType&0x01)<<15
	return [2]byte{byte(h), byte(h >> 8)}
}
