// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package sixp builds and parses 6P frames: the IETF payload IE wrapper, the
// 6top sub-IE, the 6P header, and the per-command body (spec §4.1/§4.2/§6).
//
// The enc/dec split mirrors the teacher's encoding/ngap package: a builder
// that appends fields onto a byte slice, and a parser that walks a byte
// slice from the front, both keyed off the same set of wire constants.
package sixp

// PacketType distinguishes a 6P REQUEST from a 6P RESPONSE, carried in the
// version+type+reserved byte (spec §4.1).
type PacketType byte

const (
	TypeRequest  PacketType = 0
	TypeResponse PacketType = 1
	typeReserved PacketType = 3
)

func (t PacketType) String() string {
	switch t {
	case TypeRequest:
		return "REQUEST"
	case TypeResponse:
		return "RESPONSE"
	default:
		return "RESERVED"
	}
}

// Wire constants, spec §4.1/§6. group_id/ie_type/sub-IE id values follow the
// IETF/IEEE 802.15.4 payload IE layout sixtop uses in practice: an 11-bit
// length, a 4-bit group ID, and a 1-bit payload-IE type flag packed into the
// 2-byte IE header, with the 6top sub-IE identified by a dedicated sub-IE id
// byte.
const (
	IANAIETFIEGroupID byte = 0x01
	IANAIETFIEType    byte = 0x01
	IANA6topSubIEID   byte = 0xCA
	IANA6topVersion   byte = 0
	IANA6topSFIDErr   byte = 0xFF
)

// MaxFrameLen bounds the total length of a built 6P frame (IE header through
// body), matching the 802.15.4 PHY payload budget the spec refers to in §6
// ("maximum payload IE length limits the practical cell-list length").
const MaxFrameLen = 127

// headerLen is the number of bytes PacketBuilder prepends before any
// command-specific body: 2 (IE header) + 1 (sub-IE id) + 1 (version/type) +
// 1 (code) + 1 (sfid) + 1 (seqnum) + 2 (metadata).
const headerLen = 9
