// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package mac

import "github.com/rs/xid"

// Owner tracks which component currently holds a PacketEntry buffer, per
// spec §3's creator/owner ownership tags. OwnerMAC is the sentinel written
// when a buffer is handed off for radio transmission.
type Owner uint8

const (
	OwnerNone Owner = iota
	OwnerSixtop
	OwnerMAC
)

func (o Owner) String() string {
	switch o {
	case OwnerSixtop:
		return "sixtop"
	case OwnerMAC:
		return "mac"
	default:
		return "none"
	}
}

// FrameKind distinguishes the four kinds of outbound frame sixtop produces,
// so NotifySendDone can route a completion to the right subsystem (the 6P
// transaction machine for requests/responses, the management scheduler for
// EB/KA) without either importing the other.
type FrameKind uint8

const (
	KindSixtopRequest FrameKind = iota
	KindSixtopResponse
	KindEB
	KindKA
)

func (k FrameKind) String() string {
	switch k {
	case KindSixtopRequest:
		return "sixtop-request"
	case KindSixtopResponse:
		return "sixtop-response"
	case KindEB:
		return "EB"
	case KindKA:
		return "KA"
	default:
		return "unknown"
	}
}

// PacketEntry is an owned packet buffer: mutable header/metadata fields plus
// a body, matching spec §3's PacketEntry. The
// command/return-code/frame-id/cell-options "shadow fields" let sixtop stamp
// its view of the frame onto the buffer without re-parsing it.
type PacketEntry struct {
	ID      xid.ID
	Creator string
	Owner   Owner
	Kind    FrameKind

	L2Source Address
	L2Dest   Address

	SecurityLevel byte
	KeyIndex      byte
	PayloadIE     bool
	RetriesLeft   uint8

	Command     Command
	ReturnCode  ReturnCode
	FrameID     uint16
	CellOptions CellOptions

	Body []byte
}

// NewPacketEntry stamps a fresh correlation ID and marks the buffer as
// sixtop-owned, mirroring the "allocate from the pool, then fill in" flow
// every builder in this module follows.
func NewPacketEntry(creator string) *PacketEntry {
	return &PacketEntry{
		ID:      xid.New(),
		Creator: creator,
		Owner:   OwnerSixtop,
	}
}

// HandToMAC writes the OwnerMAC sentinel, the spec's "ready for radio" mark.
func (p *PacketEntry) HandToMAC() { p.Owner = OwnerMAC }

// Message is the upstream application payload handed to Send (spec §6).
type Message struct {
	Dest     Address
	Payload  []byte
	Priority byte
}
