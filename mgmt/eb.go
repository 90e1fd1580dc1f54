// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package mgmt

// Fixed EB payload IE template (spec §6 "EB frame"): the MAC patches the ASN
// and join priority in at transmit time via a pointer into this buffer, so
// BuildEB only ever touches the slotframe-length field. The layout mirrors
// the teacher's encGTPHeader: fill in a template, patch one field at a fixed
// byte offset.
var ebIEsBytestream = []byte{
	0x1e, 0x00, // MLME IE header placeholder, patched by the MAC framer
	0x00, 0x00, // EB_SLOTFRAME_LEN_OFFSET: slotframe length, little-endian
	0x00, 0x00, 0x00, 0x00, 0x00, // ASN, patched by the MAC via l2_ASNpayload
	0x00, // join priority, patched by the MAC
}

// EBSlotframeLenOffset is the byte offset BuildEB patches within the
// template returned by ebIEsBytestream.
const EBSlotframeLenOffset = 2

// BuildEB returns a fresh copy of the EB payload IE template with the
// current slotframe length patched in at EBSlotframeLenOffset. The ASN and
// join priority fields are left at their template zero value for the MAC to
// patch at transmit time.
func BuildEB(slotframeLength uint16) []byte {
	pdu := make([]byte, len(ebIEsBytestream))
	copy(pdu, ebIEsBytestream)
	pdu[EBSlotframeLenOffset] = byte(slotframeLength)
	pdu[EBSlotframeLenOffset+1] = byte(slotframeLength >> 8)
	return pdu
}
