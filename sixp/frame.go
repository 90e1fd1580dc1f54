// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package sixp

import "sixtop/mac"

// Frame is the fully decoded view of a 6P packet, handed from PacketParser
// to the caller (spec §4.2). BodyLen/BodyPtr from the spec's C-shaped
// contract collapse into a plain Go slice here.
type Frame struct {
	Version  byte
	Type     PacketType
	Code     byte // mac.Command or mac.ReturnCode depending on Type
	SFID     byte
	Seqnum   byte
	Metadata uint16
	Body     []byte
}

// Command reinterprets Code as a request command. Only meaningful when
// Type == TypeRequest.
func (f Frame) Command() mac.Command { return mac.Command(f.Code) }

// ReturnCode reinterprets Code as a response return code. Only meaningful
// when Type == TypeResponse.
func (f Frame) ReturnCode() mac.ReturnCode { return mac.ReturnCode(f.Code) }
