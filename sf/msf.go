// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package sf

import (
	"log"

	"sixtop/mac"
	"sixtop/schedule"
)

// MSF is the minimal Scheduling Function named in spec §4.4: it implements
// the four mandatory Dispatch callbacks and the MSF-only
// CandidateAddCellList used by the 3-step anycast ADD extension.
//
// Modeled on the teacher's small, single-purpose structs (gtp.GTP's
// SetQosFlowID/SetExtensionHeader) rather than a generic "policy" framework.
type MSF struct {
	SFID        byte
	SlotframeID uint16
	NumChannels uint16

	Schedule *schedule.Iface

	// OnRCError, if set, is invoked after the default log line so the
	// caller that built the MSF can react to the error — e.g. by issuing a
	// CLEAR on SEQNUM_ERR, per spec §8 scenario 2. core.SixtopCore does not
	// set it.
	OnRCError func(code mac.ReturnCode, peer mac.Address)
}

// NewMSF builds a minimal SF bound to the given schedule table.
func NewMSF(sfid byte, slotframeID, numChannels uint16, sched *schedule.Iface) *MSF {
	return &MSF{SFID: sfid, SlotframeID: slotframeID, NumChannels: numChannels, Schedule: sched}
}

func (m *MSF) GetSFID() byte        { return m.SFID }
func (m *MSF) GetMetadata() uint16  { return m.SlotframeID }

func (m *MSF) TranslateMetadata(metadata uint16) MetadataKind {
	if metadata == m.SlotframeID {
		return MetadataFrameID
	}
	return MetadataUnknown
}

func (m *MSF) HandleRCError(code mac.ReturnCode, peer mac.Address) {
	log.Printf("sf/msf: received return code %v from %v", code, peer)
	if m.OnRCError != nil {
		m.OnRCError(code, peer)
	}
}

// CandidateAddCellList scans the schedule table in ascending slot order for
// up to count free slots and proposes them as ADD candidates, as the
// responder's step-2 relay in a 3-step anycast ADD needs (spec §4.5/§4.7).
// It returns ok=false if no free slot exists at all.
func (m *MSF) CandidateAddCellList(count int) (mac.CellList, bool) {
	frameLen := m.Schedule.FrameLength()
	var out []mac.CellInfo
	for slot := uint16(0); slot < frameLen && len(out) < count; slot++ {
		if m.Schedule.IsSlotFree(slot) {
			channel := slot % maxUint16(m.NumChannels, 1)
			out = append(out, mac.CellInfo{SlotOffset: slot, ChannelOffset: channel})
		}
	}
	if len(out) == 0 {
		return mac.CellList{}, false
	}
	cl, err := mac.NewCellList(out...)
	if err != nil {
		// More free slots were found than CellListMaxLen allows; keep only
		// what fits rather than fail the whole proposal.
		cl, _ = mac.NewCellList(out[:mac.CellListMaxLen]...)
	}
	return cl, true
}

func maxUint16(v, min uint16) uint16 {
	if v < min {
		return min
	}
	return v
}
