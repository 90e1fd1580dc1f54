// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package schedule

import "sixtop/mac"

// Iface is the SchedulerIface component of spec §4.3: a typed adapter over
// a Table that speaks in 6P cell options rather than the table's own
// LinkType/shared/anycast triple.
type Iface struct {
	Table Table
}

func NewIface(t Table) *Iface { return &Iface{Table: t} }

func (i *Iface) IsSlotFree(slotOffset uint16) bool { return i.Table.IsSlotFree(slotOffset) }

// AddCell installs one cell under opts between the local node and neighbor1
// (and, for a 3-step anycast pair, neighbor2). auto marks a bootstrap
// auto-cell (spec §4.3's auto-cell rule).
func (i *Iface) AddCell(slotOffset, channelOffset uint16, opts mac.CellOptions, neighbor1, neighbor2 mac.Address, auto bool) error {
	linkType, shared, anycast, priority, err := Translate(opts)
	if err != nil {
		return err
	}
	return i.Table.AddSlot(slotOffset, SlotInfo{
		ChannelOffset: channelOffset,
		LinkType:      linkType,
		Shared:        shared,
		Anycast:       anycast,
		Priority:      priority,
		Auto:          auto,
		Neighbor:      neighbor1,
		Neighbor2:     neighbor2,
	})
}

// RemoveCell removes the cell at slotOffset if it matches opts's link type
// and belongs to neighbor.
func (i *Iface) RemoveCell(slotOffset uint16, opts mac.CellOptions, neighbor mac.Address) error {
	linkType, shared, _, _, err := Translate(opts)
	if err != nil {
		return err
	}
	return i.Table.RemoveSlot(slotOffset, linkType, shared, neighbor)
}

func (i *Iface) GetSlotInfo(slotOffset uint16) (SlotInfo, bool) { return i.Table.GetSlotInfo(slotOffset) }

func (i *Iface) EnumerateFrom(startOffset uint16, neighbor mac.Address, opts mac.CellOptions) (uint16, SlotInfo, bool) {
	return i.Table.EnumerateFrom(startOffset, neighbor, opts)
}

func (i *Iface) RemoveAllTo(neighbor mac.Address) int { return i.Table.RemoveAllTo(neighbor) }

func (i *Iface) NumFreeEntries() uint16 { return i.Table.NumFreeEntries() }

func (i *Iface) FrameLength() uint16 { return i.Table.FrameLength() }

// AreAvailableToSchedule implements spec §4.7's availability predicate for
// ADD: for each InUse cell in list, the slot must be free; cells that fail
// are dropped (InUse=false, retaining position per spec §3); the predicate
// succeeds if at least one cell survives and at most n survive (cells past
// the first n are also dropped). It never mutates the schedule itself —
// the caller installs the surviving cells separately once the response is
// confirmed to have gone out.
func AreAvailableToSchedule(i *Iface, n int, list mac.CellList) (mac.CellList, bool) {
	cells := list.All()
	kept := 0
	out := make([]mac.CellInfo, len(cells))
	for idx, c := range cells {
		out[idx] = c
		if !c.InUse {
			continue
		}
		if kept >= n || !i.IsSlotFree(c.SlotOffset) {
			out[idx].InUse = false
			continue
		}
		kept++
	}
	result, _ := mac.NewCellList(out...)
	return result, kept > 0
}

// AreAvailableToRemove implements spec §4.7's availability predicate for
// DELETE/RELOCATE's delete side: every surviving cell's installed link type
// must equal linkType, or the entire set fails (no partial removal).
func AreAvailableToRemove(i *Iface, n int, list mac.CellList, neighbor mac.Address, linkType LinkType) (mac.CellList, bool) {
	cells := list.Active()
	if len(cells) == 0 || len(cells) > n {
		return mac.CellList{}, false
	}
	for _, c := range cells {
		info, ok := i.GetSlotInfo(c.SlotOffset)
		if !ok || info.LinkType != linkType {
			return mac.CellList{}, false
		}
		if !info.Neighbor.Equal(neighbor) && !info.Neighbor2.Equal(neighbor) {
			return mac.CellList{}, false
		}
	}
	result, _ := mac.NewCellList(cells...)
	return result, true
}
