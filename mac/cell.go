// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package mac

import "fmt"

// CellListMaxLen bounds the number of cells that fit in a single 6P cell
// list, per spec §6: the maximum payload IE length limits the practical
// cell-list length. 4 cells (16 bytes of cell list) matches the 6TiSCH
// reference implementation's IE budget at the default 802.15.4 MTU.
const CellListMaxLen = 4

// CellInfo is one scheduled (or formerly scheduled) slot, spec §3. Equality
// is by (SlotOffset, ChannelOffset); InUse marks whether the entry is still
// live or has been rejected/consumed and left in place to hold its index.
type CellInfo struct {
	SlotOffset    uint16
	ChannelOffset uint16
	InUse         bool
}

// Equal compares two cells by their offsets only, ignoring InUse.
func (c CellInfo) Equal(o CellInfo) bool {
	return c.SlotOffset == o.SlotOffset && c.ChannelOffset == o.ChannelOffset
}

// CellList is a fixed-capacity ordered sequence of at most CellListMaxLen
// CellInfo entries (spec §3). Unused entries have InUse=false but keep
// their position (and, after Drop, their offsets), matching the spec's
// "unused entries are marked in_use=false but retain their position" rule.
type CellList struct {
	cells [CellListMaxLen]CellInfo
	n     int
}

// ErrCellListFull is returned by Add once CellListMaxLen entries are held.
var ErrCellListFull = fmt.Errorf("mac: cell list full (max %d)", CellListMaxLen)

// NewCellList builds a CellList from up to CellListMaxLen entries.
func NewCellList(entries ...CellInfo) (CellList, error) {
	var cl CellList
	for _, e := range entries {
		if err := cl.Add(e); err != nil {
			return CellList{}, err
		}
	}
	return cl, nil
}

// Add appends a cell, marking it in use.
func (cl *CellList) Add(c CellInfo) error {
	if cl.n >= CellListMaxLen {
		return ErrCellListFull
	}
	c.InUse = true
	cl.cells[cl.n] = c
	cl.n++
	return nil
}

// Drop marks the cell at index i as no longer in use without changing its
// position, per the spec's "retain their position" rule.
func (cl *CellList) Drop(i int) {
	if i < 0 || i >= cl.n {
		return
	}
	cl.cells[i].InUse = false
}

// Len returns the number of slots occupied (including dropped ones).
func (cl CellList) Len() int { return cl.n }

// All returns every occupied slot, in order, including dropped ones.
func (cl CellList) All() []CellInfo {
	out := make([]CellInfo, cl.n)
	copy(out, cl.cells[:cl.n])
	return out
}

// Active returns only the entries still marked InUse, in order.
func (cl CellList) Active() []CellInfo {
	out := make([]CellInfo, 0, cl.n)
	for _, c := range cl.cells[:cl.n] {
		if c.InUse {
			out = append(out, c)
		}
	}
	return out
}

// ActiveCount returns the number of entries still marked InUse.
func (cl CellList) ActiveCount() int {
	n := 0
	for _, c := range cl.cells[:cl.n] {
		if c.InUse {
			n++
		}
	}
	return n
}

// CellOptions is the bitset of spec §3.
type CellOptions uint8

const (
	OptTX CellOptions = 1 << iota
	OptRX
	OptShared
	OptAnycast
	OptPriority
)

func (o CellOptions) Has(bit CellOptions) bool { return o&bit != 0 }

// Valid reports whether o is one of the combinations the protocol allows:
// {TX, RX, TX|RX|SHARED, TX|ANYCAST[|PRIORITY], RX|ANYCAST[|PRIORITY]}.
func (o CellOptions) Valid() bool {
	switch o {
	case OptTX, OptRX,
		OptTX | OptRX | OptShared,
		OptTX | OptAnycast, OptRX | OptAnycast,
		OptTX | OptAnycast | OptPriority, OptRX | OptAnycast | OptPriority:
		return true
	default:
		return false
	}
}

func (o CellOptions) String() string {
	if o == 0 {
		return "none"
	}
	s := ""
	add := func(bit CellOptions, name string) {
		if o.Has(bit) {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(OptTX, "TX")
	add(OptRX, "RX")
	add(OptShared, "SHARED")
	add(OptAnycast, "ANYCAST")
	add(OptPriority, "PRIORITY")
	return s
}

// ErrInvalidCellOptions is returned wherever a CellOptions combination
// outside CellOptions.Valid() is rejected as a protocol error.
var ErrInvalidCellOptions = fmt.Errorf("mac: invalid cell options combination")
