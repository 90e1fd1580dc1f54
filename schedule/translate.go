// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package schedule

import "sixtop/mac"

// Translate maps a 6P CellOptions combination to the schedule table's own
// cell type / shared / anycast / priority shape, per spec §4.3's
// translation table. Priority is only meaningful for anycast cells: it is 1
// when OptPriority is set (asserted on the step-2 request of a 3-step
// anycast ADD so the second receiver backs off by one slot on collision,
// spec §4.5) and 0 otherwise.
func Translate(opts mac.CellOptions) (linkType LinkType, shared, anycast bool, priority byte, err error) {
	if opts != 0 && !opts.Valid() {
		return 0, false, false, 0, mac.ErrInvalidCellOptions
	}

	switch {
	case opts == mac.OptTX:
		return LinkTX, false, false, 0, nil
	case opts == mac.OptRX:
		return LinkRX, false, false, 0, nil
	case opts == mac.OptTX|mac.OptRX|mac.OptShared:
		return LinkTXRX, true, false, 0, nil
	case opts&(mac.OptTX|mac.OptAnycast) == mac.OptTX|mac.OptAnycast:
		return LinkTX, false, true, priorityBit(opts), nil
	case opts&(mac.OptRX|mac.OptAnycast) == mac.OptRX|mac.OptAnycast:
		return LinkRX, false, true, priorityBit(opts), nil
	default:
		return 0, false, false, 0, mac.ErrInvalidCellOptions
	}
}

func priorityBit(opts mac.CellOptions) byte {
	if opts.Has(mac.OptPriority) {
		return 1
	}
	return 0
}
