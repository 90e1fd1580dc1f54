// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package schedule

import "hash/fnv"

// AutoCellOffsets derives a deterministic (slot, channel) pair from a peer's
// 64-bit address, per spec §4.3's auto-cell rule: "the sixtop send path
// installs an auto TX cell whose offsets are a deterministic hash of the
// peer's 64-bit address" so bootstrap traffic has forward progress before
// any 6P exchange completes.
func AutoCellOffsets(peer [8]byte, frameLength, numChannels uint16) (slot, channel uint16) {
	if frameLength == 0 {
		frameLength = 1
	}
	if numChannels == 0 {
		numChannels = 1
	}

	h := fnv.New32a()
	h.Write(peer[:])
	sum := h.Sum32()

	slot = uint16(sum % uint32(frameLength))
	channel = uint16((sum / uint32(frameLength)) % uint32(numChannels))
	return
}
