// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"fmt"

	"sixtop/mac"
)

// bufferPool is a bounded packet-buffer pool (spec §3/§5: the shared
// buffer pool whose exhaustion surfaces as a ResourceExhaustion error,
// spec §7). Capacity is fixed at construction; Alloc fails once every slot
// is checked out.
type bufferPool struct {
	tokens chan struct{}
}

func newBufferPool(capacity int) *bufferPool {
	p := &bufferPool{tokens: make(chan struct{}, capacity)}
	for i := 0; i < capacity; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

var errNoBuffer = fmt.Errorf("sixtop-sim: buffer pool exhausted")

func (p *bufferPool) Alloc() (*mac.PacketEntry, error) {
	select {
	case <-p.tokens:
		return mac.NewPacketEntry("sixtop-sim"), nil
	default:
		return nil, errNoBuffer
	}
}

func (p *bufferPool) Free(*mac.PacketEntry) {
	select {
	case p.tokens <- struct{}{}:
	default:
		// Pool already full; a double-free. Drop silently rather than
		// block or panic.
	}
}
