// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"sync"
	"time"

	"sixtop/mac"
)

// realTimers implements mac.Timers over stdlib time.AfterFunc, the same
// timer primitive the gobfd reference wraps for its TX/detect timers.
type realTimers struct {
	mu     sync.Mutex
	nextID mac.TimerID
	timers map[mac.TimerID]*time.Timer
}

func newRealTimers() *realTimers {
	return &realTimers{timers: make(map[mac.TimerID]*time.Timer)}
}

func (t *realTimers) Schedule(d time.Duration, fn func()) mac.TimerID {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.mu.Unlock()

	timer := time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		fn()
	})

	t.mu.Lock()
	t.timers[id] = timer
	t.mu.Unlock()
	return id
}

func (t *realTimers) Cancel(id mac.TimerID) {
	t.mu.Lock()
	timer, ok := t.timers[id]
	delete(t.timers, id)
	t.mu.Unlock()
	if ok {
		timer.Stop()
	}
}
