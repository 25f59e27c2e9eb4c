/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// TimerSignal is a timerfd-backed one-shot timer, grounded on
// the original's mux_timer. Most timeouts in this library attach directly
// to a Handle (SetTimeout/ClearTimeout); TimerSignal exists for callers
// that want a timer as a first-class signal in its own right, independent
// of any connection or listener.
type TimerSignal struct {
	BaseSignal
	fd     int
	onFire func()
}

// NewTimerSignal creates an unarmed timer; call Set to start it.
func NewTimerSignal(onFire func()) (*TimerSignal, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &TimerSignal{fd: fd, onFire: onFire}, nil
}

func (t *TimerSignal) Fd() int                       { return t.fd }
func (t *TimerSignal) InitialReadiness() Capability { return ReadFlag }
func (t *TimerSignal) WriteReady() ReadyResult       { return OpComplete }

// Set arms the timer to fire once after d.
func (t *TimerSignal) Set(d time.Duration) error {
	ts := unix.NsecToTimespec(d.Nanoseconds())
	spec := unix.ItimerSpec{Value: ts}
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

// ReadReady drains the timer's expiration counter and invokes onFire once
// per readiness event (coalescing any missed ticks, matching timerfd's own
// coalescing semantics).
func (t *TimerSignal) ReadReady() ReadyResult {
	var buf [8]byte
	n, err := unix.Read(t.fd, buf[:])
	if err != nil || n != len(buf) {
		return OpComplete
	}
	t.onFire()
	return OpComplete
}

func (t *TimerSignal) Detaching() { unix.Close(t.fd) }
