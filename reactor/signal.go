/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package reactor is an epoll-driven I/O multiplexer (C11) with signal
// lifecycle management (C12). It has no counterpart in the teacher
// repository, which serves HTTP with a blocking goroutine-per-connection
// model; this package is grounded entirely on original_source's
// net_mux.h/.cpp and net_signal.h/.cpp.
package reactor

import "time"

// Capability flags a signal's initial interest in read or write readiness.
type Capability int

const (
	ReadFlag Capability = 1 << iota
	WriteFlag
)

// ReadyResult is returned by a Signal's ReadReady/WriteReady to tell the
// Reactor what to do next.
type ReadyResult int

const (
	// OpIncomplete means the signal has more to do; the Reactor calls the
	// same readiness function again without waiting for a fresh epoll
	// event.
	OpIncomplete ReadyResult = iota
	// OpComplete means the signal drained all available work; the
	// Reactor won't call this readiness function again until the kernel
	// reports fresh readiness.
	OpComplete
	// SignalComplete means the signal is finished: the Reactor stops
	// polling it and releases its reference.
	SignalComplete
)

// Signal is anything the Reactor can drive: a listening socket, a
// connection, or a timer. Implementations normally embed BaseSignal, which
// receives the signal's *Handle at Reactor.Attach time, to call
// MarkForClose/SetTimeout from within their own readiness methods.
type Signal interface {
	// Fd returns the file descriptor to register with epoll. It is called
	// whenever the Reactor registers, modifies, or removes the fd, so it
	// must return the same value for the signal's whole lifetime.
	Fd() int
	// InitialReadiness returns the capability flags (ReadFlag/WriteFlag)
	// the signal should be polled for from the moment it is attached.
	InitialReadiness() Capability
	// ReadReady handles read readiness.
	ReadReady() ReadyResult
	// WriteReady handles write readiness.
	WriteReady() ReadyResult
	// TimedOut handles an expired timeout set via Handle.SetTimeout. The
	// zero-value implementation (BaseSignal) does nothing.
	TimedOut()
	// Detaching is called synchronously while the signal is being removed
	// from epoll, before any other goroutine can observe the removal.
	Detaching()
	// Detached is called once no Reactor goroutine holds a reference to
	// the signal any longer; it is the last callback the signal receives.
	Detached()
}

// BaseSignal supplies no-op defaults for TimedOut/Detaching/Detached,
// mirroring the original signal base class's default virtual methods, so
// concrete signals only override what they need.
type BaseSignal struct{ handle *Handle }

func (b *BaseSignal) TimedOut()  {}
func (b *BaseSignal) Detaching() {}
func (b *BaseSignal) Detached()  {}

func (b *BaseSignal) setHandle(h *Handle) { b.handle = h }

// MarkForClose requests that the Reactor close this signal asynchronously.
func (b *BaseSignal) MarkForClose() { b.handle.MarkForClose() }

// SetTimeout arms a one-shot timeout relative to now; TimedOut is called
// when it expires. A signal may have at most one timeout at a time;
// setting a new one replaces the old.
func (b *BaseSignal) SetTimeout(d time.Duration) { b.handle.SetTimeout(d) }

// ClearTimeout cancels a previously armed timeout, if any.
func (b *BaseSignal) ClearTimeout() { b.handle.ClearTimeout() }

// SetWriteInterest turns EPOLLOUT notifications on or off.
func (b *BaseSignal) SetWriteInterest(on bool) error { return b.handle.SetWriteInterest(on) }

// Handle lets a Signal ask its owning Reactor to close it or arm/clear its
// timeout, standing in for the original's protected mux_signal methods
// that relied on class inheritance.
type Handle struct {
	r   *Reactor
	ent *entry
}

// MarkForClose requests asynchronous closure of the owning signal: the
// Reactor will call Detaching then Detached and stop polling its fd.
func (h *Handle) MarkForClose() { h.r.markForClose(h.ent) }

// SetTimeout arms the signal's one-shot timeout relative to now.
func (h *Handle) SetTimeout(d time.Duration) { h.r.setTimeout(h.ent, time.Now().Add(d)) }

// ClearTimeout cancels the signal's timeout, if any.
func (h *Handle) ClearTimeout() { h.r.setTimeout(h.ent, time.Time{}) }

// SetWriteInterest turns EPOLLOUT notifications on or off for the signal,
// on top of the read readiness every signal keeps for its lifetime.
func (h *Handle) SetWriteInterest(on bool) error {
	return h.r.setWriteInterest(h.ent, on)
}

type handleSetter interface {
	setHandle(*Handle)
}
