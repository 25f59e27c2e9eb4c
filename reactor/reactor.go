/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTerminated is returned by Attach and Run once the Reactor has begun
// terminating.
var ErrTerminated = errors.New("reactor: terminated")

type entryState int

const (
	stateInactive entryState = iota // waiting for an epoll event; not in the Ready Queue
	stateQueued                     // sitting in the Ready Queue
	stateInProgress                 // a goroutine is currently running its readiness methods
)

type entry struct {
	sig Signal

	state                                            entryState
	readReady, writeReady, timeoutReady, detachReady bool

	interest uint32 // currently armed epoll events, so SetWriteInterest can toggle EPOLLOUT alone

	timeoutSet bool
	timeout    time.Time

	gcCount int
}

func (e *entry) isWaiting() bool { return e.state == stateInactive }

type waitContext struct {
	waiting bool
	gcPos   int // index into Reactor.gcQueue this context still owes a decrement; -1 if none
}

// Reactor is a single- or multi-goroutine epoll-driven I/O multiplexer
// (C11), grounded on the original's shared_mux. It owns a Signal Map, a
// Ready Queue, a Timeout Queue, a Wait-Context List (one entry per
// goroutine currently blocked in epoll_wait), and a Garbage Collection
// list that lets a goroutine detaching a signal hand off the final
// release to whichever goroutine is not blocked in the kernel.
//
// The Wait-Context List shares the GC list's mutex; each of the other
// structures is guarded by its own mutex. Whenever a
// method needs more than one at once, it takes them in the fixed order
// Ready, Term, Timeout, GC, SigMap -- matching the source's lock-ordering
// discipline -- to rule out deadlock between Reactor goroutines running
// Run concurrently.
type Reactor struct {
	epollFd int
	ctrlFd  int

	termMu    sync.Mutex
	termStart bool
	threadCnt int
	termCond  *sync.Cond

	sigMapMu sync.Mutex
	sigMap   map[int]*entry // keyed by fd: epoll_event carries only an fd, not a pointer, in this package's arch

	readyMu    sync.Mutex
	readyQueue []*entry

	timeoutMu      sync.Mutex
	timeoutWaiting bool
	timeoutQueue   []*entry // kept sorted ascending by entry.timeout; a linear insert is fine at this scale

	gcMu        sync.Mutex
	gcQueue     []*entry
	waitCtxList []*waitContext
}

// New creates a Reactor with its own epoll instance and a control eventfd
// used to wake a blocked goroutine for termination or timeout rescheduling.
func New() (*Reactor, error) {
	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	ctrlFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epollFd)
		return nil, err
	}
	if err := eventfdWrite(ctrlFd, 1); err != nil {
		unix.Close(epollFd)
		unix.Close(ctrlFd)
		return nil, err
	}
	if err := unix.EpollCtl(epollFd, unix.EPOLL_CTL_ADD, ctrlFd, &unix.EpollEvent{Fd: int32(ctrlFd)}); err != nil {
		unix.Close(epollFd)
		unix.Close(ctrlFd)
		return nil, err
	}
	r := &Reactor{
		epollFd: epollFd,
		ctrlFd:  ctrlFd,
		sigMap:  map[int]*entry{},
	}
	r.termCond = sync.NewCond(&r.termMu)
	return r, nil
}

// eventfdWrite writes the eventfd counter; the kernel interprets the 8
// bytes in host-native order, which is little-endian on every arch this
// library targets (amd64, arm64).
func eventfdWrite(fd int, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := unix.Write(fd, buf[:])
	return err
}

// Attach adds sig to the reactor and begins polling it for its initial
// readiness capabilities. A signal must not be attached more than once.
func (r *Reactor) Attach(sig Signal) (*Handle, error) {
	r.termMu.Lock()
	if r.termStart {
		r.termMu.Unlock()
		return nil, ErrTerminated
	}
	ent := &entry{sig: sig}
	r.sigMapMu.Lock()
	r.sigMap[sig.Fd()] = ent
	r.sigMapMu.Unlock()
	r.termMu.Unlock()

	h := &Handle{r: r, ent: ent}
	if hs, ok := sig.(handleSetter); ok {
		hs.setHandle(h)
	}

	flags := sig.InitialReadiness()
	events := uint32(unix.EPOLLET)
	if flags&ReadFlag != 0 {
		events |= unix.EPOLLIN
	}
	if flags&WriteFlag != 0 {
		events |= unix.EPOLLOUT
	}
	ent.interest = events
	if err := unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_ADD, sig.Fd(), &unix.EpollEvent{Events: events, Fd: int32(sig.Fd())}); err != nil {
		r.sigMapMu.Lock()
		delete(r.sigMap, sig.Fd())
		r.sigMapMu.Unlock()
		return nil, err
	}
	return h, nil
}

// setWriteInterest toggles EPOLLOUT on an already-attached signal's epoll
// registration, leaving its other armed events untouched.
func (r *Reactor) setWriteInterest(ent *entry, on bool) error {
	events := ent.interest &^ uint32(unix.EPOLLOUT)
	if on {
		events |= unix.EPOLLOUT
	}
	if events == ent.interest {
		return nil
	}
	if err := r.rearm(ent, events); err != nil {
		return err
	}
	ent.interest = events
	return nil
}

func (r *Reactor) markForClose(ent *entry) {
	r.readyMu.Lock()
	ent.detachReady = true
	if ent.isWaiting() {
		r.readyQueuePush(ent)
	}
	r.readyMu.Unlock()
	r.wakeOne()
}

func (r *Reactor) setTimeout(ent *entry, t time.Time) {
	r.timeoutMu.Lock()
	if ent.timeoutSet {
		r.timeoutQueueRemove(ent)
	}
	ent.timeout = t
	ent.timeoutSet = !t.IsZero()
	earlier := ent.timeoutSet && (len(r.timeoutQueue) == 0 || t.Before(r.timeoutQueue[0].timeout))
	if ent.timeoutSet {
		r.timeoutQueueInsert(ent)
	}
	r.timeoutMu.Unlock()
	if earlier {
		r.wakeOne()
	}
}

func (r *Reactor) timeoutQueueInsert(ent *entry) {
	i := 0
	for i < len(r.timeoutQueue) && !ent.timeout.Before(r.timeoutQueue[i].timeout) {
		i++
	}
	r.timeoutQueue = append(r.timeoutQueue, nil)
	copy(r.timeoutQueue[i+1:], r.timeoutQueue[i:])
	r.timeoutQueue[i] = ent
}

func (r *Reactor) timeoutQueueRemove(ent *entry) {
	for i, e := range r.timeoutQueue {
		if e == ent {
			r.timeoutQueue = append(r.timeoutQueue[:i], r.timeoutQueue[i+1:]...)
			return
		}
	}
}

func (r *Reactor) readyQueuePush(ent *entry) {
	r.readyQueue = append(r.readyQueue, ent)
	ent.state = stateQueued
}

func (r *Reactor) readyQueuePop() *entry {
	ent := r.readyQueue[0]
	r.readyQueue = r.readyQueue[1:]
	return ent
}

// wakeOne arms the control eventfd for one more edge, waking exactly one
// Reactor goroutine blocked in epoll_wait.
func (r *Reactor) wakeOne() {
	unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_MOD, r.ctrlFd, &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(r.ctrlFd)})
}

// rearm changes a signal's registered epoll interest, used to turn write
// readiness notifications on or off as a connection's send queue fills
// and drains.
func (r *Reactor) rearm(ent *entry, events uint32) error {
	return unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_MOD, ent.sig.Fd(), &unix.EpollEvent{Events: events, Fd: int32(ent.sig.Fd())})
}

// Run drives the reactor in the calling goroutine until Terminate is
// called and every attached signal has detached. Run may be called from
// multiple goroutines simultaneously to split the I/O load between them.
func (r *Reactor) Run() error {
	r.termMu.Lock()
	if r.termStart {
		r.termMu.Unlock()
		return ErrTerminated
	}
	r.threadCnt++
	r.termMu.Unlock()
	defer func() {
		r.termMu.Lock()
		r.threadCnt--
		r.termCond.Broadcast()
		r.termMu.Unlock()
	}()

	ctx := &waitContext{gcPos: -1}
	to := -1
	term := false

	for {
		r.gcMu.Lock()
		r.waitCtxList = append(r.waitCtxList, ctx)
		ctx.waiting = true
		r.gcMu.Unlock()

		localTimeoutWaiting := false
		if !term && to == -1 {
			r.timeoutMu.Lock()
			if len(r.timeoutQueue) > 0 && !r.timeoutWaiting {
				r.timeoutWaiting = true
				deadline := r.timeoutQueue[0].timeout
				r.timeoutMu.Unlock()
				localTimeoutWaiting = true
				now := time.Now()
				if !now.Before(deadline) {
					to = 0
				} else {
					to = int(deadline.Sub(now) / time.Millisecond)
				}
			} else {
				r.timeoutMu.Unlock()
			}
		}

		var events [1]unix.EpollEvent
		numEvents := 0
		if !term {
			var err error
			for {
				numEvents, err = unix.EpollWait(r.epollFd, events[:], to)
				if err == unix.EINTR {
					continue
				}
				break
			}
			if err != nil {
				return err
			}
		}

		for i := 0; i < numEvents; i++ {
			fd := int(events[i].Fd)
			if fd == r.ctrlFd {
				r.termMu.Lock()
				if r.termStart {
					term = true
					r.wakeOne()
				}
				r.termMu.Unlock()
				continue
			}
			r.sigMapMu.Lock()
			ent, ok := r.sigMap[fd]
			r.sigMapMu.Unlock()
			if !ok {
				continue
			}
			r.readyMu.Lock()
			if ent.isWaiting() {
				r.readyQueuePush(ent)
			}
			if events[i].Events&unix.EPOLLIN != 0 {
				ent.readReady = true
			}
			if events[i].Events&unix.EPOLLOUT != 0 {
				ent.writeReady = true
			}
			r.readyMu.Unlock()
		}

		now := time.Now()
		r.timeoutMu.Lock()
		if localTimeoutWaiting {
			r.timeoutWaiting = false
		}
		for len(r.timeoutQueue) > 0 && !now.Before(r.timeoutQueue[0].timeout) {
			ent := r.timeoutQueue[0]
			r.timeoutQueue = r.timeoutQueue[1:]
			ent.timeoutSet = false
			r.timeoutMu.Unlock()
			r.readyMu.Lock()
			ent.timeoutReady = true
			if ent.isWaiting() {
				r.readyQueuePush(ent)
			}
			r.readyMu.Unlock()
			r.timeoutMu.Lock()
		}
		r.timeoutMu.Unlock()

		r.gcMu.Lock()
		for ctx.gcPos >= 0 && ctx.gcPos < len(r.gcQueue) {
			ent := r.gcQueue[ctx.gcPos]
			ent.gcCount--
			if ent.gcCount == 0 {
				r.gcMu.Unlock()
				r.releaseSignal(ent)
				r.gcMu.Lock()
				r.gcQueue = append(r.gcQueue[:ctx.gcPos], r.gcQueue[ctx.gcPos+1:]...)
			} else {
				ctx.gcPos++
			}
		}
		ctx.gcPos = -1
		for i, c := range r.waitCtxList {
			if c == ctx {
				r.waitCtxList = append(r.waitCtxList[:i], r.waitCtxList[i+1:]...)
				break
			}
		}
		ctx.waiting = false
		r.gcMu.Unlock()

		const maxHandle = 32
		handled := 0
		r.readyMu.Lock()
		for handled < maxHandle && len(r.readyQueue) > 0 {
			ent := r.readyQueuePop()
			handled++
			ent.state = stateInProgress

			if ent.readReady && !ent.detachReady {
				ent.readReady = false
				r.readyMu.Unlock()
				res := ent.sig.ReadReady()
				r.readyMu.Lock()
				switch res {
				case OpIncomplete:
					ent.readReady = true
				case SignalComplete:
					ent.detachReady = true
				}
			}
			if ent.writeReady && !ent.detachReady {
				ent.writeReady = false
				r.readyMu.Unlock()
				res := ent.sig.WriteReady()
				r.readyMu.Lock()
				switch res {
				case OpIncomplete:
					ent.writeReady = true
				case SignalComplete:
					ent.detachReady = true
				}
			}
			if ent.timeoutReady && !ent.detachReady {
				ent.timeoutReady = false
				r.readyMu.Unlock()
				ent.sig.TimedOut()
				r.readyMu.Lock()
			}
			if ent.detachReady {
				r.readyMu.Unlock()
				r.detachSignalEntry(ent)
				r.readyMu.Lock()
				continue
			}
			if ent.readReady || ent.writeReady || ent.timeoutReady {
				r.readyQueuePush(ent)
			} else {
				ent.state = stateInactive
			}
		}
		readyEmpty := len(r.readyQueue) == 0
		r.readyMu.Unlock()

		if term && readyEmpty {
			return nil
		}
		if !readyEmpty {
			to = 0
		} else {
			to = -1
		}
	}
}

func (r *Reactor) detachSignalEntry(ent *entry) {
	ent.sig.Detaching()
	unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_DEL, ent.sig.Fd(), nil)

	r.gcMu.Lock()
	if len(r.waitCtxList) == 0 {
		r.gcMu.Unlock()
		r.releaseSignal(ent)
		return
	}
	r.gcQueue = append(r.gcQueue, ent)
	pos := len(r.gcQueue) - 1
	for _, ctx := range r.waitCtxList {
		ent.gcCount++
		if ctx.gcPos < 0 {
			ctx.gcPos = pos
		}
	}
	r.gcMu.Unlock()
}

func (r *Reactor) releaseSignal(ent *entry) {
	r.timeoutMu.Lock()
	if ent.timeoutSet {
		r.timeoutQueueRemove(ent)
	}
	r.timeoutMu.Unlock()

	r.sigMapMu.Lock()
	delete(r.sigMap, ent.sig.Fd())
	r.sigMapMu.Unlock()

	ent.sig.Detached()
}

// Terminate marks every attached signal for closure and stops the reactor
// once all of them have detached. Once terminated, a Reactor cannot be
// restarted and Attach fails with ErrTerminated.
func (r *Reactor) Terminate() {
	r.readyMu.Lock()
	r.termMu.Lock()
	if r.termStart {
		r.termMu.Unlock()
		r.readyMu.Unlock()
		return
	}
	r.termStart = true
	r.sigMapMu.Lock()
	for _, ent := range r.sigMap {
		ent.detachReady = true
		if ent.isWaiting() {
			r.readyQueuePush(ent)
		}
	}
	r.sigMapMu.Unlock()

	if r.threadCnt == 0 {
		for len(r.readyQueue) > 0 {
			ent := r.readyQueuePop()
			r.termMu.Unlock()
			r.readyMu.Unlock()
			r.detachSignalEntry(ent)
			r.readyMu.Lock()
			r.termMu.Lock()
		}
		r.termCond.Broadcast()
		r.termMu.Unlock()
		r.readyMu.Unlock()
		return
	}
	r.termMu.Unlock()
	r.readyMu.Unlock()
	r.wakeOne()
}

// Wait blocks until the reactor has terminated and no goroutine is still
// running Run.
func (r *Reactor) Wait() {
	r.termMu.Lock()
	for !r.termStart || r.threadCnt > 0 {
		r.termCond.Wait()
	}
	r.termMu.Unlock()
}
