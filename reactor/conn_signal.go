/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import (
	"time"

	"github.com/google/uuid"

	"github.com/badu/htio/netio"
)

const connBufferSize = 4096

// ConnHandler receives the bytes a ConnectionSignal reads off the wire and
// is told when the peer shuts down.
type ConnHandler interface {
	// OnData is called with every byte received so far that has not yet
	// been consumed (across calls, unconsumed bytes are preserved at the
	// front of the buffer). It returns how many of those bytes it
	// consumed, and whether it is retaining a reference to the slice
	// beyond this call -- if so, the ConnectionSignal allocates a fresh
	// buffer for subsequent reads instead of overwriting this one.
	OnData(buf []byte) (consumed int, takeOwnership bool)
	// OnShutdown is called when the peer closes its write side, a
	// read/write deadline set via Handle.SetTimeout expires, or a receive
	// fails. It may be called more than once for one connection (a FIN
	// followed by an expired deadline); a failed send does not call it.
	OnShutdown()
}

// ConnectionSignal is a non-blocking TCP connection driven by a Reactor
// (C12), grounded on the original's mux_conn: a lazily allocated input
// buffer and an outbound send queue whose tail may be a FIN sentinel.
type ConnectionSignal struct {
	BaseSignal
	id   uuid.UUID
	sock *netio.Socket

	ibuf    []byte
	ioffset int

	handler ConnHandler

	sendQueue  [][]byte // a nil entry is the FIN sentinel: shut down the write side
	sendOffset int

	peerClosed   bool // peer sent FIN (Recv returned n==0)
	selfShutdown bool // we have sent our own FIN (flushSend processed the sentinel)
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConnectionSignal wraps sock, dispatching received bytes and the
// shutdown event to handler.
func NewConnectionSignal(sock *netio.Socket, handler ConnHandler) *ConnectionSignal {
	return &ConnectionSignal{id: uuid.New(), sock: sock, handler: handler}
}

// ID is a diagnostic identifier, stable for the signal's lifetime, useful
// for correlating log lines across goroutines.
func (c *ConnectionSignal) ID() uuid.UUID { return c.id }

func (c *ConnectionSignal) Fd() int                       { return c.sock.Fd() }
func (c *ConnectionSignal) InitialReadiness() Capability { return ReadFlag }

func (c *ConnectionSignal) allocBuffer() {
	if c.ibuf == nil {
		c.ibuf = make([]byte, connBufferSize)
	}
}

// ReadReady drains the socket until it would block or the peer shuts
// down, handing each chunk to the handler and preserving whatever the
// handler didn't consume at the front of the buffer for the next read.
//
// A peer FIN (n==0) does not by itself tear the connection down: the
// handler may still have a response draining on the write side. It is
// only safe to detach once both directions have closed, so a FIN is
// recorded and the signal is actually closed the moment our own
// shutdown (see flushSend) has also gone out.
func (c *ConnectionSignal) ReadReady() ReadyResult {
	if c.peerClosed {
		return OpComplete
	}
	for {
		c.allocBuffer()
		if c.ioffset == len(c.ibuf) {
			// handler consumed nothing across a full buffer: grow it
			// rather than spin forever.
			grown := make([]byte, len(c.ibuf)*2)
			copy(grown, c.ibuf[:c.ioffset])
			c.ibuf = grown
		}
		n, stat := c.sock.Recv(c.ibuf[c.ioffset:])
		if stat == netio.StatusWouldBlock {
			c.armIdleTimeout()
			return OpComplete
		}
		if stat != netio.StatusOK {
			c.handler.OnShutdown()
			return SignalComplete
		}
		if n == 0 {
			c.peerClosed = true
			c.handler.OnShutdown()
			if c.selfShutdown {
				c.MarkForClose()
			} else {
				c.armIdleTimeout()
			}
			return OpComplete
		}
		size := c.ioffset + n
		consumed, takeOwnership := c.handler.OnData(c.ibuf[:size])
		if takeOwnership {
			c.ibuf = nil
			c.ioffset = 0
			continue
		}
		if consumed < size {
			copy(c.ibuf, c.ibuf[consumed:size])
		}
		c.ioffset = size - consumed
	}
}

// Send enqueues data for the connection; data must not be mutated by the
// caller afterward unless the handler previously declined ownership of it
// (Send does not copy).
func (c *ConnectionSignal) Send(data []byte) {
	c.sendQueue = append(c.sendQueue, data)
	c.flushSend()
}

// Shutdown enqueues a FIN after any data already queued.
func (c *ConnectionSignal) Shutdown() {
	c.sendQueue = append(c.sendQueue, nil)
	c.flushSend()
}

func (c *ConnectionSignal) flushSend() {
	for len(c.sendQueue) > 0 {
		item := c.sendQueue[0]
		if item == nil {
			c.sock.ShutdownWrite()
			c.selfShutdown = true
			c.sendQueue = c.sendQueue[1:]
			if c.peerClosed {
				c.MarkForClose()
				return
			}
			continue
		}
		n, stat := c.sock.Send(item[c.sendOffset:])
		if stat == netio.StatusWouldBlock {
			c.SetWriteInterest(true)
			c.armIdleTimeout()
			return
		}
		if stat != netio.StatusOK {
			c.MarkForClose()
			return
		}
		c.sendOffset += n
		if c.sendOffset < len(item) {
			c.SetWriteInterest(true)
			c.armIdleTimeout()
			return
		}
		c.sendOffset = 0
		c.sendQueue = c.sendQueue[1:]
	}
	c.SetWriteInterest(false)
	c.armIdleTimeout()
}

// WriteReady resumes flushing the send queue.
func (c *ConnectionSignal) WriteReady() ReadyResult {
	c.flushSend()
	if len(c.sendQueue) == 0 {
		return OpComplete
	}
	return OpIncomplete
}

// SetReadTimeout bounds how long the connection may sit idle waiting for
// more bytes before TimedOut fires, taking effect immediately and on every
// later idle transition. Zero disables it.
func (c *ConnectionSignal) SetReadTimeout(d time.Duration) {
	c.readTimeout = d
	c.armIdleTimeout()
}

// SetWriteTimeout bounds how long the connection may sit with data queued
// but unsent before TimedOut fires, taking effect immediately and on every
// later idle transition. Zero disables it.
func (c *ConnectionSignal) SetWriteTimeout(d time.Duration) {
	c.writeTimeout = d
	c.armIdleTimeout()
}

// armIdleTimeout arms whichever deadline applies to the connection's
// current idle state -- writeTimeout while data is queued to send, else
// readTimeout -- matching the single timeout slot Handle.SetTimeout
// exposes per signal.
func (c *ConnectionSignal) armIdleTimeout() {
	d := c.readTimeout
	if len(c.sendQueue) > 0 {
		d = c.writeTimeout
	}
	if d > 0 {
		c.SetTimeout(d)
	} else {
		c.ClearTimeout()
	}
}

// TimedOut closes the connection once its armed read or write deadline
// expires, overriding BaseSignal's no-op.
func (c *ConnectionSignal) TimedOut() {
	c.handler.OnShutdown()
	c.MarkForClose()
}

func (c *ConnectionSignal) Detaching() { c.sock.Close() }
