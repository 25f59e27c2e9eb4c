/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htio

import (
	"log"
	"time"

	"github.com/badu/htio/netio"
	"github.com/badu/htio/reactor"
)

// DefaultMaxHeaderBytes is the maximum permitted size of the request line,
// and separately of the header block, used when Server.MaxHeaderBytes is
// zero.
const DefaultMaxHeaderBytes = 1 << 20 // 1 MB

// Server defines the parameters for running an HTTP/1.x server over a
// shared reactor. The zero value is not usable on its own: Handler must be
// set before ListenAndServe, mirroring net/http.Server but
// narrowed to what this library actually implements -- no TLS, no
// ConnState hook, no graceful Shutdown (the reactor's Terminate/Wait pair
// covers that at the process level instead).
type Server struct {
	Addr    string  // TCP address to listen on, ":http" if empty
	Handler Handler // handler to invoke for each request

	// ReadTimeout bounds how long a connection may sit idle with nothing
	// left to read -- between requests, and while one is incomplete --
	// before it is closed. The underlying ConnectionSignal re-arms this
	// deadline every time it returns to waiting for readability. Zero
	// means no timeout.
	ReadTimeout time.Duration

	// WriteTimeout bounds how long a connection may sit idle while a
	// response is queued for send but not yet flushed. It takes priority
	// over ReadTimeout whenever data is pending, and is re-armed on every
	// partial write. Zero means no timeout.
	WriteTimeout time.Duration

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request line, and separately the header block (and
	// any chunked trailer block); the limit applies to each on its own,
	// not to their sum. It does not limit the size of the request body.
	// If zero, DefaultMaxHeaderBytes is used.
	MaxHeaderBytes int

	// MaxBodyBytes bounds the size of a fixed- or chunked-length request
	// body the server will buffer before dispatching to the handler; a
	// request exceeding it is rejected with 413 Request Entity Too Large.
	// If zero, there is no limit beyond available memory.
	MaxBodyBytes int64

	// ErrorLog specifies an optional logger for panics recovered from
	// handlers; accept failures and malformed requests are not logged.
	// If nil, logging goes to log.Default().
	ErrorLog *log.Logger

	reactor *reactor.Reactor
}

func (s *Server) maxHeaderBytes() int {
	if s.MaxHeaderBytes > 0 {
		return s.MaxHeaderBytes
	}
	return DefaultMaxHeaderBytes
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.ErrorLog != nil {
		s.ErrorLog.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// ListenAndServe listens on s.Addr (":http" if empty means ":80") and
// blocks running the reactor loop, dispatching each accepted connection's
// requests to s.Handler, until Shutdown is called from another goroutine
// or the listener fails.
func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = ":http"
	}
	sock, err := netio.Listen(addr, 0)
	if err != nil {
		return err
	}
	r, err := reactor.New()
	if err != nil {
		return err
	}
	s.reactor = r

	acceptor := &connAcceptor{srv: s}
	ls := reactor.NewListenerSignal(sock, acceptor)
	if _, err := r.Attach(ls); err != nil {
		return err
	}
	return r.Run()
}

// Shutdown terminates the reactor, detaching the listener and every
// in-flight connection signal. It does not wait for in-flight handler
// calls to return; callers wanting that should call Wait afterward.
func (s *Server) Shutdown() {
	if s.reactor != nil {
		s.reactor.Terminate()
	}
}

// Wait blocks until every signal attached to the server's reactor --
// listener, connections, any ad hoc timers -- has finished detaching.
func (s *Server) Wait() {
	if s.reactor != nil {
		s.reactor.Wait()
	}
}

// connAcceptor binds newly accepted sockets to fresh conns, implementing
// reactor.AcceptHandler.
type connAcceptor struct {
	srv *Server
}

func (a *connAcceptor) OnAccept(sock *netio.Socket) {
	c := newConn(a.srv, sock)
	sig := reactor.NewConnectionSignal(sock, c)
	c.sig = sig
	handle, err := a.srv.reactor.Attach(sig)
	if err != nil {
		sock.Close()
		return
	}
	c.handle = handle
	sig.SetReadTimeout(a.srv.ReadTimeout)
	sig.SetWriteTimeout(a.srv.WriteTimeout)
}
