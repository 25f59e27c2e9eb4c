/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import "github.com/badu/htio/netio"

// AcceptHandler is notified of every connection a ListenerSignal accepts.
type AcceptHandler interface {
	OnAccept(sock *netio.Socket)
}

// ListenerSignal drives a non-blocking listening socket's accept loop
// (C12), grounded on the original's mux_listener.
type ListenerSignal struct {
	BaseSignal
	sock    *netio.Socket
	handler AcceptHandler
}

// NewListenerSignal wraps sock, handing each accepted connection to
// handler.
func NewListenerSignal(sock *netio.Socket, handler AcceptHandler) *ListenerSignal {
	return &ListenerSignal{sock: sock, handler: handler}
}

func (l *ListenerSignal) Fd() int                       { return l.sock.Fd() }
func (l *ListenerSignal) InitialReadiness() Capability { return ReadFlag }
func (l *ListenerSignal) WriteReady() ReadyResult       { return OpComplete }

// ReadReady accepts until the listen backlog would block. A failed accept
// (EMFILE/ENFILE/ECONNABORTED and the like) returns OpIncomplete, so the
// Reactor calls ReadReady again after its other ready signals; the
// listener itself never tears down over a transient accept failure,
// mirroring the original mux_listener::read_ready.
func (l *ListenerSignal) ReadReady() ReadyResult {
	for {
		conn, stat := l.sock.Accept()
		switch stat {
		case netio.StatusWouldBlock:
			return OpComplete
		case netio.StatusOK:
			l.handler.OnAccept(conn)
		default:
			return OpIncomplete
		}
	}
}

func (l *ListenerSignal) Detaching() { l.sock.Close() }
