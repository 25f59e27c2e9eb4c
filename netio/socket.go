/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package netio

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ProtocolFamily is a small dispatch table between a network name and the
// unix socket domain that realizes it, grounded on the original's
// protocol_family function-pointer table — narrowed to the two domains
// this library listens on.
type ProtocolFamily struct {
	Name   string
	Domain int
}

var (
	TCP4 = &ProtocolFamily{Name: "tcp4", Domain: unix.AF_INET}
	TCP6 = &ProtocolFamily{Name: "tcp6", Domain: unix.AF_INET6}
)

// Socket wraps a non-blocking TCP file descriptor. All operations are
// non-blocking; a StatusWouldBlock result means the caller should wait for
// the reactor to report readiness again.
type Socket struct {
	fd int
	pf *ProtocolFamily
}

// Fd returns the underlying file descriptor, for registration with the
// reactor's epoll instance.
func (s *Socket) Fd() int { return s.fd }

// Protocol returns the protocol family the socket was created with.
func (s *Socket) Protocol() *ProtocolFamily { return s.pf }

// Listen creates a non-blocking listening socket bound to addr
// ("host:port"), choosing TCP4 or TCP6 by resolving addr the way the
// standard library does.
func Listen(addr string, backlog int) (*Socket, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve listen address %q", addr)
	}
	pf := TCP4
	if tcpAddr.IP == nil || tcpAddr.IP.To4() == nil {
		pf = TCP6
	}
	fd, err := unix.Socket(pf.Domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "create listen socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "set SO_REUSEADDR")
	}
	sa, err := sockaddr(pf, tcpAddr.IP, tcpAddr.Port)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "bind %q", addr)
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "listen %q", addr)
	}
	return &Socket{fd: fd, pf: pf}, nil
}

func sockaddr(pf *ProtocolFamily, ip net.IP, port int) (unix.Sockaddr, error) {
	if pf.Domain == unix.AF_INET {
		var a [4]byte
		if ip4 := ip.To4(); ip4 != nil {
			copy(a[:], ip4)
		}
		return &unix.SockaddrInet4{Port: port, Addr: a}, nil
	}
	var a [16]byte
	if ip16 := ip.To16(); ip16 != nil {
		copy(a[:], ip16)
	}
	return &unix.SockaddrInet6{Port: port, Addr: a}, nil
}

// Accept accepts one pending connection from a listening socket, returning
// StatusWouldBlock if none is pending.
func (s *Socket) Accept() (*Socket, Status) {
	fd, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, ClassifyError(err)
	}
	return &Socket{fd: fd, pf: s.pf}, StatusOK
}

// Recv reads into p, reporting StatusOK with size 0 on a graceful peer
// shutdown (EOF), matching the read(2) convention the reactor relies on to
// detect FIN.
func (s *Socket) Recv(p []byte) (int, Status) {
	n, err := unix.Read(s.fd, p)
	if err != nil {
		return 0, ClassifyError(err)
	}
	return n, StatusOK
}

// Send writes p, returning the number of bytes actually written (which may
// be less than len(p) on a non-blocking socket).
func (s *Socket) Send(p []byte) (int, Status) {
	n, err := unix.Write(s.fd, p)
	if err != nil {
		return 0, ClassifyError(err)
	}
	return n, StatusOK
}

// ShutdownWrite half-closes the write side, sending FIN while still
// allowing reads to drain.
func (s *Socket) ShutdownWrite() error {
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

// Close releases the file descriptor.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

// LocalAddr and RemoteAddr format addresses as "host:port" strings,
// deferring numeric formatting to net.JoinHostPort the way the teacher's
// address helpers do.
func (s *Socket) LocalAddr() string  { return sockName(unix.Getsockname, s.fd) }
func (s *Socket) RemoteAddr() string { return sockName(unix.Getpeername, s.fd) }

func sockName(get func(int) (unix.Sockaddr, error), fd int) string {
	sa, err := get(fd)
	if err != nil {
		return ""
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return ""
	}
}
