/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htio

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/badu/htio/consume"
	"github.com/badu/htio/hdr"
	"github.com/badu/htio/netio"
	"github.com/badu/htio/reactor"
)

// conn is the server side of one accepted connection: it owns the request
// consumer bound to the connection's byte stream and dispatches completed
// requests to srv.Handler, adapted from the teacher's conn.go/serve loop --
// there a goroutine blocked on reads in a for loop, here OnData is called
// by the reactor whenever the kernel says the socket is readable.
type conn struct {
	srv  *Server
	sock *netio.Socket

	sig    *reactor.ConnectionSignal
	handle *reactor.Handle

	req  *consume.Request
	body []byte

	resp *Response
}

func newConn(srv *Server, sock *netio.Socket) *conn {
	req := consume.NewRequest()
	req.SetLineLimit(uint64(srv.maxHeaderBytes()))
	req.SetHeaderLimit(uint64(srv.maxHeaderBytes()))
	return &conn{
		srv:  srv,
		sock: sock,
		req:  req,
		resp: NewResponse(),
	}
}

// OnData implements reactor.ConnHandler: it drives the bound request
// consumer over buf, accumulating any body bytes it yields, and dispatches
// to the handler once a full request (or a fatal parse error) is reached.
// It always returns false for takeOwnership: buf is the connection
// signal's own read buffer, body bytes are copied out of it into c.body.
func (c *conn) OnData(buf []byte) (int, bool) {
	consumed := 0
	for consumed < len(buf) && !c.req.Done() {
		n, slice := c.req.Consume(buf[consumed:])
		if slice.Length > 0 {
			start := consumed + slice.Offset
			c.body = append(c.body, buf[start:start+slice.Length]...)
			if c.srv.MaxBodyBytes > 0 && int64(len(c.body)) > c.srv.MaxBodyBytes {
				c.writeError(StatusRequestEntityTooLarge)
				c.sig.Shutdown()
				return consumed + n, false
			}
		}
		consumed += n
		if n == 0 {
			break
		}
	}
	if !c.req.Done() {
		return consumed, false
	}

	if err := c.req.Err(); err != nil {
		c.writeError(err.Status)
		c.sig.Shutdown()
		return consumed, false
	}

	keepAlive := c.dispatch()
	c.req.Reset()
	c.body = c.body[:0]
	if !keepAlive {
		c.sig.Shutdown()
	}
	return consumed, false
}

// OnShutdown implements reactor.ConnHandler; the reactor already closes the
// socket via ConnectionSignal.Detaching, so there is nothing left to
// release here.
func (c *conn) OnShutdown() {}

// dispatch builds the public Request/Response pair, invokes the handler
// with panic isolation mirroring the teacher's conn.serve recover block,
// and writes the serialized response to the connection's send queue. It
// reports whether the connection should stay open for another request.
func (c *conn) dispatch() (keepAlive bool) {
	req := &Request{
		Method:     c.req.Method(),
		URI:        c.req.URI(),
		MajorVer:   c.req.MajorVer(),
		MinorVer:   c.req.MinorVer(),
		Headers:    c.req.Headers(),
		Trailers:   c.req.Trailers(),
		Body:       c.body,
		RemoteAddr: c.sock.RemoteAddr(),
	}
	keepAlive = wantsKeepAlive(req)

	c.resp.reset()
	func() {
		defer func() {
			if err := recover(); err != nil {
				const size = 64 << 10
				buf := make([]byte, size)
				buf = buf[:runtime.Stack(buf, false)]
				c.srv.logf("htio: panic serving %s: %v\n%s", req.RemoteAddr, err, buf)
				c.resp.reset()
				c.resp.WriteHeader(StatusInternalServerError)
				keepAlive = false
			}
		}()
		c.srv.Handler.ServeHTTP(c.resp, req)
	}()

	c.sig.Send(serializeResponse(c.resp, req.MajorVer, req.MinorVer, keepAlive))
	return keepAlive
}

// wantsKeepAlive reports whether the connection should remain open after
// this request, per RFC 7230 §6.3: HTTP/1.1 defaults to keep-alive unless
// "Connection: close" is present; HTTP/1.0 defaults to close unless
// "Connection: keep-alive" is present.
func wantsKeepAlive(req *Request) bool {
	conn, _ := req.Headers.Get(hdr.Connection)
	conn = strings.ToLower(strings.TrimSpace(conn))
	if req.MajorVer == 1 && req.MinorVer >= 1 {
		return conn != "close"
	}
	return conn == "keep-alive"
}

// writeError sends a minimal, connection-closing response for a request
// the consumer itself rejected -- there is no parsed Request to hand a
// Handler in this case.
func (c *conn) writeError(status StatusCode) {
	resp := NewResponse()
	resp.WriteHeader(status)
	c.sig.Send(serializeResponse(resp, 1, 1, false))
}

// serializeResponse renders resp as an HTTP/1.x status line, headers, and
// body. It always sets Content-Length from the buffered body (this
// library never streams a response incrementally) and a Connection header
// reflecting keepAlive.
func serializeResponse(resp *Response, major, minor int, keepAlive bool) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/%d.%d %d %s\r\n", major, minor, int(resp.status), resp.status.String())

	resp.Headers.Del(hdr.ContentLength)
	resp.Headers.Del(hdr.Connection)
	resp.Headers.Range(func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	})

	b.WriteString(hdr.ContentLength)
	b.WriteString(": ")
	b.WriteString(strconv.Itoa(len(resp.body)))
	b.WriteString("\r\n")

	b.WriteString(hdr.Connection)
	b.WriteString(": ")
	if keepAlive {
		b.WriteString("keep-alive")
	} else {
		b.WriteString("close")
	}
	b.WriteString("\r\n\r\n")

	out := make([]byte, 0, b.Len()+len(resp.body))
	out = append(out, b.String()...)
	out = append(out, resp.body...)
	return out
}
