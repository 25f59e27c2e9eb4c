/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package htio is a thin glue layer binding the request consumer (consume),
// the header map (hdr), and the epoll reactor (reactor) into a runnable
// HTTP/1.x server: a Request/Response pair and a Handler interface, adapted
// from the teacher's types_request.go/types_response.go/types_server.go.
package htio

import (
	"github.com/badu/htio/consume"
	"github.com/badu/htio/hdr"
	"github.com/badu/htio/uri"
)

// StatusCode re-exports consume's status enumeration for callers that only
// import the root package.
type StatusCode = consume.StatusCode

const (
	StatusContinue           = consume.StatusContinue
	StatusSwitchingProtocols = consume.StatusSwitchingProtocols
	StatusOK                 = consume.StatusOK
	StatusCreated            = consume.StatusCreated
	StatusAccepted           = consume.StatusAccepted
	StatusNoContent          = consume.StatusNoContent
	StatusMovedPermanently   = consume.StatusMovedPermanently
	StatusFound              = consume.StatusFound
	StatusNotModified        = consume.StatusNotModified
	StatusBadRequest         = consume.StatusBadRequest
	StatusUnauthorized       = consume.StatusUnauthorized
	StatusForbidden          = consume.StatusForbidden
	StatusNotFound           = consume.StatusNotFound
	StatusMethodNotAllowed   = consume.StatusMethodNotAllowed
	StatusRequestURITooLong     = consume.StatusRequestURITooLong
	StatusRequestTimeout        = consume.StatusRequestTimeout
	StatusRequestEntityTooLarge = consume.StatusRequestEntityTooLarge
	StatusInternalServerError   = consume.StatusInternalServerError
	StatusNotImplemented        = consume.StatusNotImplemented
)

// Handler responds to an HTTP request. ServeHTTP should write reply headers
// and data to the Response and then return; the server serializes and
// sends whatever the Handler left in Response once ServeHTTP returns.
//
// Unlike the teacher's Handler, there is no Flusher/Hijacker/CloseNotifier
// here: hijacking and mid-response flushing are Non-goals of this library,
// which always buffers a complete response before writing it to the
// connection's send queue (see conn.go).
type Handler interface {
	ServeHTTP(*Response, *Request)
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(*Response, *Request)

func (f HandlerFunc) ServeHTTP(w *Response, r *Request) { f(w, r) }

// Request is the server-side view of an HTTP/1.x request: the fields the
// composite request consumer (C9) parsed, plus the complete request body.
// conn.go builds it from the bound consume.Request once the whole request
// has been consumed; it must not be retained past the handler call that
// received it.
type Request struct {
	Method     string
	URI        uri.URI
	MajorVer   int
	MinorVer   int
	Headers    *hdr.HeaderMap
	Trailers   *hdr.HeaderMap

	// Body is the bytes of the request body seen so far, assembled by
	// conn.go from the consumer's BodySlice windows as they arrive. It is
	// complete by the time the handler is invoked: conn.go does not
	// dispatch to the handler until the whole request (headers, and body
	// if any) has been consumed.
	Body []byte

	// RemoteAddr is the string form of the peer's socket address, set by
	// conn.go from the accepted connection, never touched by a consumer.
	RemoteAddr string
}

// Response is the server-side view of an HTTP/1.x response under
// construction. A Handler mutates it and returns; conn.go serializes it
// onto the connection's send queue afterward. A Response from NewResponse
// answers 200 OK with no headers and no body, mirroring net/http's
// implicit-200 behavior; the zero value has no status and a nil Headers.
type Response struct {
	status   StatusCode
	wroteHdr bool

	Headers *hdr.HeaderMap

	body []byte
}

// NewResponse returns a Response ready for handler use.
func NewResponse() *Response {
	return &Response{status: StatusOK, Headers: &hdr.HeaderMap{}}
}

// reset clears r for reuse on the next request served over the same
// connection. It keeps the same *HeaderMap, emptied; the map's entry
// storage is not reused.
func (r *Response) reset() {
	r.status = StatusOK
	r.wroteHdr = false
	r.body = r.body[:0]
	*r.Headers = hdr.HeaderMap{}
}

// WriteHeader sets the status code for the response. The first call wins;
// later calls are ignored, mirroring net/http's ResponseWriter.WriteHeader.
func (r *Response) WriteHeader(code StatusCode) {
	if r.wroteHdr {
		return
	}
	r.wroteHdr = true
	r.status = code
}

// Write appends to the response body, implicitly calling WriteHeader(200)
// if no status has been set yet.
func (r *Response) Write(p []byte) (int, error) {
	if !r.wroteHdr {
		r.WriteHeader(StatusOK)
	}
	r.body = append(r.body, p...)
	return len(p), nil
}

// Status reports the status code that will be sent; StatusOK if the
// handler never called WriteHeader.
func (r *Response) Status() StatusCode { return r.status }
