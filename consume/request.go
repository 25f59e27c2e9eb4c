/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package consume

import (
	"strings"

	"github.com/badu/htio/hdr"
	"github.com/badu/htio/uri"
)

type requestPhase int

const (
	phaseRequestLine requestPhase = iota
	phaseRequestHeaders
	phaseRequestBody
)

// Request is the composite consumer for one HTTP/1.x request (C9): a
// RequestLine, then Headers, then a Body whose framing is decided from the
// parsed headers once they are complete. It sequences C4 and C6 the way the
// original's request_1x_consumer did by private multiple inheritance; here
// the two are held as fields and driven in turn.
type Request struct {
	phase requestPhase

	line    *RequestLine
	headers *Headers
	hdrs    *hdr.HeaderMap

	body     *Body
	trailers *hdr.HeaderMap

	done bool
	err  *Error
}

// NewRequest returns a Request ready to consume a request from its first
// byte.
func NewRequest() *Request {
	hdrs := &hdr.HeaderMap{}
	return &Request{
		line:    NewRequestLine(),
		hdrs:    hdrs,
		headers: NewHeaders(hdrs),
	}
}

// SetLineLimit bounds the request line's length.
func (r *Request) SetLineLimit(n uint64) { r.line.SetLengthLimit(n) }

// SetHeaderLimit bounds the header block's (and, if present, trailer
// block's) length.
func (r *Request) SetHeaderLimit(n uint64) { r.headers.SetLengthLimit(n) }

// Reset rebinds the consumer for a new request on the same connection,
// preserving its configured limits.
func (r *Request) Reset() {
	r.phase = phaseRequestLine
	lineLimit, hdrLimit := r.line.limit, r.headers.limit
	r.line.Reset()
	r.line.SetLengthLimit(lineLimit)
	r.hdrs = &hdr.HeaderMap{}
	r.headers.Reset(r.hdrs)
	r.headers.SetLengthLimit(hdrLimit)
	r.body = nil
	r.trailers = nil
	r.done = false
	r.err = nil
}

func (r *Request) Done() bool  { return r.done }
func (r *Request) Err() *Error { return r.err }

// Method is valid once the request line phase has completed.
func (r *Request) Method() string { return r.line.Method }

// URI is valid once the request line phase has completed.
func (r *Request) URI() uri.URI { return r.line.URI }

// MajorVer and MinorVer report the request line's HTTP version, valid once
// the request line phase has completed.
func (r *Request) MajorVer() int { return r.line.MajorVer }
func (r *Request) MinorVer() int { return r.line.MinorVer }

// Headers is valid once the header phase has completed.
func (r *Request) Headers() *hdr.HeaderMap { return r.hdrs }

// Trailers is valid once Done(), and non-nil only when the body used
// chunked framing; it is empty when the trailer section was empty.
func (r *Request) Trailers() *hdr.HeaderMap { return r.trailers }

// HasBody reports whether a body consumer was selected; false means the
// request has no body (no Content-Length, no chunked Transfer-Encoding).
func (r *Request) HasBody() bool { return r.body != nil }

// Consume feeds buf into the consumer, returning the number of bytes
// consumed this call and, once the body phase is reached, the slice of buf
// holding body data ready for a downstream sink.
func (r *Request) Consume(buf []byte) (int, BodySlice) {
	cur := 0
	end := len(buf)
	for cur < end {
		switch r.phase {

		case phaseRequestLine:
			n := r.line.Consume(buf[cur:end])
			cur += n
			if !r.line.Done() {
				return cur, BodySlice{}
			}
			if err := r.line.Err(); err != nil {
				r.err = err
				r.done = true
				return cur, BodySlice{}
			}
			r.phase = phaseRequestHeaders

		case phaseRequestHeaders:
			n := r.headers.Consume(buf[cur:end])
			cur += n
			if !r.headers.Done() {
				return cur, BodySlice{}
			}
			if err := r.headers.Err(); err != nil {
				r.err = err
				r.done = true
				return cur, BodySlice{}
			}
			if !r.selectBodyFraming() {
				return cur, BodySlice{}
			}
			if r.body == nil {
				r.done = true
				return cur, BodySlice{}
			}
			r.phase = phaseRequestBody

		case phaseRequestBody:
			n, slice := r.body.Consume(buf[cur:end])
			slice.Offset += cur
			cur += n
			if !r.body.Done() {
				return cur, slice
			}
			if err := r.body.Err(); err != nil {
				r.err = err
				r.done = true
				return cur, slice
			}
			r.done = true
			return cur, slice
		}
	}
	return cur, BodySlice{}
}

// selectBodyFraming inspects the now-complete header set and picks the body
// consumer, giving chunked Transfer-Encoding precedence over Content-Length
// per RFC 7230 §3.3.3. It returns false (with Err set) on a malformed or
// conflicting framing header.
func (r *Request) selectBodyFraming() bool {
	if te, ok := r.hdrs.Get(hdr.TransferEncoding); ok {
		if !isChunkedCoding(te) {
			r.err = &Error{Status: StatusBadRequest, Detail: "unsupported transfer-encoding"}
			r.done = true
			return false
		}
		r.trailers = &hdr.HeaderMap{}
		r.body = NewChunkedBody(r.trailers)
		r.body.trailers.SetLengthLimit(r.headers.limit)
		return true
	}

	vals := r.hdrs.Values(hdr.ContentLength)
	if len(vals) == 0 {
		r.body = nil
		return true
	}
	for _, v := range vals[1:] {
		if v != vals[0] {
			r.err = &Error{Status: StatusBadRequest, Detail: "conflicting content-length"}
			r.done = true
			return false
		}
	}
	n, ok := parseContentLength(vals[0])
	if !ok {
		r.err = &Error{Status: StatusBadRequest, Detail: "invalid content-length"}
		r.done = true
		return false
	}
	if n == 0 {
		r.body = nil
		return true
	}
	r.body = NewFixedBody(n)
	return true
}

// isChunkedCoding reports whether te's comma-separated transfer-codings
// include "chunked" (ASCII case-insensitive) anywhere in the list, e.g.
// "chunked, gzip" or "gzip, chunked" both count.
func isChunkedCoding(te string) bool {
	for _, coding := range strings.Split(te, ",") {
		if strings.EqualFold(strings.TrimSpace(coding), "chunked") {
			return true
		}
	}
	return false
}

func parseContentLength(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		next := n*10 + uint64(c-'0')
		if next < n {
			return 0, false // overflow
		}
		n = next
	}
	return n, true
}
