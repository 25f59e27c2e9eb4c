/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package consume

import (
	"bytes"

	"github.com/badu/htio/uri"
)

type requestLinePhase int

const (
	phaseMethod requestLinePhase = iota
	phaseReqURI
	phaseReqVersion
	phaseReqNewline
)

// RequestLine parses "METHOD SP URI SP HTTP/M.N CRLF" incrementally (C4).
// It is fed raw bytes across arbitrary chunk boundaries via Consume.
type RequestLine struct {
	Base
	phase      requestLinePhase
	methodBuf  []byte
	uriBuf     []byte
	versionBuf []byte

	Method     string
	URI        uri.URI
	MajorVer   int
	MinorVer   int
}

// NewRequestLine returns a RequestLine ready to consume a request line.
func NewRequestLine() *RequestLine { return &RequestLine{} }

// Reset clears all accumulators and returns the consumer to its initial
// phase, preserving the length limit.
func (r *RequestLine) Reset() {
	r.Base.Reset()
	r.phase = phaseMethod
	r.methodBuf = r.methodBuf[:0]
	r.uriBuf = r.uriBuf[:0]
	r.versionBuf = r.versionBuf[:0]
	r.Method = ""
	r.URI.Clear()
	r.MajorVer = 0
	r.MinorVer = 0
}

// Consume feeds buf into the consumer. It returns the number of bytes
// consumed from buf this call. Check Done/Err afterward to learn whether
// parsing finished, and if so, whether it finished with an error.
func (r *RequestLine) Consume(buf []byte) int {
	cur := 0
	end := len(buf)
	newline := FindNewline(buf[cur:end]) + cur

	switch r.phase {
	case phaseMethod:
		space := indexByteIn(buf, cur, newline, ' ')
		if newline != end && space < 0 {
			r.SetError(StatusBadRequest, "missing request line URI reference")
			return cur
		}
		methodLen := newline - cur
		extra := 0
		if space >= 0 {
			methodLen = space - cur
			extra = 1
		}
		if !r.IncreaseLength(uint64(methodLen + extra)) {
			r.SetError(StatusBadRequest, errTooLong)
			return cur
		}
		r.methodBuf = append(r.methodBuf, buf[cur:cur+methodLen]...)
		if space < 0 {
			return cur + methodLen
		}
		r.Method = string(r.methodBuf)
		if !IsMethodValid(r.Method) {
			r.SetError(StatusBadRequest, "invalid request method")
			return cur + methodLen
		}
		r.phase = phaseReqURI
		cur = space + 1
		fallthrough

	case phaseReqURI:
		space := indexByteIn(buf, cur, newline, ' ')
		if newline != end && space < 0 {
			r.SetError(StatusBadRequest, "missing request line HTTP version")
			return cur
		}
		uriLen := newline - cur
		extra := 0
		if space >= 0 {
			uriLen = space - cur
			extra = 1
		}
		if !r.IncreaseLength(uint64(uriLen + extra)) {
			r.SetError(StatusRequestURITooLong, "")
			return cur
		}
		r.uriBuf = append(r.uriBuf, buf[cur:cur+uriLen]...)
		if space < 0 {
			return cur + uriLen
		}
		if !uri.ParseURIReference(&r.URI, string(r.uriBuf)) {
			r.SetError(StatusBadRequest, "invalid request line URI reference")
			return cur + uriLen
		}
		r.phase = phaseReqVersion
		cur = space + 1
		fallthrough

	case phaseReqVersion:
		if !r.IncreaseLength(uint64(newline - cur)) {
			// The version string's own length limit exhaustion is reported as
			// RequestUriTooLong, preserved bug-for-bug from the source: the URI
			// reference is assumed to be the culprit even though the true cause
			// may be an oversized version string.
			r.SetError(StatusRequestURITooLong, "")
			return cur
		}
		r.versionBuf = append(r.versionBuf, buf[cur:newline]...)
		if newline == end {
			return end
		}
		if !r.parseVersion() {
			r.SetError(StatusBadRequest, "invalid HTTP version")
			return newline
		}
		cur = newline
		if buf[cur] == '\r' {
			if !r.IncreaseLength(1) {
				r.SetError(StatusRequestURITooLong, "")
				return cur
			}
			cur++
		}
		r.phase = phaseReqNewline
		fallthrough

	case phaseReqNewline:
		if cur == end {
			return end
		}
		if buf[cur] != '\n' {
			r.SetError(StatusBadRequest, "invalid HTTP version")
			return cur
		}
		if !r.IncreaseLength(1) {
			r.SetError(StatusRequestURITooLong, "")
			return cur
		}
		cur++
		r.SetDone()
		return cur
	}
	return cur
}

// parseVersion validates the accumulated version string as "HTTP/" DIGITS
// "." DIGITS with no trailing characters.
func (r *RequestLine) parseVersion() bool {
	s := r.versionBuf
	if len(s) < 5 || string(s[:5]) != "HTTP/" {
		return false
	}
	s = s[5:]
	dot := bytes.IndexByte(s, '.')
	if dot < 0 {
		return false
	}
	major, ok := parseNonNegativeInt(s[:dot])
	if !ok {
		return false
	}
	minor, ok := parseNonNegativeInt(s[dot+1:])
	if !ok {
		return false
	}
	r.MajorVer = major
	r.MinorVer = minor
	return true
}

func parseNonNegativeInt(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func indexByteIn(buf []byte, from, to int, b byte) int {
	if from >= to {
		return -1
	}
	i := bytes.IndexByte(buf[from:to], b)
	if i < 0 {
		return -1
	}
	return from + i
}
