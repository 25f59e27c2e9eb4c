/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package consume

import (
	"github.com/badu/htio/hdr"
)

type headersPhase int

const (
	phaseStartLine headersPhase = iota
	phaseEndNewline
	phaseName
	phasePreValue
	phaseValue
	phaseValueNewline
)

const errInvalidHeader = "invalid message header"

// Headers parses a header block terminated by an empty line, with folded
// continuation lines collapsing to a single SP (C6).
type Headers struct {
	Base
	phase headersPhase
	hdrs  *hdr.HeaderMap
	name  []byte
	value []byte
}

// NewHeaders returns a Headers consumer that inserts parsed pairs into m.
func NewHeaders(m *hdr.HeaderMap) *Headers {
	return &Headers{phase: phaseStartLine, hdrs: m}
}

// Reset rebinds the consumer to m and clears accumulators, preserving the
// length limit.
func (h *Headers) Reset(m *hdr.HeaderMap) {
	h.Base.Reset()
	h.phase = phaseStartLine
	h.hdrs = m
	h.name = h.name[:0]
	h.value = h.value[:0]
}

// storeHeader commits the pending (name, value) pair, if any, to the
// bound header map. An empty pending name means "no pending header" (the
// very first StartLine visit) and is silently ignored.
func (h *Headers) storeHeader() bool {
	if len(h.name) == 0 {
		return true
	}
	val := string(rtrimBytes(h.value))
	if !IsHeaderValueValid(val) {
		h.SetError(StatusBadRequest, errInvalidHeader)
		return false
	}
	h.hdrs.Add(string(h.name), val)
	h.name = h.name[:0]
	h.value = h.value[:0]
	return true
}

func rtrimBytes(b []byte) []byte {
	n := len(b)
	for n > 0 && isASCIISpace(b[n-1]) {
		n--
	}
	return b[:n]
}

func (h *Headers) Consume(buf []byte) int {
	cur := 0
	end := len(buf)
	newline := FindNewline(buf[cur:end]) + cur
	if !h.IncreaseLength(uint64(newline - cur)) {
		h.SetError(StatusBadRequest, errTooLong)
		return cur
	}

	for cur < end {
		switch h.phase {

		case phaseStartLine:
			switch buf[cur] {
			case '\r':
				h.phase = phaseEndNewline
				if !h.IncreaseLength(1) {
					h.SetError(StatusBadRequest, errTooLong)
					return cur
				}
				cur++
			case '\n':
				if !h.IncreaseLength(1) {
					h.SetError(StatusBadRequest, errTooLong)
					return cur
				}
				cur++
				if !h.storeHeader() {
					return cur
				}
				h.SetDone()
				return cur
			case ' ', '\t':
				h.value = append(h.value, ' ')
				h.phase = phasePreValue
			default:
				if !h.storeHeader() {
					return cur
				}
				h.phase = phaseName
			}

		case phaseEndNewline:
			if buf[cur] != '\n' {
				h.SetError(StatusBadRequest, errInvalidHeader)
				return cur
			}
			if !h.IncreaseLength(1) {
				h.SetError(StatusBadRequest, errTooLong)
				return cur
			}
			cur++
			if !h.storeHeader() {
				return cur
			}
			h.SetDone()
			return cur

		case phaseName:
			colon := indexByteIn(buf, cur, end, ':')
			if colon < 0 {
				colon = end
			}
			h.name = append(h.name, buf[cur:colon]...)
			if colon == end {
				if newline != end {
					h.SetError(StatusBadRequest, errInvalidHeader)
					return cur
				}
				return end // incomplete
			}
			h.name = rtrimBytes(h.name)
			if !IsHeaderNameValid(string(h.name)) {
				h.SetError(StatusBadRequest, errInvalidHeader)
				return colon
			}
			h.phase = phasePreValue
			cur = colon + 1

		case phasePreValue:
			rest := skipWhitespace(buf[cur:end])
			cur = end - len(rest)
			if cur != end {
				h.phase = phaseValue
			}

		case phaseValue:
			h.value = append(h.value, buf[cur:newline]...)
			cur = newline
			if cur == end {
				return end // incomplete
			}
			if buf[cur] == '\r' {
				if !h.IncreaseLength(1) {
					h.SetError(StatusBadRequest, errTooLong)
					return cur
				}
				cur++
			}
			h.phase = phaseValueNewline

		case phaseValueNewline:
			if buf[cur] != '\n' {
				h.SetError(StatusBadRequest, errInvalidHeader)
				return cur
			}
			if !h.IncreaseLength(1) {
				h.SetError(StatusBadRequest, errTooLong)
				return cur
			}
			cur++
			newline = FindNewline(buf[cur:end]) + cur
			if !h.IncreaseLength(uint64(newline - cur)) {
				h.SetError(StatusBadRequest, errTooLong)
				return cur
			}
			h.phase = phaseStartLine
		}
	}

	return end // incomplete: whole buffer consumed without finishing
}
