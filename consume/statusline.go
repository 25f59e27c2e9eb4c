/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package consume

type statusLinePhase int

const (
	phaseStatusVersion statusLinePhase = iota
	phaseStatusCode
	phaseReason
	phaseStatusNewline
)

// StatusLine parses "HTTP/M.N SP CODE SP REASON CRLF" incrementally (C5).
// It shares the version grammar with RequestLine.
type StatusLine struct {
	Base
	phase      statusLinePhase
	versionBuf []byte
	codeBuf    []byte
	reasonBuf  []byte

	MajorVer int
	MinorVer int
	Status   StatusCode
	Reason   string
}

func NewStatusLine() *StatusLine { return &StatusLine{} }

func (s *StatusLine) Reset() {
	s.Base.Reset()
	s.phase = phaseStatusVersion
	s.versionBuf = s.versionBuf[:0]
	s.codeBuf = s.codeBuf[:0]
	s.reasonBuf = s.reasonBuf[:0]
	s.MajorVer, s.MinorVer = 0, 0
	s.Status = 0
	s.Reason = ""
}

func (s *StatusLine) Consume(buf []byte) int {
	cur := 0
	end := len(buf)
	newline := FindNewline(buf[cur:end]) + cur

	switch s.phase {
	case phaseStatusVersion:
		space := indexByteIn(buf, cur, newline, ' ')
		if newline != end && space < 0 {
			s.SetError(StatusBadRequest, "missing status line code")
			return cur
		}
		verLen := newline - cur
		extra := 0
		if space >= 0 {
			verLen = space - cur
			extra = 1
		}
		if !s.IncreaseLength(uint64(verLen + extra)) {
			s.SetError(StatusBadRequest, errTooLong)
			return cur
		}
		s.versionBuf = append(s.versionBuf, buf[cur:cur+verLen]...)
		if space < 0 {
			return cur + verLen
		}
		if !s.parseVersion() {
			s.SetError(StatusBadRequest, "invalid HTTP version")
			return cur + verLen
		}
		s.phase = phaseStatusCode
		cur = space + 1
		fallthrough

	case phaseStatusCode:
		space := indexByteIn(buf, cur, newline, ' ')
		if newline != end && space < 0 {
			s.SetError(StatusBadRequest, "missing status line reason phrase")
			return cur
		}
		codeLen := newline - cur
		extra := 0
		if space >= 0 {
			codeLen = space - cur
			extra = 1
		}
		if !s.IncreaseLength(uint64(codeLen + extra)) {
			s.SetError(StatusBadRequest, errTooLong)
			return cur
		}
		s.codeBuf = append(s.codeBuf, buf[cur:cur+codeLen]...)
		if space < 0 {
			return cur + codeLen
		}
		if len(s.codeBuf) != 3 {
			s.SetError(StatusBadRequest, "invalid status code")
			return cur + codeLen
		}
		n, ok := parseNonNegativeInt(s.codeBuf)
		if !ok {
			s.SetError(StatusBadRequest, "invalid status code")
			return cur + codeLen
		}
		sc, known := StatusCodeFromInt(n)
		if !known {
			s.SetError(StatusBadRequest, "unknown status code")
			return cur + codeLen
		}
		s.Status = sc
		s.phase = phaseReason
		cur = space + 1
		fallthrough

	case phaseReason:
		s.reasonBuf = append(s.reasonBuf, buf[cur:newline]...)
		cur = newline
		if cur == end {
			return end
		}
		if buf[cur] == '\r' {
			if !s.IncreaseLength(1) {
				s.SetError(StatusBadRequest, errTooLong)
				return cur
			}
			cur++
		}
		s.phase = phaseStatusNewline
		fallthrough

	case phaseStatusNewline:
		if cur == end {
			return end
		}
		if buf[cur] != '\n' {
			s.SetError(StatusBadRequest, "invalid status line")
			return cur
		}
		if !s.IncreaseLength(1) {
			s.SetError(StatusBadRequest, errTooLong)
			return cur
		}
		cur++
		s.Reason = string(s.reasonBuf)
		s.SetDone()
		return cur
	}
	return cur
}

func (s *StatusLine) parseVersion() bool {
	b := s.versionBuf
	if len(b) < 5 || string(b[:5]) != "HTTP/" {
		return false
	}
	b = b[5:]
	dot := -1
	for i, c := range b {
		if c == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return false
	}
	major, ok := parseNonNegativeInt(b[:dot])
	if !ok {
		return false
	}
	minor, ok := parseNonNegativeInt(b[dot+1:])
	if !ok {
		return false
	}
	s.MajorVer, s.MinorVer = major, minor
	return true
}
