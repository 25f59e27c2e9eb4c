/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

const toLower = 'a' - 'A'

// Well-known header names, kept from the teacher's header-name constant
// block, trimmed to a handful; all of them are interned in commonHeader.
const (
	Host             = "Host"
	ContentLength    = "Content-Length"
	TransferEncoding = "Transfer-Encoding"
	Trailer          = "Trailer"
	Connection       = "Connection"
	Expect           = "Expect"
	Date             = "Date"
	ServerHeader     = "Server"
	ContentType      = "Content-Type"
)

// commonHeader interns common header strings, exactly like the teacher's
// hdr package, to avoid allocating a new string for every canonicalized
// well-known header name.
var commonHeader = make(map[string]string)

func init() {
	for _, v := range []string{
		Host, ContentLength, TransferEncoding, Trailer, Connection, Expect,
		Date, ServerHeader, ContentType,
	} {
		commonHeader[v] = v
	}
}

// isTokenTable is shared with consume.IsTokenChar's table; duplicated here
// (rather than imported) because hdr must not depend on consume — consume
// depends on hdr for HeaderMap, and a cycle would otherwise result.
var isTokenTable = [127]bool{
	'0': true, '1': true, '2': true, '3': true, '4': true, '5': true, '6': true, '7': true,
	'8': true, '9': true,

	'a': true, 'b': true, 'c': true, 'd': true, 'e': true, 'f': true, 'g': true, 'h': true,
	'i': true, 'j': true, 'k': true, 'l': true, 'm': true, 'n': true, 'o': true, 'p': true,
	'q': true, 'r': true, 's': true, 't': true, 'u': true, 'v': true, 'w': true, 'x': true,
	'y': true, 'z': true,

	'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true, 'G': true, 'H': true,
	'I': true, 'J': true, 'K': true, 'L': true, 'M': true, 'N': true, 'O': true, 'P': true,
	'Q': true, 'R': true, 'S': true, 'T': true, 'U': true, 'V': true, 'W': true, 'X': true,
	'Y': true, 'Z': true,

	'!': true, '#': true, '$': true, '%': true, '&': true, '\'': true, '*': true, '+': true,
	'-': true, '.': true, '^': true, '_': true, '`': true, '|': true, '~': true,
}

func validHeaderFieldByte(b byte) bool {
	return int(b) < len(isTokenTable) && isTokenTable[b]
}

// CanonicalHeaderKey returns the canonical form of a header field name: the
// first byte and every byte following a hyphen uppercased, all others
// lowercased. Adapted verbatim in algorithm from the teacher's
// canonicalMIMEHeaderKey.
func CanonicalHeaderKey(s string) string {
	a := []byte(s)
	for _, c := range a {
		if !validHeaderFieldByte(c) {
			return s // not token-shaped: return unchanged
		}
	}
	upper := true
	for i, c := range a {
		if upper && 'a' <= c && c <= 'z' {
			c -= toLower
		} else if !upper && 'A' <= c && c <= 'Z' {
			c += toLower
		}
		a[i] = c
		upper = c == '-'
	}
	if v := commonHeader[string(a)]; v != "" {
		return v
	}
	return string(a)
}
