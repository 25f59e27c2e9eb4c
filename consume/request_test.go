/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package consume

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestMinimalGet(t *testing.T) {
	input := "GET / HTTP/1.1\r\n\r\nextra"
	r := NewRequest()
	n, _ := r.Consume([]byte(input))
	require.Equal(t, 18, n)
	require.True(t, r.Done())
	require.Nil(t, r.Err())
	require.Equal(t, "GET", r.Method())
	require.Equal(t, "/", r.URI().Path)
	require.Equal(t, 1, r.MajorVer())
	require.Equal(t, 1, r.MinorVer())
	require.Equal(t, 0, r.Headers().Len())
	require.False(t, r.HasBody())
}

func TestRequestFoldedHeader(t *testing.T) {
	input := "GET / HTTP/1.1\r\nalpha: bravo\r\n charlie delta\r\n\r\n"
	r := NewRequest()
	r.Consume([]byte(input))
	require.True(t, r.Done())
	require.Nil(t, r.Err())
	v, ok := r.Headers().Get("alpha")
	require.True(t, ok)
	require.Equal(t, "bravo charlie delta", v)
}

func TestRequestLineLengthLimitReportsURITooLong(t *testing.T) {
	r := NewRequest()
	r.SetLineLimit(5)
	input := "GET /alpha HTTP/1.1\r\n"
	r.Consume([]byte(input))
	require.True(t, r.Done())
	require.NotNil(t, r.Err())
	require.Equal(t, StatusRequestURITooLong, r.Err().Status)
}

func TestRequestChunkedPrecedenceOverContentLength(t *testing.T) {
	input := "POST /x HTTP/1.1\r\n" +
		"Content-Length: 999\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"4\r\nabcd\r\n0\r\n\r\n"
	// The body consumer reports at most one data slice per call, so the
	// rest of the input is fed again until the request is done.
	r := NewRequest()
	n := 0
	for n < len(input) && !r.Done() {
		m, _ := r.Consume([]byte(input)[n:])
		if m == 0 {
			break
		}
		n += m
	}
	require.Equal(t, len(input), n)
	require.True(t, r.Done())
	require.Nil(t, r.Err())
	require.True(t, r.HasBody())
}

func TestRequestConflictingContentLengthRejected(t *testing.T) {
	input := "POST /x HTTP/1.1\r\n" +
		"Content-Length: 4\r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"abcd"
	r := NewRequest()
	r.Consume([]byte(input))
	require.True(t, r.Done())
	require.NotNil(t, r.Err())
	require.Equal(t, StatusBadRequest, r.Err().Status)
}

// TestRequestChunkingIndependence checks the chunking-independence property
// (SPEC's §8): feeding the same input one byte at a time yields the same
// final method/URI/version/headers/body as feeding it in one shot.
func TestRequestChunkingIndependence(t *testing.T) {
	input := "POST /resource?q=1 HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"hello"

	whole := NewRequest()
	wholeConsumed, _ := whole.Consume([]byte(input))

	piecemeal := NewRequest()
	var body []byte
	total := 0
	for i := 0; i < len(input) && !piecemeal.Done(); i++ {
		n, slice := piecemeal.Consume([]byte(input)[i : i+1])
		total += n
		if slice.Length > 0 {
			body = append(body, input[i:i+1][slice.Offset:slice.Offset+slice.Length]...)
		}
	}

	require.Equal(t, wholeConsumed, total)
	require.Equal(t, whole.Done(), piecemeal.Done())
	require.Equal(t, whole.Method(), piecemeal.Method())
	require.Equal(t, whole.URI(), piecemeal.URI())
	require.Equal(t, whole.MajorVer(), piecemeal.MajorVer())
	require.Equal(t, whole.MinorVer(), piecemeal.MinorVer())
	require.True(t, whole.Headers().Equal(piecemeal.Headers()))
	require.Equal(t, "hello", string(body))
}

// TestRequestLengthLimitNeverOverruns checks the length-limit property: the
// consumer never consumes more than limit+1 bytes before reporting an
// error (here RequestURITooLong, since the limit runs out in the URI).
func TestRequestLengthLimitNeverOverruns(t *testing.T) {
	const limit = 10
	r := NewRequest()
	r.SetLineLimit(limit)
	input := "GET /this-path-is-much-too-long-for-the-limit HTTP/1.1\r\n"
	n, _ := r.Consume([]byte(input))
	require.True(t, r.Done())
	require.NotNil(t, r.Err())
	require.LessOrEqual(t, n, limit+1)
}
