/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/badu/htio/hdr"
)

func newTestRequest(major, minor int, connHeader string) *Request {
	h := &hdr.HeaderMap{}
	if connHeader != "" {
		h.Add(hdr.Connection, connHeader)
	}
	return &Request{MajorVer: major, MinorVer: minor, Headers: h}
}

func TestWantsKeepAliveHTTP11DefaultsOpen(t *testing.T) {
	require.True(t, wantsKeepAlive(newTestRequest(1, 1, "")))
}

func TestWantsKeepAliveHTTP11HonorsClose(t *testing.T) {
	require.False(t, wantsKeepAlive(newTestRequest(1, 1, "close")))
}

func TestWantsKeepAliveHTTP10DefaultsClosed(t *testing.T) {
	require.False(t, wantsKeepAlive(newTestRequest(1, 0, "")))
}

func TestWantsKeepAliveHTTP10HonorsKeepAlive(t *testing.T) {
	require.True(t, wantsKeepAlive(newTestRequest(1, 0, "keep-alive")))
}

func TestSerializeResponseSetsContentLengthAndConnection(t *testing.T) {
	resp := NewResponse()
	resp.Headers.Add("X-Test", "1")
	resp.Write([]byte("hello"))

	out := string(serializeResponse(resp, 1, 1, true))
	require.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	require.Contains(t, out, "Content-Length: 5\r\n")
	require.Contains(t, out, "Connection: keep-alive\r\n")
	require.Contains(t, out, "X-Test: 1\r\n")
	require.True(t, strings.HasSuffix(out, "\r\n\r\nhello"))
}

func TestSerializeResponseClose(t *testing.T) {
	resp := NewResponse()
	resp.WriteHeader(StatusNotFound)
	out := string(serializeResponse(resp, 1, 1, false))
	require.True(t, strings.HasPrefix(out, "HTTP/1.1 404 Not Found\r\n"))
	require.Contains(t, out, "Connection: close\r\n")
}
