/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderMapCaseInsensitiveEqual(t *testing.T) {
	a := &HeaderMap{}
	a.Add("Content-Length", "0")
	b := &HeaderMap{}
	b.Add("content-length", "0")
	require.True(t, a.Equal(b))
}

func TestHeaderMapPreservesInsertionOrderPerName(t *testing.T) {
	m := &HeaderMap{}
	m.Add("Set-Cookie", "a=1")
	m.Add("Set-Cookie", "b=2")
	require.Equal(t, []string{"a=1", "b=2"}, m.Values("set-cookie"))
}

func TestHeaderMapDel(t *testing.T) {
	m := &HeaderMap{}
	m.Add("X-Foo", "1")
	m.Add("X-Bar", "2")
	m.Del("x-foo")
	require.Equal(t, 1, m.Len())
	_, ok := m.Get("X-Foo")
	require.False(t, ok)
}

func TestCanonicalHeaderKey(t *testing.T) {
	cases := map[string]string{
		"a-b-c":       "A-B-C",
		"User-Agent":  "User-Agent",
		"uSER-aGENT":  "User-Agent",
		"content-type": "Content-Type",
	}
	for in, want := range cases {
		require.Equal(t, want, CanonicalHeaderKey(in))
	}
}
