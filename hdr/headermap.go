/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

import "sort"

// HeaderMap is a case-insensitive-name ordered multimap of header name to
// header value. Name comparison is ASCII case-insensitive; value comparison
// is case-sensitive. It is kept as a slice of entries rather than a
// map[string][]string so that iteration order is deterministic.
//
// HeaderMap is the only place in this library where multiple
// entries may share a key; it is grounded on the original's
// std::multimap<string,string,header_name_less>.
type HeaderMap struct {
	entries []headerEntry
}

type headerEntry struct {
	name  string // as inserted, not canonicalized
	value string
}

// lowerASCII lowercases a byte string without touching non-ASCII bytes.
func lowerASCII(s string) string {
	needsFold := false
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			needsFold = true
			break
		}
	}
	if !needsFold {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Add appends a (name, value) pair, preserving insertion order among
// entries that share a name. It does not validate name or value; the
// headers consumer (C6) validates before calling Add.
func (m *HeaderMap) Add(name, value string) {
	m.entries = append(m.entries, headerEntry{name: name, value: value})
}

// Get returns the first value stored under name (case-insensitive), and
// whether any entry was found.
func (m *HeaderMap) Get(name string) (string, bool) {
	ln := lowerASCII(name)
	for _, e := range m.entries {
		if lowerASCII(e.name) == ln {
			return e.value, true
		}
	}
	return "", false
}

// Values returns every value stored under name, in insertion order.
func (m *HeaderMap) Values(name string) []string {
	ln := lowerASCII(name)
	var out []string
	for _, e := range m.entries {
		if lowerASCII(e.name) == ln {
			out = append(out, e.value)
		}
	}
	return out
}

// Del removes every entry stored under name.
func (m *HeaderMap) Del(name string) {
	ln := lowerASCII(name)
	out := m.entries[:0]
	for _, e := range m.entries {
		if lowerASCII(e.name) != ln {
			out = append(out, e)
		}
	}
	m.entries = out
}

// Len returns the total number of (name, value) entries.
func (m *HeaderMap) Len() int { return len(m.entries) }

// Names returns the distinct header names present, each in its canonical
// form, sorted lexicographically case-insensitively.
func (m *HeaderMap) Names() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range m.entries {
		ln := lowerASCII(e.name)
		if !seen[ln] {
			seen[ln] = true
			out = append(out, CanonicalHeaderKey(e.name))
		}
	}
	sort.Slice(out, func(i, j int) bool { return lowerASCII(out[i]) < lowerASCII(out[j]) })
	return out
}

// Range calls fn for every (name, value) pair in deterministic order:
// lexicographic case-insensitive by name across distinct names, insertion
// order within entries sharing a name.
func (m *HeaderMap) Range(fn func(name, value string)) {
	type group struct {
		lname string
		idxs  []int
	}
	order := map[string]*group{}
	var groups []*group
	for i, e := range m.entries {
		ln := lowerASCII(e.name)
		g, ok := order[ln]
		if !ok {
			g = &group{lname: ln}
			order[ln] = g
			groups = append(groups, g)
		}
		g.idxs = append(g.idxs, i)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].lname < groups[j].lname })
	for _, g := range groups {
		for _, idx := range g.idxs {
			fn(m.entries[idx].name, m.entries[idx].value)
		}
	}
}

// Equal reports whether m and other contain the same multiset of
// (case-insensitive-name, exact-value) pairs, with the same per-name
// insertion order, mirroring the original header_map operator==.
func (m *HeaderMap) Equal(other *HeaderMap) bool {
	if m.Len() != other.Len() {
		return false
	}
	a := m.groupedByName()
	b := other.groupedByName()
	if len(a) != len(b) {
		return false
	}
	for name, av := range a {
		bv, ok := b[name]
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
	}
	return true
}

func (m *HeaderMap) groupedByName() map[string][]string {
	out := map[string][]string{}
	for _, e := range m.entries {
		ln := lowerASCII(e.name)
		out[ln] = append(out[ln], e.value)
	}
	return out
}
