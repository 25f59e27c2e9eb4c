/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package consume

import "github.com/badu/htio/hdr"

// BodyMode selects how a Body consumer frames the entity body (C8).
type BodyMode int

const (
	// BodyFixed delivers exactly N bytes, then is done.
	BodyFixed BodyMode = iota
	// BodyInfinite delivers bytes until the peer shuts down; it never
	// self-terminates, so Done() never becomes true for this mode.
	BodyInfinite
	// BodyChunked alternates size line, chunk data, CRLF, until a
	// zero-sized chunk, then optional trailers.
	BodyChunked
)

type bodyChunkPhase int

const (
	phaseChunkSizeLine bodyChunkPhase = iota
	phaseChunkData
	phaseChunkDataTerm
	phaseBodyTrailers
)

// BodySlice identifies the (offset, length) window of the caller's buffer
// that held body data on the most recent Consume call, so that data can be
// handed to a downstream sink without copying.
type BodySlice struct {
	Offset int
	Length int
}

// Body produces body bytes for fixed-length, chunked, or until-close
// framing (C8). It owns no bytes of its own; it reports where the caller's
// buffer held body data.
type Body struct {
	Base
	mode BodyMode

	fixedRemaining uint64

	chunkPhase     bodyChunkPhase
	chunkLine      *ChunkLine
	chunkRemaining uint64
	trailers       *Headers
	Trailers       *hdr.HeaderMap
}

// NewFixedBody returns a Body that delivers exactly n bytes.
func NewFixedBody(n uint64) *Body {
	return &Body{mode: BodyFixed, fixedRemaining: n}
}

// NewInfiniteBody returns a Body that delivers bytes until the caller
// observes the peer's FIN and stops calling Consume.
func NewInfiniteBody() *Body {
	return &Body{mode: BodyInfinite}
}

// NewChunkedBody returns a Body that decodes chunked transfer coding,
// merging any trailers into trailers.
func NewChunkedBody(trailers *hdr.HeaderMap) *Body {
	b := &Body{mode: BodyChunked, chunkLine: NewChunkLine(), Trailers: trailers}
	b.trailers = NewHeaders(trailers)
	return b
}

// Consume feeds buf into the body consumer, returning the number of bytes
// consumed this call and the slice of buf (if any) that is body data ready
// to hand to a downstream sink.
func (b *Body) Consume(buf []byte) (int, BodySlice) {
	switch b.mode {
	case BodyFixed:
		return b.consumeFixed(buf)
	case BodyInfinite:
		return len(buf), BodySlice{0, len(buf)}
	default:
		return b.consumeChunked(buf)
	}
}

func (b *Body) consumeFixed(buf []byte) (int, BodySlice) {
	if b.fixedRemaining == 0 {
		b.SetDone()
		return 0, BodySlice{}
	}
	n := len(buf)
	if uint64(n) > b.fixedRemaining {
		n = int(b.fixedRemaining)
	}
	b.fixedRemaining -= uint64(n)
	if b.fixedRemaining == 0 {
		b.SetDone()
	}
	return n, BodySlice{0, n}
}

func (b *Body) consumeChunked(buf []byte) (int, BodySlice) {
	cur := 0
	end := len(buf)
	for cur < end {
		switch b.chunkPhase {

		case phaseChunkSizeLine:
			n := b.chunkLine.Consume(buf[cur:end])
			cur += n
			if !b.chunkLine.Done() {
				return cur, BodySlice{}
			}
			if err := b.chunkLine.Err(); err != nil {
				b.SetError(err.Status, err.Detail)
				return cur, BodySlice{}
			}
			b.chunkRemaining = b.chunkLine.ChunkSize()
			b.chunkLine.Reset()
			if b.chunkRemaining == 0 {
				b.chunkPhase = phaseBodyTrailers
			} else {
				b.chunkPhase = phaseChunkData
			}

		case phaseChunkData:
			avail := end - cur
			n := avail
			if uint64(n) > b.chunkRemaining {
				n = int(b.chunkRemaining)
			}
			off := cur
			cur += n
			b.chunkRemaining -= uint64(n)
			if b.chunkRemaining == 0 {
				b.chunkPhase = phaseChunkDataTerm
			}
			return cur, BodySlice{off, n}

		case phaseChunkDataTerm:
			if buf[cur] == '\r' {
				cur++
				if cur == end {
					return cur, BodySlice{}
				}
			}
			if buf[cur] != '\n' {
				b.SetError(StatusBadRequest, "invalid chunk data terminator")
				return cur, BodySlice{}
			}
			cur++
			b.chunkPhase = phaseChunkSizeLine

		case phaseBodyTrailers:
			n := b.trailers.Consume(buf[cur:end])
			cur += n
			if !b.trailers.Done() {
				return cur, BodySlice{}
			}
			if err := b.trailers.Err(); err != nil {
				b.SetError(err.Status, err.Detail)
				return cur, BodySlice{}
			}
			b.SetDone()
			return cur, BodySlice{}
		}
	}
	return cur, BodySlice{}
}
