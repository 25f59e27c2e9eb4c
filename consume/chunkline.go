/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package consume

type chunkLinePhase int

const (
	phaseChunkDigit chunkLinePhase = iota
	phaseChunkNewline
)

// maxNibbles caps the accumulated hex digits at 2*sizeof(size_t), matching
// the original's fixed cap (this consumer ignores the shared length limit
// and enforces its own).
const maxNibbles = 2 * 8 // size_t is 8 bytes on the platforms this targets

// ChunkLine parses one chunked-transfer-coding size line (C7): hex digits
// terminated by CRLF or LF, with no chunk-extension support — an extension
// would appear as trailing non-hex, non-CR/LF bytes and is rejected as a
// malformed chunk size.
type ChunkLine struct {
	Base
	phase chunkLinePhase
	nibs  int
	val   uint64
}

func NewChunkLine() *ChunkLine { return &ChunkLine{} }

func (c *ChunkLine) Reset() {
	c.Base.Reset()
	c.phase = phaseChunkDigit
	c.nibs = 0
	c.val = 0
}

// ChunkSize returns the parsed chunk size, valid once Done() and Err() ==
// nil.
func (c *ChunkLine) ChunkSize() uint64 { return c.val }

func (c *ChunkLine) Consume(buf []byte) int {
	i := 0
	for {
		if i == len(buf) {
			return i // incomplete
		}
		switch c.phase {
		case phaseChunkDigit:
			if c.nibs == maxNibbles {
				c.SetError(StatusBadRequest, "chunk size too big")
				return i
			}
			b := buf[i]
			switch {
			case b == '\r':
				if c.nibs == 0 {
					c.SetError(StatusBadRequest, "invalid chunk size")
					return i
				}
				c.IncreaseLength(1)
				c.phase = phaseChunkNewline
			case b == '\n':
				if c.nibs == 0 {
					c.SetError(StatusBadRequest, "invalid chunk size")
					return i
				}
				c.IncreaseLength(1)
				c.SetDone()
				return i + 1
			case isHexDigit(b):
				c.val <<= 4
				c.nibs++
				c.IncreaseLength(1)
				c.val |= uint64(hexVal(b))
			default:
				c.SetError(StatusBadRequest, "invalid chunk size")
				return i
			}
		case phaseChunkNewline:
			if buf[i] != '\n' {
				c.SetError(StatusBadRequest, "invalid chunk size")
				return i
			}
			c.IncreaseLength(1)
			c.SetDone()
			return i + 1
		}
		i++
	}
}

func isHexDigit(b byte) bool {
	return '0' <= b && b <= '9' || 'a' <= b && b <= 'f' || 'A' <= b && b <= 'F'
}

func hexVal(b byte) byte {
	switch {
	case '0' <= b && b <= '9':
		return b - '0'
	case 'a' <= b && b <= 'f':
		return b - 'a' + 10
	default:
		return b - 'A' + 10
	}
}
