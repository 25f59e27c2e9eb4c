/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package consume

import "bytes"

// FindNewline returns the index, within buf, of the first "unreadable" byte
// of the current line: the CR of a CRLF pair, a lone LF, a trailing CR at
// the very end of buf, or len(buf) if none of those is present. A CR not
// followed by LF within buf counts as readable and is skipped.
func FindNewline(buf []byte) int {
	i := bytes.IndexByte(buf, '\n')
	if i > 0 && buf[i-1] == '\r' {
		return i - 1
	}
	if i >= 0 {
		return i
	}
	if len(buf) > 0 && buf[len(buf)-1] == '\r' {
		return len(buf) - 1
	}
	return len(buf)
}
