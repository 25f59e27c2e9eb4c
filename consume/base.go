/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package consume

// Error is a parse error surfaced by a consumer: an HTTP status to report
// to the peer plus a short, static description. It is always fatal to the
// current request.
type Error struct {
	Status StatusCode
	Detail string
}

func (e *Error) Error() string { return e.Detail }

var errTooLong = "message too long"

// Base is the state shared by every consumer in this package except the
// composite Request, which keeps its own done/error state: a running
// byte count, an optional length limit, and a sticky done/error state.
// Consumers embed Base by value (see SPEC_FULL.md's design notes on
// replacing the original's class hierarchy with composition) rather than
// inheriting from it.
type Base struct {
	total uint64
	limit uint64
	done  bool
	err   *Error
}

// SetLengthLimit sets the consumer's length limit; 0 means unlimited.
func (b *Base) SetLengthLimit(n uint64) { b.limit = n }

// Length returns the number of bytes consumed so far.
func (b *Base) Length() uint64 { return b.total }

// Done reports whether the consumer has finished, successfully or not.
func (b *Base) Done() bool { return b.done }

// Err returns the parse error, if the consumer finished with one.
func (b *Base) Err() *Error { return b.err }

// Reset clears total and done but preserves the length limit.
func (b *Base) Reset() {
	b.total = 0
	b.done = false
	b.err = nil
}

// IncreaseLength adds n to the running total, reporting false on overflow
// or on exceeding a non-zero length limit. It does not itself set the
// error state; callers translate a false return into the appropriate
// status-coded error for their phase.
func (b *Base) IncreaseLength(n uint64) bool {
	newTotal := b.total + n
	if newTotal < b.total {
		return false // overflow
	}
	if b.limit != 0 && newTotal > b.limit {
		return false
	}
	b.total = newTotal
	return true
}

// SetError puts the consumer into the done-with-error state.
func (b *Base) SetError(code StatusCode, what string) {
	b.done = true
	b.err = &Error{Status: code, Detail: what}
}

// SetDone marks the consumer as finished successfully.
func (b *Base) SetDone() { b.done = true }
