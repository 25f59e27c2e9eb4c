/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package netio provides non-blocking TCP sockets and the status
// classification the reactor package drives them with.
package netio

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Status classifies the outcome of a socket operation, mirroring the
// original's net::status enum rather than surfacing raw errno values to
// callers.
type Status int

const (
	StatusOK Status = iota
	StatusWouldBlock
	StatusInProgress
	StatusTimedOut
	StatusConnRefused
	StatusNetUnreachable
	StatusReset
	StatusAborted
	StatusNoResource
	StatusPermission
)

var statusText = map[Status]string{
	StatusOK:             "ok",
	StatusWouldBlock:     "operation would block",
	StatusInProgress:     "operation is in progress",
	StatusTimedOut:       "operation timed out",
	StatusConnRefused:    "connection was refused",
	StatusNetUnreachable: "network is unreachable",
	StatusReset:          "connection reset",
	StatusAborted:        "connection aborted",
	StatusNoResource:     "insufficient resources",
	StatusPermission:     "operation not permitted",
}

func (s Status) String() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return "unknown error"
}

// ClassifyError maps a syscall error to a Status. Unrecognized errnos
// classify as StatusAborted: the reactor treats an aborted signal the same
// way regardless of the precise errno, so a coarse default is safe.
func ClassifyError(err error) Status {
	if err == nil {
		return StatusOK
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return StatusAborted
	}
	switch errno {
	case unix.EAGAIN:
		return StatusWouldBlock
	case unix.EINPROGRESS:
		return StatusInProgress
	case unix.ETIMEDOUT:
		return StatusTimedOut
	case unix.ECONNREFUSED:
		return StatusConnRefused
	case unix.ENETUNREACH, unix.EHOSTUNREACH:
		return StatusNetUnreachable
	case unix.ECONNRESET:
		return StatusReset
	case unix.ECONNABORTED, unix.EPIPE:
		return StatusAborted
	case unix.ENOBUFS, unix.ENOMEM, unix.EMFILE, unix.ENFILE:
		return StatusNoResource
	case unix.EACCES, unix.EPERM:
		return StatusPermission
	default:
		return StatusAborted
	}
}
