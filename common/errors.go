/*
 *
 * xk6-headless - a headless page automation extension for k6
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the errors returned by a Page.
type ErrorKind int

// Error kinds.
const (
	// ErrorKindInit means the engine could not start.
	ErrorKindInit ErrorKind = iota + 1
	// ErrorKindLoad means a navigation did not succeed.
	ErrorKindLoad
	// ErrorKindTimeout means a deadline bound wait expired.
	ErrorKindTimeout
	// ErrorKindScript means a script threw or produced no usable result.
	ErrorKindScript
	// ErrorKindScreenshot means a capture or its encoding failed.
	ErrorKindScreenshot
	// ErrorKindChannelClosed means the worker loop is no longer reachable.
	ErrorKindChannelClosed
	// ErrorKindInvalidArgument means an argument was rejected before dispatch.
	ErrorKindInvalidArgument
	// ErrorKindNoActiveSession means the command needs an open page.
	ErrorKindNoActiveSession
	// ErrorKindSelectorNotFound means no element matched the selector.
	ErrorKindSelectorNotFound
)

var errorKindNames = map[ErrorKind]string{ //nolint:gochecknoglobals
	ErrorKindInit:             "initialization failed",
	ErrorKindLoad:             "load failed",
	ErrorKindTimeout:          "timeout",
	ErrorKindScript:           "script error",
	ErrorKindScreenshot:       "screenshot failed",
	ErrorKindChannelClosed:    "channel closed",
	ErrorKindInvalidArgument:  "invalid argument",
	ErrorKindNoActiveSession:  "no active session",
	ErrorKindSelectorNotFound: "selector not found",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels to match Page errors by kind with errors.Is.
var (
	ErrInit             = &Error{Kind: ErrorKindInit}
	ErrLoad             = &Error{Kind: ErrorKindLoad}
	ErrTimeout          = &Error{Kind: ErrorKindTimeout}
	ErrScript           = &Error{Kind: ErrorKindScript}
	ErrScreenshot       = &Error{Kind: ErrorKindScreenshot}
	ErrChannelClosed    = &Error{Kind: ErrorKindChannelClosed}
	ErrInvalidArgument  = &Error{Kind: ErrorKindInvalidArgument}
	ErrNoActiveSession  = &Error{Kind: ErrorKindNoActiveSession}
	ErrSelectorNotFound = &Error{Kind: ErrorKindSelectorNotFound}
)

// Error is the error returned by Page operations.
type Error struct {
	Kind ErrorKind
	// Op is the command that failed, e.g. "open".
	Op  string
	Msg string
	Err error
}

func newError(kind ErrorKind, op string, err error, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of err, or zero when err is not a Page error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
