// Copyright (c) 2021 6 River Systems
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// Package errdefs defines the error taxonomy for the dockv client: sentinel
// error classes shared by every service, the rich error contexts operations
// attach to them, and the registry of query service error codes.
//
// Callers match failures with errors.Is against the sentinels and extract
// contexts with errors.As; the contexts marshal to JSON and implement
// zerolog's object marshaler so a failure can be logged whole.
package errdefs

import (
	"go.6river.tech/dockv/retry"
)

// classErr is a sentinel participating in an error class hierarchy: matching
// it with errors.Is also matches every parent class.
type classErr struct {
	msg     string
	parents []error
}

func (e *classErr) Error() string {
	return e.msg
}

func (e *classErr) Unwrap() []error {
	return e.parents
}

// class builds a sentinel belonging to the given parent classes.
func class(msg string, parents ...error) error {
	return &classErr{msg: msg, parents: parents}
}

func reasonStrings(reasons []retry.Reason) []string {
	if len(reasons) == 0 {
		return nil
	}
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.String()
	}
	return out
}
