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

package errdefs

import "errors"

// Errors shared by all services. Timeouts split into two subclasses: an
// unambiguous timeout guarantees the operation did not change server state,
// an ambiguous one makes no such promise. Both still match ErrTimeout.
var (
	ErrTimeout            = errors.New("operation has timed out")
	ErrAmbiguousTimeout   = class("ambiguous timeout", ErrTimeout)
	ErrUnambiguousTimeout = class("unambiguous timeout", ErrTimeout)

	// ErrRequestCanceled means the operation was canceled by the caller or
	// by connection teardown, not by a deadline.
	ErrRequestCanceled = errors.New("request canceled")

	ErrInvalidArgument       = errors.New("invalid argument")
	ErrServiceNotAvailable   = errors.New("service not available")
	ErrInternalServerFailure = errors.New("internal server failure")
	ErrAuthenticationFailure = errors.New("authentication failure")

	// ErrTemporaryFailure means the server could not satisfy the request
	// right now but is expected to recover.
	ErrTemporaryFailure = errors.New("temporary failure")

	ErrParsingFailure = errors.New("parsing failure")

	// ErrCasMismatch means the document changed since the CAS value supplied
	// with the mutation was observed.
	ErrCasMismatch = errors.New("cas mismatch")

	ErrBucketNotFound     = errors.New("bucket not found")
	ErrScopeNotFound      = errors.New("scope not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrIndexNotFound      = errors.New("index not found")
	ErrIndexExists        = errors.New("index exists")

	ErrEncodingFailure = errors.New("encoding failure")
	ErrDecodingFailure = errors.New("decoding failure")

	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrFeatureNotAvailable  = errors.New("feature not available")
)
