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

package compat

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.6river.tech/dockv/errdefs"
)

// AsStatusError converts a taxonomy error into a gRPC status error so data
// service failures can cross a gRPC boundary with meaningful codes. Existing
// status errors pass through untouched. Errors outside the taxonomy become
// codes.Internal.
func AsStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(interface {
		GRPCStatus() *status.Status
	}); ok {
		// already a status error
		return err
	}
	return status.Error(statusCode(err), err.Error())
}

func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, errdefs.ErrRequestCanceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, errdefs.ErrTimeout):
		return codes.DeadlineExceeded
	case isAny(err,
		errdefs.ErrDocumentNotFound,
		errdefs.ErrBucketNotFound,
		errdefs.ErrScopeNotFound,
		errdefs.ErrCollectionNotFound,
		errdefs.ErrIndexNotFound,
		errdefs.ErrPathNotFound,
	):
		return codes.NotFound
	case isAny(err,
		errdefs.ErrDocumentExists,
		errdefs.ErrIndexExists,
		errdefs.ErrPathExists,
	):
		return codes.AlreadyExists
	// contention outcomes a caller can resolve by re-reading and retrying
	case isAny(err,
		errdefs.ErrCasMismatch,
		errdefs.ErrDocumentLocked,
		errdefs.ErrDurabilityAmbiguous,
		errdefs.ErrDurableWriteInProgress,
		errdefs.ErrDurableWriteReCommitInProgress,
	):
		return codes.Aborted
	case isAny(err,
		errdefs.ErrInvalidArgument,
		errdefs.ErrEncodingFailure,
		errdefs.ErrDecodingFailure,
		errdefs.ErrParsingFailure,
		errdefs.ErrDeltaInvalid,
	):
		return codes.InvalidArgument
	case errors.Is(err, errdefs.ErrAuthenticationFailure):
		return codes.Unauthenticated
	case isAny(err,
		errdefs.ErrServiceNotAvailable,
		errdefs.ErrTemporaryFailure,
		errdefs.ErrDurabilityLevelNotAvailable,
		errdefs.ErrDurabilityImpossible,
	):
		return codes.Unavailable
	case errors.Is(err, errdefs.ErrValueTooLarge):
		return codes.ResourceExhausted
	case isAny(err,
		errdefs.ErrUnsupportedOperation,
		errdefs.ErrFeatureNotAvailable,
	):
		return codes.Unimplemented
	}
	return codes.Internal
}

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// FromStatusError converts a gRPC status error back into the taxonomy, best
// effort: one representative sentinel per code, wrapping the status message.
// A code's finer distinctions (which resource was missing, which contention
// outcome) do not survive the gRPC boundary. Non-status errors and
// codes.Unknown pass through untouched.
func FromStatusError(err error) error {
	if err == nil {
		return nil
	}
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch s.Code() {
	case codes.OK:
		return nil
	case codes.Canceled:
		sentinel = errdefs.ErrRequestCanceled
	case codes.DeadlineExceeded:
		// the far side may have dispatched work before the deadline hit
		sentinel = errdefs.ErrAmbiguousTimeout
	case codes.NotFound:
		sentinel = errdefs.ErrDocumentNotFound
	case codes.AlreadyExists:
		sentinel = errdefs.ErrDocumentExists
	case codes.Aborted:
		sentinel = errdefs.ErrCasMismatch
	case codes.InvalidArgument:
		sentinel = errdefs.ErrInvalidArgument
	case codes.Unauthenticated, codes.PermissionDenied:
		sentinel = errdefs.ErrAuthenticationFailure
	case codes.Unavailable:
		sentinel = errdefs.ErrServiceNotAvailable
	case codes.ResourceExhausted:
		// rate limiting is the common meaning; value-too-large does not
		// round trip
		sentinel = errdefs.ErrTemporaryFailure
	case codes.Unimplemented:
		sentinel = errdefs.ErrUnsupportedOperation
	case codes.Internal:
		sentinel = errdefs.ErrInternalServerFailure
	default:
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, s.Message())
}
