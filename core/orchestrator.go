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

package core

import (
	"context"
	"errors"
	"time"

	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/retry"
)

// RetriedRequest is the orchestrator's view of an operation: the strategy
// inputs plus the bookkeeping it updates between attempts.
type RetriedRequest interface {
	retry.Request
	RetryStrategy() retry.Strategy
	RecordRetry(reason retry.Reason)
	Dispatched() bool
}

// AttemptFunc runs a single attempt of an operation. A nil error means the
// operation is done. A non-nil error with the zero reason is terminal; with a
// reason it is a retry candidate for that reason.
type AttemptFunc[T any] func(ctx context.Context) (T, retry.Reason, error)

var defaultStrategy retry.Strategy = retry.NewBestEffort(nil)

// TimeoutSentinel classifies a deadline hit for the request: ambiguous when a
// non-idempotent request was dispatched at least once, since the server may
// have applied an attempt, unambiguous otherwise.
func TimeoutSentinel(req RetriedRequest) error {
	if req.Dispatched() && !req.Idempotent() {
		return errdefs.ErrAmbiguousTimeout
	}
	return errdefs.ErrUnambiguousTimeout
}

// CancellationSentinel classifies a context failure: deadline expiry gets the
// timeout classification, anything else is a caller cancellation.
func CancellationSentinel(ctx context.Context, req RetriedRequest) error {
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return TimeoutSentinel(req)
	}
	return errdefs.ErrRequestCanceled
}

// Orchestrate runs attempts of req until one succeeds, fails terminally, the
// strategy declines a retry, or the context ends. Reasons marked AlwaysRetry
// bypass the strategy and wait on the controlled backoff schedule; everything
// else waits per the request's strategy (best effort with exponential backoff
// when unset). The orchestrator never sleeps past the context deadline: a
// backoff that would cross it fails with the timeout classification right
// away. It returns taxonomy sentinels for timeouts and cancellations; callers
// wrap those with their operation context.
func Orchestrate[T any](
	ctx context.Context,
	logger *logging.Logger,
	req RetriedRequest,
	fn AttemptFunc[T],
) (T, error) {
	var zero T
	if logger == nil {
		logger = logging.GetLogger("core/orchestrator")
	}
	for {
		if ctx.Err() != nil {
			return zero, CancellationSentinel(ctx, req)
		}

		res, reason, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			// the attempt lost a race with the context; classify from the
			// context, not the attempt's error
			return zero, CancellationSentinel(ctx, req)
		}
		if reason == (retry.Reason{}) {
			return zero, err
		}

		var wait time.Duration
		if reason.AlwaysRetry() {
			wait = retry.ControlledBackoff(req.Attempts())
		} else {
			strategy := req.RetryStrategy()
			if strategy == nil {
				strategy = defaultStrategy
			}
			action := strategy.RetryAfter(req, reason)
			if !action.Retry() {
				return zero, err
			}
			wait = action.Duration
		}
		req.RecordRetry(reason)

		if deadline, ok := ctx.Deadline(); ok && wait >= time.Until(deadline) {
			return zero, TimeoutSentinel(req)
		}

		logger.Trace().
			Str("operation", req.Operation()).
			Stringer("reason", reason).
			Uint32("attempts", req.Attempts()).
			Dur("backoff", wait).
			AnErr("cause", err).
			Msg("Retrying operation")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, CancellationSentinel(ctx, req)
		case <-timer.C:
		}
	}
}
