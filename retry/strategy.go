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

package retry

import (
	"time"
)

// Request is the view of an in-flight operation that strategies consult.
type Request interface {
	// Operation names the logical operation, e.g. "get" or "query".
	Operation() string
	// Idempotent reports whether the operation can safely execute more than
	// once.
	Idempotent() bool
	// Attempts reports how many times the operation has already been
	// dispatched.
	Attempts() uint32
}

// Action is a strategy's verdict for one retry decision. The zero value
// means "do not retry".
type Action struct {
	Duration time.Duration
}

// Retry reports whether the action calls for another attempt.
func (a Action) Retry() bool {
	return a.Duration > 0
}

// Strategy decides whether and when a failed operation should be attempted
// again. Implementations must be safe for concurrent use; one strategy
// instance is typically shared by every operation on a cluster.
type Strategy interface {
	RetryAfter(req Request, reason Reason) Action
}

// BestEffort retries every operation that is idempotent or whose failure
// reason permits a non-idempotent retry, waiting between attempts per its
// backoff calculator.
type BestEffort struct {
	backoff BackoffCalculator
}

// NewBestEffort builds the default strategy. A nil calculator selects
// exponential backoff from 1ms to 500ms doubling each attempt.
func NewBestEffort(calculator BackoffCalculator) *BestEffort {
	if calculator == nil {
		calculator = ExponentialBackoff(1*time.Millisecond, 500*time.Millisecond, 2)
	}
	return &BestEffort{backoff: calculator}
}

func (s *BestEffort) RetryAfter(req Request, reason Reason) Action {
	if req.Idempotent() || reason.AllowsNonIdempotentRetry() {
		return Action{Duration: s.backoff(req.Attempts())}
	}
	return Action{}
}

// FailFast never retries. Reasons marked AlwaysRetry are still honored by
// the orchestration layer, since those retries are topology housekeeping the
// application should never observe as failures.
type FailFast struct{}

func (FailFast) RetryAfter(Request, Reason) Action {
	return Action{}
}
