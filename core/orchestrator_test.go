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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/retry"
)

var errAttempt = errors.New("attempt failed")

// fastBackoff keeps retry tests quick without changing the growth shape.
var fastBackoff = retry.ExponentialBackoff(time.Millisecond, 2*time.Millisecond, 2)

func TestOrchestrate_FirstAttemptSucceeds(t *testing.T) {
	req := &KvRequest{OpCode: OpGet}
	calls := 0
	got, err := Orchestrate(context.Background(), nil, req,
		func(context.Context) (string, retry.Reason, error) {
			calls++
			return "hello", retry.Reason{}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, 1, calls)
	assert.Zero(t, req.Attempts())
}

func TestOrchestrate_TerminalError(t *testing.T) {
	req := &KvRequest{OpCode: OpGet}
	calls := 0
	_, err := Orchestrate(context.Background(), nil, req,
		func(context.Context) (string, retry.Reason, error) {
			calls++
			return "", retry.Reason{}, errAttempt
		})
	assert.Same(t, errAttempt, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, req.Attempts())
	assert.Empty(t, req.RetryReasons())
}

func TestOrchestrate_RetriesThenSucceeds(t *testing.T) {
	req := &KvRequest{OpCode: OpGet, Strategy: retry.NewBestEffort(fastBackoff)}
	calls := 0
	got, err := Orchestrate(context.Background(), nil, req,
		func(context.Context) (int, retry.Reason, error) {
			calls++
			if calls < 3 {
				return 0, retry.ReasonKVTemporaryFailure, errAttempt
			}
			return 42, retry.Reason{}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.EqualValues(t, 2, req.Attempts())
	assert.Equal(t, []retry.Reason{retry.ReasonKVTemporaryFailure}, req.RetryReasons())
}

func TestOrchestrate_StrategyDeclines(t *testing.T) {
	// a connection lost with the request in flight must not be retried for a
	// non-idempotent operation
	req := &KvRequest{OpCode: OpSet, Strategy: retry.NewBestEffort(fastBackoff)}
	calls := 0
	_, err := Orchestrate(context.Background(), nil, req,
		func(context.Context) (struct{}, retry.Reason, error) {
			calls++
			return struct{}{}, retry.ReasonSocketCloseInFlight, errAttempt
		})
	assert.Same(t, errAttempt, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, req.Attempts(), "declined retries are not recorded as attempts")
}

func TestOrchestrate_AlwaysRetryBypassesFailFast(t *testing.T) {
	req := &KvRequest{OpCode: OpSet, Strategy: retry.FailFast{}}
	calls := 0
	_, err := Orchestrate(context.Background(), nil, req,
		func(context.Context) (struct{}, retry.Reason, error) {
			calls++
			if calls == 1 {
				return struct{}{}, retry.ReasonKVNotMyVBucket, errAttempt
			}
			return struct{}{}, retry.Reason{}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "topology housekeeping retries even under fail-fast")
	assert.EqualValues(t, 1, req.Attempts())
}

func TestOrchestrate_FailFastDeclinesOrdinaryReasons(t *testing.T) {
	req := &KvRequest{OpCode: OpGet, Strategy: retry.FailFast{}}
	calls := 0
	_, err := Orchestrate(context.Background(), nil, req,
		func(context.Context) (struct{}, retry.Reason, error) {
			calls++
			return struct{}{}, retry.ReasonKVTemporaryFailure, errAttempt
		})
	assert.Same(t, errAttempt, err)
	assert.Equal(t, 1, calls)
}

func TestOrchestrate_NeverSleepsPastDeadline(t *testing.T) {
	// the strategy wants a 10s pause, far beyond the deadline: fail now with
	// the timeout classification instead of sleeping into it
	slow := retry.NewBestEffort(retry.ExponentialBackoff(10*time.Second, 10*time.Second, 2))

	t.Run("idempotent is unambiguous", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		req := &KvRequest{OpCode: OpGet, Strategy: slow}
		req.MarkDispatched("node1")
		start := time.Now()
		_, err := Orchestrate(ctx, nil, req,
			func(context.Context) (struct{}, retry.Reason, error) {
				return struct{}{}, retry.ReasonKVTemporaryFailure, errAttempt
			})
		assert.ErrorIs(t, err, errdefs.ErrUnambiguousTimeout)
		assert.Less(t, time.Since(start), time.Second/2, "must not have slept")
	})

	t.Run("dispatched mutation is ambiguous", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		req := &KvRequest{OpCode: OpSet, Strategy: slow}
		req.MarkDispatched("node1")
		_, err := Orchestrate(ctx, nil, req,
			func(context.Context) (struct{}, retry.Reason, error) {
				return struct{}{}, retry.ReasonKVTemporaryFailure, errAttempt
			})
		assert.ErrorIs(t, err, errdefs.ErrAmbiguousTimeout)
		assert.ErrorIs(t, err, errdefs.ErrTimeout)
	})

	t.Run("undispatched mutation is unambiguous", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		req := &KvRequest{OpCode: OpSet, Strategy: slow}
		_, err := Orchestrate(ctx, nil, req,
			func(context.Context) (struct{}, retry.Reason, error) {
				return struct{}{}, retry.ReasonSocketNotAvailable, errAttempt
			})
		assert.ErrorIs(t, err, errdefs.ErrUnambiguousTimeout)
	})
}

func TestOrchestrate_ExpiredContextBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	req := &KvRequest{OpCode: OpSet}
	calls := 0
	_, err := Orchestrate(ctx, nil, req,
		func(context.Context) (struct{}, retry.Reason, error) {
			calls++
			return struct{}{}, retry.Reason{}, nil
		})
	assert.ErrorIs(t, err, errdefs.ErrUnambiguousTimeout)
	assert.Zero(t, calls, "no dispatch after the deadline")
	assert.Zero(t, req.Attempts())
}

func TestOrchestrate_CancellationDuringAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := &KvRequest{OpCode: OpGet, Strategy: retry.NewBestEffort(fastBackoff)}
	_, err := Orchestrate(ctx, nil, req,
		func(context.Context) (struct{}, retry.Reason, error) {
			cancel()
			return struct{}{}, retry.ReasonKVTemporaryFailure, errAttempt
		})
	assert.ErrorIs(t, err, errdefs.ErrRequestCanceled)
	assert.NotErrorIs(t, err, errdefs.ErrTimeout)
}

func TestOrchestrate_CancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slow := retry.NewBestEffort(retry.ExponentialBackoff(time.Minute, time.Minute, 2))
	req := &KvRequest{OpCode: OpGet, Strategy: slow}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := Orchestrate(ctx, nil, req,
		func(context.Context) (struct{}, retry.Reason, error) {
			return struct{}{}, retry.ReasonKVTemporaryFailure, errAttempt
		})
	assert.ErrorIs(t, err, errdefs.ErrRequestCanceled)
	assert.Less(t, time.Since(start), time.Minute, "cancellation must interrupt the pause")
	assert.EqualValues(t, 1, req.Attempts())
}

func TestOrchestrate_ReasonDeduplication(t *testing.T) {
	req := &KvRequest{OpCode: OpGet, Strategy: retry.NewBestEffort(fastBackoff)}
	calls := 0
	_, err := Orchestrate(context.Background(), nil, req,
		func(context.Context) (struct{}, retry.Reason, error) {
			calls++
			switch calls {
			case 1, 3:
				return struct{}{}, retry.ReasonKVTemporaryFailure, errAttempt
			case 2:
				return struct{}{}, retry.ReasonKVLocked, errAttempt
			default:
				return struct{}{}, retry.Reason{}, nil
			}
		})
	require.NoError(t, err)
	assert.EqualValues(t, 3, req.Attempts())
	assert.Equal(t,
		[]retry.Reason{retry.ReasonKVTemporaryFailure, retry.ReasonKVLocked},
		req.RetryReasons(), "reasons keep first-occurrence order without duplicates")
}
