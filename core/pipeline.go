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
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/faults"
	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/retry"
)

// PipelineConfig assembles a Pipeline's collaborators.
type PipelineConfig struct {
	// Dispatcher sends attempts to the data service. Required.
	Dispatcher KvDispatcher
	// Strategy is the default retry strategy for requests that carry none.
	// Nil means best effort with exponential backoff.
	Strategy retry.Strategy
	// Breaker configures the dispatch circuit breaker.
	Breaker BreakerConfig
	// Faults, when non-nil, is consulted before every dispatch.
	Faults *faults.Set
	// Registerer, when non-nil, receives the pipeline's metrics.
	Registerer prometheus.Registerer
	// MetricsNamespace defaults to "dockv".
	MetricsNamespace string
}

// Pipeline executes data service requests: fault check, circuit breaker,
// dispatch, status classification, retry orchestration, error context
// wrapping and metrics. Safe for concurrent use.
type Pipeline struct {
	dispatcher KvDispatcher
	strategy   retry.Strategy
	breaker    *Breaker
	faults     *faults.Set
	metrics    *Metrics
	logger     *logging.Logger
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("%w: pipeline requires a dispatcher", errdefs.ErrInvalidArgument)
	}
	if cfg.Strategy == nil {
		cfg.Strategy = retry.NewBestEffort(nil)
	}
	namespace := cfg.MetricsNamespace
	if namespace == "" {
		namespace = "dockv"
	}
	breaker := NewBreaker(cfg.Breaker)
	metrics, err := NewMetrics(cfg.Registerer, namespace, breaker)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		dispatcher: cfg.Dispatcher,
		strategy:   cfg.Strategy,
		breaker:    breaker,
		faults:     cfg.Faults,
		metrics:    metrics,
		logger:     logging.GetLogger("kv/pipeline"),
	}, nil
}

// Breaker exposes the pipeline's circuit breaker, mainly for tests and the
// debug surface.
func (p *Pipeline) Breaker() *Breaker {
	return p.breaker
}

// Execute runs the request to completion, retrying per its strategy. Callers
// never see a bare wire status or transport error: failures are taxonomy
// errors wrapped in a KeyValueError, or a TimeoutError when the deadline was
// the cause.
func (p *Pipeline) Execute(ctx context.Context, req *KvRequest) (*KvResponse, error) {
	start := time.Now()
	if req.Strategy == nil {
		req.Strategy = p.strategy
	}
	req.onRetry = func(reason retry.Reason) {
		p.metrics.countRetry(req.Operation(), reason.String())
	}
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	resp, err := Orchestrate(ctx, p.logger, req,
		func(ctx context.Context) (*KvResponse, retry.Reason, error) {
			return p.attempt(ctx, req)
		})
	elapsed := time.Since(start)
	if err == nil {
		p.metrics.observe(req.Operation(), outcomeSuccess, elapsed.Seconds())
		return resp, nil
	}
	p.metrics.observe(req.Operation(), outcomeFor(err), elapsed.Seconds())
	wrapped := p.wrap(req, err, elapsed)
	p.logger.Debug().Err(wrapped).Msg("Operation failed")
	return nil, wrapped
}

// attempt runs one dispatch: fault injection, breaker admission, the
// dispatcher itself, then status classification.
func (p *Pipeline) attempt(ctx context.Context, req *KvRequest) (*KvResponse, retry.Reason, error) {
	if err := p.faults.Check(req.Operation(), faults.Parameters{
		"bucket":     req.BucketName,
		"scope":      req.ScopeName,
		"collection": req.CollectionName,
	}); err != nil {
		// injected faults are indistinguishable from dispatch failures,
		// including their effect on the breaker
		p.breaker.MarkFailure()
		reason, werr := transportFailure(req, err)
		return nil, reason, werr
	}

	if !p.breaker.Allow() {
		return nil, retry.ReasonCircuitBreakerOpen,
			fmt.Errorf("%w: circuit breaker open", errdefs.ErrServiceNotAvailable)
	}

	resp, err := p.dispatcher.Dispatch(ctx, req)
	if err != nil {
		p.breaker.MarkFailure()
		reason, werr := transportFailure(req, err)
		return nil, reason, werr
	}
	p.breaker.MarkSuccessful()
	req.MarkDispatched("")
	req.lastStatus = resp.Status

	if mapped := MapKvStatus(req.OpCode, resp.Status); mapped != nil {
		if reason, ok := RetryReasonForStatus(resp.Status); ok {
			return nil, reason, mapped
		}
		return nil, retry.Reason{}, mapped
	}
	return resp, retry.Reason{}, nil
}

// transportFailure classifies a dispatch error. A connection that dropped
// with the request in flight may have executed it, so only that case marks
// the request dispatched and gets the no-retry-after-send reason.
func transportFailure(req *KvRequest, err error) (retry.Reason, error) {
	reason := retry.ReasonSocketNotAvailable
	if errors.Is(err, ErrSocketClosedInFlight) {
		req.MarkDispatched("")
		reason = retry.ReasonSocketCloseInFlight
	}
	return reason, fmt.Errorf("%w: %w", errdefs.ErrServiceNotAvailable, err)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, errdefs.ErrTimeout):
		return outcomeTimeout
	case errors.Is(err, errdefs.ErrRequestCanceled):
		return outcomeCanceled
	default:
		return outcomeError
	}
}

func (p *Pipeline) wrap(req *KvRequest, err error, elapsed time.Duration) error {
	if errors.Is(err, errdefs.ErrTimeout) {
		return &errdefs.TimeoutError{
			InnerError:       err,
			Operation:        req.Operation(),
			OperationID:      req.OperationID,
			TimeObserved:     elapsed,
			RetryReasons:     req.RetryReasons(),
			RetryAttempts:    req.Attempts(),
			LastDispatchedTo: req.LastDispatchedTo(),
		}
	}
	return &errdefs.KeyValueError{
		InnerError:       err,
		StatusCode:       req.lastStatus,
		DocumentID:       req.Key,
		BucketName:       req.BucketName,
		ScopeName:        req.ScopeName,
		CollectionName:   req.CollectionName,
		Opaque:           req.Opaque,
		OperationID:      req.OperationID,
		RetryReasons:     req.RetryReasons(),
		RetryAttempts:    req.Attempts(),
		LastDispatchedTo: req.LastDispatchedTo(),
		TimeObserved:     elapsed,
	}
}
