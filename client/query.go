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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"go.6river.tech/dockv/core"
	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/retry"
)

// QueryOptions customizes Cluster.Query and Scope.Query.
type QueryOptions struct {
	// PositionalParameters are substituted for the statement's $1, $2, ...
	// placeholders.
	PositionalParameters []interface{}
	// Readonly promises the statement mutates nothing. The server enforces
	// it, and the executor uses it to retry through transport failures that
	// would be ambiguous for a mutating statement.
	Readonly bool
	// ClientContextID correlates client and server logs for this query.
	// Empty gets a generated UUID.
	ClientContextID string
	// Timeout overrides the cluster query timeout for this statement.
	Timeout time.Duration
	// RetryStrategy overrides the cluster retry strategy for this statement.
	RetryStrategy retry.Strategy
}

// Query runs a statement against the query service. The returned result is
// fully buffered.
func (c *Cluster) Query(ctx context.Context, statement string, opts *QueryOptions) (*QueryResult, error) {
	return c.runQuery(ctx, statement, "", opts)
}

// Query runs a statement with this scope as its query context, so keyspace
// references may omit the bucket and scope.
func (s *Scope) Query(ctx context.Context, statement string, opts *QueryOptions) (*QueryResult, error) {
	queryContext := fmt.Sprintf("default:`%s`.`%s`", s.bucket.name, s.name)
	return s.bucket.cluster.runQuery(ctx, statement, queryContext, opts)
}

func (c *Cluster) runQuery(ctx context.Context, statement, queryContext string, opts *QueryOptions) (*QueryResult, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", errdefs.ErrInvalidArgument)
	}
	if statement == "" {
		return nil, fmt.Errorf("%w: statement must not be empty", errdefs.ErrInvalidArgument)
	}
	if c.query == nil {
		return nil, fmt.Errorf("%w: no query endpoint configured", errdefs.ErrServiceNotAvailable)
	}
	return c.query.run(ctx, statement, queryContext, opts)
}

// queryRequestBody is the JSON the query service accepts.
type queryRequestBody struct {
	Statement       string        `json:"statement"`
	ClientContextID string        `json:"client_context_id"`
	Args            []interface{} `json:"args,omitempty"`
	Readonly        bool          `json:"readonly,omitempty"`
	Timeout         string        `json:"timeout,omitempty"`
	QueryContext    string        `json:"query_context,omitempty"`
}

// queryEnvelope is the query service's response shape, success or failure.
type queryEnvelope struct {
	RequestID       string              `json:"requestID"`
	ClientContextID string              `json:"clientContextID"`
	Results         []json.RawMessage   `json:"results"`
	Errors          []errdefs.ErrorDesc `json:"errors"`
	Status          string              `json:"status"`
	Metrics         QueryMetrics        `json:"metrics"`
}

// QueryMetrics is the server's accounting for one query.
type QueryMetrics struct {
	ElapsedTime   string `json:"elapsedTime,omitempty"`
	ExecutionTime string `json:"executionTime,omitempty"`
	ResultCount   uint64 `json:"resultCount"`
	ResultSize    uint64 `json:"resultSize"`
	MutationCount uint64 `json:"mutationCount,omitempty"`
	ErrorCount    uint64 `json:"errorCount,omitempty"`
}

// QueryMetaData describes the execution of a completed query.
type QueryMetaData struct {
	RequestID       string
	ClientContextID string
	Status          string
	Metrics         QueryMetrics
}

// QueryResult iterates the rows of a completed query.
type QueryResult struct {
	rows    []json.RawMessage
	current json.RawMessage
	pos     int
	meta    *QueryMetaData
	closed  bool
}

// Next advances to the next row, reporting false once the rows are exhausted
// or the result is closed.
func (r *QueryResult) Next() bool {
	if r.closed || r.pos >= len(r.rows) {
		r.current = nil
		return false
	}
	r.current = r.rows[r.pos]
	r.pos++
	return true
}

// Row decodes the current row into valuePtr. It is only valid after a Next
// that returned true.
func (r *QueryResult) Row(valuePtr interface{}) error {
	if r.current == nil {
		return fmt.Errorf("%w: no current row", errdefs.ErrInvalidArgument)
	}
	return decodeValue(r.current, jsonFlags, valuePtr)
}

// Err reports a streaming failure. The result is buffered, so it only exists
// to satisfy the usual iteration contract.
func (r *QueryResult) Err() error { return nil }

// Close marks the result exhausted. Iteration after Close reports no rows.
func (r *QueryResult) Close() error {
	r.closed = true
	return nil
}

// MetaData returns the query's execution report. It is available once the
// rows have been consumed or the result closed.
func (r *QueryResult) MetaData() (*QueryMetaData, error) {
	if !r.closed && r.pos < len(r.rows) {
		return nil, fmt.Errorf("%w: result must be fully iterated or closed before reading metadata",
			errdefs.ErrInvalidArgument)
	}
	return r.meta, nil
}

// queryRequest carries one query's retry bookkeeping through the
// orchestrator.
type queryRequest struct {
	statement string
	contextID string
	readonly  bool
	strategy  retry.Strategy

	attempts   uint32
	reasons    []retry.Reason
	dispatched bool

	lastHTTPStatus int
	lastDescs      []errdefs.ErrorDesc
}

func (r *queryRequest) Operation() string { return "query" }

// Idempotent reports whether attempts can safely repeat; for queries that is
// exactly the readonly promise.
func (r *queryRequest) Idempotent() bool { return r.readonly }

func (r *queryRequest) Attempts() uint32 { return r.attempts }

func (r *queryRequest) RetryStrategy() retry.Strategy { return r.strategy }

func (r *queryRequest) Dispatched() bool { return r.dispatched }

func (r *queryRequest) RecordRetry(reason retry.Reason) {
	if r.attempts < math.MaxUint32 {
		r.attempts++
	}
	for _, prev := range r.reasons {
		if prev == reason {
			return
		}
	}
	r.reasons = append(r.reasons, reason)
}

// queryExecutor runs statements against one query service endpoint over
// HTTP+JSON, retrying through the shared orchestrator.
type queryExecutor struct {
	endpoint string
	client   *http.Client
	strategy retry.Strategy
	timeout  time.Duration
	logger   *logging.Logger
}

func newQueryExecutor(endpoint string, client *http.Client, strategy retry.Strategy, timeout time.Duration) *queryExecutor {
	if client == nil {
		client = &http.Client{}
	}
	return &queryExecutor{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		strategy: strategy,
		timeout:  timeout,
		logger:   logging.GetLogger("client/query"),
	}
}

func (q *queryExecutor) run(ctx context.Context, statement, queryContext string, opts *QueryOptions) (*QueryResult, error) {
	contextID := opts.ClientContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = q.timeout
	}
	strategy := opts.RetryStrategy
	if strategy == nil {
		strategy = q.strategy
	}

	// the server gets the timeout too, so it can stop work the client has
	// already given up on
	body, err := json.Marshal(queryRequestBody{
		Statement:       statement,
		ClientContextID: contextID,
		Args:            opts.PositionalParameters,
		Readonly:        opts.Readonly,
		Timeout:         timeout.String(),
		QueryContext:    queryContext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errdefs.ErrEncodingFailure, err)
	}

	req := &queryRequest{
		statement: statement,
		contextID: contextID,
		readonly:  opts.Readonly,
		strategy:  strategy,
	}

	// an earlier context deadline wins over the operation timeout
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := core.Orchestrate(ctx, q.logger, req,
		func(ctx context.Context) (*QueryResult, retry.Reason, error) {
			return q.attempt(ctx, req, body)
		})
	if err != nil {
		wrapped := q.wrap(req, err, time.Since(start))
		q.logger.Debug().Err(wrapped).Msg("Query failed")
		return nil, wrapped
	}
	return res, nil
}

// attempt runs one HTTP exchange. Terminal failures come back already
// wrapped with their context; retry candidates come back bare with their
// reason so the orchestrator can judge them.
func (q *queryExecutor) attempt(ctx context.Context, req *queryRequest, body []byte) (*QueryResult, retry.Reason, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.endpoint+"/query/service", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Reason{}, fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(httpReq)
	if err != nil {
		inner := fmt.Errorf("%w: %w", errdefs.ErrServiceNotAvailable, err)
		if req.readonly {
			return nil, retry.ReasonSocketNotAvailable, inner
		}
		// a mutating statement may have executed before the connection
		// failed, so it must not be replayed
		req.dispatched = true
		return nil, retry.Reason{}, q.httpError(req, inner)
	}
	req.dispatched = true
	req.lastHTTPStatus = resp.StatusCode

	payload, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, retry.Reason{}, q.httpError(req,
			fmt.Errorf("%w: reading query response: %w", errdefs.ErrServiceNotAvailable, err))
	}

	var envelope queryEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, retry.Reason{}, q.httpError(req,
			fmt.Errorf("%w: decoding query response: %w", errdefs.ErrDecodingFailure, err))
	}

	if len(envelope.Errors) > 0 || resp.StatusCode >= http.StatusMultipleChoices {
		req.lastDescs = envelope.Errors
		inner := classifyQueryFailure(envelope.Errors, resp.StatusCode)
		if reason, ok := retriableQueryReason(envelope.Errors); ok {
			return nil, reason, inner
		}
		return nil, retry.Reason{}, &errdefs.QueryError{
			InnerError:       inner,
			Statement:        req.statement,
			ClientContextID:  req.contextID,
			Errors:           envelope.Errors,
			Endpoint:         q.endpoint,
			HTTPResponseCode: resp.StatusCode,
			RetryReasons:     req.reasons,
			RetryAttempts:    req.attempts,
		}
	}

	return &QueryResult{
		rows: envelope.Results,
		meta: &QueryMetaData{
			RequestID:       envelope.RequestID,
			ClientContextID: envelope.ClientContextID,
			Status:          envelope.Status,
			Metrics:         envelope.Metrics,
		},
	}, retry.Reason{}, nil
}

// httpError wraps a failure that never reached the query service's response
// decoder.
func (q *queryExecutor) httpError(req *queryRequest, inner error) error {
	return &errdefs.HTTPError{
		InnerError:    inner,
		UniqueID:      req.contextID,
		Endpoint:      q.endpoint,
		RetryReasons:  req.reasons,
		RetryAttempts: req.attempts,
	}
}

// wrap dresses a terminal failure with its operation context. Attempt level
// failures arrive pre-wrapped; orchestrator sentinels and declined retries
// get theirs here.
func (q *queryExecutor) wrap(req *queryRequest, err error, elapsed time.Duration) error {
	var qErr *errdefs.QueryError
	var hErr *errdefs.HTTPError
	if errors.As(err, &qErr) || errors.As(err, &hErr) {
		return err
	}
	if errors.Is(err, errdefs.ErrTimeout) {
		endpoint := ""
		if req.dispatched {
			endpoint = q.endpoint
		}
		return &errdefs.TimeoutError{
			InnerError:       err,
			Operation:        req.Operation(),
			OperationID:      req.contextID,
			TimeObserved:     elapsed,
			RetryReasons:     req.reasons,
			RetryAttempts:    req.attempts,
			LastDispatchedTo: endpoint,
		}
	}
	return &errdefs.QueryError{
		InnerError:       err,
		Statement:        req.statement,
		ClientContextID:  req.contextID,
		Errors:           req.lastDescs,
		Endpoint:         q.endpoint,
		HTTPResponseCode: req.lastHTTPStatus,
		RetryReasons:     req.reasons,
		RetryAttempts:    req.attempts,
	}
}

// classifyQueryFailure picks the taxonomy error for a failed response: the
// first descriptor with a mapping wins, then the HTTP status, then a generic
// internal failure.
func classifyQueryFailure(descs []errdefs.ErrorDesc, httpStatus int) error {
	for _, d := range descs {
		if mapped := errdefs.MapQueryCode(d.Code, d.Message); mapped != nil {
			return mapped
		}
	}
	switch httpStatus {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errdefs.ErrAuthenticationFailure
	case http.StatusServiceUnavailable:
		return errdefs.ErrServiceNotAvailable
	case http.StatusTooManyRequests:
		return errdefs.ErrTemporaryFailure
	default:
		return errdefs.ErrInternalServerFailure
	}
}

// retriableQueryReason reports whether any descriptor permits retrying the
// statement verbatim, distinguishing the prepared statement family from
// other retriable codes.
func retriableQueryReason(descs []errdefs.ErrorDesc) (retry.Reason, bool) {
	for _, d := range descs {
		if !errdefs.RetriableCode(d) {
			continue
		}
		if mapped := errdefs.MapQueryCode(d.Code, d.Message); errors.Is(mapped, errdefs.ErrPreparedStatementFailure) {
			return retry.ReasonQueryPreparedStatementFailure, true
		}
		return retry.ReasonServiceResponseCodeIndicated, true
	}
	return retry.Reason{}, false
}
