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
	"math"
	"time"

	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/retry"
)

// DurabilityLevel is the wire encoding of a durable write requirement.
type DurabilityLevel uint8

const (
	DurabilityNone                       DurabilityLevel = 0x00
	DurabilityMajority                   DurabilityLevel = 0x01
	DurabilityMajorityAndPersistToActive DurabilityLevel = 0x02
	DurabilityPersistToMajority          DurabilityLevel = 0x03
)

// NoCreateExpiry on a counter request tells the data service not to create a
// missing document from Initial.
const NoCreateExpiry uint32 = 0xffffffff

// ErrSocketClosedInFlight is returned by dispatchers when the connection
// dropped after the request was written, so the server may have executed it.
var ErrSocketClosedInFlight = errors.New("socket closed in flight")

// KvRequest describes one data service operation and carries its retry
// bookkeeping across attempts. A request is built for a single Execute call
// and must not be shared between goroutines while in flight.
type KvRequest struct {
	OpCode OpCode
	// Name is the logical operation name used by strategies, logs and
	// metrics, e.g. "kv/get". Empty defaults to "kv/" plus the opcode.
	Name string

	BucketName     string
	ScopeName      string
	CollectionName string
	Key            string

	Value  []byte
	Flags  uint32
	Expiry uint32
	Cas    uint64

	Durability DurabilityLevel
	// Delta and Initial configure Increment and Decrement. Initial only
	// applies when Expiry is not NoCreateExpiry.
	Delta   uint64
	Initial uint64
	// LockTime is the lock duration in seconds for GetLocked.
	LockTime uint32

	// OperationID correlates all attempts of this request in logs and error
	// contexts.
	OperationID string
	Opaque      uint32
	// Strategy decides retries; nil falls back to the pipeline's default.
	Strategy retry.Strategy
	// Deadline bounds all attempts including backoff. The zero value defers
	// entirely to the context deadline.
	Deadline time.Time

	attempts         uint32
	reasons          []retry.Reason
	dispatched       bool
	lastDispatchedTo string
	lastStatus       errdefs.StatusCode
	onRetry          func(reason retry.Reason)
}

// Operation implements retry.Request.
func (r *KvRequest) Operation() string {
	if r.Name != "" {
		return r.Name
	}
	return "kv/" + r.OpCode.String()
}

// Idempotent implements retry.Request based on the opcode.
func (r *KvRequest) Idempotent() bool {
	return r.OpCode.IsIdempotent()
}

// Attempts implements retry.Request, reporting retries recorded so far.
func (r *KvRequest) Attempts() uint32 {
	return r.attempts
}

// RetryReasons lists the distinct reasons this request has been retried for,
// in first-occurrence order.
func (r *KvRequest) RetryReasons() []retry.Reason {
	return r.reasons
}

func (r *KvRequest) RetryStrategy() retry.Strategy {
	return r.Strategy
}

// RecordRetry notes one retry and its reason. Reasons are de-duplicated; the
// attempt counter saturates rather than wrapping.
func (r *KvRequest) RecordRetry(reason retry.Reason) {
	if r.attempts < math.MaxUint32 {
		r.attempts++
	}
	seen := false
	for _, prev := range r.reasons {
		if prev == reason {
			seen = true
			break
		}
	}
	if !seen {
		r.reasons = append(r.reasons, reason)
	}
	if r.onRetry != nil {
		r.onRetry(reason)
	}
}

// MarkDispatched records that an attempt reached the wire, which makes a
// later deadline ambiguous for non-idempotent operations. Dispatchers pass
// their endpoint; an empty host keeps any previously recorded one.
func (r *KvRequest) MarkDispatched(host string) {
	r.dispatched = true
	if host != "" {
		r.lastDispatchedTo = host
	}
}

// Dispatched reports whether any attempt reached the wire.
func (r *KvRequest) Dispatched() bool {
	return r.dispatched
}

// LastDispatchedTo reports the endpoint of the most recent dispatch, if any.
func (r *KvRequest) LastDispatchedTo() string {
	return r.lastDispatchedTo
}

// LastStatus reports the wire status of the most recent response, if any.
func (r *KvRequest) LastStatus() errdefs.StatusCode {
	return r.lastStatus
}

// KvResponse is a data service response. Status is the raw wire status; the
// pipeline classifies it, so callers above the pipeline never see one.
type KvResponse struct {
	Status errdefs.StatusCode
	Cas    uint64
	Value  []byte
	Flags  uint32
}

// KvDispatcher sends one attempt of a request to the data service. Dispatch
// is called repeatedly for the same request as it is retried; implementations
// should MarkDispatched the request with their endpoint once the attempt is
// on the wire.
type KvDispatcher interface {
	Dispatch(ctx context.Context, req *KvRequest) (*KvResponse, error)
}
