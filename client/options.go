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
	"fmt"
	"time"

	"go.6river.tech/dockv/core"
	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/retry"
)

// Cas is the version a document carried when the server last told us about
// it. A zero Cas in an operation's options means "don't check".
type Cas uint64

// DurabilityLevel selects how durable a mutation must be before the server
// acknowledges it.
type DurabilityLevel uint8

const (
	// DurabilityNone acknowledges a mutation as soon as the active node has
	// accepted it.
	DurabilityNone DurabilityLevel = iota
	// DurabilityMajority waits until a majority of nodes hold the mutation in
	// memory.
	DurabilityMajority
	// DurabilityMajorityAndPersistToActive additionally requires the active
	// node to have persisted the mutation to disk.
	DurabilityMajorityAndPersistToActive
	// DurabilityPersistToMajority waits until a majority of nodes have
	// persisted the mutation to disk.
	DurabilityPersistToMajority
)

func (l DurabilityLevel) String() string {
	switch l {
	case DurabilityNone:
		return "none"
	case DurabilityMajority:
		return "majority"
	case DurabilityMajorityAndPersistToActive:
		return "majorityAndPersistToActive"
	case DurabilityPersistToMajority:
		return "persistToMajority"
	default:
		return fmt.Sprintf("DurabilityLevel(%d)", uint8(l))
	}
}

// toWire rejects unknown levels client side so they never reach a dispatcher.
func (l DurabilityLevel) toWire() (core.DurabilityLevel, error) {
	if l > DurabilityPersistToMajority {
		return core.DurabilityNone, fmt.Errorf("%w: unknown durability level %d",
			errdefs.ErrInvalidArgument, uint8(l))
	}
	return core.DurabilityLevel(l), nil
}

// GetOptions customizes Collection.Get.
type GetOptions struct {
	// Timeout overrides the cluster KV timeout for this operation.
	Timeout time.Duration
	// RetryStrategy overrides the cluster retry strategy for this operation.
	RetryStrategy retry.Strategy
}

// ExistsOptions customizes Collection.Exists.
type ExistsOptions struct {
	Timeout       time.Duration
	RetryStrategy retry.Strategy
}

// InsertOptions customizes Collection.Insert.
type InsertOptions struct {
	// Expiry sets the document's time to live. Zero means no expiry.
	Expiry          time.Duration
	DurabilityLevel DurabilityLevel
	Timeout         time.Duration
	RetryStrategy   retry.Strategy
}

// UpsertOptions customizes Collection.Upsert.
type UpsertOptions struct {
	Expiry          time.Duration
	DurabilityLevel DurabilityLevel
	Timeout         time.Duration
	RetryStrategy   retry.Strategy
}

// ReplaceOptions customizes Collection.Replace.
type ReplaceOptions struct {
	// Cas makes the replace conditional on the document still carrying this
	// version. Zero skips the check.
	Cas             Cas
	Expiry          time.Duration
	DurabilityLevel DurabilityLevel
	Timeout         time.Duration
	RetryStrategy   retry.Strategy
}

// RemoveOptions customizes Collection.Remove.
type RemoveOptions struct {
	// Cas makes the remove conditional on the document still carrying this
	// version. Zero skips the check.
	Cas             Cas
	DurabilityLevel DurabilityLevel
	Timeout         time.Duration
	RetryStrategy   retry.Strategy
}

// TouchOptions customizes Collection.Touch.
type TouchOptions struct {
	Timeout       time.Duration
	RetryStrategy retry.Strategy
}

// GetAndTouchOptions customizes Collection.GetAndTouch.
type GetAndTouchOptions struct {
	Timeout       time.Duration
	RetryStrategy retry.Strategy
}

// GetAndLockOptions customizes Collection.GetAndLock.
type GetAndLockOptions struct {
	Timeout       time.Duration
	RetryStrategy retry.Strategy
}

// UnlockOptions customizes Collection.Unlock.
type UnlockOptions struct {
	Timeout       time.Duration
	RetryStrategy retry.Strategy
}

// CounterOptions customizes Collection.Increment and Collection.Decrement.
type CounterOptions struct {
	// Delta is the amount to adjust by. It must be non-zero.
	Delta uint64
	// Initial seeds the counter when the document does not exist. A negative
	// Initial disables creation, failing with ErrDocumentNotFound instead.
	Initial int64
	// Expiry applies only when the operation creates the document.
	Expiry          time.Duration
	DurabilityLevel DurabilityLevel
	Timeout         time.Duration
	RetryStrategy   retry.Strategy
}
