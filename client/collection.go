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
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"go.6river.tech/dockv/core"
	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/retry"
)

// Bucket addresses one bucket of the cluster.
type Bucket struct {
	cluster *Cluster
	name    string
}

func (b *Bucket) Name() string { return b.name }

// Scope returns a handle on the named scope.
func (b *Bucket) Scope(name string) *Scope {
	return &Scope{bucket: b, name: name}
}

// DefaultScope returns the bucket's "_default" scope.
func (b *Bucket) DefaultScope() *Scope {
	return b.Scope("_default")
}

// Collection returns the named collection of the default scope.
func (b *Bucket) Collection(name string) *Collection {
	return b.DefaultScope().Collection(name)
}

// DefaultCollection returns the bucket's "_default"/"_default" collection.
func (b *Bucket) DefaultCollection() *Collection {
	return b.DefaultScope().Collection("_default")
}

// Scope addresses one scope of a bucket.
type Scope struct {
	bucket *Bucket
	name   string
}

func (s *Scope) Name() string { return s.name }

func (s *Scope) BucketName() string { return s.bucket.name }

// Collection returns a handle on the named collection.
func (s *Scope) Collection(name string) *Collection {
	return &Collection{scope: s, name: name}
}

// Collection addresses one collection and carries the key-value operations.
// Handles are cheap and safe for concurrent use.
type Collection struct {
	scope *Scope
	name  string
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) ScopeName() string { return c.scope.name }

func (c *Collection) BucketName() string { return c.scope.bucket.name }

func (c *Collection) cluster() *Cluster { return c.scope.bucket.cluster }

// checkArgs rejects the caller mistakes every operation shares, before
// anything is encoded or dispatched.
func checkArgs(ctx context.Context, id string) error {
	if ctx == nil {
		return fmt.Errorf("%w: nil context", errdefs.ErrInvalidArgument)
	}
	if id == "" {
		return fmt.Errorf("%w: document id must not be empty", errdefs.ErrInvalidArgument)
	}
	return nil
}

// seconds converts a duration to the wire's whole-second form, rounding up
// so a small positive duration never silently becomes "none".
func seconds(d time.Duration, what string) (uint32, error) {
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", errdefs.ErrInvalidArgument, what)
	}
	secs := (d + time.Second - 1) / time.Second
	if uint64(secs) >= uint64(core.NoCreateExpiry) {
		return 0, fmt.Errorf("%w: %s of %s is too large for the wire", errdefs.ErrInvalidArgument, what, d)
	}
	return uint32(secs), nil
}

// newRequest builds the shared fields of a data service request. Durable
// operations get the longer KVDurable timeout when none was supplied.
func (c *Collection) newRequest(op core.OpCode, id string, strategy retry.Strategy, timeout time.Duration, durable bool) *core.KvRequest {
	cl := c.cluster()
	if timeout <= 0 {
		if durable {
			timeout = cl.timeouts.KVDurable
		} else {
			timeout = cl.timeouts.KV
		}
	}
	return &core.KvRequest{
		OpCode:         op,
		BucketName:     c.BucketName(),
		ScopeName:      c.scope.name,
		CollectionName: c.name,
		Key:            id,
		OperationID:    uuid.NewString(),
		Strategy:       strategy,
		Deadline:       time.Now().Add(timeout),
	}
}

// Get reads a document.
func (c *Collection) Get(ctx context.Context, id string, opts *GetOptions) (*GetResult, error) {
	if opts == nil {
		opts = &GetOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return nil, err
	}
	req := c.newRequest(core.OpGet, id, opts.RetryStrategy, opts.Timeout, false)
	resp, err := c.cluster().pipeline.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return &GetResult{cas: Cas(resp.Cas), flags: resp.Flags, contents: resp.Value}, nil
}

// Exists reports whether a document is present. Absence is a result here,
// not an error.
func (c *Collection) Exists(ctx context.Context, id string, opts *ExistsOptions) (*ExistsResult, error) {
	if opts == nil {
		opts = &ExistsOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return nil, err
	}
	req := c.newRequest(core.OpGet, id, opts.RetryStrategy, opts.Timeout, false)
	req.Name = "kv/exists"
	resp, err := c.cluster().pipeline.Execute(ctx, req)
	if errors.Is(err, errdefs.ErrDocumentNotFound) {
		return &ExistsResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ExistsResult{exists: true, cas: Cas(resp.Cas)}, nil
}

type mutationSpec struct {
	cas        Cas
	expiry     time.Duration
	durability DurabilityLevel
	timeout    time.Duration
	strategy   retry.Strategy
}

// mutate shares the encode/validate/dispatch path of the content mutations.
// Encoding happens first: a value that cannot be serialized must fail before
// anything reaches the wire.
func (c *Collection) mutate(ctx context.Context, op core.OpCode, id string, value interface{}, spec mutationSpec) (*MutationResult, error) {
	data, flags, err := encodeValue(value)
	if err != nil {
		return nil, err
	}
	durability, err := spec.durability.toWire()
	if err != nil {
		return nil, err
	}
	expiry, err := seconds(spec.expiry, "expiry")
	if err != nil {
		return nil, err
	}
	req := c.newRequest(op, id, spec.strategy, spec.timeout, durability != core.DurabilityNone)
	req.Value = data
	req.Flags = flags
	req.Expiry = expiry
	req.Cas = uint64(spec.cas)
	req.Durability = durability
	resp, err := c.cluster().pipeline.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return &MutationResult{cas: Cas(resp.Cas)}, nil
}

// Insert creates a document, failing with ErrDocumentExists when the id is
// already taken.
func (c *Collection) Insert(ctx context.Context, id string, value interface{}, opts *InsertOptions) (*MutationResult, error) {
	if opts == nil {
		opts = &InsertOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return nil, err
	}
	return c.mutate(ctx, core.OpAdd, id, value, mutationSpec{
		expiry:     opts.Expiry,
		durability: opts.DurabilityLevel,
		timeout:    opts.Timeout,
		strategy:   opts.RetryStrategy,
	})
}

// Upsert creates or overwrites a document unconditionally.
func (c *Collection) Upsert(ctx context.Context, id string, value interface{}, opts *UpsertOptions) (*MutationResult, error) {
	if opts == nil {
		opts = &UpsertOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return nil, err
	}
	return c.mutate(ctx, core.OpSet, id, value, mutationSpec{
		expiry:     opts.Expiry,
		durability: opts.DurabilityLevel,
		timeout:    opts.Timeout,
		strategy:   opts.RetryStrategy,
	})
}

// Replace overwrites an existing document, failing with ErrDocumentNotFound
// when it is missing and with ErrCasMismatch when opts.Cas no longer matches.
func (c *Collection) Replace(ctx context.Context, id string, value interface{}, opts *ReplaceOptions) (*MutationResult, error) {
	if opts == nil {
		opts = &ReplaceOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return nil, err
	}
	return c.mutate(ctx, core.OpReplace, id, value, mutationSpec{
		cas:        opts.Cas,
		expiry:     opts.Expiry,
		durability: opts.DurabilityLevel,
		timeout:    opts.Timeout,
		strategy:   opts.RetryStrategy,
	})
}

// Remove deletes a document, failing with ErrDocumentNotFound when it is
// missing and with ErrCasMismatch when opts.Cas no longer matches.
func (c *Collection) Remove(ctx context.Context, id string, opts *RemoveOptions) (*MutationResult, error) {
	if opts == nil {
		opts = &RemoveOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return nil, err
	}
	durability, err := opts.DurabilityLevel.toWire()
	if err != nil {
		return nil, err
	}
	req := c.newRequest(core.OpDelete, id, opts.RetryStrategy, opts.Timeout, durability != core.DurabilityNone)
	req.Cas = uint64(opts.Cas)
	req.Durability = durability
	resp, err := c.cluster().pipeline.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return &MutationResult{cas: Cas(resp.Cas)}, nil
}

// Touch updates a document's expiry without reading or changing its content.
// An expiry of zero clears any expiry.
func (c *Collection) Touch(ctx context.Context, id string, expiry time.Duration, opts *TouchOptions) (*MutationResult, error) {
	if opts == nil {
		opts = &TouchOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return nil, err
	}
	secs, err := seconds(expiry, "expiry")
	if err != nil {
		return nil, err
	}
	req := c.newRequest(core.OpTouch, id, opts.RetryStrategy, opts.Timeout, false)
	req.Expiry = secs
	resp, err := c.cluster().pipeline.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return &MutationResult{cas: Cas(resp.Cas)}, nil
}

// GetAndTouch reads a document and updates its expiry in one round trip.
func (c *Collection) GetAndTouch(ctx context.Context, id string, expiry time.Duration, opts *GetAndTouchOptions) (*GetResult, error) {
	if opts == nil {
		opts = &GetAndTouchOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return nil, err
	}
	secs, err := seconds(expiry, "expiry")
	if err != nil {
		return nil, err
	}
	req := c.newRequest(core.OpGetAndTouch, id, opts.RetryStrategy, opts.Timeout, false)
	req.Expiry = secs
	resp, err := c.cluster().pipeline.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return &GetResult{cas: Cas(resp.Cas), flags: resp.Flags, contents: resp.Value}, nil
}

// GetAndLock reads a document and write-locks it for lockTime. Until the lock
// expires or Unlock is called with the returned Cas, mutations without that
// Cas fail with ErrDocumentLocked. A zero lockTime defers to the server
// default.
func (c *Collection) GetAndLock(ctx context.Context, id string, lockTime time.Duration, opts *GetAndLockOptions) (*GetResult, error) {
	if opts == nil {
		opts = &GetAndLockOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return nil, err
	}
	secs, err := seconds(lockTime, "lock time")
	if err != nil {
		return nil, err
	}
	req := c.newRequest(core.OpGetLocked, id, opts.RetryStrategy, opts.Timeout, false)
	req.LockTime = secs
	resp, err := c.cluster().pipeline.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return &GetResult{cas: Cas(resp.Cas), flags: resp.Flags, contents: resp.Value}, nil
}

// Unlock releases a write lock taken by GetAndLock. The cas must be the one
// the lock returned; zero is rejected client side since it can never match a
// lock. Unlocking a document that is not locked fails with
// ErrTemporaryFailure.
func (c *Collection) Unlock(ctx context.Context, id string, cas Cas, opts *UnlockOptions) error {
	if opts == nil {
		opts = &UnlockOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return err
	}
	if cas == 0 {
		return fmt.Errorf("%w: unlock requires the lock's cas", errdefs.ErrInvalidArgument)
	}
	req := c.newRequest(core.OpUnlock, id, opts.RetryStrategy, opts.Timeout, false)
	req.Cas = uint64(cas)
	_, err := c.cluster().pipeline.Execute(ctx, req)
	return err
}

// counter shares the Increment/Decrement path. Counter documents are decimal
// strings on the wire, created from opts.Initial when missing unless a
// negative Initial disables creation.
func (c *Collection) counter(ctx context.Context, op core.OpCode, id string, opts *CounterOptions) (*CounterResult, error) {
	if opts == nil {
		opts = &CounterOptions{}
	}
	if err := checkArgs(ctx, id); err != nil {
		return nil, err
	}
	if opts.Delta == 0 {
		return nil, fmt.Errorf("%w: counter delta must not be zero", errdefs.ErrInvalidArgument)
	}
	durability, err := opts.DurabilityLevel.toWire()
	if err != nil {
		return nil, err
	}
	req := c.newRequest(op, id, opts.RetryStrategy, opts.Timeout, durability != core.DurabilityNone)
	req.Delta = opts.Delta
	req.Durability = durability
	if opts.Initial < 0 {
		req.Expiry = core.NoCreateExpiry
	} else {
		req.Initial = uint64(opts.Initial)
		expiry, err := seconds(opts.Expiry, "expiry")
		if err != nil {
			return nil, err
		}
		req.Expiry = expiry
	}
	resp, err := c.cluster().pipeline.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	value, err := strconv.ParseUint(string(resp.Value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: counter response %q: %w", errdefs.ErrDecodingFailure, resp.Value, err)
	}
	return &CounterResult{cas: Cas(resp.Cas), content: value}, nil
}

// Increment adjusts a counter document upward by opts.Delta.
func (c *Collection) Increment(ctx context.Context, id string, opts *CounterOptions) (*CounterResult, error) {
	return c.counter(ctx, core.OpIncrement, id, opts)
}

// Decrement adjusts a counter document downward by opts.Delta, flooring at
// zero.
func (c *Collection) Decrement(ctx context.Context, id string, opts *CounterOptions) (*CounterResult, error) {
	return c.counter(ctx, core.OpDecrement, id, opts)
}
