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

package emulator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.6river.tech/dockv/core"
	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/logging"
)

// DefaultBucketName is pre-created by NewKV along with its default scope and
// collection.
const DefaultBucketName = "default"

const defaultScopeName = "_default"

// lockedCas is what reads report as the CAS of a write-locked document, so
// that observers cannot feed the real CAS into a mutation by accident.
const lockedCas = ^uint64(0)

const (
	defaultMaxValueSize = 20 * 1024 * 1024
	defaultLockTime     = 15 * time.Second
	maxLockTime         = 30 * time.Second
)

// KVConfig tunes the in-memory data service.
type KVConfig struct {
	// MaxValueSize caps document size for Set/Add/Replace; larger values get
	// the TooBig status. Defaults to 20MiB.
	MaxValueSize int
	// DisableDurability makes durable mutations fail with
	// DurabilityInvalidLevel, like a server without durability support.
	DisableDurability bool
	// Endpoint is reported as the dispatch host on requests. Defaults to
	// "emulator:11210".
	Endpoint string
}

type document struct {
	value       []byte
	flags       uint32
	cas         uint64
	expiresAt   time.Time // zero means never
	lockedUntil time.Time // zero means unlocked
}

type collection map[string]*document

type scriptedFailure struct {
	status errdefs.StatusCode
	err    error
	times  int
}

// KV is an in-memory data service implementing core.KvDispatcher: documents
// in buckets/scopes/collections with CAS generation, lazy expiry, write
// locks, counters, and scripted failures for exercising retry handling. Safe
// for concurrent use.
type KV struct {
	cfg    KVConfig
	logger *logging.Logger

	mu       sync.Mutex
	buckets  map[string]map[string]map[string]collection
	cas      uint64
	failures map[core.OpCode][]*scriptedFailure
	now      func() time.Time
}

func NewKV(cfg KVConfig) *KV {
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = defaultMaxValueSize
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "emulator:11210"
	}
	kv := &KV{
		cfg:      cfg,
		logger:   logging.GetLogger("emulator/kv"),
		buckets:  map[string]map[string]map[string]collection{},
		failures: map[core.OpCode][]*scriptedFailure{},
		now:      time.Now,
	}
	kv.AddCollection(DefaultBucketName, defaultScopeName, defaultScopeName)
	return kv
}

// AddCollection creates a collection, along with its bucket and scope when
// missing. Every bucket gets a "_default"/"_default" pair on creation.
func (kv *KV) AddCollection(bucket, scope, coll string) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	b := kv.buckets[bucket]
	if b == nil {
		b = map[string]map[string]collection{
			defaultScopeName: {defaultScopeName: collection{}},
		}
		kv.buckets[bucket] = b
	}
	s := b[scope]
	if s == nil {
		s = map[string]collection{}
		b[scope] = s
	}
	if s[coll] == nil {
		s[coll] = collection{}
	}
}

// AddBucket creates a bucket with its default scope and collection.
func (kv *KV) AddBucket(bucket string) {
	kv.AddCollection(bucket, defaultScopeName, defaultScopeName)
}

// InjectFailures scripts the next times dispatches of op to answer with the
// given wire status instead of executing.
func (kv *KV) InjectFailures(op core.OpCode, status errdefs.StatusCode, times int) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.failures[op] = append(kv.failures[op], &scriptedFailure{status: status, times: times})
}

// InjectErrors scripts the next times dispatches of op to fail with err at
// the transport level, before anything reaches the store.
func (kv *KV) InjectErrors(op core.OpCode, err error, times int) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.failures[op] = append(kv.failures[op], &scriptedFailure{err: err, times: times})
}

func (kv *KV) nextScripted(op core.OpCode) *scriptedFailure {
	list := kv.failures[op]
	for len(list) > 0 {
		f := list[0]
		if f.times > 0 {
			f.times--
			return f
		}
		list = list[1:]
		kv.failures[op] = list
	}
	return nil
}

// Dispatch implements core.KvDispatcher.
func (kv *KV) Dispatch(ctx context.Context, req *core.KvRequest) (*core.KvResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	if f := kv.nextScripted(req.OpCode); f != nil {
		if f.err != nil {
			kv.logger.Trace().Stringer("op", req.OpCode).AnErr("scripted", f.err).
				Msg("Scripted transport failure")
			return nil, f.err
		}
		req.MarkDispatched(kv.cfg.Endpoint)
		kv.logger.Trace().Stringer("op", req.OpCode).Stringer("status", f.status).
			Msg("Scripted status failure")
		return &core.KvResponse{Status: f.status}, nil
	}

	coll, status := kv.resolve(req)
	req.MarkDispatched(kv.cfg.Endpoint)
	if status != errdefs.StatusSuccess {
		return &core.KvResponse{Status: status}, nil
	}

	if req.OpCode.IsMutation() && req.Durability != core.DurabilityNone && kv.cfg.DisableDurability {
		return &core.KvResponse{Status: errdefs.StatusDurabilityInvalidLevel}, nil
	}

	return kv.execute(coll, req), nil
}

func (kv *KV) resolve(req *core.KvRequest) (collection, errdefs.StatusCode) {
	b := kv.buckets[req.BucketName]
	if b == nil {
		return nil, errdefs.StatusNoBucket
	}
	s := b[req.ScopeName]
	if s == nil {
		return nil, errdefs.StatusUnknownScope
	}
	c := s[req.CollectionName]
	if c == nil {
		return nil, errdefs.StatusUnknownCollection
	}
	return c, errdefs.StatusSuccess
}

// get returns the live document, discarding it first if it expired.
func (kv *KV) get(c collection, key string) *document {
	doc := c[key]
	if doc == nil {
		return nil
	}
	if !doc.expiresAt.IsZero() && !kv.now().Before(doc.expiresAt) {
		delete(c, key)
		return nil
	}
	return doc
}

func (kv *KV) locked(doc *document) bool {
	return !doc.lockedUntil.IsZero() && kv.now().Before(doc.lockedUntil)
}

func (kv *KV) nextCas() uint64 {
	kv.cas++
	return kv.cas
}

func (kv *KV) expiry(seconds uint32) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return kv.now().Add(time.Duration(seconds) * time.Second)
}

func (kv *KV) execute(c collection, req *core.KvRequest) *core.KvResponse {
	switch req.OpCode {
	case core.OpGet:
		doc := kv.get(c, req.Key)
		if doc == nil {
			return &core.KvResponse{Status: errdefs.StatusKeyNotFound}
		}
		cas := doc.cas
		if kv.locked(doc) {
			cas = lockedCas
		}
		return &core.KvResponse{Status: errdefs.StatusSuccess, Cas: cas, Value: doc.value, Flags: doc.flags}

	case core.OpSet:
		if len(req.Value) > kv.cfg.MaxValueSize {
			return &core.KvResponse{Status: errdefs.StatusTooBig}
		}
		doc := kv.get(c, req.Key)
		if doc == nil {
			if req.Cas != 0 {
				return &core.KvResponse{Status: errdefs.StatusKeyNotFound}
			}
			doc = &document{}
			c[req.Key] = doc
		} else if status := kv.casCheck(doc, req.Cas); status != errdefs.StatusSuccess {
			return &core.KvResponse{Status: status}
		}
		return kv.store(doc, req)

	case core.OpAdd:
		if len(req.Value) > kv.cfg.MaxValueSize {
			return &core.KvResponse{Status: errdefs.StatusTooBig}
		}
		if kv.get(c, req.Key) != nil {
			return &core.KvResponse{Status: errdefs.StatusKeyExists}
		}
		doc := &document{}
		c[req.Key] = doc
		return kv.store(doc, req)

	case core.OpReplace:
		if len(req.Value) > kv.cfg.MaxValueSize {
			return &core.KvResponse{Status: errdefs.StatusTooBig}
		}
		doc := kv.get(c, req.Key)
		if doc == nil {
			return &core.KvResponse{Status: errdefs.StatusKeyNotFound}
		}
		if status := kv.casCheck(doc, req.Cas); status != errdefs.StatusSuccess {
			return &core.KvResponse{Status: status}
		}
		return kv.store(doc, req)

	case core.OpDelete:
		doc := kv.get(c, req.Key)
		if doc == nil {
			return &core.KvResponse{Status: errdefs.StatusKeyNotFound}
		}
		if status := kv.casCheck(doc, req.Cas); status != errdefs.StatusSuccess {
			return &core.KvResponse{Status: status}
		}
		delete(c, req.Key)
		return &core.KvResponse{Status: errdefs.StatusSuccess, Cas: kv.nextCas()}

	case core.OpTouch, core.OpGetAndTouch:
		doc := kv.get(c, req.Key)
		if doc == nil {
			return &core.KvResponse{Status: errdefs.StatusKeyNotFound}
		}
		if kv.locked(doc) {
			return &core.KvResponse{Status: errdefs.StatusLocked}
		}
		doc.expiresAt = kv.expiry(req.Expiry)
		doc.cas = kv.nextCas()
		resp := &core.KvResponse{Status: errdefs.StatusSuccess, Cas: doc.cas}
		if req.OpCode == core.OpGetAndTouch {
			resp.Value = doc.value
			resp.Flags = doc.flags
		}
		return resp

	case core.OpGetLocked:
		doc := kv.get(c, req.Key)
		if doc == nil {
			return &core.KvResponse{Status: errdefs.StatusKeyNotFound}
		}
		if kv.locked(doc) {
			return &core.KvResponse{Status: errdefs.StatusLocked}
		}
		lockTime := time.Duration(req.LockTime) * time.Second
		if lockTime <= 0 || lockTime > maxLockTime {
			lockTime = defaultLockTime
		}
		doc.lockedUntil = kv.now().Add(lockTime)
		doc.cas = kv.nextCas()
		return &core.KvResponse{Status: errdefs.StatusSuccess, Cas: doc.cas, Value: doc.value, Flags: doc.flags}

	case core.OpUnlock:
		doc := kv.get(c, req.Key)
		if doc == nil {
			return &core.KvResponse{Status: errdefs.StatusKeyNotFound}
		}
		if !kv.locked(doc) {
			return &core.KvResponse{Status: errdefs.StatusTmpFail}
		}
		if req.Cas != doc.cas {
			return &core.KvResponse{Status: errdefs.StatusKeyExists}
		}
		doc.lockedUntil = time.Time{}
		return &core.KvResponse{Status: errdefs.StatusSuccess, Cas: doc.cas}

	case core.OpIncrement, core.OpDecrement:
		return kv.counter(c, req)

	default:
		return &core.KvResponse{Status: errdefs.StatusUnknownCommand}
	}
}

// casCheck enforces lock and CAS semantics for a mutation. Supplying the
// lock's CAS both passes the check and releases the lock.
func (kv *KV) casCheck(doc *document, cas uint64) errdefs.StatusCode {
	if kv.locked(doc) {
		if cas != doc.cas {
			return errdefs.StatusLocked
		}
		doc.lockedUntil = time.Time{}
		return errdefs.StatusSuccess
	}
	if cas != 0 && cas != doc.cas {
		return errdefs.StatusKeyExists
	}
	return errdefs.StatusSuccess
}

func (kv *KV) store(doc *document, req *core.KvRequest) *core.KvResponse {
	doc.value = append([]byte(nil), req.Value...)
	doc.flags = req.Flags
	doc.expiresAt = kv.expiry(req.Expiry)
	doc.cas = kv.nextCas()
	return &core.KvResponse{Status: errdefs.StatusSuccess, Cas: doc.cas}
}

func (kv *KV) counter(c collection, req *core.KvRequest) *core.KvResponse {
	doc := kv.get(c, req.Key)
	if doc == nil {
		if req.Expiry == core.NoCreateExpiry {
			return &core.KvResponse{Status: errdefs.StatusKeyNotFound}
		}
		doc = &document{
			value:     []byte(strconv.FormatUint(req.Initial, 10)),
			expiresAt: kv.expiry(req.Expiry),
			cas:       kv.nextCas(),
		}
		c[req.Key] = doc
		return &core.KvResponse{Status: errdefs.StatusSuccess, Cas: doc.cas, Value: doc.value}
	}
	if kv.locked(doc) {
		return &core.KvResponse{Status: errdefs.StatusLocked}
	}
	cur, err := strconv.ParseUint(string(doc.value), 10, 64)
	if err != nil {
		return &core.KvResponse{Status: errdefs.StatusBadDelta}
	}
	if req.OpCode == core.OpIncrement {
		cur += req.Delta
	} else if cur <= req.Delta {
		// decrement floors at zero rather than wrapping
		cur = 0
	} else {
		cur -= req.Delta
	}
	doc.value = []byte(strconv.FormatUint(cur, 10))
	doc.cas = kv.nextCas()
	return &core.KvResponse{Status: errdefs.StatusSuccess, Cas: doc.cas, Value: doc.value}
}
