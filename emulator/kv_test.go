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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.6river.tech/dockv/core"
	"go.6river.tech/dockv/errdefs"
)

func newTestKV(t *testing.T, cfg KVConfig) (*KV, *fakeKVClock) {
	t.Helper()
	clock := &fakeKVClock{now: time.Unix(1700000000, 0)}
	kv := NewKV(cfg)
	kv.now = func() time.Time { return clock.now }
	kv.AddCollection("orders", "_default", "lines")
	return kv, clock
}

type fakeKVClock struct {
	now time.Time
}

func (c *fakeKVClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func dispatch(t *testing.T, kv *KV, req *core.KvRequest) *core.KvResponse {
	t.Helper()
	resp, err := kv.Dispatch(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func orderReq(op core.OpCode, key string) *core.KvRequest {
	return &core.KvRequest{
		OpCode:         op,
		BucketName:     "orders",
		ScopeName:      "_default",
		CollectionName: "lines",
		Key:            key,
	}
}

func TestKV_SetGetRoundTrip(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{})

	set := orderReq(core.OpSet, "o::1")
	set.Value = []byte(`{"qty":2}`)
	set.Flags = 0x2000000
	setResp := dispatch(t, kv, set)
	require.Equal(t, errdefs.StatusSuccess, setResp.Status)
	assert.NotZero(t, setResp.Cas)
	assert.True(t, set.Dispatched())
	assert.Equal(t, "emulator:11210", set.LastDispatchedTo())

	get := orderReq(core.OpGet, "o::1")
	getResp := dispatch(t, kv, get)
	require.Equal(t, errdefs.StatusSuccess, getResp.Status)
	assert.Equal(t, setResp.Cas, getResp.Cas)
	assert.JSONEq(t, `{"qty":2}`, string(getResp.Value))
	assert.EqualValues(t, 0x2000000, getResp.Flags)

	// overwriting bumps the CAS
	again := dispatch(t, kv, set)
	assert.Greater(t, again.Cas, setResp.Cas)
}

func TestKV_AddressingStatuses(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{})
	for _, tt := range []struct {
		name   string
		mutate func(*core.KvRequest)
		want   errdefs.StatusCode
	}{
		{"unknown bucket", func(r *core.KvRequest) { r.BucketName = "nope" }, errdefs.StatusNoBucket},
		{"unknown scope", func(r *core.KvRequest) { r.ScopeName = "nope" }, errdefs.StatusUnknownScope},
		{"unknown collection", func(r *core.KvRequest) { r.CollectionName = "nope" }, errdefs.StatusUnknownCollection},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := orderReq(core.OpGet, "o::1")
			tt.mutate(req)
			assert.Equal(t, tt.want, dispatch(t, kv, req).Status)
		})
	}
}

func TestKV_AddAndReplaceSemantics(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{})

	add := orderReq(core.OpAdd, "o::1")
	add.Value = []byte(`1`)
	require.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, add).Status)
	assert.Equal(t, errdefs.StatusKeyExists, dispatch(t, kv, add).Status)

	replaceMissing := orderReq(core.OpReplace, "o::2")
	replaceMissing.Value = []byte(`2`)
	assert.Equal(t, errdefs.StatusKeyNotFound, dispatch(t, kv, replaceMissing).Status)

	stale := orderReq(core.OpReplace, "o::1")
	stale.Value = []byte(`2`)
	stale.Cas = 0xdead
	assert.Equal(t, errdefs.StatusKeyExists, dispatch(t, kv, stale).Status)

	cur := dispatch(t, kv, orderReq(core.OpGet, "o::1"))
	fresh := orderReq(core.OpReplace, "o::1")
	fresh.Value = []byte(`2`)
	fresh.Cas = cur.Cas
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, fresh).Status)
}

func TestKV_DeleteWithCas(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{})
	set := orderReq(core.OpSet, "o::1")
	set.Value = []byte(`1`)
	cas := dispatch(t, kv, set).Cas

	stale := orderReq(core.OpDelete, "o::1")
	stale.Cas = cas + 99
	assert.Equal(t, errdefs.StatusKeyExists, dispatch(t, kv, stale).Status)

	del := orderReq(core.OpDelete, "o::1")
	del.Cas = cas
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, del).Status)
	assert.Equal(t, errdefs.StatusKeyNotFound, dispatch(t, kv, orderReq(core.OpGet, "o::1")).Status)
}

func TestKV_Expiry(t *testing.T) {
	kv, clock := newTestKV(t, KVConfig{})
	set := orderReq(core.OpSet, "o::1")
	set.Value = []byte(`1`)
	set.Expiry = 10
	dispatch(t, kv, set)

	clock.advance(9 * time.Second)
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, orderReq(core.OpGet, "o::1")).Status)

	clock.advance(time.Second)
	assert.Equal(t, errdefs.StatusKeyNotFound, dispatch(t, kv, orderReq(core.OpGet, "o::1")).Status)
}

func TestKV_TouchExtendsExpiry(t *testing.T) {
	kv, clock := newTestKV(t, KVConfig{})
	set := orderReq(core.OpSet, "o::1")
	set.Value = []byte(`1`)
	set.Expiry = 10
	dispatch(t, kv, set)

	clock.advance(9 * time.Second)
	touch := orderReq(core.OpTouch, "o::1")
	touch.Expiry = 10
	require.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, touch).Status)

	clock.advance(9 * time.Second)
	gat := orderReq(core.OpGetAndTouch, "o::1")
	gat.Expiry = 10
	resp := dispatch(t, kv, gat)
	require.Equal(t, errdefs.StatusSuccess, resp.Status)
	assert.Equal(t, []byte(`1`), resp.Value)
}

func TestKV_LockLifecycle(t *testing.T) {
	kv, clock := newTestKV(t, KVConfig{})
	set := orderReq(core.OpSet, "o::1")
	set.Value = []byte(`1`)
	dispatch(t, kv, set)

	lock := orderReq(core.OpGetLocked, "o::1")
	lock.LockTime = 15
	lockResp := dispatch(t, kv, lock)
	require.Equal(t, errdefs.StatusSuccess, lockResp.Status)

	// plain reads still work, with the CAS masked
	get := dispatch(t, kv, orderReq(core.OpGet, "o::1"))
	require.Equal(t, errdefs.StatusSuccess, get.Status)
	assert.EqualValues(t, lockedCas, get.Cas)

	assert.Equal(t, errdefs.StatusLocked, dispatch(t, kv, lock).Status, "no double locking")

	blind := orderReq(core.OpSet, "o::1")
	blind.Value = []byte(`2`)
	assert.Equal(t, errdefs.StatusLocked, dispatch(t, kv, blind).Status)

	wrongUnlock := orderReq(core.OpUnlock, "o::1")
	wrongUnlock.Cas = lockResp.Cas + 1
	assert.Equal(t, errdefs.StatusKeyExists, dispatch(t, kv, wrongUnlock).Status)

	unlock := orderReq(core.OpUnlock, "o::1")
	unlock.Cas = lockResp.Cas
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, unlock).Status)

	assert.Equal(t, errdefs.StatusTmpFail, dispatch(t, kv, unlock).Status,
		"unlocking an unlocked document is a transient server-side failure")

	// a lock expires on its own
	dispatch(t, kv, lock)
	clock.advance(16 * time.Second)
	mutate := orderReq(core.OpSet, "o::1")
	mutate.Value = []byte(`3`)
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, mutate).Status)
}

func TestKV_MutationWithLockCasReleasesLock(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{})
	set := orderReq(core.OpSet, "o::1")
	set.Value = []byte(`1`)
	dispatch(t, kv, set)

	lockResp := dispatch(t, kv, orderReq(core.OpGetLocked, "o::1"))
	require.Equal(t, errdefs.StatusSuccess, lockResp.Status)

	replace := orderReq(core.OpReplace, "o::1")
	replace.Value = []byte(`2`)
	replace.Cas = lockResp.Cas
	require.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, replace).Status)

	// the document is writable again without a CAS
	blind := orderReq(core.OpSet, "o::1")
	blind.Value = []byte(`3`)
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, blind).Status)
}

func TestKV_Counters(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{})

	noCreate := orderReq(core.OpIncrement, "hits")
	noCreate.Delta = 1
	noCreate.Expiry = core.NoCreateExpiry
	assert.Equal(t, errdefs.StatusKeyNotFound, dispatch(t, kv, noCreate).Status)

	create := orderReq(core.OpIncrement, "hits")
	create.Delta = 1
	create.Initial = 100
	resp := dispatch(t, kv, create)
	require.Equal(t, errdefs.StatusSuccess, resp.Status)
	assert.Equal(t, []byte("100"), resp.Value, "a created counter starts at Initial, not Initial+Delta")

	resp = dispatch(t, kv, create)
	assert.Equal(t, []byte("101"), resp.Value)

	dec := orderReq(core.OpDecrement, "hits")
	dec.Delta = 500
	resp = dispatch(t, kv, dec)
	assert.Equal(t, []byte("0"), resp.Value, "decrement floors at zero")

	junk := orderReq(core.OpSet, "junk")
	junk.Value = []byte(`"not a number"`)
	dispatch(t, kv, junk)
	incJunk := orderReq(core.OpIncrement, "junk")
	incJunk.Delta = 1
	assert.Equal(t, errdefs.StatusBadDelta, dispatch(t, kv, incJunk).Status)
}

func TestKV_ValueSizeLimit(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{MaxValueSize: 8})
	set := orderReq(core.OpSet, "o::1")
	set.Value = []byte(`123456789`)
	assert.Equal(t, errdefs.StatusTooBig, dispatch(t, kv, set).Status)
	set.Value = []byte(`12345678`)
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, set).Status)
}

func TestKV_DurabilitySupport(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{DisableDurability: true})
	set := orderReq(core.OpSet, "o::1")
	set.Value = []byte(`1`)
	set.Durability = core.DurabilityMajority
	assert.Equal(t, errdefs.StatusDurabilityInvalidLevel, dispatch(t, kv, set).Status)

	set.Durability = core.DurabilityNone
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, set).Status)

	supported, _ := newTestKV(t, KVConfig{})
	durable := orderReq(core.OpSet, "o::1")
	durable.Value = []byte(`1`)
	durable.Durability = core.DurabilityMajority
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, supported, durable).Status)
}

func TestKV_ScriptedFailures(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{})
	set := orderReq(core.OpSet, "o::1")
	set.Value = []byte(`1`)
	dispatch(t, kv, set)

	kv.InjectFailures(core.OpGet, errdefs.StatusTmpFail, 2)
	assert.Equal(t, errdefs.StatusTmpFail, dispatch(t, kv, orderReq(core.OpGet, "o::1")).Status)
	assert.Equal(t, errdefs.StatusTmpFail, dispatch(t, kv, orderReq(core.OpGet, "o::1")).Status)
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, orderReq(core.OpGet, "o::1")).Status,
		"scripted failures are consumed")

	boom := errors.New("connection reset")
	kv.InjectErrors(core.OpGet, boom, 1)
	_, err := kv.Dispatch(context.Background(), orderReq(core.OpGet, "o::1"))
	assert.ErrorIs(t, err, boom)
	_, err = kv.Dispatch(context.Background(), orderReq(core.OpGet, "o::1"))
	assert.NoError(t, err)
}

func TestKV_ScriptedFailuresQueueInOrder(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{})
	set := orderReq(core.OpSet, "o::1")
	set.Value = []byte(`1`)
	dispatch(t, kv, set)

	kv.InjectFailures(core.OpGet, errdefs.StatusNotMyVBucket, 1)
	kv.InjectFailures(core.OpGet, errdefs.StatusTmpFail, 1)
	assert.Equal(t, errdefs.StatusNotMyVBucket, dispatch(t, kv, orderReq(core.OpGet, "o::1")).Status)
	assert.Equal(t, errdefs.StatusTmpFail, dispatch(t, kv, orderReq(core.OpGet, "o::1")).Status)
	assert.Equal(t, errdefs.StatusSuccess, dispatch(t, kv, orderReq(core.OpGet, "o::1")).Status)
}

func TestKV_ContextError(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := kv.Dispatch(ctx, orderReq(core.OpGet, "o::1"))
	assert.ErrorIs(t, err, context.Canceled)
}
