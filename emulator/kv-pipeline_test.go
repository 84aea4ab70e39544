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
	"go.6river.tech/dockv/retry"
)

// Exercises the emulator as a dispatcher behind the real pipeline, the way
// application tests are meant to use it.
func TestKV_BehindPipeline(t *testing.T) {
	kv, _ := newTestKV(t, KVConfig{})
	pipeline, err := core.NewPipeline(core.PipelineConfig{Dispatcher: kv})
	require.NoError(t, err)

	strategy := retry.NewBestEffort(retry.ExponentialBackoff(time.Millisecond, 2*time.Millisecond, 2))

	t.Run("retries scripted failures until they drain", func(t *testing.T) {
		set := orderReq(core.OpSet, "o::1")
		set.Value = []byte(`{"qty":1}`)
		set.Strategy = strategy
		_, err := pipeline.Execute(context.Background(), set)
		require.NoError(t, err)

		kv.InjectFailures(core.OpGet, errdefs.StatusTmpFail, 2)
		get := orderReq(core.OpGet, "o::1")
		get.Strategy = strategy
		resp, err := pipeline.Execute(context.Background(), get)
		require.NoError(t, err)
		assert.JSONEq(t, `{"qty":1}`, string(resp.Value))
		assert.EqualValues(t, 2, get.Attempts())
		assert.Equal(t, []retry.Reason{retry.ReasonKVTemporaryFailure}, get.RetryReasons())
	})

	t.Run("terminal statuses map to sentinels with context", func(t *testing.T) {
		get := orderReq(core.OpGet, "o::missing")
		get.Strategy = strategy
		_, err := pipeline.Execute(context.Background(), get)
		require.ErrorIs(t, err, errdefs.ErrDocumentNotFound)
		var kvErr *errdefs.KeyValueError
		require.ErrorAs(t, err, &kvErr)
		assert.Equal(t, "o::missing", kvErr.DocumentID)
		assert.Equal(t, "orders", kvErr.BucketName)
		assert.Equal(t, errdefs.StatusKeyNotFound, kvErr.StatusCode)
	})

	t.Run("fail fast surfaces locked immediately", func(t *testing.T) {
		set := orderReq(core.OpSet, "o::2")
		set.Value = []byte(`1`)
		set.Strategy = strategy
		_, err := pipeline.Execute(context.Background(), set)
		require.NoError(t, err)

		lock := orderReq(core.OpGetLocked, "o::2")
		lock.LockTime = 15
		lock.Strategy = strategy
		_, err = pipeline.Execute(context.Background(), lock)
		require.NoError(t, err)

		blind := orderReq(core.OpSet, "o::2")
		blind.Value = []byte(`2`)
		blind.Strategy = retry.FailFast{}
		_, err = pipeline.Execute(context.Background(), blind)
		require.ErrorIs(t, err, errdefs.ErrDocumentLocked)
		assert.Zero(t, blind.Attempts())
	})

	t.Run("transport errors on reads are retried", func(t *testing.T) {
		kv.InjectErrors(core.OpGet, errors.New("connection reset"), 1)
		get := orderReq(core.OpGet, "o::1")
		get.Strategy = strategy
		_, err := pipeline.Execute(context.Background(), get)
		require.NoError(t, err)
		assert.Equal(t, []retry.Reason{retry.ReasonSocketNotAvailable}, get.RetryReasons())
	})
}
