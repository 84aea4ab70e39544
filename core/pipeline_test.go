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
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/faults"
	"go.6river.tech/dockv/retry"
)

// scriptDispatcher plays back a queue of dispatch outcomes; the last entry
// repeats once the queue is exhausted.
type scriptDispatcher struct {
	mu     sync.Mutex
	script []dispatchOutcome
	calls  int
}

type dispatchOutcome struct {
	status errdefs.StatusCode
	cas    uint64
	value  []byte
	err    error
	block  bool
}

func (d *scriptDispatcher) Dispatch(ctx context.Context, req *KvRequest) (*KvResponse, error) {
	d.mu.Lock()
	out := d.script[0]
	if len(d.script) > 1 {
		d.script = d.script[1:]
	}
	d.calls++
	d.mu.Unlock()
	if out.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if out.err != nil {
		return nil, out.err
	}
	req.MarkDispatched("emu:11210")
	return &KvResponse{Status: out.status, Cas: out.cas, Value: out.value}, nil
}

func (d *scriptDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestPipeline(t *testing.T, cfg PipelineConfig) *Pipeline {
	t.Helper()
	if cfg.Strategy == nil {
		cfg.Strategy = retry.NewBestEffort(fastBackoff)
	}
	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	return p
}

func TestNewPipeline_RequiresDispatcher(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestNewPipeline_RegistersMetricsOnce(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	d := &scriptDispatcher{script: []dispatchOutcome{{status: errdefs.StatusSuccess}}}
	_, err := NewPipeline(PipelineConfig{Dispatcher: d, Registerer: reg})
	require.NoError(t, err)
	_, err = NewPipeline(PipelineConfig{Dispatcher: d, Registerer: reg})
	assert.Error(t, err, "same registerer twice must collide")
}

func TestExecute_Success(t *testing.T) {
	d := &scriptDispatcher{script: []dispatchOutcome{
		{status: errdefs.StatusSuccess, cas: 7, value: []byte(`{"n":1}`)},
	}}
	p := newTestPipeline(t, PipelineConfig{Dispatcher: d})

	req := &KvRequest{OpCode: OpGet, BucketName: "orders", Key: "o::1"}
	resp, err := p.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 7, resp.Cas)
	assert.JSONEq(t, `{"n":1}`, string(resp.Value))
	assert.Equal(t, 1, d.callCount())
	assert.Equal(t, BreakerClosed, p.Breaker().State())
}

func TestExecute_TerminalStatusWrapsContext(t *testing.T) {
	d := &scriptDispatcher{script: []dispatchOutcome{{status: errdefs.StatusKeyNotFound}}}
	p := newTestPipeline(t, PipelineConfig{Dispatcher: d})

	req := &KvRequest{
		OpCode:         OpGet,
		BucketName:     "orders",
		ScopeName:      "_default",
		CollectionName: "lines",
		Key:            "o::missing",
		OperationID:    "11111111-2222-3333-4444-555555555555",
	}
	_, err := p.Execute(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrDocumentNotFound)

	var kvErr *errdefs.KeyValueError
	require.ErrorAs(t, err, &kvErr)
	assert.Equal(t, errdefs.StatusKeyNotFound, kvErr.StatusCode)
	assert.Equal(t, "o::missing", kvErr.DocumentID)
	assert.Equal(t, "orders", kvErr.BucketName)
	assert.Equal(t, "lines", kvErr.CollectionName)
	assert.Equal(t, req.OperationID, kvErr.OperationID)
	assert.Equal(t, "emu:11210", kvErr.LastDispatchedTo)
	assert.Zero(t, kvErr.RetryAttempts)
}

func TestExecute_RetriesTemporaryFailure(t *testing.T) {
	d := &scriptDispatcher{script: []dispatchOutcome{
		{status: errdefs.StatusTmpFail},
		{status: errdefs.StatusTmpFail},
		{status: errdefs.StatusSuccess, cas: 3},
	}}
	p := newTestPipeline(t, PipelineConfig{Dispatcher: d})

	req := &KvRequest{OpCode: OpSet, BucketName: "orders", Key: "o::1", Value: []byte(`{}`)}
	resp, err := p.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 3, resp.Cas)
	assert.Equal(t, 3, d.callCount())
	assert.EqualValues(t, 2, req.Attempts())
	assert.Equal(t, []retry.Reason{retry.ReasonKVTemporaryFailure}, req.RetryReasons())
}

func TestExecute_NotMyVBucketRetriesUnderFailFast(t *testing.T) {
	d := &scriptDispatcher{script: []dispatchOutcome{
		{status: errdefs.StatusNotMyVBucket},
		{status: errdefs.StatusSuccess, cas: 1},
	}}
	p := newTestPipeline(t, PipelineConfig{Dispatcher: d, Strategy: retry.FailFast{}})

	req := &KvRequest{OpCode: OpSet, BucketName: "orders", Key: "o::1"}
	_, err := p.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, d.callCount())
	assert.Equal(t, []retry.Reason{retry.ReasonKVNotMyVBucket}, req.RetryReasons())
}

func TestExecute_CasMismatchByOpcode(t *testing.T) {
	for _, tt := range []struct {
		op   OpCode
		want error
	}{
		{OpReplace, errdefs.ErrCasMismatch},
		{OpDelete, errdefs.ErrCasMismatch},
		{OpAdd, errdefs.ErrDocumentExists},
	} {
		t.Run(tt.op.String(), func(t *testing.T) {
			d := &scriptDispatcher{script: []dispatchOutcome{{status: errdefs.StatusKeyExists}}}
			p := newTestPipeline(t, PipelineConfig{Dispatcher: d})
			req := &KvRequest{OpCode: tt.op, BucketName: "orders", Key: "o::1", Cas: 42}
			_, err := p.Execute(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExecute_TransportErrorRetriedForReads(t *testing.T) {
	connRefused := errors.New("dial tcp: connection refused")
	d := &scriptDispatcher{script: []dispatchOutcome{
		{err: connRefused},
		{status: errdefs.StatusSuccess, cas: 9},
	}}
	p := newTestPipeline(t, PipelineConfig{Dispatcher: d})

	req := &KvRequest{OpCode: OpGet, BucketName: "orders", Key: "o::1"}
	resp, err := p.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 9, resp.Cas)
	assert.Equal(t, []retry.Reason{retry.ReasonSocketNotAvailable}, req.RetryReasons())
}

func TestExecute_InFlightSocketCloseIsTerminalForMutations(t *testing.T) {
	d := &scriptDispatcher{script: []dispatchOutcome{{err: ErrSocketClosedInFlight}}}
	p := newTestPipeline(t, PipelineConfig{Dispatcher: d})

	req := &KvRequest{OpCode: OpSet, BucketName: "orders", Key: "o::1"}
	_, err := p.Execute(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrServiceNotAvailable)
	assert.ErrorIs(t, err, ErrSocketClosedInFlight)
	assert.Equal(t, 1, d.callCount(), "a mutation that may have executed is not retried")
	assert.True(t, req.Dispatched())
}

func TestExecute_DeadlineYieldsTimeoutError(t *testing.T) {
	d := &scriptDispatcher{script: []dispatchOutcome{{status: errdefs.StatusTmpFail}}}
	p := newTestPipeline(t, PipelineConfig{Dispatcher: d})

	req := &KvRequest{
		OpCode:     OpSet,
		BucketName: "orders",
		Key:        "o::1",
		Deadline:   time.Now().Add(25 * time.Millisecond),
	}
	_, err := p.Execute(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrTimeout)
	assert.ErrorIs(t, err, errdefs.ErrAmbiguousTimeout,
		"a dispatched mutation cannot promise it did not apply")

	var tErr *errdefs.TimeoutError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "kv/set", tErr.Operation)
	assert.Contains(t, tErr.RetryReasons, retry.ReasonKVTemporaryFailure)
	assert.Positive(t, tErr.TimeObserved)
}

func TestExecute_CancellationYieldsRequestCanceled(t *testing.T) {
	d := &scriptDispatcher{script: []dispatchOutcome{{block: true}}}
	p := newTestPipeline(t, PipelineConfig{Dispatcher: d})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	req := &KvRequest{OpCode: OpGet, BucketName: "orders", Key: "o::1"}
	_, err := p.Execute(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrRequestCanceled)
	assert.NotErrorIs(t, err, errdefs.ErrTimeout)
}

func TestExecute_FaultInjection(t *testing.T) {
	set := faults.NewSet("pipeline_test")
	require.NoError(t, set.InjectError(
		"kv/get", faults.Parameters{"bucket": "orders"}, 1,
		errors.New("injected outage")))

	d := &scriptDispatcher{script: []dispatchOutcome{{status: errdefs.StatusSuccess, cas: 5}}}
	p := newTestPipeline(t, PipelineConfig{Dispatcher: d, Faults: set})

	req := &KvRequest{OpCode: OpGet, BucketName: "orders", Key: "o::1"}
	resp, err := p.Execute(context.Background(), req)
	require.NoError(t, err, "read retries straight through the injected fault")
	assert.EqualValues(t, 5, resp.Cas)
	assert.Equal(t, []retry.Reason{retry.ReasonSocketNotAvailable}, req.RetryReasons())
	assert.Equal(t, 1, d.callCount(), "the faulted attempt never reaches the dispatcher")
}

func TestExecute_BreakerOpensAndRejects(t *testing.T) {
	connRefused := errors.New("dial tcp: connection refused")
	d := &scriptDispatcher{script: []dispatchOutcome{{err: connRefused}}}
	p := newTestPipeline(t, PipelineConfig{
		Dispatcher: d,
		Strategy:   retry.FailFast{},
		Breaker:    BreakerConfig{VolumeThreshold: 2, ErrorThresholdPercentage: 100, SleepWindow: time.Hour},
	})

	for i := 0; i < 2; i++ {
		_, err := p.Execute(context.Background(), &KvRequest{OpCode: OpGet, Key: "k"})
		assert.ErrorIs(t, err, errdefs.ErrServiceNotAvailable)
	}
	require.Equal(t, BreakerOpen, p.Breaker().State())

	req := &KvRequest{OpCode: OpGet, Key: "k"}
	_, err := p.Execute(context.Background(), req)
	assert.ErrorIs(t, err, errdefs.ErrServiceNotAvailable)
	assert.Equal(t, 2, d.callCount(), "open breaker rejects before dispatch")
}

func TestExecute_ServerStatusesDoNotTripBreaker(t *testing.T) {
	d := &scriptDispatcher{script: []dispatchOutcome{{status: errdefs.StatusKeyNotFound}}}
	p := newTestPipeline(t, PipelineConfig{
		Dispatcher: d,
		Strategy:   retry.FailFast{},
		Breaker:    BreakerConfig{VolumeThreshold: 2, ErrorThresholdPercentage: 50},
	})

	for i := 0; i < 10; i++ {
		_, err := p.Execute(context.Background(), &KvRequest{OpCode: OpGet, Key: "k"})
		assert.ErrorIs(t, err, errdefs.ErrDocumentNotFound)
	}
	assert.Equal(t, BreakerClosed, p.Breaker().State(),
		"an answering server is healthy no matter what it answers")
}
