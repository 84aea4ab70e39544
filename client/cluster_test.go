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
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.6river.tech/dockv/emulator"
	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/faults"
	"go.6river.tech/dockv/server"
)

func TestConnect_Validation(t *testing.T) {
	kv := emulator.NewKV(emulator.KVConfig{})
	for _, tc := range []struct {
		name string
		opts ClusterOptions
	}{
		{"missing transport", ClusterOptions{}},
		{"relative query endpoint", ClusterOptions{Transport: kv, QueryEndpoint: "query.local/service"}},
		{"unsupported query scheme", ClusterOptions{Transport: kv, QueryEndpoint: "ftp://query.local"}},
		{"negative debug port", ClusterOptions{Transport: kv, Debug: DebugOptions{Port: -1}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Connect(tc.opts)
			require.ErrorIs(t, err, errdefs.ErrInvalidArgument)
		})
	}
}

func TestConnect_TimeoutDefaults(t *testing.T) {
	c, err := Connect(ClusterOptions{
		Transport: emulator.NewKV(emulator.KVConfig{}),
		Timeouts:  TimeoutConfig{KV: time.Second},
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close(context.Background())) })

	assert.Equal(t, time.Second, c.timeouts.KV, "explicit fields stay put")
	assert.Equal(t, 10*time.Second, c.timeouts.Connect)
	assert.Equal(t, 10*time.Second, c.timeouts.KVDurable)
	assert.Equal(t, 75*time.Second, c.timeouts.Query)
}

// The debug surface runs a real listener, so this exercises it over HTTP the
// way operators would.
func TestCluster_DebugSurface(t *testing.T) {
	server.EnableRandomPorts()

	kv := emulator.NewKV(emulator.KVConfig{})
	kv.AddBucket("orders")
	set := faults.NewSet(t.Name())
	promReg := prometheus.NewRegistry()

	c, err := Connect(ClusterOptions{
		Transport:     kv,
		Faults:        set,
		Registerer:    promReg,
		RetryStrategy: quickRetries,
		Debug:         DebugOptions{Enabled: true, Port: 3000},
	})
	require.NoError(t, err)
	ctx := context.Background()

	base := fmt.Sprintf("http://localhost:%d", server.ResolvePort(3000, 0))
	get := func(t *testing.T, path string) (int, string) {
		t.Helper()
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		return resp.StatusCode, string(body)
	}

	t.Run("uptime", func(t *testing.T) {
		status, body := get(t, "/")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "startTime")
	})

	t.Run("error code registry", func(t *testing.T) {
		status, body := get(t, "/errors/4040")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "plan.prepared.not_found")
	})

	t.Run("faults armed over HTTP disturb live operations", func(t *testing.T) {
		_, err := orders(c).Upsert(ctx, "o::1", orderDoc{Qty: 1}, nil)
		require.NoError(t, err)

		resp, err := http.Post(base+"/faults", "application/json",
			bytes.NewReader([]byte(`{"operation":"kv/get","count":1,"message":"chaos"}`)))
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		status, body := get(t, "/faults")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "kv/get")

		// the injected failure burns off through a retry
		got, err := orders(c).Get(ctx, "o::1", nil)
		require.NoError(t, err)
		var doc orderDoc
		require.NoError(t, got.Content(&doc))
		assert.Equal(t, 1, doc.Qty)
	})

	t.Run("operation metrics are scraped", func(t *testing.T) {
		status, body := get(t, "/metrics")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "dockv_kv_breaker_state")
		assert.Contains(t, body, "dockv_kv_operations_total")
		assert.Contains(t, body, "dockv_kv_retries_total")
	})

	http.DefaultClient.CloseIdleConnections()
	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx), "close is idempotent")

	_, err = http.Get(base + "/")
	require.Error(t, err, "the debug listener stops with the cluster")
}
