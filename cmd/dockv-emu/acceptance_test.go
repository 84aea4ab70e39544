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

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/server"
	"go.6river.tech/dockv/testutils"
)

// freePort grabs a loopback port the query emulator can bind a moment later.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestEndpoints(t *testing.T) {
	logging.ConfigureDefaultLogging()
	server.EnableRandomPorts()
	ctx := testutils.ContextForTest(t)

	queryPort := freePort(t)
	t.Setenv("QUERY_PORT", strconv.Itoa(queryPort))

	app, err := newApp()
	require.NoError(t, err)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return app.Main(ctx) })

	client := http.DefaultClient
	baseUrl := "http://localhost:" + strconv.Itoa(server.ResolvePort(defaultDebugPort, 0))
	queryUrl := "http://127.0.0.1:" + strconv.Itoa(queryPort)

	// wait for the app to start
	for {
		delay := time.After(time.Millisecond)
		select {
		case <-ctx.Done():
			require.NoError(t, eg.Wait(), "main should not panic")
			return
		case <-delay:
			// continue with checks...
		}

		if !app.Registry.ServicesStarted() {
			continue
		}
		if err := app.Registry.WaitAllReady(ctx); err != nil {
			require.NoError(t, eg.Wait(), "main should not panic")
		}
		break
	}

	tests := []struct {
		name   string
		url    string
		method string
		body   json.RawMessage
		check  func(*testing.T, *http.Response)
	}{
		{
			"uptime",
			baseUrl + "/",
			http.MethodGet,
			nil,
			func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Contains(t, resp.Header.Get("Content-type"), "application/json")
				bodyObject := map[string]interface{}{}
				err := json.NewDecoder(resp.Body).Decode(&bodyObject)
				assert.NoError(t, err)
				assert.Contains(t, bodyObject, "startTime")
				assert.Contains(t, bodyObject, "version")
			},
		},
		{
			"error code lookup",
			baseUrl + "/errors/12004",
			http.MethodGet,
			nil,
			func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				bodyObject := map[string]interface{}{}
				err := json.NewDecoder(resp.Body).Decode(&bodyObject)
				assert.NoError(t, err)
				assert.EqualValues(t, 12004, bodyObject["code"])
			},
		},
		{
			"arm a fault",
			baseUrl + "/faults",
			http.MethodPost,
			rawJson(gin.H{"operation": "kv/Get", "count": 1}),
			func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusCreated, resp.StatusCode)
			},
		},
		{
			"list faults",
			baseUrl + "/faults",
			http.MethodGet,
			nil,
			func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				var body []map[string]interface{}
				err := json.NewDecoder(resp.Body).Decode(&body)
				assert.NoError(t, err)
				require.Len(t, body, 1)
				assert.Equal(t, "kv/Get", body[0]["operation"])
			},
		},
		{
			"query service default",
			queryUrl + "/query/service",
			http.MethodPost,
			rawJson(gin.H{"statement": "select greeting from default"}),
			func(t *testing.T, resp *http.Response) {
				// unscripted select answers with an index error descriptor
				assert.Equal(t, http.StatusNotFound, resp.StatusCode)
				bodyObject := map[string]interface{}{}
				err := json.NewDecoder(resp.Body).Decode(&bodyObject)
				assert.NoError(t, err)
				assert.Equal(t, "fatal", bodyObject["status"])
			},
		},
		{
			"metrics",
			baseUrl + "/metrics",
			http.MethodGet,
			nil,
			func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
			},
		},
		{
			"shutdown",
			baseUrl + "/server/shutdown",
			http.MethodPost,
			nil,
			nil,
		},
	}

	// run tests, last one will close the app
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var bodyReader io.Reader
			if tt.body != nil {
				bodyReader = bytes.NewReader(tt.body)
			}
			// ctx is from the errgroup running main, so if that blows up the
			// requests get canceled instead of hanging until the timeout
			req, err := http.NewRequestWithContext(ctx, tt.method, tt.url, bodyReader)
			require.NoError(t, err)
			if bodyReader != nil {
				req.Header.Add("Content-Type", "application/json")
			}
			resp, err := client.Do(req)
			if resp != nil {
				defer resp.Body.Close()
			}
			require.NoError(t, err)

			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}

	app.Registry.RequestStopServices()
	err = eg.Wait()
	assert.NoError(t, err, "main should not panic")
}

func rawJson(data gin.H) json.RawMessage {
	msg, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	return msg
}
