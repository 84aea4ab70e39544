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

// Package client is the public surface of the dockv SDK. A Cluster owns the
// transport, timeouts, retry strategy and debug surface; Bucket, Scope and
// Collection are cheap addressing handles under it. Every failure an
// operation returns is a taxonomy error from the errdefs package, wrapped
// with enough context to log or match with errors.Is.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"go.6river.tech/dockv/core"
	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/faults"
	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/retry"
)

// DebugOptions runs an HTTP debug surface for the lifetime of the cluster:
// uptime, log level control, the error code registry, fault injection and
// metrics, plus expvar and pprof.
type DebugOptions struct {
	Enabled bool
	// Port is the listen port, 3000 when zero. The PORT environment variable
	// overrides both.
	Port int
}

// ClusterOptions configures Connect. Transport is the only required field.
type ClusterOptions struct {
	// Transport dispatches data service requests. Required.
	Transport core.KvDispatcher
	// QueryEndpoint is the base URL of the query service, e.g.
	// "http://127.0.0.1:8093". Empty disables Query.
	QueryEndpoint string
	// HTTPClient overrides the client used for query service requests.
	HTTPClient *http.Client
	// Timeouts defaults to the "default" profile; zero fields are filled
	// from it individually.
	Timeouts TimeoutConfig
	// RetryStrategy is the cluster-wide default. Nil means best effort with
	// exponential backoff.
	RetryStrategy retry.Strategy
	// Breaker configures the data service circuit breaker.
	Breaker core.BreakerConfig
	// Registerer, when non-nil, receives the operation metrics.
	Registerer prometheus.Registerer
	// Redaction controls how user data is rendered in logs and error
	// contexts. It applies process wide.
	Redaction logging.RedactionLevel
	// Faults, when non-nil, is checked before every dispatch. The debug
	// surface arms faults on this set; tests use it directly.
	Faults *faults.Set
	// Debug serves the HTTP debug surface while the cluster is open.
	Debug DebugOptions
}

// Cluster is a connected dockv client. It is safe for concurrent use.
type Cluster struct {
	pipeline *core.Pipeline
	query    *queryExecutor
	timeouts TimeoutConfig
	faults   *faults.Set
	debug    *debugServer
	logger   *logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// Connect validates opts, builds the operation pipeline and query executor,
// and starts the debug surface when asked to. Option problems fail with
// ErrInvalidArgument naming the field.
func Connect(opts ClusterOptions) (*Cluster, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: cluster options require a Transport", errdefs.ErrInvalidArgument)
	}
	if opts.QueryEndpoint != "" {
		u, err := url.Parse(opts.QueryEndpoint)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("%w: QueryEndpoint must be an absolute http(s) URL, got %q",
				errdefs.ErrInvalidArgument, opts.QueryEndpoint)
		}
	}
	if opts.Debug.Port < 0 {
		return nil, fmt.Errorf("%w: Debug.Port must not be negative", errdefs.ErrInvalidArgument)
	}

	logging.SetRedactionLevel(opts.Redaction)

	set := opts.Faults
	if set == nil && opts.Debug.Enabled {
		// the debug surface needs a set to arm faults on
		set = faults.NewSet("dockv")
	}

	pipeline, err := core.NewPipeline(core.PipelineConfig{
		Dispatcher: opts.Transport,
		Strategy:   opts.RetryStrategy,
		Breaker:    opts.Breaker,
		Faults:     set,
		Registerer: opts.Registerer,
	})
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		pipeline: pipeline,
		timeouts: opts.Timeouts.withDefaults(),
		faults:   set,
		logger:   logging.GetLogger("client"),
	}
	if opts.QueryEndpoint != "" {
		c.query = newQueryExecutor(opts.QueryEndpoint, opts.HTTPClient, opts.RetryStrategy, c.timeouts.Query)
	}
	if opts.Debug.Enabled {
		debug, err := startDebugServer(opts, set, c.timeouts.Connect)
		if err != nil {
			return nil, err
		}
		c.debug = debug
		c.logger.Info().Int("port", debug.port).Msg("Debug surface up")
	}
	return c, nil
}

// Bucket returns a handle on the named bucket. No network traffic happens
// until an operation runs.
func (c *Cluster) Bucket(name string) *Bucket {
	return &Bucket{cluster: c, name: name}
}

// Close stops the debug surface and releases idle connections. It is safe to
// call more than once; later calls return the first result.
func (c *Cluster) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.debug != nil {
			c.closeErr = c.debug.stop(ctx)
		}
		if c.query != nil {
			c.query.client.CloseIdleConnections()
		}
	})
	return c.closeErr
}
