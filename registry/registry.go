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

package registry

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"go.6river.tech/dockv/logging"
)

// Registry owns the lifecycle of an app's long-running services and its HTTP
// controllers. Services are initialized and started together and stopped by
// cancellation; controllers are registered against a router by the HTTP
// service that owns it.
type Registry struct {
	name string

	svcMu       sync.Mutex
	allServices []Service
	allReadies  []chan struct{}

	ctlMu          sync.Mutex
	allControllers []Controller

	initialized   bool
	started       bool
	cancelRunning func()
	runningGroup  *errgroup.Group
	runningCtx    context.Context

	_logger     *logging.Logger
	_loggerOnce sync.Once
}

// New creates a named registry. The name scopes its log component, so that an
// app hosting more than one registry can tell them apart.
func New(name string) *Registry {
	return &Registry{name: name}
}

// Name reports the name the registry was created with.
func (r *Registry) Name() string {
	return r.name
}

// RunDefault is the standard app main loop: initialize everything, start
// everything, wait for all of it to be ready, then block until the services
// end, cleaning up on the way out.
func (r *Registry) RunDefault(ctx context.Context, logger *logging.Logger) error {
	clean := false
	var err error
	defer func() {
		if clean && err == nil {
			logger.Info().Msg("app exiting cleanly")
		} else {
			logger.Warn().Msg("app shutdown after error")
		}
	}()

	err = r.InitializeServices(ctx)
	defer func() {
		if !clean {
			r.RequestStopServices()
			r.WaitServices() // nolint:errcheck // don't care, we know it failed
		}
		scErr := r.CleanupServices(ctx)
		if scErr != nil {
			// this will probably be a panic-within-a-panic if it happens
			logger.Error().Err(scErr).Msg("Failed to cleanup services")
			if err == nil {
				err = scErr
			}
		}
	}()
	if err != nil {
		return err
	}

	if err = r.StartServices(ctx); err != nil {
		return err
	}
	if err = r.WaitAllReady(ctx); err != nil {
		return err
	}
	logger.Info().Msgf("All %d services ready", len(r.allReadies))

	if err = r.WaitServices(); err != nil {
		logger.Warn().Err(err).Msg("app exiting after error")
	}

	clean = true
	return err
}
