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
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"go.6river.tech/dockv/controllers"
	"go.6river.tech/dockv/faults"
	"go.6river.tech/dockv/registry"
	"go.6river.tech/dockv/server"
)

const defaultDebugPort = 3000

// debugServer runs the cluster's HTTP debug surface under its own service
// registry, started during Connect and stopped by Cluster.Close.
type debugServer struct {
	reg    *registry.Registry
	cancel context.CancelFunc
	port   int
}

func startDebugServer(opts ClusterOptions, set *faults.Set, readyTimeout time.Duration) (*debugServer, error) {
	port := opts.Debug.Port
	if port == 0 {
		port = defaultDebugPort
	}

	// reuse the caller's registry when it is one, so /metrics serves the
	// operation metrics next to the runtime ones
	promReg, ok := opts.Registerer.(*prometheus.Registry)
	if !ok {
		promReg = prometheus.NewRegistry()
	}

	reg := registry.New("dockv-debug")
	controllers.AddCommonControllers(reg)
	if set != nil {
		reg.AddController(controllers.NewFaultsController(set))
		// tolerate a set shared with another cluster on the same registry
		var already prometheus.AlreadyRegisteredError
		if err := set.Register(promReg); err != nil && !errors.As(err, &already) {
			return nil, err
		}
	}

	engine := server.NewEngineWith(server.EngineConfig{Registry: promReg})
	server.AddDebugRoutes(engine)
	if err := reg.RegisterControllers(engine); err != nil {
		return nil, err
	}
	server.RegisterHttpService(reg, engine, port, 0)

	ctx, cancel := context.WithCancel(context.Background())
	d := &debugServer{reg: reg, cancel: cancel, port: port}
	if err := reg.InitializeServices(ctx); err != nil {
		cancel()
		return nil, err
	}
	if err := reg.StartServices(ctx); err != nil {
		cancel()
		_ = reg.WaitServices()
		_ = reg.CleanupServices(context.Background())
		return nil, err
	}
	readyCtx, readyCancel := context.WithTimeout(ctx, readyTimeout)
	defer readyCancel()
	if err := reg.WaitAllReady(readyCtx); err != nil {
		_ = d.stop(context.Background())
		return nil, err
	}
	return d, nil
}

func (d *debugServer) stop(ctx context.Context) error {
	d.cancel()
	err := d.reg.WaitServices()
	if cErr := d.reg.CleanupServices(ctx); err == nil {
		err = cErr
	}
	return err
}
