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

// Command dockv-emu runs the data and query emulators as a standalone daemon
// for local development: the query service on a real HTTP port, and the
// debug surface (uptime, log control, error codes, faults, metrics) beside
// it.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"go.6river.tech/dockv/client"
	"go.6river.tech/dockv/controllers"
	"go.6river.tech/dockv/emulator"
	"go.6river.tech/dockv/faults"
	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/registry"
	"go.6river.tech/dockv/server"
	"go.6river.tech/dockv/version"
)

const (
	appName          = "dockv-emu"
	defaultDebugPort = 3000
	defaultQueryPort = 8093
)

var testModeIgnoreArgs = false

func main() {
	if len(os.Args) > 1 {
		if len(os.Args) == 2 {
			switch os.Args[1] {
			case "--help":
				fmt.Println("dockv-emu does not accept command line arguments")
				return
			case "--version":
				fmt.Printf("This is dockv-emu version %s running on %s/%s\n",
					version.SemrelVersion, runtime.GOOS, runtime.GOARCH)
				return
			}
		}

		if !testModeIgnoreArgs {
			fmt.Fprintf(os.Stderr, "dockv-emu does not accept command line arguments: %v\n", os.Args[1:])
			os.Exit(1)
		}
	}

	logging.ConfigureDefaultLogging()
	app, err := newApp()
	if err != nil {
		panic(err)
	}
	if err := app.Main(context.Background()); err != nil {
		panic(err)
	}
}

// emuApp bundles the daemon's moving parts so the acceptance test can watch
// the registry the same way an operator would.
type emuApp struct {
	Registry *registry.Registry

	cluster *client.Cluster
	logger  *logging.Logger
}

func newApp() (*emuApp, error) {
	logger := logging.GetLogger(appName)

	queryPort := defaultQueryPort
	if p := os.Getenv("QUERY_PORT"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid QUERY_PORT %q: %w", p, err)
		}
		queryPort = parsed
	}

	kv := emulator.NewKV(emulator.KVConfig{})
	query := emulator.NewQueryServer(emulator.QueryServerConfig{
		Addr: fmt.Sprintf("127.0.0.1:%d", queryPort),
	})
	set := faults.NewSet(appName)

	// one registry serves the operation metrics, the fault gauges and the
	// engine's own instrumentation together on /metrics
	promReg := prometheus.NewRegistry()
	if err := set.Register(promReg); err != nil {
		return nil, err
	}

	cluster, err := client.Connect(client.ClusterOptions{
		Transport:     kv,
		QueryEndpoint: fmt.Sprintf("http://127.0.0.1:%d", queryPort),
		Faults:        set,
		Registerer:    promReg,
	})
	if err != nil {
		return nil, err
	}

	reg := registry.New(appName)
	registry.RegisterDefaultSignalListener(reg)
	reg.AddService(&queryService{server: query})
	reg.AddService(registry.NewInitializer(
		"kv-smoke-check",
		func(ctx context.Context, _ *registry.Registry) error {
			// prove the data path end to end before the ports open
			docs := cluster.Bucket(emulator.DefaultBucketName).DefaultCollection()
			id := appName + "::hello"
			if _, err := docs.Upsert(ctx, id, map[string]string{"emulator": version.SemrelVersion}, nil); err != nil {
				return err
			}
			res, err := docs.Get(ctx, id, nil)
			if err != nil {
				return err
			}
			logger.Info().Uint64("cas", uint64(res.Cas())).Msg("KV emulator ready")
			return nil
		},
		nil,
	))

	controllers.AddCommonControllers(reg)
	reg.AddController(controllers.NewFaultsController(set))

	engine := server.NewEngineWith(server.EngineConfig{Registry: promReg})
	server.AddDebugRoutes(engine)
	if err := reg.RegisterControllers(engine); err != nil {
		return nil, err
	}
	server.RegisterHttpService(reg, engine, defaultDebugPort, 0)

	return &emuApp{Registry: reg, cluster: cluster, logger: logger}, nil
}

// Main runs the daemon until its services end, then closes the cluster.
func (a *emuApp) Main(ctx context.Context) error {
	defer a.cluster.Close(context.Background()) // nolint:errcheck // best effort on the way out
	return a.Registry.RunDefault(ctx, a.logger)
}

// queryService adapts the query emulator to the registry service lifecycle.
type queryService struct {
	server *emulator.QueryServer
}

func (s *queryService) Name() string { return "query-emulator" }

func (s *queryService) Initialize(context.Context, *registry.Registry) error { return nil }

func (s *queryService) Start(ctx context.Context, ready chan<- struct{}) error {
	if err := s.server.Start(ctx); err != nil {
		return err
	}
	close(ready)
	<-ctx.Done()
	return s.server.Close()
}

func (s *queryService) Cleanup(context.Context, *registry.Registry) error { return nil }
