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

package server

import (
	"net/http"
	_ "net/http/pprof" // registers the pprof handlers on http.DefaultServeMux
	"os"
	"sync"

	"github.com/Depado/ginprom"
	ginexpvar "github.com/gin-contrib/expvar"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/location"
	ginlogger "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	cors "github.com/rs/cors/wrapper/gin"
	"github.com/rs/zerolog"

	"go.6river.tech/dockv/logging"
)

// gin mode is process global, so only apply our default once
var ginModeOnce sync.Once

func applyDefaultGinMode() {
	ginModeOnce.Do(func() {
		if os.Getenv(gin.EnvGinMode) == "" {
			gin.SetMode(gin.ReleaseMode)
		}
	})
}

// EngineConfig adjusts NewEngineWith. The zero value is what NewEngine uses.
type EngineConfig struct {
	// Registry isolates the engine's HTTP metrics from the default prometheus
	// registerer, and /metrics then serves just that registry. Required when a
	// process hosts more than one engine, since the collectors would otherwise
	// collide.
	Registry *prometheus.Registry
	// Namespace prefixes the HTTP metric names. Defaults to "dockv".
	Namespace string
	// SkipLogPaths suppresses request logging for the given paths, in
	// addition to /metrics and /uptimez which are always skipped.
	SkipLogPaths []string
}

// NewEngine builds a gin engine with the standard middleware stack: zerolog
// request logging, panic recovery, gzip, CORS, resolved-location support, and
// prometheus HTTP metrics served at /metrics.
func NewEngine() *gin.Engine {
	return NewEngineWith(EngineConfig{})
}

func NewEngineWith(cfg EngineConfig) *gin.Engine {
	applyDefaultGinMode()
	if cfg.Namespace == "" {
		cfg.Namespace = "dockv"
	}

	engine := gin.New()

	requestLogger := logging.GetLogger("server/requests")
	engine.Use(ginlogger.SetLogger(
		ginlogger.WithLogger(func(*gin.Context, zerolog.Logger) zerolog.Logger {
			return requestLogger.Current()
		}),
		ginlogger.WithSkipPath(append([]string{"/metrics", "/uptimez"}, cfg.SkipLogPaths...)),
	))
	engine.Use(gin.RecoveryWithWriter(logging.GetLogger("server/panics")))
	engine.Use(location.Default())
	engine.Use(gzip.Gzip(gzip.DefaultCompression))
	engine.Use(cors.AllowAll())

	promOpts := []ginprom.PrometheusOption{
		ginprom.Engine(engine),
		ginprom.Namespace(cfg.Namespace),
		ginprom.Subsystem("http"),
		ginprom.Path("/metrics"),
		ginprom.Ignore("/metrics"),
	}
	if cfg.Registry != nil {
		promOpts = append(promOpts, ginprom.Registry(cfg.Registry))
	}
	p := ginprom.New(promOpts...)
	engine.Use(p.Instrument())

	return engine
}

// AddDebugRoutes exposes expvar and pprof on the engine, the way a dev or an
// incident responder expects to find them.
func AddDebugRoutes(engine *gin.Engine) {
	engine.GET("/debug/vars", ginexpvar.Handler())
	// wildcard route deferring to the default servemux, so we don't have to
	// replicate the pprof index wildcard behavior ourselves
	engine.Any("/debug/pprof/*profile", gin.WrapH(http.DefaultServeMux))
}
