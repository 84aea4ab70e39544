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

package logging

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// The component level registry lives here rather than in the service registry
// package so that low level packages can log without pulling in service
// lifecycle dependencies.

var (
	generation     atomic.Int64
	levelMu        sync.Mutex
	componentLevel = map[string]zerolog.Level{}
)

// configLevel resolves the effective level for a component, walking up the
// `/` hierarchy until a configured ancestor is found, ending at the global
// level.
func configLevel(component string) (gen int64, level zerolog.Level) {
	levelMu.Lock()
	defer levelMu.Unlock()
	gen = generation.Load()
	l, ok := componentLevel[component]
	for !ok {
		lastSlash := strings.LastIndexByte(component, '/')
		if lastSlash < 1 {
			l = zerolog.GlobalLevel()
			break
		}
		component = component[0:lastSlash]
		l, ok = componentLevel[component]
	}
	return gen, l
}

func contextBuilder(component string, with func(zerolog.Context) zerolog.Context) builder {
	return func() (int64, zerolog.Logger) {
		gen, level := configLevel(component)
		ctx := log.Logger.With()
		if component != "" {
			ctx = ctx.Str("component", component)
		}
		if with != nil {
			ctx = with(ctx)
		}
		return gen, ctx.Logger().Level(level)
	}
}

// GetLogger creates a logger for the given component name. Hierarchies in
// components should be represented with `/` characters in their name, e.g.
// "dockv/kv".
func GetLogger(component string) *Logger {
	return newFrom(contextBuilder(component, nil))
}

// GetLoggerWith creates a logger for the given component name and custom
// context configuration function. Hierarchies in components should be
// represented with `/` characters in their name.
func GetLoggerWith(component string, with func(zerolog.Context) zerolog.Context) *Logger {
	return newFrom(contextBuilder(component, with))
}

// SetComponentLevel changes the log level for a given component. If children
// is true, any more specific configuration below that component is removed so
// that it inherits the new level. The empty component name addresses the
// global level.
func SetComponentLevel(component string, children bool, level zerolog.Level) {
	levelMu.Lock()
	defer levelMu.Unlock()
	if component == "" {
		zerolog.SetGlobalLevel(level)
		if children {
			componentLevel = map[string]zerolog.Level{}
		}
	} else {
		componentLevel[component] = level
		if children {
			p := component + "/"
			for c := range componentLevel {
				if strings.HasPrefix(c, p) {
					delete(componentLevel, c)
				}
			}
		}
	}
	generation.Add(1)
}

// ComponentLevels returns a copy of the currently configured component level
// map. The empty key carries the global level.
func ComponentLevels() map[string]zerolog.Level {
	levelMu.Lock()
	defer levelMu.Unlock()
	ret := make(map[string]zerolog.Level, len(componentLevel)+1)
	ret[""] = zerolog.GlobalLevel()
	for k, v := range componentLevel {
		ret[k] = v
	}
	return ret
}
