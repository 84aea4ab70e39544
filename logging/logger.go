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
	"github.com/rs/zerolog"
)

// builder produces the zerolog instance backing a Logger, along with the
// configuration generation it was built from.
type builder = func() (int64, zerolog.Logger)

// Logger wraps a rebuildable zerolog.Logger so that component log levels
// can be changed while the process is running. Event methods mirror the
// zerolog API.
type Logger struct {
	gen int64
	l   zerolog.Logger
	b   builder
}

func newFrom(b builder) *Logger {
	gen, l := b()
	return &Logger{gen, l, b}
}

// current rebuilds the wrapped logger if the level configuration has changed
// since it was last built.
func (l *Logger) current() *zerolog.Logger {
	if gen := generation.Load(); gen != l.gen {
		l.gen, l.l = l.b()
	}
	return &l.l
}

// Current returns a snapshot of the wrapped zerolog.Logger built against the
// active level configuration.
func (l *Logger) Current() zerolog.Logger {
	return *l.current()
}

func (l *Logger) Trace() *zerolog.Event {
	return l.current().Trace()
}

func (l *Logger) Debug() *zerolog.Event {
	return l.current().Debug()
}

func (l *Logger) Info() *zerolog.Event {
	return l.current().Info()
}

func (l *Logger) Warn() *zerolog.Event {
	return l.current().Warn()
}

func (l *Logger) Error() *zerolog.Event {
	return l.current().Error()
}

func (l *Logger) Fatal() *zerolog.Event {
	return l.current().Fatal()
}

// Err starts an event at error level when err is non-nil, else at info
// level, attaching err either way. This is the only event method that obeys
// stack trace marshaling, so wrapped errors should be attached here and not
// via Interface.
func (l *Logger) Err(err error) *zerolog.Event {
	return l.current().Err(err)
}

func (l *Logger) Write(p []byte) (n int, err error) {
	return l.current().Write(p)
}

func (l *Logger) WithLevel(level zerolog.Level) *zerolog.Event {
	return l.current().WithLevel(level)
}

// With derives a Logger whose context is extended by the given function. The
// derived logger still tracks level configuration changes.
func (l *Logger) With(with func(zerolog.Context) zerolog.Context) *Logger {
	if with == nil {
		return l
	}
	return newFrom(func() (int64, zerolog.Logger) {
		gen, ll := l.b()
		ll = with(ll.With()).Logger()
		return gen, ll
	})
}

// Level derives a Logger pinned at the given level, overriding the component
// configuration.
func (l *Logger) Level(level zerolog.Level) *Logger {
	return newFrom(func() (int64, zerolog.Logger) {
		gen, ll := l.b()
		ll = ll.Level(level)
		return gen, ll
	})
}
