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
	"fmt"
	"sync"
	"time"
)

// BreakerState is a circuit breaker's disposition toward new dispatches.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("breaker-state(%d)", int32(s))
	}
}

// BreakerConfig tunes the dispatch circuit breaker. Zero fields take the
// defaults below; Disabled makes the breaker a no-op that always admits.
type BreakerConfig struct {
	Disabled bool
	// VolumeThreshold is the minimum number of outcomes in the rolling window
	// before the error percentage is evaluated at all.
	VolumeThreshold int64
	// ErrorThresholdPercentage opens the breaker once at least this share of
	// the window's outcomes were failures.
	ErrorThresholdPercentage float64
	// SleepWindow is how long an open breaker rejects dispatches before it
	// admits a canary probe.
	SleepWindow time.Duration
	// RollingWindow is the age at which the outcome counters reset.
	RollingWindow time.Duration
}

const (
	defaultVolumeThreshold          = 20
	defaultErrorThresholdPercentage = 50
	defaultSleepWindow              = 5 * time.Second
	defaultRollingWindow            = time.Minute
)

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = defaultVolumeThreshold
	}
	if c.ErrorThresholdPercentage <= 0 {
		c.ErrorThresholdPercentage = defaultErrorThresholdPercentage
	}
	if c.SleepWindow <= 0 {
		c.SleepWindow = defaultSleepWindow
	}
	if c.RollingWindow <= 0 {
		c.RollingWindow = defaultRollingWindow
	}
	return c
}

// Breaker is a client side circuit breaker over dispatches. A response from
// the service counts as a success regardless of its status, and only
// transport level failures count against the error threshold, so the breaker
// trips on unresponsive endpoints rather than on application errors.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	total       int64
	failed      int64
	windowStart time.Time
	openedAt    time.Time

	now func() time.Time // replaced in tests
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	b := &Breaker{cfg: cfg.withDefaults(), now: time.Now}
	b.windowStart = b.now()
	return b
}

// Allow reports whether a dispatch may proceed. Once an open breaker's sleep
// window has passed, exactly one caller is admitted as a canary; that probe's
// outcome closes or re-opens the breaker.
func (b *Breaker) Allow() bool {
	if b.cfg.Disabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.SleepWindow {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		// half-open: the canary is outstanding
		return false
	}
}

// MarkSuccessful records a dispatch that received a response.
func (b *Breaker) MarkSuccessful() {
	if b.cfg.Disabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerClosed
		b.total, b.failed = 0, 0
		b.windowStart = b.now()
	case BreakerClosed:
		b.roll()
		b.total++
	}
	// a late success while open is ignored; the canary decides
}

// MarkFailure records a dispatch that failed at the transport level.
func (b *Breaker) MarkFailure() {
	if b.cfg.Disabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = b.now()
	case BreakerClosed:
		b.roll()
		b.total++
		b.failed++
		if b.total >= b.cfg.VolumeThreshold &&
			float64(b.failed)*100/float64(b.total) >= b.cfg.ErrorThresholdPercentage {
			b.state = BreakerOpen
			b.openedAt = b.now()
		}
	}
}

// roll resets the counters when the rolling window has lapsed. Callers hold
// the mutex.
func (b *Breaker) roll() {
	if now := b.now(); now.Sub(b.windowStart) >= b.cfg.RollingWindow {
		b.windowStart = now
		b.total, b.failed = 0, 0
	}
}

func (b *Breaker) State() BreakerState {
	if b.cfg.Disabled {
		return BreakerClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
