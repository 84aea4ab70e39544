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

package retry

import (
	"math"
	"time"
)

// BackoffCalculator computes the pause before the given retry attempt.
// Attempt numbers start at zero for the first retry.
type BackoffCalculator func(attempt uint32) time.Duration

// ExponentialBackoff returns a calculator growing from min by the given
// factor each attempt, capped at max. A factor below 1 is treated as 2, a
// non-positive min as 1ms and a non-positive max as 500ms, so the zero-ish
// configuration still behaves sensibly.
func ExponentialBackoff(min, max time.Duration, factor float64) BackoffCalculator {
	if min <= 0 {
		min = 1 * time.Millisecond
	}
	if max <= 0 {
		max = 500 * time.Millisecond
	}
	if factor < 1 {
		factor = 2
	}
	return func(attempt uint32) time.Duration {
		// cap the exponent before multiplying to avoid overflow on long
		// retry storms
		pow := math.Pow(factor, float64(attempt))
		d := time.Duration(float64(min) * pow)
		if d <= 0 || d > max {
			return max
		}
		return d
	}
}

// ControlledBackoff is the fixed schedule used for AlwaysRetry reasons,
// where the pause covers config propagation rather than server recovery.
func ControlledBackoff(attempt uint32) time.Duration {
	switch attempt {
	case 0:
		return 1 * time.Millisecond
	case 1:
		return 10 * time.Millisecond
	case 2:
		return 50 * time.Millisecond
	case 3:
		return 100 * time.Millisecond
	case 4:
		return 500 * time.Millisecond
	default:
		return 1000 * time.Millisecond
	}
}
